package cache

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/crytic/provenance/logging"
	"github.com/crytic/provenance/utils"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

// persistentCacheFilename is the name of the database file created inside the cache directory.
const persistentCacheFilename = "provenance-cache.db"

// persistentCache provides a thread-safe cache which persists values to a bbolt database. Reads are served from an
// in-memory front cache when possible, and writes are batched.
type persistentCache struct {
	memCache *nonPersistentCache
	db       *bbolt.DB

	pendingWriteMutex sync.Mutex
	pendingWrites     []pendingWrite
	flushThreshold    int

	closeOnce sync.Once
	closeErr  error
}

type pendingWrite struct {
	bucket string
	key    []byte
	value  []byte
}

// NewPersistentCache opens (or creates) a persistent cache inside the provided directory. The cache is closed when ctx
// is cancelled, or when Close is called.
func NewPersistentCache(ctx context.Context, directory string) (Cache, error) {
	if err := utils.MakeDirectory(directory); err != nil {
		return nil, errors.Wrap(err, "failed to create cache directory")
	}

	db, err := bbolt.Open(filepath.Join(directory, persistentCacheFilename), 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "could not open cache database")
	}

	// Create the known buckets up front so reads never race bucket creation.
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range []string{BUCKET_SOURCES, BUCKET_CREATION_TRANSACTIONS} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.WithStack(err)
	}

	p := &persistentCache{
		memCache:       newNonPersistentCache(),
		db:             db,
		flushThreshold: 25,
		pendingWrites:  []pendingWrite{},
	}

	go func() {
		<-ctx.Done()
		if err := p.Close(); err != nil {
			logging.GlobalLogger.Error("Failed to close the cache database", err)
		}
	}()

	return p, nil
}

// Get returns the value from the memory cache, falling back to the database.
func (p *persistentCache) Get(bucket string, key []byte) ([]byte, error) {
	value, err := p.memCache.Get(bucket, key)
	if err == nil {
		return value, nil
	}

	// Pending writes are in the memory cache already, so only the database needs checking.
	var found []byte
	err = p.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		if data := b.Get(key); data != nil {
			found = append([]byte{}, data...)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not read from cache database")
	}
	if found == nil {
		return nil, ErrCacheMiss
	}

	if err = p.memCache.Put(bucket, key, found); err != nil {
		return nil, err
	}
	return found, nil
}

// Put stores the value in the memory cache and queues it for persistence.
func (p *persistentCache) Put(bucket string, key []byte, value []byte) error {
	if err := p.memCache.Put(bucket, key, value); err != nil {
		return err
	}

	p.pendingWriteMutex.Lock()
	defer p.pendingWriteMutex.Unlock()

	p.pendingWrites = append(p.pendingWrites, pendingWrite{
		bucket: bucket,
		key:    append([]byte{}, key...),
		value:  append([]byte{}, value...),
	})
	if len(p.pendingWrites) >= p.flushThreshold {
		return p.flushWrites()
	}
	return nil
}

// flushWrites persists all pending writes. The caller must hold pendingWriteMutex.
func (p *persistentCache) flushWrites() error {
	if len(p.pendingWrites) == 0 {
		return nil
	}
	err := p.db.Update(func(tx *bbolt.Tx) error {
		for _, pw := range p.pendingWrites {
			bucket, err := tx.CreateBucketIfNotExists([]byte(pw.bucket))
			if err != nil {
				return err
			}
			if err = bucket.Put(pw.key, pw.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "could not flush cache writes")
	}
	p.pendingWrites = p.pendingWrites[:0]
	return nil
}

// Close flushes pending writes and closes the database. Subsequent calls return the first result.
func (p *persistentCache) Close() error {
	p.closeOnce.Do(func() {
		p.pendingWriteMutex.Lock()
		err := p.flushWrites()
		p.pendingWriteMutex.Unlock()

		if closeErr := p.db.Close(); err == nil {
			err = errors.WithStack(closeErr)
		}
		p.closeErr = err
	})
	return p.closeErr
}
