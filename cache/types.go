package cache

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrCacheMiss is returned when a key is not present in a Cache.
var ErrCacheMiss = errors.New("not found in cache")

// Bucket names used to partition cached values.
const (
	// BUCKET_SOURCES holds fetched source files keyed by their keccak256 hash.
	BUCKET_SOURCES = "sources"
	// BUCKET_CREATION_TRANSACTIONS holds creation transactions keyed by chain id and transaction hash.
	BUCKET_CREATION_TRANSACTIONS = "creation-transactions"
)

// Cache describes a thread-safe, content-addressed key-value store. Values are immutable once written: the same key
// always maps to the same content, so readers never need invalidation.
type Cache interface {
	// Get returns the value stored under key in the bucket, or ErrCacheMiss.
	Get(bucket string, key []byte) ([]byte, error)

	// Put stores value under key in the bucket.
	Put(bucket string, key []byte, value []byte) error

	// Close flushes pending writes and releases any resources.
	Close() error
}

// GetJSON reads a JSON-encoded value from the cache into value. Returns ErrCacheMiss if the key is absent.
func GetJSON(c Cache, bucket string, key []byte, value any) error {
	data, err := c.Get(bucket, key)
	if err != nil {
		return err
	}
	return errors.WithStack(json.Unmarshal(data, value))
}

// PutJSON JSON-encodes value and stores it in the cache.
func PutJSON(c Cache, bucket string, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.WithStack(err)
	}
	return c.Put(bucket, key, data)
}
