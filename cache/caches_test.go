package cache

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNonPersistentCacheRace tests for race conditions
func TestNonPersistentCacheRace(t *testing.T) {
	cache := newNonPersistentCache()
	numKeys := 5
	writers := 10
	numWrites := 10_000
	readers := 10
	numReads := 10_000

	var wg sync.WaitGroup
	wg.Add(writers + readers)

	write := func(r *rand.Rand, writesRem int) {
		defer wg.Done()
		for ; writesRem > 0; writesRem-- {
			key := []byte{byte(r.Uint32() % uint32(numKeys))}
			assert.NoError(t, cache.Put(BUCKET_SOURCES, key, []byte(fmt.Sprint(r.Uint64()))))
		}
	}

	read := func(r *rand.Rand, readsRem int) {
		defer wg.Done()
		for ; readsRem > 0; readsRem-- {
			key := []byte{byte(r.Uint32() % uint32(numKeys))}
			_, _ = cache.Get(BUCKET_SOURCES, key)
		}
	}

	for i := 0; i < readers; i++ {
		go read(rand.New(rand.NewSource(int64(i))), numReads)
	}
	for i := 0; i < writers; i++ {
		go write(rand.New(rand.NewSource(int64(i))), numWrites)
	}
	wg.Wait()
}

// TestNonPersistentCacheBuckets verifies buckets are isolated and misses are reported.
func TestNonPersistentCacheBuckets(t *testing.T) {
	cache := NewNonPersistentCache()
	require.NoError(t, cache.Put(BUCKET_SOURCES, []byte("k"), []byte("source")))

	value, err := cache.Get(BUCKET_SOURCES, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("source"), value)

	_, err = cache.Get(BUCKET_CREATION_TRANSACTIONS, []byte("k"))
	assert.ErrorIs(t, err, ErrCacheMiss)
}

// TestPersistentCacheReopen verifies values survive closing and reopening the database, including writes that were
// still pending when the cache was closed.
func TestPersistentCacheReopen(t *testing.T) {
	directory := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache, err := NewPersistentCache(ctx, directory)
	require.NoError(t, err)

	// Exceed the flush threshold so some writes are flushed before close and some are still pending.
	for i := 0; i < 30; i++ {
		require.NoError(t, cache.Put(BUCKET_SOURCES, []byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("value-%d", i))))
	}
	type transaction struct {
		From  string
		Nonce uint64
	}
	require.NoError(t, PutJSON(cache, BUCKET_CREATION_TRANSACTIONS, []byte("1:0xabc"), transaction{From: "0x01", Nonce: 7}))
	require.NoError(t, cache.Close())
	require.NoError(t, cache.Close())

	reopened, err := NewPersistentCache(ctx, directory)
	require.NoError(t, err)
	defer reopened.Close()

	for i := 0; i < 30; i++ {
		value, err := reopened.Get(BUCKET_SOURCES, []byte(fmt.Sprintf("key-%d", i)))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("value-%d", i), string(value))
	}

	var tx transaction
	require.NoError(t, GetJSON(reopened, BUCKET_CREATION_TRANSACTIONS, []byte("1:0xabc"), &tx))
	assert.Equal(t, transaction{From: "0x01", Nonce: 7}, tx)

	_, err = reopened.Get(BUCKET_SOURCES, []byte("absent"))
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.ErrorIs(t, GetJSON(reopened, "unknown-bucket", []byte("absent"), &tx), ErrCacheMiss)
}
