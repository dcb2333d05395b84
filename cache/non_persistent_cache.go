package cache

import "sync"

// nonPersistentCache provides a thread-safe cache which lives only in memory.
type nonPersistentCache struct {
	lock    sync.RWMutex
	buckets map[string]map[string][]byte
}

// NewNonPersistentCache creates an in-memory Cache.
func NewNonPersistentCache() Cache {
	return newNonPersistentCache()
}

func newNonPersistentCache() *nonPersistentCache {
	return &nonPersistentCache{
		buckets: make(map[string]map[string][]byte),
	}
}

// Get checks if the key is present in the bucket, and if not, returns ErrCacheMiss.
func (c *nonPersistentCache) Get(bucket string, key []byte) ([]byte, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if value, ok := c.buckets[bucket][string(key)]; ok {
		return value, nil
	}
	return nil, ErrCacheMiss
}

func (c *nonPersistentCache) Put(bucket string, key []byte, value []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if _, ok := c.buckets[bucket]; !ok {
		c.buckets[bucket] = make(map[string][]byte)
	}
	c.buckets[bucket][string(key)] = append([]byte{}, value...)
	return nil
}

func (c *nonPersistentCache) Close() error {
	return nil
}
