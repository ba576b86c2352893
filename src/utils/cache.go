package utils

import (
	"sync"
	"time"
)

// Cache holds one value until its TTL runs out. The zero value is empty.
type Cache[T any] struct {
	mutex   sync.RWMutex
	value   T
	expires time.Time
}

func NewCache[T any]() *Cache[T] {
	return &Cache[T]{}
}

// Set stores value for ttl. A non-positive ttl leaves the cache empty.
func (c *Cache[T]) Set(value T, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if ttl <= 0 {
		c.reset()
		return
	}
	c.value = value
	c.expires = time.Now().Add(ttl)
}

// Get reports the stored value while it is fresh.
func (c *Cache[T]) Get() (T, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if c.expires.IsZero() || !time.Now().Before(c.expires) {
		var zero T
		return zero, false
	}
	return c.value, true
}

func (c *Cache[T]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.reset()
}

func (c *Cache[T]) reset() {
	var zero T
	c.value = zero
	c.expires = time.Time{}
}
