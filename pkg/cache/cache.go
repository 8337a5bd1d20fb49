package cache

import (
	"sync"
	"time"
)

// Entry represents a cached balance with its fetch timestamp.
// Mock marks balances produced by the deterministic dev-mode oracle so they
// can never be mistaken for on-chain results.
type Entry struct {
	Balance   float64   `json:"balance"`
	Mock      bool      `json:"mock"`
	Timestamp time.Time `json:"timestamp"`
}

// Cache provides thread-safe per-wallet balance caching with TTL support.
// Entries older than the TTL are treated as absent; a background sweep
// bounds the map under many distinct wallets.
type Cache struct {
	data   map[string]*Entry
	mutex  sync.RWMutex
	ttl    time.Duration
	stopCh chan struct{}
}

// New creates a new Cache instance with the specified TTL
func New(ttl time.Duration) *Cache {
	c := &Cache{
		data:   make(map[string]*Entry),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}

	go c.cleanup()

	return c
}

// Get retrieves an entry from the cache if it exists and hasn't expired
func (c *Cache) Get(wallet string) (Entry, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.data[wallet]
	if !exists {
		return Entry{}, false
	}

	if time.Since(entry.Timestamp) > c.ttl {
		return Entry{}, false
	}

	return *entry, true
}

// Set stores a balance in the cache with the current timestamp
func (c *Cache) Set(wallet string, balance float64, mock bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[wallet] = &Entry{
		Balance:   balance,
		Mock:      mock,
		Timestamp: time.Now(),
	}
}

// Delete removes a wallet from the cache
func (c *Cache) Delete(wallet string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, wallet)
}

// Clear removes all entries from the cache
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data = make(map[string]*Entry)
}

// Size returns the number of entries in the cache
func (c *Cache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.data)
}

// cleanup runs periodically to remove expired entries
func (c *Cache) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

// removeExpired removes all expired entries from the cache
func (c *Cache) removeExpired() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	for wallet, entry := range c.data {
		if now.Sub(entry.Timestamp) > c.ttl {
			delete(c.data, wallet)
		}
	}
}

// Stop stops the cleanup goroutine
func (c *Cache) Stop() {
	close(c.stopCh)
}
