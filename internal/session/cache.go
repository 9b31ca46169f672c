// Package session caches constructed protocol clients so repeated and
// concurrent collections reuse one client per endpoint/credential pair
// instead of rebuilding transports on every call.
package session

import (
	"fmt"
	"io"
	"sync"

	"github.com/regdata/ffiec-connect/internal/ffiecerr"
)

// Key identifies one cached client. Fingerprint is a credential derivation,
// never the secret itself.
type Key struct {
	Protocol    string
	Endpoint    string
	Fingerprint string
	Proxy       string
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.Protocol, k.Endpoint, k.Fingerprint, k.Proxy)
}

// Factory constructs the value for a missing key.
type Factory func() (io.Closer, error)

// Cache is a synchronized get-or-create store of protocol clients.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]io.Closer
	closed  bool
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[Key]io.Closer)}
}

// Get returns the cached client for key, constructing it via factory on
// first use. Concurrent callers for the same key get the same client and
// never observe partial construction.
func (c *Cache) Get(key Key, factory Factory) (io.Closer, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ffiecerr.Session(fmt.Errorf("cache is shut down"))
	}
	if entry, ok := c.entries[key]; ok {
		c.mu.RUnlock()
		return entry, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ffiecerr.Session(fmt.Errorf("cache is shut down"))
	}
	// Re-check: another goroutine may have constructed while we waited.
	if entry, ok := c.entries[key]; ok {
		return entry, nil
	}

	entry, err := factory()
	if err != nil {
		return nil, ffiecerr.Session(fmt.Errorf("construct client for %s: %w", key, err))
	}
	c.entries[key] = entry
	return entry, nil
}

// Invalidate removes and closes the entry for key, if present. The close
// error is returned but the entry is gone either way.
func (c *Cache) Invalidate(key Key) error {
	c.mu.Lock()
	entry, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return entry.Close()
}

// Replace atomically swaps the entry for key: the old client is closed
// before the replacement becomes visible.
func (c *Cache) Replace(key Key, factory Factory) (io.Closer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ffiecerr.Session(fmt.Errorf("cache is shut down"))
	}

	if old, ok := c.entries[key]; ok {
		delete(c.entries, key)
		// Closing under the lock keeps the old client from being handed
		// out mid-replacement.
		_ = old.Close()
	}

	entry, err := factory()
	if err != nil {
		return nil, ffiecerr.Session(fmt.Errorf("construct replacement for %s: %w", key, err))
	}
	c.entries[key] = entry
	return entry, nil
}

// Len reports the number of cached clients.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Shutdown closes every cached client and rejects further use.
func (c *Cache) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	for key, entry := range c.entries {
		if err := entry.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", key, err)
		}
	}
	c.entries = nil
	return firstErr
}
