package loginstate

import (
	"sync"

	"github.com/ternarybob/cmabridge/internal/models"
)

// Cache holds the login state of the current session.
//
// Every Invalidate bumps the generation; Store only accepts a value fetched
// under the current generation, so a fetch that raced a logout or re-login
// cannot repopulate the cache with stale identity.
type Cache struct {
	mu    sync.RWMutex
	state *models.LoginState
	gen   uint64
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{}
}

// Get returns the cached state (nil when empty) and the current generation
func (c *Cache) Get() (*models.LoginState, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, c.gen
}

// Store caches state if gen is still current and reports whether it did
func (c *Cache) Store(state *models.LoginState, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.state = state
	return true
}

// Invalidate clears the cache and starts a new generation
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = nil
	c.gen++
}
