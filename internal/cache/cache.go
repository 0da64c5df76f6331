package cache

import (
	"sync"

	"github.com/shadowhunters/boardview/pkg/core"
)

// ViewCache holds the latest published board view. The worker publishes
// after every handled event; readers get the view as of the last
// completed event, never a half-applied one.
type ViewCache struct {
	mu      sync.RWMutex
	view    core.BoardView
	changes core.ChangeSet
	ready   bool
}

// NewViewCache returns an empty cache.
func NewViewCache() *ViewCache {
	return &ViewCache{}
}

// Publish replaces the cached view and last change set.
func (c *ViewCache) Publish(view core.BoardView, changes core.ChangeSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = view
	c.changes = changes
	c.ready = true
}

// View returns the cached view and whether anything was published yet.
func (c *ViewCache) View() (core.BoardView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view, c.ready
}

// LastChanges returns the most recently published change set.
func (c *ViewCache) LastChanges() core.ChangeSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.changes
}

// Player looks up one player in the cached view.
func (c *ViewCache) Player(id string) (core.PlayerViewState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.view.Players {
		if p.ID == id {
			return p, true
		}
	}
	return core.PlayerViewState{}, false
}

// Reset clears the cache.
func (c *ViewCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = core.BoardView{}
	c.changes = core.ChangeSet{}
	c.ready = false
}
