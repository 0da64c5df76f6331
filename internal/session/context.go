package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
	"github.com/shadowhunters/boardview/pkg/core"
)

// ErrNoSession is returned when ending a session that was never started.
var ErrNoSession = errors.New("no active session")

// Context holds the current viewing session. It is written by the worker
// and read by the HTTP API, logging and the status monitor.
type Context struct {
	mu      deadlock.RWMutex
	session *core.Session
	players int
	seq     uint64
}

// NewContext creates a new Context with no active session
func NewContext() *Context {
	return &Context{}
}

// Start begins a new session for viewer and returns a copy of it.
func (c *Context) Start(viewer, tag string, now time.Time) core.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = &core.Session{
		UUID:         uuid.NewString(),
		ViewerUserID: viewer,
		StartTime:    now,
		Tag:          tag,
	}
	c.players = 0
	c.seq = 0
	return *c.session
}

// SetID stores the storage-assigned id of the active session.
func (c *Context) SetID(id uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.ID = id
	}
}

// End stamps the end time and returns the finished session.
func (c *Context) End(now time.Time) (core.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return core.Session{}, ErrNoSession
	}
	c.session.EndTime = now
	return *c.session, nil
}

// Get returns a copy of the current session and whether one was started.
func (c *Context) Get() (core.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return core.Session{}, false
	}
	return *c.session, true
}

// Active reports whether a session has been started and not ended.
func (c *Context) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil && c.session.EndTime.IsZero()
}

// Observe records the latest reconciliation result.
func (c *Context) Observe(seq uint64, players int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = seq
	c.players = players
}

// Stats returns the last observed sequence number and player count.
func (c *Context) Stats() (seq uint64, players int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seq, c.players
}
