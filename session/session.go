// Package session tracks the single active conversation: its identity,
// whether it is still initializing, whether its last turn has gone idle,
// and which model/provider new turns are sent to.
package session

import "sync"

// Status is the lifecycle of the active session.
type Status string

const (
	StatusNone         Status = "none"
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
)

// Context is the thread-safe active-session holder shared by the
// reconciler and the submission coordinator.
type Context struct {
	id     string
	status Status
	idle   bool
	mu     sync.RWMutex
}

// NewContext creates a context with no active session.
func NewContext() *Context {
	return &Context{status: StatusNone, idle: true}
}

// Begin marks id as the active session, still initializing.
func (c *Context) Begin(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
	c.status = StatusInitializing
	c.idle = true
}

// Activate sets id as the active, ready session.
func (c *Context) Activate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
	c.status = StatusReady
	c.idle = true
}

// MarkReady ends initialization of the current session.
func (c *Context) MarkReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.id != "" {
		c.status = StatusReady
	}
}

// Clear drops the active session.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = ""
	c.status = StatusNone
	c.idle = true
}

// ID returns the active session identity, or "".
func (c *Context) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Status returns the lifecycle status.
func (c *Context) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// IsInitializing reports whether the active session is still being set up.
func (c *Context) IsInitializing() bool {
	return c.Status() == StatusInitializing
}

// SetIdle records whether the current turn has fully concluded.
func (c *Context) SetIdle(idle bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idle = idle
}

// IsIdle reports whether the current turn has fully concluded.
func (c *Context) IsIdle() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idle
}
