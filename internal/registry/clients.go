// Package registry implements the two process-wide maps the core
// depends on: the client registry mapping client name to that
// client's write half, and the event registry mapping event name
// to its subscriber list. Both are guarded by a sync.RWMutex so that
// dispatcher goroutines (one per connection) can read and mutate them
// concurrently; no frame is ever written to the
// network while a registry lock is held.
package registry

import (
	"sync"

	"github.com/trt-pos/camelotd/internal/transport"
)

// Client is one entry in the ClientRegistry: a bound name and its
// owned write half, wrapped in its own mutex so concurrent fan-outs
// never interleave bytes on the same socket.
type Client struct {
	Name string

	mu   sync.Mutex
	w    *transport.WriteHalf
}

// WriteFrame writes an already-encoded frame to this client, serialized
// against any other goroutine writing to the same client concurrently
// (an Invoke fan-out racing this client's own response path).
func (c *Client) WriteFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.WriteFrame(frame)
}

// Shutdown closes this client's write half.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Shutdown()
}

// ClientRegistry is the process-wide name -> Client map.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewClientRegistry returns an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Client)}
}

// TryInsert atomically checks for absence and inserts name if free.
// The boolean return is false (NameTaken) if name is already bound; no
// yield point separates the absence check and the insertion other than
// the write-lock acquisition itself.
func (r *ClientRegistry) TryInsert(name string, w *transport.WriteHalf) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.clients[name]; taken {
		return nil, false
	}

	c := &Client{Name: name, w: w}
	r.clients[name] = c
	return c, true
}

// Lookup returns the Client bound to name, if any, under a shared read
// lock.
func (r *ClientRegistry) Lookup(name string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	return c, ok
}

// Remove evicts name from the registry under an exclusive write lock.
// Removing a name that is not present is a no-op.
func (r *ClientRegistry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, name)
}

// Len reports the number of currently registered clients. Intended for
// tests and diagnostics only.
func (r *ClientRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Contains reports whether name is currently registered. Intended for
// tests and diagnostics only.
func (r *ClientRegistry) Contains(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}
