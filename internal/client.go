package internal

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dmitrymomot/volt/pkg/logger"
)

// ClientState is handler-specific state attached to a long-lived client.
// EventSourceState and WebSocketState are the two implementations.
type ClientState interface {
	clientState()
	close() error
}

// Client is one long-lived connection owned by a streaming handler.
type Client struct {
	state    ClientState
	conn     *Conn
	values   map[string]any
	id       string
	remote   string
	writeMu  sync.Mutex
	valuesMu sync.RWMutex
	closed   atomic.Bool
}

func newClient(conn *Conn, remote string, state ClientState) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		remote: remote,
		state:  state,
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() string {
	return c.id
}

// Conn returns the connection the client was opened on.
func (c *Client) Conn() *Conn {
	return c.conn
}

// RemoteAddr returns the peer address.
func (c *Client) RemoteAddr() string {
	return c.remote
}

// State returns the handler-specific state.
func (c *Client) State() ClientState {
	return c.state
}

// Closed reports whether the client has been removed.
func (c *Client) Closed() bool {
	return c.closed.Load()
}

// Set attaches an application value to the client.
func (c *Client) Set(key string, v any) {
	c.valuesMu.Lock()
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = v
	c.valuesMu.Unlock()
}

// Value returns an application value set with Set.
func (c *Client) Value(key string) any {
	c.valuesMu.RLock()
	defer c.valuesMu.RUnlock()
	return c.values[key]
}

// ClientRegistry tracks the live clients of one handler. Each client is
// closed at most once, whether by its transport or by a failed send.
type ClientRegistry struct {
	logger  *slog.Logger
	byID    map[string]*Client
	byConn  map[string]*Client
	onOpen  []func(*Client)
	onClose []func(*Client)
	order   []*Client
	mu      sync.RWMutex
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry(log *slog.Logger) *ClientRegistry {
	if log == nil {
		log = logger.NewNope()
	}
	return &ClientRegistry{
		logger: log,
		byID:   make(map[string]*Client),
		byConn: make(map[string]*Client),
	}
}

// OnOpen registers a callback for new clients.
func (r *ClientRegistry) OnOpen(fn func(*Client)) {
	r.mu.Lock()
	r.onOpen = append(r.onOpen, fn)
	r.mu.Unlock()
}

// OnClose registers a callback for removed clients. It runs once per
// client, before the client leaves the registry.
func (r *ClientRegistry) OnClose(fn func(*Client)) {
	r.mu.Lock()
	r.onClose = append(r.onClose, fn)
	r.mu.Unlock()
}

// Add registers c and runs the open callbacks. It reports false if a client
// with the same ID is already registered.
func (r *ClientRegistry) Add(c *Client) bool {
	r.mu.Lock()
	if _, ok := r.byID[c.id]; ok {
		r.mu.Unlock()
		return false
	}
	r.insertLocked(c)
	callbacks := append(([]func(*Client))(nil), r.onOpen...)
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(c)
	}
	return true
}

func (r *ClientRegistry) insertLocked(c *Client) {
	r.byID[c.id] = c
	if c.conn != nil {
		r.byConn[c.conn.ID] = c
	}
	r.order = append(r.order, c)
}

// CheckForNewClient returns the client already bound to conn, or builds
// one with create, registers it and reports true.
func (r *ClientRegistry) CheckForNewClient(conn *Conn, create func() *Client) (*Client, bool) {
	r.mu.Lock()
	if c, ok := r.byConn[conn.ID]; ok {
		r.mu.Unlock()
		return c, false
	}
	c := create()
	r.insertLocked(c)
	callbacks := append(([]func(*Client))(nil), r.onOpen...)
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(c)
	}
	return c, true
}

// Remove closes and unregisters the client with the given ID. Close
// callbacks run first. Removing an unknown or already removed client is a
// no-op that reports false.
func (r *ClientRegistry) Remove(id string) bool {
	r.mu.RLock()
	c, ok := r.byID[id]
	callbacks := append(([]func(*Client))(nil), r.onClose...)
	r.mu.RUnlock()
	if !ok || !c.closed.CompareAndSwap(false, true) {
		return false
	}

	for _, fn := range callbacks {
		fn(c)
	}

	r.mu.Lock()
	delete(r.byID, c.id)
	if c.conn != nil && r.byConn[c.conn.ID] == c {
		delete(r.byConn, c.conn.ID)
	}
	for i, cur := range r.order {
		if cur == c {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if c.state != nil {
		if err := c.state.close(); err != nil {
			r.logger.Debug("client transport close failed",
				slog.String("client_id", c.id),
				slog.Any("error", err))
		}
	}
	return true
}

// Get returns the client with the given ID.
func (r *ClientRegistry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// Len returns the number of registered clients.
func (r *ClientRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Clients returns a snapshot of the registered clients in open order.
func (r *ClientRegistry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Client(nil), r.order...)
}

// Each calls fn for a snapshot of the clients.
func (r *ClientRegistry) Each(fn func(*Client)) {
	for _, c := range r.Clients() {
		fn(c)
	}
}

// Broadcast calls send for every live client, then removes the clients
// whose send failed. Removal happens after the iteration, so send never
// sees the registry change under it. It returns the number of failures.
func (r *ClientRegistry) Broadcast(send func(*Client) error) int {
	var failed []*Client
	for _, c := range r.Clients() {
		if c.Closed() {
			continue
		}
		if err := send(c); err != nil {
			r.logger.Debug("broadcast send failed",
				slog.String("client_id", c.id),
				slog.Any("error", err))
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		r.Remove(c.id)
	}
	return len(failed)
}

// Close removes every client.
func (r *ClientRegistry) Close() {
	for _, c := range r.Clients() {
		r.Remove(c.id)
	}
}
