package internal

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/volt/pkg/logger"
	"github.com/dmitrymomot/volt/pkg/session"
)

type connKey struct{}

// Conn is the per-connection context shared by every request on one
// keep-alive connection. Its session lives exactly as long as the
// connection.
type Conn struct {
	createdAt time.Time
	store     session.Store
	sess      *session.Session
	logger    *slog.Logger
	ID        string
	Remote    string
	mu        sync.Mutex
	released  bool
}

func newConn(remote string, store session.Store, log *slog.Logger) *Conn {
	return &Conn{
		ID:        uuid.NewString(),
		Remote:    remote,
		createdAt: time.Now(),
		store:     store,
		logger:    log,
	}
}

// CreatedAt returns when the connection was accepted.
func (c *Conn) CreatedAt() time.Time {
	return c.createdAt
}

// Session returns the connection's session, opening it from the store on
// first use.
func (c *Conn) Session(ctx context.Context) (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		return c.sess, nil
	}
	s, err := session.Open(ctx, c.store, c.ID)
	if err != nil {
		return nil, err
	}
	c.sess = s
	return s, nil
}

// persist saves dirty session values. A no-op without a store.
func (c *Conn) persist(ctx context.Context) error {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil || c.store == nil {
		return nil
	}
	return session.Persist(ctx, c.store, s)
}

// Release destroys the connection's session. It runs at most once; later
// calls are no-ops.
func (c *Conn) Release(ctx context.Context) {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	s := c.sess
	c.sess = nil
	c.mu.Unlock()

	if s != nil && c.store != nil {
		if err := c.store.Delete(ctx, c.ID); err != nil {
			c.logger.WarnContext(ctx, "session delete failed",
				slog.String("conn_id", c.ID),
				slog.Any("error", err))
		}
	}
}

// WithConn returns a context carrying c.
func WithConn(ctx context.Context, c *Conn) context.Context {
	return context.WithValue(ctx, connKey{}, c)
}

// ConnFromContext returns the connection stored by WithConn, or nil.
func ConnFromContext(ctx context.Context) *Conn {
	c, _ := ctx.Value(connKey{}).(*Conn)
	return c
}

// ConnIDExtractor adds "conn_id" to log records made with a request context.
func ConnIDExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if c := ConnFromContext(ctx); c != nil {
			return slog.String("conn_id", c.ID), true
		}
		return slog.Attr{}, false
	}
}

// ConnTracker binds a Conn to every accepted net.Conn through http.Server's
// ConnContext and ConnState hooks.
type ConnTracker struct {
	store  session.Store
	logger *slog.Logger
	conns  map[net.Conn]*Conn
	mu     sync.Mutex
}

// NewConnTracker creates a tracker whose sessions are kept in store.
// A nil store keeps sessions in memory only.
func NewConnTracker(store session.Store, log *slog.Logger) *ConnTracker {
	if log == nil {
		log = logger.NewNope()
	}
	return &ConnTracker{
		store:  store,
		logger: log,
		conns:  make(map[net.Conn]*Conn),
	}
}

// ConnContext is installed as http.Server.ConnContext.
func (t *ConnTracker) ConnContext(ctx context.Context, nc net.Conn) context.Context {
	c := newConn(nc.RemoteAddr().String(), t.store, t.logger)
	t.mu.Lock()
	t.conns[nc] = c
	t.mu.Unlock()
	return WithConn(ctx, c)
}

// ConnState is installed as http.Server.ConnState. Closed connections have
// their session destroyed. Hijacked connections are handed to their new
// owner, which calls Conn.Release when it is done.
func (t *ConnTracker) ConnState(nc net.Conn, state http.ConnState) {
	switch state {
	case http.StateClosed, http.StateHijacked:
	default:
		return
	}

	t.mu.Lock()
	c := t.conns[nc]
	delete(t.conns, nc)
	t.mu.Unlock()

	if c != nil && state == http.StateClosed {
		c.Release(context.Background())
	}
}

// Ephemeral returns a Conn for a request that arrived without one, such as
// a request served through httptest. The caller releases it.
func (t *ConnTracker) Ephemeral(r *http.Request) *Conn {
	return newConn(r.RemoteAddr, t.store, t.logger)
}

// Len returns the number of tracked open connections.
func (t *ConnTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// Close releases every tracked connection.
func (t *ConnTracker) Close(ctx context.Context) error {
	t.mu.Lock()
	conns := make([]*Conn, 0, len(t.conns))
	for nc, c := range t.conns {
		conns = append(conns, c)
		delete(t.conns, nc)
	}
	t.mu.Unlock()

	for _, c := range conns {
		c.Release(ctx)
	}
	return ctx.Err()
}

// isTimeout reports whether err is a retryable read timeout.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
