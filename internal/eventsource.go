package internal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultEventWriteTimeout bounds a single SSE frame write.
const DefaultEventWriteTimeout = 5 * time.Second

// EventSourceState is the per-client state of a server-sent events stream.
type EventSourceState struct {
	nc          net.Conn
	bw          *bufio.Writer
	lastEventID uint64
}

func (*EventSourceState) clientState() {}

func (s *EventSourceState) close() error {
	return s.nc.Close()
}

// LastEventID is the Last-Event-ID the client sent when it connected.
func (s *EventSourceState) LastEventID() uint64 {
	return s.lastEventID
}

// EventSourceStateOf returns c's SSE state, if c is an event stream client.
func EventSourceStateOf(c *Client) (*EventSourceState, bool) {
	st, ok := c.state.(*EventSourceState)
	return st, ok
}

// EncodeEvent renders one SSE frame. A zero id or retry and an empty event
// are omitted. Each line of message becomes its own data field.
func EncodeEvent(message, event string, id uint64, retry time.Duration) []byte {
	var b strings.Builder
	if retry > 0 {
		fmt.Fprintf(&b, "retry: %d\r\n", retry.Milliseconds())
	}
	if id > 0 {
		fmt.Fprintf(&b, "id: %d\r\n", id)
	}
	if event != "" {
		b.WriteString("event: ")
		b.WriteString(event)
		b.WriteString("\r\n")
	}
	if message != "" {
		message = strings.ReplaceAll(message, "\r\n", "\n")
		message = strings.ReplaceAll(message, "\r", "\n")
		for _, line := range strings.Split(message, "\n") {
			b.WriteString("data: ")
			b.WriteString(line)
			b.WriteString("\r\n")
		}
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// EventSourceClient is a connected SSE client.
type EventSourceClient struct {
	*Client
	es *EventSource
}

// LastEventID is the Last-Event-ID the client sent when it connected.
func (c *EventSourceClient) LastEventID() uint64 {
	st, _ := EventSourceStateOf(c.Client)
	return st.lastEventID
}

// Send queues one event for this client. A failed write removes the client.
func (c *EventSourceClient) Send(message, event string, id uint64, retry time.Duration) error {
	return c.es.enqueue(c.Client, EncodeEvent(message, event, id, retry))
}

// EventSourceOption configures an EventSource.
type EventSourceOption func(*EventSource)

// WithEventQueue shares an AsyncQueue between handlers. By default each
// EventSource owns one.
func WithEventQueue(q *AsyncQueue) EventSourceOption {
	return func(es *EventSource) {
		es.queue = q
		es.ownQueue = false
	}
}

// WithEventWriteTimeout sets the per-frame write deadline.
func WithEventWriteTimeout(d time.Duration) EventSourceOption {
	return func(es *EventSource) {
		if d > 0 {
			es.writeTimeout = d
		}
	}
}

// EventSource is a handler for text/event-stream endpoints. It keeps the
// connections it accepts and pushes events to them asynchronously.
type EventSource struct {
	registry     *ClientRegistry
	queue        *AsyncQueue
	logger       *slog.Logger
	onOpen       func(*EventSourceClient)
	onClose      func(*EventSourceClient)
	writeTimeout time.Duration
	ownQueue     bool
}

// NewEventSource creates an SSE handler.
func NewEventSource(log *slog.Logger, opts ...EventSourceOption) *EventSource {
	es := &EventSource{
		registry:     NewClientRegistry(log),
		logger:       log,
		writeTimeout: DefaultEventWriteTimeout,
		ownQueue:     true,
	}
	for _, opt := range opts {
		opt(es)
	}
	es.logger = es.registry.logger
	if es.queue == nil {
		es.queue = NewAsyncQueue(DefaultQueueDepth, es.logger)
		es.ownQueue = true
	}

	es.registry.OnOpen(func(c *Client) {
		if es.onOpen != nil {
			es.onOpen(es.wrap(c))
		}
	})
	es.registry.OnClose(func(c *Client) {
		if es.onClose != nil {
			es.onClose(es.wrap(c))
		}
		es.queue.Drop(c.id)
		if c.conn != nil {
			c.conn.Release(context.Background())
		}
	})
	return es
}

func (es *EventSource) wrap(c *Client) *EventSourceClient {
	return &EventSourceClient{Client: c, es: es}
}

// OnOpen sets the callback for new clients. Set it before serving.
func (es *EventSource) OnOpen(fn func(*EventSourceClient)) *EventSource {
	es.onOpen = fn
	return es
}

// OnClose sets the callback for departing clients. Set it before serving.
func (es *EventSource) OnClose(fn func(*EventSourceClient)) *EventSource {
	es.onClose = fn
	return es
}

// Len returns the number of connected clients.
func (es *EventSource) Len() int {
	return es.registry.Len()
}

// Client returns the connected client with the given ID.
func (es *EventSource) Client(id string) (*EventSourceClient, bool) {
	c, ok := es.registry.Get(id)
	if !ok {
		return nil, false
	}
	return es.wrap(c), true
}

// ServeRequest takes over the connection, answers with the event-stream
// headers and registers the client.
func (es *EventSource) ServeRequest(req *Request, res *Response) error {
	nc, rw, err := res.Hijack()
	if err != nil {
		return err
	}
	// The server's per-request deadlines do not apply to a stream.
	_ = nc.SetDeadline(time.Time{})

	if err := es.writeHead(nc, rw.Writer, res); err != nil {
		_ = nc.Close()
		return err
	}

	var lastID uint64
	if v := req.Header("Last-Event-ID"); v != "" {
		lastID, _ = strconv.ParseUint(v, 10, 64)
	}

	c, isNew := es.registry.CheckForNewClient(req.Conn(), func() *Client {
		return newClient(req.Conn(), req.RemoteAddr(), &EventSourceState{
			nc:          nc,
			bw:          rw.Writer,
			lastEventID: lastID,
		})
	})
	if !isNew {
		// A stale client on the same connection; replace it.
		es.registry.Remove(c.id)
		c = newClient(req.Conn(), req.RemoteAddr(), &EventSourceState{nc: nc, bw: rw.Writer, lastEventID: lastID})
		es.registry.Add(c)
	}

	go es.watch(c, rw.Reader)
	return nil
}

func (es *EventSource) writeHead(nc net.Conn, w *bufio.Writer, res *Response) error {
	h := res.mergedHeader()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Del("Content-Length")

	_ = nc.SetWriteDeadline(time.Now().Add(es.writeTimeout))
	defer nc.SetWriteDeadline(time.Time{})

	if _, err := w.WriteString("HTTP/1.1 200 OK\r\n"); err != nil {
		return err
	}
	if err := h.Write(w); err != nil {
		return err
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	return w.Flush()
}

// watch removes the client once the peer closes the connection.
func (es *EventSource) watch(c *Client, r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
	es.registry.Remove(c.id)
}

// write sends frame to c synchronously.
func (es *EventSource) write(c *Client, frame []byte) error {
	st, ok := EventSourceStateOf(c)
	if !ok {
		return ErrClientNotFound
	}
	if c.Closed() {
		return ErrClientClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = st.nc.SetWriteDeadline(time.Now().Add(es.writeTimeout))
	if _, err := st.bw.Write(frame); err != nil {
		return err
	}
	return st.bw.Flush()
}

// enqueue schedules frame for c. A write failure removes c.
func (es *EventSource) enqueue(c *Client, frame []byte) error {
	err := es.queue.Submit(WorkItem{
		Key:   c.id,
		Alive: func() bool { return !c.Closed() },
		Run: func(context.Context) error {
			return es.write(c, frame)
		},
		Done: func(err error) {
			if err != nil && !c.Closed() {
				es.logger.Debug("event delivery failed",
					slog.String("client_id", c.id),
					slog.Any("error", err))
				es.registry.Remove(c.id)
			}
		},
	})
	if errors.Is(err, ErrLaneClosed) {
		return ErrClientClosed
	}
	return err
}

// Send queues an event for every client. Clients whose queue rejects the
// event are removed. It returns the number of removed clients.
func (es *EventSource) Send(message, event string, id uint64, retry time.Duration) int {
	frame := EncodeEvent(message, event, id, retry)
	return es.registry.Broadcast(func(c *Client) error {
		return es.enqueue(c, frame)
	})
}

// SendTo queues an event for one client.
func (es *EventSource) SendTo(clientID, message, event string, id uint64, retry time.Duration) error {
	c, ok := es.registry.Get(clientID)
	if !ok {
		return ErrClientNotFound
	}
	return es.enqueue(c, EncodeEvent(message, event, id, retry))
}

// Close disconnects every client and stops the queue if this EventSource
// owns it.
func (es *EventSource) Close(ctx context.Context) error {
	es.registry.Close()
	if es.ownQueue {
		return es.queue.Close(ctx)
	}
	return nil
}
