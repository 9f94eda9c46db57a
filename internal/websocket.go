package internal

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket timeouts and limits.
const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 16 * 1024
)

// Frame types, as defined by RFC 6455.
const (
	TextFrame   = websocket.TextMessage
	BinaryFrame = websocket.BinaryMessage
)

// Frame is one complete data message received from a client.
type Frame struct {
	Data []byte
	Type int
}

// WebSocketState is the per-client state of a WebSocket connection.
type WebSocketState struct {
	conn        *websocket.Conn
	done        chan struct{}
	subprotocol string
}

func (*WebSocketState) clientState() {}

func (s *WebSocketState) close() error {
	close(s.done)
	return s.conn.Close()
}

// Subprotocol returns the negotiated subprotocol, if any.
func (s *WebSocketState) Subprotocol() string {
	return s.subprotocol
}

// WebSocketStateOf returns c's WebSocket state, if c is a WebSocket client.
func WebSocketStateOf(c *Client) (*WebSocketState, bool) {
	st, ok := c.state.(*WebSocketState)
	return st, ok
}

// WebSocketClient is a connected WebSocket client.
type WebSocketClient struct {
	*Client
	ws *WebSocket
}

// Send writes one message to this client. A failed write removes it.
func (c *WebSocketClient) Send(frameType int, data []byte) error {
	if err := c.ws.write(c.Client, frameType, data); err != nil {
		c.ws.registry.Remove(c.id)
		return err
	}
	return nil
}

// SendText writes a text message.
func (c *WebSocketClient) SendText(s string) error {
	return c.Send(TextFrame, []byte(s))
}

// WebSocketOption configures a WebSocket handler.
type WebSocketOption func(*WebSocket)

// WithSubprotocols sets the subprotocols the server offers.
func WithSubprotocols(protocols ...string) WebSocketOption {
	return func(ws *WebSocket) {
		ws.upgrader.Subprotocols = protocols
	}
}

// WithCheckOrigin replaces the same-origin check done on upgrade.
func WithCheckOrigin(fn func(r *http.Request) bool) WebSocketOption {
	return func(ws *WebSocket) {
		ws.upgrader.CheckOrigin = fn
	}
}

// WithMaxMessageSize caps incoming messages.
func WithMaxMessageSize(n int64) WebSocketOption {
	return func(ws *WebSocket) {
		if n > 0 {
			ws.maxMessage = n
		}
	}
}

// WebSocket is a handler that upgrades requests and keeps the resulting
// connections.
type WebSocket struct {
	registry   *ClientRegistry
	logger     *slog.Logger
	onOpen     func(*WebSocketClient)
	onFrame    func(*WebSocketClient, Frame) error
	onClose    func(*WebSocketClient)
	upgrader   websocket.Upgrader
	maxMessage int64
}

// NewWebSocket creates a WebSocket handler.
func NewWebSocket(log *slog.Logger, opts ...WebSocketOption) *WebSocket {
	ws := &WebSocket{
		registry:   NewClientRegistry(log),
		maxMessage: wsMaxMessageSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	ws.logger = ws.registry.logger
	for _, opt := range opts {
		opt(ws)
	}

	ws.registry.OnOpen(func(c *Client) {
		if ws.onOpen != nil {
			ws.onOpen(ws.wrap(c))
		}
	})
	ws.registry.OnClose(func(c *Client) {
		if ws.onClose != nil {
			ws.onClose(ws.wrap(c))
		}
		if c.conn != nil {
			c.conn.Release(context.Background())
		}
	})
	return ws
}

func (ws *WebSocket) wrap(c *Client) *WebSocketClient {
	return &WebSocketClient{Client: c, ws: ws}
}

// OnOpen sets the callback for new clients. Set it before serving.
func (ws *WebSocket) OnOpen(fn func(*WebSocketClient)) *WebSocket {
	ws.onOpen = fn
	return ws
}

// OnFrame sets the callback for incoming messages. Returning an error
// closes the client. Set it before serving.
func (ws *WebSocket) OnFrame(fn func(*WebSocketClient, Frame) error) *WebSocket {
	ws.onFrame = fn
	return ws
}

// OnClose sets the callback for departing clients. Set it before serving.
func (ws *WebSocket) OnClose(fn func(*WebSocketClient)) *WebSocket {
	ws.onClose = fn
	return ws
}

// Len returns the number of connected clients.
func (ws *WebSocket) Len() int {
	return ws.registry.Len()
}

// Client returns the connected client with the given ID.
func (ws *WebSocket) Client(id string) (*WebSocketClient, bool) {
	c, ok := ws.registry.Get(id)
	if !ok {
		return nil, false
	}
	return ws.wrap(c), true
}

// ServeRequest upgrades the connection and starts the client's read and
// ping loops. A failed upgrade has already answered the request.
func (ws *WebSocket) ServeRequest(req *Request, res *Response) error {
	conn, err := ws.upgrader.Upgrade(res.Writer(), req.HTTP(), res.mergedHeader())
	if err != nil {
		req.Logger().DebugContext(req.Context(), "websocket upgrade failed", slog.Any("error", err))
		return nil
	}
	_ = conn.UnderlyingConn().SetDeadline(time.Time{})
	conn.SetReadLimit(ws.maxMessage)

	c := newClient(req.Conn(), req.RemoteAddr(), &WebSocketState{
		conn:        conn,
		done:        make(chan struct{}),
		subprotocol: conn.Subprotocol(),
	})
	ws.registry.Add(c)

	go ws.readPump(c)
	go ws.pingPump(c)
	return nil
}

func (ws *WebSocket) readPump(c *Client) {
	defer ws.registry.Remove(c.id)

	st, _ := WebSocketStateOf(c)
	_ = st.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	st.conn.SetPongHandler(func(string) error {
		return st.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		mt, data, err := st.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Debug("websocket read failed",
					slog.String("client_id", c.id),
					slog.Any("error", err))
			}
			return
		}
		if ws.onFrame == nil {
			continue
		}
		if err := ws.onFrame(ws.wrap(c), Frame{Type: mt, Data: data}); err != nil {
			ws.logger.Debug("websocket frame handler failed",
				slog.String("client_id", c.id),
				slog.Any("error", err))
			_ = ws.writeControl(c, websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "handler error"))
			return
		}
	}
}

func (ws *WebSocket) pingPump(c *Client) {
	st, _ := WebSocketStateOf(c)
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-st.done:
			return
		case <-ticker.C:
			if err := ws.writeControl(c, websocket.PingMessage, nil); err != nil {
				ws.registry.Remove(c.id)
				return
			}
		}
	}
}

func (ws *WebSocket) write(c *Client, frameType int, data []byte) error {
	st, ok := WebSocketStateOf(c)
	if !ok {
		return ErrClientNotFound
	}
	if c.Closed() {
		return ErrClientClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = st.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return st.conn.WriteMessage(frameType, data)
}

func (ws *WebSocket) writeControl(c *Client, messageType int, data []byte) error {
	st, ok := WebSocketStateOf(c)
	if !ok {
		return ErrClientNotFound
	}
	return st.conn.WriteControl(messageType, data, time.Now().Add(wsWriteWait))
}

// SendAll writes one message to every client and removes those whose write
// failed. It returns the number of removed clients.
func (ws *WebSocket) SendAll(frameType int, data []byte) int {
	return ws.registry.Broadcast(func(c *Client) error {
		return ws.write(c, frameType, data)
	})
}

// SendAllText writes a text message to every client.
func (ws *WebSocket) SendAllText(s string) int {
	return ws.SendAll(TextFrame, []byte(s))
}

// SendTo writes one message to a single client.
func (ws *WebSocket) SendTo(clientID string, frameType int, data []byte) error {
	c, ok := ws.Client(clientID)
	if !ok {
		return ErrClientNotFound
	}
	return c.Send(frameType, data)
}

// Close disconnects every client.
func (ws *WebSocket) Close(context.Context) error {
	ws.registry.Close()
	return nil
}
