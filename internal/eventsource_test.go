package internal_test

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/volt/internal"
)

func TestEncodeEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		message string
		event   string
		id      uint64
		retry   time.Duration
		want    string
	}{
		{"data only", "hello", "", 0, 0, "data: hello\r\n\r\n"},
		{"all fields", "on", "relay", 42, 3 * time.Second, "retry: 3000\r\nid: 42\r\nevent: relay\r\ndata: on\r\n\r\n"},
		{"multi-line data", "a\nb\r\nc", "", 0, 0, "data: a\r\ndata: b\r\ndata: c\r\n\r\n"},
		{"empty message", "", "ping", 0, 0, "event: ping\r\n\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, string(internal.EncodeEvent(tt.message, tt.event, tt.id, tt.retry)))
		})
	}
}

// startServer serves d with connection tracking, as App.Run does.
func startServer(t *testing.T, d *internal.Dispatcher) *httptest.Server {
	t.Helper()

	srv := httptest.NewUnstartedServer(d)
	srv.Config.ConnContext = d.Conns().ConnContext
	srv.Config.ConnState = d.Conns().ConnState
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}

// readEvent reads lines up to the blank line ending one SSE frame.
func readEvent(t *testing.T, r *bufio.Reader) []string {
	t.Helper()

	var lines []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestEventSource(t *testing.T) {
	t.Parallel()

	es := internal.NewEventSource(nil)
	t.Cleanup(func() { _ = es.Close(context.Background()) })

	var (
		opened atomic.Pointer[internal.EventSourceClient]
		closed atomic.Int32
	)
	es.OnOpen(func(c *internal.EventSourceClient) { opened.Store(c) })
	es.OnClose(func(*internal.EventSourceClient) { closed.Add(1) })

	d := internal.NewDispatcher(internal.DispatcherConfig{
		DefaultHeaders: http.Header{"X-Device": {"volt"}},
	})
	d.GET("/events", es.ServeRequest)
	srv := startServer(t, d)

	nc, err := net.Dial("tcp", srv.Listener.Addr().String())
	require.NoError(t, err)
	defer nc.Close()

	_, err = nc.Write([]byte("GET /events HTTP/1.1\r\nHost: device\r\nLast-Event-ID: 7\r\n\r\n"))
	require.NoError(t, err)

	br := bufio.NewReader(nc)
	resp, err := http.ReadResponse(br, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	require.Equal(t, "volt", resp.Header.Get("X-Device"))

	require.Eventually(t, func() bool { return es.Len() == 1 && opened.Load() != nil }, 2*time.Second, 10*time.Millisecond)
	c := opened.Load()
	require.Equal(t, uint64(7), c.LastEventID())

	require.Zero(t, es.Send("hello\nworld", "greeting", 8, 0))
	require.Equal(t, []string{"id: 8", "event: greeting", "data: hello", "data: world"}, readEvent(t, br))

	require.NoError(t, c.Send("direct", "", 0, time.Second))
	require.Equal(t, []string{"retry: 1000", "data: direct"}, readEvent(t, br))

	require.NoError(t, es.SendTo(c.ID(), "again", "", 9, 0))
	require.Equal(t, []string{"id: 9", "data: again"}, readEvent(t, br))

	require.ErrorIs(t, es.SendTo("missing", "x", "", 0, 0), internal.ErrClientNotFound)

	// The peer going away removes the client.
	require.NoError(t, nc.Close())
	require.Eventually(t, func() bool { return es.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, int32(1), closed.Load())
	require.True(t, c.Closed())
}

func TestEventSource_CloseDisconnectsClients(t *testing.T) {
	t.Parallel()

	es := internal.NewEventSource(nil, internal.WithEventWriteTimeout(time.Second))
	d := internal.NewDispatcher(internal.DispatcherConfig{})
	d.GET("/events", es.ServeRequest)
	srv := startServer(t, d)

	nc, err := net.Dial("tcp", srv.Listener.Addr().String())
	require.NoError(t, err)
	defer nc.Close()
	_, err = nc.Write([]byte("GET /events HTTP/1.1\r\nHost: device\r\n\r\n"))
	require.NoError(t, err)

	br := bufio.NewReader(nc)
	_, err = http.ReadResponse(br, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return es.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, es.Close(ctx))
	require.Zero(t, es.Len())

	_ = nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = br.ReadByte()
	require.Error(t, err, "server side must be closed")
}
