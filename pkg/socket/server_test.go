package socket

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lxzan/gws"
	"github.com/stretchr/testify/require"
)

// testServer is a local websocket peer. It greets each connection with
// greeting (when set), records inbound text frames and answers them with
// respond (when set).
type testServer struct {
	gws.BuiltinEventHandler

	greeting string
	respond  func(text string) string

	conns    chan *gws.Conn
	received chan string
	server   *httptest.Server
}

func newTestServer(t *testing.T, greeting string, respond func(string) string) *testServer {
	t.Helper()
	s := &testServer{
		greeting: greeting,
		respond:  respond,
		conns:    make(chan *gws.Conn, 4),
		received: make(chan string, 64),
	}
	upgrader := gws.NewUpgrader(s, &gws.ServerOption{})
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket, err := upgrader.Upgrade(w, r)
		if err != nil {
			return
		}
		go socket.ReadLoop()
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *testServer) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *testServer) OnOpen(socket *gws.Conn) {
	s.conns <- socket
	if s.greeting != "" {
		_ = socket.WriteMessage(gws.OpcodeText, []byte(s.greeting))
	}
}

func (s *testServer) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	text := string(message.Bytes())
	s.received <- text
	if s.respond != nil {
		if out := s.respond(text); out != "" {
			_ = socket.WriteMessage(gws.OpcodeText, []byte(out))
		}
	}
}

// peer returns the server side of the next accepted connection.
func (s *testServer) peer(t *testing.T) *gws.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

// next returns the next frame the server received.
func (s *testServer) next(t *testing.T) string {
	t.Helper()
	select {
	case text := <-s.received:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return ""
	}
}

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case text := <-ch:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("listener not invoked")
		return ""
	}
}

func waitClosed(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not close")
	}
}

func collector() (Handler, chan string) {
	ch := make(chan string, 16)
	return func(m string) { ch <- m }, ch
}

func requireOpen(t *testing.T, c *Connection) {
	t.Helper()
	require.Equal(t, StateOpen, c.State())
}

// newSilentServer upgrades connections but never reads from them, so a close
// frame is never answered.
func newSilentServer(t *testing.T) string {
	t.Helper()
	upgrader := gws.NewUpgrader(&gws.BuiltinEventHandler{}, &gws.ServerOption{})
	var mu sync.Mutex
	var held []*gws.Conn
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket, err := upgrader.Upgrade(w, r)
		if err != nil {
			return
		}
		mu.Lock()
		held = append(held, socket)
		mu.Unlock()
	}))
	t.Cleanup(func() {
		server.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, socket := range held {
			_ = socket.NetConn().Close()
		}
	})
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// newStalledListener accepts TCP connections and never answers the opening
// handshake.
func newStalledListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var held []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			held = append(held, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range held {
			_ = conn.Close()
		}
	})
	return "ws://" + ln.Addr().String()
}
