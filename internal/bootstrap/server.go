package bootstrap

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// server is the host-side WebSocket listener used to wait for the first
// bootstrap peer: listen on a random port, accept exactly one connection,
// reject the rest.
type server struct {
	listener net.Listener
	connCh   chan *websocket.Conn
}

func newServer() *server {
	return &server{connCh: make(chan *websocket.Conn, 1)}
}

// start listens on addr (":0" for a random port) and returns the bound
// address.
func (s *server) start(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("bootstrap: start listener: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/bootstrap", s.handleWS)
	go func() {
		_ = http.Serve(listener, mux)
	}()

	return listener.Addr().String(), nil
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	select {
	case s.connCh <- conn:
	default:
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bootstrap already in progress"))
		conn.Close()
	}
}

// waitForClient blocks until the first peer connects or ctx is cancelled.
func (s *server) waitForClient(ctx context.Context) (*websocket.Conn, error) {
	select {
	case conn := <-s.connCh:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *server) close() {
	if s.listener != nil {
		s.listener.Close()
	}
}

// dial connects to a bootstrap server's WebSocket endpoint.
func dial(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: dial %s: %w", wsURL, err)
	}
	return conn, nil
}
