package admin

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/filecoin-project/go-jsonrpc"

	"github.com/chordmesh/ringsnode/internal/chord"
	"github.com/chordmesh/ringsnode/internal/handler"
	"github.com/chordmesh/ringsnode/internal/swarm"
	"github.com/chordmesh/ringsnode/internal/util"
)

// Server is the admin JSON-RPC listener. It is a thin wrapper over
// go-jsonrpc's own http.Handler, adding a bearer-token gate in front of it.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds an admin server over ring/sw/h, bound to addr (a zero
// port lets the OS pick a free port, matching how internal/bootstrap picks
// its own listener). token gates every call via the Authorization header;
// an empty token leaves the endpoint open.
func NewServer(addr, token string, ring *chord.Ring, sw *swarm.Swarm, h *handler.Handler) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("admin: listen on %s: %w", addr, err)
	}

	rpcServer := jsonrpc.NewServer()
	rpcServer.Register("Admin", NewAPI(ring, sw, h))

	mux := http.NewServeMux()
	mux.Handle("/rpc/v0", requireToken(token, rpcServer))

	return &Server{
		httpServer: &http.Server{Handler: mux},
		listener:   listener,
	}, nil
}

// Addr returns the listener's actual bound address, useful when addr was
// passed with a zero port.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is cancelled, then shuts the HTTP server down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		util.LogInfo("admin: shutting down")
		return s.httpServer.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
