// Package node assembles every overlay component — identity, ring,
// transport registry, dispatch handler, stabilization loop, admin surface,
// and bootstrap signaling — into a single runnable process. It is the
// composition root cmd/ringsnode drives; nothing else in this module
// imports it.
package node

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chordmesh/ringsnode/internal/admin"
	"github.com/chordmesh/ringsnode/internal/bootstrap"
	"github.com/chordmesh/ringsnode/internal/cache"
	"github.com/chordmesh/ringsnode/internal/chord"
	"github.com/chordmesh/ringsnode/internal/config"
	"github.com/chordmesh/ringsnode/internal/handler"
	"github.com/chordmesh/ringsnode/internal/identity"
	"github.com/chordmesh/ringsnode/internal/stabilize"
	"github.com/chordmesh/ringsnode/internal/swarm"
	"github.com/chordmesh/ringsnode/internal/util"
)

// Node owns every long-lived component of a single overlay participant.
type Node struct {
	cfg     *config.Config
	ring    *chord.Ring
	swarm   *swarm.Swarm
	handler *handler.Handler
	loop    *stabilize.Loop
	admin   *admin.Server
	cache   *cache.Cache

	bootstrapAddr atomic.Value // string
}

// New wires every component over cfg and binds the admin server's listener,
// but performs no other I/O yet — no ring join, no bootstrap listener. Call
// Run to actually start the node.
func New(ctx context.Context, cfg *config.Config) (*Node, error) {
	session, err := identity.NewSession(cfg.KeyPair, ttlPtr(cfg.SessionTTL))
	if err != nil {
		return nil, fmt.Errorf("node: mint session: %w", err)
	}

	self := cfg.KeyPair.Did()
	ring := chord.NewRing(self)
	sw := swarm.New(session)
	h := handler.New(ctx, ring, sw)

	interval := cfg.StabilizeInterval
	if interval <= 0 {
		interval = stabilize.DefaultInterval
	}
	loop := stabilize.New(ring, sw, h, interval)

	n := &Node{cfg: cfg, ring: ring, swarm: sw, handler: h, loop: loop}

	if cfg.RedisURL != "" {
		c, err := cache.New(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("node: connect cache: %w", err)
		}
		n.cache = c
		util.LogInfo("node: DHT value cache connected at %s", c.DisplayURL())
	}

	adminSrv, err := admin.NewServer(cfg.AdminAddr, cfg.AdminToken, ring, sw, h)
	if err != nil {
		return nil, fmt.Errorf("node: start admin server: %w", err)
	}
	n.admin = adminSrv

	return n, nil
}

// Did returns this node's own overlay identity.
func (n *Node) Did() identity.Did { return n.ring.Id() }

// AdminAddr returns the admin JSON-RPC server's bound address.
func (n *Node) AdminAddr() string { return n.admin.Addr() }

// BootstrapAddr returns the bootstrap websocket listener's bound address,
// once the accept loop has bound it. Empty until then.
func (n *Node) BootstrapAddr() string {
	addr, _ := n.bootstrapAddr.Load().(string)
	return addr
}

// OnCustomMessage registers the application-level callback for inbound
// CustomMessage payloads.
func (n *Node) OnCustomMessage(fn func(origin identity.Did, body []byte)) {
	n.handler.OnCustomMessage(fn)
}

// SendCustomMessage routes an application-level payload toward target.
func (n *Node) SendCustomMessage(target identity.Did, body []byte) {
	n.handler.SendCustomMessage(target, body)
}

// Run joins an existing ring (if cfg.JoinURL is set) or starts a fresh one,
// then blocks, running the admin server, a background bootstrap listener
// for future joiners, the stabilization loop, and the message dispatch loop
// until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	if n.cfg.JoinURL != "" {
		peer, err := bootstrap.EstablishAsClient(ctx, n.cfg.JoinURL, n.swarm)
		if err != nil {
			return fmt.Errorf("node: join via %s: %w", n.cfg.JoinURL, err)
		}
		n.handler.InitiateJoin(peer)
		util.LogSuccess("node: joined ring via %s", peer)
	} else {
		util.LogSuccess("node: started a new ring as %s", n.Did())
	}

	errCh := make(chan error, 2)
	go func() { errCh <- n.admin.Serve(ctx) }()
	go n.loop.Run(ctx)
	go n.dispatchLoop(ctx)
	go n.acceptJoiners(ctx)

	select {
	case <-ctx.Done():
		return n.shutdown()
	case err := <-errCh:
		return err
	}
}

// acceptJoiners repeatedly hosts a bootstrap listener, one joiner at a
// time, so the ring keeps accepting new members for as long as this node
// runs rather than only at startup. Each accepted peer pushes its own
// JoinDHT once connected; this node only has to register the transport.
func (n *Node) acceptJoiners(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		addr, peerDid, err := bootstrap.EstablishAsHost(ctx, n.cfg.ListenAddr, n.swarm)
		if addr != "" && n.BootstrapAddr() == "" {
			n.bootstrapAddr.Store(addr)
			util.LogInfo("node: accepting joiners on %s", addr)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			util.LogWarning("node: bootstrap accept on %s: %v", addr, err)
			continue
		}
		util.LogSuccess("node: %s joined via bootstrap", peerDid)
	}
}

// dispatchLoop drains inbound envelopes from every registered transport and
// hands each to the handler, until ctx is cancelled.
func (n *Node) dispatchLoop(ctx context.Context) {
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()
	for {
		origin, raw, ok := n.swarm.PollMessage(stop)
		if !ok {
			return
		}
		n.handler.HandleEnvelope(origin, raw)
	}
}

func (n *Node) shutdown() error {
	util.LogInfo("node: shutting down")
	for _, did := range n.swarm.Peers() {
		if err := n.swarm.Disconnect(did); err != nil {
			util.LogWarning("node: disconnect %s during shutdown: %v", did, err)
		}
	}
	if n.cache != nil {
		if err := n.cache.Close(); err != nil {
			return fmt.Errorf("node: close cache: %w", err)
		}
	}
	return nil
}

func ttlPtr(d time.Duration) *time.Duration {
	if d <= 0 {
		return nil
	}
	return &d
}
