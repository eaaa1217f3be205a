package server

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brightbyte/minigames/internal/conn"
	"github.com/brightbyte/minigames/internal/lobby"
	"github.com/brightbyte/minigames/internal/wire"
)

// Config bundles every tunable the server core needs, read once at
// startup (spec §9 "ambient, process-wide configuration").
type Config struct {
	ProtocolVersion string

	MaxFrameBytes   int
	OutboxHighWater int
	PingInterval    time.Duration
	PongTimeout     time.Duration
	ConnectTimeout  time.Duration

	IdleLobbyTimeout time.Duration
	ReapInterval     time.Duration
	ChatBacklog      int

	ShutdownDrain time.Duration
}

// Core is the server core of spec §4.6: it owns the connection registry,
// accepts transports, runs the Connect handshake, and then hands every
// subsequent envelope to a Router. One Core per running process.
type Core struct {
	cfg      Config
	registry *conn.Registry
	router   *Router
	logf     func(format string, args ...any)

	group  *errgroup.Group
	gctx   context.Context
	cancel context.CancelFunc
}

// NewCore wires a fresh Core: a connection registry, a Router over a new
// lobby manager and replay manager, and a golang.org/x/sync/errgroup
// group under one cancellable context. The group runs only the idle
// reaper; Accept calls and the Shutdown drain run outside it, and
// Shutdown cancels the context and waits for the group.
func NewCore(cfg Config, logf func(format string, args ...any)) *Core {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	registry := conn.NewRegistry()
	router := NewRouter(registry, cfg.ChatBacklog, cfg.IdleLobbyTimeout, logf)

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	c := &Core{cfg: cfg, registry: registry, router: router, logf: logf, group: group, gctx: gctx, cancel: cancel}
	group.Go(func() error { c.reapLoop(gctx); return nil })
	return c
}

// Router exposes the underlying dispatcher, mainly for tests that want to
// drive Dispatch directly against a fake transport.
func (c *Core) Router() *Router { return c.router }

// Lobby looks a lobby up by id, for the HTTP replay-download and QR
// handlers that sit outside the websocket dispatch path.
func (c *Core) Lobby(id string) (*lobby.Lobby, bool) { return c.router.Lobby(id) }

func (c *Core) reapLoop(ctx context.Context) {
	interval := c.cfg.ReapInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.router.lobbies.ReapIdle()
		}
	}
}

// Accept takes ownership of a freshly opened transport: it starts the
// connection's pumps, runs the bounded Connect handshake (spec §5: "a
// bounded timeout; expiry is a fatal connection error"), registers the
// resulting id, and then dispatches every subsequent inbound envelope
// until the connection is torn down. Blocks until the connection closes;
// callers should run it in its own goroutine per accepted transport.
func (c *Core) Accept(t conn.Transport) {
	tmpID := uuid.NewString()
	handshakeConn := conn.New(tmpID, t, c.cfg.ProtocolVersion, c.cfg.OutboxHighWater, c.cfg.MaxFrameBytes)
	handshakeConn.Start(c.cfg.PingInterval, c.cfg.PongTimeout)

	clientID, ok := c.handshake(handshakeConn)
	if !ok {
		handshakeConn.Close("handshake failed")
		return
	}
	handshakeConn.ID = clientID

	if !c.registry.Add(clientID, handshakeConn) {
		handshakeConn.Send(wire.NewErrorMessage(wire.ErrIDInUse, "client id already connected"))
		handshakeConn.Close("id in use")
		return
	}
	defer func() {
		c.registry.Remove(clientID, handshakeConn)
		c.router.handleDisconnect(clientID)
	}()

	c.dispatchLoop(handshakeConn)
}

func (c *Core) handshake(conn0 *conn.Connection) (string, bool) {
	timeout := c.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-conn0.Inbound():
		if !ok {
			return "", false
		}
		if msg.Kind != wire.KindConnect {
			conn0.Send(wire.NewErrorMessage(wire.ErrInvalidRequest, "expected connect"))
			return "", false
		}
		clientID, err := parseConnectRequest(msg.Payload)
		if err != nil || clientID == "" {
			conn0.Send(wire.NewErrorMessage(wire.ErrInvalidRequest, "missing client id"))
			return "", false
		}
		return clientID, true
	case <-timer.C:
		conn0.Send(wire.NewErrorMessage(wire.ErrInvalidRequest, "connect handshake timed out"))
		return "", false
	case <-conn0.Done():
		return "", false
	}
}

func (c *Core) dispatchLoop(conn0 *conn.Connection) {
	for {
		select {
		case msg, ok := <-conn0.Inbound():
			if !ok {
				return
			}
			c.router.Dispatch(conn0, msg)
		case <-conn0.Done():
			return
		case <-c.gctx.Done():
			return
		}
	}
}

// Shutdown broadcasts a terminal Shutdown envelope to every connected
// client, gives them a bounded drain window to disconnect cleanly, closes
// every open lobby and replay room, and stops the background loops.
func (c *Core) Shutdown(ctx context.Context) error {
	drain := c.cfg.ShutdownDrain
	if drain <= 0 {
		drain = 2 * time.Second
	}

	conns := c.registry.Snapshot()
	for _, cn := range conns {
		cn.Close("server shutting down")
	}

	drainCtx, cancel := context.WithTimeout(ctx, drain)
	defer cancel()
	for _, cn := range conns {
		select {
		case <-cn.Done():
		case <-drainCtx.Done():
		}
	}

	c.router.lobbies.Shutdown()
	c.router.replays.Shutdown()
	c.cancel()

	if err := c.group.Wait(); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
