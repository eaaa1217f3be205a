package conn

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/brightbyte/minigames/internal/wire"
)

// Connection is the durable, typed, bidirectional channel the rest of the
// system sees for one client (spec §4.1). It owns exactly one reader
// goroutine and one writer goroutine; callers talk to it only through
// Send/Inbound/Close.
type Connection struct {
	ID        string
	transport Transport

	expectedVersion string
	maxFrameBytes   int
	highWater       int

	outbox chan *wire.ServerMessage
	inbox  chan *wire.ClientMessage

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  atomic.Value // string

	rttMu sync.Mutex
	rtt   time.Duration

	lastActivity atomic.Int64 // unix nanoseconds
	pendingPingAt atomic.Int64
}

// New constructs a Connection over t. Start must be called to begin
// pumping frames.
func New(id string, t Transport, expectedVersion string, highWater, maxFrameBytes int) *Connection {
	return &Connection{
		ID:              id,
		transport:       t,
		expectedVersion: expectedVersion,
		maxFrameBytes:   maxFrameBytes,
		highWater:       highWater,
		outbox:          make(chan *wire.ServerMessage, highWater),
		inbox:           make(chan *wire.ClientMessage, highWater),
		closed:          make(chan struct{}),
	}
}

// Inbound returns the channel of inbound envelopes, in arrival order.
// Closed when the connection is torn down.
func (c *Connection) Inbound() <-chan *wire.ClientMessage {
	return c.inbox
}

// Done is closed once the connection has been torn down.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

// CloseReason reports why the connection was torn down, if it has been.
func (c *Connection) CloseReason() string {
	if v := c.closeErr.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Send enqueues an outbound envelope. It never blocks: a full outbox
// means an unhealthy (slow) consumer, and the connection is torn down
// instead, per spec §4.1's "never block the session engine on network
// back-pressure" rule. Safe to call after Close (silently dropped).
func (c *Connection) Send(msg *wire.ServerMessage) {
	select {
	case <-c.closed:
		return
	default:
	}
	select {
	case c.outbox <- msg:
	default:
		c.teardown("outbox overflow")
	}
}

// Close sends a terminal Shutdown envelope (best effort) and tears the
// connection down.
func (c *Connection) Close(reason string) {
	select {
	case <-c.closed:
		return
	default:
	}
	m := wire.NewMsg()
	m.SetString(1, reason)
	c.Send(&wire.ServerMessage{Kind: wire.KindShutdown, Payload: m.Marshal()})
	c.teardown(reason)
}

func (c *Connection) teardown(reason string) {
	c.closeOnce.Do(func() {
		c.closeErr.Store(reason)
		close(c.closed)
		_ = c.transport.Close()
	})
}

// RTT returns the most recently observed ping/pong round-trip time.
func (c *Connection) RTT() time.Duration {
	c.rttMu.Lock()
	defer c.rttMu.Unlock()
	return c.rtt
}

func (c *Connection) setRTT(d time.Duration) {
	c.rttMu.Lock()
	c.rtt = d
	c.rttMu.Unlock()
}

// Start launches the reader and writer pumps, plus the liveness pinger if
// interval > 0. It returns immediately; teardown happens asynchronously on
// transport error, version mismatch, oversize frame, or an explicit Close.
func (c *Connection) Start(pingInterval, pongTimeout time.Duration) {
	c.lastActivity.Store(time.Now().UnixNano())
	go c.readPump()
	go c.writePump()
	if pingInterval > 0 {
		go c.livenessLoop(pingInterval, pongTimeout)
	}
}

func (c *Connection) readPump() {
	defer func() {
		close(c.inbox)
		c.teardown("read error")
	}()

	for {
		payload, err := c.transport.ReadFrame()
		if err != nil {
			return
		}

		msg, err := wire.UnmarshalClientMessage(payload)
		if err != nil {
			c.Send(wire.NewErrorMessage(wire.ErrInternal, "malformed envelope"))
			return
		}

		if msg.Version != c.expectedVersion {
			c.Send(wire.NewErrorMessage(wire.ErrVersionMismatch, "protocol version mismatch"))
			c.teardown("version mismatch")
			return
		}

		c.lastActivity.Store(time.Now().UnixNano())

		if msg.Kind == wire.KindPing {
			c.handlePing(msg)
			continue
		}

		select {
		case c.inbox <- msg:
		case <-c.closed:
			return
		}
	}
}

func (c *Connection) writePump() {
	for {
		select {
		case msg, ok := <-c.outbox:
			if !ok {
				return
			}
			if err := c.transport.WriteFrame(msg.Marshal()); err != nil {
				c.teardown("write error")
				return
			}
		case <-c.closed:
			return
		}
	}
}
