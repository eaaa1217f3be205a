package conn

import (
	"time"

	"github.com/brightbyte/minigames/internal/wire"
)

// handlePing answers a client-initiated Ping (spec §6 ClientMessage arm)
// with a Pong carrying the same id, and records the observed round trip.
func (c *Connection) handlePing(msg *wire.ClientMessage) {
	in, _ := wire.Unmarshal(msg.Payload)
	id, _ := in.GetVarint(1)
	sentAt, hasSentAt := in.GetVarint(2)

	out := wire.NewMsg()
	out.SetVarint(1, id)
	c.Send(&wire.ServerMessage{Kind: wire.KindPong, Payload: out.Marshal()})

	if hasSentAt {
		rtt := time.Duration(uint64(time.Now().UnixNano()) - sentAt)
		if rtt >= 0 {
			c.setRTT(rtt)
		}
	}
}

// livenessLoop watches for a connection that has gone quiet for two ping
// cadences and tears it down (spec §4.1: "no pong within two cadences ⇒
// close"). Liveness is judged on any inbound traffic, since a well-behaved
// client pings on its own cadence; this loop is the server-side backstop
// spec §4.1's prose describes, reconciled with Ping being a client ->
// server envelope in the wire schema (§6).
func (c *Connection) livenessLoop(interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			last := time.Unix(0, c.lastActivity.Load())
			if time.Since(last) > timeout {
				c.teardown("ping timeout")
				return
			}
		}
	}
}
