// Package session implements the per-game tick scheduler (spec §4.3): it
// owns one rules.Module instance, the ordered seat list, the dense action
// log, and drives the rule module deterministically from queued inputs,
// broadcasting state to whichever viewers its owner (the lobby) currently
// reports.
package session

import "github.com/brightbyte/minigames/internal/wire"

// Viewer is anything the engine can push a ServerMessage to without
// blocking. *conn.Connection satisfies this directly; it never blocks the
// caller (spec §4.1), which is what lets the engine's single run loop
// fan out state updates without risking a slow viewer stalling the tick.
type Viewer interface {
	Send(msg *wire.ServerMessage)
}
