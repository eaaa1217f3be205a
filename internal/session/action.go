package session

import "time"

// ActionEntry is one dense (tick, player_index) record in a session's
// action log (spec §3 Session.action_log). The stream is dense by
// (tick, player_index), not by tick: a tick with no inputs produces no
// entries.
type ActionEntry struct {
	Tick         uint64
	PlayerIndex  int
	Disconnected bool
	Content      []byte // rule-module command bytes; empty when Disconnected
}

// pendingInput is one queued (not yet applied) input or disconnect,
// timestamped at arrival so the scheduler can order cross-client inputs
// by (receive_instant, player_index) per spec §4.3.
type pendingInput struct {
	playerIndex  int
	receivedAt   time.Time
	disconnected bool
	content      []byte
}
