// Package lobby implements the lobby manager of spec §4.2: the global
// lobby directory, the per-lobbyfinite state machine (players, observers,
// readiness, chat, bot seats), and the host-privileged operations that
// drive it, including spawning a session engine on Start and returning to
// a post-game state when one ends.
package lobby

import (
	"time"

	"github.com/brightbyte/minigames/internal/rules"
	"github.com/brightbyte/minigames/internal/session"
)

// State is one node of the lobby finite state machine (spec §3).
type State int

const (
	StateWaiting State = iota
	StateStarting
	StateInGame
	StateGameOver
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateStarting:
		return "starting"
	case StateInGame:
		return "in_game"
	case StateGameOver:
		return "game_over"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Seat is one occupied player slot: an identity plus its readiness flag
// (spec §3 Lobby.players: "ordered sequence of {identity, ready: bool}").
type Seat struct {
	Identity rules.PlayerSeat
	Ready    bool
}

// Settings is the tagged variant identifying a lobby's rule module and its
// configuration (spec §3 Lobby.settings).
type Settings struct {
	Kind  rules.Kind
	Bytes []byte
}

// ChatMessage is one delivered chat entry (spec §4.2 Chat).
type ChatMessage struct {
	Sender           string
	Message          string
	ServerReceivedAt time.Time
}

// Viewer is anything a lobby or session can push a ServerMessage to.
// *conn.Connection satisfies this; it is the same Viewer contract the
// session engine and replay player use, so a connection never needs a
// lobby-specific wrapper.
type Viewer = session.Viewer
