// Package rules defines the pluggable Game Rule Module interface (spec
// §4.4) and the registry of concrete game variants. Every implementation
// is pure and deterministic: no I/O, no wall-clock reads, and randomness
// comes only from the session seed: the *rand.Rand the session engine
// passes into Step, and, for modules that randomize their initial board
// (matchgame, mergegame), a generator the constructor builds with
// NewRand(seed). Both are consumed only in documented order.
package rules

import (
	"math/rand"
	"time"
)

// PlayerSeat is one ordered seat in a session's player list (spec §3); the
// action log and replay reference seats by index into this slice, not by
// identity.
type PlayerSeat struct {
	PlayerID string
	IsBot    bool
}

// PlayerBounds is the inclusive seat-count range a rule module accepts
// (used by lobby start()).
type PlayerBounds struct {
	Min, Max int
}

// StepOutcome is the result of one Step call.
type StepOutcome struct {
	Over    bool
	Winner  string           // player id; empty means no winner (draw or n/a)
	Scores  map[string]int64 // player id -> score
	Witness []byte           // rule-module-specific summary, e.g. a winning line
}

// Continuing is the zero StepOutcome value: the game goes on.
var Continuing = StepOutcome{}

// Module is the pure, deterministic core of one game variant (spec §4.4).
type Module interface {
	// TickInterval returns the scheduler cadence, or 0 to mean
	// "on_input_only" (turn-based modules that only advance when a move
	// is applied).
	TickInterval() time.Duration

	// PlayerBounds returns the inclusive seat-count range start()
	// enforces.
	PlayerBounds() PlayerBounds

	// ApplyInput validates and applies one player's input at the given
	// tick. A non-nil error is a Rejected(kind); it never panics on bad
	// input.
	ApplyInput(tick uint64, playerIndex int, input []byte) error

	// Step advances the simulation by one tick, consuming rng only in
	// documented order.
	Step(tick uint64, rng *rand.Rand) StepOutcome

	// Snapshot returns serialized state sufficient to render the game,
	// for broadcast and for late-joining observers.
	Snapshot() []byte
}

// Disconnector is implemented by a rule module that reacts to a seat going
// away mid-game (spec §4.3 Cancellation / §9 open question: forfeit,
// pause, or bot-takeover are all valid, rule-module-defined responses).
// The engine calls Disconnect at the tick a Disconnected action is
// recorded; modules that don't need a reaction simply don't implement it.
type Disconnector interface {
	Disconnect(playerIndex int)
}

// Constructor builds a Module from its settings, seed, and seat list.
type Constructor func(settings []byte, seed uint64, players []PlayerSeat) (Module, error)

// NewRand returns the single seeded source of randomness a session passes
// to its rule module. Kept here so every module derives it identically.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(int64(seed)))
}
