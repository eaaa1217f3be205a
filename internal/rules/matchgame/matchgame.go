// Package matchgame implements a cooperative pair-match puzzle: a grid of
// face-down cards drawn from a seeded, shuffled deck of symbol pairs.
// Players take turns revealing two cards; a match stays face-up and
// scores the whole team a point, a mismatch flips back face-down and
// passes the turn to the next player. Exhausted slots are refilled from
// a seeded reserve deck so the board always has symbols to flip until
// the reserve itself runs dry, at which point matching out the
// remaining board ends the game. Any player may spend a shared, capped
// pool of hints to briefly reveal one unmatched pair.
package matchgame

import (
	"math/rand"
	"time"

	"github.com/brightbyte/minigames/internal/rules"
	"github.com/brightbyte/minigames/internal/wire"
)

// Kind is this module's registry key.
const Kind rules.Kind = "match_game"

func init() {
	rules.Register(Kind, New)
}

const (
	fieldPairs    = 1
	fieldHints    = 2
	fieldReserves = 3 // extra pairs available to refill exhausted slots

	fieldInputSlot = 1 // single-slot reveal; two inputs per turn
	fieldInputHint = 2 // spend one hint instead of revealing a slot

	fieldStateSymbol  = 1 // repeated: board symbol per slot, -1 if empty
	fieldStateRevealed = 2 // repeated bool-as-varint: face-up this instant
	fieldStateMatched  = 3 // repeated bool-as-varint: permanently matched
	fieldStateTurn     = 4
	fieldStateHints    = 5
	fieldStateScore    = 6
	fieldStateOver     = 7
)

// Settings encodes a match-game configuration: pairs is the number of
// distinct symbols on the initial board (board size = pairs*2), hints is
// the shared hint pool, reserves is the number of extra pairs held back
// to refill exhausted slots.
func Settings(pairs, hints, reserves int) []byte {
	m := wire.NewMsg()
	m.SetVarint(fieldPairs, uint64(pairs))
	m.SetVarint(fieldHints, uint64(hints))
	m.SetVarint(fieldReserves, uint64(reserves))
	return m.Marshal()
}

// RevealInput encodes revealing one board slot.
func RevealInput(slot int) []byte {
	m := wire.NewMsg()
	m.SetVarint(fieldInputSlot, uint64(slot))
	return m.Marshal()
}

// HintInput encodes spending one hint to briefly reveal an unmatched pair.
// Any player may send it, regardless of whose turn it is.
func HintInput() []byte {
	m := wire.NewMsg()
	m.SetBool(fieldInputHint, true)
	return m.Marshal()
}

type settings struct {
	pairs, hints, reserves int
}

func parseSettings(b []byte) (settings, error) {
	s := settings{pairs: 8, hints: 3, reserves: 4}
	if len(b) == 0 {
		return s, nil
	}
	m, err := wire.Unmarshal(b)
	if err != nil {
		return s, rules.InvalidSettings("malformed settings: %v", err)
	}
	if v, ok := m.GetVarint(fieldPairs); ok {
		s.pairs = int(v)
	}
	if v, ok := m.GetVarint(fieldHints); ok {
		s.hints = int(v)
	}
	if v, ok := m.GetVarint(fieldReserves); ok {
		s.reserves = int(v)
	}
	if s.pairs < 2 {
		return s, rules.InvalidSettings("pairs must be >= 2, got %d", s.pairs)
	}
	if s.hints < 0 {
		return s, rules.InvalidSettings("hints must be >= 0, got %d", s.hints)
	}
	if s.reserves < 0 {
		return s, rules.InvalidSettings("reserves must be >= 0, got %d", s.reserves)
	}
	return s, nil
}

const emptySlot = -1

type board struct {
	symbols  []int // per-slot symbol id; never set to emptySlot (Snapshot reports emptySlot for matched slots once the reserve is spent)
	revealed []bool
	matched  []bool
	reserve  []int // remaining refill symbols, consumed from the tail

	players []rules.PlayerSeat
	turn    int
	pending []int // slots revealed so far this turn (0, 1, or 2 before resolution)
	hints   int
	hintRev []int // slots temporarily revealed by a hint, cleared next Step
	score   int64
	over    bool
	paused  bool
}

// New constructs a match-game instance. Any number of cooperating
// players is accepted.
func New(settingsBytes []byte, seed uint64, players []rules.PlayerSeat) (rules.Module, error) {
	s, err := parseSettings(settingsBytes)
	if err != nil {
		return nil, err
	}
	if len(players) < 1 {
		return nil, rules.InvalidSettings("match_game requires at least 1 player, got %d", len(players))
	}

	rng := rules.NewRand(seed)
	boardSymbols := make([]int, 0, s.pairs*2)
	for i := 0; i < s.pairs; i++ {
		boardSymbols = append(boardSymbols, i, i)
	}
	shuffle(rng, boardSymbols)

	reserveSymbols := make([]int, 0, s.reserves*2)
	for i := 0; i < s.reserves; i++ {
		reserveSymbols = append(reserveSymbols, s.pairs+i, s.pairs+i)
	}
	shuffle(rng, reserveSymbols)

	return &board{
		symbols:  boardSymbols,
		revealed: make([]bool, len(boardSymbols)),
		matched:  make([]bool, len(boardSymbols)),
		reserve:  reserveSymbols,
		players:  players,
		hints:    s.hints,
	}, nil
}

// shuffle performs a Fisher-Yates shuffle, consuming rng high-to-low so
// deck order is fully determined by the seed alone.
func shuffle(rng *rand.Rand, v []int) {
	for i := len(v) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		v[i], v[j] = v[j], v[i]
	}
}

func (b *board) TickInterval() time.Duration { return 0 }

func (b *board) PlayerBounds() rules.PlayerBounds { return rules.PlayerBounds{Min: 1, Max: 6} }

func (b *board) ApplyInput(tick uint64, playerIndex int, input []byte) error {
	if b.over {
		return rules.Rejected("game_over")
	}
	if b.paused {
		return rules.Rejected("paused")
	}
	m, err := wire.Unmarshal(input)
	if err != nil {
		return rules.Rejected("malformed_input")
	}
	if m.GetBool(fieldInputHint) {
		return b.spendHint()
	}
	if playerIndex != b.turn {
		return rules.Rejected("not_your_turn")
	}
	slot64, _ := m.GetVarint(fieldInputSlot)
	slot := int(slot64)
	if slot < 0 || slot >= len(b.symbols) {
		return rules.Rejected("out_of_bounds")
	}
	if b.matched[slot] || b.revealed[slot] {
		return rules.Rejected("slot_unavailable")
	}
	for _, p := range b.pending {
		if p == slot {
			return rules.Rejected("slot_unavailable")
		}
	}

	b.revealed[slot] = true
	b.pending = append(b.pending, slot)
	return nil
}

// spendHint reveals one unmatched, currently face-down pair for a single
// tick, shared across the whole team rather than gated by turn order.
func (b *board) spendHint() error {
	if b.hints <= 0 {
		return rules.Rejected("no_hints_left")
	}
	a, c := b.findUnmatchedPair()
	if a < 0 {
		return rules.Rejected("no_pairs_to_hint")
	}
	b.hints--
	b.revealed[a] = true
	b.revealed[c] = true
	b.hintRev = []int{a, c}
	return nil
}

// findUnmatchedPair returns the first two face-down, unmatched slots that
// share a symbol, in board order, or (-1, -1) if none remain.
func (b *board) findUnmatchedPair() (int, int) {
	firstSeen := make(map[int]int)
	for i, s := range b.symbols {
		if b.matched[i] || b.revealed[i] {
			continue
		}
		if first, ok := firstSeen[s]; ok {
			return first, i
		}
		firstSeen[s] = i
	}
	return -1, -1
}

// Disconnect pauses the game rather than forfeiting it: match_game is
// cooperative, so the remaining players have no opponent to forfeit to
// (spec §9 open question, resolved for match_game as pause). ApplyInput
// rejects all further reveals until play resumes; nothing in the core
// currently resumes it automatically, since reconnection is out of scope.
func (b *board) Disconnect(playerIndex int) {
	if b.over {
		return
	}
	b.paused = true
}

func (b *board) Step(tick uint64, rng *rand.Rand) rules.StepOutcome {
	if b.over {
		return rules.Continuing
	}
	if len(b.hintRev) == 2 {
		b.revealed[b.hintRev[0]] = false
		b.revealed[b.hintRev[1]] = false
		b.hintRev = nil
	}
	if len(b.pending) < 2 {
		return rules.Continuing
	}

	a, c := b.pending[0], b.pending[1]
	b.pending = nil
	if b.symbols[a] == b.symbols[c] {
		b.matched[a] = true
		b.matched[c] = true
		b.score++
		b.refill(a, rng)
		b.refill(c, rng)
	} else {
		b.revealed[a] = false
		b.revealed[c] = false
	}
	b.turn = (b.turn + 1) % len(b.players)

	if b.boardExhausted() {
		b.over = true
		return rules.StepOutcome{Over: true, Winner: "", Scores: b.finalScores()}
	}
	return rules.Continuing
}

// refill replaces a permanently matched slot with a fresh reserve symbol
// so players keep playing until the reserve itself is spent.
func (b *board) refill(slot int, rng *rand.Rand) {
	if len(b.reserve) == 0 {
		return
	}
	b.symbols[slot] = b.reserve[len(b.reserve)-1]
	b.reserve = b.reserve[:len(b.reserve)-1]
	b.matched[slot] = false
	b.revealed[slot] = false
}

func (b *board) boardExhausted() bool {
	if len(b.reserve) > 0 {
		return false
	}
	for _, m := range b.matched {
		if !m {
			return false
		}
	}
	return true
}

func (b *board) finalScores() map[string]int64 {
	scores := make(map[string]int64, len(b.players))
	for _, p := range b.players {
		scores[p.PlayerID] = b.score
	}
	return scores
}

func (b *board) Snapshot() []byte {
	m := wire.NewMsg()
	for i, s := range b.symbols {
		if b.matched[i] && len(b.reserve) == 0 {
			m.AddVarint(fieldStateSymbol, uint64(int64(emptySlot)))
			continue
		}
		m.AddVarint(fieldStateSymbol, uint64(s))
	}
	for _, r := range b.revealed {
		v := uint64(0)
		if r {
			v = 1
		}
		m.AddVarint(fieldStateRevealed, v)
	}
	for _, mm := range b.matched {
		v := uint64(0)
		if mm {
			v = 1
		}
		m.AddVarint(fieldStateMatched, v)
	}
	m.SetVarint(fieldStateTurn, uint64(b.turn))
	m.SetVarint(fieldStateHints, uint64(b.hints))
	m.SetInt64(fieldStateScore, b.score)
	m.SetBool(fieldStateOver, b.over)
	return m.Marshal()
}
