// Package stackgame implements a side-scrolling "stack attack" style
// physics puzzle: boxes fall one column at a time from a crane at the
// top of a width*height well, a player-controlled worker walks left and
// right along the floor row, and any row that is completely filled with
// boxes clears, dropping everything above it by one row per cleared row.
// The worker cannot push, climb or ride boxes: a box beside it blocks
// the move. The game ends when a spawned box has nowhere to land (the
// spawn column is blocked all the way to the top) or lands on the
// worker's cell.
package stackgame

import (
	"math/rand"
	"time"

	"github.com/brightbyte/minigames/internal/rules"
	"github.com/brightbyte/minigames/internal/wire"
)

// Kind is this module's registry key.
const Kind rules.Kind = "stack_game"

func init() {
	rules.Register(Kind, New)
}

const (
	fieldWidth     = 1
	fieldHeight    = 2
	fieldTickMS    = 3
	fieldSpawnRate = 4 // ticks between crane drops

	fieldInputMove = 1 // -1 left, 0 hold, +1 right

	fieldStateWidth   = 1
	fieldStateHeight  = 2
	fieldStateCell    = 3 // repeated varint, row-major, 1 = box, 0 = empty
	fieldStateWorkerX = 4
	fieldStateWorkerY = 5
	fieldStateScore   = 6
	fieldStateOver    = 7
	fieldStateClears  = 8 // repeated varint, row indices cleared this tick
)

// Settings encodes a stack-game configuration.
func Settings(width, height int, tick time.Duration, spawnRateTicks int) []byte {
	m := wire.NewMsg()
	m.SetVarint(fieldWidth, uint64(width))
	m.SetVarint(fieldHeight, uint64(height))
	m.SetVarint(fieldTickMS, uint64(tick/time.Millisecond))
	m.SetVarint(fieldSpawnRate, uint64(spawnRateTicks))
	return m.Marshal()
}

// MoveInput encodes the worker's horizontal intent for the next tick:
// -1 left, 0 hold, +1 right.
func MoveInput(dx int) []byte {
	m := wire.NewMsg()
	m.SetInt64(fieldInputMove, int64(dx))
	return m.Marshal()
}

type settings struct {
	width, height  int
	tick           time.Duration
	spawnRateTicks int
}

func parseSettings(b []byte) (settings, error) {
	s := settings{width: 8, height: 12, tick: 150 * time.Millisecond, spawnRateTicks: 4}
	if len(b) == 0 {
		return s, nil
	}
	m, err := wire.Unmarshal(b)
	if err != nil {
		return s, rules.InvalidSettings("malformed settings: %v", err)
	}
	if v, ok := m.GetVarint(fieldWidth); ok {
		s.width = int(v)
	}
	if v, ok := m.GetVarint(fieldHeight); ok {
		s.height = int(v)
	}
	if v, ok := m.GetVarint(fieldTickMS); ok {
		s.tick = time.Duration(v) * time.Millisecond
	}
	if v, ok := m.GetVarint(fieldSpawnRate); ok {
		s.spawnRateTicks = int(v)
	}
	if s.width < 3 || s.height < 3 {
		return s, rules.InvalidSettings("well must be at least 3x3, got %dx%d", s.width, s.height)
	}
	if s.spawnRateTicks < 1 {
		return s, rules.InvalidSettings("spawn_rate_ticks must be >= 1, got %d", s.spawnRateTicks)
	}
	return s, nil
}

type board struct {
	width, height int
	tick          time.Duration
	spawnRate     int

	playerID string
	cells    []bool // row-major, true = box present
	workerX  int
	workerY  int

	score     int64
	over      bool
	lastClear []int
}

// New constructs a stack-game instance for a single player.
func New(settingsBytes []byte, seed uint64, players []rules.PlayerSeat) (rules.Module, error) {
	s, err := parseSettings(settingsBytes)
	if err != nil {
		return nil, err
	}
	if len(players) != 1 {
		return nil, rules.InvalidSettings("stack_game requires exactly 1 player, got %d", len(players))
	}
	return &board{
		width: s.width, height: s.height, tick: s.tick, spawnRate: s.spawnRateTicks,
		playerID: players[0].PlayerID,
		cells:    make([]bool, s.width*s.height),
		workerX:  s.width / 2,
		workerY:  s.height - 1,
	}, nil
}

func (b *board) TickInterval() time.Duration { return b.tick }

func (b *board) PlayerBounds() rules.PlayerBounds { return rules.PlayerBounds{Min: 1, Max: 1} }

func (b *board) idx(x, y int) int { return y*b.width + x }

func (b *board) ApplyInput(tick uint64, playerIndex int, input []byte) error {
	if b.over {
		return rules.Rejected("game_over")
	}
	if playerIndex != 0 {
		return rules.Rejected("unknown_player")
	}
	m, err := wire.Unmarshal(input)
	if err != nil {
		return rules.Rejected("malformed_input")
	}
	dx64, _ := m.GetInt64(fieldInputMove)
	if dx64 < -1 || dx64 > 1 {
		return rules.Rejected("invalid_move")
	}
	nx := b.workerX + int(dx64)
	if nx < 0 || nx >= b.width {
		return rules.Rejected("out_of_bounds")
	}
	if b.cells[b.idx(nx, b.workerY)] {
		return rules.Rejected("blocked")
	}
	b.workerX = nx
	return nil
}

// Disconnect ends the session immediately: stack_game is single-player,
// so there is no remaining player to continue for (spec §9 open question,
// resolved for stack_game as forfeit/game-over).
func (b *board) Disconnect(playerIndex int) {
	b.over = true
}

// Step drops one box from the crane every spawnRate ticks, lets it fall
// until it rests on the floor or another box, then clears any fully
// filled rows. The crane column is chosen by rng, consumed once per
// drop in spawn order.
func (b *board) Step(tick uint64, rng *rand.Rand) rules.StepOutcome {
	if b.over {
		return rules.StepOutcome{Over: true, Scores: map[string]int64{b.playerID: b.score}}
	}
	b.lastClear = nil

	if b.spawnRate > 0 && tick%uint64(b.spawnRate) == 0 {
		col := rng.Intn(b.width)
		landY := b.landingRow(col)
		if landY < 0 {
			b.over = true
			return rules.StepOutcome{Over: true, Scores: map[string]int64{b.playerID: b.score}}
		}
		b.cells[b.idx(col, landY)] = true
		if landY == b.workerY && col == b.workerX {
			b.over = true
			return rules.StepOutcome{Over: true, Scores: map[string]int64{b.playerID: b.score}}
		}
	}

	b.clearFullRows()

	if !b.over {
		return rules.Continuing
	}
	return rules.StepOutcome{Over: true, Scores: map[string]int64{b.playerID: b.score}}
}

func (b *board) landingRow(col int) int {
	for y := 0; y < b.height; y++ {
		if b.cells[b.idx(col, y)] {
			if y == 0 {
				return -1
			}
			return y - 1
		}
	}
	return b.height - 1
}

func (b *board) clearFullRows() {
	var cleared []int
	for y := 0; y < b.height; y++ {
		full := true
		for x := 0; x < b.width; x++ {
			if !b.cells[b.idx(x, y)] {
				full = false
				break
			}
		}
		if full {
			cleared = append(cleared, y)
		}
	}
	if len(cleared) == 0 {
		return
	}
	b.lastClear = cleared
	b.score += int64(len(cleared))

	keep := make([]bool, 0, len(b.cells))
	clearedSet := map[int]bool{}
	for _, y := range cleared {
		clearedSet[y] = true
	}
	for y := 0; y < b.height; y++ {
		if clearedSet[y] {
			continue
		}
		for x := 0; x < b.width; x++ {
			keep = append(keep, b.cells[b.idx(x, y)])
		}
	}
	newCells := make([]bool, b.width*len(cleared))
	newCells = append(newCells, keep...)
	b.cells = newCells
}

func (b *board) Snapshot() []byte {
	m := wire.NewMsg()
	m.SetVarint(fieldStateWidth, uint64(b.width))
	m.SetVarint(fieldStateHeight, uint64(b.height))
	for _, c := range b.cells {
		v := uint64(0)
		if c {
			v = 1
		}
		m.AddVarint(fieldStateCell, v)
	}
	m.SetVarint(fieldStateWorkerX, uint64(b.workerX))
	m.SetVarint(fieldStateWorkerY, uint64(b.workerY))
	m.SetInt64(fieldStateScore, b.score)
	m.SetBool(fieldStateOver, b.over)
	for _, y := range b.lastClear {
		m.AddVarint(fieldStateClears, uint64(y))
	}
	return m.Marshal()
}
