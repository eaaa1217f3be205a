// Package mergegame implements a single-player merge puzzle on a
// width*height grid (2048-style): a move slides every tile toward one
// edge, merging adjacent equal-valued tiles into one of double value,
// then spawns one new low-value tile in a seeded-random empty cell. The
// game ends when no move would change the board (every cell is
// occupied and no two adjacent cells share a value).
package mergegame

import (
	"math/rand"
	"time"

	"github.com/brightbyte/minigames/internal/rules"
	"github.com/brightbyte/minigames/internal/wire"
)

// Kind is this module's registry key.
const Kind rules.Kind = "merge_game"

func init() {
	rules.Register(Kind, New)
}

const (
	fieldWidth     = 1
	fieldHeight    = 2
	fieldTarget    = 3 // winning tile value, 0 = no target (endless)
	fieldSpawnHigh = 4 // spawn-value-4 probability * 1e6

	fieldInputDir = 1

	fieldStateWidth  = 1
	fieldStateHeight = 2
	fieldStateCell   = 3 // repeated varint, row-major tile value, 0 empty
	fieldStateScore  = 4
	fieldStateOver   = 5
	fieldStateWon    = 6
)

// Direction is a move's sliding direction.
type Direction int

const (
	DirUp Direction = iota
	DirDown
	DirLeft
	DirRight
)

// Input encodes one slide move.
func Input(dir Direction) []byte {
	m := wire.NewMsg()
	m.SetVarint(fieldInputDir, uint64(dir))
	return m.Marshal()
}

// Settings encodes a merge-game configuration.
func Settings(width, height, target int, spawnHighP float64) []byte {
	m := wire.NewMsg()
	m.SetVarint(fieldWidth, uint64(width))
	m.SetVarint(fieldHeight, uint64(height))
	m.SetVarint(fieldTarget, uint64(target))
	m.SetVarint(fieldSpawnHigh, uint64(spawnHighP*1e6))
	return m.Marshal()
}

type settings struct {
	width, height int
	target        int64
	spawnHighP    float64
}

func parseSettings(b []byte) (settings, error) {
	s := settings{width: 4, height: 4, target: 2048, spawnHighP: 0.1}
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
	if v, ok := m.GetVarint(fieldTarget); ok {
		s.target = int64(v)
	}
	if v, ok := m.GetVarint(fieldSpawnHigh); ok {
		s.spawnHighP = float64(v) / 1e6
	}
	if s.width < 2 || s.height < 2 {
		return s, rules.InvalidSettings("grid must be at least 2x2, got %dx%d", s.width, s.height)
	}
	return s, nil
}

type board struct {
	width, height int
	target        int64
	spawnHighP    float64

	playerID string
	cells    []int64 // row-major tile value, 0 empty
	score    int64
	over     bool
	won      bool
	pendingMove bool
}

// New constructs a merge-game instance for a single player, with two
// starting tiles placed by the seeded rng.
func New(settingsBytes []byte, seed uint64, players []rules.PlayerSeat) (rules.Module, error) {
	s, err := parseSettings(settingsBytes)
	if err != nil {
		return nil, err
	}
	if len(players) != 1 {
		return nil, rules.InvalidSettings("merge_game requires exactly 1 player, got %d", len(players))
	}
	b := &board{
		width: s.width, height: s.height, target: s.target, spawnHighP: s.spawnHighP,
		playerID: players[0].PlayerID,
		cells:    make([]int64, s.width*s.height),
	}
	rng := rules.NewRand(seed)
	b.spawn(rng)
	b.spawn(rng)
	return b, nil
}

func (b *board) TickInterval() time.Duration { return 0 }

func (b *board) PlayerBounds() rules.PlayerBounds { return rules.PlayerBounds{Min: 1, Max: 1} }

func (b *board) idx(x, y int) int { return y*b.width + x }

// Disconnect ends the session immediately: merge_game is single-player
// (spec §9 open question, resolved for merge_game as forfeit/game-over).
func (b *board) Disconnect(playerIndex int) {
	b.over = true
}

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
	dir64, _ := m.GetVarint(fieldInputDir)
	dir := Direction(dir64)
	if dir < DirUp || dir > DirRight {
		return rules.Rejected("invalid_direction")
	}

	moved, gained := b.slide(dir)
	if !moved {
		return rules.Rejected("no_effect")
	}
	b.pendingMove = true
	b.score += gained
	return nil
}

func (b *board) Step(tick uint64, rng *rand.Rand) rules.StepOutcome {
	if b.over {
		return rules.StepOutcome{Over: true, Scores: map[string]int64{b.playerID: b.score}}
	}
	if !b.pendingMove {
		return rules.Continuing
	}
	b.pendingMove = false

	b.spawn(rng)

	if b.target > 0 && b.hasValue(b.target) {
		b.won = true
		b.over = true
	} else if !b.anyMoveAvailable() {
		b.over = true
	}

	if !b.over {
		return rules.Continuing
	}
	out := rules.StepOutcome{Over: true, Scores: map[string]int64{b.playerID: b.score}}
	if b.won {
		out.Winner = b.playerID
	}
	return out
}

func (b *board) hasValue(v int64) bool {
	for _, c := range b.cells {
		if c == v {
			return true
		}
	}
	return false
}

func (b *board) anyMoveAvailable() bool {
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			v := b.cells[b.idx(x, y)]
			if v == 0 {
				return true
			}
			if x+1 < b.width && b.cells[b.idx(x+1, y)] == v {
				return true
			}
			if y+1 < b.height && b.cells[b.idx(x, y+1)] == v {
				return true
			}
		}
	}
	return false
}

// spawn places one new tile (value 2, or 4 with probability spawnHighP)
// in a uniformly chosen empty cell: one rng.Float64 draw picks the value,
// then one rng.Intn draw indexes the row-major list of empty cells.
func (b *board) spawn(rng *rand.Rand) {
	var empties []int
	for i, v := range b.cells {
		if v == 0 {
			empties = append(empties, i)
		}
	}
	if len(empties) == 0 {
		return
	}
	value := int64(2)
	if rng.Float64() < b.spawnHighP {
		value = 4
	}
	pick := empties[rng.Intn(len(empties))]
	b.cells[pick] = value
}

// slide moves every tile toward dir, merging equal adjacent tiles once
// per tile per move, and reports whether the board changed and how many
// points were scored by merges.
func (b *board) slide(dir Direction) (moved bool, gained int64) {
	lines := b.linesFor(dir)
	for _, line := range lines {
		newLine, lineGained, lineMoved := collapseLine(b.valuesAt(line))
		if lineMoved {
			moved = true
		}
		gained += lineGained
		for i, pos := range line {
			b.cells[pos] = newLine[i]
		}
	}
	return moved, gained
}

// linesFor returns, for each row or column affected by dir, the cell
// indices in slide order (toward the target edge first).
func (b *board) linesFor(dir Direction) [][]int {
	var lines [][]int
	switch dir {
	case DirLeft:
		for y := 0; y < b.height; y++ {
			line := make([]int, b.width)
			for x := 0; x < b.width; x++ {
				line[x] = b.idx(x, y)
			}
			lines = append(lines, line)
		}
	case DirRight:
		for y := 0; y < b.height; y++ {
			line := make([]int, b.width)
			for x := 0; x < b.width; x++ {
				line[x] = b.idx(b.width-1-x, y)
			}
			lines = append(lines, line)
		}
	case DirUp:
		for x := 0; x < b.width; x++ {
			line := make([]int, b.height)
			for y := 0; y < b.height; y++ {
				line[y] = b.idx(x, y)
			}
			lines = append(lines, line)
		}
	case DirDown:
		for x := 0; x < b.width; x++ {
			line := make([]int, b.height)
			for y := 0; y < b.height; y++ {
				line[y] = b.idx(x, b.height-1-y)
			}
			lines = append(lines, line)
		}
	}
	return lines
}

func (b *board) valuesAt(line []int) []int64 {
	v := make([]int64, len(line))
	for i, pos := range line {
		v[i] = b.cells[pos]
	}
	return v
}

// collapseLine slides non-zero values to the front, merging the first
// of each adjacent equal pair (each tile merges at most once), and
// returns whether the line's contents changed position or value.
func collapseLine(v []int64) (out []int64, gained int64, moved bool) {
	compact := make([]int64, 0, len(v))
	for _, x := range v {
		if x != 0 {
			compact = append(compact, x)
		}
	}
	merged := make([]int64, 0, len(compact))
	for i := 0; i < len(compact); i++ {
		if i+1 < len(compact) && compact[i] == compact[i+1] {
			merged = append(merged, compact[i]*2)
			gained += compact[i] * 2
			i++
		} else {
			merged = append(merged, compact[i])
		}
	}
	out = make([]int64, len(v))
	copy(out, merged)
	for i := range v {
		if out[i] != v[i] {
			moved = true
		}
	}
	return out, gained, moved
}

func (b *board) Snapshot() []byte {
	m := wire.NewMsg()
	m.SetVarint(fieldStateWidth, uint64(b.width))
	m.SetVarint(fieldStateHeight, uint64(b.height))
	for _, c := range b.cells {
		m.AddVarint(fieldStateCell, uint64(c))
	}
	m.SetInt64(fieldStateScore, b.score)
	m.SetBool(fieldStateOver, b.over)
	m.SetBool(fieldStateWon, b.won)
	return m.Marshal()
}
