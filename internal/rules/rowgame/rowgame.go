// Package rowgame implements an N-in-a-row board game (tic-tac-toe and its
// generalizations) as a rules.Module: two players alternate placing a mark
// on a size*size board; the first to place `win` marks in an unbroken
// line (row, column, or diagonal) wins, carrying the line as the witness.
package rowgame

import (
	"math/rand"
	"time"

	"github.com/brightbyte/minigames/internal/rules"
	"github.com/brightbyte/minigames/internal/wire"
)

// Kind is this module's registry key.
const Kind rules.Kind = "row_game"

func init() {
	rules.Register(Kind, New)
}

const (
	fieldSize = 1
	fieldWin  = 2

	fieldInputRow = 1
	fieldInputCol = 2

	fieldStateSize     = 1
	fieldStateWin      = 2
	fieldStateCell     = 3 // repeated, row-major, 0 empty else 1-based player index
	fieldStateTurn     = 4
	fieldStateOver     = 5
	fieldStateWinner   = 6 // player index + 1, 0 = none
	fieldStateWitness  = 7 // repeated sub-message {row, col}
)

type settings struct {
	size int
	win  int
}

func parseSettings(b []byte) (settings, error) {
	s := settings{size: 3, win: 3}
	if len(b) == 0 {
		return s, nil
	}
	m, err := wire.Unmarshal(b)
	if err != nil {
		return s, rules.InvalidSettings("malformed settings: %v", err)
	}
	if v, ok := m.GetVarint(fieldSize); ok {
		s.size = int(v)
	}
	if v, ok := m.GetVarint(fieldWin); ok {
		s.win = int(v)
	}
	if s.size < 3 || s.size > 19 {
		return s, rules.InvalidSettings("size must be in 3..19, got %d", s.size)
	}
	if s.win < 3 || s.win > s.size {
		return s, rules.InvalidSettings("win must be in 3..size, got %d", s.win)
	}
	return s, nil
}

// Settings encodes a row-game configuration for a lobby's tagged-variant
// settings field.
func Settings(size, win int) []byte {
	m := wire.NewMsg()
	m.SetVarint(fieldSize, uint64(size))
	m.SetVarint(fieldWin, uint64(win))
	return m.Marshal()
}

// Input encodes one placement at (row, col).
func Input(row, col int) []byte {
	m := wire.NewMsg()
	m.SetVarint(fieldInputRow, uint64(row))
	m.SetVarint(fieldInputCol, uint64(col))
	return m.Marshal()
}

type point struct{ row, col int }

type board struct {
	size    int
	win     int
	cells   []int8 // 0 empty, else playerIndex+1
	turn    int
	players []rules.PlayerSeat
	over    bool
	winner  int // -1 none
	witness []point
}

// New constructs a row-game instance. players must number exactly two;
// seat 0 moves first.
func New(settingsBytes []byte, seed uint64, players []rules.PlayerSeat) (rules.Module, error) {
	s, err := parseSettings(settingsBytes)
	if err != nil {
		return nil, err
	}
	if len(players) != 2 {
		return nil, rules.InvalidSettings("row_game requires exactly 2 players, got %d", len(players))
	}
	return &board{
		size:    s.size,
		win:     s.win,
		cells:   make([]int8, s.size*s.size),
		turn:    0,
		players: players,
		winner:  -1,
	}, nil
}

func (b *board) TickInterval() time.Duration { return 0 }

func (b *board) PlayerBounds() rules.PlayerBounds { return rules.PlayerBounds{Min: 2, Max: 2} }

func (b *board) idx(row, col int) int { return row*b.size + col }

func (b *board) ApplyInput(tick uint64, playerIndex int, input []byte) error {
	if b.over {
		return rules.Rejected("game_over")
	}
	if playerIndex != b.turn {
		return rules.Rejected("not_your_turn")
	}
	m, err := wire.Unmarshal(input)
	if err != nil {
		return rules.Rejected("malformed_input")
	}
	row64, _ := m.GetVarint(fieldInputRow)
	col64, _ := m.GetVarint(fieldInputCol)
	row, col := int(row64), int(col64)
	if row < 0 || row >= b.size || col < 0 || col >= b.size {
		return rules.Rejected("out_of_bounds")
	}
	if b.cells[b.idx(row, col)] != 0 {
		return rules.Rejected("occupied")
	}

	b.cells[b.idx(row, col)] = int8(playerIndex + 1)
	if line, ok := b.winningLineThrough(row, col, playerIndex+1); ok {
		b.over = true
		b.winner = playerIndex
		b.witness = line
		return nil
	}
	if b.boardFull() {
		b.over = true
		b.winner = -1
	}
	b.turn = (b.turn + 1) % len(b.players)
	return nil
}

var directions = [4]point{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// winningLineThrough checks only the lines passing through the
// just-played cell, in a fixed direction order, for a deterministic
// witness independent of iteration over the whole board.
func (b *board) winningLineThrough(row, col int, mark int8) ([]point, bool) {
	for _, d := range directions {
		line := []point{{row, col}}
		r, c := row+d.row, col+d.col
		for b.inBounds(r, c) && b.cells[b.idx(r, c)] == mark {
			line = append(line, point{r, c})
			r, c = r+d.row, c+d.col
		}
		r, c = row-d.row, col-d.col
		for b.inBounds(r, c) && b.cells[b.idx(r, c)] == mark {
			line = append([]point{{r, c}}, line...)
			r, c = r-d.row, c-d.col
		}
		if len(line) >= b.win {
			return line, true
		}
	}
	return nil, false
}

func (b *board) inBounds(r, c int) bool {
	return r >= 0 && r < b.size && c >= 0 && c < b.size
}

func (b *board) boardFull() bool {
	for _, v := range b.cells {
		if v == 0 {
			return false
		}
	}
	return true
}

// Disconnect forfeits the game to the remaining player (spec §9 open
// question, resolved for row_game as forfeit-on-disconnect).
func (b *board) Disconnect(playerIndex int) {
	if b.over {
		return
	}
	b.over = true
	b.winner = 1 - playerIndex
}

func (b *board) Step(tick uint64, rng *rand.Rand) rules.StepOutcome {
	if !b.over {
		return rules.Continuing
	}
	out := rules.StepOutcome{Over: true, Scores: map[string]int64{}}
	for i, p := range b.players {
		score := int64(0)
		if i == b.winner {
			score = 1
			out.Winner = p.PlayerID
		}
		out.Scores[p.PlayerID] = score
	}
	m := wire.NewMsg()
	for _, pt := range b.witness {
		sub := wire.NewMsg()
		sub.SetVarint(1, uint64(pt.row))
		sub.SetVarint(2, uint64(pt.col))
		m.AddMessage(1, sub)
	}
	out.Witness = m.Marshal()
	return out
}

func (b *board) Snapshot() []byte {
	m := wire.NewMsg()
	m.SetVarint(fieldStateSize, uint64(b.size))
	m.SetVarint(fieldStateWin, uint64(b.win))
	for _, v := range b.cells {
		m.AddVarint(fieldStateCell, uint64(v))
	}
	m.SetVarint(fieldStateTurn, uint64(b.turn))
	m.SetBool(fieldStateOver, b.over)
	m.SetVarint(fieldStateWinner, uint64(b.winner+1))
	for _, pt := range b.witness {
		sub := wire.NewMsg()
		sub.SetVarint(1, uint64(pt.row))
		sub.SetVarint(2, uint64(pt.col))
		m.AddMessage(fieldStateWitness, sub)
	}
	return m.Marshal()
}
