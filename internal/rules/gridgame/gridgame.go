// Package gridgame implements a multi-agent grid game: each player
// controls a growing trail on a width*height grid, moving one cell per
// tick in the last direction it was given. Depending on settings, the
// grid's edges either wrap (moving off one side reappears on the
// opposite side) or are death walls (moving off any side kills the
// player). Food spawns at a configurable rate up to a configurable cap;
// eating it grows the trail by one cell and scores a point. A player
// dies by leaving the grid through a death wall or by entering a cell
// occupied by any trail (its own or another player's); the last
// survivor, or every surviving player on a simultaneous multi-kill,
// ends the game.
package gridgame

import (
	"math/rand"
	"time"

	"github.com/brightbyte/minigames/internal/rules"
	"github.com/brightbyte/minigames/internal/wire"
)

// Kind is this module's registry key.
const Kind rules.Kind = "grid_game"

func init() {
	rules.Register(Kind, New)
}

const (
	fieldWidth    = 1
	fieldHeight   = 2
	fieldWrap     = 3
	fieldTickMS   = 4
	fieldMaxFood  = 5
	fieldSpawnP   = 6 // spawn probability * 1e6, integer fixed-point

	fieldInputDir = 1

	fieldStateWidth   = 1
	fieldStateHeight  = 2
	fieldStateTrail   = 3 // repeated sub-message: {playerIndex, alive, x1,y1,x2,y2,...}
	fieldStateFood    = 4 // repeated sub-message: {x, y}
	fieldStateOver    = 5

	fieldTrailPlayer = 1
	fieldTrailAlive  = 2
	fieldTrailCells  = 3 // repeated varint, packed as x<<32 | uint32(y)

	fieldPointX = 1
	fieldPointY = 2
)

// Direction is a player's facing.
type Direction int

const (
	DirNone Direction = iota
	DirUp
	DirDown
	DirLeft
	DirRight
)

// Input encodes a direction change effective on the next tick.
func Input(dir Direction) []byte {
	m := wire.NewMsg()
	m.SetVarint(fieldInputDir, uint64(dir))
	return m.Marshal()
}

// Settings encodes a grid-game configuration.
func Settings(width, height int, wrap bool, tick time.Duration, maxFood int, spawnP float64) []byte {
	m := wire.NewMsg()
	m.SetVarint(fieldWidth, uint64(width))
	m.SetVarint(fieldHeight, uint64(height))
	m.SetBool(fieldWrap, wrap)
	m.SetVarint(fieldTickMS, uint64(tick/time.Millisecond))
	m.SetVarint(fieldMaxFood, uint64(maxFood))
	m.SetVarint(fieldSpawnP, uint64(spawnP*1e6))
	return m.Marshal()
}

type settings struct {
	width, height int
	wrap          bool
	tick          time.Duration
	maxFood       int
	spawnP        float64
}

func parseSettings(b []byte) (settings, error) {
	s := settings{width: 10, height: 10, wrap: true, tick: 100 * time.Millisecond, maxFood: 1, spawnP: 0.1}
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
	s.wrap = m.GetBool(fieldWrap)
	if v, ok := m.GetVarint(fieldTickMS); ok {
		s.tick = time.Duration(v) * time.Millisecond
	}
	if v, ok := m.GetVarint(fieldMaxFood); ok {
		s.maxFood = int(v)
	}
	if v, ok := m.GetVarint(fieldSpawnP); ok {
		s.spawnP = float64(v) / 1e6
	}
	if s.width < 3 || s.height < 3 {
		return s, rules.InvalidSettings("grid must be at least 3x3, got %dx%d", s.width, s.height)
	}
	if s.maxFood < 0 {
		return s, rules.InvalidSettings("max_food must be >= 0, got %d", s.maxFood)
	}
	if s.spawnP < 0 || s.spawnP > 1 {
		return s, rules.InvalidSettings("spawn_p must be in [0,1], got %v", s.spawnP)
	}
	return s, nil
}

type cell struct{ x, y int }

type trail struct {
	cells []cell // head is cells[0]
	dir   Direction
	alive bool
	score int64
}

type board struct {
	width, height int
	wrap          bool
	tick          time.Duration
	maxFood       int
	spawnP        float64

	players []rules.PlayerSeat
	trails  []*trail
	food    []cell
	over    bool
}

// New constructs a grid-game instance with at least one player.
func New(settingsBytes []byte, seed uint64, players []rules.PlayerSeat) (rules.Module, error) {
	s, err := parseSettings(settingsBytes)
	if err != nil {
		return nil, err
	}
	if len(players) < 1 {
		return nil, rules.InvalidSettings("grid_game requires at least 1 player, got %d", len(players))
	}
	b := &board{
		width: s.width, height: s.height, wrap: s.wrap, tick: s.tick,
		maxFood: s.maxFood, spawnP: s.spawnP,
		players: players,
	}
	for i := range players {
		start := b.startPosition(i, len(players))
		b.trails = append(b.trails, &trail{cells: []cell{start}, dir: DirNone, alive: true})
	}
	return b, nil
}

// startPosition spaces starting positions around the grid's centerline,
// deterministic in player order.
func (b *board) startPosition(index, total int) cell {
	if total == 1 {
		return cell{b.width / 2, b.height / 2}
	}
	x := (index * b.width) / total
	return cell{x, b.height / 2}
}

func (b *board) TickInterval() time.Duration { return b.tick }

func (b *board) PlayerBounds() rules.PlayerBounds { return rules.PlayerBounds{Min: 1, Max: 8} }

func (b *board) ApplyInput(tick uint64, playerIndex int, input []byte) error {
	if b.over {
		return rules.Rejected("game_over")
	}
	if playerIndex < 0 || playerIndex >= len(b.trails) {
		return rules.Rejected("unknown_player")
	}
	t := b.trails[playerIndex]
	if !t.alive {
		return rules.Rejected("player_dead")
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
	if isOpposite(t.dir, dir) && len(t.cells) > 1 {
		return rules.Rejected("reverse_into_self")
	}
	t.dir = dir
	return nil
}

func isOpposite(a, b Direction) bool {
	switch a {
	case DirUp:
		return b == DirDown
	case DirDown:
		return b == DirUp
	case DirLeft:
		return b == DirRight
	case DirRight:
		return b == DirLeft
	}
	return false
}

// Disconnect removes the seat's trail from play (spec §9 open question,
// resolved for grid_game as immediate death; Step's survivor check ends
// the game once at most one trail remains alive).
func (b *board) Disconnect(playerIndex int) {
	if playerIndex < 0 || playerIndex >= len(b.trails) {
		return
	}
	b.trails[playerIndex].alive = false
}

func (b *board) Step(tick uint64, rng *rand.Rand) rules.StepOutcome {
	if b.over {
		return rules.Continuing
	}

	next := make([]cell, len(b.trails))
	for i, t := range b.trails {
		if !t.alive {
			continue
		}
		head := t.cells[0]
		nh := moveOne(head, t.dir)
		if b.wrap {
			nh.x = ((nh.x % b.width) + b.width) % b.width
			nh.y = ((nh.y % b.height) + b.height) % b.height
		} else if nh.x < 0 || nh.x >= b.width || nh.y < 0 || nh.y >= b.height {
			t.alive = false
			continue
		}
		next[i] = nh
	}

	occupied := map[cell]bool{}
	for _, t := range b.trails {
		if !t.alive {
			continue
		}
		for _, c := range t.cells {
			occupied[c] = true
		}
	}

	ateFood := map[int]int{} // playerIndex -> food slice index eaten
	for i, t := range b.trails {
		if !t.alive || t.dir == DirNone {
			continue
		}
		nh := next[i]
		if occupied[nh] {
			t.alive = false
			continue
		}
		for fi, f := range b.food {
			if f == nh {
				ateFood[i] = fi
				break
			}
		}
	}

	for i, t := range b.trails {
		if !t.alive || t.dir == DirNone {
			continue
		}
		grown := false
		if fi, ok := ateFood[i]; ok {
			t.score++
			b.food = append(b.food[:fi], b.food[fi+1:]...)
			grown = true
		}
		t.cells = append([]cell{next[i]}, t.cells...)
		if !grown {
			t.cells = t.cells[:len(t.cells)-1]
		}
	}

	// Food spawns consume rng in documented row-major-scan order: one
	// Bernoulli trial per missing food slot, then a uniform placement
	// scan starting from a single rng.Intn draw.
	for len(b.food) < b.maxFood {
		if rng.Float64() >= b.spawnP {
			break
		}
		if pos, ok := b.placeFood(rng); ok {
			b.food = append(b.food, pos)
		} else {
			break
		}
	}

	aliveCount := 0
	for _, t := range b.trails {
		if t.alive {
			aliveCount++
		}
	}
	if len(b.trails) > 1 && aliveCount <= 1 {
		b.over = true
	}
	if len(b.trails) == 1 && !b.trails[0].alive {
		b.over = true
	}

	if !b.over {
		return rules.Continuing
	}
	return b.finish()
}

func moveOne(c cell, d Direction) cell {
	switch d {
	case DirUp:
		return cell{c.x, c.y - 1}
	case DirDown:
		return cell{c.x, c.y + 1}
	case DirLeft:
		return cell{c.x - 1, c.y}
	case DirRight:
		return cell{c.x + 1, c.y}
	}
	return c
}

// placeFood scans the grid row-major from a single rng-chosen offset,
// returning the first free cell found — deterministic given rng's state,
// with a bounded number of checks regardless of grid occupancy.
func (b *board) placeFood(rng *rand.Rand) (cell, bool) {
	total := b.width * b.height
	start := rng.Intn(total)
	occupied := map[cell]bool{}
	for _, t := range b.trails {
		for _, c := range t.cells {
			occupied[c] = true
		}
	}
	for _, f := range b.food {
		occupied[f] = true
	}
	for i := 0; i < total; i++ {
		idx := (start + i) % total
		c := cell{idx % b.width, idx / b.width}
		if !occupied[c] {
			return c, true
		}
	}
	return cell{}, false
}

func (b *board) finish() rules.StepOutcome {
	out := rules.StepOutcome{Over: true, Scores: map[string]int64{}}
	best := int64(-1)
	var winnerIdx = -1
	tie := false
	for i, t := range b.trails {
		out.Scores[b.players[i].PlayerID] = t.score
		if t.score > best {
			best = t.score
			winnerIdx = i
			tie = false
		} else if t.score == best {
			tie = true
		}
	}
	if !tie && winnerIdx >= 0 {
		out.Winner = b.players[winnerIdx].PlayerID
	}
	return out
}

func (b *board) Snapshot() []byte {
	m := wire.NewMsg()
	m.SetVarint(fieldStateWidth, uint64(b.width))
	m.SetVarint(fieldStateHeight, uint64(b.height))
	for i, t := range b.trails {
		sub := wire.NewMsg()
		sub.SetVarint(fieldTrailPlayer, uint64(i))
		sub.SetBool(fieldTrailAlive, t.alive)
		for _, c := range t.cells {
			sub.AddVarint(fieldTrailCells, uint64(c.x)<<32|uint64(uint32(c.y)))
		}
		m.AddMessage(fieldStateTrail, sub)
	}
	for _, f := range b.food {
		sub := wire.NewMsg()
		sub.SetVarint(fieldPointX, uint64(f.x))
		sub.SetVarint(fieldPointY, uint64(f.y))
		m.AddMessage(fieldStateFood, sub)
	}
	m.SetBool(fieldStateOver, b.over)
	return m.Marshal()
}
