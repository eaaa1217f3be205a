package replay

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/brightbyte/minigames/internal/rules"
	"github.com/brightbyte/minigames/internal/session"
	"github.com/brightbyte/minigames/internal/wire"
)

// turnBasedPacing is the wall-clock interval replay playback uses to pace
// a turn-based rule module (TickInterval() == "on_input_only"): playback
// is not live input-driven, so it needs *some* cadence to advance through
// recorded actions at normal speed. It is a presentation choice only —
// never part of the deterministic simulation path.
const turnBasedPacing = 200 * time.Millisecond

// allowedSpeeds enumerates the valid playback speed multipliers (spec
// §4.5): 0.25x, 0.5x, 1x, 2x, 4x.
var allowedSpeeds = map[float64]bool{0.25: true, 0.5: true, 1: true, 2: true, 4: true}

// Player is the replay engine of spec §4.5: it re-drives a fresh
// rules.Module instance from a decoded action log, one tick at a time, at
// a controllable speed, emitting the exact same broadcast messages a live
// session would.
type Player struct {
	sessionID string
	header    Header
	actions   []session.ActionEntry

	viewers func() []session.Viewer
	logf    func(format string, args ...any)

	mu      sync.Mutex
	mod     rules.Module
	rng     *rand.Rand
	tick    uint64
	cursor  int
	paused  bool
	speed   float64
	done    bool

	wake   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// NewPlayer constructs a Player for a decoded Replay. sessionID is a
// synthetic id used to tag outbound envelopes, indistinguishable at the
// wire level from a live session's GameStateUpdate/GameOver (spec §4.5:
// "replay viewers are indistinguishable from session viewers at the wire
// level").
func NewPlayer(sessionID string, r Replay, viewers func() []session.Viewer, logf func(format string, args ...any)) (*Player, error) {
	mod, err := rules.New(r.GameKind, r.Settings, r.Seed, r.Players)
	if err != nil {
		return nil, err
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Player{
		sessionID: sessionID,
		header:    r.Header,
		actions:   r.Actions,
		viewers:   viewers,
		logf:      logf,
		mod:       mod,
		rng:       rules.NewRand(r.Seed),
		speed:     1,
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Done is closed once playback reaches the end of the action log or is
// stopped.
func (p *Player) Done() <-chan struct{} { return p.doneCh }

// Snapshot returns the rule module's current serialized state, for a
// viewer who joins mid-playback.
func (p *Player) Snapshot() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mod.Snapshot()
}

// Stop halts playback without emitting a further GameOver.
func (p *Player) Stop() {
	p.once.Do(func() { close(p.stopCh) })
}

// SetPaused sets the pause flag. While paused, the run loop stops
// advancing ticks on its own; StepOnce can still single-step.
func (p *Player) SetPaused(paused bool) {
	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
	p.nudge()
}

// SetSpeed changes the playback speed multiplier. Invalid values are
// ignored (the caller should reject them as invalid_request upstream).
func (p *Player) SetSpeed(speed float64) bool {
	if !allowedSpeeds[speed] {
		return false
	}
	p.mu.Lock()
	p.speed = speed
	p.mu.Unlock()
	p.nudge()
	return true
}

// StepOnce advances exactly one tick while paused; a no-op (but not an
// error) if playback is not paused or has already ended.
func (p *Player) StepOnce() {
	p.mu.Lock()
	paused := p.paused
	done := p.done
	p.mu.Unlock()
	if !paused || done {
		return
	}
	p.advance()
}

// Restart resets playback to tick zero with a freshly constructed rule
// module instance (spec §4.5 "restart-from-tick-zero").
func (p *Player) Restart() error {
	mod, err := rules.New(p.header.GameKind, p.header.Settings, p.header.Seed, p.header.Players)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.mod = mod
	p.rng = rules.NewRand(p.header.Seed)
	p.tick = 0
	p.cursor = 0
	p.done = false
	p.mu.Unlock()
	p.broadcastState()
	return nil
}

func (p *Player) nudge() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run drives playback until the action log is exhausted, Stop is called,
// or ctx is cancelled. Must run in its own goroutine.
func (p *Player) Run(ctx context.Context) {
	defer close(p.doneCh)

	for {
		p.mu.Lock()
		paused := p.paused
		interval := p.interval()
		p.mu.Unlock()

		if paused {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-p.wake:
				continue
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-p.wake:
			continue
		case <-time.After(interval):
			if p.advance() {
				return
			}
		}
	}
}

// interval returns the current wall-clock pacing between ticks, assuming
// mu is held.
func (p *Player) interval() time.Duration {
	base := p.mod.TickInterval()
	if base <= 0 {
		base = turnBasedPacing
	}
	return time.Duration(float64(base) / p.speed)
}

// advance feeds every action tagged with the current tick to the rule
// module (array order), then steps it by one tick, broadcasting the
// result exactly as the session engine's advance does. Returns true once
// the replay has ended.
func (p *Player) advance() bool {
	p.mu.Lock()
	currentTick := p.tick
	cursor := p.cursor
	for cursor < len(p.actions) && p.actions[cursor].Tick == currentTick {
		a := p.actions[cursor]
		if !a.Disconnected {
			_ = p.mod.ApplyInput(currentTick, a.PlayerIndex, a.Content)
		} else if d, ok := p.mod.(rules.Disconnector); ok {
			d.Disconnect(a.PlayerIndex)
		}
		cursor++
	}
	p.cursor = cursor
	outcome := p.mod.Step(currentTick+1, p.rng)
	p.tick = currentTick + 1
	// A replay file is captured from a session that itself ran to its
	// rule module's own GameOver, so exhausting the action log and the
	// module reporting game-over coincide in practice; exhaustion is kept
	// as a backstop so playback can't spin forever on a truncated file.
	over := outcome.Over || cursor >= len(p.actions)
	if over {
		p.done = true
	}
	p.mu.Unlock()

	if outcome.Over {
		p.broadcast(newGameOverMessage(p.sessionID, outcome.Winner, outcome.Scores, outcome.Witness, ""))
	} else {
		p.broadcast(newGameStateUpdateMessage(p.sessionID, currentTick+1, p.Snapshot()))
	}
	return over
}

func (p *Player) broadcast(msg *wire.ServerMessage) {
	if p.viewers == nil {
		return
	}
	for _, v := range p.viewers() {
		v.Send(msg)
	}
}

func (p *Player) broadcastState() {
	p.broadcast(newGameStateUpdateMessage(p.sessionID, p.currentTick(), p.Snapshot()))
}

func (p *Player) currentTick() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tick
}

// CurrentTick returns the tick playback has most recently advanced to.
func (p *Player) CurrentTick() uint64 { return p.currentTick() }

// Paused reports whether playback is currently paused.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Speed returns the current playback speed multiplier.
func (p *Player) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}
