package session

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/brightbyte/minigames/internal/rules"
	"github.com/brightbyte/minigames/internal/wire"
)

// Result is handed to the engine's owner once the session ends, either by
// rule-module game-over or by an aborting failure (spec §4.3 Failure
// model: a rule-module panic aborts with GameOver{error} and no replay).
type Result struct {
	Winner  string
	Scores  map[string]int64
	Witness []byte
	Err     error
}

// Engine is the tick scheduler of spec §4.3: a cooperative, single
// goroutine loop that drains pending inputs in arrival order, steps the
// rule module, and broadcasts the resulting state. It holds only a
// back-reference to its owning lobby id; it emits outbound messages
// purely through the Viewer accessors it is constructed with (spec §9
// "one-way ownership").
type Engine struct {
	SessionID     string
	LobbyID       string
	GameKind      rules.Kind
	SettingsBytes []byte
	Seed          uint64
	Players       []rules.PlayerSeat
	StartedAt     time.Time

	mod rules.Module
	rng *rand.Rand

	viewers      func() []Viewer
	playerViewer func(index int) Viewer
	logf         func(format string, args ...any)

	mu        sync.Mutex
	tick      uint64
	pending   []pendingInput
	actionLog []ActionEntry
	snapshot  []byte
	done      bool
	result    Result

	wake    chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

// New constructs an Engine. viewers must return the current full set of
// lobby members+observers that should receive state broadcasts;
// playerViewer must return the live connection for a given seat, or nil
// if that seat is currently disconnected (used to deliver per-input
// rejection errors, spec §4.4 ApplyInput "Rejected(kind)").
func New(
	sessionID, lobbyID string,
	kind rules.Kind,
	settingsBytes []byte,
	seed uint64,
	players []rules.PlayerSeat,
	viewers func() []Viewer,
	playerViewer func(index int) Viewer,
	logf func(format string, args ...any),
) (*Engine, error) {
	mod, err := rules.New(kind, settingsBytes, seed, players)
	if err != nil {
		return nil, err
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	e := &Engine{
		SessionID:     sessionID,
		LobbyID:       lobbyID,
		GameKind:      kind,
		SettingsBytes: settingsBytes,
		Seed:          seed,
		Players:       players,
		StartedAt:     time.Now(),
		mod:           mod,
		rng:           rules.NewRand(seed),
		viewers:       viewers,
		playerViewer:  playerViewer,
		logf:          logf,
		snapshot:      mod.Snapshot(),
		wake:          make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	return e, nil
}

// CurrentTick returns the engine's monotonic tick counter.
func (e *Engine) CurrentTick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// Snapshot returns the rule module's latest serialized state, for
// broadcast to a freshly joined observer (spec §4.3 "a newly joined
// observer receives a fresh snapshot() then joins the ongoing stream").
func (e *Engine) Snapshot() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

// ActionLog returns a copy of every applied action recorded so far, in
// the order they were committed. Safe to call after the session ends;
// the lobby manager hands this to the replay codec.
func (e *Engine) ActionLog() []ActionEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ActionEntry, len(e.actionLog))
	copy(out, e.actionLog)
	return out
}

// Done is closed once the session has ended (game-over or abort).
func (e *Engine) Done() <-chan struct{} { return e.doneCh }

// Result returns the terminal outcome; valid only after Done() is closed.
func (e *Engine) Result() Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// SubmitInput enqueues one player's input, received now. It never blocks
// and never applies the input synchronously; the run loop applies it in
// (receive_instant, player_index) order at the next drain (spec §4.3
// Ordering guarantees).
func (e *Engine) SubmitInput(playerIndex int, content []byte) {
	e.enqueue(pendingInput{playerIndex: playerIndex, receivedAt: time.Now(), content: content})
}

// Disconnect records that a player's connection was lost. The rule module
// sees a Disconnected action at the tick it is drained; the module alone
// decides the gameplay consequence (spec §4.3 Cancellation).
func (e *Engine) Disconnect(playerIndex int) {
	e.enqueue(pendingInput{playerIndex: playerIndex, receivedAt: time.Now(), disconnected: true})
}

func (e *Engine) enqueue(p pendingInput) {
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return
	}
	e.pending = append(e.pending, p)
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Stop cancels the run loop without producing a GameOver broadcast; used
// when the lobby itself is torn down mid-session.
func (e *Engine) Stop() {
	e.once.Do(func() { close(e.stopCh) })
}

// Run drives the scheduler until the rule module reports game-over, the
// engine is stopped, or ctx is cancelled. It must be launched in its own
// goroutine by the caller and never invoked concurrently with itself.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.doneCh)

	e.broadcast(newGameStartingMessage(e.SessionID, string(e.GameKind)))

	interval := e.mod.TickInterval()
	var tickC <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-tickC:
			if e.advance() {
				return
			}
		case <-e.wake:
			if interval == 0 {
				if e.advance() {
					return
				}
			}
		}
	}
}

// advance drains currently queued inputs in order, applies them, steps
// the rule module by one tick, and broadcasts the result. It returns true
// once the session has ended (normally or via panic/abort).
func (e *Engine) advance() (over bool) {
	e.mu.Lock()
	batch := e.pending
	e.pending = nil
	currentTick := e.tick
	e.mu.Unlock()

	sort.SliceStable(batch, func(i, j int) bool {
		if !batch[i].receivedAt.Equal(batch[j].receivedAt) {
			return batch[i].receivedAt.Before(batch[j].receivedAt)
		}
		return batch[i].playerIndex < batch[j].playerIndex
	})

	outcome, err := e.applyBatch(currentTick, batch)
	if err != nil {
		e.abort(err)
		return true
	}

	e.mu.Lock()
	e.tick = currentTick + 1
	newTick := e.tick
	e.mu.Unlock()

	if outcome.Over {
		e.finish(outcome)
		return true
	}

	e.mu.Lock()
	e.snapshot = e.mod.Snapshot()
	snap := e.snapshot
	e.mu.Unlock()
	e.broadcast(newGameStateUpdateMessage(e.SessionID, newTick, snap))
	return false
}

// applyBatch recovers from a rule-module panic, converting it into an
// error the caller aborts the session with (spec §4.3 Failure model).
func (e *Engine) applyBatch(currentTick uint64, batch []pendingInput) (outcome rules.StepOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule module panic: %v", r)
		}
	}()

	for _, p := range batch {
		if p.disconnected {
			e.record(currentTick, p.playerIndex, true, nil)
			if d, ok := e.mod.(rules.Disconnector); ok {
				d.Disconnect(p.playerIndex)
			}
			continue
		}
		if applyErr := e.mod.ApplyInput(currentTick, p.playerIndex, p.content); applyErr != nil {
			e.rejectInput(p.playerIndex, applyErr)
			continue
		}
		e.record(currentTick, p.playerIndex, false, p.content)
	}

	outcome = e.mod.Step(currentTick+1, e.rng)
	return outcome, nil
}

func (e *Engine) record(tick uint64, playerIndex int, disconnected bool, content []byte) {
	e.mu.Lock()
	e.actionLog = append(e.actionLog, ActionEntry{
		Tick:         tick,
		PlayerIndex:  playerIndex,
		Disconnected: disconnected,
		Content:      content,
	})
	e.mu.Unlock()
}

func (e *Engine) rejectInput(playerIndex int, cause error) {
	e.logf("SESSION %s: input from seat %d rejected: %v", e.SessionID, playerIndex, cause)
	if e.playerViewer == nil {
		return
	}
	if v := e.playerViewer(playerIndex); v != nil {
		v.Send(wire.NewErrorMessage(wire.ErrInvalidRequest, cause.Error()))
	}
}

func (e *Engine) finish(outcome rules.StepOutcome) {
	e.mu.Lock()
	e.done = true
	e.result = Result{Winner: outcome.Winner, Scores: outcome.Scores, Witness: outcome.Witness}
	e.mu.Unlock()
	e.broadcast(newGameOverMessage(e.SessionID, outcome.Winner, outcome.Scores, outcome.Witness, ""))
}

func (e *Engine) abort(cause error) {
	e.logf("SESSION %s: aborted: %v", e.SessionID, cause)
	e.mu.Lock()
	e.done = true
	e.result = Result{Err: cause}
	e.mu.Unlock()
	e.broadcast(newGameOverMessage(e.SessionID, "", nil, nil, cause.Error()))
}

func (e *Engine) broadcast(msg *wire.ServerMessage) {
	if e.viewers == nil {
		return
	}
	for _, v := range e.viewers() {
		v.Send(msg)
	}
}
