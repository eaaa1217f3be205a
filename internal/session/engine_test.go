package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brightbyte/minigames/internal/rules"
	"github.com/brightbyte/minigames/internal/rules/rowgame"
	"github.com/brightbyte/minigames/internal/wire"
)

// recordingViewer collects every message sent to it, safe for concurrent
// use by the engine's single run-loop goroutine and the test goroutine.
type recordingViewer struct {
	mu   sync.Mutex
	msgs []*wire.ServerMessage
}

func (v *recordingViewer) Send(msg *wire.ServerMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.msgs = append(v.msgs, msg)
}

func (v *recordingViewer) kinds() []wire.Kind {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]wire.Kind, len(v.msgs))
	for i, m := range v.msgs {
		out[i] = m.Kind
	}
	return out
}

func newTestEngine(t *testing.T, v1, v2 *recordingViewer) *Engine {
	t.Helper()
	players := []rules.PlayerSeat{{PlayerID: "p1"}, {PlayerID: "p2"}}
	viewers := func() []Viewer { return []Viewer{v1, v2} }
	playerViewer := func(index int) Viewer {
		if index == 0 {
			return v1
		}
		return v2
	}
	e, err := New("sess-1", "lobby-1", rowgame.Kind, rowgame.Settings(3, 3), 0, players, viewers, playerViewer, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestEngineRunsToGameOver(t *testing.T) {
	v1, v2 := &recordingViewer{}, &recordingViewer{}
	e := newTestEngine(t, v1, v2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	// top row for seat 0: (0,0) (0,1) (0,2), seat 1 plays elsewhere between.
	e.SubmitInput(0, rowgame.Input(0, 0))
	waitTick(t, e, 1)
	e.SubmitInput(1, rowgame.Input(1, 0))
	waitTick(t, e, 2)
	e.SubmitInput(0, rowgame.Input(0, 1))
	waitTick(t, e, 3)
	e.SubmitInput(1, rowgame.Input(1, 1))
	waitTick(t, e, 4)
	e.SubmitInput(0, rowgame.Input(0, 2))

	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not finish in time")
	}

	result := e.Result()
	if result.Err != nil {
		t.Fatalf("unexpected abort: %v", result.Err)
	}
	if result.Winner != "p1" {
		t.Errorf("winner = %q, want p1", result.Winner)
	}

	kinds := v1.kinds()
	if len(kinds) == 0 || kinds[0] != wire.KindGameStarting {
		t.Errorf("first broadcast = %v, want KindGameStarting first", kinds)
	}
	if kinds[len(kinds)-1] != wire.KindGameOver {
		t.Errorf("last broadcast = %v, want KindGameOver last", kinds)
	}
}

func waitTick(t *testing.T, e *Engine, want uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.CurrentTick() >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("engine did not reach tick %d in time (at %d)", want, e.CurrentTick())
}

func TestEngineRejectsOutOfTurnInputWithoutAdvancingOutcome(t *testing.T) {
	v1, v2 := &recordingViewer{}, &recordingViewer{}
	e := newTestEngine(t, v1, v2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	e.SubmitInput(1, rowgame.Input(0, 0)) // seat 1 moves first: illegal
	waitTick(t, e, 1)

	for _, k := range v2.kinds() {
		if k == wire.KindError {
			return
		}
	}
	t.Error("expected seat 1 to receive an Error for its out-of-turn input")
}

func TestEngineOrdersBatchedInputsByArrival(t *testing.T) {
	v1, v2 := &recordingViewer{}, &recordingViewer{}
	e := newTestEngine(t, v1, v2)
	// Both moves land in the same pre-run batch; since each is a legal move
	// in turn at the moment it is applied, both commit to the action log in
	// (receivedAt, playerIndex) arrival order (spec §4.3 Ordering).
	e.SubmitInput(0, rowgame.Input(0, 0))
	e.SubmitInput(1, rowgame.Input(1, 1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)
	waitTick(t, e, 1)

	log := e.ActionLog()
	if len(log) != 2 {
		t.Fatalf("expected both batched moves to commit at tick 0, got %d entries", len(log))
	}
	if log[0].PlayerIndex != 0 || log[1].PlayerIndex != 1 {
		t.Errorf("commit order = [%d %d], want [0 1] (arrival order)", log[0].PlayerIndex, log[1].PlayerIndex)
	}
}

func TestEngineStopDoesNotBroadcastGameOver(t *testing.T) {
	v1, v2 := &recordingViewer{}, &recordingViewer{}
	e := newTestEngine(t, v1, v2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)
	time.Sleep(20 * time.Millisecond) // let the goroutine start and block on wake/tickC

	e.Stop()
	select {
	case <-e.Done():
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
	for _, k := range v1.kinds() {
		if k == wire.KindGameOver {
			t.Error("Stop should not produce a GameOver broadcast")
		}
	}
}
