package stackgame

import (
	"testing"
	"time"

	"github.com/brightbyte/minigames/internal/rules"
)

func newFixedBoard(t *testing.T, spawnRateTicks int) *board {
	t.Helper()
	mod, err := New(Settings(3, 3, 150*time.Millisecond, spawnRateTicks), 0, []rules.PlayerSeat{{PlayerID: "p1"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return mod.(*board)
}

func TestWorkerMovesLeftAndRight(t *testing.T) {
	b := newFixedBoard(t, 1000)
	startX := b.workerX
	if err := b.ApplyInput(0, 0, MoveInput(-1)); err != nil {
		t.Fatalf("move left: %v", err)
	}
	if b.workerX != startX-1 {
		t.Errorf("workerX = %d, want %d", b.workerX, startX-1)
	}
	if err := b.ApplyInput(0, 0, MoveInput(1)); err != nil {
		t.Fatalf("move right: %v", err)
	}
	if b.workerX != startX {
		t.Errorf("workerX = %d, want %d", b.workerX, startX)
	}
}

func TestApplyInputRejectsOutOfBoundsMove(t *testing.T) {
	b := newFixedBoard(t, 1000)
	b.workerX = 0
	if err := b.ApplyInput(0, 0, MoveInput(-1)); err == nil {
		t.Fatal("expected out_of_bounds rejection walking off the left edge")
	}
}

func TestApplyInputRejectsMoveIntoABox(t *testing.T) {
	b := newFixedBoard(t, 1000)
	b.cells[b.idx(b.workerX+1, b.workerY)] = true
	if err := b.ApplyInput(0, 0, MoveInput(1)); err == nil {
		t.Fatal("expected blocked rejection walking into an occupied cell")
	}
}

func TestFullRowClearsAndScores(t *testing.T) {
	b := newFixedBoard(t, 1000) // spawn never triggers within tick 1
	bottom := b.height - 1
	for x := 0; x < b.width; x++ {
		b.cells[b.idx(x, bottom)] = true
	}
	outcome := b.Step(1, rules.NewRand(0))
	if outcome.Over {
		t.Fatal("clearing a row should not by itself end the game")
	}
	if b.score != 1 {
		t.Errorf("score = %d, want 1", b.score)
	}
	if len(b.lastClear) != 1 || b.lastClear[0] != bottom {
		t.Errorf("lastClear = %v, want [%d]", b.lastClear, bottom)
	}
	if b.cells[b.idx(0, bottom)] {
		t.Error("the cleared row should be empty after rows above shift down")
	}
}

func TestSpawnEndsGameWhenEveryColumnIsBlockedToTheTop(t *testing.T) {
	b := newFixedBoard(t, 1) // spawn fires on every tick
	for i := range b.cells {
		b.cells[i] = true
	}
	outcome := b.Step(0, rules.NewRand(0))
	if !outcome.Over {
		t.Fatal("expected game over once no column has room for a new box")
	}
}

func TestDisconnectEndsSinglePlayerGame(t *testing.T) {
	b := newFixedBoard(t, 1000)
	d, ok := rules.Module(b).(rules.Disconnector)
	if !ok {
		t.Fatal("stack_game must implement Disconnector")
	}
	d.Disconnect(0)
	if err := b.ApplyInput(0, 0, MoveInput(1)); err == nil {
		t.Fatal("expected every input to be rejected once the game is over")
	}
}
