package gridgame

import (
	"testing"
	"time"

	"github.com/brightbyte/minigames/internal/rules"
)

func twoPlayers() []rules.PlayerSeat {
	return []rules.PlayerSeat{{PlayerID: "p1"}, {PlayerID: "p2"}}
}

func noFoodSettings() []byte {
	return Settings(5, 5, false, 100*time.Millisecond, 0, 0)
}

func TestNewRejectsTooSmallGrid(t *testing.T) {
	if _, err := New(Settings(2, 2, false, 0, 0, 0), 0, twoPlayers()); err == nil {
		t.Fatal("expected error for a grid smaller than 3x3")
	}
}

func TestNewRejectsNoPlayers(t *testing.T) {
	if _, err := New(noFoodSettings(), 0, nil); err == nil {
		t.Fatal("expected error with zero players")
	}
}

func TestApplyInputRejectsDeadPlayer(t *testing.T) {
	mod, err := New(noFoodSettings(), 0, twoPlayers())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b := mod.(*board)
	b.trails[0].alive = false
	if err := mod.ApplyInput(0, 0, Input(DirUp)); err == nil {
		t.Fatal("expected rejection applying input for a dead player")
	}
}

func TestApplyInputRejectsReversingIntoSelf(t *testing.T) {
	mod, err := New(noFoodSettings(), 0, twoPlayers())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b := mod.(*board)
	b.trails[0].dir = DirRight
	b.trails[0].cells = append(b.trails[0].cells, cell{b.trails[0].cells[0].x - 1, b.trails[0].cells[0].y})
	if err := mod.ApplyInput(0, 0, Input(DirLeft)); err == nil {
		t.Fatal("expected rejection reversing directly into the trail's own body")
	}
}

// TestWallDeathEndsSinglePlayerGame drives a lone player off the grid's
// non-wrapping edge and checks the game ends immediately.
func TestWallDeathEndsSinglePlayerGame(t *testing.T) {
	mod, err := New(noFoodSettings(), 0, []rules.PlayerSeat{{PlayerID: "p1"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := mod.ApplyInput(0, 0, Input(DirLeft)); err != nil {
		t.Fatalf("apply input: %v", err)
	}
	b := mod.(*board)
	b.trails[0].cells[0] = cell{0, b.height / 2} // start at the left edge

	outcome := mod.Step(1, rules.NewRand(0))
	if !outcome.Over {
		t.Fatal("expected the game to end once the only player dies")
	}
}

// TestLastSurvivorEndsGameHigherScoreWins has player 0 walk off the edge
// while player 1 never moves, so player 1 is the sole survivor; the game
// ends and player 1 wins because it leads on score.
func TestLastSurvivorEndsGameHigherScoreWins(t *testing.T) {
	mod, err := New(noFoodSettings(), 0, twoPlayers())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b := mod.(*board)
	b.trails[0].cells[0] = cell{0, b.height / 2} // player 0 starts at the left edge
	b.trails[1].score = 1                        // already ahead on points before the elimination
	if err := mod.ApplyInput(0, 0, Input(DirLeft)); err != nil {
		t.Fatalf("apply input: %v", err)
	}

	outcome := mod.Step(1, rules.NewRand(0))
	if !outcome.Over {
		t.Fatal("expected the game to end once only one trail remains")
	}
	// grid_game scores points, not eliminations: the survivor only wins the
	// tiebreak because it leads on score, not merely by outliving player 0.
	if outcome.Winner != "p2" {
		t.Errorf("winner = %q, want p2 (leads on score)", outcome.Winner)
	}
}

func TestDisconnectKillsTrail(t *testing.T) {
	mod, err := New(noFoodSettings(), 0, twoPlayers())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	d, ok := mod.(rules.Disconnector)
	if !ok {
		t.Fatal("grid_game must implement Disconnector")
	}
	b := mod.(*board)
	b.trails[1].score = 1 // break the score tie so the survivor wins outright
	d.Disconnect(0)
	outcome := mod.Step(1, rules.NewRand(0))
	if !outcome.Over {
		t.Fatal("expected game over once disconnect leaves a sole survivor")
	}
	if outcome.Winner != "p2" {
		t.Errorf("winner = %q, want p2", outcome.Winner)
	}
}
