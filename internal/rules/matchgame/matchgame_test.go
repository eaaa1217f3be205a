package matchgame

import (
	"testing"

	"github.com/brightbyte/minigames/internal/rules"
)

func newFixedBoard(t *testing.T) *board {
	t.Helper()
	return newFixedBoardWithHints(t, 0)
}

func newFixedBoardWithHints(t *testing.T, hints int) *board {
	t.Helper()
	mod, err := New(Settings(2, hints, 0), 0, []rules.PlayerSeat{{PlayerID: "p1"}, {PlayerID: "p2"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b := mod.(*board)
	// Override the shuffled deck with a known layout: slots 0,1 are a pair,
	// slots 2,3 are a pair.
	b.symbols = []int{0, 0, 1, 1}
	b.revealed = make([]bool, 4)
	b.matched = make([]bool, 4)
	return b
}

func TestRevealRejectsOutOfTurnAndOccupiedSlots(t *testing.T) {
	b := newFixedBoard(t)
	if err := b.ApplyInput(0, 1, RevealInput(0)); err == nil {
		t.Fatal("expected rejection: player 1 moves before player 0")
	}
	if err := b.ApplyInput(0, 0, RevealInput(0)); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if err := b.ApplyInput(0, 0, RevealInput(0)); err == nil {
		t.Fatal("expected rejection re-revealing the same pending slot")
	}
}

func TestMatchingPairScoresAndStaysFaceUp(t *testing.T) {
	b := newFixedBoard(t)
	if err := b.ApplyInput(0, 0, RevealInput(0)); err != nil {
		t.Fatalf("reveal 0: %v", err)
	}
	if err := b.ApplyInput(0, 0, RevealInput(1)); err != nil {
		t.Fatalf("reveal 1: %v", err)
	}
	outcome := b.Step(1, rules.NewRand(0))
	if outcome.Over {
		t.Fatal("board isn't exhausted yet; two more slots remain")
	}
	if !b.matched[0] || !b.matched[1] {
		t.Error("matched slots should stay permanently matched")
	}
	if b.score != 1 {
		t.Errorf("score = %d, want 1", b.score)
	}
	if b.turn != 1 {
		t.Errorf("turn should advance to player 1, got %d", b.turn)
	}
}

func TestMismatchFlipsBackAndPassesTurn(t *testing.T) {
	b := newFixedBoard(t)
	if err := b.ApplyInput(0, 0, RevealInput(0)); err != nil {
		t.Fatalf("reveal 0: %v", err)
	}
	if err := b.ApplyInput(0, 0, RevealInput(2)); err != nil {
		t.Fatalf("reveal 2: %v", err)
	}
	b.Step(1, rules.NewRand(0))
	if b.revealed[0] || b.revealed[2] {
		t.Error("a mismatched pair should flip back face-down")
	}
	if b.matched[0] || b.matched[2] {
		t.Error("a mismatched pair must not be marked matched")
	}
	if b.turn != 1 {
		t.Errorf("turn should pass to player 1 on a mismatch, got %d", b.turn)
	}
}

func TestBoardExhaustedEndsGameWithNoReserves(t *testing.T) {
	b := newFixedBoard(t)
	b.ApplyInput(0, 0, RevealInput(0))
	b.ApplyInput(0, 0, RevealInput(1))
	if outcome := b.Step(1, rules.NewRand(0)); outcome.Over {
		t.Fatal("board should not be exhausted after only one of two pairs matches")
	}
	b.ApplyInput(1, 1, RevealInput(2))
	b.ApplyInput(1, 1, RevealInput(3))
	outcome := b.Step(2, rules.NewRand(0))
	if !outcome.Over {
		t.Fatal("expected game over once every pair is matched and no reserve remains")
	}
	if outcome.Scores["p1"] != 2 || outcome.Scores["p2"] != 2 {
		t.Errorf("scores = %+v, want a shared team score of 2 for both players", outcome.Scores)
	}
}

func TestHintRevealsAPairForOneTickThenHidesIt(t *testing.T) {
	b := newFixedBoardWithHints(t, 1)
	if err := b.ApplyInput(0, 1, HintInput()); err != nil {
		t.Fatalf("hint should be usable by any player regardless of turn: %v", err)
	}
	if b.hints != 0 {
		t.Errorf("hints = %d, want 0 after spending the only hint", b.hints)
	}
	a, c := b.hintRev[0], b.hintRev[1]
	if !b.revealed[a] || !b.revealed[c] {
		t.Fatal("the hinted pair should be revealed immediately")
	}
	if b.symbols[a] != b.symbols[c] {
		t.Errorf("hinted slots %d,%d are not actually a matching pair", a, c)
	}

	b.Step(1, rules.NewRand(0))
	if b.revealed[a] || b.revealed[c] {
		t.Error("the hinted pair should flip back face-down after one tick")
	}
	if b.matched[a] || b.matched[c] {
		t.Error("a hint must not itself score a match")
	}
	if b.turn != 0 {
		t.Error("spending a hint must not advance the turn")
	}
}

func TestHintRejectsOnceExhausted(t *testing.T) {
	b := newFixedBoardWithHints(t, 0)
	if err := b.ApplyInput(0, 0, HintInput()); err == nil {
		t.Fatal("expected rejection spending a hint with none left")
	}
}

func TestHintedSlotCannotBeRevealedWhileShown(t *testing.T) {
	b := newFixedBoardWithHints(t, 1)
	if err := b.ApplyInput(0, 0, HintInput()); err != nil {
		t.Fatalf("spend hint: %v", err)
	}
	hinted := b.hintRev[0]
	if err := b.ApplyInput(0, 0, RevealInput(hinted)); err == nil {
		t.Fatal("expected rejection revealing a slot the hint already shows")
	}
}

func TestDisconnectPausesFurtherReveals(t *testing.T) {
	b := newFixedBoard(t)
	d, ok := rules.Module(b).(rules.Disconnector)
	if !ok {
		t.Fatal("match_game must implement Disconnector")
	}
	d.Disconnect(0)
	if err := b.ApplyInput(0, 0, RevealInput(0)); err == nil {
		t.Fatal("expected every reveal to be rejected once paused")
	}
}
