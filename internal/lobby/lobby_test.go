package lobby

import (
	"sync"
	"testing"
	"time"

	"github.com/brightbyte/minigames/internal/rules"
	"github.com/brightbyte/minigames/internal/rules/rowgame"
	"github.com/brightbyte/minigames/internal/wire"
)

type fakeViewer struct {
	mu   sync.Mutex
	msgs []*wire.ServerMessage
}

func (v *fakeViewer) Send(msg *wire.ServerMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.msgs = append(v.msgs, msg)
}

func (v *fakeViewer) kinds() []wire.Kind {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]wire.Kind, len(v.msgs))
	for i, m := range v.msgs {
		out[i] = m.Kind
	}
	return out
}

func newTestManager() *Manager {
	return NewManager(16, time.Minute, nil, nil)
}

func rowGameSettings() Settings {
	return Settings{Kind: rowgame.Kind, Bytes: rowgame.Settings(3, 3)}
}

func TestCreateJoinsCreatorAsFirstPlayer(t *testing.T) {
	m := newTestManager()
	host := &fakeViewer{}
	l, err := m.Create("host", "my lobby", 2, rowGameSettings(), host)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if l.PlayerCount() != 1 {
		t.Fatalf("player count = %d, want 1", l.PlayerCount())
	}
	if l.Creator() != "host" {
		t.Errorf("creator = %q, want host", l.Creator())
	}
	got, ok := m.CurrentLobby("host")
	if !ok || got.ID != l.ID {
		t.Errorf("CurrentLobby(host) = %v, %v; want %v, true", got, ok, l.ID)
	}
}

func TestCreateRejectsZeroMaxPlayers(t *testing.T) {
	m := newTestManager()
	if _, err := m.Create("host", "x", 0, rowGameSettings(), &fakeViewer{}); err == nil {
		t.Fatal("expected error for max_players < 1")
	}
}

func TestJoinAsPlayerAndObserver(t *testing.T) {
	m := newTestManager()
	host := &fakeViewer{}
	l, _ := m.Create("host", "lobby", 2, rowGameSettings(), host)

	guest := &fakeViewer{}
	if _, err := m.Join("guest", l.ID, false, guest); err != nil {
		t.Fatalf("join: %v", err)
	}
	if l.PlayerCount() != 2 {
		t.Fatalf("player count = %d, want 2", l.PlayerCount())
	}

	onlooker := &fakeViewer{}
	if _, err := m.Join("onlooker", l.ID, true, onlooker); err != nil {
		t.Fatalf("join as observer: %v", err)
	}
	if l.ObserverCount() != 1 {
		t.Fatalf("observer count = %d, want 1", l.ObserverCount())
	}

	for _, k := range host.kinds() {
		if k == wire.KindPlayerJoined {
			return
		}
	}
	t.Error("host was never notified of the join")
}

func TestJoinRejectsFullLobby(t *testing.T) {
	m := newTestManager()
	l, _ := m.Create("host", "lobby", 1, rowGameSettings(), &fakeViewer{})
	if _, err := m.Join("guest", l.ID, false, &fakeViewer{}); err == nil {
		t.Fatal("expected ErrFull for a one-seat lobby")
	}
}

func TestJoinRejectsDuplicateMember(t *testing.T) {
	m := newTestManager()
	l, _ := m.Create("host", "lobby", 4, rowGameSettings(), &fakeViewer{})
	if _, err := m.Join("host", l.ID, false, &fakeViewer{}); err == nil {
		t.Fatal("expected rejection re-joining as an existing member")
	}
}

func TestJoinRejectsUnknownLobby(t *testing.T) {
	m := newTestManager()
	if _, err := m.Join("guest", "nonexistent", false, &fakeViewer{}); err == nil {
		t.Fatal("expected ErrNotFound for an unknown lobby id")
	}
}

func TestLeaveHandsOffCreatorThenClosesWhenEmpty(t *testing.T) {
	m := newTestManager()
	host, guest := &fakeViewer{}, &fakeViewer{}
	l, _ := m.Create("host", "lobby", 2, rowGameSettings(), host)
	if _, err := m.Join("guest", l.ID, false, guest); err != nil {
		t.Fatalf("join: %v", err)
	}

	m.Leave("host")
	if l.Creator() != "guest" {
		t.Fatalf("creator after host leaves = %q, want guest", l.Creator())
	}
	if l.State() == StateClosed {
		t.Fatal("lobby should stay open with one player remaining")
	}

	m.Leave("guest")
	if l.State() != StateClosed {
		t.Errorf("state after last player leaves = %v, want closed", l.State())
	}
	if _, ok := m.Get(l.ID); ok {
		t.Error("closed lobby should be removed from the directory")
	}
}

func TestMarkReadyIgnoredForObserver(t *testing.T) {
	m := newTestManager()
	l, _ := m.Create("host", "lobby", 2, rowGameSettings(), &fakeViewer{})
	m.Join("watcher", l.ID, true, &fakeViewer{})
	if err := l.MarkReady("watcher", true); err != nil {
		t.Fatalf("mark ready on observer should be a no-op, got error: %v", err)
	}
}

func TestStartRejectsNonCreatorAndNotReady(t *testing.T) {
	m := newTestManager()
	l, _ := m.Create("host", "lobby", 2, rowGameSettings(), &fakeViewer{})
	m.Join("guest", l.ID, false, &fakeViewer{})

	if err := l.Start("guest"); err == nil {
		t.Fatal("expected forbidden error when a non-creator starts")
	}
	if err := l.Start("host"); err == nil {
		t.Fatal("expected conflict error when not every player is ready")
	}
}

func TestStartLaunchesSessionOnceAllReady(t *testing.T) {
	m := newTestManager()
	l, _ := m.Create("host", "lobby", 2, rowGameSettings(), &fakeViewer{})
	m.Join("guest", l.ID, false, &fakeViewer{})
	l.MarkReady("host", true)
	l.MarkReady("guest", true)

	if err := l.Start("host"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if l.State() != StateInGame {
		t.Fatalf("state after start = %v, want in_game", l.State())
	}
	l.Close("test teardown")
}

func TestAddBotCreatorOnly(t *testing.T) {
	m := newTestManager()
	l, _ := m.Create("host", "lobby", 2, rowGameSettings(), &fakeViewer{})
	m.Join("guest", l.ID, false, &fakeViewer{})

	if _, err := l.AddBot("guest", "easy"); err == nil {
		t.Fatal("expected forbidden error for a non-creator add_bot")
	}
	if _, err := l.AddBot("host", "easy"); err == nil {
		t.Fatal("expected full error: lobby already has 2 of 2 seats")
	}
}

func TestAddBotFillsASeat(t *testing.T) {
	m := newTestManager()
	l, _ := m.Create("host", "lobby", 2, rowGameSettings(), &fakeViewer{})
	botID, err := l.AddBot("host", "easy")
	if err != nil {
		t.Fatalf("add bot: %v", err)
	}
	if l.PlayerCount() != 2 {
		t.Fatalf("player count = %d, want 2", l.PlayerCount())
	}
	l.MarkReady("host", true)
	if err := l.Start("host"); err != nil {
		t.Fatalf("start with a bot seated: %v", err)
	}
	if botID == "" {
		t.Error("expected a non-empty bot id")
	}
	l.Close("test teardown")
}

func TestKickRejectsNonCreatorAndCreatorTarget(t *testing.T) {
	m := newTestManager()
	l, _ := m.Create("host", "lobby", 3, rowGameSettings(), &fakeViewer{})
	m.Join("guest", l.ID, false, &fakeViewer{})

	if err := l.Kick("guest", "host"); err == nil {
		t.Fatal("expected forbidden error for a non-creator kick")
	}
	if err := l.Kick("host", "host"); err == nil {
		t.Fatal("expected forbidden error kicking the creator")
	}
}

func TestKickRemovesTarget(t *testing.T) {
	m := newTestManager()
	l, _ := m.Create("host", "lobby", 3, rowGameSettings(), &fakeViewer{})
	m.Join("guest", l.ID, false, &fakeViewer{})

	if err := l.Kick("host", "guest"); err != nil {
		t.Fatalf("kick: %v", err)
	}
	if l.PlayerCount() != 1 {
		t.Fatalf("player count after kick = %d, want 1", l.PlayerCount())
	}
	if _, ok := m.CurrentLobby("guest"); ok {
		t.Error("kicked player should no longer have a current lobby")
	}
}

func TestMakeObserverAndBecomePlayerRoundTrip(t *testing.T) {
	m := newTestManager()
	l, _ := m.Create("host", "lobby", 3, rowGameSettings(), &fakeViewer{})
	m.Join("guest", l.ID, false, &fakeViewer{})

	if err := l.MakeObserver("host", "guest"); err != nil {
		t.Fatalf("make observer: %v", err)
	}
	if l.PlayerCount() != 1 || l.ObserverCount() != 1 {
		t.Fatalf("after make-observer: players=%d observers=%d, want 1/1", l.PlayerCount(), l.ObserverCount())
	}

	if err := l.BecomePlayer("guest"); err != nil {
		t.Fatalf("become player: %v", err)
	}
	if l.PlayerCount() != 2 || l.ObserverCount() != 0 {
		t.Fatalf("after become-player: players=%d observers=%d, want 2/0", l.PlayerCount(), l.ObserverCount())
	}
}

func TestBecomeObserverSelfService(t *testing.T) {
	m := newTestManager()
	l, _ := m.Create("host", "lobby", 3, rowGameSettings(), &fakeViewer{})
	m.Join("guest", l.ID, false, &fakeViewer{})

	if err := l.BecomeObserver("guest"); err != nil {
		t.Fatalf("become observer: %v", err)
	}
	if l.PlayerCount() != 1 || l.ObserverCount() != 1 {
		t.Fatalf("players=%d observers=%d, want 1/1", l.PlayerCount(), l.ObserverCount())
	}
}

func TestBecomePlayerRejectsWhenFull(t *testing.T) {
	m := newTestManager()
	l, _ := m.Create("host", "lobby", 1, rowGameSettings(), &fakeViewer{})
	m.Join("watcher", l.ID, true, &fakeViewer{})
	if err := l.BecomePlayer("watcher"); err == nil {
		t.Fatal("expected full error promoting an observer into a one-seat lobby")
	}
}

func TestChatFansOutAndBacklogsPerLobby(t *testing.T) {
	m := newTestManager()
	host, guest := &fakeViewer{}, &fakeViewer{}
	l, _ := m.Create("host", "lobby", 2, rowGameSettings(), host)
	m.Join("guest", l.ID, false, guest)

	l.Chat("host", "hello")
	for _, v := range []*fakeViewer{host, guest} {
		found := false
		for _, k := range v.kinds() {
			if k == wire.KindInLobbyChatNotification {
				found = true
			}
		}
		if !found {
			t.Error("expected every member to receive the chat broadcast")
		}
	}
	if got := l.chat.Backlog(); len(got) != 1 || got[0].Message != "hello" {
		t.Errorf("lobby chat backlog = %+v, want the single \"hello\" message", got)
	}
}

func TestPlayAgainRequiresAllHumanConsent(t *testing.T) {
	m := newTestManager()
	host, guest := &fakeViewer{}, &fakeViewer{}
	l, _ := m.Create("host", "lobby", 2, rowGameSettings(), host)
	m.Join("guest", l.ID, false, guest)

	// Force a post-game state without running a full session: PlayAgain
	// only cares about StateGameOver and the current roster.
	l.mu.Lock()
	l.state = StateGameOver
	l.mu.Unlock()

	if err := l.PlayAgain("host", true); err != nil {
		t.Fatalf("play again (host consents): %v", err)
	}
	if l.State() != StateGameOver {
		t.Fatalf("state should still be game_over pending guest's consent, got %v", l.State())
	}

	if err := l.PlayAgain("guest", true); err != nil {
		t.Fatalf("play again (guest consents): %v", err)
	}
	if l.State() != StateInGame {
		t.Fatalf("state after unanimous consent = %v, want in_game", l.State())
	}
	l.Close("test teardown")
}

func TestPlayAgainRejectsNonPlayer(t *testing.T) {
	m := newTestManager()
	l, _ := m.Create("host", "lobby", 2, rowGameSettings(), &fakeViewer{})
	l.mu.Lock()
	l.state = StateGameOver
	l.mu.Unlock()

	if err := l.PlayAgain("stranger", true); err == nil {
		t.Fatal("expected forbidden error for a non-player calling play_again")
	}
}

func TestPlayAgainAvailableFalseOncePlayerLeaves(t *testing.T) {
	m := newTestManager()
	l, _ := m.Create("host", "lobby", 2, rowGameSettings(), &fakeViewer{})
	m.Join("guest", l.ID, false, &fakeViewer{})
	original := []rules.PlayerSeat{{PlayerID: "host"}, {PlayerID: "guest"}}

	if !l.PlayAgainAvailable(original) {
		t.Fatal("expected play_again to be available while both players remain")
	}
	m.Leave("guest")
	if l.PlayAgainAvailable(original) {
		t.Fatal("expected play_again to be unavailable once a player has left")
	}
}

func TestPlayAgainRejectsOnceAnOriginalPlayerHasLeft(t *testing.T) {
	m := newTestManager()
	l, _ := m.Create("host", "lobby", 2, rowGameSettings(), &fakeViewer{})
	m.Join("guest", l.ID, false, &fakeViewer{})

	l.mu.Lock()
	l.state = StateGameOver
	l.lastSessionSeats = []rules.PlayerSeat{{PlayerID: "host"}, {PlayerID: "guest"}}
	l.mu.Unlock()

	m.Leave("guest")

	if err := l.PlayAgain("host", true); err == nil {
		t.Fatal("expected play_again to be rejected once an original player has left")
	}
	if l.State() != StateGameOver {
		t.Fatalf("state should remain game_over after a rejected play_again, got %v", l.State())
	}
}

func TestIdleLobbyIsReaped(t *testing.T) {
	m := NewManager(16, time.Millisecond, nil, nil)
	l, _ := m.Create("host", "lobby", 2, rowGameSettings(), &fakeViewer{})
	// Empty the roster directly: m.Leave("host") would close the lobby via
	// the creator-left path before the reaper ever looked at it.
	l.mu.Lock()
	l.players = nil
	l.mu.Unlock()

	time.Sleep(5 * time.Millisecond)
	m.ReapIdle()
	if _, ok := m.Get(l.ID); ok {
		t.Error("expected the idle, member-less lobby to be reaped")
	}
}

func TestHandleInputRejectsWithoutSession(t *testing.T) {
	m := newTestManager()
	l, _ := m.Create("host", "lobby", 2, rowGameSettings(), &fakeViewer{})
	if err := l.HandleInput("host", rowgame.Input(0, 0)); err == nil {
		t.Fatal("expected no_session error before a game has started")
	}
}
