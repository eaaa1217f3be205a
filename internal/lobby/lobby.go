package lobby

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightbyte/minigames/internal/replay"
	"github.com/brightbyte/minigames/internal/rules"
	"github.com/brightbyte/minigames/internal/session"
	"github.com/brightbyte/minigames/internal/wire"
)

// Lobby is the finite state machine of spec §3/§4.2: an exclusively
// owned set of players, observers, readiness flags, and chat, with
// host (creator) privileges gating mutating operations. All mutation
// happens under mu, held only for the duration of one state transition.
// Viewer.Send fan-out happens while mu is held; Send itself never
// blocks (spec §9), so the lock is never held across I/O.
type Lobby struct {
	ID         string
	Name       string
	MaxPlayers int
	Settings   Settings
	CreatedAt  time.Time

	manager *Manager
	chat    *chatRing
	logf    func(format string, args ...any)

	mu               sync.Mutex
	creator          string
	state            State
	players          []Seat
	observerOrder    []string
	viewers          map[string]Viewer
	lastActivity     time.Time
	engine           *session.Engine
	engineCancel     context.CancelFunc
	lastReplay       *replay.Replay
	lastSessionSeats []rules.PlayerSeat
	playAgainConsent map[string]bool
}

func newLobby(m *Manager, id, name string, maxPlayers int, creator string, settings Settings, chatBacklog int, logf func(string, ...any)) *Lobby {
	l := &Lobby{
		ID:         id,
		Name:       name,
		MaxPlayers: maxPlayers,
		Settings:   settings,
		CreatedAt:  time.Now(),
		manager:    m,
		chat:       newChatRing(chatBacklog),
		logf:       logf,
		creator:    creator,
		state:      StateWaiting,
		viewers:    make(map[string]Viewer),
	}
	l.lastActivity = l.CreatedAt
	return l
}

// State reports the lobby's current FSM state.
func (l *Lobby) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Creator reports the current host's player id.
func (l *Lobby) Creator() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creator
}

// PlayerCount and ObserverCount back the public lobby list summary and
// the idle reaper.
func (l *Lobby) PlayerCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.players)
}

// ObserverCount reports the number of current observers.
func (l *Lobby) ObserverCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.observerOrder)
}

func (l *Lobby) memberCount() int {
	return len(l.players) + len(l.observerOrder)
}

// Idle reports whether the lobby has had no members/observers for at
// least d (spec §9 idle reaping via the configured timeout).
func (l *Lobby) Idle(d time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.memberCount() == 0 && time.Since(l.lastActivity) >= d
}

// Attach registers a live connection as the viewer for a player/observer
// id already seated in the lobby (called right after Join/AddBot, and
// again on router (re)connect).
func (l *Lobby) Attach(playerID string, v Viewer) {
	l.mu.Lock()
	l.viewers[playerID] = v
	l.mu.Unlock()
}

// Detach removes a viewer, e.g. on connection teardown, without treating
// it as a Leave (the caller decides separately whether to also call
// Leave for an implicit disconnect-leave).
func (l *Lobby) Detach(playerID string) {
	l.mu.Lock()
	delete(l.viewers, playerID)
	l.mu.Unlock()
}

func (l *Lobby) seatIndex(playerID string) int {
	for i, s := range l.players {
		if s.Identity.PlayerID == playerID {
			return i
		}
	}
	return -1
}

func (l *Lobby) isObserver(playerID string) bool {
	for _, o := range l.observerOrder {
		if o == playerID {
			return true
		}
	}
	return false
}

func (l *Lobby) touch() { l.lastActivity = time.Now() }

// broadcastLocked fans out msg to every current viewer. Callers must hold
// mu; Send itself never blocks (spec §9), so this never stalls the
// lobby's critical section.
func (l *Lobby) broadcastLocked(msg *wire.ServerMessage) {
	for _, v := range l.viewers {
		v.Send(msg)
	}
}

func (l *Lobby) sendTo(playerID string, msg *wire.ServerMessage) {
	if v, ok := l.viewers[playerID]; ok {
		v.Send(msg)
	}
}

// Join appends caller as a player or observer (spec §4.2 join()).
func (l *Lobby) Join(playerID string, asObserver bool, v Viewer) (*wire.ServerMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateWaiting {
		return nil, wire.NewError(wire.ErrConflict, "closed")
	}
	if l.seatIndex(playerID) >= 0 || l.isObserver(playerID) {
		return nil, wire.NewError(wire.ErrConflict, "already a member")
	}
	if !asObserver && len(l.players) >= l.MaxPlayers {
		return nil, wire.NewError(wire.ErrFull, "lobby full")
	}

	if asObserver {
		l.observerOrder = append(l.observerOrder, playerID)
	} else {
		l.players = append(l.players, Seat{Identity: rules.PlayerSeat{PlayerID: playerID}})
	}
	l.viewers[playerID] = v
	l.touch()

	l.broadcastLocked(newPlayerJoinedMessage(l.ID, playerID, false, asObserver))
	resp := newLobbyJoinedMessage(l, l.chat.Backlog())
	return resp, nil
}

// Leave removes caller; if they were creator, hands the host role to the
// next player by seat order; dissolves the lobby once empty (spec §4.2
// leave()).
func (l *Lobby) Leave(playerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.leaveLocked(playerID)
}

func (l *Lobby) leaveLocked(playerID string) {
	wasCreator := l.creator == playerID
	removed := false

	if idx := l.seatIndex(playerID); idx >= 0 {
		l.players = append(l.players[:idx], l.players[idx+1:]...)
		removed = true
	} else {
		for i, o := range l.observerOrder {
			if o == playerID {
				l.observerOrder = append(l.observerOrder[:i], l.observerOrder[i+1:]...)
				removed = true
				break
			}
		}
	}
	if !removed {
		return
	}
	delete(l.viewers, playerID)
	l.touch()

	if l.state == StateInGame && l.engine != nil {
		if idx := l.lastSeatIndexOf(playerID); idx >= 0 {
			l.engine.Disconnect(idx)
		}
	}

	if !wasCreator {
		l.broadcastLocked(newPlayerLeftMessage(l.ID, playerID))
		l.maybeCloseLocked()
		return
	}

	if len(l.players) == 0 {
		l.broadcastLocked(newPlayerLeftMessage(l.ID, playerID))
		l.closeLocked("creator left")
		return
	}
	l.creator = l.players[0].Identity.PlayerID
	l.broadcastLocked(newPlayerLeftMessage(l.ID, playerID))
	l.broadcastLocked(newLobbyUpdateMessage(l))
}

// lastSeatIndexOf looks a player up against the session's captured seat
// list (which is immutable once a session starts, spec §3), not the
// lobby's live roster.
func (l *Lobby) lastSeatIndexOf(playerID string) int {
	if l.engine == nil {
		return -1
	}
	for i, p := range l.engine.Players {
		if p.PlayerID == playerID {
			return i
		}
	}
	return -1
}

func (l *Lobby) maybeCloseLocked() {
	if l.memberCount() == 0 && l.state != StateInGame {
		l.closeLocked("empty")
	}
}

func (l *Lobby) closeLocked(reason string) {
	if l.state == StateClosed {
		return
	}
	l.state = StateClosed
	l.broadcastLocked(newLobbyClosedMessage(l.ID, reason))
	if l.manager != nil {
		l.manager.remove(l.ID)
	}
}

// MarkReady sets caller's readiness; ignored for observers (spec §4.2
// mark_ready()).
func (l *Lobby) MarkReady(playerID string, ready bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.seatIndex(playerID)
	if idx < 0 {
		return nil
	}
	l.players[idx].Ready = ready
	l.touch()
	l.broadcastLocked(newPlayerReadyMessage(l.ID, playerID, ready))
	return nil
}

// AddBot allocates a bot seat; creator only (spec §4.2 add_bot()). Bot
// control is an external collaborator out of this core's scope (spec
// §1); the seat simply never receives input unless something connects
// under the minted bot identity.
func (l *Lobby) AddBot(callerID, botType string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if callerID != l.creator {
		return "", wire.NewError(wire.ErrForbidden, "only the creator may add a bot")
	}
	if l.state != StateWaiting {
		return "", wire.NewError(wire.ErrConflict, "closed")
	}
	if len(l.players) >= l.MaxPlayers {
		return "", wire.NewError(wire.ErrFull, "lobby full")
	}

	botID := fmt.Sprintf("bot-%s", uuid.NewString())
	l.players = append(l.players, Seat{Identity: rules.PlayerSeat{PlayerID: botID, IsBot: true}, Ready: true})
	l.touch()
	l.broadcastLocked(newPlayerJoinedMessage(l.ID, botID, true, false))
	return botID, nil
}

// Kick removes target; creator only, target must not be the creator
// (spec §3 invariant vi, §4.2 kick()).
func (l *Lobby) Kick(callerID, target string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if callerID != l.creator {
		return wire.NewError(wire.ErrForbidden, "only the creator may kick")
	}
	if target == l.creator {
		return wire.NewError(wire.ErrForbidden, "cannot kick the creator")
	}
	if l.seatIndex(target) < 0 && !l.isObserver(target) {
		return wire.NewError(wire.ErrNotFound, "not a member")
	}

	l.sendTo(target, newKickedMessage(l.ID, "kicked by host"))
	l.leaveLocked(target)
	if m := l.manager; m != nil {
		m.mu.Lock()
		if m.clientOf[target] == l.ID {
			delete(m.clientOf, target)
		}
		m.mu.Unlock()
	}
	return nil
}

// MakeObserver demotes target from player to observer; creator only.
func (l *Lobby) MakeObserver(callerID, target string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if callerID != l.creator {
		return wire.NewError(wire.ErrForbidden, "only the creator may change roles")
	}
	idx := l.seatIndex(target)
	if idx < 0 {
		return wire.NewError(wire.ErrNotFound, "not a player")
	}
	if l.players[idx].Identity.IsBot {
		return wire.NewError(wire.ErrForbidden, "bots cannot become observers")
	}
	l.players = append(l.players[:idx], l.players[idx+1:]...)
	l.observerOrder = append(l.observerOrder, target)
	l.touch()
	l.broadcastLocked(newPlayerBecameObserverMessage(l.ID, target))
	return nil
}

// BecomeObserver is the self-service equivalent of MakeObserver.
func (l *Lobby) BecomeObserver(playerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.seatIndex(playerID)
	if idx < 0 {
		return wire.NewError(wire.ErrNotFound, "not a player")
	}
	l.players = append(l.players[:idx], l.players[idx+1:]...)
	l.observerOrder = append(l.observerOrder, playerID)
	l.touch()
	l.broadcastLocked(newPlayerBecameObserverMessage(l.ID, playerID))
	return nil
}

// BecomePlayer promotes an observer to a player seat; only valid if the
// roster is not at capacity (spec §4.2).
func (l *Lobby) BecomePlayer(playerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	found := -1
	for i, o := range l.observerOrder {
		if o == playerID {
			found = i
			break
		}
	}
	if found < 0 {
		return wire.NewError(wire.ErrNotFound, "not an observer")
	}
	if len(l.players) >= l.MaxPlayers {
		return wire.NewError(wire.ErrFull, "lobby full")
	}
	l.observerOrder = append(l.observerOrder[:found], l.observerOrder[found+1:]...)
	l.players = append(l.players, Seat{Identity: rules.PlayerSeat{PlayerID: playerID}})
	l.touch()
	l.broadcastLocked(newObserverBecamePlayerMessage(l.ID, playerID))
	return nil
}

func randomSeed() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint64(b[:])
}

// Start transitions Waiting -> Starting -> InGame, instantiating the
// session engine (spec §4.2 start()). Creator only; requires every
// player ready and the seat count within the rule module's bounds.
func (l *Lobby) Start(callerID string) error {
	l.mu.Lock()
	if callerID != l.creator {
		l.mu.Unlock()
		return wire.NewError(wire.ErrForbidden, "only the creator may start")
	}
	if l.state != StateWaiting {
		l.mu.Unlock()
		return wire.NewError(wire.ErrConflict, "not waiting")
	}
	for _, s := range l.players {
		if !s.Ready {
			l.mu.Unlock()
			return wire.NewError(wire.ErrConflict, "not all players ready")
		}
	}
	seats := make([]rules.PlayerSeat, len(l.players))
	for i, s := range l.players {
		seats[i] = s.Identity
	}
	l.state = StateStarting
	l.mu.Unlock()

	if err := l.launchSession(seats); err != nil {
		l.mu.Lock()
		l.state = StateWaiting
		l.mu.Unlock()
		return wire.NewError(wire.ErrInvalidRequest, err.Error())
	}
	return nil
}

func (l *Lobby) launchSession(seats []rules.PlayerSeat) error {
	mod, err := rules.New(l.Settings.Kind, l.Settings.Bytes, 0, seats)
	if err != nil {
		return err
	}
	if b := mod.PlayerBounds(); len(seats) < b.Min || len(seats) > b.Max {
		return fmt.Errorf("player count %d outside %d..%d", len(seats), b.Min, b.Max)
	}

	sessionID := uuid.NewString()
	seed := randomSeed()

	engine, err := session.New(
		sessionID, l.ID, l.Settings.Kind, l.Settings.Bytes, seed, seats,
		l.liveViewers, l.seatViewer, l.logf,
	)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.engine = engine
	l.state = StateInGame
	l.playAgainConsent = nil
	l.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	l.mu.Lock()
	l.engineCancel = cancel
	l.mu.Unlock()

	go l.runSession(ctx, engine)
	return nil
}

func (l *Lobby) liveViewers() []Viewer {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Viewer, 0, len(l.viewers))
	for _, v := range l.viewers {
		out = append(out, v)
	}
	return out
}

func (l *Lobby) seatViewer(index int) Viewer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engine == nil || index < 0 || index >= len(l.engine.Players) {
		return nil
	}
	return l.viewers[l.engine.Players[index].PlayerID]
}

// runSession drives engine.Run to completion, then performs the
// InGame -> GameOver transition and retains its action log as the
// just-played replay (spec §3 Session lifecycle).
func (l *Lobby) runSession(ctx context.Context, engine *session.Engine) {
	engine.Run(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engine != engine || l.state == StateClosed {
		return
	}
	result := engine.Result()
	l.lastReplay = &replay.Replay{
		Header: replay.Header{
			EngineVersion: EngineVersion,
			StartedAt:     engine.StartedAt,
			GameKind:      engine.GameKind,
			Seed:          engine.Seed,
			Settings:      engine.SettingsBytes,
			Players:       engine.Players,
		},
		Actions: engine.ActionLog(),
	}
	if result.Err != nil {
		l.lastReplay = nil
	}
	l.state = StateGameOver
	l.lastSessionSeats = engine.Players
	l.playAgainConsent = make(map[string]bool)
	l.broadcastLocked(newLobbyUpdateMessage(l))
	if l.lastReplay != nil {
		l.broadcastLocked(newReplayFileReadyMessage(l.ID))
	}
}

// EngineVersion tags every replay captured by this build (spec §4.5
// engine_version: "identifying the rule-module semantics at capture
// time").
const EngineVersion = "minigames-core/1"

// Replay returns the action log retained from the just-played session,
// if any (spec §3: "retained inside the lobby as the just-played replay
// until the lobby itself is torn down or a new session starts").
func (l *Lobby) Replay() (*replay.Replay, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastReplay == nil {
		return nil, false
	}
	return l.lastReplay, true
}

// HandleInput routes one InGame client input to the active session
// engine, or fails no_session if none is running.
func (l *Lobby) HandleInput(playerID string, content []byte) error {
	l.mu.Lock()
	engine := l.engine
	state := l.state
	l.mu.Unlock()
	if state != StateInGame || engine == nil {
		return wire.NewError(wire.ErrNoSession, "no active session")
	}
	idx := l.lastSeatIndexOf(playerID)
	if idx < 0 {
		return wire.NewError(wire.ErrForbidden, "not a player in this session")
	}
	engine.SubmitInput(idx, content)
	return nil
}

// PlayAgain collects per-player consent and, once every remaining human
// player has consented, resets the lobby to a fresh session with the
// same settings and seat order (spec §4.2 play_again()).
func (l *Lobby) PlayAgain(playerID string, consent bool) error {
	l.mu.Lock()
	if l.state != StateGameOver {
		l.mu.Unlock()
		return wire.NewError(wire.ErrConflict, "not game over")
	}
	if !l.playAgainAvailableLocked(l.lastSessionSeats) {
		l.broadcastLocked(newPlayAgainStatusMessage(l.ID, false, nil, nil))
		l.mu.Unlock()
		return wire.NewError(wire.ErrConflict, "play again is no longer available: a player from the original session has left")
	}
	if l.playAgainConsent == nil {
		l.playAgainConsent = make(map[string]bool)
	}
	if l.seatIndex(playerID) < 0 {
		l.mu.Unlock()
		return wire.NewError(wire.ErrForbidden, "not a player")
	}
	l.playAgainConsent[playerID] = consent

	var consented, pending []string
	allIn := true
	for _, s := range l.players {
		if s.Identity.IsBot {
			continue
		}
		if l.playAgainConsent[s.Identity.PlayerID] {
			consented = append(consented, s.Identity.PlayerID)
		} else {
			pending = append(pending, s.Identity.PlayerID)
			allIn = false
		}
	}
	seats := make([]rules.PlayerSeat, len(l.players))
	for i, s := range l.players {
		seats[i] = s.Identity
	}
	l.broadcastLocked(newPlayAgainStatusMessage(l.ID, true, consented, pending))
	l.mu.Unlock()

	if !allIn || !consent {
		return nil
	}
	return l.launchSession(seats)
}

// PlayAgainAvailable reports whether play_again can be offered at all —
// false once any original player has left (spec §4.2 play_again()).
func (l *Lobby) PlayAgainAvailable(original []rules.PlayerSeat) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.playAgainAvailableLocked(original)
}

func (l *Lobby) playAgainAvailableLocked(original []rules.PlayerSeat) bool {
	for _, p := range original {
		if p.IsBot {
			continue
		}
		if l.seatIndex(p.PlayerID) < 0 {
			return false
		}
	}
	return true
}

// Chat delivers an in-lobby chat message to every current member and
// observer (spec §4.2 Chat).
func (l *Lobby) Chat(sender, message string) {
	c := ChatMessage{Sender: sender, Message: message, ServerReceivedAt: time.Now()}
	l.chat.Append(c)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.broadcastLocked(newInLobbyChatMessage(l.ID, c))
}

// CreatedMessage builds the LobbyCreated envelope for the lobby's
// creator, right after Manager.Create.
func (l *Lobby) CreatedMessage() *wire.ServerMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return newLobbyCreatedMessage(l)
}

// Close tears the lobby down immediately (explicit close, spec §3
// Lobby lifecycle).
func (l *Lobby) Close(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engineCancel != nil {
		l.engineCancel()
	}
	l.closeLocked(reason)
}
