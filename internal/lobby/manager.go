package lobby

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightbyte/minigames/internal/rules"
	"github.com/brightbyte/minigames/internal/wire"
)

// Manager is the global lobby directory of spec §4.2 list()/create(): a
// short-lived-mutex-guarded map from lobby id to *Lobby, plus the
// client-to-current-lobby tracking that lets a connection teardown
// translate into an implicit Leave (spec §5: "a client disconnect ...
// flushes an implicit Leave").
type Manager struct {
	chatBacklog int
	idleTimeout time.Duration
	logf        func(format string, args ...any)
	onListChanged func()

	mu       sync.Mutex
	lobbies  map[string]*Lobby
	clientOf map[string]string // player id -> current lobby id

	globalChat *chatRing
}

// NewManager constructs a Manager. chatBacklog bounds every lobby's (and
// the global channel's) retained chat history; idleTimeout is the
// duration an empty lobby is kept around before the reaper removes it.
// onListChanged, if non-nil, is invoked after any create/join/leave/close
// that the server core should mirror as a LobbyListUpdate ping to clients
// not currently in a lobby (spec §4.2 Notification semantics).
func NewManager(chatBacklog int, idleTimeout time.Duration, logf func(format string, args ...any), onListChanged func()) *Manager {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Manager{
		chatBacklog:   chatBacklog,
		idleTimeout:   idleTimeout,
		logf:          logf,
		onListChanged: onListChanged,
		lobbies:       make(map[string]*Lobby),
		clientOf:      make(map[string]string),
		globalChat:    newChatRing(chatBacklog),
	}
}

// Create allocates a new lobby owned by creator, who joins it as the
// first player (spec §4.2 create()).
func (m *Manager) Create(creatorID, name string, maxPlayers int, settings Settings, v Viewer) (*Lobby, error) {
	if maxPlayers < 1 {
		return nil, wire.NewError(wire.ErrInvalidRequest, "max_players must be at least 1")
	}
	if name == "" {
		name = "Untitled lobby"
	}

	id := uuid.NewString()
	l := newLobby(m, id, name, maxPlayers, creatorID, settings, m.chatBacklog, m.logf)
	l.players = append(l.players, Seat{Identity: rules.PlayerSeat{PlayerID: creatorID}})
	l.viewers[creatorID] = v

	m.mu.Lock()
	m.lobbies[id] = l
	m.clientOf[creatorID] = id
	m.mu.Unlock()

	m.notifyListChanged()
	return l, nil
}

// Get looks up a lobby by id.
func (m *Manager) Get(lobbyID string) (*Lobby, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lobbies[lobbyID]
	return l, ok
}

// Join routes a JoinLobby request to the target lobby and, on success,
// records the client's current lobby.
func (m *Manager) Join(playerID, lobbyID string, asObserver bool, v Viewer) (*wire.ServerMessage, error) {
	l, ok := m.Get(lobbyID)
	if !ok {
		return nil, wire.NewError(wire.ErrNotFound, "no such lobby")
	}
	msg, err := l.Join(playerID, asObserver, v)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.clientOf[playerID] = lobbyID
	m.mu.Unlock()
	m.notifyListChanged()
	return msg, nil
}

// CurrentLobby returns the lobby a client is presently in, if any.
func (m *Manager) CurrentLobby(playerID string) (*Lobby, bool) {
	m.mu.Lock()
	lobbyID, ok := m.clientOf[playerID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	return m.Get(lobbyID)
}

// Leave removes playerID's current-lobby association and asks the lobby
// to process the leave. Safe to call when the client isn't in any lobby.
func (m *Manager) Leave(playerID string) {
	m.mu.Lock()
	lobbyID, ok := m.clientOf[playerID]
	delete(m.clientOf, playerID)
	m.mu.Unlock()
	if !ok {
		return
	}
	if l, ok := m.Get(lobbyID); ok {
		l.Leave(playerID)
	}
	m.notifyListChanged()
}

// HandleDisconnect is the spec §5 teardown hook: it detaches the viewer
// and performs an implicit Leave for whatever lobby the client was in.
func (m *Manager) HandleDisconnect(playerID string) {
	if l, ok := m.CurrentLobby(playerID); ok {
		l.Detach(playerID)
	}
	m.Leave(playerID)
}

// remove deletes a lobby from the directory once it closes, and drops any
// dangling client associations pointing at it.
func (m *Manager) remove(lobbyID string) {
	m.mu.Lock()
	delete(m.lobbies, lobbyID)
	for player, lid := range m.clientOf {
		if lid == lobbyID {
			delete(m.clientOf, player)
		}
	}
	m.mu.Unlock()
	m.notifyListChanged()
}

// List returns every open lobby for the ListLobbies response (spec §4.2
// list()), in no particular guaranteed order.
func (m *Manager) List() []*Lobby {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Lobby, 0, len(m.lobbies))
	for _, l := range m.lobbies {
		out = append(out, l)
	}
	return out
}

// GlobalChat records and returns a global (not-in-a-lobby) chat message
// for fan-out by the caller (spec §4.2 Chat: "delivered to clients whose
// state is not in a lobby").
func (m *Manager) GlobalChat(sender, message string) ChatMessage {
	c := ChatMessage{Sender: sender, Message: message, ServerReceivedAt: time.Now()}
	m.globalChat.Append(c)
	return c
}

// GlobalChatBacklog returns the retained global chat history.
func (m *Manager) GlobalChatBacklog() []ChatMessage {
	return m.globalChat.Backlog()
}

func (m *Manager) notifyListChanged() {
	if m.onListChanged != nil {
		m.onListChanged()
	}
}

// ReapIdle closes every lobby that has had no members for at least the
// configured idle timeout (spec §9 idle reaping). Intended to be called
// periodically from a background ticker owned by the server core.
func (m *Manager) ReapIdle() {
	for _, l := range m.List() {
		if l.Idle(m.idleTimeout) {
			l.Close("idle timeout")
		}
	}
}

// Shutdown tears down every open lobby, cancelling any running session
// (spec §5 graceful shutdown).
func (m *Manager) Shutdown() {
	for _, l := range m.List() {
		l.Close("server shutting down")
	}
}
