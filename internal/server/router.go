package server

import (
	"time"

	"github.com/brightbyte/minigames/internal/conn"
	"github.com/brightbyte/minigames/internal/lobby"
	"github.com/brightbyte/minigames/internal/rules"
	"github.com/brightbyte/minigames/internal/wire"
)

// Router dispatches every inbound envelope to the component spec.md §4.6
// names, exactly per its table: lobby operations to the lobby manager,
// in-session input to the lobby's current session engine, replay controls
// to the replay manager, everything else handled by the connection layer
// before the envelope ever reaches Dispatch (Connect during the handshake,
// Ping inside internal/conn's own read pump).
type Router struct {
	registry *conn.Registry
	lobbies  *lobby.Manager
	replays  *ReplayManager
	logf     func(format string, args ...any)
}

// NewRouter wires a Router's lobby manager so that any lobby-count change
// (create/join/leave/close) pings every connection not currently in a
// lobby with a LobbyListUpdate (spec §4.2 Notification semantics).
func NewRouter(registry *conn.Registry, chatBacklog int, idleLobbyTimeout time.Duration, logf func(format string, args ...any)) *Router {
	rt := &Router{registry: registry, replays: NewReplayManager(logf), logf: logf}
	rt.lobbies = lobby.NewManager(chatBacklog, idleLobbyTimeout, logf, rt.notifyListChanged)
	return rt
}

// Lobby looks a lobby up by id, for the HTTP replay-download and QR
// handlers that sit outside the websocket dispatch path.
func (rt *Router) Lobby(id string) (*lobby.Lobby, bool) {
	return rt.lobbies.Get(id)
}

func (rt *Router) notifyListChanged() {
	rt.broadcastToLobbyless(lobby.NewLobbyListUpdateMessage())
}

func (rt *Router) broadcastToLobbyless(msg *wire.ServerMessage) {
	for _, c := range rt.registry.Snapshot() {
		if _, ok := rt.lobbies.CurrentLobby(c.ID); !ok {
			c.Send(msg)
		}
	}
}

func codeOf(err error) wire.ErrorCode {
	if werr, ok := err.(*wire.Error); ok {
		return werr.Code
	}
	return wire.ErrInternal
}

// Dispatch handles one decoded inbound envelope from c, replying with an
// Error envelope if the operation fails. msg.Kind == KindConnect or
// KindPing never reach here (spec §4.6: handled by the connection manager
// during the handshake and the read pump, respectively).
func (rt *Router) Dispatch(c *conn.Connection, msg *wire.ClientMessage) {
	clientID := c.ID

	var err error
	switch msg.Kind {
	case wire.KindDisconnect:
		rt.handleDisconnect(clientID)
		c.Close("client disconnect")
		return

	case wire.KindListLobbies:
		c.Send(lobby.NewLobbyListMessage(rt.lobbies.List()))

	case wire.KindCreateLobby:
		err = rt.handleCreateLobby(clientID, c, msg.Payload)

	case wire.KindJoinLobby:
		err = rt.handleJoinLobby(clientID, c, msg.Payload)

	case wire.KindLeaveLobby:
		rt.lobbies.Leave(clientID)

	case wire.KindMarkReady:
		err = rt.withLobby(clientID, func(l *lobby.Lobby) error {
			ready, perr := lobby.ParseMarkReadyRequest(msg.Payload)
			if perr != nil {
				return wire.NewError(wire.ErrInvalidRequest, perr.Error())
			}
			return l.MarkReady(clientID, ready)
		})

	case wire.KindStartGame:
		err = rt.withLobby(clientID, func(l *lobby.Lobby) error { return l.Start(clientID) })

	case wire.KindPlayAgain:
		err = rt.withLobby(clientID, func(l *lobby.Lobby) error {
			consent, perr := lobby.ParsePlayAgainRequest(msg.Payload)
			if perr != nil {
				return wire.NewError(wire.ErrInvalidRequest, perr.Error())
			}
			return l.PlayAgain(clientID, consent)
		})

	case wire.KindAddBot:
		err = rt.withLobby(clientID, func(l *lobby.Lobby) error {
			botType, perr := lobby.ParseAddBotRequest(msg.Payload)
			if perr != nil {
				return wire.NewError(wire.ErrInvalidRequest, perr.Error())
			}
			_, aerr := l.AddBot(clientID, botType)
			return aerr
		})

	case wire.KindKickFromLobby:
		err = rt.withLobby(clientID, func(l *lobby.Lobby) error {
			target, perr := lobby.ParseTargetRequest(msg.Payload)
			if perr != nil {
				return wire.NewError(wire.ErrInvalidRequest, perr.Error())
			}
			return l.Kick(clientID, target)
		})

	case wire.KindBecomeObserver:
		err = rt.withLobby(clientID, func(l *lobby.Lobby) error { return l.BecomeObserver(clientID) })

	case wire.KindBecomePlayer:
		err = rt.withLobby(clientID, func(l *lobby.Lobby) error { return l.BecomePlayer(clientID) })

	case wire.KindMakePlayerObserver:
		err = rt.withLobby(clientID, func(l *lobby.Lobby) error {
			target, perr := lobby.ParseTargetRequest(msg.Payload)
			if perr != nil {
				return wire.NewError(wire.ErrInvalidRequest, perr.Error())
			}
			return l.MakeObserver(clientID, target)
		})

	case wire.KindInLobbyChat:
		err = rt.withLobby(clientID, func(l *lobby.Lobby) error {
			message, perr := lobby.ParseChatRequest(msg.Payload)
			if perr != nil {
				return wire.NewError(wire.ErrInvalidRequest, perr.Error())
			}
			l.Chat(clientID, message)
			return nil
		})

	case wire.KindLobbyListChat:
		message, perr := lobby.ParseChatRequest(msg.Payload)
		if perr != nil {
			err = wire.NewError(wire.ErrInvalidRequest, perr.Error())
			break
		}
		chatMsg := rt.lobbies.GlobalChat(clientID, message)
		rt.broadcastToLobbyless(lobby.NewLobbyListChatMessage(chatMsg))

	case wire.KindInGame:
		err = rt.withLobby(clientID, func(l *lobby.Lobby) error { return l.HandleInput(clientID, msg.Payload) })

	case wire.KindInReplay:
		err = rt.handleReplayControl(clientID, msg.Payload)

	case wire.KindCreateReplayLobby:
		err = rt.handleCreateReplayLobby(clientID, c, msg.Payload)

	case wire.KindWatchReplayTogetherRequest:
		err = rt.handleWatchReplayTogether(clientID, c, msg.Payload)

	default:
		err = wire.NewError(wire.ErrInvalidRequest, "unrecognized message kind")
	}

	if err != nil {
		c.Send(wire.NewErrorMessage(codeOf(err), err.Error()))
	}
}

func (rt *Router) withLobby(clientID string, fn func(l *lobby.Lobby) error) error {
	l, ok := rt.lobbies.CurrentLobby(clientID)
	if !ok {
		return wire.NewError(wire.ErrNotFound, "not in a lobby")
	}
	return fn(l)
}

func (rt *Router) handleCreateLobby(clientID string, c *conn.Connection, payload []byte) error {
	req, err := lobby.ParseCreateLobbyRequest(payload)
	if err != nil {
		return wire.NewError(wire.ErrInvalidRequest, err.Error())
	}
	if !rules.Known(req.GameKind) {
		return wire.NewError(wire.ErrInvalidRequest, "unknown game kind")
	}
	l, err := rt.lobbies.Create(clientID, req.Name, req.MaxPlayers, lobby.Settings{Kind: req.GameKind, Bytes: req.Settings}, c)
	if err != nil {
		return err
	}
	c.Send(l.CreatedMessage())
	return nil
}

func (rt *Router) handleJoinLobby(clientID string, c *conn.Connection, payload []byte) error {
	lobbyID, asObserver, err := lobby.ParseJoinLobbyRequest(payload)
	if err != nil {
		return wire.NewError(wire.ErrInvalidRequest, err.Error())
	}
	resp, err := rt.lobbies.Join(clientID, lobbyID, asObserver, c)
	if err != nil {
		return err
	}
	c.Send(resp)
	return nil
}

func (rt *Router) handleDisconnect(clientID string) {
	rt.replays.Leave(clientID)
	rt.lobbies.HandleDisconnect(clientID)
}

func (rt *Router) handleReplayControl(clientID string, payload []byte) error {
	req, err := parseReplayControlRequest(payload)
	if err != nil {
		return wire.NewError(wire.ErrInvalidRequest, err.Error())
	}
	room, ok := rt.replays.Current(clientID)
	if !ok || room.ID != req.RoomID {
		return wire.NewError(wire.ErrNoSession, "not watching that replay")
	}
	return room.Control(clientID, req.Command, req.SpeedHundredths)
}

func (rt *Router) handleCreateReplayLobby(clientID string, c *conn.Connection, payload []byte) error {
	req, err := parseCreateReplayLobbyRequest(payload)
	if err != nil {
		return wire.NewError(wire.ErrInvalidRequest, err.Error())
	}
	_, err = rt.replays.Create(clientID, req.Name, req.HostOnly, req.File, c)
	return err
}

func (rt *Router) handleWatchReplayTogether(clientID string, c *conn.Connection, payload []byte) error {
	roomID, err := parseWatchReplayTogetherRequest(payload)
	if err != nil {
		return wire.NewError(wire.ErrInvalidRequest, err.Error())
	}
	_, err = rt.replays.Join(clientID, roomID, c)
	return err
}
