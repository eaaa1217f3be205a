package lobby

import (
	"github.com/brightbyte/minigames/internal/rules"
	"github.com/brightbyte/minigames/internal/wire"
)

// Field numbers for the full lobby detail projection sent on create/join
// and on every subsequent update (spec §4.2: "full detail").
const (
	fieldLDLobbyID     = 1
	fieldLDName        = 2
	fieldLDMaxPlayers  = 3
	fieldLDCreator     = 4
	fieldLDGameKind    = 5
	fieldLDSettings    = 6
	fieldLDState       = 7
	fieldLDPlayers     = 8 // repeated PlayerEntry
	fieldLDObservers   = 9 // repeated string
	fieldLDChatBacklog = 10

	fieldPEPlayerID = 1
	fieldPEIsBot    = 2
	fieldPEReady    = 3

	fieldChatSender  = 1
	fieldChatMessage = 2
	fieldChatAt      = 3

	fieldSummaryLobbyID         = 1
	fieldSummaryName            = 2
	fieldSummaryGameKind        = 3
	fieldSummaryCurrentPlayers  = 4
	fieldSummaryMaxPlayers      = 5
	fieldSummaryObserverCount   = 6
	fieldLobbyListEntries       = 1
)

// detail builds the full lobby projection (spec §4.2 join/create/update).
func (l *Lobby) detail(backlog []ChatMessage) *wire.Msg {
	m := wire.NewMsg()
	m.SetString(fieldLDLobbyID, l.ID)
	m.SetString(fieldLDName, l.Name)
	m.SetVarint(fieldLDMaxPlayers, uint64(l.MaxPlayers))
	m.SetString(fieldLDCreator, l.creator)
	m.SetString(fieldLDGameKind, string(l.Settings.Kind))
	m.SetBytes(fieldLDSettings, l.Settings.Bytes)
	m.SetVarint(fieldLDState, uint64(l.state))
	for _, seat := range l.players {
		sub := wire.NewMsg()
		sub.SetString(fieldPEPlayerID, seat.Identity.PlayerID)
		sub.SetBool(fieldPEIsBot, seat.Identity.IsBot)
		sub.SetBool(fieldPEReady, seat.Ready)
		m.AddMessage(fieldLDPlayers, sub)
	}
	for _, obs := range l.observerOrder {
		m.AddString(fieldLDObservers, obs)
	}
	for _, c := range backlog {
		sub := wire.NewMsg()
		sub.SetString(fieldChatSender, c.Sender)
		sub.SetString(fieldChatMessage, c.Message)
		sub.SetVarint(fieldChatAt, uint64(c.ServerReceivedAt.UnixMilli()))
		m.AddMessage(fieldLDChatBacklog, sub)
	}
	return m
}

func newLobbyCreatedMessage(l *Lobby) *wire.ServerMessage {
	return &wire.ServerMessage{Kind: wire.KindLobbyCreated, Payload: l.detail(nil).Marshal()}
}

func newLobbyJoinedMessage(l *Lobby, backlog []ChatMessage) *wire.ServerMessage {
	return &wire.ServerMessage{Kind: wire.KindLobbyJoined, Payload: l.detail(backlog).Marshal()}
}

func newLobbyUpdateMessage(l *Lobby) *wire.ServerMessage {
	return &wire.ServerMessage{Kind: wire.KindLobbyUpdate, Payload: l.detail(nil).Marshal()}
}

func newLobbySummary(l *Lobby) *wire.Msg {
	m := wire.NewMsg()
	m.SetString(fieldSummaryLobbyID, l.ID)
	m.SetString(fieldSummaryName, l.Name)
	m.SetString(fieldSummaryGameKind, string(l.Settings.Kind))
	m.SetVarint(fieldSummaryCurrentPlayers, uint64(len(l.players)))
	m.SetVarint(fieldSummaryMaxPlayers, uint64(l.MaxPlayers))
	m.SetVarint(fieldSummaryObserverCount, uint64(len(l.observerOrder)))
	return m
}

// NewLobbyListMessage builds the ListLobbies response from a snapshot of
// public lobbies (spec §4.2 list()).
func NewLobbyListMessage(lobbies []*Lobby) *wire.ServerMessage {
	m := wire.NewMsg()
	for _, l := range lobbies {
		m.AddMessage(fieldLobbyListEntries, newLobbySummary(l))
	}
	return &wire.ServerMessage{Kind: wire.KindLobbyList, Payload: m.Marshal()}
}

// NewLobbyListUpdateMessage is the lightweight "something changed, call
// ListLobbies again" ping (spec §4.2 Notification semantics).
func NewLobbyListUpdateMessage() *wire.ServerMessage {
	return &wire.ServerMessage{Kind: wire.KindLobbyListUpdate, Payload: nil}
}

const fieldRFRLobbyID = 1

// newReplayFileReadyMessage tells a lobby's members a replay file is now
// downloadable for the game that just ended (spec §4.5: a session's action
// log becomes a replay the moment its lobby reaches game_over).
func newReplayFileReadyMessage(lobbyID string) *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldRFRLobbyID, lobbyID)
	return &wire.ServerMessage{Kind: wire.KindReplayFileReadyNotification, Payload: m.Marshal()}
}

const (
	fieldPJLobbyID    = 1
	fieldPJPlayerID   = 2
	fieldPJIsBot      = 3
	fieldPJAsObserver = 4

	fieldPLLobbyID  = 1
	fieldPLPlayerID = 2

	fieldPRLobbyID  = 1
	fieldPRPlayerID = 2
	fieldPRReady    = 3

	fieldKickLobbyID = 1
	fieldKickReason  = 2

	fieldCloseLobbyID = 1
	fieldCloseReason  = 2

	fieldRoleLobbyID  = 1
	fieldRolePlayerID = 2

	fieldPAStatusLobbyID    = 1
	fieldPAStatusAvailable  = 2
	fieldPAStatusConsented  = 3
	fieldPAStatusPending    = 4

	fieldInChatLobbyID = 1
	fieldInChatSender  = 2
	fieldInChatMessage = 3
	fieldInChatAt      = 4

	fieldGlobalChatSender  = 1
	fieldGlobalChatMessage = 2
	fieldGlobalChatAt      = 3
)

func newPlayerJoinedMessage(lobbyID, playerID string, isBot, asObserver bool) *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldPJLobbyID, lobbyID)
	m.SetString(fieldPJPlayerID, playerID)
	m.SetBool(fieldPJIsBot, isBot)
	m.SetBool(fieldPJAsObserver, asObserver)
	return &wire.ServerMessage{Kind: wire.KindPlayerJoined, Payload: m.Marshal()}
}

func newPlayerLeftMessage(lobbyID, playerID string) *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldPLLobbyID, lobbyID)
	m.SetString(fieldPLPlayerID, playerID)
	return &wire.ServerMessage{Kind: wire.KindPlayerLeft, Payload: m.Marshal()}
}

func newPlayerReadyMessage(lobbyID, playerID string, ready bool) *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldPRLobbyID, lobbyID)
	m.SetString(fieldPRPlayerID, playerID)
	m.SetBool(fieldPRReady, ready)
	return &wire.ServerMessage{Kind: wire.KindPlayerReady, Payload: m.Marshal()}
}

func newKickedMessage(lobbyID, reason string) *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldKickLobbyID, lobbyID)
	m.SetString(fieldKickReason, reason)
	return &wire.ServerMessage{Kind: wire.KindKickedFromLobby, Payload: m.Marshal()}
}

func newLobbyClosedMessage(lobbyID, reason string) *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldCloseLobbyID, lobbyID)
	m.SetString(fieldCloseReason, reason)
	return &wire.ServerMessage{Kind: wire.KindLobbyClosed, Payload: m.Marshal()}
}

func newPlayerBecameObserverMessage(lobbyID, playerID string) *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldRoleLobbyID, lobbyID)
	m.SetString(fieldRolePlayerID, playerID)
	return &wire.ServerMessage{Kind: wire.KindPlayerBecameObserver, Payload: m.Marshal()}
}

func newObserverBecamePlayerMessage(lobbyID, playerID string) *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldRoleLobbyID, lobbyID)
	m.SetString(fieldRolePlayerID, playerID)
	return &wire.ServerMessage{Kind: wire.KindObserverBecamePlayer, Payload: m.Marshal()}
}

func newPlayAgainStatusMessage(lobbyID string, available bool, consented, pending []string) *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldPAStatusLobbyID, lobbyID)
	m.SetBool(fieldPAStatusAvailable, available)
	for _, p := range consented {
		m.AddString(fieldPAStatusConsented, p)
	}
	for _, p := range pending {
		m.AddString(fieldPAStatusPending, p)
	}
	return &wire.ServerMessage{Kind: wire.KindPlayAgainStatus, Payload: m.Marshal()}
}

func newInLobbyChatMessage(lobbyID string, c ChatMessage) *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldInChatLobbyID, lobbyID)
	m.SetString(fieldInChatSender, c.Sender)
	m.SetString(fieldInChatMessage, c.Message)
	m.SetVarint(fieldInChatAt, uint64(c.ServerReceivedAt.UnixMilli()))
	return &wire.ServerMessage{Kind: wire.KindInLobbyChatNotification, Payload: m.Marshal()}
}

// NewLobbyListChatMessage builds the global, cross-lobby chat notification
// (spec §4.2 Chat: "Global chat is delivered to clients whose state is
// 'not in a lobby'").
func NewLobbyListChatMessage(c ChatMessage) *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldGlobalChatSender, c.Sender)
	m.SetString(fieldGlobalChatMessage, c.Message)
	m.SetVarint(fieldGlobalChatAt, uint64(c.ServerReceivedAt.UnixMilli()))
	return &wire.ServerMessage{Kind: wire.KindLobbyListChatNotification, Payload: m.Marshal()}
}

// --- inbound request payload parsing ---

const (
	fieldReqName       = 1
	fieldReqMaxPlayers = 2
	fieldReqGameKind   = 3
	fieldReqSettings   = 4

	fieldReqLobbyID   = 1
	fieldReqAsObserver = 2

	fieldReqReady = 1

	fieldReqBotType = 1

	fieldReqTarget = 1

	fieldReqMessage = 1

	fieldReqConsent = 1
)

// CreateLobbyRequest is the parsed CreateLobby payload.
type CreateLobbyRequest struct {
	Name       string
	MaxPlayers int
	GameKind   rules.Kind
	Settings   []byte
}

// ParseCreateLobbyRequest decodes a CreateLobby payload.
func ParseCreateLobbyRequest(payload []byte) (CreateLobbyRequest, error) {
	m, err := wire.Unmarshal(payload)
	if err != nil {
		return CreateLobbyRequest{}, err
	}
	maxPlayers, _ := m.GetVarint(fieldReqMaxPlayers)
	return CreateLobbyRequest{
		Name:       m.GetString(fieldReqName),
		MaxPlayers: int(maxPlayers),
		GameKind:   rules.Kind(m.GetString(fieldReqGameKind)),
		Settings:   m.GetBytes(fieldReqSettings),
	}, nil
}

// ParseJoinLobbyRequest decodes a JoinLobby payload: target lobby id and
// whether the caller wants to join as an observer.
func ParseJoinLobbyRequest(payload []byte) (lobbyID string, asObserver bool, err error) {
	m, err := wire.Unmarshal(payload)
	if err != nil {
		return "", false, err
	}
	return m.GetString(fieldReqLobbyID), m.GetBool(fieldReqAsObserver), nil
}

// ParseMarkReadyRequest decodes a MarkReady payload.
func ParseMarkReadyRequest(payload []byte) (ready bool, err error) {
	m, err := wire.Unmarshal(payload)
	if err != nil {
		return false, err
	}
	return m.GetBool(fieldReqReady), nil
}

// ParseAddBotRequest decodes an AddBot payload.
func ParseAddBotRequest(payload []byte) (botType string, err error) {
	m, err := wire.Unmarshal(payload)
	if err != nil {
		return "", err
	}
	return m.GetString(fieldReqBotType), nil
}

// ParseTargetRequest decodes any payload shaped {target: player_id}, used
// by Kick and MakeObserver.
func ParseTargetRequest(payload []byte) (target string, err error) {
	m, err := wire.Unmarshal(payload)
	if err != nil {
		return "", err
	}
	return m.GetString(fieldReqTarget), nil
}

// ParseChatRequest decodes any payload shaped {message: string}, used by
// both in-lobby and global chat.
func ParseChatRequest(payload []byte) (message string, err error) {
	m, err := wire.Unmarshal(payload)
	if err != nil {
		return "", err
	}
	return m.GetString(fieldReqMessage), nil
}

// ParsePlayAgainRequest decodes a PlayAgain payload: the caller's consent
// (default true if the field is absent, since sending the request at all
// implies "yes").
func ParsePlayAgainRequest(payload []byte) (consent bool, err error) {
	if len(payload) == 0 {
		return true, nil
	}
	m, err := wire.Unmarshal(payload)
	if err != nil {
		return false, err
	}
	if _, ok := m.GetVarint(fieldReqConsent); !ok {
		return true, nil
	}
	return m.GetBool(fieldReqConsent), nil
}
