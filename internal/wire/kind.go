package wire

import "google.golang.org/protobuf/encoding/protowire"

// Kind tags the payload carried by a ClientMessage or ServerMessage,
// standing in for the protobuf oneof spec §6 describes (protowire has no
// native oneof; a small enum plus a length-delimited payload field is the
// standard hand-rolled substitute).
type Kind uint32

const (
	KindUnknown Kind = iota

	// client -> server
	KindConnect
	KindDisconnect
	KindListLobbies
	KindCreateLobby
	KindJoinLobby
	KindLeaveLobby
	KindMarkReady
	KindStartGame
	KindPlayAgain
	KindAddBot
	KindKickFromLobby
	KindBecomeObserver
	KindBecomePlayer
	KindMakePlayerObserver
	KindInLobbyChat
	KindLobbyListChat
	KindPing
	KindInGame
	KindInReplay
	KindCreateReplayLobby
	KindWatchReplayTogetherRequest

	// server -> client
	KindLobbyList
	KindLobbyCreated
	KindLobbyJoined
	KindLobbyUpdate
	KindPlayerJoined
	KindPlayerLeft
	KindPlayerReady
	KindKickedFromLobby
	KindLobbyClosed
	KindLobbyListUpdate
	KindPlayerBecameObserver
	KindObserverBecamePlayer
	KindGameStarting
	KindGameStateUpdate
	KindGameOver
	KindPlayAgainStatus
	KindInLobbyChatNotification
	KindLobbyListChatNotification
	KindReplayStateNotification
	KindReplayFileReadyNotification
	KindShutdown
	KindError
	KindPong
)

// ClientMessage is the envelope wrapping every inbound frame: a protocol
// version string plus a kind-tagged payload.
type ClientMessage struct {
	Version string
	Kind    Kind
	Payload []byte
}

const (
	fieldCMVersion protowire.Number = 1
	fieldCMKind    protowire.Number = 2
	fieldCMPayload protowire.Number = 3
)

// ServerMessage is the envelope wrapping every outbound frame.
type ServerMessage struct {
	Kind    Kind
	Payload []byte
}

const (
	fieldSMKind    protowire.Number = 1
	fieldSMPayload protowire.Number = 2
)
