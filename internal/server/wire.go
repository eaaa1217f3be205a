package server

import (
	"github.com/brightbyte/minigames/internal/wire"
)

const (
	fieldConnectClientID = 1
)

// parseConnectRequest decodes the Connect handshake payload: the client's
// self-chosen id (spec §9 "duplicate client id login").
func parseConnectRequest(payload []byte) (string, error) {
	m, err := wire.Unmarshal(payload)
	if err != nil {
		return "", err
	}
	return m.GetString(fieldConnectClientID), nil
}

const (
	fieldCreateReplayName     = 1
	fieldCreateReplayFile     = 2
	fieldCreateReplayHostOnly = 3

	fieldWatchReplayRoomID = 1

	fieldReplayCtrlRoomID          = 1
	fieldReplayCtrlCommand         = 2
	fieldReplayCtrlSpeedHundredths = 3
)

type createReplayLobbyRequest struct {
	Name     string
	File     []byte
	HostOnly bool
}

func parseCreateReplayLobbyRequest(payload []byte) (createReplayLobbyRequest, error) {
	m, err := wire.Unmarshal(payload)
	if err != nil {
		return createReplayLobbyRequest{}, err
	}
	return createReplayLobbyRequest{
		Name:     m.GetString(fieldCreateReplayName),
		File:     m.GetBytes(fieldCreateReplayFile),
		HostOnly: m.GetBool(fieldCreateReplayHostOnly),
	}, nil
}

func parseWatchReplayTogetherRequest(payload []byte) (roomID string, err error) {
	m, err := wire.Unmarshal(payload)
	if err != nil {
		return "", err
	}
	return m.GetString(fieldWatchReplayRoomID), nil
}

type replayControlRequest struct {
	RoomID          string
	Command         replayControl
	SpeedHundredths uint64
}

func parseReplayControlRequest(payload []byte) (replayControlRequest, error) {
	m, err := wire.Unmarshal(payload)
	if err != nil {
		return replayControlRequest{}, err
	}
	cmd, _ := m.GetVarint(fieldReplayCtrlCommand)
	speed, _ := m.GetVarint(fieldReplayCtrlSpeedHundredths)
	return replayControlRequest{
		RoomID:          m.GetString(fieldReplayCtrlRoomID),
		Command:         replayControl(cmd),
		SpeedHundredths: speed,
	}, nil
}

const (
	fieldRGStateSessionID = 1
	fieldRGStateTick      = 2
	fieldRGStateSnapshot  = 3
)

// newReplayGameStateMessage mirrors session.newGameStateUpdateMessage's
// wire layout exactly (spec §4.5: "replay viewers are indistinguishable
// from session viewers at the wire level"), so a room's direct snapshot
// push to a fresh joiner looks identical to the player's own broadcasts.
func newReplayGameStateMessage(roomID string, tick uint64, snapshot []byte) *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldRGStateSessionID, roomID)
	m.SetVarint(fieldRGStateTick, tick)
	m.SetBytes(fieldRGStateSnapshot, snapshot)
	return &wire.ServerMessage{Kind: wire.KindGameStateUpdate, Payload: m.Marshal()}
}

const (
	fieldRSNRoomID = 1
	fieldRSNPaused = 2
	fieldRSNSpeed  = 3
	fieldRSNTick   = 4
	fieldRSNHostID = 5
	fieldRSNName   = 6
)

// stateNotification builds the ReplayStateNotification describing a
// room's current playback state (spec §4.5 replay controls).
func (room *ReplayRoom) stateNotification() *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldRSNRoomID, room.ID)
	m.SetBool(fieldRSNPaused, room.player.Paused())
	m.SetVarint(fieldRSNSpeed, uint64(room.player.Speed()*100))
	m.SetVarint(fieldRSNTick, room.player.CurrentTick())
	m.SetString(fieldRSNHostID, room.hostID)
	m.SetString(fieldRSNName, room.Name)
	return &wire.ServerMessage{Kind: wire.KindReplayStateNotification, Payload: m.Marshal()}
}
