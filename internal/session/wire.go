package session

import (
	"sort"

	"github.com/brightbyte/minigames/internal/wire"
)

const (
	fieldGSUSessionID = 1
	fieldGSUTick      = 2
	fieldGSUState     = 3

	fieldGOSessionID = 1
	fieldGOWinner    = 2
	fieldGOScore     = 3 // repeated sub-message {player_id, score}
	fieldGOWitness   = 4
	fieldGOError     = 5

	fieldScorePlayer = 1
	fieldScoreValue  = 2

	fieldGSSessionID = 1
	fieldGSGameKind  = 2
)

// newGameStartingMessage builds the GameStarting envelope emitted once the
// lobby manager transitions a lobby into InGame.
func newGameStartingMessage(sessionID string, kind string) *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldGSSessionID, sessionID)
	m.SetString(fieldGSGameKind, kind)
	return &wire.ServerMessage{Kind: wire.KindGameStarting, Payload: m.Marshal()}
}

// newGameStateUpdateMessage builds the GameStateUpdate envelope emitted
// after every state-changing step (spec §4.3 Broadcast).
func newGameStateUpdateMessage(sessionID string, tick uint64, state []byte) *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldGSUSessionID, sessionID)
	m.SetVarint(fieldGSUTick, tick)
	m.SetBytes(fieldGSUState, state)
	return &wire.ServerMessage{Kind: wire.KindGameStateUpdate, Payload: m.Marshal()}
}

// newGameOverMessage builds the terminal GameOver envelope, including the
// rule-module-specific witness and, on an aborted session, the error
// string (spec §4.3 Failure model).
func newGameOverMessage(sessionID, winner string, scores map[string]int64, witness []byte, errMsg string) *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldGOSessionID, sessionID)
	m.SetString(fieldGOWinner, winner)
	players := make([]string, 0, len(scores))
	for player := range scores {
		players = append(players, player)
	}
	// Sorted by player id so the encoded byte stream is a pure function of
	// (settings, seed, inputs, tick) rather than Go's randomized map
	// iteration order, preserving replay byte-for-byte determinism.
	sort.Strings(players)
	for _, player := range players {
		sub := wire.NewMsg()
		sub.SetString(fieldScorePlayer, player)
		sub.SetInt64(fieldScoreValue, scores[player])
		m.AddMessage(fieldGOScore, sub)
	}
	m.SetBytes(fieldGOWitness, witness)
	m.SetString(fieldGOError, errMsg)
	return &wire.ServerMessage{Kind: wire.KindGameOver, Payload: m.Marshal()}
}
