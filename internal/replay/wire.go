package replay

import (
	"sort"

	"github.com/brightbyte/minigames/internal/wire"
)

// Field numbers below intentionally mirror internal/session's
// GameStateUpdate/GameOver layout exactly: a replay's broadcast envelopes
// must be byte-for-byte indistinguishable from a live session's (spec
// §4.5 "replay viewers are indistinguishable from session viewers at the
// wire level").
const (
	fieldGSUSessionID = 1
	fieldGSUTick      = 2
	fieldGSUState     = 3

	fieldGOSessionID = 1
	fieldGOWinner    = 2
	fieldGOScore     = 3
	fieldGOWitness   = 4
	fieldGOError     = 5

	fieldScorePlayer = 1
	fieldScoreValue  = 2
)

func newGameStateUpdateMessage(sessionID string, tick uint64, state []byte) *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldGSUSessionID, sessionID)
	m.SetVarint(fieldGSUTick, tick)
	m.SetBytes(fieldGSUState, state)
	return &wire.ServerMessage{Kind: wire.KindGameStateUpdate, Payload: m.Marshal()}
}

func newGameOverMessage(sessionID, winner string, scores map[string]int64, witness []byte, errMsg string) *wire.ServerMessage {
	m := wire.NewMsg()
	m.SetString(fieldGOSessionID, sessionID)
	m.SetString(fieldGOWinner, winner)
	players := make([]string, 0, len(scores))
	for player := range scores {
		players = append(players, player)
	}
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
