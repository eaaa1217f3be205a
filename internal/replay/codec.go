// Package replay implements the versioned replay file format of spec §4.5
// and §6 (one version byte plus a single protobuf-wire-format message),
// and the replay engine that re-drives a rules.Module from a decoded
// action log exactly as a live session would.
package replay

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/brightbyte/minigames/internal/rules"
	"github.com/brightbyte/minigames/internal/session"
	"github.com/brightbyte/minigames/internal/wire"
)

// FormatVersion is the only version byte this implementation accepts
// (spec §6: "Implementations MUST refuse any unknown version byte").
const FormatVersion = 0x01

const (
	fieldEngineVersion = 1
	fieldStartedAt     = 2
	fieldGameKind      = 3
	fieldSeed          = 4
	fieldSettings      = 5
	fieldPlayers       = 6 // repeated message {player_id, is_bot}
	// fields 7-9 reserved, per spec §4.5.
	fieldActions = 10 // repeated message {tick, player_index, disconnected, content}

	fieldPlayerID    = 1
	fieldPlayerIsBot = 2

	fieldActionTick         = 1
	fieldActionPlayerIndex  = 2
	fieldActionDisconnected = 3
	fieldActionContent      = 4
)

// Header is the metadata describing a replay, without its action log —
// the "separate header-only schema" of spec §4.5, so callers can answer
// "what game, what date, who played" without decoding the full file.
type Header struct {
	EngineVersion string
	StartedAt     time.Time
	GameKind      rules.Kind
	Seed          uint64
	Settings      []byte
	Players       []rules.PlayerSeat
}

// Replay is a fully decoded replay file: its header plus the dense
// per-(tick, player_index) action log.
type Replay struct {
	Header
	Actions []session.ActionEntry
}

// Encode writes a complete replay file: the version byte followed by one
// message with the header fields and actions fields in order, matching
// spec §4.5's field list exactly (including the 7-9 reserved gap).
func Encode(w io.Writer, r Replay) error {
	if _, err := w.Write([]byte{FormatVersion}); err != nil {
		return err
	}

	m := wire.NewMsg()
	m.SetString(fieldEngineVersion, r.EngineVersion)
	m.SetVarint(fieldStartedAt, uint64(r.StartedAt.UnixMilli()))
	m.SetString(fieldGameKind, string(r.GameKind))
	m.SetVarint(fieldSeed, r.Seed)
	m.SetBytes(fieldSettings, r.Settings)
	for _, p := range r.Players {
		sub := wire.NewMsg()
		sub.SetString(fieldPlayerID, p.PlayerID)
		sub.SetBool(fieldPlayerIsBot, p.IsBot)
		m.AddMessage(fieldPlayers, sub)
	}
	for _, a := range r.Actions {
		sub := wire.NewMsg()
		sub.SetVarint(fieldActionTick, a.Tick)
		sub.SetVarint(fieldActionPlayerIndex, uint64(a.PlayerIndex))
		sub.SetBool(fieldActionDisconnected, a.Disconnected)
		sub.SetBytes(fieldActionContent, a.Content)
		m.AddMessage(fieldActions, sub)
	}

	_, err := w.Write(m.Marshal())
	return err
}

// DecodeFull reads and fully decodes a replay file, including its action
// log. Callers that only need metadata should use DecodeHeader instead.
func DecodeFull(r io.Reader) (*Replay, error) {
	b, err := readVersioned(r)
	if err != nil {
		return nil, err
	}
	msg, err := wire.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("replay: malformed message: %w", err)
	}

	header, err := headerFromMsg(msg)
	if err != nil {
		return nil, err
	}

	rawActions, err := msg.GetRepeatedMessage(fieldActions)
	if err != nil {
		return nil, fmt.Errorf("replay: malformed action log: %w", err)
	}
	actions := make([]session.ActionEntry, 0, len(rawActions))
	for _, a := range rawActions {
		tick, _ := a.GetVarint(fieldActionTick)
		idx, _ := a.GetVarint(fieldActionPlayerIndex)
		actions = append(actions, session.ActionEntry{
			Tick:         tick,
			PlayerIndex:  int(idx),
			Disconnected: a.GetBool(fieldActionDisconnected),
			Content:      a.GetBytes(fieldActionContent),
		})
	}

	return &Replay{Header: *header, Actions: actions}, nil
}

// DecodeHeader decodes only the header fields of a replay file. The whole
// file is still read into memory; since the encoder writes the header
// fields before the (typically much larger) actions field, the parse
// stops at the first actions entry and no action is decoded.
func DecodeHeader(r io.Reader) (*Header, error) {
	b, err := readVersioned(r)
	if err != nil {
		return nil, err
	}
	msg, err := wire.UnmarshalUntil(b, fieldActions)
	if err != nil {
		return nil, fmt.Errorf("replay: malformed message: %w", err)
	}
	return headerFromMsg(msg)
}

func readVersioned(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	all := buf.Bytes()
	if len(all) == 0 {
		return nil, fmt.Errorf("replay: empty file")
	}
	if all[0] != FormatVersion {
		return nil, fmt.Errorf("replay: unknown format version 0x%02x", all[0])
	}
	return all[1:], nil
}

func headerFromMsg(msg *wire.Msg) (*Header, error) {
	seed, _ := msg.GetVarint(fieldSeed)
	startedMS, _ := msg.GetVarint(fieldStartedAt)

	rawPlayers, err := msg.GetRepeatedMessage(fieldPlayers)
	if err != nil {
		return nil, fmt.Errorf("replay: malformed players: %w", err)
	}
	players := make([]rules.PlayerSeat, 0, len(rawPlayers))
	for _, p := range rawPlayers {
		players = append(players, rules.PlayerSeat{
			PlayerID: p.GetString(fieldPlayerID),
			IsBot:    p.GetBool(fieldPlayerIsBot),
		})
	}

	return &Header{
		EngineVersion: msg.GetString(fieldEngineVersion),
		StartedAt:     time.UnixMilli(int64(startedMS)).UTC(),
		GameKind:      rules.Kind(msg.GetString(fieldGameKind)),
		Seed:          seed,
		Settings:      msg.GetBytes(fieldSettings),
		Players:       players,
	}, nil
}
