package server

import (
	"bytes"
	"sync"
	"testing"

	"github.com/brightbyte/minigames/internal/replay"
	"github.com/brightbyte/minigames/internal/rules"
	"github.com/brightbyte/minigames/internal/rules/rowgame"
	"github.com/brightbyte/minigames/internal/session"
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

func sampleReplayFile(t *testing.T) []byte {
	t.Helper()
	r := replay.Replay{
		Header: replay.Header{
			EngineVersion: "minigames-core/1",
			GameKind:      rowgame.Kind,
			Seed:          1,
			Settings:      rowgame.Settings(3, 3),
			Players:       []rules.PlayerSeat{{PlayerID: "p1"}, {PlayerID: "p2"}},
		},
		Actions: []session.ActionEntry{
			{Tick: 0, PlayerIndex: 0, Content: rowgame.Input(0, 0)},
		},
	}
	var buf bytes.Buffer
	if err := replay.Encode(&buf, r); err != nil {
		t.Fatalf("encode sample replay: %v", err)
	}
	return buf.Bytes()
}

func TestReplayManagerCreateAttachesHostAsFirstViewer(t *testing.T) {
	rm := NewReplayManager(nil)
	host := &fakeViewer{}
	room, err := rm.Create("host", "game", true, sampleReplayFile(t), host)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer room.Stop()

	if len(host.kinds()) == 0 {
		t.Fatal("host should receive an initial snapshot and state notification")
	}
	got, ok := rm.Current("host")
	if !ok || got.ID != room.ID {
		t.Fatal("host should be tracked as watching its own room")
	}
	if room.Name != "game" {
		t.Errorf("room.Name = %q, want %q", room.Name, "game")
	}
}

func TestReplayManagerCreateRejectsMalformedFile(t *testing.T) {
	rm := NewReplayManager(nil)
	if _, err := rm.Create("host", "game", false, []byte{0xff}, &fakeViewer{}); err == nil {
		t.Fatal("expected an error decoding a malformed replay file")
	}
}

func TestReplayRoomHostOnlyControlRejectsNonHost(t *testing.T) {
	rm := NewReplayManager(nil)
	room, err := rm.Create("host", "game", true, sampleReplayFile(t), &fakeViewer{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer room.Stop()

	guest := &fakeViewer{}
	if _, err := rm.Join("guest", room.ID, guest); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := room.Control("guest", replayControlPause, 0); err == nil {
		t.Fatal("expected a forbidden error for a non-host control attempt on a host-only room")
	}
	if err := room.Control("host", replayControlPause, 0); err != nil {
		t.Fatalf("host control should succeed: %v", err)
	}
}

func TestReplayRoomSharedControlAllowsAnyViewer(t *testing.T) {
	rm := NewReplayManager(nil)
	room, err := rm.Create("host", "game", false, sampleReplayFile(t), &fakeViewer{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer room.Stop()

	guest := &fakeViewer{}
	if _, err := rm.Join("guest", room.ID, guest); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := room.Control("guest", replayControlPause, 0); err != nil {
		t.Fatalf("expected a non-host to control a shared room: %v", err)
	}
}

func TestReplayRoomControlRejectsUnsupportedSpeed(t *testing.T) {
	rm := NewReplayManager(nil)
	room, err := rm.Create("host", "game", true, sampleReplayFile(t), &fakeViewer{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer room.Stop()

	if err := room.Control("host", replayControlSetSpeed, 300); err == nil {
		t.Fatal("3x is not an allowed replay speed")
	}
}

func TestReplayManagerLeaveClosesRoomOnceEmpty(t *testing.T) {
	rm := NewReplayManager(nil)
	room, err := rm.Create("host", "game", true, sampleReplayFile(t), &fakeViewer{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rm.Leave("host")
	if _, ok := rm.Current("host"); ok {
		t.Fatal("host should no longer be tracked as watching anything")
	}
	if _, ok := rm.rooms[room.ID]; ok {
		t.Fatal("room should have been removed once its last viewer left")
	}
}
