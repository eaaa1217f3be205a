package server

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/brightbyte/minigames/internal/replay"
	"github.com/brightbyte/minigames/internal/session"
	"github.com/brightbyte/minigames/internal/wire"
)

// replayControl is the closed set of operations a client may issue against
// a replay room (spec §4.5 "expose controls: pause/resume, step-one-tick-
// while-paused, set-speed, restart-from-tick-zero").
type replayControl int

const (
	replayControlPause replayControl = iota + 1
	replayControlResume
	replayControlStep
	replayControlRestart
	replayControlSetSpeed
)

// ReplayRoom is one decoded replay plus the set of connections watching it
// together, generalizing spec §4.5's "replay player" with the
// host-only-control flag of spec §3's Replay player lifecycle.
type ReplayRoom struct {
	ID       string
	Name     string
	HostOnly bool
	hostID   string

	player *replay.Player
	logf   func(format string, args ...any)

	mu      sync.Mutex
	viewers map[string]session.Viewer
	cancel  context.CancelFunc
}

func newReplayRoom(id, name, hostID string, hostOnly bool, r *replay.Replay, logf func(string, ...any)) (*ReplayRoom, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	room := &ReplayRoom{ID: id, Name: name, HostOnly: hostOnly, hostID: hostID, logf: logf, viewers: make(map[string]session.Viewer)}

	p, err := replay.NewPlayer(id, *r, room.liveViewers, logf)
	if err != nil {
		return nil, err
	}
	room.player = p
	return room, nil
}

func (room *ReplayRoom) liveViewers() []session.Viewer {
	room.mu.Lock()
	defer room.mu.Unlock()
	out := make([]session.Viewer, 0, len(room.viewers))
	for _, v := range room.viewers {
		out = append(out, v)
	}
	return out
}

// Attach registers v as a viewer and immediately sends it the room's
// current snapshot (spec §5: "a newly joined observer receives a fresh
// snapshot() then joins the ongoing stream").
func (room *ReplayRoom) Attach(playerID string, v session.Viewer) {
	room.mu.Lock()
	room.viewers[playerID] = v
	room.mu.Unlock()
	v.Send(newReplayGameStateMessage(room.ID, room.player.CurrentTick(), room.player.Snapshot()))
	v.Send(room.stateNotification())
}

// Detach removes a viewer.
func (room *ReplayRoom) Detach(playerID string) {
	room.mu.Lock()
	defer room.mu.Unlock()
	delete(room.viewers, playerID)
}

func (room *ReplayRoom) empty() bool {
	room.mu.Lock()
	defer room.mu.Unlock()
	return len(room.viewers) == 0
}

// run starts the player's tick loop; the caller launches this in its own
// goroutine.
func (room *ReplayRoom) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	room.mu.Lock()
	room.cancel = cancel
	room.mu.Unlock()
	room.player.Run(ctx)
}

// Stop tears the room's playback down.
func (room *ReplayRoom) Stop() {
	room.player.Stop()
	room.mu.Lock()
	cancel := room.cancel
	room.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Control applies one replay control on behalf of callerID, enforcing
// host-only-control (spec §4.5).
func (room *ReplayRoom) Control(callerID string, ctrl replayControl, speedHundredths uint64) error {
	if room.HostOnly && callerID != room.hostID {
		return wire.NewError(wire.ErrForbidden, "only the host may control this replay")
	}
	switch ctrl {
	case replayControlPause:
		room.player.SetPaused(true)
	case replayControlResume:
		room.player.SetPaused(false)
	case replayControlStep:
		room.player.StepOnce()
	case replayControlRestart:
		if err := room.player.Restart(); err != nil {
			return wire.NewError(wire.ErrInternal, err.Error())
		}
	case replayControlSetSpeed:
		speed := float64(speedHundredths) / 100
		if !room.player.SetSpeed(speed) {
			return wire.NewError(wire.ErrInvalidRequest, "unsupported replay speed")
		}
	default:
		return wire.NewError(wire.ErrInvalidRequest, "unknown replay control")
	}
	room.broadcastState()
	return nil
}

func (room *ReplayRoom) broadcastState() {
	msg := room.stateNotification()
	for _, v := range room.liveViewers() {
		v.Send(msg)
	}
}

// ReplayManager is the directory of open replay rooms, the replay-watching
// analogue of lobby.Manager's lobby directory.
type ReplayManager struct {
	mu       sync.Mutex
	rooms    map[string]*ReplayRoom
	clientOf map[string]string

	logf func(format string, args ...any)
}

// NewReplayManager constructs an empty replay room directory.
func NewReplayManager(logf func(format string, args ...any)) *ReplayManager {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &ReplayManager{rooms: make(map[string]*ReplayRoom), clientOf: make(map[string]string), logf: logf}
}

// Create decodes a replay file and opens a new room for it, with hostID as
// its first viewer and, if hostOnly, its sole controller.
func (rm *ReplayManager) Create(hostID, name string, hostOnly bool, file []byte, v session.Viewer) (*ReplayRoom, error) {
	dec, err := replay.DecodeFull(bytes.NewReader(file))
	if err != nil {
		return nil, wire.NewError(wire.ErrInvalidRequest, fmt.Sprintf("malformed replay file: %v", err))
	}

	id := uuid.NewString()
	room, err := newReplayRoom(id, name, hostID, hostOnly, dec, rm.logf)
	if err != nil {
		return nil, wire.NewError(wire.ErrInvalidRequest, err.Error())
	}
	room.Attach(hostID, v)

	rm.mu.Lock()
	rm.rooms[id] = room
	rm.clientOf[hostID] = id
	rm.mu.Unlock()

	go room.run(context.Background())
	return room, nil
}

// Join attaches playerID to an existing room.
func (rm *ReplayManager) Join(playerID, roomID string, v session.Viewer) (*ReplayRoom, error) {
	rm.mu.Lock()
	room, ok := rm.rooms[roomID]
	rm.mu.Unlock()
	if !ok {
		return nil, wire.NewError(wire.ErrNotFound, "no such replay room")
	}
	room.Attach(playerID, v)
	rm.mu.Lock()
	rm.clientOf[playerID] = roomID
	rm.mu.Unlock()
	return room, nil
}

// Current returns the room playerID is currently watching, if any.
func (rm *ReplayManager) Current(playerID string) (*ReplayRoom, bool) {
	rm.mu.Lock()
	roomID, ok := rm.clientOf[playerID]
	rm.mu.Unlock()
	if !ok {
		return nil, false
	}
	rm.mu.Lock()
	room, ok := rm.rooms[roomID]
	rm.mu.Unlock()
	return room, ok
}

// Leave detaches playerID from whatever room it is watching, closing the
// room once its last viewer leaves.
func (rm *ReplayManager) Leave(playerID string) {
	rm.mu.Lock()
	roomID, ok := rm.clientOf[playerID]
	delete(rm.clientOf, playerID)
	rm.mu.Unlock()
	if !ok {
		return
	}
	rm.mu.Lock()
	room, ok := rm.rooms[roomID]
	rm.mu.Unlock()
	if !ok {
		return
	}
	room.Detach(playerID)
	if room.empty() {
		room.Stop()
		rm.mu.Lock()
		delete(rm.rooms, roomID)
		rm.mu.Unlock()
	}
}

// Shutdown tears every open replay room down.
func (rm *ReplayManager) Shutdown() {
	rm.mu.Lock()
	rooms := make([]*ReplayRoom, 0, len(rm.rooms))
	for _, room := range rm.rooms {
		rooms = append(rooms, room)
	}
	rm.mu.Unlock()
	for _, room := range rooms {
		room.Stop()
	}
}
