package server

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brightbyte/minigames/internal/wire"
)

// scriptedTransport lets a test feed inbound frames on demand and inspect
// everything written back, standing in for the websocket/TCP transports
// Accept normally runs over.
type scriptedTransport struct {
	in chan []byte

	mu     sync.Mutex
	out    [][]byte
	closed bool
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{in: make(chan []byte, 8)}
}

func (s *scriptedTransport) ReadFrame() ([]byte, error) {
	frame, ok := <-s.in
	if !ok {
		return nil, errors.New("transport closed")
	}
	return frame, nil
}

func (s *scriptedTransport) WriteFrame(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, append([]byte(nil), payload...))
	return nil
}

func (s *scriptedTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.in)
	}
	return nil
}

func (s *scriptedTransport) feed(msg *wire.ClientMessage) {
	s.in <- msg.Marshal()
}

func (s *scriptedTransport) sent(t *testing.T) []*wire.ServerMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*wire.ServerMessage, 0, len(s.out))
	for _, raw := range s.out {
		m, err := wire.UnmarshalServerMessage(raw)
		if err != nil {
			t.Fatalf("unmarshal sent frame: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func testConfig() Config {
	return Config{
		ProtocolVersion:  "v1",
		MaxFrameBytes:    1 << 20,
		OutboxHighWater:  16,
		ConnectTimeout:   200 * time.Millisecond,
		IdleLobbyTimeout: time.Minute,
		ChatBacklog:      16,
	}
}

func connectRequest(clientID string) *wire.ClientMessage {
	m := wire.NewMsg()
	m.SetString(fieldConnectClientID, clientID)
	return &wire.ClientMessage{Version: "v1", Kind: wire.KindConnect, Payload: m.Marshal()}
}

func TestAcceptRegistersRealClientIDNotTheHandshakeTmpID(t *testing.T) {
	c := NewCore(testConfig(), nil)
	transport := newScriptedTransport()

	done := make(chan struct{})
	go func() {
		c.Accept(transport)
		close(done)
	}()

	transport.feed(connectRequest("alice"))

	deadline := time.After(time.Second)
	for {
		if _, ok := c.registry.Get("alice"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("client was never registered under its real id")
		case <-time.After(5 * time.Millisecond):
		}
	}

	registered, _ := c.registry.Get("alice")
	if registered.ID != "alice" {
		t.Errorf("registered connection ID = %q, want %q", registered.ID, "alice")
	}

	transport.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Accept did not return after transport closed")
	}
}

func TestAcceptRejectsHandshakeTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectTimeout = 20 * time.Millisecond
	c := NewCore(cfg, nil)
	transport := newScriptedTransport()

	done := make(chan struct{})
	go func() {
		c.Accept(transport)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Accept should have returned once the handshake timed out")
	}

	sent := transport.sent(t)
	foundError := false
	for _, m := range sent {
		if m.Kind == wire.KindError {
			foundError = true
		}
	}
	if !foundError {
		t.Error("expected an Error envelope reporting the timed-out handshake")
	}
}

func TestAcceptRejectsDuplicateClientID(t *testing.T) {
	c := NewCore(testConfig(), nil)

	first := newScriptedTransport()
	firstDone := make(chan struct{})
	go func() {
		c.Accept(first)
		close(firstDone)
	}()
	first.feed(connectRequest("bob"))

	deadline := time.After(time.Second)
	for {
		if _, ok := c.registry.Get("bob"); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first connection never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	second := newScriptedTransport()
	secondDone := make(chan struct{})
	go func() {
		c.Accept(second)
		close(secondDone)
	}()
	second.feed(connectRequest("bob"))

	select {
	case <-secondDone:
	case <-time.After(time.Second):
		t.Fatal("second Accept should reject the duplicate id and return")
	}

	sent := second.sent(t)
	foundIDInUse := false
	for _, m := range sent {
		if m.Kind == wire.KindError {
			foundIDInUse = true
		}
	}
	if !foundIDInUse {
		t.Error("expected an Error envelope for the duplicate client id")
	}

	first.Close()
	select {
	case <-firstDone:
	case <-time.After(time.Second):
		t.Fatal("first Accept did not return after its transport closed")
	}
}
