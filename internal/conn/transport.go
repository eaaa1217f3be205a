// Package conn implements the connection manager (spec §4.1): one durable,
// typed, bidirectional channel per connected client, decoupled from
// whichever byte-stream transport actually carries it.
package conn

import (
	"net"

	"github.com/gorilla/websocket"

	"github.com/brightbyte/minigames/internal/wire"
)

// Transport delivers one complete envelope payload per call, regardless of
// whether the underlying medium already delimits messages (WebSocket) or
// is a raw byte stream that needs explicit length-prefix framing (TCP).
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(payload []byte) error
	Close() error
}

// wsTransport carries one envelope per WebSocket binary message. WebSocket
// framing already delimits messages, so no additional length prefix is
// applied here.
type wsTransport struct {
	conn *websocket.Conn
}

// NewWebSocketTransport adapts a *websocket.Conn (the HTTP-upgrade path
// client connections arrive on) into a Transport.
func NewWebSocketTransport(c *websocket.Conn) Transport {
	return &wsTransport{conn: c}
}

func (t *wsTransport) ReadFrame() ([]byte, error) {
	typ, payload, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if typ != websocket.BinaryMessage {
		return t.ReadFrame()
	}
	return payload, nil
}

func (t *wsTransport) WriteFrame(payload []byte) error {
	return t.conn.WriteMessage(websocket.BinaryMessage, payload)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// tcpTransport carries envelopes over a raw net.Conn using the explicit
// 4-byte big-endian length prefix from internal/wire — the literal "full
// duplex byte stream" of spec §2 component 1, for clients that connect
// without an HTTP/WebSocket upgrade at all.
type tcpTransport struct {
	conn      net.Conn
	maxFrame  int
}

// NewTCPTransport adapts a raw net.Conn into a Transport using
// length-prefixed framing.
func NewTCPTransport(c net.Conn, maxFrameBytes int) Transport {
	return &tcpTransport{conn: c, maxFrame: maxFrameBytes}
}

func (t *tcpTransport) ReadFrame() ([]byte, error) {
	return wire.ReadFrame(t.conn, t.maxFrame)
}

func (t *tcpTransport) WriteFrame(payload []byte) error {
	return wire.WriteFrame(t.conn, payload)
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}
