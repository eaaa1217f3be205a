package wire

import "io"

// Marshal encodes a ClientMessage to protobuf wire bytes.
func (c *ClientMessage) Marshal() []byte {
	m := NewMsg()
	m.SetString(fieldCMVersion, c.Version)
	m.SetVarint(fieldCMKind, uint64(c.Kind))
	m.SetBytes(fieldCMPayload, c.Payload)
	return m.Marshal()
}

// UnmarshalClientMessage decodes a ClientMessage from protobuf wire bytes.
func UnmarshalClientMessage(b []byte) (*ClientMessage, error) {
	m, err := Unmarshal(b)
	if err != nil {
		return nil, err
	}
	kind, _ := m.GetVarint(fieldCMKind)
	return &ClientMessage{
		Version: m.GetString(fieldCMVersion),
		Kind:    Kind(kind),
		Payload: m.GetBytes(fieldCMPayload),
	}, nil
}

// Marshal encodes a ServerMessage to protobuf wire bytes.
func (s *ServerMessage) Marshal() []byte {
	m := NewMsg()
	m.SetVarint(fieldSMKind, uint64(s.Kind))
	m.SetBytes(fieldSMPayload, s.Payload)
	return m.Marshal()
}

// UnmarshalServerMessage decodes a ServerMessage from protobuf wire bytes.
func UnmarshalServerMessage(b []byte) (*ServerMessage, error) {
	m, err := Unmarshal(b)
	if err != nil {
		return nil, err
	}
	kind, _ := m.GetVarint(fieldSMKind)
	return &ServerMessage{
		Kind:    Kind(kind),
		Payload: m.GetBytes(fieldSMPayload),
	}, nil
}

// WriteClientMessage frames and writes a ClientMessage.
func WriteClientMessage(w io.Writer, c *ClientMessage) error {
	return WriteFrame(w, c.Marshal())
}

// ReadClientMessage reads and decodes one framed ClientMessage.
func ReadClientMessage(r io.Reader, maxBytes int) (*ClientMessage, error) {
	payload, err := ReadFrame(r, maxBytes)
	if err != nil {
		return nil, err
	}
	return UnmarshalClientMessage(payload)
}

// WriteServerMessage frames and writes a ServerMessage.
func WriteServerMessage(w io.Writer, s *ServerMessage) error {
	return WriteFrame(w, s.Marshal())
}

// ReadServerMessage reads and decodes one framed ServerMessage.
func ReadServerMessage(r io.Reader, maxBytes int) (*ServerMessage, error) {
	payload, err := ReadFrame(r, maxBytes)
	if err != nil {
		return nil, err
	}
	return UnmarshalServerMessage(payload)
}

// NewErrorMessage builds the ServerMessage for an Error payload.
func NewErrorMessage(code ErrorCode, message string) *ServerMessage {
	m := NewMsg()
	m.SetString(1, string(code))
	m.SetString(2, message)
	return &ServerMessage{Kind: KindError, Payload: m.Marshal()}
}

// ParseErrorPayload decodes an Error payload back into code/message.
func ParseErrorPayload(payload []byte) (ErrorCode, string, error) {
	m, err := Unmarshal(payload)
	if err != nil {
		return "", "", err
	}
	return ErrorCode(m.GetString(1)), m.GetString(2), nil
}
