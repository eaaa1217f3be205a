// Package wire implements the length-prefixed, protobuf-wire-format
// envelope codec described by the session engine's external interface: a
// bidirectional stream of binary frames, each one schema-tagged request or
// response.
//
// There is no .proto/protoc step in this tree. Every message type encodes
// itself directly with google.golang.org/protobuf/encoding/protowire's
// tag/varint/length-delimited primitives through the Msg helper in this
// file, the same low-level layer that protoc-gen-go's generated Marshal
// methods are themselves built on.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// field is one decoded (number, wire type, raw payload) triple. For varint
// fields raw holds nothing; the decoded value lives in scalar.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	scalar uint64
	raw    []byte
}

// Msg is a dynamically-typed protobuf message: an ordered list of fields
// addressed by field number, with typed accessors layered over the
// generic wire representation. Request/response types elsewhere in this
// tree are thin, field-numbered wrappers around a Msg.
type Msg struct {
	fields []field
}

// NewMsg returns an empty message ready for Set*/Add* calls.
func NewMsg() *Msg {
	return &Msg{}
}

// SetVarint stores an unsigned integer field (enums, counters, ticks).
func (m *Msg) SetVarint(num protowire.Number, v uint64) {
	m.fields = append(m.fields, field{num: num, typ: protowire.VarintType, scalar: v})
}

// SetInt64 stores a signed integer field, zig-zag free (protobuf int64
// semantics: varint-encoded two's complement, matching a 64-bit seed or a
// signed score).
func (m *Msg) SetInt64(num protowire.Number, v int64) {
	m.SetVarint(num, uint64(v))
}

// SetBool stores a boolean field. Per protobuf convention, false is the
// zero value and is simply omitted.
func (m *Msg) SetBool(num protowire.Number, v bool) {
	if !v {
		return
	}
	m.SetVarint(num, 1)
}

// SetString stores a UTF-8 string field. The empty string is the zero
// value and is omitted.
func (m *Msg) SetString(num protowire.Number, v string) {
	if v == "" {
		return
	}
	m.fields = append(m.fields, field{num: num, typ: protowire.BytesType, raw: []byte(v)})
}

// SetBytes stores an opaque byte-string field.
func (m *Msg) SetBytes(num protowire.Number, v []byte) {
	if len(v) == 0 {
		return
	}
	m.fields = append(m.fields, field{num: num, typ: protowire.BytesType, raw: v})
}

// SetMessage embeds a nested message as a length-delimited field.
func (m *Msg) SetMessage(num protowire.Number, v *Msg) {
	if v == nil {
		return
	}
	m.SetBytes(num, v.Marshal())
}

// AddVarint appends one entry of a repeated unsigned-integer field.
func (m *Msg) AddVarint(num protowire.Number, v uint64) {
	m.fields = append(m.fields, field{num: num, typ: protowire.VarintType, scalar: v})
}

// AddString appends one entry of a repeated string field.
func (m *Msg) AddString(num protowire.Number, v string) {
	m.fields = append(m.fields, field{num: num, typ: protowire.BytesType, raw: []byte(v)})
}

// AddMessage appends one entry of a repeated nested-message field.
func (m *Msg) AddMessage(num protowire.Number, v *Msg) {
	m.fields = append(m.fields, field{num: num, typ: protowire.BytesType, raw: v.Marshal()})
}

// Marshal serializes the message to protobuf wire format, fields in
// insertion order (insertion order is the field-number order each
// wrapper type uses, which keeps output deterministic for a given input —
// required for the replay codec's byte-for-byte determinism).
func (m *Msg) Marshal() []byte {
	var b []byte
	for _, f := range m.fields {
		b = protowire.AppendTag(b, f.num, f.typ)
		switch f.typ {
		case protowire.VarintType:
			b = protowire.AppendVarint(b, f.scalar)
		case protowire.BytesType:
			b = protowire.AppendBytes(b, f.raw)
		default:
			panic(fmt.Sprintf("wire: unsupported field type %v", f.typ))
		}
	}
	return b
}

// Unmarshal parses raw protobuf wire bytes into a Msg. Varint and
// length-delimited fields are retained whatever their number, matching
// protobuf's forward compatibility rule and spec §4.5's reserved-field
// gap; fixed32 and fixed64 fields are skipped and not retained.
func Unmarshal(b []byte) (*Msg, error) {
	m := &Msg{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.fields = append(m.fields, field{num: num, typ: typ, scalar: v})
			b = b[n:]
		case protowire.Fixed32Type:
			_, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		case protowire.Fixed64Type:
			_, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			cp := make([]byte, len(v))
			copy(cp, v)
			m.fields = append(m.fields, field{num: num, typ: typ, raw: cp})
			b = b[n:]
		default:
			return nil, fmt.Errorf("wire: unsupported wire type %v for field %d", typ, num)
		}
	}
	return m, nil
}

// UnmarshalUntil parses leading fields from raw protobuf wire bytes,
// stopping as soon as it encounters a field numbered stopAt or higher —
// without even consuming that field's bytes. This lets a caller read a
// message's low-numbered "header" fields cheaply when a trailing
// high-numbered field (e.g. a large repeated log) may dwarf the rest of
// the message, per the replay codec's header-only decode path.
func UnmarshalUntil(b []byte, stopAt protowire.Number) (*Msg, error) {
	m := &Msg{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		if num >= stopAt {
			return m, nil
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.fields = append(m.fields, field{num: num, typ: typ, scalar: v})
			b = b[n:]
		case protowire.Fixed32Type:
			_, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		case protowire.Fixed64Type:
			_, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			cp := make([]byte, len(v))
			copy(cp, v)
			m.fields = append(m.fields, field{num: num, typ: typ, raw: cp})
			b = b[n:]
		default:
			return nil, fmt.Errorf("wire: unsupported wire type %v for field %d", typ, num)
		}
	}
	return m, nil
}

func (m *Msg) first(num protowire.Number) (field, bool) {
	for _, f := range m.fields {
		if f.num == num {
			return f, true
		}
	}
	return field{}, false
}

// GetVarint returns the first field with the given number as an unsigned
// integer.
func (m *Msg) GetVarint(num protowire.Number) (uint64, bool) {
	f, ok := m.first(num)
	if !ok {
		return 0, false
	}
	return f.scalar, true
}

// GetInt64 returns the first field with the given number as a signed
// integer.
func (m *Msg) GetInt64(num protowire.Number) (int64, bool) {
	v, ok := m.GetVarint(num)
	return int64(v), ok
}

// GetBool returns the first field with the given number as a boolean;
// absence means false, per protobuf zero-value semantics.
func (m *Msg) GetBool(num protowire.Number) bool {
	v, ok := m.GetVarint(num)
	return ok && v != 0
}

// GetString returns the first field with the given number as a string.
func (m *Msg) GetString(num protowire.Number) string {
	f, ok := m.first(num)
	if !ok {
		return ""
	}
	return string(f.raw)
}

// GetBytes returns the first field with the given number as raw bytes.
func (m *Msg) GetBytes(num protowire.Number) []byte {
	f, ok := m.first(num)
	if !ok {
		return nil
	}
	return f.raw
}

// GetMessage decodes the first field with the given number as a nested
// message.
func (m *Msg) GetMessage(num protowire.Number) (*Msg, error) {
	f, ok := m.first(num)
	if !ok {
		return &Msg{}, nil
	}
	return Unmarshal(f.raw)
}

// GetRepeatedVarint returns every field with the given number as unsigned
// integers, in wire order.
func (m *Msg) GetRepeatedVarint(num protowire.Number) []uint64 {
	var out []uint64
	for _, f := range m.fields {
		if f.num == num {
			out = append(out, f.scalar)
		}
	}
	return out
}

// GetRepeatedString returns every field with the given number as strings,
// in wire order.
func (m *Msg) GetRepeatedString(num protowire.Number) []string {
	var out []string
	for _, f := range m.fields {
		if f.num == num {
			out = append(out, string(f.raw))
		}
	}
	return out
}

// GetRepeatedMessage decodes every field with the given number as nested
// messages, in wire order.
func (m *Msg) GetRepeatedMessage(num protowire.Number) ([]*Msg, error) {
	var out []*Msg
	for _, f := range m.fields {
		if f.num == num {
			sub, err := Unmarshal(f.raw)
			if err != nil {
				return nil, err
			}
			out = append(out, sub)
		}
	}
	return out, nil
}
