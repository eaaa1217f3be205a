package wire

import (
	"bytes"
	"testing"
)

func TestMsgRoundTrip(t *testing.T) {
	m := NewMsg()
	m.SetString(1, "hello")
	m.SetVarint(2, 42)
	m.SetBool(3, true)
	m.SetBytes(4, []byte{1, 2, 3})
	sub := NewMsg()
	sub.SetString(1, "nested")
	m.SetMessage(5, sub)
	m.AddString(6, "a")
	m.AddString(6, "b")

	decoded, err := Unmarshal(m.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got := decoded.GetString(1); got != "hello" {
		t.Errorf("field 1 = %q, want hello", got)
	}
	if got, _ := decoded.GetVarint(2); got != 42 {
		t.Errorf("field 2 = %d, want 42", got)
	}
	if !decoded.GetBool(3) {
		t.Errorf("field 3 = false, want true")
	}
	if got := decoded.GetBytes(4); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("field 4 = %v, want [1 2 3]", got)
	}
	nested, err := decoded.GetMessage(5)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if got := nested.GetString(1); got != "nested" {
		t.Errorf("nested field 1 = %q, want nested", got)
	}
	if got := decoded.GetRepeatedString(6); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("repeated field 6 = %v, want [a b]", got)
	}
}

func TestMsgZeroValuesOmitted(t *testing.T) {
	m := NewMsg()
	m.SetString(1, "")
	m.SetBool(2, false)
	m.SetBytes(3, nil)

	b := m.Marshal()
	if len(b) != 0 {
		t.Errorf("zero-value fields should be omitted, got %d bytes", len(b))
	}
}

func TestMsgDeterministicMarshal(t *testing.T) {
	build := func() []byte {
		m := NewMsg()
		m.SetString(1, "x")
		m.SetVarint(2, 7)
		return m.Marshal()
	}
	a, b := build(), build()
	if !bytes.Equal(a, b) {
		t.Errorf("identical inputs produced different bytes: %v vs %v", a, b)
	}
}

func TestUnmarshalUntilStopsBeforeField(t *testing.T) {
	m := NewMsg()
	m.SetString(1, "header")
	m.SetVarint(2, 99)
	big := NewMsg()
	for i := 0; i < 1000; i++ {
		big.AddString(1, "padding")
	}
	m.SetMessage(10, big)

	partial, err := UnmarshalUntil(m.Marshal(), 10)
	if err != nil {
		t.Fatalf("unmarshal until: %v", err)
	}
	if got := partial.GetString(1); got != "header" {
		t.Errorf("field 1 = %q, want header", got)
	}
	if _, ok := partial.first(10); ok {
		t.Errorf("field 10 should not have been consumed")
	}
}

func TestUnmarshalUnknownFieldsRetained(t *testing.T) {
	m := NewMsg()
	m.SetString(1, "known")
	m.SetVarint(99, 7)

	decoded, err := Unmarshal(m.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := decoded.GetVarint(99); !ok || v != 7 {
		t.Errorf("unknown field 99 should survive round trip, got %d, %v", v, ok)
	}
}
