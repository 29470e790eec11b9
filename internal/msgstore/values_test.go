package msgstore

import (
	"bytes"
	"testing"
)

func TestIdxValueRoundTrip(t *testing.T) {
	v := IdxValue{
		Timestamp: Timestamp{SecondsHi: 1, SecondsLo: 754123, Micros: 99},
		Dup:       true,
		QoS:       2,
	}
	got, err := DecodeIdxValue(EncodeIdxValue(v))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != v {
		t.Fatalf("round trip: got %+v want %+v", got, v)
	}
}

func TestMsgValueRoundTrip(t *testing.T) {
	v := MsgValue{
		RoutingKey: []string{"tenant", "devices", "d42", "temp"},
		Payload:    []byte{0x00, 0x01, 0xFF, 0x7F},
	}
	got, err := DecodeMsgValue(EncodeMsgValue(v))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.RoutingKey) != len(v.RoutingKey) {
		t.Fatalf("routing key length: got %d want %d", len(got.RoutingKey), len(v.RoutingKey))
	}
	for i := range v.RoutingKey {
		if got.RoutingKey[i] != v.RoutingKey[i] {
			t.Fatalf("routing level %d: got %q want %q", i, got.RoutingKey[i], v.RoutingKey[i])
		}
	}
	if !bytes.Equal(got.Payload, v.Payload) {
		t.Fatalf("payload: got %v want %v", got.Payload, v.Payload)
	}
}

func TestMsgValueEmptyRoutingAndPayload(t *testing.T) {
	got, err := DecodeMsgValue(EncodeMsgValue(MsgValue{}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.RoutingKey) != 0 || len(got.Payload) != 0 {
		t.Fatalf("expected empty value, got %+v", got)
	}
}

func TestFutureTaggedIdxValueDowngrades(t *testing.T) {
	v := IdxValue{Timestamp: Timestamp{SecondsLo: 42}, Dup: false, QoS: 1}
	wire := encodeTaggedIdxValue(1, v, []byte("future fields"))
	got, err := DecodeIdxValue(wire)
	if err != nil {
		t.Fatalf("decode tagged: %v", err)
	}
	if got != v {
		t.Fatalf("downgrade: got %+v want %+v", got, v)
	}
}

func TestFutureTaggedMsgValueDowngrades(t *testing.T) {
	v := MsgValue{RoutingKey: []string{"a", "b"}, Payload: []byte("p")}
	wire := encodeTaggedMsgValue(3, v, []byte{0xDE, 0xAD})
	got, err := DecodeMsgValue(wire)
	if err != nil {
		t.Fatalf("decode tagged: %v", err)
	}
	if got.RoutingKey[0] != "a" || got.RoutingKey[1] != "b" || !bytes.Equal(got.Payload, []byte("p")) {
		t.Fatalf("downgrade: got %+v", got)
	}
}

func TestTaggedZeroVersionRejected(t *testing.T) {
	wire := encodeTaggedIdxValue(0, IdxValue{}, nil)
	if _, err := DecodeIdxValue(wire); err == nil {
		t.Fatal("expected error for version 0")
	}
	wireMsg := encodeTaggedMsgValue(0, MsgValue{}, nil)
	if _, err := DecodeMsgValue(wireMsg); err == nil {
		t.Fatal("expected error for version 0")
	}
}

func TestUnknownMarkerRejected(t *testing.T) {
	wire := sealValue([]byte{0x7F, 1, 2, 3})
	if _, err := DecodeIdxValue(wire); err == nil {
		t.Fatal("expected error for unknown idx marker")
	}
	if _, err := DecodeMsgValue(wire); err == nil {
		t.Fatal("expected error for unknown msg marker")
	}
}

func TestCorruptedChecksumRejected(t *testing.T) {
	wire := EncodeIdxValue(IdxValue{QoS: 1})
	wire[len(wire)-1] ^= 0xFF
	if _, err := DecodeIdxValue(wire); err == nil {
		t.Fatal("expected checksum error")
	}
}

func TestShortValueRejected(t *testing.T) {
	if _, err := DecodeIdxValue([]byte{0x00}); err == nil {
		t.Fatal("expected error for short value")
	}
	if _, err := DecodeMsgValue(nil); err == nil {
		t.Fatal("expected error for nil value")
	}
}

func TestTimestampCompareAndEncodeOrder(t *testing.T) {
	cases := []struct {
		a, b Timestamp
		want int
	}{
		{Timestamp{0, 1, 0}, Timestamp{0, 2, 0}, -1},
		{Timestamp{1, 0, 0}, Timestamp{0, 999999, 999999}, 1},
		{Timestamp{0, 5, 10}, Timestamp{0, 5, 10}, 0},
		{Timestamp{0, 5, 10}, Timestamp{0, 5, 11}, -1},
	}
	for _, c := range cases {
		if got := c.a.Compare(c.b); got != c.want {
			t.Fatalf("Compare(%+v, %+v) = %d, want %d", c.a, c.b, got, c.want)
		}
		encA := appendTimestamp(nil, c.a)
		encB := appendTimestamp(nil, c.b)
		if got := bytes.Compare(encA, encB); got != c.want {
			t.Fatalf("encoded order of %+v vs %+v = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
