package msgstore

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Value encoding: marker-tagged body | crc32c(body) big-endian trailer.
//
// The serializer emits only the current untagged form (marker 0x00). The
// parser additionally accepts tagged future forms: a tagged marker followed
// by a uvarint version > 0 and a superset of the current fields, of which
// only the current fields are extracted. A newer writer is therefore read
// correctly, and this version never writes tagged records. Unknown markers
// or a zero version fail loudly.

const (
	markerCurrent   = byte(0x00)
	markerIdxTagged = byte(0x01)
	markerMsgTagged = byte(0x02)
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// IdxValue is the per-subscriber index record.
type IdxValue struct {
	Timestamp Timestamp
	Dup       bool
	QoS       uint8
}

// MsgValue is the shared payload record.
type MsgValue struct {
	RoutingKey []string
	Payload    []byte
}

// EncodeIdxValue serializes an index record in the current untagged form.
func EncodeIdxValue(v IdxValue) []byte {
	body := make([]byte, 0, 1+timestampSize+2)
	body = append(body, markerCurrent)
	body = appendIdxFields(body, v)
	return sealValue(body)
}

// DecodeIdxValue parses an index record, downgrading tagged future forms.
func DecodeIdxValue(b []byte) (IdxValue, error) {
	body, err := openValue(b)
	if err != nil {
		return IdxValue{}, fmt.Errorf("idx value: %w", err)
	}
	marker := body[0]
	rest := body[1:]
	switch marker {
	case markerCurrent:
	case markerIdxTagged:
		version, n := binary.Uvarint(rest)
		if n <= 0 || version == 0 {
			return IdxValue{}, fmt.Errorf("idx value: bad tagged version")
		}
		rest = rest[n:]
	default:
		return IdxValue{}, fmt.Errorf("idx value: unknown marker 0x%02x", marker)
	}
	return decodeIdxFields(rest)
}

// EncodeMsgValue serializes a payload record in the current untagged form.
func EncodeMsgValue(v MsgValue) []byte {
	body := make([]byte, 0, 1+16+len(v.Payload))
	body = append(body, markerCurrent)
	body = appendMsgFields(body, v)
	return sealValue(body)
}

// DecodeMsgValue parses a payload record, downgrading tagged future forms.
func DecodeMsgValue(b []byte) (MsgValue, error) {
	body, err := openValue(b)
	if err != nil {
		return MsgValue{}, fmt.Errorf("msg value: %w", err)
	}
	marker := body[0]
	rest := body[1:]
	switch marker {
	case markerCurrent:
	case markerMsgTagged:
		version, n := binary.Uvarint(rest)
		if n <= 0 || version == 0 {
			return MsgValue{}, fmt.Errorf("msg value: bad tagged version")
		}
		rest = rest[n:]
	default:
		return MsgValue{}, fmt.Errorf("msg value: unknown marker 0x%02x", marker)
	}
	return decodeMsgFields(rest)
}

func appendIdxFields(dst []byte, v IdxValue) []byte {
	dst = appendTimestamp(dst, v.Timestamp)
	if v.Dup {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	dst = append(dst, v.QoS)
	return dst
}

// decodeIdxFields reads timestamp, dup, and qos. Trailing bytes from richer
// future forms are ignored.
func decodeIdxFields(b []byte) (IdxValue, error) {
	if len(b) < timestampSize+2 {
		return IdxValue{}, fmt.Errorf("idx value: truncated fields")
	}
	ts, _ := decodeTimestamp(b)
	return IdxValue{
		Timestamp: ts,
		Dup:       b[timestampSize] != 0,
		QoS:       b[timestampSize+1],
	}, nil
}

func appendMsgFields(dst []byte, v MsgValue) []byte {
	dst = appendUvarint(dst, uint64(len(v.RoutingKey)))
	for _, level := range v.RoutingKey {
		dst = appendUvarint(dst, uint64(len(level)))
		dst = append(dst, level...)
	}
	dst = appendUvarint(dst, uint64(len(v.Payload)))
	dst = append(dst, v.Payload...)
	return dst
}

// decodeMsgFields reads routing key and payload. Trailing bytes from richer
// future forms are ignored.
func decodeMsgFields(b []byte) (MsgValue, error) {
	levels, n := binary.Uvarint(b)
	if n <= 0 {
		return MsgValue{}, fmt.Errorf("msg value: bad routing key count")
	}
	b = b[n:]
	routing := make([]string, 0, levels)
	for i := uint64(0); i < levels; i++ {
		l, n := binary.Uvarint(b)
		if n <= 0 || uint64(len(b)-n) < l {
			return MsgValue{}, fmt.Errorf("msg value: truncated routing key")
		}
		routing = append(routing, string(b[n:n+int(l)]))
		b = b[n+int(l):]
	}
	plen, n := binary.Uvarint(b)
	if n <= 0 || uint64(len(b)-n) < plen {
		return MsgValue{}, fmt.Errorf("msg value: truncated payload")
	}
	payload := append([]byte(nil), b[n:n+int(plen)]...)
	return MsgValue{RoutingKey: routing, Payload: payload}, nil
}

// sealValue appends the crc32c trailer over the body.
func sealValue(body []byte) []byte {
	crc := crc32.Checksum(body, castagnoli)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(body, crcb[:]...)
}

// openValue verifies and strips the crc32c trailer, returning the body.
func openValue(b []byte) ([]byte, error) {
	if len(b) < 1+4 {
		return nil, fmt.Errorf("short value (%d bytes)", len(b))
	}
	body := b[:len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	if crc32.Checksum(body, castagnoli) != expect {
		return nil, fmt.Errorf("checksum mismatch")
	}
	return body, nil
}

func appendUvarint(dst []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(dst, tmp[:n]...)
}

// encodeTaggedIdxValue builds the tagged future wire form. Only tests and
// the downgrade parser care about it; the store never writes it.
func encodeTaggedIdxValue(version uint64, v IdxValue, extra []byte) []byte {
	body := []byte{markerIdxTagged}
	body = appendUvarint(body, version)
	body = appendIdxFields(body, v)
	body = append(body, extra...)
	return sealValue(body)
}

// encodeTaggedMsgValue builds the tagged future wire form for payloads.
func encodeTaggedMsgValue(version uint64, v MsgValue, extra []byte) []byte {
	body := []byte{markerMsgTagged}
	body = appendUvarint(body, version)
	body = appendMsgFields(body, v)
	body = append(body, extra...)
	return sealValue(body)
}
