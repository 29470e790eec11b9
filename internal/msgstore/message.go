package msgstore

import (
	"encoding/binary"
	"time"

	"github.com/sdrees/vernemq/pkg/id"
)

// Message is one retained publication as seen by the store. Routing key and
// payload live in the payload record; dup and qos live in the per-subscriber
// index entry. Persisted is set on messages reconstituted from disk.
type Message struct {
	Ref        id.Ref
	Mountpoint string
	RoutingKey []string
	Payload    []byte
	Dup        bool
	QoS        uint8
	Persisted  bool
}

// Timestamp is the write-time capture used to order a subscriber's index
// entries. The three-part split keeps each component inside uint32 range
// while preserving byte-wise sort order.
type Timestamp struct {
	SecondsHi uint32
	SecondsLo uint32
	Micros    uint32
}

const timestampSize = 12

// NowTimestamp captures the current wall clock as a Timestamp.
func NowTimestamp() Timestamp {
	now := time.Now()
	secs := now.Unix()
	return Timestamp{
		SecondsHi: uint32(secs / 1_000_000),
		SecondsLo: uint32(secs % 1_000_000),
		Micros:    uint32(now.Nanosecond() / 1_000),
	}
}

// Time converts the timestamp back to wall-clock time.
func (t Timestamp) Time() time.Time {
	secs := int64(t.SecondsHi)*1_000_000 + int64(t.SecondsLo)
	return time.Unix(secs, int64(t.Micros)*1_000)
}

// Compare returns -1, 0, 1 ordering timestamps chronologically.
func (t Timestamp) Compare(o Timestamp) int {
	switch {
	case t.SecondsHi != o.SecondsHi:
		return cmpUint32(t.SecondsHi, o.SecondsHi)
	case t.SecondsLo != o.SecondsLo:
		return cmpUint32(t.SecondsLo, o.SecondsLo)
	default:
		return cmpUint32(t.Micros, o.Micros)
	}
}

func cmpUint32(a, b uint32) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func appendTimestamp(dst []byte, t Timestamp) []byte {
	var b [timestampSize]byte
	binary.BigEndian.PutUint32(b[0:4], t.SecondsHi)
	binary.BigEndian.PutUint32(b[4:8], t.SecondsLo)
	binary.BigEndian.PutUint32(b[8:12], t.Micros)
	return append(dst, b[:]...)
}

func decodeTimestamp(b []byte) (Timestamp, bool) {
	if len(b) < timestampSize {
		return Timestamp{}, false
	}
	return Timestamp{
		SecondsHi: binary.BigEndian.Uint32(b[0:4]),
		SecondsLo: binary.BigEndian.Uint32(b[4:8]),
		Micros:    binary.BigEndian.Uint32(b[8:12]),
	}, true
}
