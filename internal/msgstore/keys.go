package msgstore

import (
	"bytes"
	"fmt"

	"github.com/sdrees/vernemq/pkg/id"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - idx/{mountpoint}\x00{client_id}\x00{ref_16}
// - msg/{ref_16}{mountpoint}
//
// Mountpoints and MQTT client identifiers never contain NUL, so the \x00
// terminators keep subscriber fields self-delimiting without breaking sort
// order. "idx/" sorts strictly before "msg/", which keeps the recovery scan
// of the index range from ever touching payload records.

var (
	idxPrefix = []byte("idx/")
	msgPrefix = []byte("msg/")
	fieldSep  = byte(0x00)
)

// SubscriberID identifies one MQTT client within one tenant namespace.
type SubscriberID struct {
	Mountpoint string
	ClientID   string
}

func (s SubscriberID) String() string {
	return s.Mountpoint + "/" + s.ClientID
}

// KeyIdx builds the per-subscriber index key for a message reference.
func KeyIdx(sub SubscriberID, ref id.Ref) []byte {
	k := make([]byte, 0, len(idxPrefix)+len(sub.Mountpoint)+len(sub.ClientID)+2+id.RefSize)
	k = append(k, idxPrefix...)
	k = append(k, sub.Mountpoint...)
	k = append(k, fieldSep)
	k = append(k, sub.ClientID...)
	k = append(k, fieldSep)
	k = append(k, ref[:]...)
	return k
}

// KeyIdxSubscriberPrefix returns the prefix shared by all index keys of one
// subscriber; a forward scan from here visits that subscriber's refs in
// ascending ref order.
func KeyIdxSubscriberPrefix(sub SubscriberID) []byte {
	k := make([]byte, 0, len(idxPrefix)+len(sub.Mountpoint)+len(sub.ClientID)+2)
	k = append(k, idxPrefix...)
	k = append(k, sub.Mountpoint...)
	k = append(k, fieldSep)
	k = append(k, sub.ClientID...)
	k = append(k, fieldSep)
	return k
}

// KeyIdxRange returns the [lower, upper) bounds covering the whole index
// keyspace, used by the recovery scan.
func KeyIdxRange() (lower, upper []byte) {
	return append([]byte(nil), idxPrefix...), prefixUpperBound(idxPrefix)
}

// KeyMsg builds the payload record key for a message reference.
func KeyMsg(ref id.Ref, mountpoint string) []byte {
	k := make([]byte, 0, len(msgPrefix)+id.RefSize+len(mountpoint))
	k = append(k, msgPrefix...)
	k = append(k, ref[:]...)
	k = append(k, mountpoint...)
	return k
}

// KeyMsgRange returns the [lower, upper) bounds covering all payload records.
func KeyMsgRange() (lower, upper []byte) {
	return append([]byte(nil), msgPrefix...), prefixUpperBound(msgPrefix)
}

// DecodeIdxKey parses an index key back into its subscriber and ref.
func DecodeIdxKey(key []byte) (SubscriberID, id.Ref, error) {
	var sub SubscriberID
	var ref id.Ref
	if !bytes.HasPrefix(key, idxPrefix) {
		return sub, ref, fmt.Errorf("decode idx key: missing tag prefix")
	}
	rest := key[len(idxPrefix):]
	i := bytes.IndexByte(rest, fieldSep)
	if i < 0 {
		return sub, ref, fmt.Errorf("decode idx key: unterminated mountpoint")
	}
	sub.Mountpoint = string(rest[:i])
	rest = rest[i+1:]
	j := bytes.IndexByte(rest, fieldSep)
	if j < 0 {
		return sub, ref, fmt.Errorf("decode idx key: unterminated client id")
	}
	sub.ClientID = string(rest[:j])
	rest = rest[j+1:]
	if len(rest) != id.RefSize {
		return sub, ref, fmt.Errorf("decode idx key: ref is %d bytes, want %d", len(rest), id.RefSize)
	}
	copy(ref[:], rest)
	return sub, ref, nil
}

// DecodeMsgKey parses a payload key back into its ref and mountpoint.
func DecodeMsgKey(key []byte) (id.Ref, string, error) {
	var ref id.Ref
	if !bytes.HasPrefix(key, msgPrefix) {
		return ref, "", fmt.Errorf("decode msg key: missing tag prefix")
	}
	rest := key[len(msgPrefix):]
	if len(rest) < id.RefSize {
		return ref, "", fmt.Errorf("decode msg key: truncated ref")
	}
	copy(ref[:], rest[:id.RefSize])
	return ref, string(rest[id.RefSize:]), nil
}

// KeyKind reports which tagged family a raw key belongs to: "idx", "msg",
// or "" for anything else.
func KeyKind(key []byte) string {
	switch {
	case bytes.HasPrefix(key, idxPrefix):
		return "idx"
	case bytes.HasPrefix(key, msgPrefix):
		return "msg"
	default:
		return ""
	}
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, for use as an exclusive iterator upper bound.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
