package id

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// RefSize is the fixed width of a message reference in bytes.
const RefSize = 16

// Ref is an opaque fixed-width message reference. Refs are compared
// byte-wise and embedded directly into storage keys.
type Ref [RefSize]byte

// RefFromContent derives a Ref from message content by truncating a
// BLAKE3 digest to RefSize bytes. Identical payloads published to many
// subscribers map to the same Ref, which is what makes payload
// deduplication by reference counting possible.
func RefFromContent(content []byte) Ref {
	sum := blake3.Sum256(content)
	var r Ref
	copy(r[:], sum[:RefSize])
	return r
}

// RefFromBytes copies a 16-byte slice into a Ref.
func RefFromBytes(b []byte) (Ref, error) {
	var r Ref
	if len(b) != RefSize {
		return r, fmt.Errorf("ref must be %d bytes, got %d", RefSize, len(b))
	}
	copy(r[:], b)
	return r, nil
}

// ParseRef decodes a hex-encoded Ref as produced by Ref.String.
func ParseRef(s string) (Ref, error) {
	var r Ref
	b, err := hex.DecodeString(s)
	if err != nil {
		return r, fmt.Errorf("parse ref: %w", err)
	}
	return RefFromBytes(b)
}

// Bytes returns the raw 16-byte representation.
func (r Ref) Bytes() []byte { b := make([]byte, RefSize); copy(b, r[:]); return b }

// String returns a hex string.
func (r Ref) String() string { return fmtHex(r[:]) }

// IsZero reports whether the Ref is all zero bytes.
func (r Ref) IsZero() bool { return r == Ref{} }

// Compare returns -1, 0, 1 based on lexical comparison.
func (r Ref) Compare(other Ref) int {
	for i := 0; i < RefSize; i++ {
		if r[i] < other[i] {
			return -1
		}
		if r[i] > other[i] {
			return 1
		}
	}
	return 0
}
