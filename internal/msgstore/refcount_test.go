package msgstore

import (
	"errors"
	"testing"

	"github.com/sdrees/vernemq/pkg/id"
)

func TestRefcountIncrDecr(t *testing.T) {
	refs := newRefcountTable()
	r := id.RefFromContent([]byte("m"))

	if n := refs.incr(r); n != 1 {
		t.Fatalf("first incr = %d, want 1", n)
	}
	if n := refs.incr(r); n != 2 {
		t.Fatalf("second incr = %d, want 2", n)
	}
	if n := refs.get(r); n != 2 {
		t.Fatalf("get = %d, want 2", n)
	}

	n, err := refs.decr(r)
	if err != nil || n != 1 {
		t.Fatalf("decr = (%d, %v), want (1, nil)", n, err)
	}
	n, err = refs.decr(r)
	if err != nil || n != 0 {
		t.Fatalf("final decr = (%d, %v), want (0, nil)", n, err)
	}
	if refs.get(r) != 0 {
		t.Fatalf("row not removed at zero")
	}
	if refs.len() != 0 {
		t.Fatalf("table not empty")
	}
}

func TestRefcountDecrAbsent(t *testing.T) {
	refs := newRefcountTable()
	_, err := refs.decr(id.RefFromContent([]byte("never written")))
	if !errors.Is(err, errRefNotFound) {
		t.Fatalf("expected errRefNotFound, got %v", err)
	}
}
