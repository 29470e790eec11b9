package msgstore

import "github.com/sdrees/vernemq/pkg/id"

// refcountTable tracks how many on-disk index entries reference each payload
// within one bucket. It is owned by the bucket worker and must only be
// touched from that goroutine; the single-actor discipline is what keeps it
// consistent with the backend without locks.
type refcountTable map[id.Ref]int

func newRefcountTable() refcountTable { return make(refcountTable) }

// incr adds one reference and returns the new total (1 on first insert).
func (t refcountTable) incr(ref id.Ref) int {
	t[ref]++
	return t[ref]
}

// decr removes one reference. It returns errRefNotFound if the counter is
// absent, 0 when the last reference is dropped (the row is then removed),
// and the new positive total otherwise.
func (t refcountTable) decr(ref id.Ref) (int, error) {
	n, ok := t[ref]
	if !ok {
		return 0, errRefNotFound
	}
	n--
	if n <= 0 {
		delete(t, ref)
		return 0, nil
	}
	t[ref] = n
	return n, nil
}

// get returns the current count, 0 if absent.
func (t refcountTable) get(ref id.Ref) int { return t[ref] }

func (t refcountTable) len() int { return len(t) }
