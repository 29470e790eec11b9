package msgstore

import (
	"hash/fnv"
	"sync"

	"github.com/sdrees/vernemq/pkg/id"
)

// Registry maps message references to buckets by stable hash. Slots are
// filled once, by each bucket after its recovery completes, so a request can
// never reach a partially initialized backend: until registration the slot
// reports ErrBucketNotReady.
type Registry struct {
	mu    sync.RWMutex
	slots []*Bucket
}

// NewRegistry creates a registry with n empty slots.
func NewRegistry(n int) *Registry {
	if n < 1 {
		n = 1
	}
	return &Registry{slots: make([]*Bucket, n)}
}

// NumSlots returns the number of bucket slots (N).
func (r *Registry) NumSlots() int { return len(r.slots) }

// SlotFor returns the slot index owning a ref.
func (r *Registry) SlotFor(ref id.Ref) int {
	return int(refHash(ref) % uint32(len(r.slots)))
}

// BucketFor returns the bucket owning a ref, or ErrBucketNotReady if that
// slot has not registered yet.
func (r *Registry) BucketFor(ref id.Ref) (*Bucket, error) {
	r.mu.RLock()
	b := r.slots[r.SlotFor(ref)]
	r.mu.RUnlock()
	if b == nil {
		return nil, ErrBucketNotReady
	}
	return b, nil
}

// Register installs a bucket in its slot. Called once per bucket, after
// recovery.
func (r *Registry) Register(slot int, b *Bucket) {
	r.mu.Lock()
	r.slots[slot] = b
	r.mu.Unlock()
}

// Buckets returns the currently registered buckets in slot order.
// Unregistered slots are omitted, which is how fan-out skips buckets that
// are still recovering.
func (r *Registry) Buckets() []*Bucket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Bucket, 0, len(r.slots))
	for _, b := range r.slots {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

// refHash is the stable hash routing a ref to its owning bucket.
func refHash(ref id.Ref) uint32 {
	h := fnv.New32a()
	h.Write(ref[:])
	return h.Sum32()
}
