package msgstore

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/sdrees/vernemq/internal/storage/pebble"
	"github.com/sdrees/vernemq/pkg/id"
	"github.com/sdrees/vernemq/pkg/log"
)

// BucketOptions configures one bucket.
type BucketOptions struct {
	// Slot is the bucket's registry slot; also its on-disk instance id.
	Slot int
	// Dir is the bucket's database directory, created if missing.
	Dir string
	// WriteBufferMin/Max bound the randomized memtable size. Randomizing
	// per bucket desynchronizes flushes and compactions across buckets.
	WriteBufferMin uint64
	WriteBufferMax uint64
	// OpenRetries and OpenRetryDelay bound the wait on a held directory lock.
	OpenRetries    int
	OpenRetryDelay time.Duration
	// Fsync selects the backend's WAL sync policy.
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	// Metrics observes backend reads, writes, and batch commits. Optional.
	Metrics pebblestore.MetricsHook
	// Staging receives entries from subscriber scans and recovery.
	Staging *StagingTables
	Logger  log.Logger
}

// BucketStats is a point-in-time count of a bucket's on-disk records.
type BucketStats struct {
	Payloads int
	Indexes  int
}

// Bucket owns one backend database and one refcount table. All requests are
// serialized through a single worker goroutine, which is what keeps refcount
// updates consistent with backend writes without locks.
type Bucket struct {
	slot    int
	db      *pebblestore.DB
	refs    refcountTable
	staging *StagingTables
	logger  log.Logger

	mu       sync.RWMutex
	closed   bool
	requests chan func()
	drained  chan struct{}

	initialized bool
}

// OpenBucket opens the backend (retrying while the directory lock is held),
// runs the recovery scan, and starts the worker. The caller registers the
// bucket with the registry afterwards; until then no request can reach it.
func OpenBucket(ctx context.Context, opts BucketOptions) (*Bucket, error) {
	if opts.Staging == nil {
		return nil, fmt.Errorf("bucket %d: staging tables required", opts.Slot)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewLogger(log.WithOutput(log.NullOutput{}))
	}
	logger := opts.Logger.WithComponent("msgstore.bucket").WithField("bucket", opts.Slot)

	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("bucket %d: create dir: %w", opts.Slot, err)
	}

	db, err := pebblestore.OpenRetry(ctx, pebblestore.Options{
		DataDir:         opts.Dir,
		Fsync:           opts.Fsync,
		FsyncInterval:   opts.FsyncInterval,
		WriteBufferSize: randomWriteBuffer(opts.WriteBufferMin, opts.WriteBufferMax),
		Metrics:         opts.Metrics,
	}, pebblestore.RetryOptions{
		Attempts: opts.OpenRetries,
		Delay:    opts.OpenRetryDelay,
		OnRetry: func(attempt int, err error) {
			logger.Warn("backend locked, retrying open",
				log.Int("attempt", attempt), log.Err(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("bucket %d: open backend: %w", opts.Slot, err)
	}

	b := &Bucket{
		slot:     opts.Slot,
		db:       db,
		refs:     newRefcountTable(),
		staging:  opts.Staging,
		logger:   logger,
		requests: make(chan func()),
		drained:  make(chan struct{}),
	}

	// Recovery runs before the worker starts, so the refcount table is
	// complete before the first request can observe it.
	if err := b.recover(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bucket %d: recovery: %w", opts.Slot, err)
	}
	b.initialized = true

	go b.worker()
	return b, nil
}

// randomWriteBuffer picks a memtable size uniformly in [min, max].
func randomWriteBuffer(min, max uint64) uint64 {
	if max <= min {
		return min
	}
	return min + uint64(rand.Int63n(int64(max-min+1)))
}

// recover iterates the entire index range once, rebuilding the refcount
// table and staging every entry under the reserved init scan-id.
func (b *Bucket) recover() error {
	lower, upper := KeyIdxRange()
	iter, err := b.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	count := 0
	for iter.First(); iter.Valid(); iter.Next() {
		sub, ref, err := DecodeIdxKey(iter.Key())
		if err != nil {
			return err
		}
		val, err := DecodeIdxValue(iter.Value())
		if err != nil {
			return err
		}
		b.staging.Stage(InitScanID, sub, val.Timestamp, ref)
		b.refs.incr(ref)
		count++
	}
	if err := iter.Error(); err != nil {
		return err
	}
	if count > 0 {
		b.logger.Info("recovered index entries", log.Int("entries", count))
	}
	return nil
}

// Slot returns the bucket's registry slot.
func (b *Bucket) Slot() int { return b.slot }

// State reports "initialized" once recovery has completed.
func (b *Bucket) State() string {
	if b.initialized {
		return "initialized"
	}
	return "opening"
}

// BackendRef exposes the underlying backend handle for tests and diagnostics.
func (b *Bucket) BackendRef() *pebblestore.DB { return b.db }

// run executes fn on the worker goroutine and waits for it to finish.
func (b *Bucket) run(fn func()) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrStoreClosed
	}
	done := make(chan struct{})
	b.requests <- func() {
		defer close(done)
		fn()
	}
	b.mu.RUnlock()
	<-done
	return nil
}

func (b *Bucket) worker() {
	for fn := range b.requests {
		fn()
	}
	close(b.drained)
}

// Write persists one publication for one subscriber. The first reference to
// a payload writes the payload record and the index entry in one atomic
// batch; subsequent references write only the index entry.
func (b *Bucket) Write(sub SubscriberID, msg Message) error {
	if msg.Mountpoint != sub.Mountpoint {
		return ErrMountpointMismatch
	}
	var opErr error
	err := b.run(func() {
		idxKey := KeyIdx(sub, msg.Ref)
		idxVal := EncodeIdxValue(IdxValue{Timestamp: NowTimestamp(), Dup: msg.Dup, QoS: msg.QoS})

		total := b.refs.incr(msg.Ref)
		batch := b.db.NewBatch()
		defer batch.Close()
		if total == 1 {
			msgKey := KeyMsg(msg.Ref, msg.Mountpoint)
			msgVal := EncodeMsgValue(MsgValue{RoutingKey: msg.RoutingKey, Payload: msg.Payload})
			if err := batch.Set(msgKey, msgVal, nil); err != nil {
				opErr = err
			}
		}
		if opErr == nil {
			if err := batch.Set(idxKey, idxVal, nil); err != nil {
				opErr = err
			}
		}
		if opErr == nil {
			opErr = b.db.CommitBatch(context.Background(), batch)
		}
		if opErr != nil {
			// Nothing reached disk; restore the count.
			_, _ = b.refs.decr(msg.Ref)
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// Read reconstitutes a message from the payload record and the subscriber's
// index entry. A missing payload is ErrNotFound; a present payload with a
// missing index entry is ErrIndexNotFound.
func (b *Bucket) Read(sub SubscriberID, ref id.Ref) (Message, error) {
	var msg Message
	var opErr error
	err := b.run(func() {
		msgRaw, err := b.db.Get(KeyMsg(ref, sub.Mountpoint))
		if err != nil {
			if pebblestore.IsNotFound(err) {
				opErr = ErrNotFound
			} else {
				opErr = err
			}
			return
		}
		idxRaw, err := b.db.Get(KeyIdx(sub, ref))
		if err != nil {
			if pebblestore.IsNotFound(err) {
				opErr = ErrIndexNotFound
			} else {
				opErr = err
			}
			return
		}
		msgVal, err := DecodeMsgValue(msgRaw)
		if err != nil {
			opErr = err
			return
		}
		idxVal, err := DecodeIdxValue(idxRaw)
		if err != nil {
			opErr = err
			return
		}
		msg = Message{
			Ref:        ref,
			Mountpoint: sub.Mountpoint,
			RoutingKey: msgVal.RoutingKey,
			Payload:    msgVal.Payload,
			Dup:        idxVal.Dup,
			QoS:        idxVal.QoS,
			Persisted:  true,
		}
	})
	if err != nil {
		return Message{}, err
	}
	return msg, opErr
}

// Delete drops the subscriber's reference. The payload record is removed
// only when the last reference goes; a decrement on an absent counter is
// logged and treated as success so deletes stay idempotent.
func (b *Bucket) Delete(sub SubscriberID, ref id.Ref) error {
	var opErr error
	err := b.run(func() {
		remaining, decErr := b.refs.decr(ref)
		if decErr != nil {
			b.logger.Warn("delete for unknown message ref",
				log.Str("subscriber", sub.String()), log.Str("ref", ref.String()))
			return
		}
		batch := b.db.NewBatch()
		defer batch.Close()
		if err := batch.Delete(KeyIdx(sub, ref), nil); err != nil {
			opErr = err
			return
		}
		if remaining == 0 {
			if err := batch.Delete(KeyMsg(ref, sub.Mountpoint), nil); err != nil {
				opErr = err
				return
			}
		}
		opErr = b.db.CommitBatch(context.Background(), batch)
	})
	if err != nil {
		return err
	}
	return opErr
}

// scanSubscriber walks the subscriber's index prefix and stages every entry
// under the given scan-id. Absence of entries is not an error.
func (b *Bucket) scanSubscriber(scanID ScanID, sub SubscriberID) error {
	var opErr error
	err := b.run(func() {
		prefix := KeyIdxSubscriberPrefix(sub)
		iter, err := b.db.NewIter(&pebble.IterOptions{
			LowerBound: prefix,
			UpperBound: prefixUpperBound(prefix),
		})
		if err != nil {
			opErr = err
			return
		}
		defer iter.Close()

		for iter.First(); iter.Valid(); iter.Next() {
			_, ref, err := DecodeIdxKey(iter.Key())
			if err != nil {
				opErr = err
				return
			}
			val, err := DecodeIdxValue(iter.Value())
			if err != nil {
				opErr = err
				return
			}
			b.staging.Stage(scanID, sub, val.Timestamp, ref)
		}
		opErr = iter.Error()
	})
	if err != nil {
		return err
	}
	return opErr
}

// Refcount returns the in-memory reference count for a ref, 0 if absent.
func (b *Bucket) Refcount(ref id.Ref) int {
	var n int
	_ = b.run(func() { n = b.refs.get(ref) })
	return n
}

// Stats counts the bucket's on-disk payload and index records.
func (b *Bucket) Stats() (BucketStats, error) {
	var stats BucketStats
	var opErr error
	err := b.run(func() {
		stats.Indexes, opErr = b.countRange(KeyIdxRange())
		if opErr != nil {
			return
		}
		stats.Payloads, opErr = b.countRange(KeyMsgRange())
	})
	if err != nil {
		return BucketStats{}, err
	}
	return stats, opErr
}

func (b *Bucket) countRange(lower, upper []byte) (int, error) {
	iter, err := b.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, iter.Error()
}

// Close drains in-flight requests and closes the backend.
func (b *Bucket) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.requests)
	b.mu.Unlock()

	<-b.drained
	return b.db.Close()
}
