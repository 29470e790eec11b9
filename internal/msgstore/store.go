package msgstore

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	pebblestore "github.com/sdrees/vernemq/internal/storage/pebble"
	"github.com/sdrees/vernemq/pkg/id"
	"github.com/sdrees/vernemq/pkg/log"
)

// Defaults for store options.
const (
	DefaultStoreDir       = "data/msgstore"
	DefaultBuckets        = 12
	DefaultStagingTables  = 10
	DefaultWriteBufferMin = 30 << 20
	DefaultWriteBufferMax = 60 << 20
	DefaultOpenRetries    = 30
	DefaultOpenRetryDelay = 2000 * time.Millisecond
)

// Options configures a Store.
type Options struct {
	// StoreDir is the root directory; each bucket keeps its database under
	// <StoreDir>/<slot>/.
	StoreDir string
	// Buckets is N, the number of shards.
	Buckets int
	// StagingTables is M, the number of scan rendezvous tables.
	StagingTables int
	// WriteBufferMin/Max bound each bucket's randomized memtable size.
	WriteBufferMin uint64
	WriteBufferMax uint64
	// OpenRetries and OpenRetryDelay bound the wait on held directory locks.
	OpenRetries    int
	OpenRetryDelay time.Duration
	// Fsync selects the backend WAL sync policy for all buckets.
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	// Metrics observes backend operations across all buckets. Optional.
	Metrics pebblestore.MetricsHook
	Logger  log.Logger
}

func (o Options) withDefaults() Options {
	if o.StoreDir == "" {
		o.StoreDir = DefaultStoreDir
	}
	if o.Buckets < 1 {
		o.Buckets = DefaultBuckets
	}
	if o.StagingTables < 1 {
		o.StagingTables = DefaultStagingTables
	}
	if o.WriteBufferMin == 0 {
		o.WriteBufferMin = DefaultWriteBufferMin
	}
	if o.WriteBufferMax < o.WriteBufferMin {
		o.WriteBufferMax = o.WriteBufferMin
		if o.WriteBufferMax < DefaultWriteBufferMax {
			o.WriteBufferMax = DefaultWriteBufferMax
		}
	}
	if o.OpenRetries < 1 {
		o.OpenRetries = DefaultOpenRetries
	}
	if o.OpenRetryDelay <= 0 {
		o.OpenRetryDelay = DefaultOpenRetryDelay
	}
	if o.Logger == nil {
		o.Logger = log.NewLogger(log.WithOutput(log.NullOutput{}))
	}
	return o
}

// Store is the persistent offline message store: N buckets behind a hash
// router, M shared staging tables, and a scan-id generator for finds.
type Store struct {
	opts     Options
	logger   log.Logger
	registry *Registry
	staging  *StagingTables
	buckets  []*Bucket
	scanIDs  *id.Generator

	mu     sync.Mutex
	closed bool
}

// Open opens all buckets concurrently, runs their recovery scans, and
// registers each with the router as it completes. If any bucket fails, the
// ones already open are closed and the aggregated error is returned.
func Open(ctx context.Context, opts Options) (*Store, error) {
	opts = opts.withDefaults()
	s := &Store{
		opts:     opts,
		logger:   opts.Logger.WithComponent("msgstore"),
		registry: NewRegistry(opts.Buckets),
		staging:  NewStagingTables(opts.StagingTables),
		buckets:  make([]*Bucket, opts.Buckets),
		scanIDs:  id.NewGenerator(),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs *multierror.Error
	for slot := 0; slot < opts.Buckets; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			b, err := OpenBucket(ctx, BucketOptions{
				Slot:           slot,
				Dir:            filepath.Join(opts.StoreDir, strconv.Itoa(slot)),
				WriteBufferMin: opts.WriteBufferMin,
				WriteBufferMax: opts.WriteBufferMax,
				OpenRetries:    opts.OpenRetries,
				OpenRetryDelay: opts.OpenRetryDelay,
				Fsync:          opts.Fsync,
				FsyncInterval:  opts.FsyncInterval,
				Metrics:        opts.Metrics,
				Staging:        s.staging,
				Logger:         opts.Logger,
			})
			if err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
				return
			}
			mu.Lock()
			s.buckets[slot] = b
			mu.Unlock()
			s.registry.Register(slot, b)
		}(slot)
	}
	wg.Wait()

	if err := errs.ErrorOrNil(); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.logger.Info("message store open",
		log.Int("buckets", opts.Buckets),
		log.Int("staging_tables", opts.StagingTables),
		log.Str("dir", opts.StoreDir))
	return s, nil
}

// Write persists one publication for one subscriber, routed by message ref.
func (s *Store) Write(sub SubscriberID, msg Message) error {
	b, err := s.registry.BucketFor(msg.Ref)
	if err != nil {
		return err
	}
	return b.Write(sub, msg)
}

// Read reconstitutes a message for one subscriber, routed by message ref.
func (s *Store) Read(sub SubscriberID, ref id.Ref) (Message, error) {
	b, err := s.registry.BucketFor(ref)
	if err != nil {
		return Message{}, err
	}
	return b.Read(sub, ref)
}

// Delete drops one subscriber's reference to a message.
func (s *Store) Delete(sub SubscriberID, ref id.Ref) error {
	b, err := s.registry.BucketFor(ref)
	if err != nil {
		return err
	}
	return b.Delete(sub, ref)
}

// Find returns the subscriber's backlog of message refs in ascending
// write-timestamp order. See FindMode for the queue-init fast path.
func (s *Store) Find(sub SubscriberID, mode FindMode) ([]id.Ref, error) {
	return s.find(sub, mode)
}

// Refcount returns the reference count for a ref, 0 if the owning bucket is
// not registered or the ref is unknown.
func (s *Store) Refcount(ref id.Ref) int {
	b, err := s.registry.BucketFor(ref)
	if err != nil {
		return 0
	}
	return b.Refcount(ref)
}

// State reports a bucket's lifecycle state by slot.
func (s *Store) State(slot int) string {
	if slot < 0 || slot >= len(s.buckets) || s.buckets[slot] == nil {
		return "unknown"
	}
	return s.buckets[slot].State()
}

// Stats collects on-disk record counts from every bucket.
func (s *Store) Stats() (map[int]BucketStats, error) {
	out := make(map[int]BucketStats, len(s.buckets))
	var errs *multierror.Error
	for _, b := range s.registry.Buckets() {
		st, err := b.Stats()
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		out[b.Slot()] = st
	}
	return out, errs.ErrorOrNil()
}

// Close closes every bucket, aggregating errors.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs *multierror.Error
	for _, b := range s.buckets {
		if b == nil {
			continue
		}
		if err := b.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
