package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	cfgpkg "github.com/sdrees/vernemq/internal/config"
	"github.com/sdrees/vernemq/internal/msgstore"
	"github.com/sdrees/vernemq/pkg/log"
	"github.com/sdrees/vernemq/pkg/metrics"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	// Logger overrides the logger built from Config.Log. Optional.
	Logger log.Logger
	// Registerer receives the store's Prometheus collectors. Optional.
	Registerer prometheus.Registerer
}

// Runtime wires config, logging, metrics, and the message store into a
// single-node instance.
type Runtime struct {
	config cfgpkg.Config
	logger log.Logger
	store  *msgstore.Store
}

// Open builds the logger, registers metrics, and opens the message store.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		built, err := log.ApplyConfig(&log.Config{
			Level:  opts.Config.Log.Level,
			Format: opts.Config.Log.Format,
			Output: opts.Config.Log.Output,
		})
		if err != nil {
			return nil, err
		}
		logger = built
	}

	storeOpts, err := opts.Config.MsgStore.StoreOptions()
	if err != nil {
		return nil, err
	}
	storeOpts.Logger = logger

	if opts.Registerer != nil {
		sm := metrics.NewStoreMetrics()
		if err := sm.Register(opts.Registerer); err != nil {
			return nil, err
		}
		storeOpts.Metrics = sm
	}

	store, err := msgstore.Open(ctx, storeOpts)
	if err != nil {
		return nil, err
	}
	return &Runtime{config: opts.Config, logger: logger, store: store}, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

// CheckHealth verifies that every bucket finished its recovery scan.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.store == nil {
		return errors.New("store not open")
	}
	for slot := 0; slot < r.config.MsgStore.Buckets; slot++ {
		if state := r.store.State(slot); state != "initialized" {
			return fmt.Errorf("bucket %d is %s", slot, state)
		}
	}
	return nil
}

// Store returns the message store.
func (r *Runtime) Store() *msgstore.Store { return r.store }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the runtime logger.
func (r *Runtime) Logger() log.Logger { return r.logger }
