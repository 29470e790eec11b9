package serverrun

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	cfgpkg "github.com/sdrees/vernemq/internal/config"
	"github.com/sdrees/vernemq/internal/runtime"
	logpkg "github.com/sdrees/vernemq/pkg/log"
)

// DefaultStatsInterval is how often the store's record counts are logged
// when Options.StatsInterval is unset.
const DefaultStatsInterval = time.Minute

type Options struct {
	Config cfgpkg.Config
	// StatsInterval controls the periodic record-count log. <0 disables it.
	StatsInterval time.Duration
}

// Run opens the message store node and blocks until ctx is cancelled. When
// Config.MetricsListen is set it also serves /metrics and /healthz there.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so callers that
	// pass a plain context still get clean SIGINT/SIGTERM shutdown.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config

	logger, err := logpkg.ApplyConfig(&logpkg.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return err
	}
	logpkg.RedirectStdLog(logger)

	registry := prometheus.NewRegistry()
	rt, err := runtime.Open(sctx, runtime.Options{
		Config:     cfg,
		Logger:     logger,
		Registerer: registry,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("starting message store node",
		logpkg.Str("node", cfg.NodeName),
		logpkg.Str("dir", cfg.MsgStore.StoreDir),
		logpkg.Int("buckets", cfg.MsgStore.Buckets),
		logpkg.Str("metrics", cfg.MetricsListen),
	)

	var metricsSrv *http.Server
	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := rt.CheckHealth(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		metricsSrv = &http.Server{Addr: cfg.MetricsListen, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", logpkg.Err(err))
			}
		}()
	}

	statsInterval := opts.StatsInterval
	if statsInterval == 0 {
		statsInterval = DefaultStatsInterval
	}
	if statsInterval > 0 {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-sctx.Done():
					return
				case <-ticker.C:
					logStats(rt, logger)
				}
			}
		}()
	}

	<-sctx.Done()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func logStats(rt *runtime.Runtime, logger logpkg.Logger) {
	stats, err := rt.Store().Stats()
	if err != nil {
		logger.Warn("collecting store stats failed", logpkg.Err(err))
		return
	}
	var payloads, indexes int
	for _, st := range stats {
		payloads += st.Payloads
		indexes += st.Indexes
	}
	logger.Info("store record counts",
		logpkg.Int("payloads", payloads),
		logpkg.Int("indexes", indexes),
		logpkg.Int("buckets", len(stats)),
	)
}
