package serverrun

import (
	"context"
	"testing"
	"time"

	cfgpkg "github.com/sdrees/vernemq/internal/config"
)

func testConfig(t *testing.T) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.MsgStore.StoreDir = t.TempDir()
	cfg.MsgStore.Buckets = 2
	cfg.MsgStore.StagingTables = 2
	cfg.MsgStore.WriteBufferSizeMin = 1 << 20
	cfg.MsgStore.WriteBufferSizeMax = 2 << 20
	cfg.MsgStore.OpenRetries = 2
	cfg.MsgStore.OpenRetryDelayMs = 10
	cfg.MsgStore.Fsync = "never"
	cfg.Log.Output = "null"
	return cfg
}

// TestRunIntegration verifies Run opens the store and shuts down cleanly on
// context cancellation.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := Run(ctx, Options{Config: testConfig(t), StatsInterval: -1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunRejectsBadLogConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Log.Format = "xml"
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := Run(ctx, Options{Config: cfg}); err == nil {
		t.Fatal("expected error for unknown log format")
	}
}

func TestRunRejectsBadFsyncConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.MsgStore.Fsync = "sometimes"
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := Run(ctx, Options{Config: cfg}); err == nil {
		t.Fatal("expected error for unknown fsync mode")
	}
}
