package config

import (
	"os"
	"strconv"
)

// FromEnv overlays VMQ_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	setString(&cfg.NodeName, "VMQ_NODE_NAME")
	setString(&cfg.MetricsListen, "VMQ_METRICS_LISTEN")

	setString(&cfg.Log.Level, "VMQ_LOG_LEVEL")
	setString(&cfg.Log.Format, "VMQ_LOG_FORMAT")
	setString(&cfg.Log.Output, "VMQ_LOG_OUTPUT")

	setString(&cfg.MsgStore.StoreDir, "VMQ_MSG_STORE_DIR")
	setInt(&cfg.MsgStore.Buckets, "VMQ_MSG_STORE_BUCKETS")
	setInt(&cfg.MsgStore.StagingTables, "VMQ_MSG_STORE_STAGING_TABLES")
	setUint64(&cfg.MsgStore.WriteBufferSizeMin, "VMQ_MSG_STORE_WRITE_BUFFER_SIZE_MIN")
	setUint64(&cfg.MsgStore.WriteBufferSizeMax, "VMQ_MSG_STORE_WRITE_BUFFER_SIZE_MAX")
	setInt(&cfg.MsgStore.OpenRetries, "VMQ_MSG_STORE_OPEN_RETRIES")
	setInt(&cfg.MsgStore.OpenRetryDelayMs, "VMQ_MSG_STORE_OPEN_RETRY_DELAY_MS")
	setString(&cfg.MsgStore.Fsync, "VMQ_MSG_STORE_FSYNC")
	setInt(&cfg.MsgStore.FsyncIntervalMs, "VMQ_MSG_STORE_FSYNC_INTERVAL_MS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
