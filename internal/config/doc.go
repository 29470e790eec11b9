// Package config provides loading and environment overlay for the store
// node's configuration. It exposes a Default() baseline, file loading (YAML
// or JSON by extension), and VMQ_* environment overrides.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/vernemq.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	opts, _ := cfg.MsgStore.StoreOptions()
package config
