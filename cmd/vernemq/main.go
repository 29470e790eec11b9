package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	inspectcmd "github.com/sdrees/vernemq/internal/cmd/inspect"
	serverrun "github.com/sdrees/vernemq/internal/cmd/server"
	cfgpkg "github.com/sdrees/vernemq/internal/config"
)

func main() {
	_ = godotenv.Load(".env")

	rootCmd := &cobra.Command{
		Use:   "vernemq",
		Short: "VerneMQ message store node",
		Long:  "Standalone offline message store node. This CLI starts the store and inspects its buckets.",
	}

	rootCmd.AddCommand(newServerCommand())
	rootCmd.AddCommand(newInspectCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServerCommand() *cobra.Command {
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	startCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the message store node",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			storeDir, _ := cmd.Flags().GetString("store-dir")
			metricsListen, _ := cmd.Flags().GetString("metrics")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			if storeDir != "" {
				cfg.MsgStore.StoreDir = storeDir
			}
			if cmd.Flags().Changed("metrics") {
				cfg.MetricsListen = metricsListen
			}
			if fsyncMode != "" {
				if _, err := cfgpkg.ParseFsyncMode(fsyncMode); err != nil {
					return fmt.Errorf("invalid --fsync; use always|interval|never")
				}
				cfg.MsgStore.Fsync = fsyncMode
			}
			if cmd.Flags().Changed("fsync-interval-ms") {
				cfg.MsgStore.FsyncIntervalMs = fsyncIntervalMs
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if logFormat != "" {
				cfg.Log.Format = logFormat
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := serverrun.Run(ctx, serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	startCmd.Flags().String("config", os.Getenv("VMQ_CONFIG"), "Config file path (YAML or JSON)")
	startCmd.Flags().String("store-dir", "", "Message store directory (default: OS-specific application data directory)")
	startCmd.Flags().String("metrics", "", "Metrics/health listen address, e.g. :9090 (empty disables)")
	startCmd.Flags().String("fsync", "", "Fsync mode: always|interval|never")
	startCmd.Flags().Int("fsync-interval-ms", 5, "When fsync=interval, group-commit window in ms")
	startCmd.Flags().String("log-level", os.Getenv("VMQ_LOG_LEVEL"), "Log level: debug|info|warn|error")
	startCmd.Flags().String("log-format", os.Getenv("VMQ_LOG_FORMAT"), "Log format: text|json")
	serverCmd.AddCommand(startCmd)
	return serverCmd
}

func newInspectCommand() *cobra.Command {
	inspect := &cobra.Command{
		Use:   "inspect <bucket-dir>",
		Short: "Dump one bucket's records (node must be stopped)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			_, err := inspectcmd.Run(cmd.OutOrStdout(), inspectcmd.Options{
				Dir:     args[0],
				Verbose: verbose,
			})
			return err
		},
	}
	inspect.Flags().BoolP("verbose", "v", false, "Print every decoded record")
	return inspect
}
