package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	serverrun "github.com/rzbill/conveyor/internal/cmd/server"
	cfgpkg "github.com/rzbill/conveyor/internal/config"
	pebblestore "github.com/rzbill/conveyor/internal/storage/pebble"
	logpkg "github.com/rzbill/conveyor/pkg/log"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	// Respect CONVEYOR_LOG_LEVEL for CLI output before any config is loaded.
	level := os.Getenv("CONVEYOR_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(logpkg.WithLevel(parsed))
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "conveyor",
		Short: "Conveyor pipeline messaging runtime",
		Long:  "Conveyor is a single-binary pipeline messaging runtime: durable topics, cross-batch buffering, and batch indexing loops.",
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("conveyor", version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start conveyor server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			configPath, _ := cmd.Flags().GetString("config")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if logFormat != "" {
				cfg.Log.Format = logFormat
			}
			if httpAddr != "" {
				cfg.HTTPAddr = httpAddr
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:       dataDir,
				HTTPAddr:      cfg.HTTPAddr,
				Fsync:         mode,
				FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
				Config:        cfg,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("http", "", "HTTP listen address (overrides config)")
	serverStartCmd.Flags().String("config", os.Getenv("CONVEYOR_CONFIG"), "Config file path (JSON or YAML)")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms (default 5)")
	serverStartCmd.Flags().String("log-level", os.Getenv("CONVEYOR_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("CONVEYOR_LOG_FORMAT"), "Log format: text|json (default text)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// admin inspection commands against a running server
	topicsCmd := &cobra.Command{
		Use:   "topics",
		Short: "List topics on a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON(apiURL() + "/v1/topics")
		},
	}
	rootCmd.AddCommand(topicsCmd)

	metricsCmd := &cobra.Command{
		Use:   "metrics",
		Short: "Dump metrics from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON(apiURL() + "/v1/metrics")
		},
	}
	rootCmd.AddCommand(metricsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getJSON(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty any
	if err := json.Unmarshal(b, &pretty); err != nil {
		fmt.Println(string(b))
		return nil
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
	return nil
}

func apiURL() string {
	if v := os.Getenv("CONVEYOR_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
