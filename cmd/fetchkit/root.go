package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"fetchkit/pkg/config"
	"fetchkit/pkg/logger"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fetchkit",
	Short: "A rate-limited, retrying batch fetcher with session persistence",
	Long: `Fetchkit runs batches of fetch operations against rate-limited services.

Features:
  - Sliding window rate limiting with randomized request pacing
  - Automatic retry with class-aware exponential backoff
  - Persistent sessions (plain file, encrypted file, or system keychain)
  - Duplicate detection so interrupted batches resume where they stopped
  - Health tracking with per-batch reports`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.fetchkit.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`Fetchkit {{.Version}}
Go Version: ` + runtime.Version() + `
`)
}

// loadConfig loads configuration and initializes logging per the global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if quiet {
		cfg.Logging.Level = "error"
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	return cfg, nil
}
