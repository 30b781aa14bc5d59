package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/timvw/tab-switcher/internal/config"
	"github.com/timvw/tab-switcher/internal/mux"
)

var (
	// Global flags.
	flagMux     string
	flagConfig  string
	flagLogFile string
)

// logFile is the --log-file target, closed after the command ran.
var logFile *os.File

var rootCmd = &cobra.Command{
	Use:   "tab-switcher",
	Short: "Most-recently-used tab switcher for tmux and kitty",
	Long: `tab-switcher opens an overlay listing the tabs of the current terminal
window in most-recently-used order, with a live preview of each tab.

Bind "tab-switcher open next" and "tab-switcher open prev" to a modifier
chord (Alt+Tab, Alt+Shift+Tab). Pressing the chord again while the overlay is
open cycles it; releasing the modifier switches to the highlighted tab.

Configuration is loaded from .tab-switcher.yaml, ~/.config/tab-switcher/config.yaml
or TAB_SWITCHER_* environment variables.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logFile != nil {
			_ = logFile.Close()
			logFile = nil
		}
	},
}

// Execute runs the root command with ctx, which carries the process logger.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagMux, "mux", envOrDefault("TAB_SWITCHER_MUX", ""), "terminal multiplexer: tmux, kitty (default: auto-detect)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", envOrDefault("TAB_SWITCHER_CONFIG", ""), "config file (default: .tab-switcher.yaml, then ~/.config/tab-switcher/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", envOrDefault("TAB_SWITCHER_LOG_FILE", ""), "write logs to this file instead of stderr")
}

// setupLogging redirects the context logger to --log-file, so the overlay
// screen is not drawn over by log records.
func setupLogging(cmd *cobra.Command, _ []string) error {
	if flagLogFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(flagLogFile), 0o700); err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	f, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	logFile = f
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(f),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, NoColor: true}),
	)
	cmd.SetContext(pslog.ContextWithLogger(cmd.Context(), logger))
	return nil
}

// loadConfig loads the configuration and applies the --mux flag on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if flagMux != "" {
		cfg.Mux = flagMux
	}
	return cfg, nil
}

// getMultiplexer returns the configured or auto-detected multiplexer.
func getMultiplexer(name string) (mux.Multiplexer, error) {
	if name != "" {
		return mux.FromName(name)
	}
	return mux.Detect()
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
