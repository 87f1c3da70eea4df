package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/spotwatch/internal/config"
	"github.com/jfmyers9/spotwatch/internal/daemon"
	"github.com/jfmyers9/spotwatch/internal/history"
	"github.com/jfmyers9/spotwatch/internal/player"
)

// Plays older than this are dropped when the daemon stops.
const historyRetention = 90 * 24 * time.Hour

var (
	watchLogFile     string
	watchLogLevel    string
	watchMetricsAddr string
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow Spotify playback in the foreground",
	Long: `Connect to the Spotify dealer for every configured account and follow
the active player.

The watcher will:
- Keep one dealer websocket per account open, reconnecting with backoff
- Follow the player of the first account whose socket connects
- Write the projected now playing state to the data directory
- Record every track that starts in the play history
- Handle graceful shutdown on SIGINT/SIGTERM

Accounts are read from ~/.config/spotwatch/config.yaml; see 'spotwatch account'.
Logs go to stderr by default. Use --metrics-addr to serve Prometheus metrics.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	// Command-line flags
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "Log file path (default: stderr)")
	watchCmd.Flags().StringVar(&watchLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Listen address for /metrics and /healthz (e.g. :9090)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if len(cfg.Accounts) == 0 {
		return fmt.Errorf("no Spotify accounts configured. Run 'spotwatch account add' first")
	}

	// Set up logging
	logger := setupLogger(watchLogFile, watchLogLevel)

	logger.Info().
		Str("version", version).
		Int("accounts", len(cfg.Accounts)).
		Msg("Starting spotwatch")

	dir, err := resolveDataDir()
	if err != nil {
		return err
	}
	logger.Info().Str("data_dir", dir).Msg("Using data directory")

	d, err := daemon.New(daemonConfig(cfg, dir, watchMetricsAddr), logger)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	// Pick up rotated tokens without a restart
	if err := config.Watch(logger, func(c *config.Config) {
		d.UpdateAccounts(daemonConfig(c, dir, watchMetricsAddr).Accounts)
	}); err != nil && !errors.Is(err, config.ErrNoConfigFile) {
		logger.Warn().Err(err).Msg("Not watching config for token changes")
	}

	// Run daemon (blocks until shutdown signal)
	if err := d.Run(context.Background()); err != nil {
		_ = d.Shutdown()
		return fmt.Errorf("daemon error: %w", err)
	}

	// Graceful shutdown
	if err := d.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		return err
	}

	logger.Info().Msg("Watcher stopped")
	return nil
}

// daemonConfig builds the daemon configuration for the data directory dir.
func daemonConfig(cfg *config.Config, dir, metricsAddr string) daemon.Config {
	accounts := make([]daemon.Account, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		accounts = append(accounts, daemon.Account{ID: a.ID, AccessToken: a.AccessToken})
	}

	return daemon.Config{
		Accounts:         accounts,
		DealerURL:        cfg.DealerURL,
		PingInterval:     cfg.PingDuration(),
		StrictResolve:    cfg.StrictResolve,
		StateFile:        filepath.Join(dir, player.StateFile),
		HistoryDB:        filepath.Join(dir, history.DBFile),
		HistoryRetention: historyRetention,
		MetricsAddr:      metricsAddr,
	}
}

// setupLogger creates a logger with the specified configuration
func setupLogger(logFile, logLevel string) zerolog.Logger {
	// Parse log level
	level := zerolog.InfoLevel
	switch logLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	// Set up output
	var output *os.File
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			output = os.Stderr
		} else {
			output = f
		}
	} else {
		output = os.Stderr
	}

	// Create logger
	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	// Use pretty console output if logging to stderr
	if output == os.Stderr {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger
}
