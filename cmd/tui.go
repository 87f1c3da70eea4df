package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/spotwatch/internal/config"
	"github.com/jfmyers9/spotwatch/internal/daemon"
	"github.com/jfmyers9/spotwatch/internal/tui"
)

var (
	tuiLogFile  string
	tuiLogLevel string
)

// tuiCmd represents the tui command
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Follow Spotify playback in a terminal UI",
	Long: `Run the watcher and display the followed player in a terminal UI with
real-time updates.

The TUI includes:
- Now playing display with track name, artists, and album
- Progress bar showing playback position
- Repeat, shuffle and device panel
- Recently played tracks

Like 'spotwatch watch', it writes the now playing state and play history to
the data directory. Logs are discarded unless --log-file is given.

Press 'q' to quit.`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)

	tuiCmd.Flags().StringVar(&tuiLogFile, "log-file", "", "Log file path (default: discard)")
	tuiCmd.Flags().StringVar(&tuiLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if len(cfg.Accounts) == 0 {
		return fmt.Errorf("no Spotify accounts configured. Run 'spotwatch account add' first")
	}

	// The terminal belongs to the UI
	logger := zerolog.Nop()
	if tuiLogFile != "" {
		logger = setupLogger(tuiLogFile, tuiLogLevel)
	}

	dir, err := resolveDataDir()
	if err != nil {
		return err
	}

	d, err := daemon.New(daemonConfig(cfg, dir, ""), logger)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	defer func() {
		if err := d.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("Error during shutdown")
		}
	}()

	if err := config.Watch(logger, func(c *config.Config) {
		d.UpdateAccounts(daemonConfig(c, dir, "").Accounts)
	}); err != nil && !errors.Is(err, config.ErrNoConfigFile) {
		logger.Warn().Err(err).Msg("Not watching config for token changes")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := tui.NewWithConfig(tui.Config{RefreshRate: cfg.RefreshRate()})
	if recent, err := d.History().Recent(ctx, 5); err != nil {
		logger.Warn().Err(err).Msg("Failed to load recent plays")
	} else {
		app.Seed(recent)
	}

	// Stopping the daemon stops the UI
	daemonErr := make(chan error, 1)
	go func() {
		daemonErr <- d.Run(ctx)
		cancel()
	}()

	projection := d.Projection()
	uiErr := app.Run(ctx, projection.Updates(), projection.Current)

	cancel()
	return errors.Join(uiErr, <-daemonErr)
}
