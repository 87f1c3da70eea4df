package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/spotwatch/internal/history"
	"github.com/jfmyers9/spotwatch/internal/player"
)

var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently played tracks",
	Long: `List the tracks the watcher saw start, most recent first.

Plays are recorded by 'spotwatch watch' and 'spotwatch tui'. Plays older
than 90 days are removed when the watcher stops.`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of plays to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dir, err := resolveDataDir()
	if err != nil {
		return err
	}

	store, err := history.Open(filepath.Join(dir, history.DBFile))
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No plays recorded yet")
		return nil
	}

	for _, e := range entries {
		fmt.Fprintln(out, formatEntry(e))
	}
	return nil
}

// formatEntry renders a play as one history line.
func formatEntry(e history.Entry) string {
	line := fmt.Sprintf("%s  %s - %s",
		e.StartedAt.Local().Format("2006-01-02 15:04"), e.Artists, e.Name)
	if e.Duration > 0 {
		line += fmt.Sprintf(" (%s)", player.FormatDuration(e.Duration))
	}
	return line
}
