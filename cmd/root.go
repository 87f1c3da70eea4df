/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var dataDir string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "spotwatch",
	Short: "Follow Spotify playback over the dealer websocket",
	Long: `spotwatch follows the Spotify player of your linked accounts.

It keeps one dealer websocket per account open, works out which account's
socket reflects the player you are using, and projects its player and
device state into a now playing view.

The projected state is written to the data directory so the now command
can print it, which is useful for tmux status lines or other status bars.
Every track that starts is recorded in a local play history.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory for state and history (default: ~/.local/share/spotwatch)")
}

// resolveDataDir returns the data directory, creating it if needed.
func resolveDataDir() (string, error) {
	dir := dataDir
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".local", "share", "spotwatch")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}
