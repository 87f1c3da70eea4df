/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/spotwatch/internal/config"
	"github.com/jfmyers9/spotwatch/internal/player"
)

// nowCmd represents the now command
var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Display the currently playing Spotify track",
	Long: `Display the track the watcher last saw playing.

The state is written by 'spotwatch watch' (or 'spotwatch tui') to the data
directory; elapsed time is advanced to now while the track plays.

The output format can be customized in ~/.config/spotwatch/config.yaml
using a Go template. Available fields: .Name, .Artists, .Album, .Device,
.Repeat, .AccountID, .URL, and the methods .ElapsedString, .DurationString,
.Remaining, .Percent, .ShuffleLabel

Exit codes:
  0 - Track is currently playing
  1 - No track playing, paused, or the watcher never ran`,
	RunE: runNow,
}

func init() {
	rootCmd.AddCommand(nowCmd)

	// Add format flag to override config
	nowCmd.Flags().StringP("format", "f", "", "Output format template (overrides config)")
	// Add width flag to set fixed output width
	nowCmd.Flags().IntP("width", "w", 0, "Fixed output width (0=disabled, overrides config)")
	// Add marquee flag to enable scrolling
	nowCmd.Flags().Bool("marquee", false, "Enable marquee scrolling for long text (overrides config)")
}

func runNow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	format := cfg.OutputFormat
	if f, _ := cmd.Flags().GetString("format"); f != "" {
		format = f
	}

	layout := outputLayout{
		Width:     cfg.OutputWidth,
		Marquee:   cfg.MarqueeEnabled,
		Speed:     cfg.MarqueeSpeed,
		Separator: cfg.MarqueeSeparator,
	}
	if cmd.Flags().Changed("width") {
		layout.Width, _ = cmd.Flags().GetInt("width")
	}
	if cmd.Flags().Changed("marquee") {
		layout.Marquee, _ = cmd.Flags().GetBool("marquee")
	}

	dir, err := resolveDataDir()
	if err != nil {
		return err
	}

	snap, err := player.ReadSnapshot(filepath.Join(dir, player.StateFile))
	if err != nil {
		// The watcher has not written anything yet
		if errors.Is(err, fs.ErrNotExist) {
			os.Exit(1)
		}
		return fmt.Errorf("failed to read player state: %w", err)
	}

	now := time.Now()
	snap = snap.At(now)
	if !isPlaying(snap) {
		os.Exit(1)
	}

	output, err := formatSnapshot(snap, format)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), layout.fit(output, now))
	return nil
}

// isPlaying reports whether snap shows a track still in progress. A snapshot
// left behind by a stopped watcher runs out at the end of its track.
func isPlaying(snap player.Snapshot) bool {
	if !snap.HasTrack() || !snap.Playing {
		return false
	}
	return snap.Duration == 0 || snap.Remaining() > 0
}

// formatSnapshot applies the template to the snapshot
func formatSnapshot(snap player.Snapshot, templateStr string) (string, error) {
	tmpl, err := template.New("output").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, snap); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return buf.String(), nil
}

const ellipsis = "..."

// outputLayout fixes the display width of the now line, which keeps status
// bars from jumping around as tracks change.
type outputLayout struct {
	Width     int    // display columns, 0 leaves the text alone
	Marquee   bool   // scroll text that does not fit instead of truncating it
	Speed     int    // marquee columns per second
	Separator string // marquee gap between the end and the start of the text
}

// fit lays text out for the status line at t. Scrolling is derived from the
// clock, so a status bar polling the command sees the text move without
// spotwatch keeping any state.
func (l outputLayout) fit(text string, t time.Time) string {
	if l.Width <= 0 {
		return text
	}
	if l.Marquee && runewidth.StringWidth(text) > l.Width {
		return scrollWindow(text, l.Separator, l.Width, l.Speed, t)
	}
	return padToWidth(text, l.Width)
}

// padToWidth pads text with spaces to exactly width display columns, or cuts
// it short with an ellipsis. A width of zero or less returns text unchanged.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}
	if runewidth.StringWidth(text) > width {
		if width < runewidth.StringWidth(ellipsis) {
			return runewidth.Truncate(ellipsis, width, "")
		}
		text = runewidth.Truncate(text, width, ellipsis)
	}
	return runewidth.FillRight(text, width)
}

// scrollWindow returns width columns of text looped through sep, starting
// speed columns further along for every second of t.
func scrollWindow(text, sep string, width, speed int, t time.Time) string {
	loop := []rune(text + sep)
	if speed < 0 {
		speed = 0
	}
	offset := int((t.Unix() * int64(speed)) % int64(len(loop)))

	rotated := make([]rune, 0, len(loop)+len(text))
	rotated = append(rotated, loop[offset:]...)
	rotated = append(rotated, loop[:offset]...)
	// A full copy of text behind the rotation always covers the window.
	rotated = append(rotated, []rune(text)...)

	return runewidth.FillRight(runewidth.Truncate(string(rotated), width, ""), width)
}
