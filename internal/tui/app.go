package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/jfmyers9/spotwatch/internal/history"
	"github.com/jfmyers9/spotwatch/internal/player"
)

const maxRecentTracks = 5

// Config holds TUI configuration options
type Config struct {
	RefreshRate time.Duration // How often to refresh the display
}

// DefaultConfig returns the default TUI configuration
func DefaultConfig() Config {
	return Config{
		RefreshRate: 500 * time.Millisecond,
	}
}

// RecentTrack stores info about a recently played track
type RecentTrack struct {
	Name     string
	Artists  string
	PlayedAt time.Time
}

// App is the TUI application for displaying the mirrored player
type App struct {
	app        *tview.Application
	nowPlaying *tview.TextView
	progress   *tview.TextView
	player     *tview.TextView
	recent     *tview.TextView
	status     *tview.TextView

	config Config

	// Mutex protects shared state accessed by both the channel consumer
	// goroutine and the ticker goroutine in handleUpdates.
	mu sync.Mutex

	// Current state (guarded by mu)
	current    player.Snapshot
	hasCurrent bool
	lastTrack  string

	// Ring buffer for recent tracks
	recentBuf   [maxRecentTracks]RecentTrack
	recentCount int // total tracks added (recentCount % maxRecentTracks = next write index)

	// Last-rendered content for change detection
	lastNowPlaying string
	lastProgress   string
	lastPlayer     string
	lastRecent     string

	// Cached progress bar width to stabilize change detection.
	lastBarWidth int

	cancelFunc context.CancelFunc
}

// New creates a new TUI application with default config
func New() *App {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new TUI application with the given config
func NewWithConfig(cfg Config) *App {
	a := &App{
		app:    tview.NewApplication(),
		config: cfg,
	}
	a.setupUI()
	return a
}

// setupUI creates the UI layout
func (a *App) setupUI() {
	a.nowPlaying = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.nowPlaying.SetBorder(true).
		SetTitle(" Now Playing ").
		SetTitleAlign(tview.AlignLeft)

	a.progress = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.progress.SetBorder(true)

	a.player = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.player.SetBorder(true).
		SetTitle(" Player ").
		SetTitleAlign(tview.AlignLeft)

	a.recent = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.recent.SetBorder(true).
		SetTitle(" Recent ").
		SetTitleAlign(tview.AlignLeft)

	a.status = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]q:quit[-]")

	bottomRow := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.player, 0, 1, false).
		AddItem(a.recent, 0, 1, false)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.nowPlaying, 0, 3, false).
		AddItem(a.progress, 3, 1, false).
		AddItem(bottomRow, 9, 1, false).
		AddItem(a.status, 1, 1, false)

	a.app.SetInputCapture(a.handleKeyEvent)
	a.app.SetRoot(flex, true)
}

// handleKeyEvent processes keyboard input
func (a *App) handleKeyEvent(event *tcell.EventKey) *tcell.EventKey {
	switch event.Rune() {
	case 'q', 'Q':
		a.app.Stop()
		return nil
	}
	return event
}

// Seed fills the recent panel from stored history, newest first.
func (a *App) Seed(entries []history.Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(entries)
	if n > maxRecentTracks {
		n = maxRecentTracks
	}
	// Oldest first so the newest ends up on top
	for i := n - 1; i >= 0; i-- {
		a.addToRecentTracks(RecentTrack{
			Name:     entries[i].Name,
			Artists:  entries[i].Artists,
			PlayedAt: entries[i].StartedAt,
		})
	}
}

// Run starts the TUI. updates delivers published snapshots and current
// returns the latest snapshot advanced to now.
func (a *App) Run(ctx context.Context, updates <-chan player.Snapshot, current func() (player.Snapshot, bool)) error {
	ctx, a.cancelFunc = context.WithCancel(ctx)

	go a.handleUpdates(ctx, updates, current)

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// handleUpdates consumes snapshots and redraws on a single ticker.
func (a *App) handleUpdates(ctx context.Context, updates <-chan player.Snapshot, current func() (player.Snapshot, bool)) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-updates:
				a.mu.Lock()
				a.trackChanged(snap)
				a.mu.Unlock()
			}
		}
	}()

	refreshRate := a.config.RefreshRate
	if refreshRate <= 0 {
		refreshRate = 500 * time.Millisecond
	}
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.app.Stop()
			return
		case <-ticker.C:
			if current != nil {
				if snap, ok := current(); ok {
					a.mu.Lock()
					a.current = snap
					a.hasCurrent = true
					a.mu.Unlock()
				}
			}
			a.refresh()
		}
	}
}

// trackChanged adds snap's track to the recent list when it is new.
// Must be called with a.mu held.
func (a *App) trackChanged(snap player.Snapshot) {
	a.current = snap
	a.hasCurrent = true

	if !snap.HasTrack() || !snap.Playing {
		return
	}
	key := snap.TrackID + "|" + snap.Name
	if key == a.lastTrack {
		return
	}
	a.lastTrack = key
	a.addToRecentTracks(RecentTrack{
		Name:     snap.Name,
		Artists:  snap.Artists,
		PlayedAt: snap.SampledAt.Add(-snap.Elapsed),
	})
}

// addToRecentTracks adds a track to the ring buffer of recent tracks.
// Must be called with a.mu held.
func (a *App) addToRecentTracks(track RecentTrack) {
	idx := a.recentCount % maxRecentTracks
	a.recentBuf[idx] = track
	a.recentCount++
}

// getRecentTracks returns recent tracks in most-recent-first order.
// Must be called with a.mu held.
func (a *App) getRecentTracks() []RecentTrack {
	n := a.recentCount
	if n > maxRecentTracks {
		n = maxRecentTracks
	}
	result := make([]RecentTrack, n)
	for i := 0; i < n; i++ {
		idx := (a.recentCount - 1 - i) % maxRecentTracks
		result[i] = a.recentBuf[idx]
	}
	return result
}

// refresh updates all UI components
func (a *App) refresh() {
	a.app.QueueUpdateDraw(func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		a.updateNowPlaying()
		a.updateProgress()
		a.updatePlayer()
		a.updateRecentTracks()
	})
}

func (a *App) updateNowPlaying() {
	text := nowPlayingText(a.current, a.hasCurrent)
	if text != a.lastNowPlaying {
		a.lastNowPlaying = text
		a.nowPlaying.SetText(text)
	}
}

func (a *App) updateProgress() {
	var text string

	if a.hasCurrent && a.current.HasTrack() {
		_, _, width, _ := a.progress.GetInnerRect()
		barWidth := width - 14 // Account for time display
		// Only update cached width when GetInnerRect returns a positive value,
		// avoiding flicker from transient zero-width during layout.
		if barWidth > 0 {
			a.lastBarWidth = barWidth
		}
		if a.lastBarWidth < 10 {
			a.lastBarWidth = 10
		}

		text = fmt.Sprintf("%s %s %s",
			a.current.ElapsedString(),
			buildProgressBar(a.current.Elapsed, a.current.Duration, a.lastBarWidth),
			a.current.DurationString())
	}

	if text != a.lastProgress {
		a.lastProgress = text
		a.progress.SetText(text)
	}
}

func (a *App) updatePlayer() {
	text := playerText(a.current, a.hasCurrent)
	if text != a.lastPlayer {
		a.lastPlayer = text
		a.player.SetText(text)
	}
}

func (a *App) updateRecentTracks() {
	text := recentText(a.getRecentTracks())
	if text != a.lastRecent {
		a.lastRecent = text
		a.recent.SetText(text)
	}
}

// Stop stops the TUI application
func (a *App) Stop() {
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.app.Stop()
}

func nowPlayingText(s player.Snapshot, ok bool) string {
	if !ok || !s.HasTrack() {
		return "\n\n[gray]No track playing[-]"
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("[white::b]%s[-:-:-]\n", tview.Escape(s.Name)))
	sb.WriteString(fmt.Sprintf("[yellow]%s[-]\n", tview.Escape(s.Artists)))
	sb.WriteString(fmt.Sprintf("[gray]%s[-]", tview.Escape(s.Album)))

	stateIcon := "[green]▶[-]" // Play triangle
	if !s.Playing {
		stateIcon = "[yellow]⏸[-]" // Pause icon
	}
	sb.WriteString(fmt.Sprintf("\n\n%s", stateIcon))
	return sb.String()
}

func playerText(s player.Snapshot, ok bool) string {
	if !ok {
		return "[gray]Waiting for player state...[-]"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Repeat:  %s\n", s.Repeat))
	sb.WriteString(fmt.Sprintf("Shuffle: %s\n", s.ShuffleLabel()))
	device := s.Device
	if device == "" {
		device = "-"
	}
	sb.WriteString(fmt.Sprintf("Device:  %s\n", tview.Escape(device)))

	for _, d := range s.Devices {
		marker := "  "
		if d.IsActive {
			marker = "[green]●[-] "
		}
		sb.WriteString(fmt.Sprintf("%s%s\n", marker, tview.Escape(d.Name)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func recentText(tracks []RecentTrack) string {
	if len(tracks) == 0 {
		return "[gray]No recent tracks[-]"
	}

	var sb strings.Builder
	for i, track := range tracks {
		if i > 0 {
			sb.WriteString("\n")
		}
		name := track.Name
		if len([]rune(name)) > 20 {
			name = string([]rune(name)[:17]) + "..."
		}
		sb.WriteString(fmt.Sprintf("[gray]%s[-] [white]%s[-]", track.PlayedAt.Format("15:04"), tview.Escape(name)))
	}
	return sb.String()
}

// buildProgressBar creates a text-based progress bar
func buildProgressBar(position, duration time.Duration, width int) string {
	if duration == 0 || width <= 0 {
		return strings.Repeat("-", width)
	}

	progress := float64(position) / float64(duration)
	if progress > 1 {
		progress = 1
	}
	if progress < 0 {
		progress = 0
	}

	filled := int(progress * float64(width))
	empty := width - filled

	return "[green]" + strings.Repeat("█", filled) + "[-]" +
		"[gray]" + strings.Repeat("░", empty) + "[-]"
}
