package player

import (
	"context"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotwatch/internal/emitter"
	"github.com/jfmyers9/spotwatch/internal/spotify"
	"github.com/jfmyers9/spotwatch/internal/watcher"
)

const (
	recentPlays = 256

	// A track seen again within replayGap of being recorded is the same play.
	replayGap = 30 * time.Second

	// Progress jumping back below replayRestart on the same track is a replay.
	replayRestart = 5 * time.Second

	recordTimeout = 5 * time.Second
)

// Play is a track start observed on the feed.
type Play struct {
	AccountID string
	TrackID   string
	Name      string
	Artists   string
	Album     string
	Duration  time.Duration
	StartedAt time.Time
}

// Recorder stores observed plays.
type Recorder interface {
	Record(ctx context.Context, p Play) error
}

// Source is a stream of watcher events.
type Source interface {
	On(name string, h emitter.Handler[watcher.Event]) emitter.ListenerID
	Off(name string, id emitter.ListenerID) bool
}

// Option configures a Projection.
type Option func(*Projection)

// WithStatePath persists every published snapshot to path and restores the
// last one on construction.
func WithStatePath(path string) Option {
	return func(p *Projection) {
		p.path = path
	}
}

// WithRecorder reports every new play to r.
func WithRecorder(r Recorder) Option {
	return func(p *Projection) {
		p.recorder = r
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Projection) {
		p.now = now
	}
}

// publishedKey identifies what a viewer can see of a snapshot. Snapshots with
// the same key are not published twice.
type publishedKey struct {
	accountID, trackID string
	playing            bool
	repeat             string
	shuffle            bool
	device             string
	devices            int
	second             int64
}

func keyOf(s Snapshot) publishedKey {
	return publishedKey{
		accountID: s.AccountID,
		trackID:   s.TrackID,
		playing:   s.Playing,
		repeat:    s.Repeat,
		shuffle:   s.Shuffle,
		device:    s.Device,
		devices:   len(s.Devices),
		second:    int64(s.Elapsed / time.Second),
	}
}

// Projection folds watcher events into Snapshots.
type Projection struct {
	path     string
	recorder Recorder
	now      func() time.Time
	logger   zerolog.Logger

	mu           sync.Mutex
	accountID    string
	state        *spotify.PlayerState
	sampledAt    time.Time
	devices      []spotify.Device
	current      Snapshot
	hasSnapshot  bool
	last         publishedKey
	playKey      string
	playProgress time.Duration
	recorded     *lru.Cache[string, time.Time]

	updates chan Snapshot
}

// New creates a Projection. With WithStatePath the last persisted snapshot is
// restored; a restore error is returned alongside a usable Projection.
func New(logger zerolog.Logger, opts ...Option) (*Projection, error) {
	recorded, err := lru.New[string, time.Time](recentPlays)
	if err != nil {
		return nil, err
	}

	p := &Projection{
		now:      time.Now,
		logger:   logger.With().Str("component", "player").Logger(),
		recorded: recorded,
		updates:  make(chan Snapshot, 1),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.path != "" {
		s, err := ReadSnapshot(p.path)
		if err != nil {
			if os.IsNotExist(err) {
				return p, nil
			}
			return p, err
		}
		p.current = s
		p.hasSnapshot = true
		p.last = keyOf(s)
		p.accountID = s.AccountID
		p.devices = s.Devices
	}
	return p, nil
}

// Attach subscribes p to src and returns a function undoing it.
func (p *Projection) Attach(src Source) func() {
	updateID := src.On(watcher.EventUpdate, p.HandleUpdate)
	messageID := src.On(watcher.EventMessage, p.HandleMessage)
	return func() {
		src.Off(watcher.EventUpdate, updateID)
		src.Off(watcher.EventMessage, messageID)
	}
}

// Updates delivers published snapshots. Only the latest unread snapshot is
// kept.
func (p *Projection) Updates() <-chan Snapshot {
	return p.updates
}

// Current returns the latest snapshot advanced to now.
func (p *Projection) Current() (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.At(p.now()), p.hasSnapshot
}

// HandleUpdate records the bound account.
func (p *Projection) HandleUpdate(ev watcher.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accountID = ev.AccountID
}

// HandleMessage folds a player or device message into the projection.
func (p *Projection) HandleMessage(ev watcher.Event) {
	now := p.now()

	p.mu.Lock()
	if ev.AccountID != "" {
		p.accountID = ev.AccountID
	}

	var play *Play
	switch ev.MessageType {
	case spotify.EventPlayerStateChanged:
		if ev.Player == nil {
			p.mu.Unlock()
			return
		}
		play = p.detectPlay(ev.Player, now)
		p.state = ev.Player
		p.sampledAt = now
	case spotify.EventDeviceStateChanged:
		p.devices = append([]spotify.Device(nil), ev.Devices...)
	default:
		p.mu.Unlock()
		return
	}

	snap := snapshotOf(p.accountID, p.state, p.devices, p.sampledAt).At(now)
	p.current = snap
	p.hasSnapshot = true

	key := keyOf(snap)
	changed := key != p.last
	if changed {
		p.last = key
		p.publish(snap)
	}
	p.mu.Unlock()

	if changed {
		p.persist(snap)
	}
	if play != nil {
		p.record(*play)
	}
}

// detectPlay reports the play that state starts, if any. Must be called with
// p.mu held.
func (p *Projection) detectPlay(state *spotify.PlayerState, now time.Time) *Play {
	if !state.HasTrack() {
		return nil
	}

	key := p.accountID + "|" + state.Track.ID
	progress := state.Progress()
	restarted := key == p.playKey && progress < replayRestart && progress < p.playProgress
	if key == p.playKey {
		p.playProgress = progress
	}
	if key == p.playKey && !restarted {
		return nil
	}
	if !state.IsPlaying {
		return nil
	}

	p.playKey = key
	p.playProgress = progress
	if last, ok := p.recorded.Get(key); ok && now.Sub(last) < replayGap {
		return nil
	}
	p.recorded.Add(key, now)

	return &Play{
		AccountID: p.accountID,
		TrackID:   state.Track.ID,
		Name:      state.Track.Name,
		Artists:   state.Track.ArtistNames(),
		Album:     state.Track.Album,
		Duration:  state.Duration(),
		StartedAt: now.Add(-progress),
	}
}

// publish hands s to the updates channel, replacing an unread snapshot.
// Must be called with p.mu held.
func (p *Projection) publish(s Snapshot) {
	select {
	case p.updates <- s:
		return
	default:
	}
	select {
	case <-p.updates:
	default:
	}
	select {
	case p.updates <- s:
	default:
	}
}

func (p *Projection) persist(s Snapshot) {
	if p.path == "" {
		return
	}
	if err := WriteSnapshot(p.path, s); err != nil {
		p.logger.Warn().Err(err).Str("path", p.path).Msg("Failed to persist snapshot")
	}
}

func (p *Projection) record(play Play) {
	p.logger.Info().
		Str("track", play.Name).
		Str("artists", play.Artists).
		Msg("Now playing")

	if p.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := p.recorder.Record(ctx, play); err != nil {
		p.logger.Error().Err(err).Str("track", play.Name).Msg("Failed to record play")
	}
}
