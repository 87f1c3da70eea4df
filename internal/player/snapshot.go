// Package player projects the watcher's player and device state into the
// display fields a panel shows: elapsed and remaining time, repeat and
// shuffle labels, the device in use and the devices available.
package player

import (
	"fmt"
	"time"

	"github.com/jfmyers9/spotwatch/internal/spotify"
)

// Snapshot is the projected player state at SampledAt.
type Snapshot struct {
	AccountID string           `json:"account_id,omitempty"`
	TrackID   string           `json:"track_id,omitempty"`
	Name      string           `json:"name,omitempty"`
	Artists   string           `json:"artists,omitempty"`
	Album     string           `json:"album,omitempty"`
	AlbumURL  string           `json:"album_url,omitempty"`
	URL       string           `json:"url,omitempty"`
	Playing   bool             `json:"playing"`
	Elapsed   time.Duration    `json:"elapsed"`
	Duration  time.Duration    `json:"duration"`
	Repeat    string           `json:"repeat"`
	Shuffle   bool             `json:"shuffle"`
	Device    string           `json:"device,omitempty"`
	Devices   []spotify.Device `json:"devices,omitempty"`
	SampledAt time.Time        `json:"sampled_at"`
}

// HasTrack reports whether a track is loaded.
func (s Snapshot) HasTrack() bool {
	return s.TrackID != "" || s.Name != ""
}

// At returns the snapshot as it looks at t. While playing, elapsed time
// advances from SampledAt and stops at the track's duration.
func (s Snapshot) At(t time.Time) Snapshot {
	out := s
	if s.Playing && !s.SampledAt.IsZero() && t.After(s.SampledAt) {
		out.Elapsed += t.Sub(s.SampledAt)
	}
	out.Elapsed = clamp(out.Elapsed, s.Duration)
	out.SampledAt = t
	return out
}

// Remaining returns the time left in the track.
func (s Snapshot) Remaining() time.Duration {
	if s.Duration <= 0 {
		return 0
	}
	return s.Duration - clamp(s.Elapsed, s.Duration)
}

// Percent returns elapsed time as a percentage of the duration.
func (s Snapshot) Percent() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(clamp(s.Elapsed, s.Duration)) / float64(s.Duration) * 100
}

// ElapsedString formats the elapsed time as m:ss.
func (s Snapshot) ElapsedString() string {
	return FormatDuration(s.Elapsed)
}

// DurationString formats the duration as m:ss.
func (s Snapshot) DurationString() string {
	return FormatDuration(s.Duration)
}

// ShuffleLabel returns "on" or "off".
func (s Snapshot) ShuffleLabel() string {
	if s.Shuffle {
		return "on"
	}
	return "off"
}

// FormatDuration formats d as m:ss, or h:mm:ss for an hour or more.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

func clamp(elapsed, duration time.Duration) time.Duration {
	if elapsed < 0 {
		return 0
	}
	if duration > 0 && elapsed > duration {
		return duration
	}
	return elapsed
}

// snapshotOf projects state sampled at t.
func snapshotOf(accountID string, state *spotify.PlayerState, devices []spotify.Device, t time.Time) Snapshot {
	s := Snapshot{
		AccountID: accountID,
		Repeat:    spotify.RepeatOff.String(),
		SampledAt: t,
	}
	if len(devices) > 0 {
		s.Devices = append([]spotify.Device(nil), devices...)
		if active := spotify.ActiveDevice(devices); active != nil {
			s.Device = active.Name
		}
	}
	if state == nil {
		return s
	}

	s.Playing = state.IsPlaying
	s.Elapsed = state.Progress()
	s.Duration = state.Duration()
	s.Repeat = state.RepeatMode.String()
	s.Shuffle = state.Shuffle
	s.AlbumURL = state.AlbumURL
	if state.Device != nil {
		s.Device = state.Device.Name
	}
	if state.Track != nil {
		s.TrackID = state.Track.ID
		s.Name = state.Track.Name
		s.Artists = state.Track.ArtistNames()
		s.Album = state.Track.Album
		s.URL = state.Track.URL
	}
	s.Elapsed = clamp(s.Elapsed, s.Duration)
	return s
}
