// Package spotify holds the normalized player and device model mirrored from
// an account's realtime feed, and the decoder for dealer frames.
package spotify

import (
	"strings"
	"time"
)

// RepeatMode represents the player's repeat setting
type RepeatMode int

const (
	RepeatOff     RepeatMode = iota // No repeat
	RepeatContext                   // Repeat the playlist/album
	RepeatTrack                     // Repeat the current track
)

// String returns the wire representation of the RepeatMode
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatContext:
		return "context"
	case RepeatTrack:
		return "track"
	default:
		return "unknown"
	}
}

// ParseRepeatMode maps a repeat_state value to a RepeatMode. Unknown values
// map to RepeatOff.
func ParseRepeatMode(s string) RepeatMode {
	switch strings.ToLower(s) {
	case "context":
		return RepeatContext
	case "track":
		return RepeatTrack
	default:
		return RepeatOff
	}
}

// Artist is a track artist
type Artist struct {
	ID   string
	Name string
	URL  string
}

// Track represents the item currently loaded in the player
type Track struct {
	ID       string
	Name     string
	Artists  []Artist
	Album    string
	AlbumID  string
	URL      string
	Duration time.Duration
}

// ArtistNames joins the artist names with ", ".
func (t *Track) ArtistNames() string {
	if t == nil {
		return ""
	}
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// Device is a Spotify Connect device
type Device struct {
	ID       string
	Name     string
	Type     string
	IsActive bool
	Volume   int
}

// PlayerState is the normalized player state carried by PLAYER_STATE_CHANGED.
type PlayerState struct {
	IsPlaying  bool
	ProgressMs int
	DurationMs int
	RepeatMode RepeatMode
	Shuffle    bool
	AlbumURL   string    // Album cover image, empty when unknown
	Track      *Track    // nil when nothing is loaded
	Device     *Device   // Device the state was reported for, if any
	Timestamp  time.Time // Server time the progress was sampled at
}

// Progress returns ProgressMs as a duration.
func (s *PlayerState) Progress() time.Duration {
	return time.Duration(s.ProgressMs) * time.Millisecond
}

// Duration returns DurationMs as a duration.
func (s *PlayerState) Duration() time.Duration {
	return time.Duration(s.DurationMs) * time.Millisecond
}

// HasTrack reports whether a track is loaded.
func (s *PlayerState) HasTrack() bool {
	return s != nil && s.Track != nil
}

// ActiveDevice returns the first active device in devices, or nil. An empty
// list means there is no active device.
func ActiveDevice(devices []Device) *Device {
	for i := range devices {
		if devices[i].IsActive {
			return &devices[i]
		}
	}
	return nil
}
