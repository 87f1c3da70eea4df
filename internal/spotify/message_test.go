package spotify

import (
	"errors"
	"testing"
	"time"
)

const playerStateFrame = `{
	"type": "message",
	"payloads": [{
		"events": [{
			"type": "PLAYER_STATE_CHANGED",
			"event": {
				"state": {
					"timestamp": 1700000000000,
					"progress_ms": 1234,
					"is_playing": true,
					"shuffle_state": true,
					"repeat_state": "track",
					"device": {"id": "dev1", "name": "Desk", "type": "Computer", "is_active": true, "volume_percent": 40},
					"item": {
						"id": "trk1",
						"name": "Song",
						"duration_ms": 9999,
						"external_urls": {"spotify": "https://open.spotify.com/track/trk1"},
						"artists": [{"id": "a1", "name": "First"}, {"id": "a2", "name": "Second"}],
						"album": {
							"id": "alb1",
							"name": "Album",
							"images": [
								{"url": "https://i.scdn.co/small", "width": 64, "height": 64},
								{"url": "https://i.scdn.co/large", "width": 640, "height": 640}
							]
						}
					}
				}
			}
		}]
	}]
}`

const deviceFrame = `{
	"type": "message",
	"payloads": [{
		"events": [{
			"type": "DEVICE_STATE_CHANGED",
			"event": {"devices": [
				{"id": "d1", "name": "Phone", "is_active": false},
				{"id": "d2", "name": "Desk", "is_active": true}
			]}
		}]
	}]
}`

func TestDecodePlayerState(t *testing.T) {
	msg, err := DecodeMessage([]byte(playerStateFrame))
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	ev, err := msg.FirstEvent()
	if err != nil {
		t.Fatalf("FirstEvent: %v", err)
	}
	if ev.Type != EventPlayerStateChanged {
		t.Fatalf("Type = %q, want %q", ev.Type, EventPlayerStateChanged)
	}

	state, err := ev.PlayerState()
	if err != nil {
		t.Fatalf("PlayerState: %v", err)
	}

	if !state.IsPlaying {
		t.Error("IsPlaying = false, want true")
	}
	if state.ProgressMs != 1234 {
		t.Errorf("ProgressMs = %d, want 1234", state.ProgressMs)
	}
	if state.DurationMs != 9999 {
		t.Errorf("DurationMs = %d, want 9999", state.DurationMs)
	}
	if state.RepeatMode != RepeatTrack {
		t.Errorf("RepeatMode = %v, want track", state.RepeatMode)
	}
	if !state.Shuffle {
		t.Error("Shuffle = false, want true")
	}
	if state.AlbumURL != "https://i.scdn.co/large" {
		t.Errorf("AlbumURL = %q", state.AlbumURL)
	}
	if !state.Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("Timestamp = %v", state.Timestamp)
	}
	if state.Device == nil || state.Device.Name != "Desk" || !state.Device.IsActive {
		t.Errorf("Device = %+v", state.Device)
	}
	if state.Track == nil {
		t.Fatal("Track is nil")
	}
	if got := state.Track.ArtistNames(); got != "First, Second" {
		t.Errorf("ArtistNames = %q", got)
	}
	if state.Track.Album != "Album" || state.Track.URL != "https://open.spotify.com/track/trk1" {
		t.Errorf("Track = %+v", state.Track)
	}
	if state.Duration() != 9999*time.Millisecond {
		t.Errorf("Duration = %v", state.Duration())
	}
}

func TestDecodeDevices(t *testing.T) {
	msg, err := DecodeMessage([]byte(deviceFrame))
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	ev, err := msg.FirstEvent()
	if err != nil {
		t.Fatalf("FirstEvent: %v", err)
	}
	devices, err := ev.Devices()
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("len(devices) = %d, want 2", len(devices))
	}
	active := ActiveDevice(devices)
	if active == nil || active.ID != "d2" {
		t.Errorf("ActiveDevice = %+v, want d2", active)
	}
}

func TestDecodeEmptyDeviceList(t *testing.T) {
	frame := `{"type":"message","payloads":[{"events":[{"type":"DEVICE_STATE_CHANGED","event":{"devices":[]}}]}]}`
	msg, err := DecodeMessage([]byte(frame))
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	ev, err := msg.FirstEvent()
	if err != nil {
		t.Fatalf("FirstEvent: %v", err)
	}
	devices, err := ev.Devices()
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devices) != 0 || ActiveDevice(devices) != nil {
		t.Errorf("devices = %+v, want empty", devices)
	}
}

func TestMalformedFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `not json`},
		{"missing payloads", `{"type":"garbage"}`},
		{"empty events", `{"type":"message","payloads":[{"events":[]}]}`},
		{"string payload", `{"type":"message","payloads":["abc"]}`},
		{"null player event", `{"type":"message","payloads":[{"events":[{"type":"PLAYER_STATE_CHANGED","event":null}]}]}`},
		{"null device event", `{"type":"message","payloads":[{"events":[{"type":"DEVICE_STATE_CHANGED","event":null}]}]}`},
		{"null devices", `{"type":"message","payloads":[{"events":[{"type":"DEVICE_STATE_CHANGED","event":{"devices":null}}]}]}`},
		{"no devices key", `{"type":"message","payloads":[{"events":[{"type":"DEVICE_STATE_CHANGED","event":{}}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.frame))
			var ev Event
			if err == nil {
				ev, err = msg.FirstEvent()
			}
			if err == nil {
				switch ev.Type {
				case EventPlayerStateChanged:
					_, err = ev.PlayerState()
				case EventDeviceStateChanged:
					_, err = ev.Devices()
				}
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestPlayerStateMissingState(t *testing.T) {
	ev := Event{Type: EventPlayerStateChanged, Body: []byte(`{}`)}
	if _, err := ev.PlayerState(); !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestIsPong(t *testing.T) {
	tests := []struct {
		frame string
		want  bool
	}{
		{`{"type":"pong"}`, true},
		{`{"type":"ping"}`, false},
		{`{"type":"message","payloads":[]}`, false},
		{`pong`, false},
	}
	for _, tt := range tests {
		if got := IsPong([]byte(tt.frame)); got != tt.want {
			t.Errorf("IsPong(%s) = %v, want %v", tt.frame, got, tt.want)
		}
	}
}

func TestParseRepeatMode(t *testing.T) {
	tests := map[string]RepeatMode{
		"off":     RepeatOff,
		"context": RepeatContext,
		"track":   RepeatTrack,
		"TRACK":   RepeatTrack,
		"":        RepeatOff,
		"other":   RepeatOff,
	}
	for in, want := range tests {
		if got := ParseRepeatMode(in); got != want {
			t.Errorf("ParseRepeatMode(%q) = %v, want %v", in, got, want)
		}
	}
	if RepeatContext.String() != "context" {
		t.Errorf("RepeatContext.String() = %q", RepeatContext.String())
	}
}
