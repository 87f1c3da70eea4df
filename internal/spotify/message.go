package spotify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	spotifyapi "github.com/zmb3/spotify/v2"
)

// EventType is the type tag of an event carried in a dealer message payload.
type EventType string

const (
	EventPlayerStateChanged EventType = "PLAYER_STATE_CHANGED"
	EventDeviceStateChanged EventType = "DEVICE_STATE_CHANGED"
)

// MessageTypePong is the type tag of a dealer liveness reply.
const MessageTypePong = "pong"

// ErrMalformed is returned for frames that cannot be decoded into the
// expected dealer message shape.
var ErrMalformed = errors.New("malformed dealer message")

// Message is a decoded dealer frame.
type Message struct {
	Type     string            `json:"type"`
	Payloads []json.RawMessage `json:"payloads"`
}

// Event is a single state event inside a message payload.
type Event struct {
	Type EventType       `json:"type"`
	Body json.RawMessage `json:"event"`
}

type eventPayload struct {
	Events []Event `json:"events"`
}

type stateBody struct {
	State *spotifyapi.PlayerState `json:"state"`
}

type devicesBody struct {
	Devices *[]spotifyapi.PlayerDevice `json:"devices"`
}

// DecodeMessage decodes a raw dealer frame.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &msg, nil
}

// IsPong reports whether data is a liveness reply. Undecodable frames are
// not pongs.
func IsPong(data []byte) bool {
	if !bytes.Contains(data, []byte(MessageTypePong)) {
		return false
	}
	msg, err := DecodeMessage(data)
	return err == nil && msg.IsPong()
}

// IsPong reports whether the message is a liveness reply.
func (m *Message) IsPong() bool {
	return m.Type == MessageTypePong
}

// FirstEvent returns the single event of the first payload. Messages whose
// payloads are not event containers return ErrMalformed.
func (m *Message) FirstEvent() (Event, error) {
	if len(m.Payloads) == 0 {
		return Event{}, fmt.Errorf("%w: no payloads", ErrMalformed)
	}
	var p eventPayload
	if err := json.Unmarshal(m.Payloads[0], &p); err != nil {
		return Event{}, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	if len(p.Events) == 0 {
		return Event{}, fmt.Errorf("%w: no events", ErrMalformed)
	}
	return p.Events[0], nil
}

// PlayerState decodes a PLAYER_STATE_CHANGED event body.
func (e Event) PlayerState() (*PlayerState, error) {
	var body stateBody
	if err := json.Unmarshal(e.Body, &body); err != nil {
		return nil, fmt.Errorf("%w: player state: %v", ErrMalformed, err)
	}
	if body.State == nil {
		return nil, fmt.Errorf("%w: missing state", ErrMalformed)
	}
	return playerStateFrom(body.State), nil
}

// Devices decodes a DEVICE_STATE_CHANGED event body. An empty list is valid,
// a missing one is not.
func (e Event) Devices() ([]Device, error) {
	var body devicesBody
	if err := json.Unmarshal(e.Body, &body); err != nil {
		return nil, fmt.Errorf("%w: devices: %v", ErrMalformed, err)
	}
	if body.Devices == nil {
		return nil, fmt.Errorf("%w: missing devices", ErrMalformed)
	}
	devices := make([]Device, 0, len(*body.Devices))
	for _, d := range *body.Devices {
		devices = append(devices, deviceFrom(d))
	}
	return devices, nil
}

func playerStateFrom(ps *spotifyapi.PlayerState) *PlayerState {
	state := &PlayerState{
		IsPlaying:  ps.Playing,
		ProgressMs: nonNegative(int(ps.Progress)),
		RepeatMode: ParseRepeatMode(ps.RepeatState),
		Shuffle:    ps.ShuffleState,
	}
	if ps.Timestamp > 0 {
		state.Timestamp = time.UnixMilli(ps.Timestamp)
	}
	if ps.Device.ID != "" || ps.Device.Name != "" {
		d := deviceFrom(ps.Device)
		state.Device = &d
	}

	item := ps.Item
	if item == nil {
		return state
	}

	state.DurationMs = nonNegative(int(item.Duration))
	state.AlbumURL = largestImage(item.Album.Images)

	track := &Track{
		ID:       string(item.ID),
		Name:     item.Name,
		Album:    item.Album.Name,
		AlbumID:  string(item.Album.ID),
		URL:      item.ExternalURLs["spotify"],
		Duration: time.Duration(state.DurationMs) * time.Millisecond,
	}
	for _, a := range item.Artists {
		track.Artists = append(track.Artists, Artist{
			ID:   string(a.ID),
			Name: a.Name,
			URL:  a.ExternalURLs["spotify"],
		})
	}
	state.Track = track

	return state
}

func deviceFrom(d spotifyapi.PlayerDevice) Device {
	return Device{
		ID:       string(d.ID),
		Name:     d.Name,
		Type:     d.Type,
		IsActive: d.Active,
		Volume:   int(d.Volume),
	}
}

func largestImage(images []spotifyapi.Image) string {
	best := ""
	bestWidth := -1
	for _, img := range images {
		if int(img.Width) > bestWidth {
			best = img.URL
			bestWidth = int(img.Width)
		}
	}
	return best
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
