package watcher

import (
	"github.com/jfmyers9/spotwatch/internal/realtime"
	"github.com/jfmyers9/spotwatch/internal/spotify"
)

// Event names emitted by the Watcher.
const (
	EventUpdate       = "update"
	EventMessage      = "message"
	EventWebsocket    = "websocket"
	EventError        = "error"
	EventPong         = "pong"
	EventRegistered   = "registered"
	EventUnregistered = "unregistered"
)

// ErrorTagWebsocket tags an error event raised when no socket could be
// resolved for the bound account.
const ErrorTagWebsocket = "websocket"

// Event is the payload of every Watcher event. Only the fields relevant to
// the event name are set:
//
//	update       AccountID (incoming), PreviousAccountID (bound)
//	message      MessageType and Player or Devices
//	websocket    AccountID, Conn
//	error        Tag, AccountID
//	pong         AccountID
type Event struct {
	AccountID         string
	PreviousAccountID string
	MessageType       spotify.EventType
	Player            *spotify.PlayerState
	Devices           []spotify.Device
	Conn              realtime.Conn
	Tag               string
}
