// Package host describes the capabilities the watcher consumes from the chat
// client it runs inside: a lazily available Spotify module that knows the
// linked accounts and the active socket, and a dispatch bus that announces
// account, device and player changes. Runtime is an in-process host used by
// the CLI.
package host

import (
	"context"
	"errors"

	"github.com/jfmyers9/spotwatch/internal/realtime"
	"github.com/jfmyers9/spotwatch/internal/spotify"
)

// Dispatch action names.
const (
	ActionProfileUpdate   = "SPOTIFY_PROFILE_UPDATE"
	ActionSetDevices      = "SPOTIFY_SET_DEVICES"
	ActionAccessToken     = "SPOTIFY_ACCOUNT_ACCESS_TOKEN"
	ActionSetActiveDevice = "SPOTIFY_SET_ACTIVE_DEVICE"
	ActionPlayerState     = "SPOTIFY_PLAYER_STATE"

	// ActionConnectionOpen is dispatched once the host finished its startup
	// and its sockets can be enumerated.
	ActionConnectionOpen = "CONNECTION_OPEN"
)

// UpdateActions are the actions that signal an account, device or token
// change for an account.
var UpdateActions = []string{
	ActionProfileUpdate,
	ActionSetDevices,
	ActionAccessToken,
	ActionSetActiveDevice,
	ActionPlayerState,
}

// ErrNotReady is returned while the host module or dispatch bus cannot be
// located yet. Callers retry later.
var ErrNotReady = errors.New("host not ready")

// Account is a linked Spotify account. The host owns it; tokens rotate
// externally, so holders must not cache it.
type Account struct {
	AccountID   string
	AccessToken string
	Conn        realtime.Conn // nil while the account has no live socket
}

// SocketHandle pairs a realtime connection with the account it belongs to.
type SocketHandle struct {
	AccountID string
	Conn      realtime.Conn
}

// SocketAndDevice is the host's notion of the active socket and device.
type SocketAndDevice struct {
	Socket SocketHandle
	Device *spotify.Device
}

// Module is the host's Spotify module.
type Module interface {
	// ActiveSocketAndDevice returns the socket the host considers active.
	ActiveSocketAndDevice() (SocketAndDevice, bool)
	// Accounts returns a snapshot of the linked accounts keyed by id.
	Accounts() map[string]Account
}

// ModuleSource locates the host module. Module blocks until the module is
// available or ctx is done, and returns ErrNotReady when it cannot be found.
type ModuleSource interface {
	Module(ctx context.Context) (Module, error)
}

// Action is a dispatched host event.
type Action struct {
	Type      string
	AccountID string
	Device    *spotify.Device
}

// DispatchHandler handles a dispatched action.
type DispatchHandler func(Action)

// SubscriptionID identifies a dispatch subscription.
type SubscriptionID uint64

// Dispatcher is the host's dispatch bus.
type Dispatcher interface {
	Subscribe(action string, h DispatchHandler) SubscriptionID
	Unsubscribe(action string, id SubscriptionID)
}

// Host bundles the capabilities the watcher needs.
type Host interface {
	ModuleSource
	// Dispatcher returns the dispatch bus, or ErrNotReady.
	Dispatcher() (Dispatcher, error)
}
