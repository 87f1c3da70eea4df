// Package watcher mirrors a Spotify session from the host client. It listens
// to the host's dispatch bus, owns the authoritative account id, keeps a
// single realtime socket bound for that account and re-emits the player and
// device state that arrives on it.
package watcher

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotwatch/internal/emitter"
	"github.com/jfmyers9/spotwatch/internal/host"
	"github.com/jfmyers9/spotwatch/internal/resolver"
	"github.com/jfmyers9/spotwatch/internal/spotify"
)

// State is the Watcher's lifecycle state.
type State int

const (
	StateUnregistered State = iota // Not subscribed to the host bus
	StateRegistered                // Subscribed, no socket bound yet
	StateBound                     // Account id set and socket attached
)

// String returns a human-readable representation of the State
func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateBound:
		return "bound"
	default:
		return "unknown"
	}
}

// socketResolver is the part of the resolver the Watcher uses.
type socketResolver interface {
	socketEnumerator
	ResolveSocket(ctx context.Context, accountID string) (host.SocketHandle, bool)
}

// Watcher reconciles host events and realtime messages into a stream of
// normalized events.
type Watcher struct {
	host      host.Host
	resolver  socketResolver
	heartbeat *Tracker
	events    *emitter.Emitter[Event]
	logger    zerolog.Logger

	mu         sync.Mutex
	session    session
	loaded     bool
	ctx        context.Context
	cancel     context.CancelFunc
	dispatcher host.Dispatcher
	fluxIDs    map[string]host.SubscriptionID
	pongID     emitter.ListenerID
}

// New creates a Watcher for h. The returned Watcher is unregistered until
// Load is called.
func New(h host.Host, r *resolver.Resolver, logger zerolog.Logger) *Watcher {
	return newWatcher(h, r, logger)
}

func newWatcher(h host.Host, r socketResolver, logger zerolog.Logger) *Watcher {
	w := &Watcher{
		host:     h,
		resolver: r,
		events:   emitter.New[Event](logger),
		logger:   logger.With().Str("component", "watcher").Logger(),
	}
	w.heartbeat = NewTracker(r, h, w.reportPong, logger)
	return w
}

// On subscribes to a Watcher event.
func (w *Watcher) On(name string, h emitter.Handler[Event]) emitter.ListenerID {
	return w.events.On(name, h)
}

// Once subscribes to the next occurrence of a Watcher event.
func (w *Watcher) Once(name string, h emitter.Handler[Event]) emitter.ListenerID {
	return w.events.Once(name, h)
}

// Off removes a subscription made with On or Once.
func (w *Watcher) Off(name string, id emitter.ListenerID) bool {
	return w.events.Off(name, id)
}

// Load subscribes to the host bus, installs heartbeat tracking and promotes
// the first account that answers a ping. Failures to reach the host are
// logged; call Load again once the host finished starting.
func (w *Watcher) Load(ctx context.Context) {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	loadCtx := w.ctx
	w.loaded = true
	w.mu.Unlock()

	w.RegisterFlux()
	w.heartbeat.Install(loadCtx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pongID == 0 {
		w.pongID = w.events.Once(EventPong, func(ev Event) {
			w.mu.Lock()
			w.pongID = 0
			w.mu.Unlock()
			w.handleUpdate(ev.AccountID)
		})
	}
	w.logger.Info().Msg("Watcher loaded")
}

// Unload releases every host subscription and socket listener. It is safe
// to call repeatedly and before Load.
func (w *Watcher) Unload() {
	w.RemoveFlux()
	w.heartbeat.Remove()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pongID != 0 {
		w.events.Off(EventPong, w.pongID)
		w.pongID = 0
	}
	w.session.detach()
	w.session.generation++
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.ctx = nil
	if w.loaded {
		w.logger.Info().Msg("Watcher unloaded")
	}
	w.loaded = false
}

// RegisterFlux subscribes the update handler to the host's update actions.
func (w *Watcher) RegisterFlux() {
	w.mu.Lock()
	if w.fluxIDs != nil {
		w.mu.Unlock()
		w.logger.Warn().Msg("Already registered")
		return
	}

	d, err := w.host.Dispatcher()
	if err != nil {
		w.mu.Unlock()
		w.logger.Error().Err(err).Msg("Dispatch bus not found, cannot register")
		return
	}

	w.dispatcher = d
	w.fluxIDs = make(map[string]host.SubscriptionID, len(host.UpdateActions))
	for _, action := range host.UpdateActions {
		w.fluxIDs[action] = d.Subscribe(action, w.onAction)
	}
	w.mu.Unlock()

	w.logger.Debug().Strs("actions", host.UpdateActions).Msg("Registered")
	w.events.Emit(EventRegistered, Event{})
}

// RemoveFlux unsubscribes everything RegisterFlux subscribed.
func (w *Watcher) RemoveFlux() {
	w.mu.Lock()
	if w.fluxIDs == nil {
		w.mu.Unlock()
		w.logger.Warn().Msg("Not registered")
		return
	}
	for action, id := range w.fluxIDs {
		w.dispatcher.Unsubscribe(action, id)
	}
	w.fluxIDs = nil
	w.dispatcher = nil
	w.mu.Unlock()

	w.logger.Debug().Msg("Unregistered")
	w.events.Emit(EventUnregistered, Event{})
}

func (w *Watcher) onAction(a host.Action) {
	if a.AccountID == "" {
		w.logger.Debug().Str("action", a.Type).Msg("Action without account id")
		return
	}
	w.handleUpdate(a.AccountID)
}

func (w *Watcher) reportPong(accountID string) {
	w.events.Emit(EventPong, Event{AccountID: accountID})
}

// handleUpdate reconciles an account update: adopt or verify the account
// id, announce the update and make sure a socket is bound for it.
func (w *Watcher) handleUpdate(accountID string) {
	w.mu.Lock()
	if !w.loaded {
		w.mu.Unlock()
		w.logger.Debug().Str("account_id", accountID).Msg("Update while unloaded")
		return
	}
	if err := w.session.adopt(accountID); err != nil {
		w.mu.Unlock()
		w.logger.Error().Err(err).Msg("Rejected update")
		return
	}
	bound := w.session.accountID
	ctx := w.ctx
	gen := w.session.generation
	w.mu.Unlock()

	w.events.Emit(EventUpdate, Event{AccountID: accountID, PreviousAccountID: bound})
	w.bindSocket(ctx, bound, gen)
}

// bindSocket keeps exactly one socket listener attached, for accountID. A
// binding to another account's socket is dropped before resolving; a binding
// to accountID survives unless the account's socket was replaced.
func (w *Watcher) bindSocket(ctx context.Context, accountID string, gen uint64) {
	w.mu.Lock()
	if w.session.socket != nil && !w.session.boundTo(accountID) {
		w.logger.Info().
			Str("from", w.session.socket.AccountID).
			Str("to", accountID).
			Msg("Rebinding socket")
		w.session.detach()
	}
	w.mu.Unlock()

	handle, ok := w.resolver.ResolveSocket(ctx, accountID)

	w.mu.Lock()
	if w.session.generation != gen || !w.loaded {
		w.mu.Unlock()
		w.logger.Debug().Str("account_id", accountID).Msg("Discarding socket resolved after unload")
		return
	}
	if cur := w.session.socket; cur != nil {
		replaced := ok && cur.AccountID == accountID &&
			handle.AccountID == accountID && handle.Conn != cur.Conn
		if !replaced {
			w.mu.Unlock()
			return
		}
		w.logger.Info().Str("account_id", accountID).Msg("Socket replaced")
		w.session.detach()
	}
	if !ok {
		w.mu.Unlock()
		w.logger.Warn().Str("account_id", accountID).Msg("No socket for account")
		w.events.Emit(EventError, Event{Tag: ErrorTagWebsocket, AccountID: accountID})
		return
	}

	seq := w.session.nextBinding()
	conn := handle.Conn
	id := conn.AddMessageListener(func(data []byte) {
		w.handleMessage(seq, data)
	})
	w.session.attach(handle, id)
	w.mu.Unlock()

	w.logger.Info().Str("account_id", handle.AccountID).Msg("Socket bound")
	w.events.Emit(EventWebsocket, Event{AccountID: handle.AccountID, Conn: conn})
}

// handleMessage classifies a realtime frame from the bound socket.
func (w *Watcher) handleMessage(seq uint64, data []byte) {
	msg, err := spotify.DecodeMessage(data)
	if err != nil {
		w.logger.Debug().Err(err).Msg("Dropping undecodable message")
		return
	}
	if msg.IsPong() {
		return
	}
	ev, err := msg.FirstEvent()
	if err != nil {
		w.logger.Debug().Err(err).Str("type", msg.Type).Msg("Dropping message")
		return
	}

	out := Event{MessageType: ev.Type}
	switch ev.Type {
	case spotify.EventPlayerStateChanged:
		state, err := ev.PlayerState()
		if err != nil {
			w.logger.Debug().Err(err).Msg("Dropping player state")
			return
		}
		out.Player = state
	case spotify.EventDeviceStateChanged:
		devices, err := ev.Devices()
		if err != nil {
			w.logger.Debug().Err(err).Msg("Dropping device state")
			return
		}
		out.Devices = devices
	default:
		w.logger.Debug().Str("event", string(ev.Type)).Msg("Ignoring event type")
		return
	}

	w.mu.Lock()
	if !w.session.owns(seq) {
		w.mu.Unlock()
		return
	}
	out.AccountID = w.session.socket.AccountID
	if out.Player != nil {
		w.session.player = out.Player
	} else {
		w.session.devices = out.Devices
	}
	w.mu.Unlock()

	w.events.Emit(EventMessage, out)
}

// State returns the lifecycle state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.session.socket != nil && w.session.accountID != "":
		return StateBound
	case w.fluxIDs != nil:
		return StateRegistered
	default:
		return StateUnregistered
	}
}

// AccountID returns the bound account id, empty until the first update.
func (w *Watcher) AccountID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session.accountID
}

// Player returns a copy of the last player state, or nil.
func (w *Watcher) Player() *spotify.PlayerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session.player == nil {
		return nil
	}
	state := *w.session.player
	return &state
}

// Devices returns a copy of the last device list.
func (w *Watcher) Devices() []spotify.Device {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]spotify.Device(nil), w.session.devices...)
}

// BoundSocket returns the active socket binding.
func (w *Watcher) BoundSocket() (host.SocketHandle, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session.socket == nil {
		return host.SocketHandle{}, false
	}
	return *w.session.socket, true
}
