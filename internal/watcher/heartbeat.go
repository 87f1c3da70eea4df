package watcher

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotwatch/internal/host"
	"github.com/jfmyers9/spotwatch/internal/realtime"
	"github.com/jfmyers9/spotwatch/internal/spotify"
)

// socketEnumerator lists the sockets of every linked account.
type socketEnumerator interface {
	ResolveAllSockets(ctx context.Context) (map[string]realtime.Conn, bool)
}

type trackedSocket struct {
	conn realtime.Conn
	id   realtime.ListenerID
}

// Tracker watches every linked account's socket for liveness replies and
// reports the account each pong arrived on. During startup the host's idea
// of the active socket can be wrong; a pong proves which socket is alive.
type Tracker struct {
	sockets socketEnumerator
	host    host.Host
	onPong  func(accountID string)
	logger  zerolog.Logger

	mu         sync.Mutex
	tracked    map[string]trackedSocket
	waiting    bool
	dispatcher host.Dispatcher
	readyID    host.SubscriptionID
}

// NewTracker creates a Tracker calling onPong for every pong received.
func NewTracker(sockets socketEnumerator, h host.Host, onPong func(accountID string), logger zerolog.Logger) *Tracker {
	return &Tracker{
		sockets: sockets,
		host:    h,
		onPong:  onPong,
		tracked: make(map[string]trackedSocket),
		logger:  logger.With().Str("component", "heartbeat").Logger(),
	}
}

// Install attaches a pong listener to every socket that is not tracked yet.
// When no connected socket can be enumerated it waits for the host's
// readiness action instead, subscribing at most once until that action fires or
// Remove is called.
func (t *Tracker) Install(ctx context.Context) {
	sockets, ok := t.sockets.ResolveAllSockets(ctx)
	if !ok || len(sockets) == 0 {
		t.awaitReady(ctx)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for accountID, conn := range sockets {
		if prev, exists := t.tracked[accountID]; exists {
			if prev.conn == conn {
				continue
			}
			prev.conn.RemoveMessageListener(prev.id)
		}
		id := conn.AddMessageListener(t.pongListener(accountID))
		t.tracked[accountID] = trackedSocket{conn: conn, id: id}
		t.logger.Debug().Str("account_id", accountID).Msg("Tracking socket heartbeat")
	}
}

func (t *Tracker) pongListener(accountID string) realtime.MessageHandler {
	return func(data []byte) {
		if !spotify.IsPong(data) {
			return
		}
		t.logger.Debug().Str("account_id", accountID).Msg("Pong")
		t.onPong(accountID)
	}
}

func (t *Tracker) awaitReady(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.waiting {
		return
	}

	d, err := t.host.Dispatcher()
	if err != nil {
		t.logger.Warn().Err(err).Msg("Dispatch bus not available, heartbeat not installed")
		return
	}

	t.waiting = true
	t.dispatcher = d
	t.readyID = d.Subscribe(host.ActionConnectionOpen, func(host.Action) {
		t.mu.Lock()
		if !t.waiting {
			t.mu.Unlock()
			return
		}
		t.waiting = false
		t.dispatcher.Unsubscribe(host.ActionConnectionOpen, t.readyID)
		t.dispatcher = nil
		t.mu.Unlock()

		t.logger.Debug().Msg("Host ready, retrying heartbeat install")
		t.Install(ctx)
	})
	t.logger.Debug().Msg("No sockets yet, waiting for host readiness")
}

// Remove detaches every listener the Tracker installed and cancels a
// pending readiness subscription. The Tracker can be installed again.
func (t *Tracker) Remove() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for accountID, ts := range t.tracked {
		ts.conn.RemoveMessageListener(ts.id)
		delete(t.tracked, accountID)
	}
	if t.waiting && t.dispatcher != nil {
		t.dispatcher.Unsubscribe(host.ActionConnectionOpen, t.readyID)
	}
	t.waiting = false
	t.dispatcher = nil
	t.readyID = 0
}

// Tracked returns the ids of the accounts whose sockets are tracked.
func (t *Tracker) Tracked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.tracked))
	for id := range t.tracked {
		ids = append(ids, id)
	}
	return ids
}
