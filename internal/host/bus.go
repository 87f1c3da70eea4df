package host

import (
	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotwatch/internal/emitter"
)

// Bus is an in-process Dispatcher.
type Bus struct {
	events *emitter.Emitter[Action]
	logger zerolog.Logger
}

// NewBus creates an empty dispatch bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		events: emitter.New[Action](logger),
		logger: logger.With().Str("component", "bus").Logger(),
	}
}

// Subscribe registers h for action.
func (b *Bus) Subscribe(action string, h DispatchHandler) SubscriptionID {
	return SubscriptionID(b.events.On(action, emitter.Handler[Action](h)))
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(action string, id SubscriptionID) {
	b.events.Off(action, emitter.ListenerID(id))
}

// Dispatch delivers a to every subscriber of a.Type.
func (b *Bus) Dispatch(a Action) {
	b.logger.Debug().
		Str("action", a.Type).
		Str("account_id", a.AccountID).
		Msg("Dispatch")
	b.events.Emit(a.Type, a)
}

// SubscriberCount returns the number of subscriptions for action.
func (b *Bus) SubscriberCount(action string) int {
	return b.events.ListenerCount(action)
}
