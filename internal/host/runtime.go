package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Runtime is an in-process Host. Its store is available from construction
// on; MarkReady announces that the sockets of every configured account have
// been opened, the way a client announces the end of its own startup.
type Runtime struct {
	bus       *Bus
	store     *Store
	ready     chan struct{}
	readyOnce sync.Once
	logger    zerolog.Logger
}

// NewRuntime creates a runtime with an empty store.
func NewRuntime(logger zerolog.Logger) *Runtime {
	bus := NewBus(logger)
	return &Runtime{
		bus:    bus,
		store:  NewStore(bus, logger),
		ready:  make(chan struct{}),
		logger: logger.With().Str("component", "host").Logger(),
	}
}

// Bus returns the runtime's dispatch bus.
func (r *Runtime) Bus() *Bus {
	return r.bus
}

// Store returns the runtime's account store.
func (r *Runtime) Store() *Store {
	return r.store
}

// Dispatcher implements Host. The bus exists from construction on.
func (r *Runtime) Dispatcher() (Dispatcher, error) {
	return r.bus, nil
}

// Module implements ModuleSource.
func (r *Runtime) Module(ctx context.Context) (Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	return r.store, nil
}

// IsReady reports whether MarkReady was called.
func (r *Runtime) IsReady() bool {
	select {
	case <-r.ready:
		return true
	default:
		return false
	}
}

// MarkReady dispatches ActionConnectionOpen. Later calls are no-ops.
func (r *Runtime) MarkReady() {
	r.readyOnce.Do(func() {
		close(r.ready)
		r.logger.Info().Msg("Host ready")
		r.bus.Dispatch(Action{Type: ActionConnectionOpen})
	})
}
