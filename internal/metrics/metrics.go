// Package metrics exposes watcher activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotwatch/internal/emitter"
	"github.com/jfmyers9/spotwatch/internal/watcher"
)

// Source is a stream of watcher events.
type Source interface {
	On(name string, h emitter.Handler[watcher.Event]) emitter.ListenerID
	Off(name string, id emitter.ListenerID) bool
}

// watchedEvents are counted by name.
var watchedEvents = []string{
	watcher.EventUpdate,
	watcher.EventMessage,
	watcher.EventWebsocket,
	watcher.EventError,
	watcher.EventPong,
	watcher.EventRegistered,
	watcher.EventUnregistered,
}

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	logger   zerolog.Logger

	EventsTotal   *prometheus.CounterVec
	MessagesTotal *prometheus.CounterVec
	ErrorsTotal   *prometheus.CounterVec
	PongsTotal    *prometheus.CounterVec
	Bound         prometheus.Gauge
}

// New creates and registers the collectors.
func New(logger zerolog.Logger) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logger:   logger.With().Str("component", "metrics").Logger(),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotwatch_watcher_events_total",
				Help: "Total number of watcher events emitted",
			},
			[]string{"event"},
		),
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotwatch_messages_total",
				Help: "Total number of realtime messages classified",
			},
			[]string{"type"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotwatch_errors_total",
				Help: "Total number of watcher errors",
			},
			[]string{"tag"},
		),
		PongsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotwatch_pongs_total",
				Help: "Total number of heartbeat replies",
			},
			[]string{"account_id"},
		),
		Bound: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "spotwatch_socket_bound",
				Help: "Whether a realtime socket is bound (1) or not (0)",
			},
		),
	}

	m.registry.MustRegister(
		m.EventsTotal,
		m.MessagesTotal,
		m.ErrorsTotal,
		m.PongsTotal,
		m.Bound,
	)
	return m
}

// Attach counts src's events and returns a function undoing it.
func (m *Metrics) Attach(src Source) func() {
	ids := make(map[string]emitter.ListenerID, len(watchedEvents))
	for _, name := range watchedEvents {
		ids[name] = src.On(name, m.observe(name))
	}
	return func() {
		for name, id := range ids {
			src.Off(name, id)
		}
	}
}

func (m *Metrics) observe(name string) emitter.Handler[watcher.Event] {
	return func(ev watcher.Event) {
		m.EventsTotal.WithLabelValues(name).Inc()

		switch name {
		case watcher.EventMessage:
			m.MessagesTotal.WithLabelValues(string(ev.MessageType)).Inc()
		case watcher.EventError:
			m.ErrorsTotal.WithLabelValues(ev.Tag).Inc()
		case watcher.EventPong:
			m.PongsTotal.WithLabelValues(ev.AccountID).Inc()
		case watcher.EventWebsocket:
			m.Bound.Set(1)
		case watcher.EventUnregistered:
			m.Bound.Set(0)
		}
	}
}

// Handler serves the registry in the Prometheus exposition format on
// /metrics and a liveness probe on /healthz.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"spotwatch"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return r
}

// Serve listens on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		m.logger.Info().Msg("Shutting down metrics server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			m.logger.Error().Err(err).Msg("Failed to shutdown metrics server gracefully")
		}
	}()

	m.logger.Info().Str("addr", addr).Msg("Starting metrics server")
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}
