package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jfmyers9/spotwatch/internal/history"
	"github.com/jfmyers9/spotwatch/internal/host"
	"github.com/jfmyers9/spotwatch/internal/metrics"
	"github.com/jfmyers9/spotwatch/internal/player"
	"github.com/jfmyers9/spotwatch/internal/realtime"
	"github.com/jfmyers9/spotwatch/internal/resolver"
	"github.com/jfmyers9/spotwatch/internal/watcher"
)

// Account is a configured Spotify account.
type Account struct {
	ID          string
	AccessToken string
}

// Config holds daemon configuration
type Config struct {
	Accounts         []Account
	DealerURL        string        // Dealer endpoint, realtime.DefaultDealerURL when empty
	PingInterval     time.Duration // Dealer keepalive interval
	StrictResolve    bool          // Never bind another account's socket
	StateFile        string        // Path to the persisted snapshot
	HistoryDB        string        // Path to the play history database
	HistoryRetention time.Duration // Plays older than this are dropped on shutdown (0 = keep)
	MetricsAddr      string        // Listen address for /metrics (empty = disabled)
	Dial             DialFunc      // Opens dealer sockets, DialDealer when nil
}

// Daemon coordinates the dealer connectors, the host runtime, the watcher
// and everything fed by it.
type Daemon struct {
	config     Config
	runtime    *host.Runtime
	resolver   *resolver.Resolver
	watcher    *watcher.Watcher
	projection *player.Projection
	history    *history.Store
	metrics    *metrics.Metrics
	detach     []func()
	base       zerolog.Logger // shared by components, which add their own tag
	logger     zerolog.Logger
}

// New creates a new Daemon instance
func New(cfg Config, logger zerolog.Logger) (*Daemon, error) {
	if len(cfg.Accounts) == 0 {
		return nil, errors.New("no accounts configured")
	}

	// Tag every component's logs with this run
	logger = logger.With().Str("run_id", uuid.NewString()).Logger()

	// Open history
	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	// Create projection
	projection, err := player.New(logger,
		player.WithStatePath(cfg.StateFile),
		player.WithRecorder(store),
	)
	if projection == nil {
		store.Close()
		return nil, fmt.Errorf("failed to create projection: %w", err)
	}
	d := &Daemon{
		config:     cfg,
		projection: projection,
		history:    store,
		base:       logger,
		logger:     logger.With().Str("component", "daemon").Logger(),
	}
	if err != nil {
		d.logger.Warn().Err(err).Str("path", cfg.StateFile).Msg("Ignoring unreadable snapshot")
	}

	d.runtime = host.NewRuntime(logger)
	d.resolver = resolver.New(d.runtime, logger, resolver.WithStrict(cfg.StrictResolve))
	d.watcher = watcher.New(d.runtime, d.resolver, logger)
	d.metrics = metrics.New(logger)
	d.detach = []func(){
		projection.Attach(d.watcher),
		d.metrics.Attach(d.watcher),
	}

	// Accounts are known before their sockets are.
	for _, acct := range cfg.Accounts {
		d.runtime.Store().Link(host.Account{AccountID: acct.ID, AccessToken: acct.AccessToken})
	}

	return d, nil
}

// Projection returns the player projection fed by the watcher.
func (d *Daemon) Projection() *player.Projection {
	return d.projection
}

// Watcher returns the daemon's watcher.
func (d *Daemon) Watcher() *watcher.Watcher {
	return d.watcher
}

// History returns the play history.
func (d *Daemon) History() *history.Store {
	return d.history
}

// UpdateAccounts applies rotated access tokens. Sockets pick up the new token
// when they next connect; added or removed accounts need a restart.
func (d *Daemon) UpdateAccounts(accounts []Account) {
	store := d.runtime.Store()
	linked := store.Accounts()

	for _, acct := range accounts {
		cur, ok := linked[acct.ID]
		if !ok {
			d.logger.Warn().Str("account_id", acct.ID).Msg("New account ignored until restart")
			continue
		}
		if cur.AccessToken != acct.AccessToken {
			store.SetAccessToken(acct.ID, acct.AccessToken)
			d.logger.Info().Str("account_id", acct.ID).Msg("Access token rotated")
		}
	}
}

// Run starts the daemon and blocks until ctx is done or a shutdown signal
// is received.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		d.logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Second signal forces exit
		<-sigChan
		d.logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	// Run the daemon
	if err := d.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// run loads the watcher and supervises the connectors until ctx is done.
func (d *Daemon) run(ctx context.Context) error {
	d.logger.Info().Int("accounts", len(d.config.Accounts)).Msg("Starting daemon")

	// The watcher comes up before any socket, so heartbeats wait for the
	// runtime to become ready.
	d.watcher.Load(ctx)
	defer d.watcher.Unload()

	g, gctx := errgroup.WithContext(ctx)

	var attempts sync.WaitGroup
	attempts.Add(len(d.config.Accounts))
	for _, acct := range d.config.Accounts {
		c := NewConnector(acct.ID, realtime.SocketConfig{
			URL:          d.config.DealerURL,
			AccessToken:  acct.AccessToken,
			PingInterval: d.config.PingInterval,
		}, d.runtime.Store(), d.resolver, d.config.Dial, d.base)

		g.Go(func() error {
			return c.Run(gctx, attempts.Done)
		})
	}

	g.Go(func() error {
		attempts.Wait()
		if gctx.Err() == nil {
			d.runtime.MarkReady()
		}
		return nil
	})

	if d.config.MetricsAddr != "" {
		g.Go(func() error {
			return d.metrics.Serve(gctx, d.config.MetricsAddr)
		})
	}

	err := g.Wait()
	d.logger.Info().Msg("Daemon stopped")
	return err
}

// Shutdown gracefully shuts down the daemon
func (d *Daemon) Shutdown() error {
	d.logger.Info().Msg("Shutting down daemon")

	for _, detach := range d.detach {
		detach()
	}
	d.detach = nil

	// Cleanup old records
	if d.config.HistoryRetention > 0 {
		ctx := context.Background()
		if n, err := d.history.Cleanup(ctx, d.config.HistoryRetention); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to cleanup history")
		} else if n > 0 {
			d.logger.Info().Int64("removed", n).Msg("Cleaned up history")
		}
	}

	// Close history
	if err := d.history.Close(); err != nil {
		return fmt.Errorf("failed to close history: %w", err)
	}

	return nil
}
