package daemon

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotwatch/internal/host"
	"github.com/jfmyers9/spotwatch/internal/realtime"
)

const (
	baseBackoff = 1 * time.Second
	maxBackoff  = 16 * time.Second
)

// Socket is a live dealer connection.
type Socket interface {
	realtime.Conn
	Run(ctx context.Context) error
}

// DialFunc opens a dealer connection for an account.
type DialFunc func(ctx context.Context, accountID string, cfg realtime.SocketConfig, logger zerolog.Logger) (Socket, error)

// DialDealer is the DialFunc used outside tests.
func DialDealer(ctx context.Context, accountID string, cfg realtime.SocketConfig, logger zerolog.Logger) (Socket, error) {
	return realtime.Dial(ctx, accountID, cfg, logger)
}

// AccountResolver looks up an account's current registry entry.
type AccountResolver interface {
	ResolveAccount(ctx context.Context, accountID string) (host.Account, bool)
}

// Connector keeps one account's dealer socket open and linked in the store.
type Connector struct {
	accountID string
	cfg       realtime.SocketConfig
	store     *host.Store
	accounts  AccountResolver
	dial      DialFunc
	backoff   time.Duration
	logger    zerolog.Logger
}

// NewConnector creates a Connector for accountID that links its socket in
// store and reads the account's token through accounts. dial defaults to
// DialDealer.
func NewConnector(accountID string, cfg realtime.SocketConfig, store *host.Store, accounts AccountResolver, dial DialFunc, logger zerolog.Logger) *Connector {
	if dial == nil {
		dial = DialDealer
	}
	return &Connector{
		accountID: accountID,
		cfg:       cfg,
		store:     store,
		accounts:  accounts,
		dial:      dial,
		backoff:   baseBackoff,
		logger: logger.With().
			Str("component", "connector").
			Str("account_id", accountID).
			Logger(),
	}
}

// Run dials, links and serves the socket until ctx is cancelled, redialing
// with exponential backoff. attempted, when non-nil, is called once after
// the first dial attempt, whether it succeeded or not.
func (c *Connector) Run(ctx context.Context, attempted func()) error {
	c.logger.Info().Msg("Starting connector")

	notify := func() {
		if attempted != nil {
			attempted()
			attempted = nil
		}
	}
	defer notify()

	interval := c.backoff
	for {
		sock, err := c.dial(ctx, c.accountID, c.socketConfig(ctx), c.logger)
		if err != nil {
			notify()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn().Err(err).Dur("retry_in", interval).Msg("Dealer connection failed")
		} else {
			// Reset to base interval on success
			interval = c.backoff
			err = c.serve(ctx, sock, notify)
			if ctx.Err() != nil {
				c.logger.Info().Msg("Connector stopped")
				return ctx.Err()
			}
			c.logger.Warn().Err(err).Dur("retry_in", interval).Msg("Dealer connection lost")
		}

		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Connector stopped")
			return ctx.Err()
		case <-time.After(interval):
		}

		if interval < maxBackoff {
			interval *= 2
			if interval > maxBackoff {
				interval = maxBackoff
			}
		}
	}
}

// socketConfig picks up the account's current token, which rotates
// externally.
func (c *Connector) socketConfig(ctx context.Context) realtime.SocketConfig {
	cfg := c.cfg
	if acct, ok := c.accounts.ResolveAccount(ctx, c.accountID); ok && acct.AccessToken != "" {
		cfg.AccessToken = acct.AccessToken
	}
	return cfg
}

// serve links sock for the lifetime of its read loop.
func (c *Connector) serve(ctx context.Context, sock Socket, linked func()) error {
	c.store.Link(host.Account{AccountID: c.accountID, AccessToken: c.socketConfig(ctx).AccessToken, Conn: sock})
	id := c.store.Observe(c.accountID, sock)
	linked()

	defer func() {
		sock.RemoveMessageListener(id)
		// ctx is usually done by now; the token must still be looked up.
		token := c.socketConfig(context.WithoutCancel(ctx)).AccessToken
		c.store.Link(host.Account{AccountID: c.accountID, AccessToken: token})
	}()

	return sock.Run(ctx)
}
