package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DefaultDealerURL is the Spotify dealer endpoint that pushes player and
// device state for an account.
const DefaultDealerURL = "wss://dealer.spotify.com/"

// DefaultPingInterval matches the keepalive cadence the dealer expects.
const DefaultPingInterval = 30 * time.Second

var pingFrame = []byte(`{"type":"ping"}`)

// SocketConfig holds dealer connection settings.
type SocketConfig struct {
	URL          string        // Dealer endpoint, DefaultDealerURL when empty
	AccessToken  string        // Account access token, sent as access_token query parameter
	PingInterval time.Duration // Keepalive interval, DefaultPingInterval when zero
}

// Socket is a dealer websocket for one account. Incoming text frames are
// delivered to the attached message listeners on the read goroutine.
type Socket struct {
	Listeners

	accountID string
	cfg       SocketConfig
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	logger    zerolog.Logger
}

// Dial opens the dealer websocket for accountID.
func Dial(ctx context.Context, accountID string, cfg SocketConfig, logger zerolog.Logger) (*Socket, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultDealerURL
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}

	endpoint, err := dealerURL(cfg.URL, cfg.AccessToken)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial dealer for %s: %w", accountID, err)
	}

	return &Socket{
		accountID: accountID,
		cfg:       cfg,
		conn:      conn,
		logger: logger.With().
			Str("component", "realtime").
			Str("account_id", accountID).
			Logger(),
	}, nil
}

func dealerURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid dealer url %q: %w", base, err)
	}
	if token != "" {
		q := u.Query()
		q.Set("access_token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// AccountID returns the account the socket was opened for.
func (s *Socket) AccountID() string {
	return s.accountID
}

// Ping sends a dealer keepalive. The dealer answers with {"type":"pong"}.
func (s *Socket) Ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, pingFrame)
}

// Run reads frames until the connection fails or ctx is cancelled. It sends
// a ping immediately and then every ping interval.
func (s *Socket) Run(ctx context.Context) error {
	s.logger.Info().Msg("Dealer socket connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	go s.keepalive(ctx)

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, websocket.ErrCloseSent) {
				s.logger.Info().Msg("Dealer socket closed")
				return nil
			}
			return fmt.Errorf("read dealer frame: %w", err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		s.Dispatch(data)
	}
}

func (s *Socket) keepalive(ctx context.Context) {
	if err := s.Ping(); err != nil {
		s.logger.Debug().Err(err).Msg("Initial ping failed")
		return
	}

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Ping(); err != nil {
				s.logger.Debug().Err(err).Msg("Ping failed")
				return
			}
		}
	}
}

// Close sends a close frame and tears down the connection.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
