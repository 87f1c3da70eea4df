// Package resolver finds the active Spotify account and its realtime socket
// through the host module. Every call re-reads the host's account registry;
// accounts can be unlinked at any time.
package resolver

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotwatch/internal/host"
	"github.com/jfmyers9/spotwatch/internal/realtime"
)

// Resolver resolves accounts and sockets. Absent results mean "not ready
// yet" and callers retry on a later event.
type Resolver struct {
	source host.ModuleSource
	strict bool
	logger zerolog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithStrict disables the last-resort fallback of ResolveSocket that hands
// out the first linked account's socket when the requested account has none.
func WithStrict(strict bool) Option {
	return func(r *Resolver) {
		r.strict = strict
	}
}

// New creates a Resolver backed by source.
func New(source host.ModuleSource, logger zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		source: source,
		logger: logger.With().Str("component", "resolver").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) module(ctx context.Context) (host.Module, bool) {
	m, err := r.source.Module(ctx)
	if err != nil || m == nil {
		r.logger.Debug().Err(err).Msg("Spotify module not available")
		return nil, false
	}
	return m, true
}

// ResolveAccount returns the account for accountID. With an empty id it
// returns the primary account, the one with the smallest id.
func (r *Resolver) ResolveAccount(ctx context.Context, accountID string) (host.Account, bool) {
	m, ok := r.module(ctx)
	if !ok {
		return host.Account{}, false
	}
	accounts := m.Accounts()

	if accountID != "" {
		acct, ok := accounts[accountID]
		return acct, ok
	}

	ids := sortedIDs(accounts)
	if len(ids) == 0 {
		return host.Account{}, false
	}
	return accounts[ids[0]], true
}

// ResolveSocket returns a socket for accountID, trying in order:
//
//  1. the host's active socket, if it belongs to accountID (or any account
//     when accountID is empty)
//  2. the registry entry for accountID
//  3. the first connected account in the registry when accountID was given
//
// The third tier can hand out another account's socket; the returned handle
// carries the account the socket really belongs to. Strict resolvers skip it.
func (r *Resolver) ResolveSocket(ctx context.Context, accountID string) (host.SocketHandle, bool) {
	m, ok := r.module(ctx)
	if !ok {
		return host.SocketHandle{}, false
	}

	if active, ok := m.ActiveSocketAndDevice(); ok && active.Socket.Conn != nil {
		if accountID == "" || active.Socket.AccountID == accountID {
			return active.Socket, true
		}
	}

	// An empty id was already served by the unfiltered active lookup above.
	if accountID == "" {
		return host.SocketHandle{}, false
	}

	accounts := m.Accounts()
	if acct, ok := accounts[accountID]; ok && acct.Conn != nil {
		return host.SocketHandle{AccountID: acct.AccountID, Conn: acct.Conn}, true
	}

	if r.strict {
		return host.SocketHandle{}, false
	}

	for _, id := range sortedIDs(accounts) {
		acct := accounts[id]
		if acct.Conn == nil {
			continue
		}
		r.logger.Warn().
			Str("requested", accountID).
			Str("account_id", acct.AccountID).
			Msg("Falling back to another account's socket")
		return host.SocketHandle{AccountID: acct.AccountID, Conn: acct.Conn}, true
	}
	return host.SocketHandle{}, false
}

// ResolveAllSockets returns every connected account's socket. It reports
// false when no accounts are linked, and an empty map when accounts are
// linked but none is connected.
func (r *Resolver) ResolveAllSockets(ctx context.Context) (map[string]realtime.Conn, bool) {
	m, ok := r.module(ctx)
	if !ok {
		return nil, false
	}
	accounts := m.Accounts()
	if len(accounts) == 0 {
		return nil, false
	}

	sockets := make(map[string]realtime.Conn, len(accounts))
	for id, acct := range accounts {
		if acct.Conn != nil {
			sockets[id] = acct.Conn
		}
	}
	return sockets, true
}

func sortedIDs(accounts map[string]host.Account) []string {
	ids := make([]string, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
