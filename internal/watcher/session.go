package watcher

import (
	"errors"
	"fmt"

	"github.com/jfmyers9/spotwatch/internal/host"
	"github.com/jfmyers9/spotwatch/internal/realtime"
	"github.com/jfmyers9/spotwatch/internal/spotify"
)

// ErrAccountMismatch is returned when an update names a different account
// than the one the session is bound to.
var ErrAccountMismatch = errors.New("account id mismatch")

// session is the long-lived state owned by a Watcher. All access goes
// through the Watcher's mutex.
type session struct {
	accountID string
	socket    *host.SocketHandle
	listener  realtime.ListenerID
	binding   uint64
	player    *spotify.PlayerState
	devices   []spotify.Device

	// generation changes on every unload so work started before it can
	// detect that it is stale.
	generation uint64
}

// adopt binds the session to accountID if it is unbound. Once bound, only
// the same id is accepted.
func (s *session) adopt(accountID string) error {
	if s.accountID == "" {
		s.accountID = accountID
		return nil
	}
	if s.accountID != accountID {
		return fmt.Errorf("%w: bound to %s, got %s", ErrAccountMismatch, s.accountID, accountID)
	}
	return nil
}

// nextBinding reserves the sequence number of the next socket binding.
func (s *session) nextBinding() uint64 {
	s.binding++
	return s.binding
}

// attach records handle as the active socket binding.
func (s *session) attach(handle host.SocketHandle, id realtime.ListenerID) {
	s.socket = &host.SocketHandle{AccountID: handle.AccountID, Conn: handle.Conn}
	s.listener = id
}

// detach removes the message listener from the bound socket, if any.
func (s *session) detach() {
	if s.socket == nil {
		return
	}
	s.socket.Conn.RemoveMessageListener(s.listener)
	s.socket = nil
	s.listener = 0
}

// boundTo reports whether the active socket belongs to accountID.
func (s *session) boundTo(accountID string) bool {
	return s.socket != nil && s.socket.AccountID == accountID
}

// owns reports whether binding seq is still the active one.
func (s *session) owns(seq uint64) bool {
	return s.socket != nil && s.binding == seq
}
