package host

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotwatch/internal/realtime"
	"github.com/jfmyers9/spotwatch/internal/spotify"
)

// Store is an in-process Module. It keeps the linked accounts and the active
// socket/device, and dispatches the matching action on every change.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]Account
	activeID string
	device   *spotify.Device
	bus      *Bus
	logger   zerolog.Logger
}

// NewStore creates an empty store dispatching on bus. bus may be nil.
func NewStore(bus *Bus, logger zerolog.Logger) *Store {
	return &Store{
		accounts: make(map[string]Account),
		bus:      bus,
		logger:   logger.With().Str("component", "store").Logger(),
	}
}

// ActiveSocketAndDevice implements Module.
func (s *Store) ActiveSocketAndDevice() (SocketAndDevice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeID == "" {
		return SocketAndDevice{}, false
	}
	acct, ok := s.accounts[s.activeID]
	if !ok || acct.Conn == nil {
		return SocketAndDevice{}, false
	}
	return SocketAndDevice{
		Socket: SocketHandle{AccountID: acct.AccountID, Conn: acct.Conn},
		Device: copyDevice(s.device),
	}, true
}

// Accounts implements Module. The returned map is a fresh copy.
func (s *Store) Accounts() map[string]Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Account, len(s.accounts))
	for id, acct := range s.accounts {
		out[id] = acct
	}
	return out
}

// Link adds or replaces an account.
func (s *Store) Link(acct Account) {
	s.mu.Lock()
	s.accounts[acct.AccountID] = acct
	s.mu.Unlock()

	s.logger.Info().Str("account_id", acct.AccountID).Msg("Account linked")
	s.dispatch(Action{Type: ActionProfileUpdate, AccountID: acct.AccountID})
}

// Unlink removes an account. Unlinking the active account clears the active
// socket and device.
func (s *Store) Unlink(accountID string) {
	s.mu.Lock()
	delete(s.accounts, accountID)
	if s.activeID == accountID {
		s.activeID = ""
		s.device = nil
	}
	s.mu.Unlock()

	s.logger.Info().Str("account_id", accountID).Msg("Account unlinked")
}

// SetAccessToken rotates an account's token. Unknown accounts are ignored.
func (s *Store) SetAccessToken(accountID, token string) {
	s.mu.Lock()
	acct, ok := s.accounts[accountID]
	if ok {
		acct.AccessToken = token
		s.accounts[accountID] = acct
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	s.dispatch(Action{Type: ActionAccessToken, AccountID: accountID})
}

// SetActiveDevice marks accountID's socket and device as active.
func (s *Store) SetActiveDevice(accountID string, device *spotify.Device) {
	s.mu.Lock()
	s.activeID = accountID
	s.device = copyDevice(device)
	s.mu.Unlock()

	s.dispatch(Action{Type: ActionSetActiveDevice, AccountID: accountID, Device: copyDevice(device)})
}

// SetDevices records an account's device list. An active device in the list
// makes the account active.
func (s *Store) SetDevices(accountID string, devices []spotify.Device) {
	active := spotify.ActiveDevice(devices)

	s.mu.Lock()
	if active != nil {
		s.activeID = accountID
		s.device = copyDevice(active)
	} else if s.activeID == accountID {
		s.device = nil
	}
	s.mu.Unlock()

	s.dispatch(Action{Type: ActionSetDevices, AccountID: accountID, Device: copyDevice(active)})
}

// ReportPlayerState announces that accountID's player changed.
func (s *Store) ReportPlayerState(accountID string, state *spotify.PlayerState) {
	var device *spotify.Device
	if state != nil {
		device = copyDevice(state.Device)
	}
	s.dispatch(Action{Type: ActionPlayerState, AccountID: accountID, Device: device})
}

// Observe follows conn's state events the way the client does for its own
// sockets: device changes update the active device and player changes are
// re-announced on the bus. It returns the listener id attached to conn.
func (s *Store) Observe(accountID string, conn realtime.Conn) realtime.ListenerID {
	return conn.AddMessageListener(func(data []byte) {
		msg, err := spotify.DecodeMessage(data)
		if err != nil || msg.IsPong() {
			return
		}
		ev, err := msg.FirstEvent()
		if err != nil {
			return
		}
		switch ev.Type {
		case spotify.EventDeviceStateChanged:
			if devices, err := ev.Devices(); err == nil {
				s.SetDevices(accountID, devices)
			}
		case spotify.EventPlayerStateChanged:
			if state, err := ev.PlayerState(); err == nil {
				s.ReportPlayerState(accountID, state)
			}
		}
	})
}

func (s *Store) dispatch(a Action) {
	if s.bus == nil {
		return
	}
	s.bus.Dispatch(a)
}

func copyDevice(d *spotify.Device) *spotify.Device {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
