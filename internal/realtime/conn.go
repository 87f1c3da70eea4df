// Package realtime defines the duplex message socket the watcher listens on
// and a gorilla/websocket implementation for the Spotify dealer.
package realtime

import (
	"sync"
)

// MessageHandler receives the raw payload of a text frame.
type MessageHandler func(data []byte)

// ListenerID identifies an attached message listener.
type ListenerID uint64

// Conn is a realtime connection that delivers message events.
type Conn interface {
	AddMessageListener(h MessageHandler) ListenerID
	RemoveMessageListener(id ListenerID)
}

// Listeners is an ordered set of message handlers. The zero value is ready
// to use. It implements the listener half of Conn so connection types can
// embed it.
type Listeners struct {
	mu      sync.Mutex
	entries []listenerEntry
	nextID  ListenerID
}

type listenerEntry struct {
	id ListenerID
	h  MessageHandler
}

// AddMessageListener attaches h and returns its id.
func (l *Listeners) AddMessageListener(h MessageHandler) ListenerID {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	l.entries = append(l.entries, listenerEntry{id: l.nextID, h: h})
	return l.nextID
}

// RemoveMessageListener detaches the listener with the given id. Unknown ids
// are ignored.
func (l *Listeners) RemoveMessageListener(id ListenerID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of attached listeners.
func (l *Listeners) ListenerCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Dispatch delivers data to every listener attached at the time of the call.
func (l *Listeners) Dispatch(data []byte) {
	l.mu.Lock()
	snapshot := make([]listenerEntry, len(l.entries))
	copy(snapshot, l.entries)
	l.mu.Unlock()

	for _, e := range snapshot {
		e.h(data)
	}
}
