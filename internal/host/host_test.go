package host

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotwatch/internal/realtime"
	"github.com/jfmyers9/spotwatch/internal/spotify"
)

func recordActions(bus *Bus, actions ...string) *[]Action {
	var got []Action
	for _, a := range actions {
		bus.Subscribe(a, func(act Action) { got = append(got, act) })
	}
	return &got
}

func TestBusSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	calls := 0
	id := bus.Subscribe(ActionPlayerState, func(Action) { calls++ })

	bus.Dispatch(Action{Type: ActionPlayerState, AccountID: "a"})
	bus.Unsubscribe(ActionPlayerState, id)
	bus.Dispatch(Action{Type: ActionPlayerState, AccountID: "a"})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if n := bus.SubscriberCount(ActionPlayerState); n != 0 {
		t.Errorf("SubscriberCount = %d, want 0", n)
	}
}

func TestStoreActiveSocket(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	store := NewStore(bus, zerolog.Nop())
	got := recordActions(bus, ActionProfileUpdate, ActionSetActiveDevice)

	if _, ok := store.ActiveSocketAndDevice(); ok {
		t.Fatal("empty store reported an active socket")
	}

	conn := &realtime.Listeners{}
	store.Link(Account{AccountID: "a", AccessToken: "t", Conn: conn})
	store.SetActiveDevice("a", &spotify.Device{ID: "d1", Name: "Desk", IsActive: true})

	active, ok := store.ActiveSocketAndDevice()
	if !ok {
		t.Fatal("no active socket after SetActiveDevice")
	}
	if active.Socket.AccountID != "a" || active.Socket.Conn != conn {
		t.Errorf("Socket = %+v", active.Socket)
	}
	if active.Device == nil || active.Device.ID != "d1" {
		t.Errorf("Device = %+v", active.Device)
	}

	if len(*got) != 2 || (*got)[0].Type != ActionProfileUpdate || (*got)[1].Type != ActionSetActiveDevice {
		t.Errorf("actions = %+v", *got)
	}

	store.Unlink("a")
	if _, ok := store.ActiveSocketAndDevice(); ok {
		t.Error("unlinked account still active")
	}
}

func TestStoreAccountsIsSnapshot(t *testing.T) {
	store := NewStore(nil, zerolog.Nop())
	store.Link(Account{AccountID: "a"})

	snap := store.Accounts()
	delete(snap, "a")
	snap["b"] = Account{AccountID: "b"}

	after := store.Accounts()
	if _, ok := after["a"]; !ok || len(after) != 1 {
		t.Errorf("store mutated through snapshot: %+v", after)
	}
}

func TestStoreSetAccessToken(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	store := NewStore(bus, zerolog.Nop())
	got := recordActions(bus, ActionAccessToken)

	store.SetAccessToken("missing", "x")
	store.Link(Account{AccountID: "a", AccessToken: "old"})
	store.SetAccessToken("a", "new")

	if tok := store.Accounts()["a"].AccessToken; tok != "new" {
		t.Errorf("AccessToken = %q, want new", tok)
	}
	if len(*got) != 1 || (*got)[0].AccountID != "a" {
		t.Errorf("actions = %+v", *got)
	}
}

func TestStoreObserveDeviceFrames(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	store := NewStore(bus, zerolog.Nop())
	got := recordActions(bus, ActionSetDevices, ActionPlayerState)

	conn := &realtime.Listeners{}
	store.Link(Account{AccountID: "a", Conn: conn})
	store.Observe("a", conn)

	conn.Dispatch([]byte(`{"type":"pong"}`))
	conn.Dispatch([]byte(`{"type":"message","payloads":[{"events":[{"type":"DEVICE_STATE_CHANGED","event":{"devices":[{"id":"d1","name":"Desk","is_active":true}]}}]}]}`))
	conn.Dispatch([]byte(`{"type":"message","payloads":[{"events":[{"type":"PLAYER_STATE_CHANGED","event":{"state":{"is_playing":true}}}]}]}`))

	if len(*got) != 2 {
		t.Fatalf("actions = %+v, want 2", *got)
	}
	if (*got)[0].Type != ActionSetDevices || (*got)[0].Device == nil || (*got)[0].Device.ID != "d1" {
		t.Errorf("first action = %+v", (*got)[0])
	}
	if (*got)[1].Type != ActionPlayerState {
		t.Errorf("second action = %+v", (*got)[1])
	}

	active, ok := store.ActiveSocketAndDevice()
	if !ok || active.Socket.AccountID != "a" {
		t.Errorf("active = %+v, %v", active, ok)
	}
}

func TestRuntimeMarkReadyOnce(t *testing.T) {
	rt := NewRuntime(zerolog.Nop())
	got := recordActions(rt.Bus(), ActionConnectionOpen)

	if rt.IsReady() {
		t.Fatal("runtime ready before MarkReady")
	}
	rt.MarkReady()
	rt.MarkReady()

	if !rt.IsReady() {
		t.Error("runtime not ready after MarkReady")
	}
	if len(*got) != 1 {
		t.Errorf("CONNECTION_OPEN dispatched %d times, want 1", len(*got))
	}
}

func TestRuntimeModuleCancelled(t *testing.T) {
	rt := NewRuntime(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := rt.Module(ctx); !errors.Is(err, ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", err)
	}

	m, err := rt.Module(context.Background())
	if err != nil || m == nil {
		t.Errorf("Module = %v, %v", m, err)
	}
}
