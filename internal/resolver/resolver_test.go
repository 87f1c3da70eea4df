package resolver

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotwatch/internal/host"
	"github.com/jfmyers9/spotwatch/internal/realtime"
)

type fakeSource struct {
	module host.Module
	err    error
	calls  int
}

func (f *fakeSource) Module(context.Context) (host.Module, error) {
	f.calls++
	return f.module, f.err
}

func newTestResolver(t *testing.T, opts ...Option) (*Resolver, *host.Store, *fakeSource) {
	t.Helper()
	store := host.NewStore(nil, zerolog.Nop())
	src := &fakeSource{module: store}
	return New(src, zerolog.Nop(), opts...), store, src
}

func TestResolveAccount(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newTestResolver(t)

	if _, ok := r.ResolveAccount(ctx, ""); ok {
		t.Error("empty registry resolved a primary account")
	}

	store.Link(host.Account{AccountID: "b", AccessToken: "tb"})
	store.Link(host.Account{AccountID: "a", AccessToken: "ta"})

	acct, ok := r.ResolveAccount(ctx, "")
	if !ok || acct.AccountID != "a" {
		t.Errorf("primary = %+v, %v; want a", acct, ok)
	}

	acct, ok = r.ResolveAccount(ctx, "b")
	if !ok || acct.AccessToken != "tb" {
		t.Errorf("ResolveAccount(b) = %+v, %v", acct, ok)
	}

	if _, ok := r.ResolveAccount(ctx, "zzz"); ok {
		t.Error("unknown account resolved")
	}
}

func TestResolveAccount_RefetchesRegistry(t *testing.T) {
	ctx := context.Background()
	r, store, src := newTestResolver(t)

	store.Link(host.Account{AccountID: "a"})
	if _, ok := r.ResolveAccount(ctx, "a"); !ok {
		t.Fatal("linked account not resolved")
	}

	store.Unlink("a")
	if _, ok := r.ResolveAccount(ctx, "a"); ok {
		t.Error("unlinked account still resolved")
	}
	if src.calls != 2 {
		t.Errorf("module lookups = %d, want 2", src.calls)
	}
}

func TestResolveSocket_Tiers(t *testing.T) {
	connA := &realtime.Listeners{}
	connB := &realtime.Listeners{}
	connC := &realtime.Listeners{}

	tests := []struct {
		name      string
		strict    bool
		active    string
		linked    map[string]*realtime.Listeners
		requested string
		wantOK    bool
		wantAcct  string
		wantConn  *realtime.Listeners
	}{
		{
			name:      "active matches requested",
			active:    "b",
			linked:    map[string]*realtime.Listeners{"a": connA, "b": connB},
			requested: "b",
			wantOK:    true, wantAcct: "b", wantConn: connB,
		},
		{
			name:      "no id uses active",
			active:    "b",
			linked:    map[string]*realtime.Listeners{"a": connA, "b": connB},
			requested: "",
			wantOK:    true, wantAcct: "b", wantConn: connB,
		},
		{
			name:      "registry lookup when active differs",
			active:    "b",
			linked:    map[string]*realtime.Listeners{"a": connA, "b": connB},
			requested: "a",
			wantOK:    true, wantAcct: "a", wantConn: connA,
		},
		{
			name:      "fallback to first connected account",
			linked:    map[string]*realtime.Listeners{"c": connC, "b": connB, "x": nil},
			requested: "x",
			wantOK:    true, wantAcct: "b", wantConn: connB,
		},
		{
			name:      "strict refuses fallback",
			strict:    true,
			linked:    map[string]*realtime.Listeners{"c": connC, "x": nil},
			requested: "x",
			wantOK:    false,
		},
		{
			name:      "no id and no active",
			linked:    map[string]*realtime.Listeners{"a": connA},
			requested: "",
			wantOK:    false,
		},
		{
			name:      "nothing linked",
			requested: "a",
			wantOK:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store, _ := newTestResolver(t, WithStrict(tt.strict))
			for id, conn := range tt.linked {
				acct := host.Account{AccountID: id}
				if conn != nil {
					acct.Conn = conn
				}
				store.Link(acct)
			}
			if tt.active != "" {
				store.SetActiveDevice(tt.active, nil)
			}

			handle, ok := r.ResolveSocket(context.Background(), tt.requested)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if handle.AccountID != tt.wantAcct {
				t.Errorf("AccountID = %q, want %q", handle.AccountID, tt.wantAcct)
			}
			if handle.Conn != realtime.Conn(tt.wantConn) {
				t.Errorf("Conn mismatch for %q", tt.wantAcct)
			}
		})
	}
}

func TestResolveAllSockets(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newTestResolver(t)

	sockets, ok := r.ResolveAllSockets(ctx)
	if ok || sockets != nil {
		t.Errorf("empty registry = %v, %v; want absent", sockets, ok)
	}

	store.Link(host.Account{AccountID: "pending"})
	sockets, ok = r.ResolveAllSockets(ctx)
	if !ok || len(sockets) != 0 {
		t.Errorf("unconnected registry = %v, %v; want empty map", sockets, ok)
	}

	store.Link(host.Account{AccountID: "a", Conn: &realtime.Listeners{}})
	sockets, ok = r.ResolveAllSockets(ctx)
	if !ok || len(sockets) != 1 || sockets["a"] == nil {
		t.Errorf("sockets = %v, %v", sockets, ok)
	}
}

func TestResolver_ModuleUnavailable(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{err: host.ErrNotReady}
	r := New(src, zerolog.Nop())

	if _, ok := r.ResolveAccount(ctx, ""); ok {
		t.Error("ResolveAccount succeeded without module")
	}
	if _, ok := r.ResolveSocket(ctx, "a"); ok {
		t.Error("ResolveSocket succeeded without module")
	}
	if _, ok := r.ResolveAllSockets(ctx); ok {
		t.Error("ResolveAllSockets succeeded without module")
	}
}
