package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DealerURL != "wss://dealer.spotify.com/" {
		t.Errorf("DealerURL = %q", cfg.DealerURL)
	}
	if cfg.PingDuration() != 30*time.Second {
		t.Errorf("PingDuration = %v, want 30s", cfg.PingDuration())
	}
	if cfg.OutputFormat != "{{.Artists}} - {{.Name}}" {
		t.Errorf("OutputFormat = %q", cfg.OutputFormat)
	}
	if cfg.RefreshRate() != 500*time.Millisecond {
		t.Errorf("RefreshRate = %v", cfg.RefreshRate())
	}
	if cfg.StrictResolve {
		t.Error("StrictResolve defaults to true")
	}
	if len(cfg.Accounts) != 0 {
		t.Errorf("Accounts = %+v, want none", cfg.Accounts)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	content := `
accounts:
  - id: alice
    access_token: tok-a
  - id: bob
    access_token: tok-b
ping_interval: 15
strict_resolve: true
output_width: 40
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(cfg.Accounts) != 2 {
		t.Fatalf("Accounts = %+v, want 2", cfg.Accounts)
	}
	if cfg.Accounts[0].ID != "alice" || cfg.Accounts[0].AccessToken != "tok-a" {
		t.Errorf("Accounts[0] = %+v", cfg.Accounts[0])
	}
	if cfg.PingInterval != 15 || !cfg.StrictResolve || cfg.OutputWidth != 40 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("SPOTWATCH_PING_INTERVAL", "5")
	t.Setenv("SPOTWATCH_OUTPUT_FORMAT", "{{.Name}}")

	cfg, err := load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PingInterval != 5 {
		t.Errorf("PingInterval = %d, want 5", cfg.PingInterval)
	}
	if cfg.OutputFormat != "{{.Name}}" {
		t.Errorf("OutputFormat = %q", cfg.OutputFormat)
	}
}

func TestSaveLoadAccounts(t *testing.T) {
	dir := t.TempDir()
	cfg, err := load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	cfg.Accounts = []AccountConfig{{ID: "alice", AccessToken: "tok"}}
	cfg.MarqueeEnabled = true
	if err := cfg.save(dir); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := load(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.Accounts) != 1 || reloaded.Accounts[0].AccessToken != "tok" {
		t.Errorf("Accounts = %+v", reloaded.Accounts)
	}
	if !reloaded.MarqueeEnabled {
		t.Error("MarqueeEnabled not saved")
	}
}

func TestSetRemoveAccount(t *testing.T) {
	var cfg Config

	if !cfg.SetAccount("alice", "tok-1") {
		t.Error("SetAccount(alice) reported existing account")
	}
	if cfg.SetAccount("alice", "tok-2") {
		t.Error("SetAccount(alice) again reported a new account")
	}
	cfg.SetAccount("bob", "tok-b")

	if len(cfg.Accounts) != 2 || cfg.Accounts[0].AccessToken != "tok-2" {
		t.Fatalf("Accounts = %+v", cfg.Accounts)
	}

	if !cfg.RemoveAccount("alice") {
		t.Error("RemoveAccount(alice) = false")
	}
	if cfg.RemoveAccount("alice") {
		t.Error("RemoveAccount(alice) twice = true")
	}
	if len(cfg.Accounts) != 1 || cfg.Accounts[0].ID != "bob" {
		t.Errorf("Accounts = %+v, want bob", cfg.Accounts)
	}
}

func TestWatch_ReloadsAccounts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	write := func(token string) {
		t.Helper()
		content := "accounts:\n  - id: alice\n    access_token: " + token + "\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("tok-1")

	reloaded := make(chan *Config, 8)
	if err := watch(dir, func(cfg *Config) { reloaded <- cfg }, func(error) {}); err != nil {
		t.Fatalf("watch: %v", err)
	}

	write("tok-2")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			if len(cfg.Accounts) == 1 && cfg.Accounts[0].AccessToken == "tok-2" {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}

func TestWatch_NoConfigFile(t *testing.T) {
	err := watch(t.TempDir(), func(*Config) {}, func(error) {})
	if err != ErrNoConfigFile {
		t.Errorf("watch = %v, want ErrNoConfigFile", err)
	}
}

func TestWatch_ReportsUndecodableEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("accounts:\n  - id: alice\n    access_token: tok\n"), 0644); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 8)
	errs := make(chan error, 8)
	if err := watch(dir, func(cfg *Config) { reloaded <- cfg }, func(err error) { errs <- err }); err != nil {
		t.Fatalf("watch: %v", err)
	}

	// Accounts must be maps.
	if err := os.WriteFile(path, []byte("accounts:\n  - alice\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-errs:
			if err == nil {
				t.Error("nil reload error")
			}
			return
		case cfg := <-reloaded:
			// The truncated file can be seen before the new content.
			if len(cfg.Accounts) != 0 {
				t.Fatalf("reloaded undecodable config: %+v", cfg.Accounts)
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload error")
		}
	}
}
