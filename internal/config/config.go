package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// ErrNoConfigFile is returned by Watch when no config file exists.
var ErrNoConfigFile = errors.New("no config file")

// Config holds application configuration
type Config struct {
	// Linked Spotify accounts, one dealer socket each
	Accounts []AccountConfig

	// Dealer websocket endpoint
	// Default: "wss://dealer.spotify.com/"
	DealerURL string

	// Seconds between dealer pings
	PingInterval int

	// Refuse to bind another account's socket when the requested account
	// has none
	StrictResolve bool

	// Output format template for the now command
	// Default: "{{.Artists}} - {{.Name}}"
	OutputFormat string

	// Fixed output width for the now command (0 = disabled)
	OutputWidth int

	// Marquee scrolling for the now command
	MarqueeEnabled   bool
	MarqueeSpeed     int
	MarqueeSeparator string

	// TUI refresh rate in milliseconds
	RefreshRateMs int
}

// AccountConfig holds a linked account's credentials
type AccountConfig struct {
	ID          string `mapstructure:"id"`
	AccessToken string `mapstructure:"access_token"`
}

// PingDuration returns PingInterval as a duration
func (c *Config) PingDuration() time.Duration {
	return time.Duration(c.PingInterval) * time.Second
}

// RefreshRate returns RefreshRateMs as a duration
func (c *Config) RefreshRate() time.Duration {
	return time.Duration(c.RefreshRateMs) * time.Millisecond
}

// SetAccount adds an account or replaces the token of an existing one. It
// reports whether the account is new.
func (c *Config) SetAccount(id, token string) bool {
	for i := range c.Accounts {
		if c.Accounts[i].ID == id {
			c.Accounts[i].AccessToken = token
			return false
		}
	}
	c.Accounts = append(c.Accounts, AccountConfig{ID: id, AccessToken: token})
	return true
}

// RemoveAccount removes an account and reports whether it was configured.
func (c *Config) RemoveAccount(id string) bool {
	for i := range c.Accounts {
		if c.Accounts[i].ID == id {
			c.Accounts = append(c.Accounts[:i], c.Accounts[i+1:]...)
			return true
		}
	}
	return false
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	return load(getConfigDir())
}

func load(configDir string) (*Config, error) {
	v := newViper(configDir)

	// Read config file (optional - don't fail if missing)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return decode(v)
}

func newViper(configDir string) *viper.Viper {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	// Set defaults
	v.SetDefault("dealer_url", "wss://dealer.spotify.com/")
	v.SetDefault("ping_interval", 30)
	v.SetDefault("strict_resolve", false)
	v.SetDefault("output_format", "{{.Artists}} - {{.Name}}")
	v.SetDefault("output_width", 0)
	v.SetDefault("marquee_enabled", false)
	v.SetDefault("marquee_speed", 2)
	v.SetDefault("marquee_separator", " • ")
	v.SetDefault("refresh_rate_ms", 500)

	// Read from environment variables
	v.SetEnvPrefix("SPOTWATCH")
	v.AutomaticEnv()

	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DealerURL:        v.GetString("dealer_url"),
		PingInterval:     v.GetInt("ping_interval"),
		StrictResolve:    v.GetBool("strict_resolve"),
		OutputFormat:     v.GetString("output_format"),
		OutputWidth:      v.GetInt("output_width"),
		MarqueeEnabled:   v.GetBool("marquee_enabled"),
		MarqueeSpeed:     v.GetInt("marquee_speed"),
		MarqueeSeparator: v.GetString("marquee_separator"),
		RefreshRateMs:    v.GetInt("refresh_rate_ms"),
	}

	if err := v.UnmarshalKey("accounts", &cfg.Accounts); err != nil {
		return nil, fmt.Errorf("failed to parse accounts: %w", err)
	}

	return cfg, nil
}

// Watch calls onChange with the reloaded configuration whenever the config
// file is written. Edits that cannot be decoded are logged and skipped. It
// returns ErrNoConfigFile when there is no file to watch.
func Watch(logger zerolog.Logger, onChange func(*Config)) error {
	logger = logger.With().Str("component", "config").Logger()
	return watch(getConfigDir(), onChange, func(err error) {
		logger.Warn().Err(err).Msg("Ignoring config change")
	})
}

func watch(configDir string, onChange func(*Config), onError func(error)) error {
	v := newViper(configDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return ErrNoConfigFile
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			onError(err)
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "spotwatch")

	// Create config directory if it doesn't exist
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

// Save writes configuration to file
func (c *Config) Save() error {
	return c.save(getConfigDir())
}

func (c *Config) save(configDir string) error {
	v := viper.New()

	accounts := make([]map[string]string, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		accounts = append(accounts, map[string]string{
			"id":           a.ID,
			"access_token": a.AccessToken,
		})
	}

	v.Set("accounts", accounts)
	v.Set("dealer_url", c.DealerURL)
	v.Set("ping_interval", c.PingInterval)
	v.Set("strict_resolve", c.StrictResolve)
	v.Set("output_format", c.OutputFormat)
	v.Set("output_width", c.OutputWidth)
	v.Set("marquee_enabled", c.MarqueeEnabled)
	v.Set("marquee_speed", c.MarqueeSpeed)
	v.Set("marquee_separator", c.MarqueeSeparator)
	v.Set("refresh_rate_ms", c.RefreshRateMs)

	return v.WriteConfigAs(filepath.Join(configDir, "config.yaml"))
}
