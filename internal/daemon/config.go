// Package daemon wires the Trail ledger service together: configuration,
// storage, event publishing, the governance engine, and the HTTP API.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/tutu-network/trail/internal/domain"
	"github.com/tutu-network/trail/internal/infra/governance"
)

// Config is the on-disk daemon configuration (config.toml).
type Config struct {
	API     APIConfig            `toml:"api"`
	Storage StorageConfig        `toml:"storage"`
	Ledger  LedgerSection        `toml:"ledger"`
	Payment domain.PaymentPolicy `toml:"payment"`
	Engine  EngineSection        `toml:"engine"`
	Events  EventsConfig         `toml:"events"`
	Metrics MetricsConfig        `toml:"metrics"`
	Tracing TracingConfig        `toml:"tracing"`
}

// APIConfig configures the HTTP server and bearer auth.
type APIConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	JWTSecret string `toml:"jwt_secret"`
	Admin     string `toml:"admin"`
	Timeout   string `toml:"timeout"`
}

// Addr returns host:port.
func (c APIConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// StorageConfig selects the ledger store.
type StorageConfig struct {
	Driver string `toml:"driver"` // "sqlite" or "memory"
	Path   string `toml:"path"`   // directory holding trail.db; default $TRAIL_HOME
}

// LedgerSection mirrors domain.LedgerConfig with TOML-friendly strings.
type LedgerSection struct {
	// Apply writes this section over the stored ledger config at startup.
	// When false the stored record (changed through PUT /v1/config) wins.
	Apply           bool   `toml:"apply"`
	Version         string `toml:"version"`
	BallotFee       string `toml:"ballot_fee"`
	RegistryFee     string `toml:"registry_fee"`
	ArchivalBaseFee string `toml:"archival_base_fee"`
	MinBallotLength string `toml:"min_ballot_length"`
	BallotCooldown  string `toml:"ballot_cooldown"`
	MaxVoteReceipts int    `toml:"max_vote_receipts"`
}

// EngineSection tunes the engine.
type EngineSection struct {
	MaxBatch       int    `toml:"max_batch"`
	PublishTimeout string `toml:"publish_timeout"`
}

// EventsConfig configures event delivery.
type EventsConfig struct {
	RedisURL string `toml:"redis_url"` // empty disables the stream
	Stream   string `toml:"stream"`
	MaxLen   int64  `toml:"max_len"`
	Recent   int    `toml:"recent"` // events kept for GET /v1/events
}

// MetricsConfig toggles /metrics.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// TracingConfig configures the span ring.
type TracingConfig struct {
	Enabled  bool `toml:"enabled"`
	MaxSpans int  `toml:"max_spans"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	def := domain.DefaultLedgerConfig()
	eng := governance.DefaultEngineConfig()
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8742,
			Admin:   "admin",
			Timeout: "30s",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Ledger: LedgerSection{
			Apply:           true,
			Version:         def.Version,
			BallotFee:       def.BallotFee.String(),
			RegistryFee:     def.RegistryFee.String(),
			ArchivalBaseFee: def.ArchivalBaseFee.String(),
			MinBallotLength: def.MinBallotLength.String(),
			BallotCooldown:  def.BallotCooldown.String(),
			MaxVoteReceipts: def.MaxVoteReceipts,
		},
		Payment: def.Payment,
		Engine: EngineSection{
			MaxBatch:       eng.MaxBatch,
			PublishTimeout: eng.PublishTimeout.String(),
		},
		Events: EventsConfig{
			Stream: "trail.events",
			MaxLen: 100_000,
			Recent: 1000,
		},
		Metrics: MetricsConfig{Enabled: true},
		Tracing: TracingConfig{Enabled: true, MaxSpans: 10_000},
	}
}

// HomeDir returns $TRAIL_HOME, or ~/.trail.
func HomeDir() string {
	if env := os.Getenv("TRAIL_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".trail")
}

// ConfigPath returns the default config file location.
func ConfigPath() string { return filepath.Join(HomeDir(), "config.toml") }

// LoadConfig reads path over DefaultConfig. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// WriteConfig writes cfg to path. A missing JWT secret is generated.
func WriteConfig(path string, cfg Config) error {
	if cfg.API.JWTSecret == "" {
		cfg.API.JWTSecret = uuid.NewString()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// DataDir returns the directory holding the SQLite database.
func (c Config) DataDir() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return HomeDir()
}

// LedgerConfig converts the [ledger] and [payment] sections.
func (c Config) LedgerConfig() (domain.LedgerConfig, error) {
	def := domain.DefaultLedgerConfig()
	out := domain.LedgerConfig{
		Version:         c.Ledger.Version,
		MinBallotLength: parseDuration(c.Ledger.MinBallotLength, def.MinBallotLength),
		BallotCooldown:  parseDuration(c.Ledger.BallotCooldown, def.BallotCooldown),
		MaxVoteReceipts: c.Ledger.MaxVoteReceipts,
		Payment:         c.Payment,
	}
	if out.Version == "" {
		out.Version = def.Version
	}
	if out.MaxVoteReceipts <= 0 {
		out.MaxVoteReceipts = def.MaxVoteReceipts
	}
	fees := []struct {
		name string
		raw  string
		def  domain.Asset
		dst  *domain.Asset
	}{
		{"ballot_fee", c.Ledger.BallotFee, def.BallotFee, &out.BallotFee},
		{"registry_fee", c.Ledger.RegistryFee, def.RegistryFee, &out.RegistryFee},
		{"archival_base_fee", c.Ledger.ArchivalBaseFee, def.ArchivalBaseFee, &out.ArchivalBaseFee},
	}
	for _, f := range fees {
		if f.raw == "" {
			*f.dst = f.def
			continue
		}
		a, err := domain.ParseAsset(f.raw)
		if err != nil {
			return out, fmt.Errorf("ledger.%s: %w", f.name, err)
		}
		*f.dst = a
	}
	return out, nil
}

// EngineConfig converts the [engine] section.
func (c Config) EngineConfig() governance.EngineConfig {
	def := governance.DefaultEngineConfig()
	return governance.EngineConfig{
		MaxBatch:       c.Engine.MaxBatch,
		PublishTimeout: parseDuration(c.Engine.PublishTimeout, def.PublishTimeout),
	}
}

// parseDuration parses s, falling back to def when s is empty or invalid.
// Besides time.ParseDuration units it accepts a trailing "d" for days.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if n := len(s); n > 1 && s[n-1] == 'd' {
		if days, err := strconv.Atoi(s[:n-1]); err == nil && days >= 0 {
			return time.Duration(days) * 24 * time.Hour
		}
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
