// Package config defines the top-level configuration for the hunter and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HUNTER_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	ClobAPI    ClobAPIConfig    `toml:"clob_api"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Engine     EngineConfig     `toml:"engine"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Strategies []StrategyConfig `toml:"strategy"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	FunderAddress    string `toml:"funder_address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host"`
	GammaHost     string `toml:"gamma_host"`
	DataHost      string `toml:"data_host"`
	WsHost        string `toml:"ws_host"`
	ChainID       int    `toml:"chain_id"`
	SignatureType int    `toml:"signature_type"`
}

// ClobAPIConfig holds the L2 API credentials used for authenticated REST
// calls and the user websocket channel.
type ClobAPIConfig struct {
	Key        string `toml:"key"`
	Secret     string `toml:"secret"`
	Passphrase string `toml:"passphrase"`
}

// Set reports whether all three credential fields are present.
func (c ClobAPIConfig) Set() bool {
	return c.Key != "" && c.Secret != "" && c.Passphrase != ""
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters for trade archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EngineConfig holds per-market actor and evaluator tunables.
type EngineConfig struct {
	// MailboxSize is the per-actor event ring capacity.
	MailboxSize int `toml:"mailbox_size"`
	// CoalesceWindow bounds how long an actor batches events before
	// processing the latest state.
	CoalesceWindow duration `toml:"coalesce_window"`
	EnterLockout   duration `toml:"enter_lockout"`
	ExitLockout    duration `toml:"exit_lockout"`
	// ReversalWindow blocks trend-gated orders after a direction flip.
	ReversalWindow duration `toml:"reversal_window"`
}

// SchedulerConfig holds periodic task intervals.
type SchedulerConfig struct {
	MarketRefresh  duration `toml:"market_refresh"`
	TradeResolver  duration `toml:"trade_resolver"`
	Report         duration `toml:"report"`
	Archive        duration `toml:"archive"`
	StaleOrderAge  duration `toml:"stale_order_age"`
	MisfireGrace   duration `toml:"misfire_grace"`
	ExcludedTags   []string `toml:"excluded_tags"`
	IncludeNegRisk bool     `toml:"include_neg_risk"`
}

// ServerConfig holds HTTP control-surface parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	DiscordWebhook string   `toml:"discord_webhook"`
	Kinds          []string `toml:"kinds"`
}

// StrategyConfig declares one named strategy and its rules.
type StrategyConfig struct {
	Name  string       `toml:"name"`
	Rules []RuleConfig `toml:"rule"`
}

// RuleConfig declares one rule of a strategy. Predicate is a JSON document in
// the market-selector DSL, parsed at startup.
type RuleConfig struct {
	Predicate  string  `toml:"predicate"`
	EnterMin   float64 `toml:"enter_min"`
	EnterMax   float64 `toml:"enter_max"`
	Size       float64 `toml:"size"`
	StopLoss   float64 `toml:"stop_loss"`
	TakeProfit float64 `toml:"take_profit"`
	Slippage   float64 `toml:"slippage"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "40ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			GammaHost:     "https://gamma-api.polymarket.com",
			DataHost:      "https://data-api.polymarket.com",
			WsHost:        "wss://ws-subscriptions-clob.polymarket.com",
			ChainID:       137,
			SignatureType: 2,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "hunter",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "hunter",
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "hunter-archives",
			ForcePathStyle: true,
		},
		Engine: EngineConfig{
			MailboxSize:    256,
			CoalesceWindow: duration{40 * time.Millisecond},
			EnterLockout:   duration{180 * time.Second},
			ExitLockout:    duration{10 * time.Second},
			ReversalWindow: duration{60 * time.Second},
		},
		Scheduler: SchedulerConfig{
			MarketRefresh: duration{5 * time.Minute},
			TradeResolver: duration{5 * time.Minute},
			Report:        duration{time.Hour},
			Archive:       duration{24 * time.Hour},
			StaleOrderAge: duration{300 * time.Second},
			MisfireGrace:  duration{60 * time.Second},
			ExcludedTags:  []string{"Sports", "15M"},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Kinds: []string{"trade", "resolution", "error"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode. In "observe"
// mode the executor is not started, so intents are recorded but never placed.
var validModes = map[string]bool{
	"trade":   true,
	"observe": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, observe)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet and API credentials are required only when we place orders.
	if strings.ToLower(c.Mode) == "trade" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode trade")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		if !c.ClobAPI.Set() {
			errs = append(errs, "clob_api: key, secret, and passphrase must all be set for mode trade")
		}
	}

	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType != 0 && c.Polymarket.SignatureType != 1 && c.Polymarket.SignatureType != 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 0 (EOA), 1 (proxy), or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.KeyPrefix == "" {
		errs = append(errs, "redis: key_prefix must not be empty")
	}

	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty when enabled")
	}

	if c.Engine.MailboxSize < 1 {
		errs = append(errs, "engine: mailbox_size must be >= 1")
	}
	if c.Engine.CoalesceWindow.Duration < 0 {
		errs = append(errs, "engine: coalesce_window must not be negative")
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	for i, s := range c.Strategies {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("strategy[%d]: name must not be empty", i))
		}
		if len(s.Rules) == 0 {
			errs = append(errs, fmt.Sprintf("strategy[%d] %s: at least one rule is required", i, s.Name))
		}
		for j, r := range s.Rules {
			if r.Size <= 0 {
				errs = append(errs, fmt.Sprintf("strategy %s rule[%d]: size must be > 0", s.Name, j))
			}
			if r.EnterMin < 0 || r.EnterMax > 1 || r.EnterMin > r.EnterMax {
				errs = append(errs, fmt.Sprintf("strategy %s rule[%d]: enter band [%v, %v] is invalid", s.Name, j, r.EnterMin, r.EnterMax))
			}
			if r.Slippage < 0 {
				errs = append(errs, fmt.Sprintf("strategy %s rule[%d]: slippage must not be negative", s.Name, j))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
