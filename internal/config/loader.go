package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HUNTER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HUNTER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "HUNTER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.FunderAddress, "HUNTER_WALLET_FUNDER_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "HUNTER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "HUNTER_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "HUNTER_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "HUNTER_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.DataHost, "HUNTER_POLYMARKET_DATA_HOST")
	setStr(&cfg.Polymarket.WsHost, "HUNTER_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "HUNTER_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "HUNTER_POLYMARKET_SIGNATURE_TYPE")

	// ── CLOB API credentials ──
	setStr(&cfg.ClobAPI.Key, "HUNTER_CLOB_API_KEY")
	setStr(&cfg.ClobAPI.Secret, "HUNTER_CLOB_API_SECRET")
	setStr(&cfg.ClobAPI.Passphrase, "HUNTER_CLOB_API_PASSPHRASE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "HUNTER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "HUNTER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HUNTER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HUNTER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HUNTER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HUNTER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HUNTER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HUNTER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HUNTER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HUNTER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "HUNTER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HUNTER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HUNTER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HUNTER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HUNTER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HUNTER_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "HUNTER_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "HUNTER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "HUNTER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HUNTER_S3_REGION")
	setStr(&cfg.S3.Bucket, "HUNTER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HUNTER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HUNTER_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "HUNTER_S3_FORCE_PATH_STYLE")

	// ── Engine ──
	setInt(&cfg.Engine.MailboxSize, "HUNTER_ENGINE_MAILBOX_SIZE")
	setDuration(&cfg.Engine.CoalesceWindow, "HUNTER_ENGINE_COALESCE_WINDOW")
	setDuration(&cfg.Engine.EnterLockout, "HUNTER_ENGINE_ENTER_LOCKOUT")
	setDuration(&cfg.Engine.ExitLockout, "HUNTER_ENGINE_EXIT_LOCKOUT")
	setDuration(&cfg.Engine.ReversalWindow, "HUNTER_ENGINE_REVERSAL_WINDOW")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.MarketRefresh, "HUNTER_SCHEDULER_MARKET_REFRESH")
	setDuration(&cfg.Scheduler.TradeResolver, "HUNTER_SCHEDULER_TRADE_RESOLVER")
	setDuration(&cfg.Scheduler.Report, "HUNTER_SCHEDULER_REPORT")
	setDuration(&cfg.Scheduler.Archive, "HUNTER_SCHEDULER_ARCHIVE")
	setDuration(&cfg.Scheduler.StaleOrderAge, "HUNTER_SCHEDULER_STALE_ORDER_AGE")
	setStringSlice(&cfg.Scheduler.ExcludedTags, "HUNTER_SCHEDULER_EXCLUDED_TAGS")
	setBool(&cfg.Scheduler.IncludeNegRisk, "HUNTER_SCHEDULER_INCLUDE_NEG_RISK")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "HUNTER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "HUNTER_SERVER_PORT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HUNTER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HUNTER_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Kinds, "HUNTER_NOTIFY_KINDS")

	// ── Top-level ──
	setStr(&cfg.Mode, "HUNTER_MODE")
	setStr(&cfg.LogLevel, "HUNTER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
