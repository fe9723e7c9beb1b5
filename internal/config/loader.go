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
// built-in defaults, applies POLYDESK_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYDESK_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── API ──
	setStr(&cfg.API.BaseURL, "POLYDESK_API_BASE_URL")
	setDuration(&cfg.API.Timeout, "POLYDESK_API_TIMEOUT")
	setFloat64(&cfg.API.RatePerSec, "POLYDESK_API_RATE_PER_SEC")
	setInt(&cfg.API.Burst, "POLYDESK_API_BURST")
	setInt(&cfg.API.ReadRetries, "POLYDESK_API_READ_RETRIES")
	setInt(&cfg.API.SubmitRetries, "POLYDESK_API_SUBMIT_RETRIES")
	setInt(&cfg.API.PageSize, "POLYDESK_API_PAGE_SIZE")
	setDuration(&cfg.API.CacheTTL, "POLYDESK_API_CACHE_TTL")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYDESK_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYDESK_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYDESK_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "POLYDESK_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "POLYDESK_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.USDCAddress, "POLYDESK_CHAIN_USDC_ADDRESS")
	setStr(&cfg.Chain.FundsSource, "POLYDESK_CHAIN_FUNDS_SOURCE")
	setInt64(&cfg.Chain.ApprovalGasLimit, "POLYDESK_CHAIN_APPROVAL_GAS_LIMIT")

	// ── Funds ──
	setFloat64(&cfg.Funds.BufferRate, "POLYDESK_FUNDS_BUFFER_RATE")
	setFloat64(&cfg.Funds.ApprovalHeadroom, "POLYDESK_FUNDS_APPROVAL_HEADROOM")
	setFloat64(&cfg.Funds.GasFallbackUSD, "POLYDESK_FUNDS_GAS_FALLBACK_USD")
	setDuration(&cfg.Funds.GasRefresh, "POLYDESK_FUNDS_GAS_REFRESH")
	setDuration(&cfg.Funds.SettleDelay, "POLYDESK_FUNDS_SETTLE_DELAY")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYDESK_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYDESK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYDESK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYDESK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYDESK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYDESK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYDESK_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POLYDESK_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POLYDESK_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYDESK_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYDESK_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYDESK_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYDESK_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYDESK_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYDESK_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYDESK_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYDESK_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYDESK_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYDESK_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYDESK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYDESK_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYDESK_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "POLYDESK_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "POLYDESK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYDESK_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYDESK_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYDESK_S3_FORCE_PATH_STYLE")

	// ── Prefs ──
	setStr(&cfg.Prefs.Path, "POLYDESK_PREFS_PATH")

	// ── Server ──
	setInt(&cfg.Server.Port, "POLYDESK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYDESK_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POLYDESK_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "POLYDESK_SERVER_RATE_LIMIT")

	// ── Tracker ──
	setBool(&cfg.Tracker.Enabled, "POLYDESK_TRACKER_ENABLED")
	setDuration(&cfg.Tracker.Interval, "POLYDESK_TRACKER_INTERVAL")
	setInt(&cfg.Tracker.MaxPages, "POLYDESK_TRACKER_MAX_PAGES")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYDESK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYDESK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYDESK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYDESK_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "POLYDESK_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
