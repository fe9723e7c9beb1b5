// Package config defines the top-level configuration for polydesk and
// provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYDESK_* environment variables.
type Config struct {
	API      APIConfig      `toml:"api"`
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	Funds    FundsConfig    `toml:"funds"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Prefs    PrefsConfig    `toml:"prefs"`
	Server   ServerConfig   `toml:"server"`
	Tracker  TrackerConfig  `toml:"tracker"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// APIConfig holds the backend REST endpoint and client behaviour.
type APIConfig struct {
	BaseURL       string   `toml:"base_url"`
	Timeout       duration `toml:"timeout"`
	RatePerSec    float64  `toml:"rate_per_sec"`
	Burst         int      `toml:"burst"`
	ReadRetries   int      `toml:"read_retries"`
	SubmitRetries int      `toml:"submit_retries"`
	PageSize      int      `toml:"page_size"`
	CacheTTL      duration `toml:"cache_ttl"`
}

// WalletConfig holds the signing wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// Configured reports whether any key source is set.
func (w WalletConfig) Configured() bool {
	return w.PrivateKey != "" || w.EncryptedKeyPath != ""
}

// ChainConfig holds the RPC endpoint and token contract.
type ChainConfig struct {
	RPCURL           string `toml:"rpc_url"`
	ChainID          int64  `toml:"chain_id"`
	USDCAddress      string `toml:"usdc_address"`
	FundsSource      string `toml:"funds_source"`
	ApprovalGasLimit int64  `toml:"approval_gas_limit"`
}

// FundsConfig holds the allowance/balance gate parameters.
type FundsConfig struct {
	BufferRate       float64  `toml:"buffer_rate"`
	ApprovalHeadroom float64  `toml:"approval_headroom"`
	GasFallbackUSD   float64  `toml:"gas_fallback_usd"`
	GasRefresh       duration `toml:"gas_refresh"`
	SettleDelay      duration `toml:"settle_delay"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds the submission journal's PostgreSQL parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// S3Config holds S3-compatible object storage parameters for order exports.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PrefsConfig holds the local preference database location.
type PrefsConfig struct {
	Path string `toml:"path"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// ServerConfig holds the local dashboard server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
}

// TrackerConfig controls background order status polling.
type TrackerConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
	MaxPages int      `toml:"max_pages"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Chain IDs the client knows how to talk to.
const (
	ChainPolygon int64 = 137
	ChainAmoy    int64 = 80002
)

// DefaultUSDCAddress is native USDC on Polygon.
const DefaultUSDCAddress = "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL:       "http://localhost:3000",
			Timeout:       duration{30 * time.Second},
			RatePerSec:    10,
			Burst:         20,
			ReadRetries:   2,
			SubmitRetries: 1,
			PageSize:      21,
			CacheTTL:      duration{30 * time.Second},
		},
		Chain: ChainConfig{
			RPCURL:           "https://polygon-rpc.com",
			ChainID:          ChainPolygon,
			USDCAddress:      DefaultUSDCAddress,
			FundsSource:      "api",
			ApprovalGasLimit: 80_000,
		},
		Funds: FundsConfig{
			BufferRate:       0.01,
			ApprovalHeadroom: 1.2,
			GasFallbackUSD:   0.01,
			GasRefresh:       duration{60 * time.Second},
			SettleDelay:      duration{3 * time.Second},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "polydesk",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polydesk-exports",
			Prefix:         "polydesk",
			ForcePathStyle: true,
		},
		Prefs: PrefsConfig{
			Path: "polydesk.db",
		},
		Server: ServerConfig{
			Port:        8090,
			CORSOrigins: []string{"*"},
			RateLimit:   120,
		},
		Tracker: TrackerConfig{
			Interval: duration{15 * time.Second},
			MaxPages: 5,
		},
		Notify: NotifyConfig{
			Events: []string{"order.filled", "order.failed"},
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validFundsSources = map[string]bool{
	"api":   true,
	"chain": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// API
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("api: base_url %q must be an absolute URL", c.API.BaseURL))
	}
	if c.API.Timeout.Duration <= 0 {
		errs = append(errs, "api: timeout must be > 0")
	}
	if c.API.RatePerSec <= 0 {
		errs = append(errs, "api: rate_per_sec must be > 0")
	}
	if c.API.Burst < 1 {
		errs = append(errs, "api: burst must be >= 1")
	}
	if c.API.ReadRetries < 0 || c.API.SubmitRetries < 0 {
		errs = append(errs, "api: read_retries and submit_retries must be >= 0")
	}
	if c.API.PageSize < 1 {
		errs = append(errs, "api: page_size must be >= 1")
	}

	// Wallet
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Chain
	if c.Chain.ChainID != ChainPolygon && c.Chain.ChainID != ChainAmoy {
		errs = append(errs, fmt.Sprintf("chain: chain_id must be %d (Polygon) or %d (Amoy), got %d", ChainPolygon, ChainAmoy, c.Chain.ChainID))
	}
	if !common.IsHexAddress(c.Chain.USDCAddress) {
		errs = append(errs, fmt.Sprintf("chain: usdc_address %q is not a hex address", c.Chain.USDCAddress))
	}
	if !validFundsSources[c.Chain.FundsSource] {
		errs = append(errs, fmt.Sprintf("chain: funds_source must be api or chain, got %q", c.Chain.FundsSource))
	}
	if c.Chain.FundsSource == "chain" && c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url is required when funds_source is chain")
	}
	if c.Chain.ApprovalGasLimit <= 0 {
		errs = append(errs, "chain: approval_gas_limit must be > 0")
	}

	// Funds
	if c.Funds.BufferRate < 0 {
		errs = append(errs, "funds: buffer_rate must be >= 0")
	}
	if c.Funds.ApprovalHeadroom < 1 {
		errs = append(errs, "funds: approval_headroom must be >= 1")
	}
	if c.Funds.GasFallbackUSD < 0 {
		errs = append(errs, "funds: gas_fallback_usd must be >= 0")
	}
	if c.Funds.GasRefresh.Duration <= 0 {
		errs = append(errs, "funds: gas_refresh must be > 0")
	}
	if c.Funds.SettleDelay.Duration < 0 {
		errs = append(errs, "funds: settle_delay must be >= 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	// Tracker
	if c.Tracker.Enabled {
		if c.Tracker.Interval.Duration <= 0 {
			errs = append(errs, "tracker: interval must be > 0")
		}
		if c.Tracker.MaxPages <= 0 {
			errs = append(errs, "tracker: max_pages must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
