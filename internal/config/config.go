// Package config defines the top-level configuration for the wallet-link
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by WALLETLINK_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Builder    BuilderConfig    `toml:"builder"`
	Custody    CustodyConfig    `toml:"custody"`
	Backend    BackendConfig    `toml:"backend"`
	Escrow     EscrowConfig     `toml:"escrow"`
	Link       LinkConfig       `toml:"link"`
	Store      StoreConfig      `toml:"store"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds the operator's local signing key.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// HasKey reports whether a local key source is configured.
func (w WalletConfig) HasKey() bool {
	return w.PrivateKey != "" || w.EncryptedKeyPath != ""
}

// PolymarketConfig holds exchange endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost    string `toml:"clob_host"`
	RelayerHost string `toml:"relayer_host"`
	RPCURL      string `toml:"rpc_url"`
	ChainID     int64  `toml:"chain_id"`
	// AuthNonce is the nonce signed into ClobAuth when deriving or creating
	// API credentials.
	AuthNonce int64 `toml:"auth_nonce"`
}

// BuilderConfig holds the relayer's builder HMAC credentials.
type BuilderConfig struct {
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// Enabled reports whether any builder field is set.
func (b BuilderConfig) Enabled() bool {
	return b.ApiKey != "" || b.ApiSecret != "" || b.ApiPassphrase != ""
}

// CustodyConfig holds the custodial wallet provider credentials.
type CustodyConfig struct {
	BaseURL   string   `toml:"base_url"`
	AppID     string   `toml:"app_id"`
	AppSecret string   `toml:"app_secret"`
	Timeout   duration `toml:"timeout"`
}

// Enabled reports whether custodial wallets are configured.
func (c CustodyConfig) Enabled() bool {
	return c.AppID != "" || c.AppSecret != ""
}

// BackendConfig holds the order and claim submission backend.
type BackendConfig struct {
	BaseURL string   `toml:"base_url"`
	Token   string   `toml:"token"`
	Timeout duration `toml:"timeout"`
	// OrdersPerMinute caps order submissions per user; zero disables it.
	OrdersPerMinute int `toml:"orders_per_minute"`
}

// EscrowConfig holds the fee escrow deployment and rates. An empty contract
// disables fee authorizations.
type EscrowConfig struct {
	Contract         string   `toml:"contract"`
	FeeBps           int64    `toml:"fee_bps"`
	ReferrerShareBps int64    `toml:"referrer_share_bps"`
	PerformanceBps   int64    `toml:"performance_bps"`
	DeadlineTTL      duration `toml:"deadline_ttl"`
}

// LinkConfig holds the default link switches.
type LinkConfig struct {
	AllowDeploy  bool     `toml:"allow_deploy"`
	AutoApprove  bool     `toml:"auto_approve"`
	SponsorGas   bool     `toml:"sponsor_gas"`
	PollInterval duration `toml:"poll_interval"`
	LockTTL      duration `toml:"lock_ttl"`
}

// Credential store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StorePebble   = "pebble"
)

// StoreConfig selects where linked accounts are persisted.
type StoreConfig struct {
	Backend    string `toml:"backend"`
	PebblePath string `toml:"pebble_path"`
	// SecretKey seals API secrets at rest. Required for persistent backends.
	SecretKey string `toml:"secret_key"`
	// CacheTTL expires redis-held accounts; zero keeps them.
	CacheTTL duration `toml:"cache_ttl"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables
// redis; locks, rate limits and progress fall back to in-process versions.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters. An empty Bucket
// disables archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled           bool     `toml:"enabled"`
	Port              int      `toml:"port"`
	CORSOrigins       []string `toml:"cors_origins"`
	APIKey            string   `toml:"api_key"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:    "https://clob.polymarket.com",
			RelayerHost: "https://relayer-v2.polymarket.com",
			RPCURL:      "https://polygon-rpc.com",
			ChainID:     137,
		},
		Custody: CustodyConfig{
			BaseURL: "https://api.privy.io",
			Timeout: duration{30 * time.Second},
		},
		Backend: BackendConfig{
			Timeout:         duration{30 * time.Second},
			OrdersPerMinute: 30,
		},
		Escrow: EscrowConfig{
			DeadlineTTL: duration{10 * time.Minute},
		},
		Link: LinkConfig{
			AllowDeploy:  false,
			AutoApprove:  true,
			SponsorGas:   true,
			PollInterval: duration{2 * time.Second},
			LockTTL:      duration{10 * time.Minute},
		},
		Store: StoreConfig{
			Backend:    StoreMemory,
			PebblePath: "data/walletlink",
			CacheTTL:   duration{15 * time.Minute},
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "require",
			PoolMaxConns:  10,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			PoolSize: 20,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Prefix:         "walletlink",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:           true,
			Port:              8000,
			CORSOrigins:       []string{"http://localhost:3000", "http://localhost:5173"},
			RequestsPerMinute: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"link.completed", "link.failed", "order.rejected", "claim.submitted"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"link":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, link)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet: the link CLI always signs with the local key; the server can
	// run on custodial wallets alone.
	if c.Mode == "link" && !c.Wallet.HasKey() {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode link")
	}
	if c.Mode == "server" && !c.Wallet.HasKey() && !c.Custody.Enabled() {
		errs = append(errs, "wallet: configure a local key or custody credentials")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Polymarket endpoints
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.ChainID != 137 && c.Polymarket.ChainID != 80002 {
		errs = append(errs, fmt.Sprintf("polymarket: chain_id must be 137 (Polygon) or 80002 (Amoy), got %d", c.Polymarket.ChainID))
	}
	if c.Polymarket.AuthNonce < 0 {
		errs = append(errs, "polymarket: auth_nonce must be >= 0")
	}

	// Builder: all three fields must be set together, or all empty.
	if c.Builder.Enabled() && (c.Builder.ApiKey == "" || c.Builder.ApiSecret == "" || c.Builder.ApiPassphrase == "") {
		errs = append(errs, "builder: api_key, api_secret, and api_passphrase must all be set together")
	}

	// Custody
	if c.Custody.Enabled() && (c.Custody.BaseURL == "" || c.Custody.AppID == "" || c.Custody.AppSecret == "") {
		errs = append(errs, "custody: base_url, app_id, and app_secret must all be set together")
	}

	// Backend: only the server submits orders and claims.
	if c.Mode == "server" {
		if c.Backend.BaseURL == "" {
			errs = append(errs, "backend: base_url must not be empty for mode server")
		}
		if c.Backend.Token == "" {
			errs = append(errs, "backend: token must not be empty for mode server")
		}
	}
	if c.Backend.OrdersPerMinute < 0 {
		errs = append(errs, "backend: orders_per_minute must be >= 0")
	}

	// Escrow
	for _, rate := range []struct {
		name string
		v    int64
	}{
		{"fee_bps", c.Escrow.FeeBps},
		{"referrer_share_bps", c.Escrow.ReferrerShareBps},
		{"performance_bps", c.Escrow.PerformanceBps},
	} {
		if rate.v < 0 || rate.v > 10_000 {
			errs = append(errs, fmt.Sprintf("escrow: %s must be within 0..10000, got %d", rate.name, rate.v))
		}
	}
	if c.Escrow.Contract != "" {
		if !common.IsHexAddress(c.Escrow.Contract) {
			errs = append(errs, fmt.Sprintf("escrow: contract %q is not an address", c.Escrow.Contract))
		}
		if c.Escrow.DeadlineTTL.Duration <= 0 {
			errs = append(errs, "escrow: deadline_ttl must be positive")
		}
	}

	// Link
	if c.Link.PollInterval.Duration <= 0 {
		errs = append(errs, "link: poll_interval must be positive")
	}

	// Store
	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres, StoreRedis, StorePebble:
		if c.Store.SecretKey == "" {
			errs = append(errs, fmt.Sprintf("store: secret_key is required for backend %s", c.Store.Backend))
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: memory, postgres, redis, pebble)", c.Store.Backend))
	}
	if c.Store.Backend == StorePebble && c.Store.PebblePath == "" {
		errs = append(errs, "store: pebble_path must not be empty for backend pebble")
	}
	if c.Store.Backend == StoreRedis && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty for store backend redis")
	}

	// Supabase
	if c.Store.Backend == StorePostgres {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
	}

	// Redis
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty when bucket is set")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RequestsPerMinute < 0 {
			errs = append(errs, "server: requests_per_minute must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
