package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// envPrefix namespaces every environment override.
const envPrefix = "WALLETLINK_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WALLETLINK_* environment variable overrides, and
// returns the final Config. A missing file is not an error, so a deployment
// can be configured from the environment alone. The returned Config has NOT
// been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WALLETLINK_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.RelayerHost, "POLYMARKET_RELAYER_HOST")
	setStr(&cfg.Polymarket.RPCURL, "POLYMARKET_RPC_URL")
	setInt64(&cfg.Polymarket.ChainID, "POLYMARKET_CHAIN_ID")
	setInt64(&cfg.Polymarket.AuthNonce, "POLYMARKET_AUTH_NONCE")

	// ── Builder ──
	setStr(&cfg.Builder.ApiKey, "BUILDER_API_KEY")
	setStr(&cfg.Builder.ApiSecret, "BUILDER_API_SECRET")
	setStr(&cfg.Builder.ApiPassphrase, "BUILDER_API_PASSPHRASE")

	// ── Custody ──
	setStr(&cfg.Custody.BaseURL, "CUSTODY_BASE_URL")
	setStr(&cfg.Custody.AppID, "CUSTODY_APP_ID")
	setStr(&cfg.Custody.AppSecret, "CUSTODY_APP_SECRET")
	setDuration(&cfg.Custody.Timeout, "CUSTODY_TIMEOUT")

	// ── Backend ──
	setStr(&cfg.Backend.BaseURL, "BACKEND_BASE_URL")
	setStr(&cfg.Backend.Token, "BACKEND_TOKEN")
	setDuration(&cfg.Backend.Timeout, "BACKEND_TIMEOUT")
	setInt(&cfg.Backend.OrdersPerMinute, "BACKEND_ORDERS_PER_MINUTE")

	// ── Escrow ──
	setStr(&cfg.Escrow.Contract, "ESCROW_CONTRACT")
	setInt64(&cfg.Escrow.FeeBps, "ESCROW_FEE_BPS")
	setInt64(&cfg.Escrow.ReferrerShareBps, "ESCROW_REFERRER_SHARE_BPS")
	setInt64(&cfg.Escrow.PerformanceBps, "ESCROW_PERFORMANCE_BPS")
	setDuration(&cfg.Escrow.DeadlineTTL, "ESCROW_DEADLINE_TTL")

	// ── Link ──
	setBool(&cfg.Link.AllowDeploy, "LINK_ALLOW_DEPLOY")
	setBool(&cfg.Link.AutoApprove, "LINK_AUTO_APPROVE")
	setBool(&cfg.Link.SponsorGas, "LINK_SPONSOR_GAS")
	setDuration(&cfg.Link.PollInterval, "LINK_POLL_INTERVAL")
	setDuration(&cfg.Link.LockTTL, "LINK_LOCK_TTL")

	// ── Store ──
	setStr(&cfg.Store.Backend, "STORE_BACKEND")
	setStr(&cfg.Store.PebblePath, "STORE_PEBBLE_PATH")
	setStr(&cfg.Store.SecretKey, "STORE_SECRET_KEY")
	setDuration(&cfg.Store.CacheTTL, "STORE_CACHE_TTL")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "SUPABASE_POOL_MAX_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.Prefix, "S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setInt(&cfg.Server.RequestsPerMinute, "SERVER_REQUESTS_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the prefixed
// environment variable is present and non-empty.
// ---------------------------------------------------------------------------

func getenv(key string) string {
	return os.Getenv(envPrefix + key)
}

func setStr(dst *string, key string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := getenv(key); v != "" {
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
