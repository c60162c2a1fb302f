package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known POLYBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.SafeAddress, "POLYBOT_WALLET_SAFE_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYBOT_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "POLYBOT_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "POLYBOT_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "POLYBOT_POLYMARKET_SIGNATURE_TYPE")
	setStr(&cfg.Polymarket.ExchangeAddress, "POLYBOT_POLYMARKET_EXCHANGE_ADDRESS")
	setStr(&cfg.Polymarket.NegRiskExchangeAddress, "POLYBOT_POLYMARKET_NEG_RISK_EXCHANGE_ADDRESS")
	setStr(&cfg.Polymarket.RPCURL, "POLYBOT_POLYMARKET_RPC_URL")
	setStr(&cfg.Polymarket.CTFAddress, "POLYBOT_POLYMARKET_CTF_ADDRESS")
	setStr(&cfg.Polymarket.NegRiskAdapterAddress, "POLYBOT_POLYMARKET_NEG_RISK_ADAPTER_ADDRESS")
	setStr(&cfg.Polymarket.CollateralTokenAddress, "POLYBOT_POLYMARKET_COLLATERAL_TOKEN_ADDRESS")

	// ── Builder ──
	setStr(&cfg.Builder.ApiKey, "POLYBOT_BUILDER_API_KEY")
	setStr(&cfg.Builder.ApiSecret, "POLYBOT_BUILDER_API_SECRET")
	setStr(&cfg.Builder.ApiPassphrase, "POLYBOT_BUILDER_API_PASSPHRASE")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "POLYBOT_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "POLYBOT_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "POLYBOT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "POLYBOT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "POLYBOT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "POLYBOT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "POLYBOT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "POLYBOT_SUPABASE_SSLMODE")
	setStr(&cfg.Supabase.SSLMode, "POLYBOT_SUPABASE_SSL_MODE") // compatibility alias
	setInt(&cfg.Supabase.PoolMaxConns, "POLYBOT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "POLYBOT_SUPABASE_POOL_MIN_CONNS")
	setStr(&cfg.Supabase.ApiURL, "POLYBOT_SUPABASE_API_URL")
	setStr(&cfg.Supabase.ApiKey, "POLYBOT_SUPABASE_API_KEY")
	setBool(&cfg.Supabase.RunMigrations, "POLYBOT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POLYBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "POLYBOT_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "POLYBOT_ARCHIVE_CRON")

	// ── Server ──
	setInt(&cfg.Server.Port, "POLYBOT_SERVER_PORT")

	// ── Engine ──
	setInt64(&cfg.Engine.StalenessMs, "POLYBOT_ENGINE_STALENESS_MS")
	setInt64(&cfg.Engine.CooldownMs, "POLYBOT_ENGINE_COOLDOWN_MS")
	setFloat64(&cfg.Engine.MinProfitBps, "POLYBOT_ENGINE_MIN_PROFIT_BPS")
	setFloat64(&cfg.Engine.MinProfitAbs, "POLYBOT_ENGINE_MIN_PROFIT_ABS")
	setInt64(&cfg.Engine.OpportunityTimeoutMs, "POLYBOT_ENGINE_OPPORTUNITY_TIMEOUT_MS")
	setFloat64(&cfg.Engine.DefaultSize, "POLYBOT_ENGINE_DEFAULT_SIZE")
	setBool(&cfg.Engine.SellArbEnabled, "POLYBOT_ENGINE_SELL_ARB_ENABLED")
	setFloat64(&cfg.Engine.LiquidityReserveMultiple, "POLYBOT_ENGINE_LIQUIDITY_RESERVE_MULTIPLE")
	setInt(&cfg.Engine.MintDedupWindowSec, "POLYBOT_ENGINE_MINT_DEDUP_WINDOW_SEC")
	setInt(&cfg.Engine.MintJobTTLSec, "POLYBOT_ENGINE_MINT_JOB_TTL_SEC")
	setInt(&cfg.Engine.MintTimeoutSec, "POLYBOT_ENGINE_MINT_TIMEOUT_SEC")
	setInt(&cfg.Engine.ReconcileDelaySec, "POLYBOT_ENGINE_RECONCILE_DELAY_SEC")
	setInt(&cfg.Engine.ReconcileDedupWindowSec, "POLYBOT_ENGINE_RECONCILE_DEDUP_WINDOW_SEC")
	setInt(&cfg.Engine.DispatchTimeoutSec, "POLYBOT_ENGINE_DISPATCH_TIMEOUT_SEC")
	setInt(&cfg.Engine.BalanceRefreshSec, "POLYBOT_ENGINE_BALANCE_REFRESH_SEC")
	setInt(&cfg.Engine.InventoryRefreshSec, "POLYBOT_ENGINE_INVENTORY_REFRESH_SEC")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "POLYBOT_LOG_LEVEL")
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
