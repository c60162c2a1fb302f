// Package config defines the top-level configuration for the polymarket bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYBOT_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Builder    BuilderConfig    `toml:"builder"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Engine     EngineConfig     `toml:"engine"`
	LogLevel   string           `toml:"log_level"`
}

// EngineConfig holds the trio arbitrage engine's thresholds, sizing,
// minting, and reconciliation parameters.
type EngineConfig struct {
	StalenessMs              int64   `toml:"staleness_ms"`
	CooldownMs               int64   `toml:"cooldown_ms"`
	MinProfitBps             float64 `toml:"min_profit_bps"`
	MinProfitAbs             float64 `toml:"min_profit_abs"`
	OpportunityTimeoutMs     int64   `toml:"opportunity_timeout_ms"`
	DefaultSize              float64 `toml:"default_size"`
	SellArbEnabled           bool    `toml:"sell_arb_enabled"`
	LiquidityReserveMultiple float64 `toml:"liquidity_reserve_multiple"`
	MintDedupWindowSec       int     `toml:"mint_dedup_window_sec"`
	MintJobTTLSec            int     `toml:"mint_job_ttl_sec"`
	MintTimeoutSec           int     `toml:"mint_timeout_sec"`
	ReconcileDelaySec        int     `toml:"reconcile_delay_sec"`
	ReconcileDedupWindowSec  int     `toml:"reconcile_dedup_window_sec"`
	DispatchTimeoutSec       int     `toml:"dispatch_timeout_sec"`
	BalanceRefreshSec        int     `toml:"balance_refresh_sec"`
	InventoryRefreshSec      int     `toml:"inventory_refresh_sec"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	SafeAddress      string `toml:"safe_address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host"`
	GammaHost     string `toml:"gamma_host"`
	WsHost        string `toml:"ws_host"`
	ChainID       int    `toml:"chain_id"`
	SignatureType int    `toml:"signature_type"`

	// ExchangeAddress and NegRiskExchangeAddress are the EIP-712 verifying
	// contracts used when signing orders on standard and negRisk markets,
	// respectively. They must never be swapped: a negRisk order signed
	// against ExchangeAddress (or vice versa) is rejected by the exchange
	// and invalidates the rest of its batch.
	ExchangeAddress        string `toml:"exchange_address"`
	NegRiskExchangeAddress string `toml:"neg_risk_exchange_address"`

	// RPCURL is the Polygon JSON-RPC endpoint used for balance reads and
	// Safe execTransaction broadcast. CTFAddress and NegRiskAdapterAddress
	// are the conditional-tokens and negRisk-adapter contracts the minter
	// calls splitPosition against; CollateralTokenAddress is the USDC
	// token the minter checks liquidity reserve against.
	RPCURL                 string `toml:"rpc_url"`
	CTFAddress              string `toml:"ctf_address"`
	NegRiskAdapterAddress   string `toml:"neg_risk_adapter_address"`
	CollateralTokenAddress  string `toml:"collateral_token_address"`
}

// BuilderConfig holds Polymarket builder-program API credentials.
type BuilderConfig struct {
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
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
	PoolMinConns  int    `toml:"pool_min_conns"`
	ApiURL        string `toml:"api_url"`
	ApiKey        string `toml:"api_key"`
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
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds the cold-storage retention schedule for settled arb
// executions.
type ArchiveConfig struct {
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// ServerConfig holds HTTP server parameters for the health surface.
type ServerConfig struct {
	Port int `toml:"port"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			GammaHost:     "https://gamma-api.polymarket.com",
			WsHost:        "wss://ws-subscriptions-clob.polymarket.com",
			ChainID:       137,
			SignatureType: 2,
			// Polygon mainnet CTF Exchange and negRisk adapter contracts.
			ExchangeAddress:        "0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e",
			NegRiskExchangeAddress: "0xC5d563A36AE78145C45a50134d48A1215220f80a",
			RPCURL:                 "https://polygon-rpc.com",
			CTFAddress:             "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045",
			NegRiskAdapterAddress:  "0xC5d563A36AE78145C45a50134d48A1215220f80a",
			CollateralTokenAddress: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
		},
		Supabase: SupabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polybot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Cron:          "0 3 1 * *",
		},
		Server: ServerConfig{
			Port: 8000,
		},
		Engine: EngineConfig{
			StalenessMs:              5000,
			CooldownMs:               1000,
			MinProfitBps:             5,
			MinProfitAbs:             0,
			OpportunityTimeoutMs:     20000,
			DefaultSize:              30,
			SellArbEnabled:           false,
			LiquidityReserveMultiple: 6,
			MintDedupWindowSec:       30,
			MintJobTTLSec:            300,
			MintTimeoutSec:           120,
			ReconcileDelaySec:        3,
			ReconcileDedupWindowSec:  60,
			DispatchTimeoutSec:       5,
			BalanceRefreshSec:        5,
			InventoryRefreshSec:      10,
		},
		LogLevel: "info",
	}
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

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — at least one credential source must be specified; the engine
	// always signs and dispatches orders.
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Polymarket endpoints
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType != 1 && c.Polymarket.SignatureType != 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 1 (EOA) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}
	if c.Polymarket.ExchangeAddress == "" {
		errs = append(errs, "polymarket: exchange_address must not be empty")
	}
	if c.Polymarket.NegRiskExchangeAddress == "" {
		errs = append(errs, "polymarket: neg_risk_exchange_address must not be empty")
	}
	if c.Polymarket.RPCURL == "" {
		errs = append(errs, "polymarket: rpc_url must not be empty")
	}
	if c.Polymarket.CTFAddress == "" {
		errs = append(errs, "polymarket: ctf_address must not be empty")
	}
	if c.Polymarket.NegRiskAdapterAddress == "" {
		errs = append(errs, "polymarket: neg_risk_adapter_address must not be empty")
	}
	if c.Polymarket.CollateralTokenAddress == "" {
		errs = append(errs, "polymarket: collateral_token_address must not be empty")
	}

	// Builder — all three fields must be set together, or all empty.
	bk := c.Builder.ApiKey != ""
	bs := c.Builder.ApiSecret != ""
	bp := c.Builder.ApiPassphrase != ""
	if bk || bs || bp {
		if !(bk && bs && bp) {
			errs = append(errs, "builder: api_key, api_secret, and api_passphrase must all be set together")
		}
	}

	// Supabase
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
	if c.Supabase.PoolMinConns < 0 {
		errs = append(errs, "supabase: pool_min_conns must be >= 0")
	}
	if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
		errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}
	if c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty")
	}

	// Archive
	if c.Archive.RetentionDays <= 0 {
		errs = append(errs, "archive: retention_days must be > 0")
	}

	// Engine
	if c.Engine.OpportunityTimeoutMs <= 0 {
		errs = append(errs, "engine: opportunity_timeout_ms must be > 0")
	}
	if c.Engine.DefaultSize <= 0 {
		errs = append(errs, "engine: default_size must be > 0")
	}
	if c.Engine.LiquidityReserveMultiple <= 0 {
		errs = append(errs, "engine: liquidity_reserve_multiple must be > 0")
	}
	if c.Engine.DispatchTimeoutSec <= 0 {
		errs = append(errs, "engine: dispatch_timeout_sec must be > 0")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
