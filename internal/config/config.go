// Package config defines the top-level configuration for the arbitrage
// monitor and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYARB_* environment variables.
type Config struct {
	Chain     ChainConfig     `toml:"chain"`
	Tokens    []TokenConfig   `toml:"tokens"`
	Venues    []VenueConfig   `toml:"venues"`
	Scan      ScanConfig      `toml:"scan"`
	Profit    ProfitConfig    `toml:"profit"`
	Financing FinancingConfig `toml:"financing"`
	Execution ExecutionConfig `toml:"execution"`
	Wallet    WalletConfig    `toml:"wallet"`
	Supabase  SupabaseConfig  `toml:"supabase"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ChainConfig holds the RPC endpoint list and the identity every endpoint
// must report.
type ChainConfig struct {
	RPCURLs       []string `toml:"rpc_urls"`
	ChainID       uint64   `toml:"chain_id"`
	DialTimeout   duration `toml:"dial_timeout"`
	CallTimeout   duration `toml:"call_timeout"`
	FailoverDelay duration `toml:"failover_delay"`
	// RPCRatePerSec throttles outgoing JSON-RPC calls; 0 disables throttling.
	RPCRatePerSec float64 `toml:"rpc_rate_per_sec"`
}

// TokenConfig registers one ERC-20 token.
type TokenConfig struct {
	Symbol   string `toml:"symbol"`
	Address  string `toml:"address"`
	Decimals int32  `toml:"decimals"`
}

// VenueConfig registers one Uniswap-V2 style router.
type VenueConfig struct {
	Name   string `toml:"name"`
	Router string `toml:"router"`
}

// ScanConfig controls the scan cadence and trade sizing.
type ScanConfig struct {
	NormalInterval      duration `toml:"normal_interval"`
	AcceleratedInterval duration `toml:"accelerated_interval"`
	Accelerated         bool     `toml:"accelerated"`
	UnitAmount          float64  `toml:"unit_amount"`
	ScaleFactor         float64  `toml:"scale_factor"`
	// LockEnabled takes a Redis lock per cycle so replicas do not scan the
	// same tick.
	LockEnabled  bool `toml:"lock_enabled"`
	ArchiveEvery int  `toml:"archive_every"`
}

// ProfitConfig holds the gas model and the profitability threshold.
type ProfitConfig struct {
	MinProfit    float64 `toml:"min_profit"`
	GasUnits     uint64  `toml:"gas_units"`
	NativeToFiat float64 `toml:"native_to_fiat"`
}

// FinancingConfig holds flash-loan parameters.
type FinancingConfig struct {
	Enabled            bool     `toml:"enabled"`
	PoolAddress        string   `toml:"pool_address"`
	DefaultPremiumRate float64  `toml:"default_premium_rate"`
	MaxFlashLoan       float64  `toml:"max_flash_loan"`
	PremiumCacheTTL    duration `toml:"premium_cache_ttl"`
}

// ExecutionConfig controls the execution gateway. When Enabled is false, or
// no wallet key is available, dispatches are simulated.
type ExecutionConfig struct {
	Enabled                  bool     `toml:"enabled"`
	ReceiverAddress          string   `toml:"receiver_address"`
	MaxGasPriceGwei          float64  `toml:"max_gas_price_gwei"`
	AcceleratedGasMultiplier float64  `toml:"accelerated_gas_multiplier"`
	GasLimit                 uint64   `toml:"gas_limit"`
	DedupTTL                 duration `toml:"dedup_ttl"`
	QueueSize                int      `toml:"queue_size"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	QuoteTTL     duration `toml:"quote_ttl"`
	StreamMaxLen int64    `toml:"stream_max_len"`
	Namespace    string   `toml:"namespace"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
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
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	QueueSize         int      `toml:"queue_size"`
}

// Defaults returns a Config populated with the Polygon mainnet deployment
// values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURLs: []string{
				"https://polygon-rpc.com",
				"https://rpc.ankr.com/polygon",
				"https://polygon-bor-rpc.publicnode.com",
				"https://polygon.llamarpc.com",
			},
			ChainID:       137,
			DialTimeout:   duration{15 * time.Second},
			CallTimeout:   duration{15 * time.Second},
			FailoverDelay: duration{2 * time.Second},
		},
		Tokens: []TokenConfig{
			{Symbol: "WMATIC", Address: "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270", Decimals: 18},
			{Symbol: "USDC", Address: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", Decimals: 6},
			{Symbol: "WETH", Address: "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", Decimals: 18},
		},
		Venues: []VenueConfig{
			{Name: "QuickSwap", Router: "0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff"},
			{Name: "SushiSwap", Router: "0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506"},
		},
		Scan: ScanConfig{
			NormalInterval:      duration{30 * time.Second},
			AcceleratedInterval: duration{3 * time.Second},
			UnitAmount:          1,
			ScaleFactor:         1000,
			LockEnabled:         true,
			ArchiveEvery:        20,
		},
		Profit: ProfitConfig{
			MinProfit:    0.30,
			GasUnits:     300_000,
			NativeToFiat: 1500,
		},
		Financing: FinancingConfig{
			Enabled:            true,
			PoolAddress:        "0x794a61358D6845594F94dc1DB02A252b5b4814aD",
			DefaultPremiumRate: 0.0005,
			MaxFlashLoan:       20_000_000,
			PremiumCacheTTL:    duration{5 * time.Minute},
		},
		Execution: ExecutionConfig{
			Enabled:                  false,
			MaxGasPriceGwei:          500,
			AcceleratedGasMultiplier: 1.5,
			GasLimit:                 500_000,
			DedupTTL:                 duration{time.Minute},
			QueueSize:                16,
		},
		Supabase: SupabaseConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:      true,
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MaxRetries:   3,
			QuoteTTL:     duration{5 * time.Minute},
			StreamMaxLen: 10_000,
			Namespace:    "polyarb",
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polyarb-reports",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMin: 120,
		},
		Notify: NotifyConfig{
			Events:    []string{"opportunity", "dispatch", "error", "endpoint_switch"},
			QueueSize: 64,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"execute": true,
	"full":    true,
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

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, execute, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if len(c.Chain.RPCURLs) == 0 {
		errs = append(errs, "chain: rpc_urls must list at least one endpoint")
	}
	for i, u := range c.Chain.RPCURLs {
		if strings.TrimSpace(u) == "" {
			errs = append(errs, fmt.Sprintf("chain: rpc_urls[%d] is empty", i))
		}
	}
	if c.Chain.ChainID == 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.DialTimeout.Duration <= 0 {
		errs = append(errs, "chain: dial_timeout must be > 0")
	}
	if c.Chain.FailoverDelay.Duration <= 0 {
		errs = append(errs, "chain: failover_delay must be > 0")
	}
	if c.Chain.RPCRatePerSec < 0 {
		errs = append(errs, "chain: rpc_rate_per_sec must be >= 0")
	}

	// Tokens and venues
	if len(c.Tokens) < 2 {
		errs = append(errs, "tokens: at least two tokens are required to form a pair")
	}
	seen := make(map[string]bool, len(c.Tokens))
	for i, t := range c.Tokens {
		if t.Symbol == "" {
			errs = append(errs, fmt.Sprintf("tokens[%d]: symbol must not be empty", i))
		}
		if seen[t.Symbol] {
			errs = append(errs, fmt.Sprintf("tokens[%d]: duplicate symbol %q", i, t.Symbol))
		}
		seen[t.Symbol] = true
		if !common.IsHexAddress(t.Address) {
			errs = append(errs, fmt.Sprintf("tokens[%d]: invalid address %q", i, t.Address))
		}
		if t.Decimals < 0 || t.Decimals > 36 {
			errs = append(errs, fmt.Sprintf("tokens[%d]: decimals must be 0-36, got %d", i, t.Decimals))
		}
	}
	if len(c.Venues) < 2 {
		errs = append(errs, "venues: at least two venues are required to compare prices")
	}
	for i, v := range c.Venues {
		if v.Name == "" {
			errs = append(errs, fmt.Sprintf("venues[%d]: name must not be empty", i))
		}
		if !common.IsHexAddress(v.Router) {
			errs = append(errs, fmt.Sprintf("venues[%d]: invalid router %q", i, v.Router))
		}
	}

	// Scan
	if c.Scan.NormalInterval.Duration <= 0 {
		errs = append(errs, "scan: normal_interval must be > 0")
	}
	if c.Scan.AcceleratedInterval.Duration <= 0 {
		errs = append(errs, "scan: accelerated_interval must be > 0")
	}
	if c.Scan.UnitAmount <= 0 {
		errs = append(errs, "scan: unit_amount must be > 0")
	}
	if c.Scan.ScaleFactor <= 0 {
		errs = append(errs, "scan: scale_factor must be > 0")
	}

	// Profit
	if c.Profit.MinProfit < 0 {
		errs = append(errs, "profit: min_profit must be >= 0")
	}
	if c.Profit.NativeToFiat <= 0 {
		errs = append(errs, "profit: native_to_fiat must be > 0")
	}

	// Financing
	if c.Financing.Enabled {
		if !common.IsHexAddress(c.Financing.PoolAddress) {
			errs = append(errs, fmt.Sprintf("financing: invalid pool_address %q", c.Financing.PoolAddress))
		}
		if c.Financing.DefaultPremiumRate < 0 || c.Financing.DefaultPremiumRate >= 1 {
			errs = append(errs, "financing: default_premium_rate must be in [0, 1)")
		}
		if c.Financing.MaxFlashLoan <= 0 {
			errs = append(errs, "financing: max_flash_loan must be > 0")
		}
	}

	// Execution. A missing key is not a validation error: the live gateway
	// is simply unavailable and dispatches fall back to simulation.
	if c.Execution.Enabled {
		if !common.IsHexAddress(c.Execution.ReceiverAddress) {
			errs = append(errs, fmt.Sprintf("execution: invalid receiver_address %q", c.Execution.ReceiverAddress))
		}
		if c.Execution.MaxGasPriceGwei <= 0 {
			errs = append(errs, "execution: max_gas_price_gwei must be > 0")
		}
		if c.Execution.AcceleratedGasMultiplier < 1 {
			errs = append(errs, "execution: accelerated_gas_multiplier must be >= 1")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}
	if c.Execution.QueueSize < 1 {
		errs = append(errs, "execution: queue_size must be >= 1")
	}

	// Supabase
	if c.Supabase.Enabled {
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
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
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

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if c.Notify.QueueSize < 1 {
		errs = append(errs, "notify: queue_size must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Interval returns the scan interval for the given cadence flag.
func (s ScanConfig) Interval(accelerated bool) time.Duration {
	if accelerated {
		return s.AcceleratedInterval.Duration
	}
	return s.NormalInterval.Duration
}
