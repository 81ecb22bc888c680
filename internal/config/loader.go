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
// built-in defaults, applies POLYARB_* environment variable overrides, and
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

// applyEnvOverrides reads well-known POLYARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStringSlice(&cfg.Chain.RPCURLs, "POLYARB_CHAIN_RPC_URLS")
	setUint64(&cfg.Chain.ChainID, "POLYARB_CHAIN_ID")
	setDuration(&cfg.Chain.DialTimeout, "POLYARB_CHAIN_DIAL_TIMEOUT")
	setDuration(&cfg.Chain.CallTimeout, "POLYARB_CHAIN_CALL_TIMEOUT")
	setDuration(&cfg.Chain.FailoverDelay, "POLYARB_CHAIN_FAILOVER_DELAY")
	setFloat64(&cfg.Chain.RPCRatePerSec, "POLYARB_CHAIN_RPC_RATE_PER_SEC")

	// ── Scan ──
	setDuration(&cfg.Scan.NormalInterval, "POLYARB_SCAN_NORMAL_INTERVAL")
	setDuration(&cfg.Scan.AcceleratedInterval, "POLYARB_SCAN_ACCELERATED_INTERVAL")
	setBool(&cfg.Scan.Accelerated, "POLYARB_SCAN_ACCELERATED")
	setFloat64(&cfg.Scan.UnitAmount, "POLYARB_SCAN_UNIT_AMOUNT")
	setFloat64(&cfg.Scan.ScaleFactor, "POLYARB_SCAN_SCALE_FACTOR")
	setBool(&cfg.Scan.LockEnabled, "POLYARB_SCAN_LOCK_ENABLED")

	// ── Profit ──
	setFloat64(&cfg.Profit.MinProfit, "POLYARB_PROFIT_MIN_PROFIT")
	setUint64(&cfg.Profit.GasUnits, "POLYARB_PROFIT_GAS_UNITS")
	setFloat64(&cfg.Profit.NativeToFiat, "POLYARB_PROFIT_NATIVE_TO_FIAT")

	// ── Financing ──
	setBool(&cfg.Financing.Enabled, "POLYARB_FINANCING_ENABLED")
	setStr(&cfg.Financing.PoolAddress, "POLYARB_FINANCING_POOL_ADDRESS")
	setFloat64(&cfg.Financing.DefaultPremiumRate, "POLYARB_FINANCING_DEFAULT_PREMIUM_RATE")
	setFloat64(&cfg.Financing.MaxFlashLoan, "POLYARB_FINANCING_MAX_FLASH_LOAN")

	// ── Execution ──
	setBool(&cfg.Execution.Enabled, "POLYARB_EXECUTION_ENABLED")
	setStr(&cfg.Execution.ReceiverAddress, "POLYARB_EXECUTION_RECEIVER_ADDRESS")
	setFloat64(&cfg.Execution.MaxGasPriceGwei, "POLYARB_EXECUTION_MAX_GAS_PRICE_GWEI")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYARB_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.PrivateKey, "PRIVATE_KEY") // compatibility alias
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYARB_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYARB_WALLET_KEY_PASSWORD")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "POLYARB_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "POLYARB_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "POLYARB_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "POLYARB_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "POLYARB_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "POLYARB_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "POLYARB_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "POLYARB_SUPABASE_SSL_MODE")
	setBool(&cfg.Supabase.RunMigrations, "POLYARB_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYARB_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "POLYARB_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "POLYARB_REDIS_NAMESPACE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYARB_S3_SECRET_KEY")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POLYARB_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYARB_MODE")
	setStr(&cfg.LogLevel, "POLYARB_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
