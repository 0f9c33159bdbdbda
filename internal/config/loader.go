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
// built-in defaults, applies DISPATCH_* environment variable overrides, and
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

// applyEnvOverrides reads well-known DISPATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Dispatch ──
	setBool(&cfg.Dispatch.AutoFailover, "DISPATCH_AUTO_FAILOVER")
	setBool(&cfg.Dispatch.HealthCheckEnabled, "DISPATCH_HEALTH_CHECK_ENABLED")
	setInt(&cfg.Dispatch.MaxFailoverAttempts, "DISPATCH_MAX_FAILOVER_ATTEMPTS")
	setInt(&cfg.Dispatch.FailureThreshold, "DISPATCH_FAILURE_THRESHOLD")
	setFloat64(&cfg.Dispatch.AcceptanceThresholdPct, "DISPATCH_ACCEPTANCE_THRESHOLD_PCT")
	setDuration(&cfg.Dispatch.SlotDuration, "DISPATCH_SLOT_DURATION")
	setDuration(&cfg.Dispatch.ConfirmationTimeout, "DISPATCH_CONFIRMATION_TIMEOUT")
	setDuration(&cfg.Dispatch.BundleTimeout, "DISPATCH_BUNDLE_TIMEOUT")
	setStr(&cfg.Dispatch.Commitment, "DISPATCH_COMMITMENT")
	setBool(&cfg.Dispatch.SkipPreflight, "DISPATCH_SKIP_PREFLIGHT")
	setStringSlice(&cfg.Dispatch.TipAccounts, "DISPATCH_TIP_ACCOUNTS")

	// ── Stealth ──
	setStr(&cfg.Stealth.Mode, "DISPATCH_STEALTH_MODE")
	setInt(&cfg.Stealth.FirstBundlePercent, "DISPATCH_STEALTH_FIRST_BUNDLE_PERCENT")
	setInt(&cfg.Stealth.SpreadBlocks, "DISPATCH_STEALTH_SPREAD_BLOCKS")
	setFloat64(&cfg.Stealth.AtomicTipSOL, "DISPATCH_STEALTH_ATOMIC_TIP_SOL")

	// ── Storage ──
	setStr(&cfg.Storage.PostgresDSN, "DISPATCH_POSTGRES_DSN")
	setStr(&cfg.Storage.ClickhouseDSN, "DISPATCH_CLICKHOUSE_DSN")
	setBool(&cfg.Storage.RunMigrations, "DISPATCH_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "DISPATCH_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DISPATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DISPATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DISPATCH_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "DISPATCH_REDIS_TLS_ENABLED")

	// ── Server ──
	setStr(&cfg.Server.Addr, "DISPATCH_SERVER_ADDR")

	// ── Operation ──
	setStr(&cfg.Operation.KeysPath, "DISPATCH_KEYS_PATH")
	setFloat64(&cfg.Operation.TotalSOL, "DISPATCH_TOTAL_SOL")
	setStr(&cfg.Operation.Shape, "DISPATCH_SHAPE")
	setStr(&cfg.Operation.Destination, "DISPATCH_DESTINATION")
	setInt64(&cfg.Operation.Seed, "DISPATCH_SEED")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "DISPATCH_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

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
