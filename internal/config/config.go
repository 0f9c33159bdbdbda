// Package config defines the dispatch engine configuration and provides
// validation helpers.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"solana-dispatch/internal/domain"
	"solana-dispatch/internal/planner"
	"solana-dispatch/internal/solana"
	"solana-dispatch/internal/wallet"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DISPATCH_* environment variables.
type Config struct {
	LogLevel  string           `toml:"log_level"`
	Dispatch  DispatchConfig   `toml:"dispatch"`
	Stealth   StealthConfig    `toml:"stealth"`
	Endpoints []EndpointConfig `toml:"endpoints"`
	Storage   StorageConfig    `toml:"storage"`
	Redis     RedisConfig      `toml:"redis"`
	Server    ServerConfig     `toml:"server"`
	Operation OperationConfig  `toml:"operation"`
}

// DispatchConfig holds controller, submitter and tracker parameters.
type DispatchConfig struct {
	AutoFailover           bool     `toml:"auto_failover"`
	HealthCheckEnabled     bool     `toml:"health_check_enabled"`
	MaxFailoverAttempts    int      `toml:"max_failover_attempts"`
	FailureThreshold       int      `toml:"failure_threshold"`
	AcceptanceThresholdPct float64  `toml:"acceptance_threshold_pct"`
	SlotDuration           duration `toml:"slot_duration"`
	ConfirmationTimeout    duration `toml:"confirmation_timeout"`
	BundleTimeout          duration `toml:"bundle_timeout"`
	PollInterval           duration `toml:"poll_interval"`
	RetryDelay             duration `toml:"retry_delay"`
	Commitment             string   `toml:"commitment"`
	SkipPreflight          bool     `toml:"skip_preflight"`
	MaxConcurrency         int      `toml:"max_concurrency"`
	// TipAccounts overrides the built-in block-engine tip account fallback list.
	TipAccounts []string `toml:"tip_accounts"`
}

// StealthConfig holds grouping and randomization parameters.
type StealthConfig struct {
	Mode               string  `toml:"mode"`
	FirstBundlePercent int     `toml:"first_bundle_percent"`
	SpreadBlocks       int     `toml:"spread_blocks"`
	RandomizeAmounts   bool    `toml:"randomize_amounts"`
	AmountVariancePct  float64 `toml:"amount_variance_pct"`
	RandomizeTimings   bool    `toml:"randomize_timings"`
	TimingVariancePct  float64 `toml:"timing_variance_pct"`
	AtomicTipSOL       float64 `toml:"atomic_tip_sol"`
	Conservative       bool    `toml:"conservative"`
	WhaleFraction      float64 `toml:"whale_fraction"`
	WhaleSmallSharePct float64 `toml:"whale_small_share_pct"`
}

// EndpointConfig describes one RPC or block-engine endpoint.
type EndpointConfig struct {
	ID                  string   `toml:"id"`
	URL                 string   `toml:"url"`
	WSURL               string   `toml:"ws_url"`
	Role                string   `toml:"role"`
	Priority            int      `toml:"priority"`
	Timeout             duration `toml:"timeout"`
	MaxRetries          int      `toml:"max_retries"`
	HealthCheckInterval duration `toml:"health_check_interval"`
	MaxBundleSize       int      `toml:"max_bundle_size"`
	RateLimitPerSec     int      `toml:"rate_limit_per_sec"`
}

// StorageConfig selects the summary sinks. Empty DSNs disable a sink.
type StorageConfig struct {
	PostgresDSN   string `toml:"postgres_dsn"`
	ClickhouseDSN string `toml:"clickhouse_dsn"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds the shared rate-limiter connection. Disabled means in-memory limits.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// ServerConfig holds HTTP control surface parameters.
type ServerConfig struct {
	Addr            string   `toml:"addr"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// OperationConfig holds the defaults of a one-shot CLI operation.
type OperationConfig struct {
	KeysPath string  `toml:"keys_path"`
	TotalSOL float64 `toml:"total_sol"`
	Shape    string  `toml:"shape"`
	// Destination receives each wallet's transfer.
	Destination string `toml:"destination"`
	// Seed fixes the plan's randomness. 0 picks a time-based seed.
	Seed int64 `toml:"seed"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "400ms" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// Endpoints have no default.
func Defaults() Config {
	st := domain.DefaultStealthConfig()
	return Config{
		LogLevel: "info",
		Dispatch: DispatchConfig{
			AutoFailover:           true,
			HealthCheckEnabled:     true,
			MaxFailoverAttempts:    2,
			FailureThreshold:       3,
			AcceptanceThresholdPct: 100,
			SlotDuration:           duration{400 * time.Millisecond},
			ConfirmationTimeout:    duration{30 * time.Second},
			BundleTimeout:          duration{60 * time.Second},
			PollInterval:           duration{500 * time.Millisecond},
			RetryDelay:             duration{250 * time.Millisecond},
			Commitment:             string(solana.CommitmentConfirmed),
		},
		Stealth: StealthConfig{
			Mode:               string(st.Mode),
			FirstBundlePercent: st.FirstBundlePercent,
			SpreadBlocks:       st.SpreadBlocks,
			AmountVariancePct:  st.AmountVariancePct,
			TimingVariancePct:  st.TimingVariancePct,
			AtomicTipSOL:       st.AtomicTip.SOL(),
			WhaleFraction:      st.WhaleFraction,
			WhaleSmallSharePct: st.WhaleSmallSharePct,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "dispatch:rl:",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: duration{10 * time.Second},
		},
		Operation: OperationConfig{
			Shape: string(domain.ShapeEven),
		},
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks Config for invalid or missing values and returns a single
// error listing every problem.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Dispatch
	d := c.Dispatch
	if d.MaxFailoverAttempts < 0 {
		errs = append(errs, "dispatch: max_failover_attempts must be >= 0")
	}
	if d.FailureThreshold < 1 {
		errs = append(errs, "dispatch: failure_threshold must be >= 1")
	}
	if d.AcceptanceThresholdPct <= 0 || d.AcceptanceThresholdPct > 100 {
		errs = append(errs, fmt.Sprintf("dispatch: acceptance_threshold_pct must be in (0,100], got %g", d.AcceptanceThresholdPct))
	}
	for name, v := range map[string]time.Duration{
		"slot_duration":        d.SlotDuration.Duration,
		"confirmation_timeout": d.ConfirmationTimeout.Duration,
		"bundle_timeout":       d.BundleTimeout.Duration,
		"poll_interval":        d.PollInterval.Duration,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Sprintf("dispatch: %s must be positive", name))
		}
	}
	switch solana.Commitment(d.Commitment) {
	case solana.CommitmentConfirmed, solana.CommitmentFinalized:
	default:
		errs = append(errs, fmt.Sprintf("dispatch: commitment must be confirmed or finalized, got %q", d.Commitment))
	}
	if d.MaxConcurrency < 0 {
		errs = append(errs, "dispatch: max_concurrency must be >= 0")
	}
	for _, acc := range d.TipAccounts {
		if _, err := wallet.ParseAddress(acc); err != nil {
			errs = append(errs, fmt.Sprintf("dispatch: tip account %q: %v", acc, err))
		}
	}

	// Stealth
	if _, err := c.StealthParams(); err != nil {
		errs = append(errs, "stealth: "+err.Error())
	}

	// Endpoints
	if len(c.Endpoints) == 0 {
		errs = append(errs, "endpoints: at least one endpoint is required")
	}
	seen := make(map[string]bool, len(c.Endpoints))
	hasDirect := false
	for i, ep := range c.Endpoints {
		prefix := fmt.Sprintf("endpoints[%d]", i)
		if ep.ID == "" {
			errs = append(errs, prefix+": id must not be empty")
		} else if seen[ep.ID] {
			errs = append(errs, fmt.Sprintf("%s: duplicate id %q", prefix, ep.ID))
		}
		seen[ep.ID] = true

		role, err := domain.ParseEndpointRole(ep.Role)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: unknown role %q (valid: direct, blockEngine)", prefix, ep.Role))
		}
		hasDirect = hasDirect || role == domain.RoleDirect

		if u, err := url.Parse(ep.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Sprintf("%s: url must be an http(s) URL, got %q", prefix, ep.URL))
		}
		if ep.WSURL != "" {
			if u, err := url.Parse(ep.WSURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
				errs = append(errs, fmt.Sprintf("%s: ws_url must be a ws(s) URL, got %q", prefix, ep.WSURL))
			}
		}
		if ep.MaxRetries < 0 {
			errs = append(errs, prefix+": max_retries must be >= 0")
		}
		if ep.MaxBundleSize < 0 || ep.MaxBundleSize > domain.DefaultMaxBundleSize {
			errs = append(errs, fmt.Sprintf("%s: max_bundle_size must be in [0,%d]", prefix, domain.DefaultMaxBundleSize))
		}
		if ep.RateLimitPerSec < 0 {
			errs = append(errs, prefix+": rate_limit_per_sec must be >= 0")
		}
	}
	if len(c.Endpoints) > 0 && !hasDirect {
		errs = append(errs, "endpoints: at least one direct endpoint is required")
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}

	// Operation
	if _, err := domain.ParseDistributionShape(c.Operation.Shape); err != nil {
		errs = append(errs, fmt.Sprintf("operation: unknown shape %q (valid: even, random, fibonacci, whale)", c.Operation.Shape))
	}
	if c.Operation.TotalSOL < 0 {
		errs = append(errs, "operation: total_sol must be >= 0")
	}
	if c.Operation.Destination != "" {
		if _, err := wallet.ParseAddress(c.Operation.Destination); err != nil {
			errs = append(errs, fmt.Sprintf("operation: destination: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// StealthParams converts the [stealth] section and checks it against the planner's bounds.
func (c *Config) StealthParams() (domain.StealthConfig, error) {
	mode, err := domain.ParseStealthMode(c.Stealth.Mode)
	if err != nil {
		return domain.StealthConfig{}, err
	}
	if c.Stealth.AtomicTipSOL < 0 {
		return domain.StealthConfig{}, &domain.ConfigError{Field: "atomicTipAmount", Reason: "must be >= 0"}
	}
	s := domain.StealthConfig{
		Mode:               mode,
		FirstBundlePercent: c.Stealth.FirstBundlePercent,
		SpreadBlocks:       c.Stealth.SpreadBlocks,
		RandomizeAmounts:   c.Stealth.RandomizeAmounts,
		AmountVariancePct:  c.Stealth.AmountVariancePct,
		RandomizeTimings:   c.Stealth.RandomizeTimings,
		TimingVariancePct:  c.Stealth.TimingVariancePct,
		AtomicTip:          domain.LamportsFromSOL(c.Stealth.AtomicTipSOL),
		Conservative:       c.Stealth.Conservative,
		WhaleFraction:      c.Stealth.WhaleFraction,
		WhaleSmallSharePct: c.Stealth.WhaleSmallSharePct,
	}
	// Wallet count is only known per operation; check everything else with one wallet.
	if err := planner.Validate(domain.LamportsPerSOL, 1, domain.ShapeWhale, s); err != nil {
		return domain.StealthConfig{}, err
	}
	return s, nil
}

// DomainEndpoints converts the [[endpoints]] list, applying endpoint defaults.
func (c *Config) DomainEndpoints() ([]domain.Endpoint, error) {
	out := make([]domain.Endpoint, 0, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		role, err := domain.ParseEndpointRole(ep.Role)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Endpoint{
			ID:                  ep.ID,
			URL:                 ep.URL,
			WSURL:               ep.WSURL,
			Role:                role,
			Priority:            ep.Priority,
			Timeout:             ep.Timeout.Duration,
			MaxRetries:          ep.MaxRetries,
			HealthCheckInterval: ep.HealthCheckInterval.Duration,
			MaxBundleSize:       ep.MaxBundleSize,
			RateLimitPerSec:     ep.RateLimitPerSec,
		}.WithDefaults())
	}
	return out, nil
}

// SlogLevel maps log_level to a slog.Level. Unknown values map to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
