package domain

import (
	"fmt"
	"time"
)

// EndpointRole identifies how an endpoint accepts transactions.
type EndpointRole string

const (
	// RoleDirect is a plain JSON-RPC node accepting sendTransaction.
	RoleDirect EndpointRole = "direct"
	// RoleBlockEngine accepts atomic bundles (sendBundle).
	RoleBlockEngine EndpointRole = "blockEngine"
)

// String returns the string representation of EndpointRole.
func (r EndpointRole) String() string {
	return string(r)
}

// IsValid checks if the role is a known value.
func (r EndpointRole) IsValid() bool {
	return r == RoleDirect || r == RoleBlockEngine
}

// ParseEndpointRole parses a configuration value into an EndpointRole.
func ParseEndpointRole(s string) (EndpointRole, error) {
	r := EndpointRole(s)
	if !r.IsValid() {
		return "", &ConfigError{Field: "role", Reason: fmt.Sprintf("unknown endpoint role %q", s)}
	}
	return r, nil
}

// Default endpoint parameters.
const (
	DefaultEndpointTimeout     = 10 * time.Second
	DefaultEndpointMaxRetries  = 2
	DefaultHealthCheckInterval = 15 * time.Second
	DefaultMaxBundleSize       = 5
)

// Endpoint is a network endpoint transactions can be routed through.
type Endpoint struct {
	ID                  string
	URL                 string
	WSURL               string // optional websocket URL for signature subscriptions
	Role                EndpointRole
	Priority            int // lower value is preferred
	Timeout             time.Duration
	MaxRetries          int
	HealthCheckInterval time.Duration
	MaxBundleSize       int // block engines only
	RateLimitPerSec     int // 0 disables rate limiting
}

// WithDefaults returns a copy with zero-valued tunables replaced by defaults.
func (e Endpoint) WithDefaults() Endpoint {
	if e.Timeout <= 0 {
		e.Timeout = DefaultEndpointTimeout
	}
	if e.MaxRetries < 0 {
		e.MaxRetries = 0
	}
	if e.HealthCheckInterval <= 0 {
		e.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if e.Role == RoleBlockEngine && e.MaxBundleSize <= 0 {
		e.MaxBundleSize = DefaultMaxBundleSize
	}
	return e
}

// EndpointHealth is a point-in-time view of an endpoint's health state.
type EndpointHealth struct {
	Endpoint            Endpoint
	Healthy             bool
	LatencyMs           float64 // exponentially weighted moving average
	ConsecutiveFailures int
	LastError           string
	LastCheckedAt       time.Time
	EffectivePriority   int // priority after manual switches
}
