package config

import (
	"time"
)

// Config represents the complete edge service configuration.
type Config struct {
	Listener  ListenerConfig `yaml:"listener"`
	Admin     AdminConfig    `yaml:"admin"`
	Logging   LoggingConfig  `yaml:"logging"`
	Redis     RedisConfig    `yaml:"redis"`
	Session   SessionConfig  `yaml:"session"`
	Shutdown  ShutdownConfig `yaml:"shutdown"`
	Fallbacks []string       `yaml:"fallbacks"` // fallback endpoint paths served by the gateway
	Routes    []RouteConfig  `yaml:"routes"`
}

// ListenerConfig defines the main HTTP listener.
type ListenerConfig struct {
	Address           string        `yaml:"address"` // e.g. ":9000"
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes"`
}

// AdminConfig defines the admin/observability listener.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // e.g. ":9090"
}

// LoggingConfig defines structured logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // debug, info, warn, error
	Encoding string `yaml:"encoding"` // json or console
}

// ShutdownConfig defines graceful shutdown settings.
type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout"` // drain deadline, default 30s
}

// RedisConfig defines the shared store connection used for distributed
// rate-limit buckets and session state.
type RedisConfig struct {
	Address     string        `yaml:"address"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// SessionConfig defines the externalized session store adapter.
type SessionConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Namespace  string        `yaml:"namespace"`   // key prefix, default "edge:session"
	Timeout    time.Duration `yaml:"timeout"`     // idle expiry, default 30m
	CookieName string        `yaml:"cookie_name"` // default "SESSION"
}

// RouteConfig defines a single proxied route: a path predicate, one resolved
// target URI, and the resilience policies applied to calls on it.
type RouteConfig struct {
	ID             string               `yaml:"id"`
	Path           string               `yaml:"path"` // prefix predicate, e.g. "/books"
	Methods        []string             `yaml:"methods"`
	Target         string               `yaml:"target"` // downstream base URI
	StripPrefix    bool                 `yaml:"strip_prefix"`
	Fallback       string               `yaml:"fallback"` // fallback endpoint path, optional
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	TimeLimiter    TimeLimiterConfig    `yaml:"time_limiter"`
	Retry          RetryConfig          `yaml:"retry"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

// CircuitBreakerConfig defines the per-route failure-tracking state machine.
type CircuitBreakerConfig struct {
	Enabled                bool          `yaml:"enabled"`
	SlidingWindowSize      int           `yaml:"sliding_window_size"`       // default 20
	FailureRateThreshold   float64       `yaml:"failure_rate_threshold"`    // percent, default 50
	WaitDurationOpen       time.Duration `yaml:"wait_duration_open"`        // default 15s
	PermittedCallsHalfOpen int           `yaml:"permitted_calls_half_open"` // default 5
}

// TimeLimiterConfig bounds the duration of each downstream call attempt.
type TimeLimiterConfig struct {
	Timeout time.Duration `yaml:"timeout"` // default 5s
}

// RetryConfig defines bounded re-execution of idempotent requests.
type RetryConfig struct {
	Enabled           bool          `yaml:"enabled"`
	MaxRetries        int           `yaml:"max_retries"` // retries beyond the first attempt, default 3
	Methods           []string      `yaml:"methods"`     // default GET
	RetryableStatuses []int         `yaml:"retryable_statuses"`
	Exceptions        []string      `yaml:"exceptions"` // transport failure kinds: "connect", "timeout"
	Backoff           BackoffConfig `yaml:"backoff"`
}

// BackoffConfig parameterizes the exponential retry backoff.
type BackoffConfig struct {
	First           time.Duration `yaml:"first"`      // default 50ms
	Max             time.Duration `yaml:"max"`        // default 500ms
	Multiplier      float64       `yaml:"multiplier"` // default 2
	BasedOnPrevious bool          `yaml:"based_on_previous"`
}

// RateLimitConfig defines the token-bucket admission policy for a route.
type RateLimitConfig struct {
	Enabled         bool   `yaml:"enabled"`
	ReplenishRate   int    `yaml:"replenish_rate"`   // tokens per second
	BurstCapacity   int    `yaml:"burst_capacity"`   // bucket cap
	RequestedTokens int    `yaml:"requested_tokens"` // cost per request, default 1
	KeyResolver     string `yaml:"key_resolver"`     // "constant" (default), "ip", "principal", "header:<name>"
	Mode            string `yaml:"mode"`             // "distributed" (default) or "local"
}

// DefaultConfig returns a configuration populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Listener: ListenerConfig{
			Address:           ":9000",
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
		},
		Admin: AdminConfig{
			Address: ":9090",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
		Redis: RedisConfig{
			Address:     "localhost:6379",
			DialTimeout: 2 * time.Second,
			ReadTimeout: 1 * time.Second,
		},
		Session: SessionConfig{
			Namespace:  "edge:session",
			Timeout:    30 * time.Minute,
			CookieName: "SESSION",
		},
		Shutdown: ShutdownConfig{
			Timeout: 30 * time.Second,
		},
	}
}

// ApplyDefaults fills zero-valued policy fields on a route.
func (r *RouteConfig) ApplyDefaults() {
	if r.CircuitBreaker.SlidingWindowSize <= 0 {
		r.CircuitBreaker.SlidingWindowSize = 20
	}
	if r.CircuitBreaker.FailureRateThreshold <= 0 {
		r.CircuitBreaker.FailureRateThreshold = 50
	}
	if r.CircuitBreaker.WaitDurationOpen <= 0 {
		r.CircuitBreaker.WaitDurationOpen = 15 * time.Second
	}
	if r.CircuitBreaker.PermittedCallsHalfOpen <= 0 {
		r.CircuitBreaker.PermittedCallsHalfOpen = 5
	}
	if r.TimeLimiter.Timeout <= 0 {
		r.TimeLimiter.Timeout = 5 * time.Second
	}
	if r.Retry.MaxRetries <= 0 {
		r.Retry.MaxRetries = 3
	}
	if len(r.Retry.Methods) == 0 {
		r.Retry.Methods = []string{"GET"}
	}
	if len(r.Retry.RetryableStatuses) == 0 {
		r.Retry.RetryableStatuses = []int{500, 502, 503, 504}
	}
	if len(r.Retry.Exceptions) == 0 {
		r.Retry.Exceptions = []string{"connect", "timeout"}
	}
	if r.Retry.Backoff.First <= 0 {
		r.Retry.Backoff.First = 50 * time.Millisecond
	}
	if r.Retry.Backoff.Max <= 0 {
		r.Retry.Backoff.Max = 500 * time.Millisecond
	}
	if r.Retry.Backoff.Multiplier <= 0 {
		r.Retry.Backoff.Multiplier = 2
	}
	if r.RateLimit.RequestedTokens <= 0 {
		r.RateLimit.RequestedTokens = 1
	}
	if r.RateLimit.KeyResolver == "" {
		r.RateLimit.KeyResolver = "constant"
	}
	if r.RateLimit.Mode == "" {
		r.RateLimit.Mode = "distributed"
	}
}
