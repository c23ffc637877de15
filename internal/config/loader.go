package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
)

// validHTTPMethods contains all valid HTTP method names.
var validHTTPMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true,
	"DELETE": true, "PATCH": true, "OPTIONS": true,
}

// Loader handles configuration loading and parsing.
type Loader struct {
	envPattern *regexp.Regexp
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`),
	}
}

// Load reads and parses a configuration file.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return l.Parse(data)
}

// Parse parses configuration from YAML bytes.
func (l *Loader) Parse(data []byte) (*Config, error) {
	expanded := l.expandEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i := range cfg.Routes {
		cfg.Routes[i].ApplyDefaults()
	}

	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values and
// ${VAR_NAME:-default} with the default when the variable is unset. Unset
// variables without a default are left as-is so validation can surface them.
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := l.envPattern.FindStringSubmatch(match)
		varName, hasDefault, def := groups[1], groups[2] != "", groups[3]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		if hasDefault {
			return def
		}
		return match
	})
}

func (l *Loader) validate(cfg *Config) error {
	if len(cfg.Routes) == 0 {
		return fmt.Errorf("at least one route is required")
	}

	fallbackPaths := make(map[string]bool, len(cfg.Fallbacks))
	for _, p := range cfg.Fallbacks {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("fallback path %q must start with /", p)
		}
		fallbackPaths[p] = true
	}

	seen := make(map[string]bool, len(cfg.Routes))
	for i := range cfg.Routes {
		r := &cfg.Routes[i]
		if r.ID == "" {
			return fmt.Errorf("route %d: id is required", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("route %s: duplicate id", r.ID)
		}
		seen[r.ID] = true

		if !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("route %s: path must start with /", r.ID)
		}
		if err := validateTarget(r.Target); err != nil {
			return fmt.Errorf("route %s: %w", r.ID, err)
		}
		for _, m := range r.Methods {
			if !validHTTPMethods[strings.ToUpper(m)] {
				return fmt.Errorf("route %s: invalid method %q", r.ID, m)
			}
		}
		if r.Fallback != "" && !fallbackPaths[r.Fallback] {
			return fmt.Errorf("route %s: fallback %q not declared in fallbacks", r.ID, r.Fallback)
		}
		if err := validateRoutePolicies(r); err != nil {
			return fmt.Errorf("route %s: %w", r.ID, err)
		}
	}

	if cfg.Session.Enabled && cfg.Redis.Address == "" {
		return fmt.Errorf("session store requires a redis address")
	}

	return nil
}

func validateTarget(target string) error {
	if target == "" {
		return fmt.Errorf("target is required")
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid target URI: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("target host is required")
	}
	return nil
}

func validateRoutePolicies(r *RouteConfig) error {
	cb := r.CircuitBreaker
	if cb.FailureRateThreshold > 100 {
		return fmt.Errorf("circuit breaker failure_rate_threshold must be <= 100, got %v", cb.FailureRateThreshold)
	}
	if cb.PermittedCallsHalfOpen > cb.SlidingWindowSize {
		return fmt.Errorf("circuit breaker permitted_calls_half_open (%d) exceeds sliding_window_size (%d)",
			cb.PermittedCallsHalfOpen, cb.SlidingWindowSize)
	}

	for _, m := range r.Retry.Methods {
		if !validHTTPMethods[strings.ToUpper(m)] {
			return fmt.Errorf("retry: invalid method %q", m)
		}
	}
	for _, s := range r.Retry.RetryableStatuses {
		if s < 400 || s > 599 {
			return fmt.Errorf("retry: status %d is not a retryable error class", s)
		}
	}
	for _, k := range r.Retry.Exceptions {
		if k != "connect" && k != "timeout" {
			return fmt.Errorf("retry: unknown exception kind %q", k)
		}
	}

	rl := r.RateLimit
	if rl.Enabled {
		if rl.ReplenishRate <= 0 {
			return fmt.Errorf("rate limit replenish_rate must be > 0")
		}
		if rl.BurstCapacity < rl.ReplenishRate {
			return fmt.Errorf("rate limit burst_capacity (%d) must be >= replenish_rate (%d)",
				rl.BurstCapacity, rl.ReplenishRate)
		}
		if rl.RequestedTokens > rl.BurstCapacity {
			return fmt.Errorf("rate limit requested_tokens (%d) exceeds burst_capacity (%d)",
				rl.RequestedTokens, rl.BurstCapacity)
		}
		switch {
		case rl.Mode == "distributed", rl.Mode == "local":
		default:
			return fmt.Errorf("rate limit mode must be distributed or local, got %q", rl.Mode)
		}
		switch {
		case rl.KeyResolver == "constant", rl.KeyResolver == "ip", rl.KeyResolver == "principal":
		case strings.HasPrefix(rl.KeyResolver, "header:") && len(rl.KeyResolver) > len("header:"):
		default:
			return fmt.Errorf("unknown key resolver %q", rl.KeyResolver)
		}
	}

	return nil
}
