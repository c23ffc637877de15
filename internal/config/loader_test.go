package config

import (
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
routes:
  - id: catalog-route
    path: /books
    target: http://localhost:9001
`

func TestParseMinimalConfig(t *testing.T) {
	cfg, err := NewLoader().Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if len(cfg.Routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(cfg.Routes))
	}
	r := cfg.Routes[0]
	if r.ID != "catalog-route" {
		t.Errorf("unexpected id %q", r.ID)
	}

	// Policy defaults
	if r.CircuitBreaker.SlidingWindowSize != 20 {
		t.Errorf("expected window 20, got %d", r.CircuitBreaker.SlidingWindowSize)
	}
	if r.CircuitBreaker.FailureRateThreshold != 50 {
		t.Errorf("expected threshold 50, got %v", r.CircuitBreaker.FailureRateThreshold)
	}
	if r.CircuitBreaker.WaitDurationOpen != 15*time.Second {
		t.Errorf("expected wait 15s, got %v", r.CircuitBreaker.WaitDurationOpen)
	}
	if r.CircuitBreaker.PermittedCallsHalfOpen != 5 {
		t.Errorf("expected 5 half-open calls, got %d", r.CircuitBreaker.PermittedCallsHalfOpen)
	}
	if r.TimeLimiter.Timeout != 5*time.Second {
		t.Errorf("expected time limit 5s, got %v", r.TimeLimiter.Timeout)
	}
	if r.Retry.MaxRetries != 3 {
		t.Errorf("expected 3 retries, got %d", r.Retry.MaxRetries)
	}
	if len(r.Retry.Methods) != 1 || r.Retry.Methods[0] != "GET" {
		t.Errorf("expected retry methods [GET], got %v", r.Retry.Methods)
	}
	if r.Retry.Backoff.First != 50*time.Millisecond || r.Retry.Backoff.Max != 500*time.Millisecond {
		t.Errorf("unexpected backoff defaults: %+v", r.Retry.Backoff)
	}
	if r.RateLimit.RequestedTokens != 1 {
		t.Errorf("expected requested tokens 1, got %d", r.RateLimit.RequestedTokens)
	}
	if r.RateLimit.KeyResolver != "constant" {
		t.Errorf("expected constant key resolver, got %q", r.RateLimit.KeyResolver)
	}

	// Global defaults
	if cfg.Listener.Address != ":9000" {
		t.Errorf("expected listener :9000, got %q", cfg.Listener.Address)
	}
	if cfg.Session.Namespace != "edge:session" {
		t.Errorf("expected namespace edge:session, got %q", cfg.Session.Namespace)
	}
	if cfg.Session.Timeout != 30*time.Minute {
		t.Errorf("expected session timeout 30m, got %v", cfg.Session.Timeout)
	}
}

func TestParseFullRoute(t *testing.T) {
	yml := `
fallbacks:
  - /catalog-fallback
routes:
  - id: catalog-route
    path: /books
    target: http://catalog-service:9001
    fallback: /catalog-fallback
    circuit_breaker:
      enabled: true
      sliding_window_size: 10
      failure_rate_threshold: 60
      wait_duration_open: 5s
      permitted_calls_half_open: 3
    time_limiter:
      timeout: 2s
    retry:
      enabled: true
      max_retries: 2
      backoff:
        first: 10ms
        max: 100ms
        multiplier: 3
    rate_limit:
      enabled: true
      replenish_rate: 10
      burst_capacity: 20
      key_resolver: ip
      mode: local
`
	cfg, err := NewLoader().Parse([]byte(yml))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	r := cfg.Routes[0]
	if !r.CircuitBreaker.Enabled || r.CircuitBreaker.SlidingWindowSize != 10 {
		t.Errorf("circuit breaker config not applied: %+v", r.CircuitBreaker)
	}
	if r.CircuitBreaker.WaitDurationOpen != 5*time.Second {
		t.Errorf("expected wait 5s, got %v", r.CircuitBreaker.WaitDurationOpen)
	}
	if r.TimeLimiter.Timeout != 2*time.Second {
		t.Errorf("expected time limit 2s, got %v", r.TimeLimiter.Timeout)
	}
	if r.Retry.MaxRetries != 2 || r.Retry.Backoff.Multiplier != 3 {
		t.Errorf("retry config not applied: %+v", r.Retry)
	}
	if r.RateLimit.BurstCapacity != 20 || r.RateLimit.Mode != "local" {
		t.Errorf("rate limit config not applied: %+v", r.RateLimit)
	}
	if r.Fallback != "/catalog-fallback" {
		t.Errorf("fallback not applied: %q", r.Fallback)
	}
}

func TestValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		yml  string
		want string
	}{
		{
			name: "no routes",
			yml:  `routes: []`,
			want: "at least one route",
		},
		{
			name: "missing target",
			yml: `
routes:
  - id: r1
    path: /x
`,
			want: "target is required",
		},
		{
			name: "bad scheme",
			yml: `
routes:
  - id: r1
    path: /x
    target: ftp://example.com
`,
			want: "scheme",
		},
		{
			name: "duplicate id",
			yml: `
routes:
  - id: r1
    path: /x
    target: http://a:1
  - id: r1
    path: /y
    target: http://b:1
`,
			want: "duplicate id",
		},
		{
			name: "undeclared fallback",
			yml: `
routes:
  - id: r1
    path: /x
    target: http://a:1
    fallback: /nope
`,
			want: "not declared",
		},
		{
			name: "burst below rate",
			yml: `
routes:
  - id: r1
    path: /x
    target: http://a:1
    rate_limit:
      enabled: true
      replenish_rate: 10
      burst_capacity: 5
`,
			want: "burst_capacity",
		},
		{
			name: "unknown key resolver",
			yml: `
routes:
  - id: r1
    path: /x
    target: http://a:1
    rate_limit:
      enabled: true
      replenish_rate: 10
      burst_capacity: 20
      key_resolver: zodiac
`,
			want: "key resolver",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLoader().Parse([]byte(tc.yml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CATALOG_URI", "http://catalog:9001")

	yml := `
routes:
  - id: catalog-route
    path: /books
    target: ${CATALOG_URI}
`
	cfg, err := NewLoader().Parse([]byte(yml))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Routes[0].Target != "http://catalog:9001" {
		t.Errorf("env var not expanded: %q", cfg.Routes[0].Target)
	}
}

func TestExpandEnvVarDefaults(t *testing.T) {
	t.Setenv("ORDER_URI", "http://order:9002")

	yml := `
logging:
  level: ${LOG_LEVEL_UNSET_FOR_TEST:-debug}
redis:
  password: ${REDIS_PASSWORD_UNSET_FOR_TEST:-}
routes:
  - id: catalog-route
    path: /books
    target: ${CATALOG_URI_UNSET_FOR_TEST:-http://localhost:9001}
  - id: order-route
    path: /orders
    target: ${ORDER_URI:-http://localhost:9002}
`
	cfg, err := NewLoader().Parse([]byte(yml))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Routes[0].Target != "http://localhost:9001" {
		t.Errorf("default not applied for unset var: %q", cfg.Routes[0].Target)
	}
	if cfg.Routes[1].Target != "http://order:9002" {
		t.Errorf("set var must win over default: %q", cfg.Routes[1].Target)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %q, want debug from default", cfg.Logging.Level)
	}
	if cfg.Redis.Password != "" {
		t.Errorf("empty default expanded to %q, want empty", cfg.Redis.Password)
	}
}

// The shipped configs/edge.yaml must load with a bare environment.
func TestShippedConfigLoads(t *testing.T) {
	cfg, err := NewLoader().Load("../../configs/edge.yaml")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Routes) != 2 {
		t.Fatalf("routes = %d, want 2", len(cfg.Routes))
	}
}
