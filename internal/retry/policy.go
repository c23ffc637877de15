package retry

import (
	"context"
	"errors"
	"math"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/springcloudnative/edge-service/internal/config"
)

// Policy decides which request attempts may be re-executed and with what
// backoff. It carries no per-request state; call NewSchedule for each
// logical request.
type Policy struct {
	MaxRetries        int
	Methods           map[string]bool
	RetryableStatuses map[int]bool
	retryOnConnect    bool
	retryOnTimeout    bool
	backoff           config.BackoffConfig
}

// NewPolicy creates a retry policy from route configuration.
func NewPolicy(cfg config.RetryConfig) *Policy {
	p := &Policy{
		MaxRetries:        cfg.MaxRetries,
		Methods:           make(map[string]bool, len(cfg.Methods)),
		RetryableStatuses: make(map[int]bool, len(cfg.RetryableStatuses)),
		backoff:           cfg.Backoff,
	}
	for _, m := range cfg.Methods {
		p.Methods[strings.ToUpper(m)] = true
	}
	for _, s := range cfg.RetryableStatuses {
		p.RetryableStatuses[s] = true
	}
	for _, k := range cfg.Exceptions {
		switch k {
		case "connect":
			p.retryOnConnect = true
		case "timeout":
			p.retryOnTimeout = true
		}
	}
	return p
}

// AppliesTo reports whether the policy covers the given HTTP method.
// Only idempotent methods should be configured; the default is GET only.
func (p *Policy) AppliesTo(method string) bool {
	return p.Methods[strings.ToUpper(method)]
}

// RetryableStatus reports whether a response status should be retried.
func (p *Policy) RetryableStatus(status int) bool {
	return p.RetryableStatuses[status]
}

// RetryableError reports whether a transport-level failure should be
// retried. Cancellation of the client request is never retryable.
func (p *Policy) RetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return p.retryOnTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return p.retryOnTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return p.retryOnConnect
	}
	// Unclassified transport failures are treated like connection failures.
	return p.retryOnConnect
}

// Schedule yields successive backoff intervals for one logical request.
type Schedule interface {
	Next() time.Duration
}

// NewSchedule creates a fresh backoff schedule. When based_on_previous is
// set, each interval derives from the previously yielded one; otherwise it
// is computed from the attempt ordinal. Both are capped at the configured
// maximum and are non-decreasing.
func (p *Policy) NewSchedule() Schedule {
	if p.backoff.BasedOnPrevious {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = p.backoff.First
		bo.MaxInterval = p.backoff.Max
		bo.Multiplier = p.backoff.Multiplier
		bo.RandomizationFactor = 0
		bo.MaxElapsedTime = 0 // the retry count bounds us, not elapsed time
		bo.Reset()
		return &statefulSchedule{bo: bo}
	}
	return &ordinalSchedule{
		first:      p.backoff.First,
		max:        p.backoff.Max,
		multiplier: p.backoff.Multiplier,
	}
}

type statefulSchedule struct {
	bo *backoff.ExponentialBackOff
}

func (s *statefulSchedule) Next() time.Duration {
	d := s.bo.NextBackOff()
	if d == backoff.Stop {
		return s.bo.MaxInterval
	}
	return d
}

type ordinalSchedule struct {
	first      time.Duration
	max        time.Duration
	multiplier float64
	attempt    int
}

func (s *ordinalSchedule) Next() time.Duration {
	d := float64(s.first) * math.Pow(s.multiplier, float64(s.attempt))
	s.attempt++
	if d > float64(s.max) {
		return s.max
	}
	return time.Duration(d)
}
