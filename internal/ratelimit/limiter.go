package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/springcloudnative/edge-service/internal/config"
	"github.com/springcloudnative/edge-service/internal/errors"
	"github.com/springcloudnative/edge-service/internal/logging"
	"github.com/springcloudnative/edge-service/internal/middleware"
)

// Limiter is the per-request admission check backing the rate limit
// middleware. Implementations exist for the shared store (RedisLimiter)
// and in-process buckets (LocalLimiter).
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Burst() int
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed   bool
	Remaining int
}

// New builds the limiter for a route from configuration. The redis client
// is required for distributed mode.
func New(cfg config.RateLimitConfig, client redis.UniversalClient) Limiter {
	if cfg.Mode == "local" {
		return NewLocalLimiter(cfg)
	}
	return NewRedisLimiter(client, cfg)
}

// storeTimeout bounds the admission round-trip; past this we fail open
// rather than stall the request behind an unhealthy store.
const storeTimeout = 100 * time.Millisecond

// Middleware enforces the rate limit before the request reaches the
// resilience pipeline. Rejections are reported as 429 and never scheduled
// for retry.
// onReject, when given, is invoked once per rejected request.
func Middleware(limiter Limiter, resolver KeyResolver, onReject ...func()) middleware.Middleware {
	burstStr := strconv.Itoa(limiter.Burst())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := resolver.Resolve(r)

			ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
			decision, err := limiter.Allow(ctx, key)
			cancel()

			if err != nil {
				// Fail open: an unreachable store must not take the edge down.
				logging.Warn("rate limit store unavailable, failing open",
					zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Burst-Capacity", burstStr)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				for _, fn := range onReject {
					fn()
				}
				w.Header().Set("Retry-After", "1")
				errors.ErrTooManyRequests.WriteJSON(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
