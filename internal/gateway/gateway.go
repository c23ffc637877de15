package gateway

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/springcloudnative/edge-service/internal/circuitbreaker"
	"github.com/springcloudnative/edge-service/internal/config"
	"github.com/springcloudnative/edge-service/internal/errors"
	"github.com/springcloudnative/edge-service/internal/fallback"
	"github.com/springcloudnative/edge-service/internal/logging"
	"github.com/springcloudnative/edge-service/internal/metrics"
	"github.com/springcloudnative/edge-service/internal/middleware"
	"github.com/springcloudnative/edge-service/internal/proxy"
	"github.com/springcloudnative/edge-service/internal/ratelimit"
	"github.com/springcloudnative/edge-service/internal/resilience"
	"github.com/springcloudnative/edge-service/internal/retry"
	"github.com/springcloudnative/edge-service/internal/router"
	"github.com/springcloudnative/edge-service/internal/session"
)

// Gateway routes edge traffic through per-route resilience pipelines.
// All mutable routing state lives behind a single pointer swap, so config
// reloads never block in-flight requests.
type Gateway struct {
	mu       sync.RWMutex
	cfg      *config.Config
	routes   *router.Router
	fallback *fallback.Responder
	closers  []io.Closer

	breakers  *circuitbreaker.Registry
	metrics   *metrics.Collector
	redis     redis.UniversalClient
	sessions  *session.Store
	transport http.RoundTripper
}

// New assembles a gateway from configuration.
func New(cfg *config.Config) (*Gateway, error) {
	g := &Gateway{
		breakers:  circuitbreaker.NewRegistry(),
		metrics:   metrics.NewCollector(),
		transport: proxy.NewTransport(),
	}

	if err := g.apply(cfg); err != nil {
		return nil, err
	}
	if cfg.Session.Enabled {
		g.sessions = session.NewStore(cfg.Session, g.redis)
	}
	return g, nil
}

// ensureRedis creates the shared client the first time a configuration
// needs one. A reload can introduce sessions or a distributed rate limit
// that the boot configuration did not.
func (g *Gateway) ensureRedis(cfg *config.Config) {
	if !needsRedis(cfg) {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.redis != nil {
		return
	}
	g.redis = redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Address,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout,
		ReadTimeout: cfg.Redis.ReadTimeout,
	})
}

func needsRedis(cfg *config.Config) bool {
	if cfg.Session.Enabled {
		return true
	}
	for _, route := range cfg.Routes {
		if route.RateLimit.Enabled && route.RateLimit.Mode != "local" {
			return true
		}
	}
	return false
}

// apply builds the routing table for cfg and swaps it in. Route-scoped
// resources of the previous table are released after the swap.
func (g *Gateway) apply(cfg *config.Config) error {
	g.ensureRedis(cfg)

	routes := router.New()
	var closers []io.Closer
	for _, rc := range cfg.Routes {
		handler, closer, err := g.buildRouteHandler(rc)
		if err != nil {
			closeAll(closers)
			return err
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		routes.AddRoute(rc, handler)
	}

	g.mu.Lock()
	old := g.closers
	g.cfg = cfg
	g.routes = routes
	g.fallback = fallback.NewResponder(cfg.Fallbacks)
	g.closers = closers
	g.mu.Unlock()

	closeAll(old)
	return nil
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logging.Warn("failed to release route resource", zap.Error(err))
		}
	}
}

// Reload swaps in a new configuration. Breakers keep their accumulated
// window state across reloads; routes are rebuilt from scratch.
func (g *Gateway) Reload(cfg *config.Config) error {
	if err := g.apply(cfg); err != nil {
		return err
	}
	logging.Info("configuration reloaded", zap.Int("routes", len(cfg.Routes)))
	return nil
}

// Handler returns the gateway wrapped in the edge-wide middleware chain.
func (g *Gateway) Handler() http.Handler {
	chain := middleware.NewChain(
		middleware.RequestID(),
		middleware.AccessLog(),
		middleware.Recovery(),
	)
	if g.sessions != nil {
		chain = chain.Append(session.Middleware(g.sessions, g.sessionCookieName()))
	}
	return chain.Then(g)
}

func (g *Gateway) sessionCookieName() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg.Session.CookieName
}

// ServeHTTP dispatches a request to its route, a fallback endpoint, or an
// error response.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.RLock()
	routes, fb := g.routes, g.fallback
	g.mu.RUnlock()

	if fb.Handles(r.URL.Path) {
		fb.ServeHTTP(w, r)
		return
	}

	route, matched := routes.Match(r)
	if route == nil {
		e := errors.ErrNotFound
		if matched {
			e = errors.ErrMethodNotAllowed
		}
		e.WithRequestID(middleware.GetRequestID(r)).WriteJSON(w)
		return
	}
	route.Handler.ServeHTTP(w, r)
}

// Breakers exposes breaker snapshots for the admin surface.
func (g *Gateway) Breakers() map[string]circuitbreaker.Snapshot {
	return g.breakers.Snapshots()
}

// Metrics exposes the collector for the admin surface.
func (g *Gateway) Metrics() *metrics.Collector {
	return g.metrics
}

// Routes returns the active routing table.
func (g *Gateway) Routes() []*router.Route {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.routes.Routes()
}

// Close releases route-scoped resources and the shared store client.
func (g *Gateway) Close() error {
	g.mu.Lock()
	closers := g.closers
	g.closers = nil
	client := g.redis
	g.mu.Unlock()

	closeAll(closers)
	if client != nil {
		return client.Close()
	}
	return nil
}

// buildRouteHandler composes the per-route chain: request metrics, then
// the rate limiter, then the resilience pipeline around the proxied call.
// The returned closer, if any, releases the route's limiter.
func (g *Gateway) buildRouteHandler(rc config.RouteConfig) (http.Handler, io.Closer, error) {
	fwd, err := proxy.NewForwarder(rc, g.transport)
	if err != nil {
		return nil, nil, err
	}

	var breaker *circuitbreaker.Breaker
	if rc.CircuitBreaker.Enabled {
		breaker = g.breakers.Register(rc.ID, rc.CircuitBreaker)
	}
	var policy *retry.Policy
	if rc.Retry.Enabled {
		policy = retry.NewPolicy(rc.Retry)
	}

	routeID := rc.ID
	pipeline := &resilience.Pipeline{
		RouteID: routeID,
		Breaker: breaker,
		Retry:   policy,
		Timeout: rc.TimeLimiter.Timeout,
		OnRetry: func(int) { g.metrics.RecordRetry(routeID) },
	}
	fallbackPath := rc.Fallback

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt, err := fwd.Prepare(r)
		if err != nil {
			errors.ErrBadGateway.
				WithDetails("failed to read request body").
				WithRequestID(middleware.GetRequestID(r)).
				WriteJSON(w)
			return
		}

		resp, err := pipeline.Do(r.Context(), r.Method, attempt.Do)
		if breaker != nil {
			g.metrics.SetBreakerState(routeID, int(breaker.State()))
		}
		if err != nil {
			g.handleFailure(w, r, routeID, fallbackPath, err)
			return
		}
		proxy.WriteResponse(w, resp)
	})

	chain := middleware.NewChain(g.recordRequest(routeID))
	var closer io.Closer
	if rc.RateLimit.Enabled {
		limiter := ratelimit.New(rc.RateLimit, g.redis)
		if c, ok := limiter.(io.Closer); ok {
			closer = c
		}
		resolver := ratelimit.ResolverFor(rc.RateLimit)
		chain = chain.Append(ratelimit.Middleware(limiter, resolver, func() {
			g.metrics.RecordRateLimited(routeID)
		}))
	}
	return chain.Then(inner), closer, nil
}

// recordRequest observes status and latency of every request on a route.
func (g *Gateway) recordRequest(routeID string) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := middleware.GetStatusRecorder(w)
			defer middleware.PutStatusRecorder(rec)

			next.ServeHTTP(rec, r)
			g.metrics.RecordRequest(routeID, r.Method, rec.Status, time.Since(start))
		})
	}
}

// handleFailure maps a pipeline error to a fallback dispatch or an error
// response.
func (g *Gateway) handleFailure(w http.ResponseWriter, r *http.Request, routeID, fallbackPath string, err error) {
	requestID := middleware.GetRequestID(r)

	if stderrors.Is(err, context.Canceled) {
		// The client went away; there is nobody to answer.
		logging.Debug("client canceled request",
			zap.String("route", routeID),
			zap.String("request_id", requestID))
		return
	}

	var e *errors.EdgeError
	switch {
	case stderrors.Is(err, circuitbreaker.ErrOpen):
		g.metrics.RecordBreakerRejected(routeID)
		e = errors.ErrServiceUnavailable
	case stderrors.Is(err, context.DeadlineExceeded):
		e = errors.ErrGatewayTimeout
	default:
		e = errors.ErrBadGateway.WithDetails(err.Error())
	}

	if fallbackPath != "" {
		g.mu.RLock()
		fb := g.fallback
		g.mu.RUnlock()
		if fb.Handles(fallbackPath) {
			logging.Info("dispatching to fallback",
				zap.String("route", routeID),
				zap.String("fallback", fallbackPath),
				zap.String("request_id", requestID),
				zap.Error(err))
			g.metrics.RecordFallback(routeID)
			fb.ServeHTTP(w, r)
			return
		}
	}

	e.WithRequestID(requestID).WriteJSON(w)
}
