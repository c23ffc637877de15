package ratelimit

import (
	"net/http"
	"strings"

	"github.com/springcloudnative/edge-service/internal/config"
	"github.com/springcloudnative/edge-service/internal/middleware"
)

// KeyResolver maps an inbound request to a rate-limit bucket key. Resolvers
// are pure: no side effects, no blocking.
type KeyResolver interface {
	Resolve(r *http.Request) string
}

// ConstantKeyResolver puts every request in one bucket. It is the default
// policy: deliberately simplistic, a placeholder until a deployment plugs
// in per-principal or per-tenant resolution.
type ConstantKeyResolver struct {
	Key string
}

func (c ConstantKeyResolver) Resolve(*http.Request) string {
	return c.Key
}

// IPKeyResolver buckets requests by originating client address.
type IPKeyResolver struct{}

func (IPKeyResolver) Resolve(r *http.Request) string {
	return middleware.ClientIP(r)
}

// PrincipalHeader carries the authenticated principal, set by an upstream
// auth layer.
const PrincipalHeader = "X-Auth-Principal"

// PrincipalKeyResolver buckets requests by authenticated principal,
// falling back to the anonymous bucket when none is present.
type PrincipalKeyResolver struct{}

func (PrincipalKeyResolver) Resolve(r *http.Request) string {
	if p := r.Header.Get(PrincipalHeader); p != "" {
		return p
	}
	return AnonymousKey
}

// HeaderKeyResolver buckets requests by an arbitrary header value, falling
// back to the client IP when the header is absent.
type HeaderKeyResolver struct {
	Name string
}

func (h HeaderKeyResolver) Resolve(r *http.Request) string {
	if v := r.Header.Get(h.Name); v != "" {
		return h.Name + ":" + v
	}
	return middleware.ClientIP(r)
}

// AnonymousKey is the constant bucket key used when no identity applies.
const AnonymousKey = "ANONYMOUS"

// ResolverFor builds the resolver named by route configuration.
func ResolverFor(cfg config.RateLimitConfig) KeyResolver {
	switch {
	case cfg.KeyResolver == "ip":
		return IPKeyResolver{}
	case cfg.KeyResolver == "principal":
		return PrincipalKeyResolver{}
	case strings.HasPrefix(cfg.KeyResolver, "header:"):
		return HeaderKeyResolver{Name: cfg.KeyResolver[len("header:"):]}
	default:
		return ConstantKeyResolver{Key: AnonymousKey}
	}
}
