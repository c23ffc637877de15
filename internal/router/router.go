package router

import (
	"net/http"
	"strings"
	"sync"

	"github.com/julienschmidt/httprouter"

	"github.com/springcloudnative/edge-service/internal/config"
)

// Route is a compiled route entry bound to its handler chain.
type Route struct {
	ID      string
	Path    string
	Methods map[string]bool // nil = all methods
	Config  config.RouteConfig
	Handler http.Handler
}

// Allows reports whether the route accepts the method.
func (route *Route) Allows(method string) bool {
	return route.Methods == nil || route.Methods[strings.ToUpper(method)]
}

// prefixRoute holds a route with its pre-split path segments for prefix
// matching.
type prefixRoute struct {
	route    *Route
	segments []string
}

// Router matches requests to routes in two tiers: an httprouter tree for
// exact path hits, then longest-prefix scan for everything below a route's
// path. Prefix routes cannot live in the tree because sibling catch-alls
// conflict there.
type Router struct {
	mu        sync.RWMutex
	tree      *httprouter.Router
	treePaths map[string]bool
	prefixes  []*prefixRoute
	routes    []*Route
}

var standardMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

// New creates an empty router.
func New() *Router {
	tree := httprouter.New()
	tree.HandleMethodNotAllowed = false
	tree.RedirectTrailingSlash = false
	tree.RedirectFixedPath = false
	return &Router{tree: tree, treePaths: make(map[string]bool)}
}

// AddRoute compiles and registers a route. Every route matches its exact
// path and any path below it.
func (rt *Router) AddRoute(cfg config.RouteConfig, handler http.Handler) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	route := &Route{
		ID:      cfg.ID,
		Path:    cfg.Path,
		Config:  cfg,
		Handler: handler,
	}
	if len(cfg.Methods) > 0 {
		route.Methods = make(map[string]bool, len(cfg.Methods))
		for _, m := range cfg.Methods {
			route.Methods[strings.ToUpper(m)] = true
		}
	}

	// httprouter panics on duplicate registrations; when two routes share
	// a path the prefix scan disambiguates by method.
	if !rt.treePaths[cfg.Path] {
		rt.treePaths[cfg.Path] = true
		for _, method := range standardMethods {
			rt.tree.Handle(method, cfg.Path, captureHandle(route))
		}
	}

	pr := &prefixRoute{
		route:    route,
		segments: splitPath(cfg.Path),
	}
	// Longest prefix wins; insertion order breaks ties.
	idx := len(rt.prefixes)
	for i, existing := range rt.prefixes {
		if len(pr.segments) > len(existing.segments) {
			idx = i
			break
		}
	}
	rt.prefixes = append(rt.prefixes, nil)
	copy(rt.prefixes[idx+1:], rt.prefixes[idx:])
	rt.prefixes[idx] = pr

	rt.routes = append(rt.routes, route)
}

// Match resolves a request to a route. A nil route with matched=true
// means the path exists but the method is not allowed.
func (rt *Router) Match(r *http.Request) (route *Route, matched bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	if found := rt.lookupExact(r.URL.Path); found != nil {
		matched = true
		if found.Allows(r.Method) {
			return found, true
		}
	}

	segments := splitPath(r.URL.Path)
	for _, pr := range rt.prefixes {
		if !hasSegmentPrefix(segments, pr.segments) {
			continue
		}
		matched = true
		if pr.route.Allows(r.Method) {
			return pr.route, true
		}
	}
	return nil, matched
}

// Routes returns all registered routes in insertion order.
func (rt *Router) Routes() []*Route {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]*Route, len(rt.routes))
	copy(out, rt.routes)
	return out
}

func (rt *Router) lookupExact(path string) *Route {
	// The tree stores every route under every standard method; method
	// filtering happens in Match. GET is as good a probe as any.
	handle, ps, _ := rt.tree.Lookup("GET", path)
	if handle == nil {
		return nil
	}
	cw := &captureWriter{}
	handle(cw, nil, ps)
	return cw.route
}

// captureWriter extracts the matched route from httprouter dispatch
// without writing a response.
type captureWriter struct {
	route  *Route
	header http.Header
}

func (cw *captureWriter) Header() http.Header {
	if cw.header == nil {
		cw.header = make(http.Header)
	}
	return cw.header
}
func (cw *captureWriter) Write([]byte) (int, error) { return 0, nil }
func (cw *captureWriter) WriteHeader(int)           {}

func captureHandle(route *Route) httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		if cw, ok := w.(*captureWriter); ok {
			cw.route = route
		}
	}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func hasSegmentPrefix(path, prefix []string) bool {
	if len(path) < len(prefix) {
		return false
	}
	for i, seg := range prefix {
		if path[i] != seg {
			return false
		}
	}
	return true
}
