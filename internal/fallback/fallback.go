package fallback

import (
	"net/http"
)

// Responder serves the degradation endpoints invoked when a downstream
// route is deemed unusable. Handlers are pure and perform no downstream
// I/O, so a fallback can never itself cascade.
//
// Read-style requests degrade into an empty successful response: a broken
// catalog must not break the client rendering it. Write-style requests
// surface an explicit 503: a failed write is never acknowledged.
type Responder struct {
	paths map[string]bool
}

// NewResponder creates a responder for the configured fallback paths.
func NewResponder(paths []string) *Responder {
	m := make(map[string]bool, len(paths))
	for _, p := range paths {
		m[p] = true
	}
	return &Responder{paths: m}
}

// Handles reports whether path is a registered fallback endpoint.
func (f *Responder) Handles(path string) bool {
	return f.paths[path]
}

// ServeHTTP implements the fallback contract for both externally reached
// fallback endpoints and internal redirects from the resilience pipeline.
func (f *Responder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}
