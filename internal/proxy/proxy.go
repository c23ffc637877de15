package proxy

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/springcloudnative/edge-service/internal/config"
	"github.com/springcloudnative/edge-service/internal/middleware"
)

// Forwarder sends requests to a route's single downstream target. Each
// inbound request is prepared once (buffering the body if present) and
// can then be replayed any number of times, so a retrying caller gets a
// fresh outbound request per attempt.
type Forwarder struct {
	target      *url.URL
	routePath   string
	stripPrefix bool
	transport   http.RoundTripper
}

// NewForwarder creates a forwarder for the route's target URI.
func NewForwarder(route config.RouteConfig, transport http.RoundTripper) (*Forwarder, error) {
	target, err := url.Parse(route.Target)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		transport = NewTransport()
	}
	return &Forwarder{
		target:      target,
		routePath:   route.Path,
		stripPrefix: route.StripPrefix,
		transport:   transport,
	}, nil
}

// NewTransport returns the shared downstream transport. Connection-level
// timeouts stay short; per-attempt deadlines come from the caller's context.
func NewTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// Attempt is a replayable snapshot of one inbound request bound to a
// downstream target.
type Attempt struct {
	fwd    *Forwarder
	method string
	path   string
	query  string
	header http.Header
	body   []byte
	host   string
	proto  string
}

// Prepare snapshots the inbound request. Bodies are read fully up front
// so that every replay sends identical bytes.
func (f *Forwarder) Prepare(r *http.Request) (*Attempt, error) {
	a := &Attempt{
		fwd:    f,
		method: r.Method,
		path:   f.rewritePath(r.URL.Path),
		query:  r.URL.RawQuery,
		header: r.Header,
		host:   r.Host,
		proto:  "http",
	}
	if r.TLS != nil {
		a.proto = "https"
	}
	if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		a.body = body
	}
	if clientIP := middleware.ClientIP(r); clientIP != "" {
		a.header = cloneHeader(r.Header)
		if prior := a.header.Get("X-Forwarded-For"); prior != "" {
			a.header.Set("X-Forwarded-For", prior+", "+clientIP)
		} else {
			a.header.Set("X-Forwarded-For", clientIP)
		}
	}
	return a, nil
}

// Do sends one outbound request. Safe to call repeatedly; each call
// builds a fresh request from the snapshot.
func (a *Attempt) Do(ctx context.Context) (*http.Response, error) {
	targetURL := *a.fwd.target
	targetURL.Path = singleJoiningSlash(a.fwd.target.Path, a.path)
	targetURL.RawQuery = a.query

	req := (&http.Request{
		Method:     a.method,
		URL:        &targetURL,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Host:       a.fwd.target.Host,
	}).WithContext(ctx)

	req.Header = cloneHeader(a.header)
	req.Header.Set("X-Forwarded-Proto", a.proto)
	req.Header.Set("X-Forwarded-Host", a.host)
	removeHopHeaders(req.Header)

	if a.body != nil {
		req.Body = io.NopCloser(bytes.NewReader(a.body))
		req.ContentLength = int64(len(a.body))
	}

	return a.fwd.transport.RoundTrip(req)
}

func (f *Forwarder) rewritePath(path string) string {
	if !f.stripPrefix {
		return path
	}
	return stripPrefix(f.routePath, path)
}

// WriteResponse relays a downstream response to the client, dropping
// hop-by-hop headers.
func WriteResponse(w http.ResponseWriter, resp *http.Response) {
	defer resp.Body.Close()

	dst := w.Header()
	for k, vv := range resp.Header {
		dst[k] = append(dst[k][:0:0], vv...)
	}
	removeHopHeaders(dst)

	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h)+3)
	for k, vv := range h {
		out[k] = append(out[k][:0:0], vv...)
	}
	return out
}

var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(header http.Header) {
	for _, h := range hopHeaders {
		header.Del(h)
	}
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

func stripPrefix(pattern, path string) string {
	pattern = strings.Trim(pattern, "/")
	path = strings.Trim(path, "/")

	if pattern == "" {
		return "/" + path
	}

	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")

	if len(pathParts) <= len(patternParts) {
		return "/"
	}

	suffix := strings.Join(pathParts[len(patternParts):], "/")
	if suffix == "" {
		return "/"
	}
	return "/" + suffix
}
