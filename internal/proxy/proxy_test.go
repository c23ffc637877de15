package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/springcloudnative/edge-service/internal/config"
)

func newForwarder(t *testing.T, target string, route config.RouteConfig) *Forwarder {
	t.Helper()
	route.Target = target
	f, err := NewForwarder(route, nil)
	if err != nil {
		t.Fatalf("NewForwarder: %v", err)
	}
	return f
}

func TestForwardsRequest(t *testing.T) {
	var got *http.Request
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("X-Downstream", "yes")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, "created")
	}))
	defer downstream.Close()

	f := newForwarder(t, downstream.URL, config.RouteConfig{Path: "/books"})

	req := httptest.NewRequest(http.MethodGet, "/books?sort=title", nil)
	req.Header.Set("Accept", "application/json")
	req.RemoteAddr = "10.1.2.3:5555"

	attempt, err := f.Prepare(req)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	resp, err := attempt.Do(context.Background())
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if got.URL.Path != "/books" {
		t.Errorf("downstream path = %q, want /books", got.URL.Path)
	}
	if got.URL.RawQuery != "sort=title" {
		t.Errorf("downstream query = %q, want sort=title", got.URL.RawQuery)
	}
	if got.Header.Get("Accept") != "application/json" {
		t.Errorf("Accept header not forwarded")
	}
	if got.Header.Get("X-Forwarded-For") != "10.1.2.3" {
		t.Errorf("X-Forwarded-For = %q, want 10.1.2.3", got.Header.Get("X-Forwarded-For"))
	}
	if got.Header.Get("X-Forwarded-Proto") != "http" {
		t.Errorf("X-Forwarded-Proto = %q, want http", got.Header.Get("X-Forwarded-Proto"))
	}
}

func TestStripPrefix(t *testing.T) {
	var gotPath string
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer downstream.Close()

	f := newForwarder(t, downstream.URL, config.RouteConfig{Path: "/books", StripPrefix: true})

	attempt, err := f.Prepare(httptest.NewRequest(http.MethodGet, "/books/isbn/123", nil))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	resp, err := attempt.Do(context.Background())
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if gotPath != "/isbn/123" {
		t.Fatalf("downstream path = %q, want /isbn/123", gotPath)
	}
}

func TestBodyReplayedAcrossAttempts(t *testing.T) {
	var bodies []string
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
	}))
	defer downstream.Close()

	f := newForwarder(t, downstream.URL, config.RouteConfig{Path: "/books"})

	req := httptest.NewRequest(http.MethodPost, "/books", strings.NewReader(`{"isbn":"123"}`))
	attempt, err := f.Prepare(req)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	for i := 0; i < 3; i++ {
		resp, err := attempt.Do(context.Background())
		if err != nil {
			t.Fatalf("Do #%d: %v", i, err)
		}
		resp.Body.Close()
	}

	if len(bodies) != 3 {
		t.Fatalf("downstream saw %d requests, want 3", len(bodies))
	}
	for i, b := range bodies {
		if b != `{"isbn":"123"}` {
			t.Errorf("attempt %d body = %q", i, b)
		}
	}
}

func TestWriteResponseDropsHopHeaders(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header: http.Header{
			"Content-Type": {"application/json"},
			"Connection":   {"keep-alive"},
			"Keep-Alive":   {"timeout=5"},
		},
		Body: io.NopCloser(strings.NewReader(`{"ok":true}`)),
	}

	rec := httptest.NewRecorder()
	WriteResponse(rec, resp)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Error("Content-Type not relayed")
	}
	if rec.Header().Get("Connection") != "" || rec.Header().Get("Keep-Alive") != "" {
		t.Error("hop-by-hop headers must not be relayed")
	}
}

func TestPathJoining(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"", "/books", "/books"},
		{"/", "/books", "/books"},
		{"/api", "books", "/api/books"},
		{"/api/", "/books", "/api/books"},
	}
	for _, tt := range tests {
		if got := singleJoiningSlash(tt.a, tt.b); got != tt.want {
			t.Errorf("singleJoiningSlash(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestStripPrefixPaths(t *testing.T) {
	tests := []struct {
		pattern, path, want string
	}{
		{"/books", "/books", "/"},
		{"/books", "/books/123", "/123"},
		{"/books", "/books/isbn/123", "/isbn/123"},
		{"/", "/books", "/books"},
	}
	for _, tt := range tests {
		if got := stripPrefix(tt.pattern, tt.path); got != tt.want {
			t.Errorf("stripPrefix(%q, %q) = %q, want %q", tt.pattern, tt.path, got, tt.want)
		}
	}
}
