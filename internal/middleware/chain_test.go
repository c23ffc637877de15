package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func appendMW(buf *[]string, tag string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*buf = append(*buf, tag)
			next.ServeHTTP(w, r)
		})
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	chain := NewChain(
		appendMW(&order, "outer"),
		appendMW(&order, "inner"),
	)

	h := chain.ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	want := []string{"outer", "inner", "handler"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestChainAppendDoesNotMutate(t *testing.T) {
	var order []string
	base := NewChain(appendMW(&order, "a"))
	extended := base.Append(appendMW(&order, "b"))

	if base.Len() != 1 {
		t.Errorf("base chain mutated, len=%d", base.Len())
	}
	if extended.Len() != 2 {
		t.Errorf("expected extended len 2, got %d", extended.Len())
	}
}

func TestUseIf(t *testing.T) {
	var order []string
	c := NewChain().
		UseIf(false, appendMW(&order, "skipped")).
		UseIf(true, appendMW(&order, "kept"))

	c.ThenFunc(func(w http.ResponseWriter, r *http.Request) {}).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if len(order) != 1 || order[0] != "kept" {
		t.Errorf("expected [kept], got %v", order)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := NewChain(RequestID()).ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if seen == "" {
		t.Fatal("expected a generated request id")
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header %q does not match context id %q", got, seen)
	}
}

func TestRequestIDTrustsInbound(t *testing.T) {
	var seen string
	h := NewChain(RequestID()).ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "abc-123" {
		t.Errorf("expected inbound id to be kept, got %q", seen)
	}
}

func TestRecovery(t *testing.T) {
	h := NewChain(Recovery()).ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 after panic, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	if ip := ClientIP(r); ip != "10.0.0.1" {
		t.Errorf("expected 10.0.0.1, got %q", ip)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if ip := ClientIP(r); ip != "203.0.113.7" {
		t.Errorf("expected first X-Forwarded-For hop, got %q", ip)
	}
}
