package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/springcloudnative/edge-service/internal/config"
)

func newAdminServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Routes: []config.RouteConfig{{
			ID:             "catalog-route",
			Path:           "/books",
			Target:         "http://127.0.0.1:1",
			CircuitBreaker: config.CircuitBreakerConfig{Enabled: true},
		}},
	}
	return NewServer(cfg, newGateway(t, cfg))
}

func TestAdminHealth(t *testing.T) {
	s := newAdminServer(t)

	rec := httptest.NewRecorder()
	s.AdminHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["status"] != "UP" {
		t.Fatalf("status field = %q, want UP", body["status"])
	}
}

func TestAdminRoutes(t *testing.T) {
	s := newAdminServer(t)

	rec := httptest.NewRecorder()
	s.AdminHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/routes", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var routes []routeInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &routes); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if len(routes) != 1 || routes[0].ID != "catalog-route" {
		t.Fatalf("routes = %v, want one catalog-route", routes)
	}
}

func TestAdminBreakers(t *testing.T) {
	s := newAdminServer(t)

	rec := httptest.NewRecorder()
	s.AdminHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/circuitbreakers", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "catalog-route") {
		t.Fatalf("body = %q, want catalog-route snapshot", rec.Body.String())
	}
}

func TestAdminMetricsScrape(t *testing.T) {
	s := newAdminServer(t)

	rec := httptest.NewRecorder()
	s.AdminHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
