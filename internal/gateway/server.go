package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/springcloudnative/edge-service/internal/config"
	"github.com/springcloudnative/edge-service/internal/logging"
)

// Server runs the edge listener and the admin listener and owns their
// lifecycle.
type Server struct {
	cfg     *config.Config
	gateway *Gateway
	main    *http.Server
	admin   *http.Server
}

// NewServer builds the servers around an assembled gateway.
func NewServer(cfg *config.Config, gw *Gateway) *Server {
	s := &Server{cfg: cfg, gateway: gw}

	s.main = &http.Server{
		Addr:              cfg.Listener.Address,
		Handler:           gw.Handler(),
		ReadTimeout:       cfg.Listener.ReadTimeout,
		WriteTimeout:      cfg.Listener.WriteTimeout,
		IdleTimeout:       cfg.Listener.IdleTimeout,
		ReadHeaderTimeout: cfg.Listener.ReadHeaderTimeout,
		MaxHeaderBytes:    cfg.Listener.MaxHeaderBytes,
	}
	if cfg.Admin.Enabled {
		s.admin = &http.Server{
			Addr:              cfg.Admin.Address,
			Handler:           s.AdminHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s
}

// Run serves until ctx is canceled, then drains both listeners within the
// shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		logging.Info("edge listener starting", zap.String("address", s.main.Addr))
		if err := s.main.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	if s.admin != nil {
		go func() {
			logging.Info("admin listener starting", zap.String("address", s.admin.Addr))
			if err := s.admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.Shutdown.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logging.Info("shutting down", zap.Duration("drain_timeout", timeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var firstErr error
	if err := s.main.Shutdown(shutdownCtx); err != nil {
		firstErr = err
	}
	if s.admin != nil {
		if err := s.admin.Shutdown(shutdownCtx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.gateway.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// AdminHandler exposes health, routing, breaker, and metrics endpoints.
func (s *Server) AdminHandler() http.Handler {
	mux := httprouter.New()
	mux.HandlerFunc(http.MethodGet, "/healthz", s.handleHealth)
	mux.HandlerFunc(http.MethodGet, "/admin/routes", s.handleRoutes)
	mux.HandlerFunc(http.MethodGet, "/admin/circuitbreakers", s.handleBreakers)
	mux.Handler(http.MethodGet, "/metrics", s.gateway.Metrics().Handler())
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "UP"})
}

type routeInfo struct {
	ID       string   `json:"id"`
	Path     string   `json:"path"`
	Methods  []string `json:"methods,omitempty"`
	Target   string   `json:"target"`
	Fallback string   `json:"fallback,omitempty"`
}

func (s *Server) handleRoutes(w http.ResponseWriter, _ *http.Request) {
	routes := s.gateway.Routes()
	out := make([]routeInfo, 0, len(routes))
	for _, route := range routes {
		out = append(out, routeInfo{
			ID:       route.ID,
			Path:     route.Path,
			Methods:  route.Config.Methods,
			Target:   route.Config.Target,
			Fallback: route.Config.Fallback,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.gateway.Breakers())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("admin response encode failed", zap.Error(err))
	}
}
