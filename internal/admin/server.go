// Package admin implements the srv6dp process's admin HTTP surface:
// /health, /ready, /stats, /tables and /metrics, routed with
// go-chi/chi — modeled directly on nf/nrf/internal/server/server.go's
// router setup, request-id/recoverer/timeout middleware stack and
// logging middleware.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TableStats is what /tables reports: the size of the local-SID and SR
// policy tables a control plane has configured (§3's Local SID / SR
// policy types), not their contents — the tables themselves are not a
// management API surface this module defines.
type TableStats struct {
	LocalSIDs int `json:"local_sids"`
	Policies  int `json:"policies"`
}

// Server serves the admin/monitoring surface for one Table.
type Server struct {
	addr       string
	localSIDs  func() int
	policies   func() int
	router     *chi.Mux
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds the admin server. countLocalSIDs/countPolicies are
// plain callbacks (srv6.Table's LenLocalSIDs/LenPolicies in srv6dp), so
// this package does not import srv6.
func NewServer(addr string, countLocalSIDs, countPolicies func() int, logger *zap.Logger) *Server {
	s := &Server{
		addr:      addr,
		localSIDs: countLocalSIDs,
		policies:  countPolicies,
		router:    chi.NewRouter(),
		logger:    logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(10 * time.Second))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Get("/stats", s.handleStats)
	s.router.Get("/tables", s.handleTables)
	s.router.Handle("/metrics", promhttp.Handler())
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("admin http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(TableStats{
		LocalSIDs: s.localSIDs(),
		Policies:  s.policies(),
	})
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	s.handleStats(w, r)
}

// Start runs the server; it blocks until Stop shuts it down.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.logger.Info("starting admin server", zap.String("addr", s.addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}
