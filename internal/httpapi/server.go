// Package httpapi exposes the session gateway and the material boards as a
// JSON API.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/qkgalias/capstone-hub/internal/dashboard"
	"github.com/qkgalias/capstone-hub/internal/httputil"
	"github.com/qkgalias/capstone-hub/internal/logging"
	"github.com/qkgalias/capstone-hub/internal/metrics"
	"github.com/qkgalias/capstone-hub/internal/middleware"
	"github.com/qkgalias/capstone-hub/internal/session"
)

// Config configures the HTTP surface.
type Config struct {
	LoginPath      string
	AllowedOrigins []string
	LoginRate      float64
	LoginBurst     int
}

// Server routes API requests.
type Server struct {
	cfg     Config
	gateway *session.Gateway
	boards  *dashboard.Workspaces
	metrics *metrics.Metrics
	logger  *logging.Logger

	loginLimiter *middleware.RateLimiter
	handler      http.Handler
}

// New builds the server and its routes.
func New(cfg Config, gateway *session.Gateway, boards *dashboard.Workspaces, m *metrics.Metrics, logger *logging.Logger) *Server {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.LoginRate <= 0 {
		cfg.LoginRate = 1
	}
	if cfg.LoginBurst <= 0 {
		cfg.LoginBurst = 5
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = logging.NewDiscard()
	}

	s := &Server{
		cfg:     cfg,
		gateway: gateway,
		boards:  boards,
		metrics: m,
		logger:  logger,
	}
	s.loginLimiter = middleware.NewRateLimiter(cfg.LoginRate, cfg.LoginBurst, logger).
		OnReject(func(*http.Request) { m.RecordLogin(metrics.LoginRateLimited) })
	s.handler = middleware.NewCORSMiddleware(cfg.AllowedOrigins).Handler(s.routes())
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// LoginLimiter returns the per-IP login limiter so its idle entries can be
// cleaned up.
func (s *Server) LoginLimiter() *middleware.RateLimiter { return s.loginLimiter }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(s.logger), middleware.MetricsMiddleware(s.metrics))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.NotFound(w, "route not found")
	})

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Handle("/login", s.loginLimiter.Handler(http.HandlerFunc(s.handleLogin))).Methods(http.MethodPost)
	api.HandleFunc("/session/refresh", s.handleRefresh).Methods(http.MethodPost)

	auth := middleware.NewAuthMiddleware(s.gateway, s.cfg.LoginPath, s.logger)
	protected := api.NewRoute().Subrouter()
	protected.Use(auth.Handler)
	protected.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	protected.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	protected.HandleFunc("/board", s.handleBoard).Methods(http.MethodGet)
	protected.HandleFunc("/materials", s.handleListMaterials).Methods(http.MethodGet)
	protected.HandleFunc("/materials", s.handleCreateMaterial).Methods(http.MethodPost)
	protected.HandleFunc("/materials/reorder", s.handleReorder).Methods(http.MethodPost)
	protected.HandleFunc("/materials/{id}", s.handleEditMaterial).Methods(http.MethodPatch)
	protected.HandleFunc("/materials/{id}", s.handleDeleteMaterial).Methods(http.MethodDelete)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"open_boards": s.boards.Len(),
	})
}
