package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/benvon/medvax-chat/internal/middleware"
)

// APIPrefix is where the chatbot routes are mounted.
const APIPrefix = "/api/chatbot"

// RouterConfig assembles the HTTP surface. Nil handlers leave their routes
// unregistered; a nil RateLimiter disables rate limiting.
type RouterConfig struct {
	Chat     *ChatHandler
	Sessions *SessionHandler
	Admin    *AdminHandler
	Health   *HealthChecker
	OpenAPI  *OpenAPIHandler

	RateLimiter   *middleware.RateLimiter
	AdminVerifier middleware.AdminVerifier

	AllowedOrigins  []string
	EnableHSTS      bool
	MaxRequestBytes int64
	RequestTimeout  time.Duration
	// TracingService enables otelmux spans under this service name.
	TracingService string

	Logger *zap.Logger
}

// NewRouter builds the router with the full middleware chain. CORS wraps the
// router itself so preflight requests are answered before route matching.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := mux.NewRouter()

	if cfg.TracingService != "" {
		r.Use(otelmux.Middleware(cfg.TracingService))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.MaxRequestSize(cfg.MaxRequestBytes))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.ErrorHandler(log))
	r.Use(middleware.Audit(log))
	r.Use(middleware.Logging(log))

	if cfg.OpenAPI != nil {
		cfg.OpenAPI.RegisterRoutes(r)
	}

	api := r.PathPrefix(APIPrefix).Subrouter()
	var limit RouteWrapper
	if cfg.RateLimiter != nil {
		api.Use(cfg.RateLimiter.General())
		limit = cfg.RateLimiter.Limit
	}

	if cfg.Health != nil {
		api.HandleFunc("/health", cfg.Health.HealthCheck).Methods(http.MethodGet)
	}
	if cfg.Chat != nil {
		cfg.Chat.RegisterRoutes(api, limit)
	}
	if cfg.Sessions != nil {
		cfg.Sessions.RegisterRoutes(api, limit)
	}
	if cfg.Admin != nil && cfg.AdminVerifier != nil {
		admin := api.PathPrefix("/admin").Subrouter()
		admin.Use(middleware.AdminAuth(cfg.AdminVerifier, log))
		cfg.Admin.RegisterRoutes(admin)
	}

	return middleware.CORS(cfg.AllowedOrigins, log)(r)
}
