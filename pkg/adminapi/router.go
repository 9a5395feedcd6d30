package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/smbconn/internal/adminapi/auth"
	"github.com/marmos91/smbconn/internal/adminapi/handlers"
	apiMiddleware "github.com/marmos91/smbconn/internal/adminapi/middleware"
	"github.com/marmos91/smbconn/internal/logger"
	"github.com/marmos91/smbconn/pkg/config"
	"github.com/marmos91/smbconn/pkg/metrics"
	"github.com/marmos91/smbconn/pkg/smbconn"
)

// NewRouter creates the chi router with all middleware and routes.
//
// Routes:
//   - GET /health - Liveness check
//   - GET /metrics - Prometheus metrics (404 when metrics are disabled)
//   - POST /api/v1/auth/login - Admin authentication
//   - GET /api/v1/sessions - Sessions and shares
//   - GET /api/v1/sessions/{id} - One session and its shares
//   - DELETE /api/v1/sessions/{id} - Forget a session
//   - POST /api/v1/sessions/{id}/reconnect - Reconnect a session
//   - DELETE /api/v1/sessions/{id}/shares/{name} - Forget a share
func NewRouter(mgr *smbconn.Manager, jwtService *auth.JWTService, users []config.AdminUser) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(mgr)
	r.Get("/health", healthHandler.Liveness)
	r.Handle("/metrics", metrics.Handler())

	authHandler := handlers.NewAuthHandler(users, jwtService)
	sessionHandler := handlers.NewSessionHandler(mgr)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.JWTAuth(jwtService))

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", sessionHandler.List)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", sessionHandler.Get)
					r.Delete("/", sessionHandler.Delete)
					r.Post("/reconnect", sessionHandler.Reconnect)
					r.Delete("/shares/{name}", sessionHandler.DeleteShare)
				})
			})
		})
	})

	return r
}

// isQuietPath reports whether request logging should stay at DEBUG.
func isQuietPath(path string) bool {
	return path == "/health" || path == "/metrics" || strings.HasPrefix(path, "/health/")
}

// requestLogger logs requests using the internal logger. Health and
// metrics scrapes are logged at DEBUG.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.DurationMs(logger.Duration(start)),
		}

		if isQuietPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
