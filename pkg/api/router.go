package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/termgate/termgate/internal/logger"
	"github.com/termgate/termgate/pkg/api/handlers"
	"github.com/termgate/termgate/pkg/api/middleware"
)

// newRouter builds the chi router with the full middleware stack and all
// control routes.
//
// Middleware order matters: request IDs and real client IPs are resolved
// first so the logger and the rate limiters see them; panics are recovered
// before any handler runs. The per-request timeout applies to /api only;
// the stream channel at /ws is long-lived.
func (s *Server) newRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(corsOptions(s.config.CORSOrigin)))

	authHandler := handlers.NewAuthHandler(s.deps.Auth, s.deps.Store)
	profileHandler := handlers.NewProfileHandler(s.deps.Store, s.deps.Vault)
	healthHandler := handlers.NewHealthHandler(s.deps.Store)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(s.config.RequestTimeout))
		r.Use(middleware.RateLimit(s.deps.GlobalLimiter, "global", s.deps.Metrics))

		r.Route("/auth", func(r chi.Router) {
			// Register and login carry a stricter budget on top of the
			// global one; both limiters must admit the request.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(s.deps.AuthLimiter, "auth", s.deps.Metrics))
				r.Post("/register", authHandler.Register)
				r.Post("/login", authHandler.Login)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.JWTAuth(s.deps.Auth))
				r.Get("/verify", authHandler.Verify)
				r.Put("/preferences", authHandler.UpdatePreferences)
			})
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Use(middleware.JWTAuth(s.deps.Auth))
			r.Get("/", profileHandler.List)
			r.Post("/", profileHandler.Create)
			r.Put("/{id}", profileHandler.Update)
			r.Delete("/{id}", profileHandler.Delete)
		})
	})

	r.Get("/health", healthHandler.Health)
	r.Get("/ws", s.handleStream)

	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handlers.NotFound(w, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

// corsOptions translates the single configured origin into go-chi/cors
// options. An empty origin allows everything, which is the development
// default.
func corsOptions(origin string) cors.Options {
	allowed := []string{"*"}
	credentials := false
	if origin != "" {
		allowed = []string{origin}
		credentials = true
	}
	return cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: credentials,
		MaxAge:           300,
	}
}

// requestLogger logs each request and feeds the HTTP metrics.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimw.GetReqID(r.Context())

		logger.Debug("request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		s.deps.Metrics.ObserveHTTPRequest(r.Method, routePattern(r), ww.Status(), duration)

		logger.Info("request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		)
	})
}

// routePattern returns the matched chi route pattern, keeping metric label
// cardinality bounded. Unmatched requests collapse into one label.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unmatched"
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return "unmatched"
}
