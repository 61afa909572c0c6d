// Package web provides the HTTP API for member imports.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/JonMunkholm/memberimport/internal/config"
	"github.com/JonMunkholm/memberimport/internal/core"
	mw "github.com/JonMunkholm/memberimport/internal/web/middleware"
)

// Server is the HTTP server for the import API.
type Server struct {
	service  *core.Service
	cfg      *config.Config
	router   *chi.Mux
	server   *http.Server
	validate *requestValidator

	limiters []*mw.RateLimiter
	done     chan struct{}
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service:  service,
		cfg:      cfg,
		router:   chi.NewRouter(),
		validate: newRequestValidator(),
		done:     make(chan struct{}),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5, "application/json", "text/csv"))

	s.router.Use(s.securityHeaders)

	if len(s.cfg.Security.AllowedOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Security.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", mw.HeaderOrganisationID, mw.HeaderBranchID},
			ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	if s.cfg.Rate.Enabled {
		s.router.Use(s.rateLimit(s.cfg.Rate.RequestsPerMinute))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))
		r.Use(mw.RequestScope)

		// Progress streams stay open for the whole run.
		r.Get("/imports/{importID}/progress", s.handleImportProgress)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout()))

			r.Get("/fields", s.handleListFields)
			r.Get("/imports/template", s.handleDownloadTemplate)

			r.Group(func(r chi.Router) {
				if s.cfg.Rate.Enabled {
					r.Use(s.rateLimit(s.cfg.Rate.ImportLimit))
				}
				r.Post("/imports/inspect", s.handleInspect)
				r.Post("/imports/preview", s.handlePreview)
				r.Post("/imports", s.handleStartImport)
			})

			r.Get("/imports/{importID}/result", s.handleImportResult)
			r.Get("/imports/{importID}/failures.csv", s.handleExportFailures)

			r.Get("/history", s.handleListHistory)
			r.Get("/history/{importID}", s.handleGetHistory)

			r.Get("/presets", s.handleListPresets)
			r.Post("/presets", s.handleCreatePreset)
			r.Get("/presets/match", s.handleMatchPresets)
			r.Get("/presets/{presetID}", s.handleGetPreset)
			r.Put("/presets/{presetID}", s.handleUpdatePreset)
			r.Delete("/presets/{presetID}", s.handleDeletePreset)
		})
	})
}

func (s *Server) requestTimeout() time.Duration {
	if s.cfg.Server.RequestTimeout > 0 {
		return s.cfg.Server.RequestTimeout
	}
	return 60 * time.Second
}

// rateLimit builds a per-IP limiter whose idle clients are swept until
// Shutdown.
func (s *Server) rateLimit(perMinute int) func(http.Handler) http.Handler {
	rl := mw.NewRateLimiter(perMinute)
	s.limiters = append(s.limiters, rl)
	go rl.Run(s.done, 5*time.Minute)
	return rl.Middleware
}

// Start begins listening for HTTP requests on the configured address.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.router,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.Server.WriteTimeout, // 0 keeps SSE streams open
		IdleTimeout:       s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// securityHeaders adds security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if s.cfg.Security.EnableCSP {
			// JSON API only: nothing may be loaded.
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}
		next.ServeHTTP(w, r)
	})
}
