// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the passwordless flows over HTTP with cookie
// sessions.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/samber/oops"

	"github.com/holomush/passwordless/internal/auth"
	"github.com/holomush/passwordless/internal/delivery"
	"github.com/holomush/passwordless/internal/observability"
)

// DefaultRequestTimeout bounds each request, delivery included.
const DefaultRequestTimeout = 30 * time.Second

// Deps are the services the API is built from.
type Deps struct {
	Issuer   *auth.CodeIssuer
	Verifier *auth.Verifier
	Sessions *auth.SessionIssuer
	Sender   delivery.Sender

	// PublicURL is the externally visible base URL used in magic links.
	PublicURL string
	// MagicLinkRedirect is where a magic link lands after verification.
	MagicLinkRedirect string
	// CORSOrigins enables CORS with credentials for the listed origins.
	CORSOrigins []string

	RequestTimeout time.Duration
	Metrics        *observability.HTTPMetrics
	Logger         *slog.Logger
}

// Handler serves the auth routes.
type Handler struct {
	deps   Deps
	logger *slog.Logger
}

// NewRouter builds the HTTP handler with its middleware stack.
func NewRouter(deps Deps) (http.Handler, error) {
	switch {
	case deps.Issuer == nil:
		return nil, oops.Code("HTTPAPI_INVALID_CONFIG").Errorf("code issuer is required")
	case deps.Verifier == nil:
		return nil, oops.Code("HTTPAPI_INVALID_CONFIG").Errorf("verifier is required")
	case deps.Sessions == nil:
		return nil, oops.Code("HTTPAPI_INVALID_CONFIG").Errorf("session issuer is required")
	case deps.Sender == nil:
		return nil, oops.Code("HTTPAPI_INVALID_CONFIG").Errorf("sender is required")
	case deps.MagicLinkRedirect == "":
		return nil, oops.Code("HTTPAPI_INVALID_CONFIG").Errorf("magic link redirect is required")
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = DefaultRequestTimeout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &Handler{deps: deps, logger: deps.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger, deps.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(deps.RequestTimeout))
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.Post("/code", h.requestCode)
		r.Post("/verify", h.verify)
		r.Get("/magic", h.magic)
		r.Get("/session", h.session)
		r.Post("/logout", h.logout)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	return r, nil
}

// requestLogger logs one line per request and feeds the HTTP metrics.
// Query strings are never logged since magic links carry secrets there.
func requestLogger(logger *slog.Logger, metrics *observability.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				route := "unmatched"
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					route = rctx.RoutePattern()
				}
				elapsed := time.Since(start)
				metrics.Observe(route, status, elapsed)
				logger.InfoContext(r.Context(), "http request",
					"method", r.Method,
					"path", r.URL.Path,
					"route", route,
					"status", status,
					"duration", elapsed,
					"remote_addr", r.RemoteAddr,
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
