package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/brunobiangulo/papergraph"
)

// newRouter wires routes and middleware.
// Middleware chain: recovery -> request id -> cors -> auth -> logging -> routes
func newRouter(engine papergraph.Engine, cfg papergraph.Config) http.Handler {
	h := newHandler(engine, cfg)

	r := chi.NewRouter()
	r.Use(recoveryMiddleware)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	if len(cfg.Server.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         86400,
		}))
	}
	r.Use(authMiddleware(cfg.Server.APIKey))
	r.Use(logMiddleware)

	r.Get("/", h.handleIndex)
	r.Post("/extract", h.handleExtract)
	r.Get("/artifacts/{name}", h.handleArtifact)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", h.handleListRuns)
		r.Get("/{id}", h.handleGetRun)
		r.Get("/{id}/graph", h.handleRunGraph)
		r.Get("/{id}/{kind}", h.handleRunArtifact)
	})
	r.Get("/methods/similar", h.handleSimilar)
	r.Get("/health", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", engine.Metrics().Handler())

	return r
}
