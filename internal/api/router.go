// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/mosaicus/internal/config"
	"github.com/tomtom215/mosaicus/internal/engine"
	"github.com/tomtom215/mosaicus/internal/websocket"
)

// Router assembles the HTTP surface.
type Router struct {
	handler *Handler
	cfg     *config.Config
}

// NewRouter wires the handler set to its collaborators.
func NewRouter(svc *engine.Service, hub *websocket.Hub, cfg *config.Config) *Router {
	return &Router{
		handler: NewHandler(svc, hub, cfg),
		cfg:     cfg,
	}
}

// Setup builds the Chi route tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.cfg.Security.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}))

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1/context", func(r chi.Router) {
		r.Use(httprate.Limit(
			router.cfg.Security.RateLimitReqs,
			router.cfg.Security.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		))
		r.Use(PrometheusMetrics)
		r.Use(AccessLogging)
		r.Use(Authenticate(router.cfg.Security))

		r.Post("/", router.handler.ContextCreate)
		r.Get("/", router.handler.ContextList)

		r.Route("/{contextID}", func(r chi.Router) {
			r.Get("/", router.handler.ContextGet)
			r.Delete("/", router.handler.ContextDelete)
			r.Get("/layout", router.handler.LayoutGet)
			r.Post("/evaluate", router.handler.Evaluate)

			r.Route("/devices", func(r chi.Router) {
				r.Post("/", router.handler.DeviceJoin)
				r.Delete("/{deviceID}", router.handler.DeviceLeave)
				r.Put("/{deviceID}/regions", router.handler.DeviceRegions)
			})

			r.Route("/dmapp", func(r chi.Router) {
				r.Post("/", router.handler.DMAppLoad)
				r.Route("/{dmappID}", func(r chi.Router) {
					r.Get("/", router.handler.DMAppGet)
					r.Delete("/", router.handler.DMAppUnload)
					r.Post("/transaction", router.handler.Transaction)
					r.Post("/simulate", router.handler.Simulate)
					r.Put("/components/{componentID}/priorities", router.handler.Priorities)
				})
			})
		})
	})

	// Websocket subscription; rate limiting here would break long-lived
	// connections, the hub does its own per-connection limiting.
	r.Get("/api/v1/ws", router.handler.WebSocket)

	r.Handle("/metrics", promhttp.Handler())

	return r
}
