// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/debdevops/servicehub/internal/broker"
	"github.com/debdevops/servicehub/internal/config"
	"github.com/debdevops/servicehub/internal/credstore"
	"github.com/debdevops/servicehub/internal/dlqstore"
	"github.com/debdevops/servicehub/internal/middleware"
	"github.com/debdevops/servicehub/internal/models"
	"github.com/debdevops/servicehub/internal/query"
	"github.com/debdevops/servicehub/internal/replay"
	"github.com/debdevops/servicehub/internal/rules"
)

// GatewaySource hands out broker gateways per namespace; the dial
// provider implements it.
type GatewaySource interface {
	Gateway(ctx context.Context, ns *models.Namespace) (broker.Gateway, error)
	Invalidate(namespaceID string)
}

// Router wires the HTTP surface to the domain components. All fields are
// set at construction and immutable afterwards.
type Router struct {
	cfg      *config.Config
	creds    *credstore.Store
	store    *dlqstore.Store
	query    *query.Service
	engine   *rules.Engine
	executor *replay.Executor
	gateways GatewaySource

	version string
	started time.Time
}

// NewRouter creates the router. version is the build version reported by
// the version and health endpoints.
func NewRouter(
	cfg *config.Config,
	creds *credstore.Store,
	store *dlqstore.Store,
	querySvc *query.Service,
	engine *rules.Engine,
	executor *replay.Executor,
	gateways GatewaySource,
	version string,
) *Router {
	return &Router{
		cfg:      cfg,
		creds:    creds,
		store:    store,
		query:    querySvc,
		engine:   engine,
		executor: executor,
		gateways: gateways,
		version:  version,
		started:  time.Now(),
	}
}

// chiMiddleware adapts http.HandlerFunc middleware to chi's
// func(http.Handler) http.Handler so it composes under r.Use.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// chiPathValue copies chi URL params onto the request so handlers can use
// r.PathValue regardless of how they were mounted.
func chiPathValue(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.RouteContext(r.Context())
		if rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				if i < len(rctx.URLParams.Values) {
					r.SetPathValue(key, rctx.URLParams.Values[i])
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// slowRequestThreshold flags requests worth a log line; bulk replays and
// broker peeks against slow namespaces are the usual suspects.
const slowRequestThreshold = time.Second

// Routes builds the full handler tree.
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	// Global stack, applied to every route including /metrics.
	r.Use(chiMiddleware(middleware.Correlation))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.cfg.Security.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Correlation-Id", "X-Request-ID"},
		ExposedHeaders: []string{
			"X-Correlation-Id", "X-Request-ID",
			"X-Total-Count", "X-Page-Number", "X-Page-Size",
		},
		MaxAge: 300,
	}))

	r.Get("/healthz", rt.handleLive)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if !rt.cfg.Security.RateLimitDisabled {
			r.Use(httprate.Limit(
				rt.cfg.Security.RateLimitReqs,
				rt.cfg.Security.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, req *http.Request) {
					writeProblem(w, req, http.StatusTooManyRequests, models.CodeRateLimited,
						"request rate limit exceeded, slow down")
				}),
			))
		}
		r.Use(securityHeaders)
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(chiMiddleware(middleware.Compression))
		r.Use(chiMiddleware(middleware.SlowRequest(slowRequestThreshold)))
		r.Use(chiPathValue)

		r.Get("/health", rt.handleHealth)
		r.Get("/version", rt.handleVersion)

		r.Route("/namespaces", func(r chi.Router) {
			r.Get("/", rt.listNamespaces)
			r.Post("/", rt.createNamespace)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", rt.getNamespace)
				r.Put("/", rt.updateNamespace)
				r.Delete("/", rt.deleteNamespace)
				r.Post("/test", rt.testNamespace)

				r.Get("/queues", rt.listQueues)
				r.Get("/topics", rt.listTopics)

				r.Route("/queues/{entity}", func(r chi.Router) {
					r.Post("/messages", rt.sendMessage)
					r.Get("/messages", rt.peekMessages)
					r.Post("/messages:deadLetter", rt.deadLetterMessage)
				})
				r.Route("/topics/{topic}", func(r chi.Router) {
					r.Get("/subscriptions", rt.listSubscriptions)
					r.Post("/messages", rt.sendMessage)

					r.Route("/subscriptions/{entity}", func(r chi.Router) {
						r.Get("/messages", rt.peekMessages)
						r.Post("/messages:deadLetter", rt.deadLetterMessage)
					})
				})
			})
		})

		r.Route("/dlq", func(r chi.Router) {
			r.Get("/", rt.listDlq)
			r.Get("/summary", rt.dlqSummary)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", rt.getDlqEntry)
				r.Get("/timeline", rt.dlqTimeline)
				r.Patch("/notes", rt.patchDlqNotes)
				r.Patch("/status", rt.patchDlqStatus)
				r.Post("/replay", rt.replayEntry)
			})
		})
		r.Post("/dlq:replayAll", rt.replayAll)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", rt.listRules)
			r.Post("/", rt.createRule)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", rt.getRule)
				r.Put("/", rt.updateRule)
				r.Delete("/", rt.deleteRule)
			})
		})
		r.Post("/rules:test", rt.testRuleDryRun)
	})

	return r
}
