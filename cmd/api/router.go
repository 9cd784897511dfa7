package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"librarycatalog/internal/book"
	"librarycatalog/internal/config"
	"librarycatalog/internal/httpx"
	"librarycatalog/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const readyTimeout = 500 * time.Millisecond

type routerDeps struct {
	cfg       *config.Config
	logger    *slog.Logger
	handler   *book.HTTPHandler
	collector *metrics.Collector
	gatherer  prometheus.Gatherer
	ready     func(context.Context) error
}

// newRouter assembles the middleware chain and every route. The returned
// rate limiter must have RunCleanup started by the caller.
func newRouter(d routerDeps) (http.Handler, *httpx.RateLimitMiddleware) {
	limiter := httpx.NewRateLimitMiddleware(d.cfg.RateLimitRPS, d.cfg.RateLimitBurst)

	r := chi.NewRouter()
	r.Use(
		httpx.RequestIDMiddleware,
		httpx.AccessLogMiddleware(d.logger),
		httpx.RecoveryMiddleware(d.logger),
		d.collector.Middleware,
		httpx.SecurityHeadersMiddleware(d.cfg.EnableHSTS),
		httpx.CORSMiddleware(d.cfg.CORSOrigins),
	)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := d.ready(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(d.gatherer))

	r.Group(func(r chi.Router) {
		r.Use(
			httpx.RequestSizeLimitMiddleware(d.cfg.MaxBodyBytes),
			limiter.Middleware,
		)
		d.handler.Routes(r)
	})

	return r, limiter
}
