package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"librarycatalog/internal/book"
	"librarycatalog/internal/config"
	"librarycatalog/internal/logger"
	"librarycatalog/internal/metrics"
	"librarycatalog/internal/platform/openlibrary"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.SetupDefault(os.Stdout, cfg.LogFormat, cfg.LogLevel)

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	metadata := openlibrary.NewClient(openlibrary.Config{
		BaseURL:   cfg.OpenLibraryBaseURL,
		UserAgent: cfg.OpenLibraryUserAgent,
		RPS:       cfg.OpenLibraryRPS,
	})
	service := book.NewService(store.repo, metadata,
		book.WithRecorder(collector),
		book.WithLogger(log),
		book.WithMetadataTimeout(cfg.MetadataTimeout),
	)

	router, limiter := newRouter(routerDeps{
		cfg:       cfg,
		logger:    log,
		handler:   book.NewHTTPHandler(service, log),
		collector: collector,
		gatherer:  registry,
		ready:     store.ping,
	})
	go limiter.RunCleanup(ctx)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second + cfg.MetadataTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.Addr, "storage", cfg.StorageDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
