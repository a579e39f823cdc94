package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/meterd/internal/logger"
	"github.com/kailas-cloud/meterd/internal/metrics"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run metering passes on an interval, exposing metrics and health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			return serve(ctx, a)
		},
	}
}

// requestLogger attaches the process logger to each request context so
// handlers can pull it with logger.FromContext.
func requestLogger(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(logger.ContextWithLogger(req.Context(), l)))
		})
	}
}

func serve(ctx context.Context, a *app) error {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(requestLogger(a.logger))
	r.Use(metrics.Middleware())
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		logger.FromContext(req.Context()).Debug("health check")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf(":%d", a.cfg.HTTP.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	interval := time.Duration(a.cfg.Pipeline.IntervalMinutes) * time.Minute
	a.logger.Info("Scheduling metering passes", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runPass := func() {
		if err := a.runOnce(ctx); err != nil {
			a.logger.Error("metering pass failed", zap.Error(err))
		}
	}
	runPass()

loop:
	for {
		select {
		case <-ticker.C:
			runPass()
		case <-quit:
			a.logger.Info("Received shutdown signal")
			break loop
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(a.cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Error during shutdown", zap.Error(err))
	}

	a.logger.Info("Server stopped gracefully")
	return nil
}
