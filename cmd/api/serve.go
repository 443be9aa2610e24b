package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/sheet-scraper/internal/application/processing"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/httpserver"
	"github.com/bryanwahyu/sheet-scraper/internal/metrics"
	"github.com/bryanwahyu/sheet-scraper/internal/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the processing workers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath(cmd))
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	pool := processing.NewPool(a.processor, cfg.Worker.Workers, cfg.Worker.QueueSize, cfg.Worker.SubmitTimeout, a.log)
	svc := a.service(pool)

	mux := chi.NewRouter()
	mux.Use(
		middleware.Logging(a.log),
		middleware.Metrics,
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}),
		middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	)
	mux.Get("/health", middleware.HealthHandler(a.checkers))
	mux.Get("/health/ready", middleware.ReadinessHandler(a.checkers))
	mux.Get("/health/live", middleware.LivenessHandler)
	mux.Handle("/metrics", metrics.Handler())
	mux.Mount("/", httpserver.NewRouter(svc, a.log, cfg.Upload.MaxBytes))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext:  requestContext(ctx),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pool.Run(gctx)
	})
	g.Go(func() error {
		// jalankan lagi file yang belum selesai sebelum menerima upload baru
		if _, err := svc.ResumePending(gctx); err != nil && gctx.Err() == nil {
			a.log.Error("resume pending files", "err", err)
		}
		a.log.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// requestContext keeps the signal context's values but not its cancellation,
// so Shutdown can drain in-flight uploads.
func requestContext(ctx context.Context) func(net.Listener) context.Context {
	return func(net.Listener) context.Context { return context.WithoutCancel(ctx) }
}
