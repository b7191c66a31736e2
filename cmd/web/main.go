package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/app"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/config"
	apphttp "github.com/viniciusmedieval/pix-portal-sub000/internal/http"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := app.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTel, logger)
	if err != nil {
		logger.Error("telemetry init failed", "err", err)
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: apphttp.NewRouter(apphttp.Deps{
			Logger:       logger,
			DB:           a.DB,
			Metrics:      a.Metrics,
			ServiceName:  cfg.OTel.ServiceName,
			Products:     a.Products,
			Orders:       a.Orders,
			AdminOrders:  a.AdminOrders,
			References:   a.References,
			Reconciler:   a.Reconciler,
			Webhooks:     a.Webhooks,
			Checkout:     a.Checkout,
			Notifier:     a.Notifier,
			WebhookToken: cfg.Gateway.WebhookToken,
			AdminSecret:  cfg.Admin.JWTSecret,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("close dependencies", "err", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown", "err", err)
	}
	logger.Info("stopped")
}
