package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/app"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/cli"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	open := func(ctx context.Context) (*cli.Env, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		// stdout carries command output; logs go to stderr.
		logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

		a, err := app.New(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		env := &cli.Env{
			Reconciler: a.Reconciler,
			Orders:     a.Orders,
			Admin:      a.AdminOrders,
			Refs:       a.References,
			Settings:   a.Settings,
			Notifier:   a.Notifier,
		}
		release := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := a.Close(closeCtx); err != nil {
				logger.Error("close dependencies", "err", err)
			}
		}
		return env, release, nil
	}

	err := cli.NewRootCommand(open).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
