// Package app wires the checkout service from a Config. The HTTP server and
// the operator CLI build the same graph.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/config"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/database"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/events"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/mailer"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/metrics"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/checkout"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/notify"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments/asaas"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/products"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/settings"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	DB      *gorm.DB
	Metrics *metrics.Metrics

	Products    *products.GormRepo
	Orders      *orders.Repo
	AdminOrders *orders.AdminService
	Settings    *settings.Provider
	References  *payments.References
	Reconciler  *payments.Reconciler
	Webhooks    *payments.WebhookService
	Notifier    *notify.Notifier
	Checkout    *checkout.Manager

	publisher events.Publisher
	redis     redis.UniversalClient
}

// NewLogger returns the JSON stdout logger every command uses.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// New connects to the database and optional Redis and builds every service.
// Close releases them.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := database.Open(cfg.DB, logger)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Metrics: metrics.New(reg),
	}

	var guard payments.Guard = payments.NewMemoryGuard()
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		guard = payments.NewRedisGuard(a.redis, 0)
		logger.InfoContext(ctx, "in-flight guard: redis", "addr", cfg.Redis.Addr)
	}

	a.publisher = events.New(events.ParseBrokers(cfg.Kafka.Brokers), cfg.Kafka.OrderTopic)
	var mail mailer.Service = mailer.Nop{}
	if cfg.SMTP.Enabled() {
		mail = mailer.NewSMTPMailer(cfg.SMTP)
	}
	a.Notifier = notify.New(a.publisher, mail, logger, 0)

	a.Products = products.NewGormRepo(db)
	a.Orders = orders.NewRepo(db)
	a.AdminOrders = orders.NewAdminService(a.Orders)
	a.References = payments.NewReferences(db)
	a.Settings = settings.NewProvider(db, settings.Endpoints{
		Production: cfg.Gateway.ProductionURL,
		Sandbox:    cfg.Gateway.SandboxURL,
	})

	a.Reconciler = payments.NewReconciler(payments.Deps{
		Orders:       a.Orders,
		Refs:         a.References,
		Settings:     a.Settings,
		Connector:    asaas.NewConnector(cfg.Gateway.Timeout),
		Guard:        guard,
		Notifier:     a.Notifier,
		Metrics:      a.Metrics,
		Logger:       logger,
		PollInterval: cfg.Gateway.PollInterval,
		PollMax:      cfg.Gateway.PollMax,
	})
	a.Webhooks = payments.NewWebhookService(db, a.Reconciler, a.Metrics)
	a.Webhooks.SetLogger(logger)

	a.Checkout = checkout.NewManager(checkout.Deps{
		Catalog:  a.Products,
		Settings: a.Settings,
		Payments: a.Reconciler,
		Logger:   logger,
		TTL:      cfg.Checkout.SessionTTL,
	})
	return a, nil
}

// Close stops checkout watches, drains notifications and closes connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Checkout != nil {
		a.Checkout.Shutdown()
	}
	if a.Notifier != nil {
		errs = append(errs, a.Notifier.Close(ctx))
	}
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}
