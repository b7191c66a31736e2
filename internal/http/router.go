// Package http assembles the gin engine: middleware order, routes and the
// handlers behind them.
package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/http/handlers"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/http/handlers/admin"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/http/middleware"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/metrics"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/checkout"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/products"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/validation"
)

type Deps struct {
	Logger      *slog.Logger
	DB          *gorm.DB
	Metrics     *metrics.Metrics
	ServiceName string

	Products     products.Repository
	Orders       *orders.Repo
	AdminOrders  *orders.AdminService
	References   *payments.References
	Reconciler   *payments.Reconciler
	Webhooks     *payments.WebhookService
	Checkout     *checkout.Manager
	Notifier     payments.Notifier
	WebhookToken string
	AdminSecret  string
}

func NewRouter(d Deps) *gin.Engine {
	validation.RegisterGin()

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logger(d.Logger, "/healthz", "/metrics"),
		middleware.Metrics(d.Metrics),
		middleware.ErrorHandler(d.Logger),
		middleware.Recovery(d.Logger),
	)
	if d.ServiceName != "" {
		r.Use(otelgin.Middleware(d.ServiceName))
	}

	r.GET("/healthz", handlers.Healthz(d.DB))
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	wh := handlers.NewWebhookHandler(d.Logger, d.WebhookToken, d.Webhooks)
	r.POST("/webhooks/asaas", wh.Asaas)

	api := r.Group("/api")
	{
		ph := handlers.NewProductsHandler(d.Products)
		api.GET("/products", ph.List)

		ch := handlers.NewCheckoutHandler(d.Checkout)
		s := api.Group("/checkout/sessions")
		s.POST("", ch.Start)
		s.GET("/:id", ch.Get)
		s.DELETE("/:id", ch.Close)
		s.POST("/:id/personal-info", ch.PersonalInfo)
		s.POST("/:id/back", ch.Back)
		s.POST("/:id/payment", ch.Pay)
		s.POST("/:id/pix/refresh", ch.RefreshPix)

		oh := handlers.NewOrdersHandler(d.Orders, d.Reconciler)
		api.GET("/orders/:id/status", oh.Status)
	}

	adm := r.Group("/api/admin", middleware.RequireAdmin(d.AdminSecret))
	{
		ah := admin.NewOrdersHandler(d.Orders, d.AdminOrders, d.References, d.Notifier)
		adm.GET("/orders", ah.List)
		adm.GET("/orders/:id", ah.Detail)
		adm.POST("/orders/:id/cancel", ah.Cancel)
	}

	return r
}
