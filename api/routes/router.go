package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rakibulhasan-dev/bazarly-backend/api/controllers"
	admincontrollers "github.com/rakibulhasan-dev/bazarly-backend/api/controllers/admin"
	"github.com/rakibulhasan-dev/bazarly-backend/api/controllers/mockbkash"
	ordercontrollers "github.com/rakibulhasan-dev/bazarly-backend/api/controllers/orders"
	paymentcontrollers "github.com/rakibulhasan-dev/bazarly-backend/api/controllers/payments"
	webhookcontrollers "github.com/rakibulhasan-dev/bazarly-backend/api/controllers/webhooks"
	"github.com/rakibulhasan-dev/bazarly-backend/api/middleware"
	internalorders "github.com/rakibulhasan-dev/bazarly-backend/internal/orders"
	"github.com/rakibulhasan-dev/bazarly-backend/internal/payments"
	bkashwebhook "github.com/rakibulhasan-dev/bazarly-backend/internal/webhooks/bkash"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/config"
	"github.com/rakibulhasan-dev/bazarly-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             pinger
	Redis          pinger
	Orders         internalorders.Service
	Engine         payments.Engine
	WebhookService *bkashwebhook.Service
	Metrics        prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, params.DB, params.Redis, logg))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/bkash", webhookcontrollers.BkashWebhook(params.WebhookService, logg))
	})

	// Gateway redirect target; the customer's browser lands here, no auth.
	r.Get("/api/v1/payments/bkash/callback", paymentcontrollers.BkashCallback(params.Engine, logg))

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Post("/", ordercontrollers.Create(params.Orders, params.Engine, logg))
		r.Get("/", ordercontrollers.List(params.Orders, logg))
		r.Get("/{orderId}", ordercontrollers.Detail(params.Orders, logg))
		r.Post("/{orderId}/payment/retry", ordercontrollers.RetryPayment(params.Engine, logg))
	})

	r.Route("/api/admin/v1/orders", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAdmin(logg))
		r.Post("/{orderId}/refund", admincontrollers.Refund(params.Engine, logg))
		r.Patch("/{orderId}/status", admincontrollers.UpdateStatus(params.Orders, logg))
	})

	if cfg.Bkash.MockMode && !cfg.App.IsProd() {
		r.Mount("/mock/bkash", mockbkash.NewSimulator(logg).Router())
	}

	return r
}
