package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/marketplace-checkout/internal/observability"
	"github.com/robertarktes/marketplace-checkout/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Group(func(r chi.Router) {
		if rl != nil {
			r.Use(RateLimitMiddleware(rl))
		}
		r.Use(IdempotencyKeyMiddleware)

		r.Post("/v1/orders", h.CreateOrder)
		r.Post("/v1/checkout/sessions", h.CreateCheckoutSession)
		r.Post("/v1/packages", h.CreatePackage)
		r.Post("/v1/listings", h.CreateListing)
	})

	r.Get("/v1/orders/{id}", h.GetOrder)
	r.Get("/v1/packages/{id}", h.GetPackage)
	r.Get("/v1/listings/{id}", h.GetListing)
	r.Get("/v1/dashboard/summary", h.DashboardSummary)

	// The gateway authenticates with its signature header, not an
	// Idempotency-Key, and must never be rate limited away.
	r.Post("/v1/webhooks/payment", h.PaymentWebhook)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
