package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robertarktes/checkout-orchestrator/internal/idempotency"
	"github.com/robertarktes/checkout-orchestrator/internal/observability"
	"github.com/robertarktes/checkout-orchestrator/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(RateLimitMiddleware(rl))

	r.Post("/v1/checkouts", h.OpenCheckout)
	r.Get("/v1/checkouts/{id}", h.GetCheckout)
	r.With(IdempotencyMiddleware(idemp)).Post("/v1/checkouts/{id}/confirm", h.ConfirmCheckout)
	r.Delete("/v1/checkouts/{id}", h.CancelCheckout)
	r.Post("/v1/payments/callback", h.PaymentCallback)
	r.Post("/v1/events/publish", h.PublishEvent)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
