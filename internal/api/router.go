package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/mailqueue/internal/api/handler"
	apimw "github.com/notifyhub/mailqueue/internal/api/middleware"
	"github.com/notifyhub/mailqueue/internal/repository"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc handler.EmailService,
	jobs handler.JobReader,
	deliveries repository.DeliveryRepository,
	b handler.BrokerStatus,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID(logger))
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	eh := handler.NewEmailHandler(svc, logger)
	qh := handler.NewQueueHandler(jobs)
	dh := handler.NewDeliveryHandler(deliveries)
	hh := handler.NewHealthHandler(b, svc)

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/emails", eh.Submit)
		r.Post("/emails/welcome", eh.Welcome)
		r.Post("/emails/reset-password", eh.ResetPassword)
		r.Post("/emails/password-changed", eh.PasswordChanged)

		r.Get("/jobs/{id}", qh.GetJob)
		r.Get("/queue", qh.Stats)

		r.Get("/deliveries", dh.List)
	})

	return r
}
