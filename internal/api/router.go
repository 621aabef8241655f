package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

type RouterConfig struct {
	Service  *appointment.Service
	Verifier TokenVerifier
	Logger   *zap.Logger
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
	PgPool   Pinger
	Redis    *redis.Client
	Limit    config.RateLimitConfig
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	svc := cfg.Service

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware(cfg.Metrics))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(cfg.Gatherer))
	}

	limit := RateLimitMiddleware(cfg.Limit)
	staff := RequireRole(auth.RoleSecretary)
	admin := RequireRole(auth.RoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		// Called by the login service before a session exists. Phone only.
		r.With(limit).Get("/access/check", accessCheckHandler(svc))

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(cfg.Verifier))

			r.Get("/providers", listProvidersHandler(svc))
			r.Get("/providers/{id}/available-dates", availableDatesHandler(svc))
			r.Get("/providers/{id}/slots", timeSlotsHandler(svc))

			r.Get("/appointments", listAppointmentsHandler(svc))
			r.With(limit).Post("/appointments", bookHandler(svc))
			r.With(limit, staff).Post("/appointments/walk-in", walkInHandler(svc))
			r.Get("/appointments/{id}", getAppointmentHandler(svc))
			r.With(limit).Put("/appointments/{id}/status", updateStatusHandler(svc))
			r.With(limit).Post("/appointments/{id}/cancel", cancelHandler(svc))
			r.With(limit).Put("/appointments/{id}/reschedule", rescheduleHandler(svc))
			r.With(limit, staff).Put("/appointments/{id}/pay", payHandler(svc))

			r.Get("/patients/{id}", getPatientHandler(svc))
			r.Get("/patients/{id}/access", patientAccessHandler(svc))
			r.Get("/patients/{id}/wallet", walletHandler(svc))
			r.Get("/patients/{id}/summary", patientSummaryHandler(svc))
			r.With(limit, staff).Post("/patients/{id}/deposit", depositHandler(svc))
			r.With(admin).Post("/patients/{id}/block", blockPatientHandler(svc))
			r.With(admin).Post("/patients/{id}/unblock", unblockPatientHandler(svc))

			r.With(staff).Get("/finance/summary", summaryHandler(svc))
			r.With(staff).Get("/finance/payments", paymentReportHandler(svc))

			r.With(staff).Get("/blocked-phones", listBlockedPhonesHandler(svc))
			r.With(admin).Post("/blocked-phones", addBlockedPhoneHandler(svc))
			r.With(admin).Delete("/blocked-phones/{phone}", removeBlockedPhoneHandler(svc))

			r.Get("/holidays", listHolidaysHandler(svc))
			r.Post("/holidays", addHolidayHandler(svc))
			r.Delete("/holidays/{id}", deleteHolidayHandler(svc))
		})
	})

	return r
}
