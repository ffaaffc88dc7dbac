package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-scheduling/internal/appointment"
	"github.com/hackgods/consultation-scheduling/internal/auth"
)

type RouterConfig struct {
	Service  *appointment.Service
	Verifier *auth.Verifier
	Store    Pinger
	Redis    *redis.Client // optional
	Log      *zap.Logger

	RateLimitRPS   float64
	RateLimitBurst int

	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))

	// Health endpoints are unauthenticated.
	health := NewHealthHandler(cfg.Store, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := &appointmentHandlers{svc: cfg.Service}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Verifier))
		r.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst, log))

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.create)
			r.Get("/", h.list)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.get)
				r.Post("/cancel", h.action(cfg.Service.Cancel))
				r.Post("/complete", h.action(cfg.Service.Complete))
				r.Post("/confirm", h.action(cfg.Service.Confirm))
				r.Post("/start", h.action(cfg.Service.Start))
				r.Put("/video-room", h.attachVideoRoom)
				r.Put("/rating", h.rate)
				r.Get("/rating", h.getRating)
			})
		})

		r.Get("/professionals/{id}/availability", h.availability)
	})

	return r
}
