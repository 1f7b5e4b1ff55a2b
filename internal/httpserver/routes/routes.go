package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/fleetwatch/monitor/internal/httpserver/deps"
	"github.com/fleetwatch/monitor/internal/httpserver/handlers"
)

func init() {
	Register(func(r chi.Router, d deps.Deps) {
		r.Get("/", handlers.Dashboard(d))
		r.Get("/health", handlers.Health(d))
		r.Get("/health/aggregate", handlers.HealthAggregate(d))
		r.Get("/metrics", handlers.Prometheus(d))
		r.Get("/ws", handlers.WS(d))

		r.Route("/api", func(api chi.Router) {
			api.Get("/services", handlers.ListServices(d))
			api.Get("/services/{id}/health", handlers.ServiceHealth(d))
			api.Post("/services/{id}/restart", handlers.RestartService(d))
			api.Post("/compose", handlers.ComposeAction(d))
			api.Get("/metrics", handlers.APIMetrics(d))
			api.Get("/metrics/summary", handlers.APIMetricsSummary(d))
		})
	})
}
