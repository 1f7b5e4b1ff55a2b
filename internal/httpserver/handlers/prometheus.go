package handlers

import (
	"net/http"

	"github.com/fleetwatch/monitor/internal/httpserver/deps"
)

// Prometheus implements GET /metrics: Prometheus text exposition.
func Prometheus(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.PromHandler.ServeHTTP(w, r)
	}
}
