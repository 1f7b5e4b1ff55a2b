package handlers

import (
	"net/http"
	"time"

	"github.com/fleetwatch/monitor/internal/httpserver/deps"
)

type healthDoc struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Time    string `json:"timestamp"`
}

// Health implements GET /health: the engine's own liveness, not the
// fleet's (spec.md §6 distinguishes this from /health/aggregate).
func Health(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthDoc{
			Status:  "ok",
			Service: "monitor",
			Time:    time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// HealthAggregate implements GET /health/aggregate: the fleet summary.
func HealthAggregate(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, newAggregateDoc(d.Registry.Aggregate()))
	}
}
