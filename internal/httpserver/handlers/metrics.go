package handlers

import (
	"net/http"
	"time"

	"github.com/fleetwatch/monitor/internal/httpserver/deps"
)

type serviceMetricDoc struct {
	ServiceID     string  `json:"serviceId"`
	Status        string  `json:"status"`
	LastLatencyMs int64   `json:"lastLatencyMs"`
	ErrorRate     float64 `json:"errorRate"`
	RestartCount  int     `json:"restartCount"`
}

// APIMetrics implements GET /api/metrics: a JSON view of per-service
// status, latency and restart data for dashboards that don't want to
// parse text exposition. Its errorRate is the failed fraction of the
// outcome ring, not the failures-per-minute value of service_error_rate.
func APIMetrics(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views := d.Registry.List()
		docs := make([]serviceMetricDoc, len(views))
		for i, v := range views {
			errRate := 0.0
			if v.Status.Ring != nil {
				errRate = v.Status.Ring.ErrorRate()
			}
			docs[i] = serviceMetricDoc{
				ServiceID:     v.Service.ID,
				Status:        v.Status.Status.String(),
				LastLatencyMs: v.Status.LastLatencyMs,
				ErrorRate:     errRate,
				RestartCount:  v.Status.RestartCount,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"aggregate": newAggregateDoc(d.Registry.Aggregate()),
			"services":  docs,
		})
	}
}

// summaryDoc is the SPEC_FULL system-wide aggregate endpoint's response
// shape: metrics a dashboard would otherwise have to scrape Prometheus
// text and parse to get.
type summaryDoc struct {
	UptimeSeconds  float64 `json:"uptimeSeconds"`
	TotalServices  int     `json:"totalServices"`
	TotalRestarts  int     `json:"totalRestarts"`
	AvgLatencyMs   float64 `json:"avgLatencyMs"`
	CriticalDown   int     `json:"criticalDown"`
}

// APIMetricsSummary implements GET /api/metrics/summary.
func APIMetricsSummary(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agg := d.Registry.Aggregate()
		totalRestarts := 0
		for _, v := range d.Registry.List() {
			totalRestarts += v.Status.RestartCount
		}
		writeJSON(w, http.StatusOK, summaryDoc{
			UptimeSeconds: time.Since(d.StartTime).Seconds(),
			TotalServices: agg.Total,
			TotalRestarts: totalRestarts,
			AvgLatencyMs:  agg.AvgLatencyMs,
			CriticalDown:  agg.CriticalDown,
		})
	}
}
