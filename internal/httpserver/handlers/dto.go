package handlers

import (
	"time"

	"github.com/fleetwatch/monitor/internal/domain"
	"github.com/fleetwatch/monitor/internal/registry"
)

// serviceDoc is the JSON shape returned for a service + its current
// status, used by both the list and detail endpoints.
type serviceDoc struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	HealthEndpoint string `json:"healthEndpoint"`
	ContainerName  string `json:"containerName,omitempty"`
	Critical       bool   `json:"critical"`

	Status               string     `json:"status"`
	LastProbeAt          *time.Time `json:"lastProbeAt,omitempty"`
	LastLatencyMs        int64      `json:"lastLatencyMs"`
	ConsecutiveFailures  int        `json:"consecutiveFailures"`
	ConsecutiveSuccesses int        `json:"consecutiveSuccesses"`
	LastError            string    `json:"lastError,omitempty"`
	RestartCount          int       `json:"restartCount"`
	LastRestartAt        *time.Time `json:"lastRestartAt,omitempty"`
	ErrorRate            float64    `json:"errorRate"`
}

func newServiceDoc(v registry.ServiceView) serviceDoc {
	doc := serviceDoc{
		ID:                   v.Service.ID,
		Name:                 v.Service.Name,
		Type:                 string(v.Service.Type),
		HealthEndpoint:       v.Service.HealthEndpoint,
		ContainerName:        v.Service.ContainerName,
		Critical:             v.Service.Critical,
		Status:               v.Status.Status.String(),
		LastLatencyMs:        v.Status.LastLatencyMs,
		ConsecutiveFailures:  v.Status.ConsecutiveFailures,
		ConsecutiveSuccesses: v.Status.ConsecutiveSuccesses,
		LastError:            v.Status.LastError,
		RestartCount:         v.Status.RestartCount,
	}
	if !v.Status.LastProbeAt.IsZero() {
		t := v.Status.LastProbeAt
		doc.LastProbeAt = &t
	}
	if !v.Status.LastRestartAt.IsZero() {
		t := v.Status.LastRestartAt
		doc.LastRestartAt = &t
	}
	if v.Status.Ring != nil {
		doc.ErrorRate = v.Status.Ring.ErrorRate()
	}
	return doc
}

// outcomeDoc is the JSON shape for one entry of a service's recent-outcome
// ring, returned by the detail endpoint.
type outcomeDoc struct {
	StartedAt  time.Time `json:"startedAt"`
	LatencyMs  int64     `json:"latencyMs"`
	Outcome    string    `json:"outcome"`
	StatusCode int       `json:"statusCode,omitempty"`
	Err        string    `json:"err,omitempty"`
}

func newOutcomeDocs(outcomes []domain.ProbeOutcome) []outcomeDoc {
	docs := make([]outcomeDoc, len(outcomes))
	for i, o := range outcomes {
		docs[i] = outcomeDoc{
			StartedAt:  o.StartedAt,
			LatencyMs:  o.LatencyMs,
			Outcome:    o.Outcome.String(),
			StatusCode: o.StatusCode,
			Err:        o.Err,
		}
	}
	return docs
}

// aggregateDoc mirrors registry.Aggregate with explicit camelCase tags
// (spec.md §6: "/health/aggregate ... camelCase fields").
type aggregateDoc struct {
	Total        int     `json:"total"`
	Healthy      int     `json:"healthy"`
	Degraded     int     `json:"degraded"`
	Unhealthy    int     `json:"unhealthy"`
	Unknown      int     `json:"unknown"`
	CriticalDown int     `json:"criticalDown"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
}

func newAggregateDoc(a registry.Aggregate) aggregateDoc {
	return aggregateDoc{
		Total:        a.Total,
		Healthy:      a.Healthy,
		Degraded:     a.Degraded,
		Unhealthy:    a.Unhealthy,
		Unknown:      a.Unknown,
		CriticalDown: a.CriticalDown,
		AvgLatencyMs: a.AvgLatencyMs,
	}
}
