package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/fleetwatch/monitor/internal/domain"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return New(prometheus.NewRegistry())
}

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	if err := (<-ch).Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestObserveProbeSetsHealthGauge(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveProbe("svc", domain.StatusHealthy, domain.OutcomeSuccess, 50, 0.0)

	if got := counterValue(t, m.ServiceHealthStatus.WithLabelValues("svc")); got != float64(domain.StatusHealthy) {
		t.Errorf("ServiceHealthStatus = %v, want %v", got, domain.StatusHealthy)
	}
}

func TestIncRestartLabelsBySuccess(t *testing.T) {
	m := newTestMetrics(t)
	m.IncRestart(true)
	m.IncRestart(false)

	if got := counterValue(t, m.ServiceRestartsTotal.WithLabelValues("true")); got != 1 {
		t.Errorf("success counter = %v, want 1", got)
	}
	if got := counterValue(t, m.ServiceRestartsTotal.WithLabelValues("false")); got != 1 {
		t.Errorf("failure counter = %v, want 1", got)
	}
}

func TestIncUnauthorizedRoutesByKind(t *testing.T) {
	m := newTestMetrics(t)
	m.IncUnauthorized(string(domain.CommandComposeAction))
	m.IncUnauthorized(string(domain.CommandRestartService))

	if got := counterValue(t, m.ComposeUnauthorized); got != 1 {
		t.Errorf("ComposeUnauthorized = %v, want 1", got)
	}
	if got := counterValue(t, m.RestartUnauthorized); got != 1 {
		t.Errorf("RestartUnauthorized = %v, want 1", got)
	}
}

func TestObserveComposeLatencyLabelsByAction(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveComposeLatency(string(domain.ComposeUp), 250*time.Millisecond)

	ch := make(chan prometheus.Metric, 1)
	m.ComposeActionDurationSeconds.WithLabelValues(string(domain.ComposeUp)).Collect(ch)
	hist := &dto.Metric{}
	if err := (<-ch).Write(hist); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if hist.Histogram.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", hist.Histogram.GetSampleCount())
	}
}

func TestObserveRestartLatencyLabelsByService(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveRestartLatency("svc", 100*time.Millisecond)

	ch := make(chan prometheus.Metric, 1)
	m.ServiceRestartDurationSeconds.WithLabelValues("svc").Collect(ch)
	hist := &dto.Metric{}
	if err := (<-ch).Write(hist); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if hist.Histogram.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", hist.Histogram.GetSampleCount())
	}
}
