// Package metrics exposes the engine's Prometheus series (spec.md §4.8)
// and implements the small recorder interfaces consumed by the
// Reconciler, Dispatcher, Stats Collector, and httpserver. Adopted from
// jinterlante1206-AleutianLocal's observability package, the only example
// repo with a real prometheus/client_golang dependency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fleetwatch/monitor/internal/domain"
)

const namespace = "monitor"

// Metrics bundles every series defined by spec.md §4.8.
type Metrics struct {
	ServiceHealthStatus          *prometheus.GaugeVec
	ServiceCPUUsagePercent       *prometheus.GaugeVec
	ServiceMemoryUsageMegabytes  *prometheus.GaugeVec
	ServiceErrorRate             *prometheus.GaugeVec
	WebsocketConnectionsActive   prometheus.Gauge

	HealthChecksTotal       *prometheus.CounterVec
	ServiceRestartsTotal    *prometheus.CounterVec
	MonitorUptimeSeconds    prometheus.Counter
	ComposeActionsTotal     *prometheus.CounterVec
	ComposeUnauthorized     prometheus.Counter
	RestartUnauthorized     prometheus.Counter
	OpenModeAllowed         prometheus.Counter
	HTTPRequestsTotal       *prometheus.CounterVec
	ServiceNetworkInBytes   *prometheus.CounterVec
	ServiceNetworkOutBytes  *prometheus.CounterVec
	ServiceBlockReadBytes   *prometheus.CounterVec
	ServiceBlockWriteBytes  *prometheus.CounterVec

	ServiceResponseTimeSeconds    *prometheus.HistogramVec
	HTTPRequestDurationSeconds    *prometheus.HistogramVec
	ComposeActionDurationSeconds  *prometheus.HistogramVec
	ServiceRestartDurationSeconds *prometheus.HistogramVec
}

// New registers every series against reg and returns the bundle. Pass
// prometheus.NewRegistry() in tests to avoid the global default
// registry's duplicate-registration panics across test runs.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ServiceHealthStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "service_health_status",
			Help: "Current status per service (0=unknown,1=healthy,2=degraded,3=unhealthy)",
		}, []string{"service_id"}),
		ServiceCPUUsagePercent: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "service_cpu_usage_percent",
			Help: "Latest CPU usage percent reported by the container driver",
		}, []string{"service_id"}),
		ServiceMemoryUsageMegabytes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "service_memory_usage_megabytes",
			Help: "Latest memory usage in MB reported by the container driver",
		}, []string{"service_id"}),
		ServiceErrorRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "service_error_rate",
			Help: "Failures per minute over a rolling 5-minute window",
		}, []string{"service_id"}),
		WebsocketConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "websocket_connections_active",
			Help: "Currently connected /ws clients",
		}),

		HealthChecksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "health_checks_total",
			Help: "Probe outcomes by resulting status",
		}, []string{"status"}),
		ServiceRestartsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "service_restarts_total",
			Help: "Restart attempts by success",
		}, []string{"success"}),
		MonitorUptimeSeconds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "monitor_uptime_seconds_total",
			Help: "Cumulative process uptime in seconds",
		}),
		ComposeActionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "compose_actions_total",
			Help: "Compose actions by kind and success",
		}, []string{"action", "success"}),
		ComposeUnauthorized: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "compose_unauthorized_total",
			Help: "Rejected compose action requests",
		}),
		RestartUnauthorized: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "restart_unauthorized_total",
			Help: "Rejected restart requests",
		}),
		OpenModeAllowed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "open_mode_allowed_total",
			Help: "Requests allowed because no authorization is configured",
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method, path, and status",
		}, []string{"method", "path", "status"}),
		ServiceNetworkInBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "service_network_in_bytes",
			Help: "Cumulative network bytes received per service container",
		}, []string{"service_id"}),
		ServiceNetworkOutBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "service_network_out_bytes",
			Help: "Cumulative network bytes sent per service container",
		}, []string{"service_id"}),
		ServiceBlockReadBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "service_block_read_bytes",
			Help: "Cumulative block device bytes read per service container",
		}, []string{"service_id"}),
		ServiceBlockWriteBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "service_block_write_bytes",
			Help: "Cumulative block device bytes written per service container",
		}, []string{"service_id"}),

		ServiceResponseTimeSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "service_response_time_seconds",
			Help:    "Probe round-trip latency",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"service_id"}),
		HTTPRequestDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP handler latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		ComposeActionDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "compose_action_duration_seconds",
			Help:    "Compose action execution latency",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"action"}),
		ServiceRestartDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "service_restart_duration_seconds",
			Help:    "Restart execution latency",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
		}, []string{"service_id"}),
	}
}

// ObserveProbe updates the gauges/counters/histograms driven by a single
// reconciled outcome. Called by the Reconciler after each transition.
func (m *Metrics) ObserveProbe(serviceID string, status domain.Status, outcome domain.Outcome, latencyMs int64, failuresPerMinute float64) {
	m.ServiceHealthStatus.WithLabelValues(serviceID).Set(float64(status))
	m.ServiceErrorRate.WithLabelValues(serviceID).Set(failuresPerMinute)
	m.HealthChecksTotal.WithLabelValues(outcome.String()).Inc()
	m.ServiceResponseTimeSeconds.WithLabelValues(serviceID).Observe(float64(latencyMs) / 1000.0)
}

// ObserveStats updates the resource gauges/counters from a ContainerStats
// sample (Stats Collector, spec §4.4).
func (m *Metrics) ObserveStats(s domain.ContainerStats) {
	m.ServiceCPUUsagePercent.WithLabelValues(s.ServiceID).Set(s.CPUPct)
	m.ServiceMemoryUsageMegabytes.WithLabelValues(s.ServiceID).Set(s.MemMB)
	m.ServiceNetworkInBytes.WithLabelValues(s.ServiceID).Add(float64(s.NetInB))
	m.ServiceNetworkOutBytes.WithLabelValues(s.ServiceID).Add(float64(s.NetOutB))
	m.ServiceBlockReadBytes.WithLabelValues(s.ServiceID).Add(float64(s.BlkReadB))
	m.ServiceBlockWriteBytes.WithLabelValues(s.ServiceID).Add(float64(s.BlkWriteB))
}

// IncOpenModeAllowed implements dispatcher.Counters.
func (m *Metrics) IncOpenModeAllowed() { m.OpenModeAllowed.Inc() }

// IncUnauthorized implements dispatcher.Counters.
func (m *Metrics) IncUnauthorized(kind string) {
	switch kind {
	case string(domain.CommandComposeAction):
		m.ComposeUnauthorized.Inc()
	case string(domain.CommandRestartService):
		m.RestartUnauthorized.Inc()
	}
}

// IncRestart implements dispatcher.Counters.
func (m *Metrics) IncRestart(success bool) {
	m.ServiceRestartsTotal.WithLabelValues(boolLabel(success)).Inc()
}

// IncComposeAction implements dispatcher.Counters.
func (m *Metrics) IncComposeAction(action string, success bool) {
	m.ComposeActionsTotal.WithLabelValues(action, boolLabel(success)).Inc()
}

// ObserveRestartLatency implements dispatcher.LatencyRecorder.
func (m *Metrics) ObserveRestartLatency(serviceID string, d time.Duration) {
	m.ServiceRestartDurationSeconds.WithLabelValues(serviceID).Observe(d.Seconds())
}

// ObserveComposeLatency implements dispatcher.LatencyRecorder, labeled by
// the actual compose action (up, build, logs, ...) per spec §4.8's
// compose_action_duration_seconds{action} series.
func (m *Metrics) ObserveComposeLatency(action string, d time.Duration) {
	m.ComposeActionDurationSeconds.WithLabelValues(action).Observe(d.Seconds())
}

// ObserveHTTPRequest implements the httpserver metrics middleware hook.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDurationSeconds.WithLabelValues(method, path).Observe(d.Seconds())
}

// RunUptimeCounter increments MonitorUptimeSeconds once per second until
// done is closed.
func (m *Metrics) RunUptimeCounter(done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.MonitorUptimeSeconds.Add(1)
		case <-done:
			return
		}
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
