// Package reconciler folds ProbeOutcomes into the Registry, applying the
// status state machine with hysteresis and emitting Events. It is the
// sole writer of ServiceStatus (spec invariant #1): every outcome flows
// through one ingest channel, so per-service mutations are serialized by
// construction, with no locking required from producers.
//
// The transition table is new core logic — original_source/src/monitor.rs
// only distinguishes Healthy/Degraded by latency; the full Unknown/
// Healthy/Degraded/Unhealthy hysteresis machine below follows spec.md
// §4.3 exactly, which supersedes the simpler original.
package reconciler

import (
	"time"

	"github.com/fleetwatch/monitor/internal/domain"
	"github.com/fleetwatch/monitor/internal/logger"
)

const highLatencyDedupWindow = 60 * time.Second

// Config carries the hysteresis thresholds from monitoring/alerts config.
type Config struct {
	ConsecutiveFailuresThreshold int
	RecoveryThreshold            int
	HighLatencyThresholdMs       int64
	ErrorRateThreshold           float64 // fraction, default 0.10
}

// Publisher receives emitted Events; internal/broadcaster.Broadcaster
// satisfies it directly.
type Publisher interface {
	Publish(domain.Event)
}

// Observer receives the per-outcome summary metrics can't reconstruct
// from Events alone (the post-transition status and rolling
// failures-per-minute rate); internal/metrics.Metrics satisfies it.
type Observer interface {
	ObserveProbe(serviceID string, status domain.Status, outcome domain.Outcome, latencyMs int64, failuresPerMinute float64)
}

// StatusWriter is the subset of Registry the Reconciler needs: exclusive
// per-service mutation.
type StatusWriter interface {
	Apply(serviceID string, fn func(*domain.ServiceStatus)) bool
}

// Reconciler is the sole writer of ServiceStatus.
type Reconciler struct {
	cfg       Config
	registry  StatusWriter
	publisher Publisher
	observer  Observer
	logger    logger.Logger

	ingest chan domain.ProbeOutcome
}

// New builds a Reconciler. ingestCapacity should be sized to
// numServices*8 per spec §5; a full channel is a steady-state bug, never
// expected in practice.
func New(cfg Config, registry StatusWriter, publisher Publisher, observer Observer, log logger.Logger, ingestCapacity int) *Reconciler {
	if cfg.ConsecutiveFailuresThreshold <= 0 {
		cfg.ConsecutiveFailuresThreshold = 3
	}
	if cfg.RecoveryThreshold <= 0 {
		cfg.RecoveryThreshold = 2
	}
	if cfg.ErrorRateThreshold <= 0 {
		cfg.ErrorRateThreshold = 0.10
	}
	if ingestCapacity <= 0 {
		ingestCapacity = 64
	}
	return &Reconciler{
		cfg:       cfg,
		registry:  registry,
		publisher: publisher,
		observer:  observer,
		logger:    log,
		ingest:    make(chan domain.ProbeOutcome, ingestCapacity),
	}
}

// Ingest enqueues an outcome for reconciliation. Callers (the Scheduler's
// probe goroutines) never block on Reconciler internals beyond the
// channel send; if the channel is full the outcome is dropped and an
// error is logged (should never happen in steady state per spec §5). No
// overflow counter is incremented.
func (r *Reconciler) Ingest(outcome domain.ProbeOutcome) {
	select {
	case r.ingest <- outcome:
	default:
		r.logger.Error("reconciler ingest channel full, dropping outcome",
			logger.String("service_id", outcome.ServiceID))
	}
}

// RecordRestart folds a completed restart into ServiceStatus bookkeeping.
// The Dispatcher calls this instead of mutating the Registry directly,
// preserving the Reconciler as ServiceStatus's sole writer (spec
// invariant #1) even though the restart itself originates outside the
// probe pipeline.
func (r *Reconciler) RecordRestart(serviceID string) bool {
	return r.registry.Apply(serviceID, func(s *domain.ServiceStatus) {
		s.RestartCount++
		s.LastRestartAt = time.Now()
		s.ConsecutiveFailures = 0
	})
}

// Run drains the ingest channel until done is closed. It is the single
// consumer of r.ingest, which is what makes per-service status mutation
// race-free without per-field locking.
func (r *Reconciler) Run(done <-chan struct{}) {
	for {
		select {
		case outcome := <-r.ingest:
			r.reconcile(outcome)
		case <-done:
			return
		}
	}
}

func (r *Reconciler) reconcile(outcome domain.ProbeOutcome) {
	var events []domain.Event
	var status domain.Status
	var failuresPerMinute float64

	r.registry.Apply(outcome.ServiceID, func(s *domain.ServiceStatus) {
		events = r.transition(s, outcome)
		status = s.Status
		failuresPerMinute = float64(s.Ring.FailuresSince(time.Now().Add(-5*time.Minute))) / 5.0
	})

	r.observer.ObserveProbe(outcome.ServiceID, status, outcome.Outcome, outcome.LatencyMs, failuresPerMinute)

	for _, ev := range events {
		r.publisher.Publish(ev)
	}
}

// transition applies one outcome to status in place and returns the
// events it justifies. Must run under the Registry's per-service lock
// (guaranteed by Reconciler.reconcile calling it inside registry.Apply).
func (r *Reconciler) transition(s *domain.ServiceStatus, outcome domain.ProbeOutcome) []domain.Event {
	var events []domain.Event

	s.Ring.Push(outcome)
	s.LastProbeAt = outcome.StartedAt
	s.LastLatencyMs = outcome.LatencyMs

	if outcome.Outcome.Success() {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.LastError = ""
	} else {
		s.ConsecutiveFailures++
		s.ConsecutiveSuccesses = 0
		s.LastError = outcome.Err
	}

	events = append(events, domain.Event{
		Kind: domain.EventProbeCompleted,
		At:   outcome.StartedAt,
		ProbeCompleted: &domain.ProbeCompletedPayload{
			ServiceID: outcome.ServiceID,
			Outcome:   outcome.Outcome,
			LatencyMs: outcome.LatencyMs,
		},
	})

	from := s.Status
	to := r.nextStatus(s, from, outcome)

	if to != from {
		wasUnhealthy := from == domain.StatusUnhealthy
		s.Status = to
		events = append(events, domain.Event{
			Kind: domain.EventStatusChanged,
			At:   outcome.StartedAt,
			StatusChanged: &domain.StatusChangedPayload{
				ServiceID: outcome.ServiceID,
				From:      from,
				To:        to,
			},
		})

		if to == domain.StatusUnhealthy {
			events = append(events, domain.Event{
				Kind: domain.EventServiceDown,
				At:   outcome.StartedAt,
				ServiceDown: &domain.ServiceDownPayload{
					ServiceID:           outcome.ServiceID,
					ConsecutiveFailures: s.ConsecutiveFailures,
				},
			})
		} else if wasUnhealthy {
			events = append(events, domain.Event{
				Kind: domain.EventServiceUp,
				At:   outcome.StartedAt,
				ServiceUp: &domain.ServiceUpPayload{
					ServiceID:      outcome.ServiceID,
					DownDurationMs: downDurationMs(s, outcome),
				},
			})
		}
	}

	if outcome.Outcome.Success() && r.cfg.HighLatencyThresholdMs > 0 && outcome.LatencyMs > r.cfg.HighLatencyThresholdMs {
		if s.LastHighLatencyAt.IsZero() || outcome.StartedAt.Sub(s.LastHighLatencyAt) >= highLatencyDedupWindow {
			s.LastHighLatencyAt = outcome.StartedAt
			events = append(events, domain.Event{
				Kind: domain.EventHighLatency,
				At:   outcome.StartedAt,
				HighLatency: &domain.HighLatencyPayload{
					ServiceID:   outcome.ServiceID,
					LatencyMs:   outcome.LatencyMs,
					ThresholdMs: r.cfg.HighLatencyThresholdMs,
				},
			})
		}
	}

	return events
}

// nextStatus evaluates the §4.3 transition table in order: Unhealthy
// takes priority over Degraded (tie-break per spec), recovery requires
// consecutive successes, degraded is entered on high latency or rolling
// error rate.
func (r *Reconciler) nextStatus(s *domain.ServiceStatus, from domain.Status, outcome domain.ProbeOutcome) domain.Status {
	if s.ConsecutiveFailures >= r.cfg.ConsecutiveFailuresThreshold {
		return domain.StatusUnhealthy
	}

	if from == domain.StatusUnhealthy {
		if s.ConsecutiveSuccesses >= r.cfg.RecoveryThreshold {
			return domain.StatusHealthy
		}
		return domain.StatusUnhealthy
	}

	if from == domain.StatusUnknown && outcome.Outcome.Success() {
		if s.Ring.ErrorRate() > r.cfg.ErrorRateThreshold {
			return domain.StatusDegraded
		}
		return r.maybeDegradeOnLatency(outcome, domain.StatusHealthy)
	}

	if from == domain.StatusHealthy {
		if s.Ring.ErrorRate() > r.cfg.ErrorRateThreshold {
			return domain.StatusDegraded
		}
		return r.maybeDegradeOnLatency(outcome, domain.StatusHealthy)
	}

	if from == domain.StatusDegraded {
		if lastNSuccessesBelowThreshold(s, 3, r.cfg.HighLatencyThresholdMs) {
			return domain.StatusHealthy
		}
		return domain.StatusDegraded
	}

	return from
}

func (r *Reconciler) maybeDegradeOnLatency(outcome domain.ProbeOutcome, healthy domain.Status) domain.Status {
	if outcome.Outcome.Success() && r.cfg.HighLatencyThresholdMs > 0 && outcome.LatencyMs > r.cfg.HighLatencyThresholdMs {
		return domain.StatusDegraded
	}
	return healthy
}

// lastNSuccessesBelowThreshold reports whether the last n ring entries
// are all successes with latency at or below thresholdMs.
func lastNSuccessesBelowThreshold(s *domain.ServiceStatus, n int, thresholdMs int64) bool {
	recent := s.Ring.Recent(n)
	if len(recent) < n {
		return false
	}
	for _, o := range recent {
		if !o.Outcome.Success() {
			return false
		}
		if thresholdMs > 0 && o.LatencyMs > thresholdMs {
			return false
		}
	}
	return true
}

// downDurationMs estimates how long a service was Unhealthy, using the
// first failing outcome still present in the ring as the down-start
// marker. The ring is bounded, so for outages longer than its span this
// underestimates; acceptable since it's an operator-facing approximation,
// not a durable metric (spec Non-goal: no durable historical storage).
func downDurationMs(s *domain.ServiceStatus, recovered domain.ProbeOutcome) int64 {
	all := s.Ring.All()
	var downSince time.Time
	for i := len(all) - 1; i >= 0; i-- {
		if !all[i].Outcome.Success() {
			downSince = all[i].StartedAt
		} else if !downSince.IsZero() {
			break
		}
	}
	if downSince.IsZero() {
		return 0
	}
	return recovered.StartedAt.Sub(downSince).Milliseconds()
}
