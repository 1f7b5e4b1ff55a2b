package reconciler

import (
	"testing"
	"time"

	"github.com/fleetwatch/monitor/internal/domain"
	"github.com/fleetwatch/monitor/internal/logger"
	"github.com/fleetwatch/monitor/internal/registry"
)

func newTestSetup(t *testing.T, cfg Config) (*registry.Registry, *capturingPublisher, *Reconciler) {
	t.Helper()
	reg := registry.New([]domain.Service{{ID: "svc"}})
	pub := &capturingPublisher{}
	r := New(cfg, reg, pub, noopObserver{}, logger.New("error", false), 64)
	return reg, pub, r
}

type capturingPublisher struct {
	events []domain.Event
}

func (c *capturingPublisher) Publish(e domain.Event) { c.events = append(c.events, e) }

func (c *capturingPublisher) kinds() []domain.EventKind {
	out := make([]domain.EventKind, len(c.events))
	for i, e := range c.events {
		out[i] = e.Kind
	}
	return out
}

type noopObserver struct{}

func (noopObserver) ObserveProbe(string, domain.Status, domain.Outcome, int64, float64) {}

func outcomeAt(t time.Time, success bool) domain.ProbeOutcome {
	o := domain.ProbeOutcome{ServiceID: "svc", StartedAt: t, LatencyMs: 5}
	if success {
		o.Outcome = domain.OutcomeSuccess
	} else {
		o.Outcome = domain.OutcomeConnectError
	}
	return o
}

// scenario 1: cold start, all healthy after first success.
func TestColdStartBecomesHealthy(t *testing.T) {
	reg, pub, r := newTestSetup(t, Config{ConsecutiveFailuresThreshold: 3, RecoveryThreshold: 2})

	r.reconcile(outcomeAt(time.Now(), true))

	view, _ := reg.Get("svc")
	if view.Status.Status != domain.StatusHealthy {
		t.Fatalf("Status = %v, want Healthy", view.Status.Status)
	}
	found := false
	for _, k := range pub.kinds() {
		if k == domain.EventStatusChanged {
			found = true
		}
	}
	if !found {
		t.Error("expected a StatusChanged event on Unknown -> Healthy")
	}
}

// scenario 3: hard failure then recovery.
func TestHardFailureThenRecovery(t *testing.T) {
	reg, pub, r := newTestSetup(t, Config{ConsecutiveFailuresThreshold: 3, RecoveryThreshold: 2})

	base := time.Now()
	for i := 0; i < 3; i++ {
		r.reconcile(outcomeAt(base.Add(time.Duration(i)*time.Second), false))
	}

	view, _ := reg.Get("svc")
	if view.Status.Status != domain.StatusUnhealthy {
		t.Fatalf("after 3 failures Status = %v, want Unhealthy", view.Status.Status)
	}

	downEvents := 0
	for _, k := range pub.kinds() {
		if k == domain.EventServiceDown {
			downEvents++
		}
	}
	if downEvents != 1 {
		t.Errorf("ServiceDown events = %d, want exactly 1", downEvents)
	}

	r.reconcile(outcomeAt(base.Add(4*time.Second), true))
	r.reconcile(outcomeAt(base.Add(5*time.Second), true))

	view, _ = reg.Get("svc")
	if view.Status.Status != domain.StatusHealthy {
		t.Fatalf("after 2 recoveries Status = %v, want Healthy", view.Status.Status)
	}

	upEvents := 0
	for _, k := range pub.kinds() {
		if k == domain.EventServiceUp {
			upEvents++
		}
	}
	if upEvents != 1 {
		t.Errorf("ServiceUp events = %d, want exactly 1", upEvents)
	}
}

// invariant #3: consecutiveFailures and consecutiveSuccesses are mutually exclusive.
func TestConsecutiveCountersMutuallyExclusive(t *testing.T) {
	reg, _, r := newTestSetup(t, Config{ConsecutiveFailuresThreshold: 3, RecoveryThreshold: 2})

	base := time.Now()
	r.reconcile(outcomeAt(base, true))
	r.reconcile(outcomeAt(base.Add(time.Second), false))

	view, _ := reg.Get("svc")
	if view.Status.ConsecutiveFailures != 0 && view.Status.ConsecutiveSuccesses != 0 {
		t.Fatalf("both counters nonzero: failures=%d successes=%d",
			view.Status.ConsecutiveFailures, view.Status.ConsecutiveSuccesses)
	}
}

// spec §8 scenario 2: flapping below the consecutive-failures threshold
// still pushes a Healthy service to Degraded once the ring's error rate
// exceeds the threshold, even though every outcome is fast (so latency
// alone would never trigger the transition).
func TestFlappingBelowThresholdDegradesOnErrorRate(t *testing.T) {
	reg, _, r := newTestSetup(t, Config{
		ConsecutiveFailuresThreshold: 3,
		RecoveryThreshold:            1,
		ErrorRateThreshold:           0.10,
	})

	base := time.Now()
	r.reconcile(outcomeAt(base, true)) // Unknown -> Healthy

	view, _ := reg.Get("svc")
	if view.Status.Status != domain.StatusHealthy {
		t.Fatalf("after first success Status = %v, want Healthy", view.Status.Status)
	}

	r.reconcile(outcomeAt(base.Add(time.Second), false)) // 1 consecutive failure, never 3

	view, _ = reg.Get("svc")
	if view.Status.ConsecutiveFailures >= 3 {
		t.Fatalf("ConsecutiveFailures = %d, want below threshold", view.Status.ConsecutiveFailures)
	}
	if view.Status.Status != domain.StatusDegraded {
		t.Fatalf("Status = %v, want Degraded once ring error rate exceeds threshold", view.Status.Status)
	}
}

func TestHighLatencyDedupedWithinWindow(t *testing.T) {
	reg, pub, r := newTestSetup(t, Config{
		ConsecutiveFailuresThreshold: 3,
		RecoveryThreshold:            2,
		HighLatencyThresholdMs:       100,
	})

	base := time.Now()
	slow := func(t time.Time) domain.ProbeOutcome {
		o := outcomeAt(t, true)
		o.LatencyMs = 500
		return o
	}

	r.reconcile(slow(base))
	r.reconcile(slow(base.Add(5 * time.Second)))

	_, _ = reg, pub
	count := 0
	for _, k := range pub.kinds() {
		if k == domain.EventHighLatency {
			count++
		}
	}
	if count != 1 {
		t.Errorf("HighLatency events within dedup window = %d, want 1", count)
	}

	r.reconcile(slow(base.Add(70 * time.Second)))
	count = 0
	for _, k := range pub.kinds() {
		if k == domain.EventHighLatency {
			count++
		}
	}
	if count != 2 {
		t.Errorf("HighLatency events after window elapses = %d, want 2", count)
	}
}
