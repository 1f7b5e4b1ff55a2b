package statscollector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fleetwatch/monitor/internal/containerdriver"
	"github.com/fleetwatch/monitor/internal/domain"
	"github.com/fleetwatch/monitor/internal/logger"
)

type capturingObserver struct {
	mu    sync.Mutex
	stats []domain.ContainerStats
}

func (c *capturingObserver) ObserveStats(s domain.ContainerStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = append(c.stats, s)
}

func (c *capturingObserver) snapshot() []domain.ContainerStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ContainerStats, len(c.stats))
	copy(out, c.stats)
	return out
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *capturingPublisher) Publish(e domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *capturingPublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestNewFiltersServicesWithoutContainer(t *testing.T) {
	services := []domain.Service{
		{ID: "a", ContainerName: "a-container"},
		{ID: "b"},
		{ID: "c", ContainerName: "c-container"},
	}
	c := New(time.Second, services, &containerdriver.Fake{}, &capturingObserver{}, &capturingPublisher{}, logger.New("error", false))

	if len(c.targets) != 2 {
		t.Fatalf("targets = %d, want 2", len(c.targets))
	}
}

func TestStartNoOpsWhenNoContainers(t *testing.T) {
	services := []domain.Service{{ID: "a"}, {ID: "b"}}
	c := New(time.Second, services, &containerdriver.Fake{}, &capturingObserver{}, &capturingPublisher{}, logger.New("error", false))

	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return promptly when no targets are configured")
	}
}

func TestSampleMapsContainerNameToServiceID(t *testing.T) {
	fake := &containerdriver.Fake{
		StatsResult: map[string]domain.ContainerStats{
			"a-container": {CPUPct: 12.5, MemMB: 256},
		},
	}
	obs := &capturingObserver{}
	pub := &capturingPublisher{}
	services := []domain.Service{{ID: "svc-a", ContainerName: "a-container"}}
	c := New(time.Second, services, fake, obs, pub, logger.New("error", false))

	c.sample(context.Background())

	stats := obs.snapshot()
	if len(stats) != 1 {
		t.Fatalf("observed %d samples, want 1", len(stats))
	}
	if stats[0].ServiceID != "svc-a" {
		t.Errorf("ServiceID = %q, want svc-a", stats[0].ServiceID)
	}
	if stats[0].CPUPct != 12.5 {
		t.Errorf("CPUPct = %v, want 12.5", stats[0].CPUPct)
	}
	if pub.count() != 1 {
		t.Errorf("published %d events, want 1", pub.count())
	}
}

func TestSampleIgnoresUnknownContainerNames(t *testing.T) {
	fake := &containerdriver.Fake{
		StatsResult: map[string]domain.ContainerStats{
			"ghost-container": {CPUPct: 1},
		},
	}
	obs := &capturingObserver{}
	pub := &capturingPublisher{}
	services := []domain.Service{{ID: "svc-a", ContainerName: "a-container"}}
	c := New(time.Second, services, fake, obs, pub, logger.New("error", false))

	c.sample(context.Background())

	if len(obs.snapshot()) != 0 {
		t.Errorf("expected no samples observed for an unmapped container name")
	}
	if pub.count() != 0 {
		t.Errorf("expected no events published for an unmapped container name")
	}
}

func TestSampleSkipsOnDriverError(t *testing.T) {
	fake := &containerdriver.Fake{StatsErr: context.DeadlineExceeded}
	obs := &capturingObserver{}
	pub := &capturingPublisher{}
	services := []domain.Service{{ID: "svc-a", ContainerName: "a-container"}}
	c := New(time.Second, services, fake, obs, pub, logger.New("error", false))

	c.sample(context.Background())

	if len(obs.snapshot()) != 0 || pub.count() != 0 {
		t.Errorf("expected no observations or events when the driver errors")
	}
}

func TestStopEndsRunLoop(t *testing.T) {
	services := []domain.Service{{ID: "svc-a", ContainerName: "a-container"}}
	fake := &containerdriver.Fake{StatsResult: map[string]domain.ContainerStats{}}
	c := New(time.Hour, services, fake, &capturingObserver{}, &capturingPublisher{}, logger.New("error", false))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	c.Stop()
}
