// Package statscollector periodically samples container resource usage
// for every service with a known container name, updating the Metrics
// gauges and emitting StatsSample events. Its ticker-loop lifecycle is
// grounded on internal/scheduler.Scheduler's Start(ctx)/Stop() shape,
// collapsed to one shared interval instead of one ticker per service
// since resource sampling has no per-service jitter requirement.
package statscollector

import (
	"context"
	"time"

	"github.com/fleetwatch/monitor/internal/containerdriver"
	"github.com/fleetwatch/monitor/internal/domain"
	"github.com/fleetwatch/monitor/internal/logger"
)

// Driver is the capability the collector samples; internal/containerdriver
// satisfies it.
type Driver interface {
	Stats(ctx context.Context, containerNames []string) (map[string]domain.ContainerStats, error)
}

// Observer receives each sampled ContainerStats; internal/metrics.Metrics
// satisfies it.
type Observer interface {
	ObserveStats(s domain.ContainerStats)
}

// Publisher receives StatsSample events.
type Publisher interface {
	Publish(domain.Event)
}

// target is one service the collector samples.
type target struct {
	serviceID     string
	containerName string
}

// Collector samples container resource stats on a fixed cadence.
type Collector struct {
	interval  time.Duration
	driver    Driver
	observer  Observer
	publisher Publisher
	logger    logger.Logger
	targets   []target

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Collector for the given services, keeping only those with
// a non-empty ContainerName. interval defaults to 15s per spec.md §4.4.
func New(interval time.Duration, services []domain.Service, driver Driver, observer Observer, pub Publisher, log logger.Logger) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	targets := make([]target, 0, len(services))
	for _, svc := range services {
		if svc.ContainerName == "" {
			continue
		}
		targets = append(targets, target{serviceID: svc.ID, containerName: svc.ContainerName})
	}
	return &Collector{
		interval:  interval,
		driver:    driver,
		observer:  observer,
		publisher: pub,
		logger:    log,
		targets:   targets,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the sampling loop. A no-op (closes doneCh immediately)
// if no service declares a containerName.
func (c *Collector) Start(ctx context.Context) {
	if len(c.targets) == 0 {
		close(c.doneCh)
		return
	}
	go c.run(ctx)
}

// Stop waits for the sampling loop to exit.
func (c *Collector) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sample(ctx)
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Collector) sample(ctx context.Context) {
	names := make([]string, len(c.targets))
	byName := make(map[string]string, len(c.targets)) // containerName -> serviceID
	for i, t := range c.targets {
		names[i] = t.containerName
		byName[t.containerName] = t.serviceID
	}

	sampleCtx, cancel := context.WithTimeout(ctx, c.interval)
	defer cancel()

	stats, err := c.driver.Stats(sampleCtx, names)
	if err != nil {
		c.logger.Debug("stats collection failed", logger.Error(err))
		return
	}

	for containerName, s := range stats {
		serviceID, ok := byName[containerName]
		if !ok {
			continue
		}
		s.ServiceID = serviceID
		s.SampledAt = time.Now()

		c.observer.ObserveStats(s)
		c.publisher.Publish(domain.Event{
			Kind: domain.EventStatsSample,
			At:   s.SampledAt,
			StatsSample: &domain.StatsSamplePayload{
				ServiceID: serviceID,
				CPUPct:    s.CPUPct,
				MemMB:     s.MemMB,
				NetIn:     s.NetInB,
				NetOut:    s.NetOutB,
				BlkRead:   s.BlkReadB,
				BlkWrite:  s.BlkWriteB,
			},
		})
	}
}
