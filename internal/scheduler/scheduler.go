// Package scheduler fires per-service probe jobs on a configurable cadence,
// enforcing a fleet-wide in-flight concurrency cap (batch size), via one
// logical timer per service rather than a single global ticker.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/fleetwatch/monitor/internal/domain"
	"github.com/fleetwatch/monitor/internal/logger"
)

// Prober is the capability the Scheduler drives; internal/prober.Prober
// satisfies it. Kept as an interface here so the Scheduler can be tested
// against a fake without importing the real HTTP-probing implementation.
type Prober interface {
	Probe(ctx context.Context, svc domain.Service) domain.ProbeOutcome
}

// Sink receives completed probe outcomes; internal/reconciler.Reconciler
// satisfies it.
type Sink interface {
	Ingest(outcome domain.ProbeOutcome)
}

// Config bounds the Scheduler's cadence and concurrency.
type Config struct {
	CheckInterval time.Duration
	BatchSize     int64 // max concurrent in-flight probes across the fleet
}

// Scheduler owns one goroutine per service, each firing probe jobs on its
// own jittered ticker, all sharing one weighted semaphore that caps
// fleet-wide concurrency.
type Scheduler struct {
	cfg    Config
	prober Prober
	sink   Sink
	logger logger.Logger
	sem    *semaphore.Weighted

	stopCh chan struct{}
	wg     sync.WaitGroup

	skippedMu sync.Mutex
	skipped   int64

	busyMu sync.Mutex
	busy   map[string]bool
}

// New builds a Scheduler for the given services.
func New(cfg Config, prober Prober, sink Sink, log logger.Logger) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &Scheduler{
		cfg:    cfg,
		prober: prober,
		sink:   sink,
		logger: log,
		sem:    semaphore.NewWeighted(cfg.BatchSize),
		stopCh: make(chan struct{}),
		busy:   make(map[string]bool),
	}
}

// Start launches one per-service ticker loop. Each service's first probe
// fires after a jittered delay (±10% of the interval) to decorrelate the
// fleet instead of firing all services at once.
func (s *Scheduler) Start(ctx context.Context, services []domain.Service) {
	for _, svc := range services {
		s.wg.Add(1)
		go s.runService(ctx, svc)
	}
}

// Stop signals every per-service loop to exit and waits for them and any
// in-flight probes to drain; the wait has no deadline of its own.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// SkippedCount returns how many probe ticks were dropped because the
// fleet-wide concurrency cap was saturated (probe_skipped counter).
func (s *Scheduler) SkippedCount() int64 {
	s.skippedMu.Lock()
	defer s.skippedMu.Unlock()
	return s.skipped
}

func (s *Scheduler) runService(ctx context.Context, svc domain.Service) {
	defer s.wg.Done()

	jitter := jitteredDelay(s.cfg.CheckInterval)
	initial := time.NewTimer(jitter)
	defer initial.Stop()

	select {
	case <-initial.C:
		s.tick(ctx, svc)
	case <-s.stopCh:
		return
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx, svc)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tryAcquireService attempts a non-blocking lock on serviceID, returning
// false immediately if that service's previous probe hasn't completed yet
// — invariant #3: at most one probe in flight per service at any instant.
func (s *Scheduler) tryAcquireService(serviceID string) bool {
	s.busyMu.Lock()
	if s.busy[serviceID] {
		s.busyMu.Unlock()
		return false
	}
	s.busy[serviceID] = true
	s.busyMu.Unlock()
	return true
}

func (s *Scheduler) releaseService(serviceID string) {
	s.busyMu.Lock()
	delete(s.busy, serviceID)
	s.busyMu.Unlock()
}

// tick submits one probe job, shedding the tick entirely (never queueing)
// if the fleet-wide semaphore is saturated or this service's previous
// probe is still in flight, per spec §4.2/§5 and invariant #3.
func (s *Scheduler) tick(ctx context.Context, svc domain.Service) {
	if !s.tryAcquireService(svc.ID) {
		s.skippedMu.Lock()
		s.skipped++
		s.skippedMu.Unlock()
		s.logger.Debug("probe skipped: previous probe still in flight",
			logger.String("service_id", svc.ID))
		return
	}

	if !s.sem.TryAcquire(1) {
		s.releaseService(svc.ID)
		s.skippedMu.Lock()
		s.skipped++
		s.skippedMu.Unlock()
		s.logger.Debug("probe skipped: batch size saturated",
			logger.String("service_id", svc.ID))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		defer s.releaseService(svc.ID)

		outcome := s.prober.Probe(ctx, svc)
		s.sink.Ingest(outcome)
	}()
}

// jitteredDelay returns interval ± up to 10%, never negative, decorrelating
// a fleet of services that all started probing at the same instant.
func jitteredDelay(interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	spread := int64(interval) / 10
	if spread <= 0 {
		return interval
	}
	offset := rand.Int63n(2*spread+1) - spread
	return interval + time.Duration(offset)
}
