// Package dispatcher authorizes and executes Commands against the
// fleet: service restarts and compose actions. Per-service action locks
// plus one global compose lock are grounded on
// internal/httpserver/mw/rate_limit.go's mutex-guarded map-of-state
// shape, repurposed here from token buckets to exclusive holders.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetwatch/monitor/internal/auth"
	"github.com/fleetwatch/monitor/internal/containerdriver"
	"github.com/fleetwatch/monitor/internal/domain"
	"github.com/fleetwatch/monitor/internal/logger"
	"github.com/fleetwatch/monitor/internal/monitorerr"
	"github.com/fleetwatch/monitor/internal/registry"
)

// maxOutputBytes bounds how much of a compose action's stdout/stderr is
// kept in the completion event (spec.md §4.6: "truncated to a bounded
// size, e.g. 64 KiB tail").
const maxOutputBytes = 64 * 1024

// Publisher receives Dispatcher-emitted events.
type Publisher interface {
	Publish(domain.Event)
}

// LatencyRecorder observes per-action execution latency
// (compose_action_duration_seconds / service_restart_duration_seconds).
type LatencyRecorder interface {
	ObserveRestartLatency(serviceID string, d time.Duration)
	ObserveComposeLatency(action string, d time.Duration)
}

// Counters records the authorization/outcome counters from spec §4.8.
type Counters interface {
	IncOpenModeAllowed()
	IncUnauthorized(kind string)
	IncRestart(success bool)
	IncComposeAction(action string, success bool)
}

// RestartRecorder folds a successful restart into ServiceStatus, kept
// behind an interface so the Reconciler remains ServiceStatus's sole
// writer (spec invariant #1) while the Dispatcher triggers the update.
type RestartRecorder interface {
	RecordRestart(serviceID string) bool
}

// DistLock is an optional distributed lock backing the compose action
// serialization across multiple monitor instances sharing one fleet;
// internal/store/redis.Store satisfies it. Nil disables it, leaving
// composeMu as purely in-process serialization.
type DistLock interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, name string) error
}

const (
	composeLockName = "compose"
	composeLockTTL  = 5 * time.Minute
)

// Dispatcher accepts Commands, authorizes them, and executes them
// against a ContainerDriver under the appropriate lock.
type Dispatcher struct {
	authz     *auth.Authorizer
	driver    containerdriver.Driver
	registry  *registry.Registry
	restarts  RestartRecorder
	publisher Publisher
	latency   LatencyRecorder
	counters  Counters
	logger    logger.Logger
	distLock  DistLock // optional; nil means single-instance deployment

	serviceLocksMu sync.Mutex
	serviceBusy    map[string]bool

	composeMu sync.Mutex
}

// New builds a Dispatcher. distLock may be nil, in which case compose
// actions are serialized only within this process.
func New(authz *auth.Authorizer, driver containerdriver.Driver, reg *registry.Registry, restarts RestartRecorder,
	pub Publisher, latency LatencyRecorder, counters Counters, distLock DistLock, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		authz:       authz,
		driver:      driver,
		registry:    reg,
		restarts:    restarts,
		publisher:   pub,
		latency:     latency,
		counters:    counters,
		distLock:    distLock,
		logger:      log,
		serviceBusy: make(map[string]bool),
	}
}

// Authorize implements the precedence order from spec §4.6: open mode,
// API key, then HMAC token with role intersection.
func (d *Dispatcher) Authorize(apiKey, bearerToken string) (domain.Principal, error) {
	if d.authz.Open() {
		d.counters.IncOpenModeAllowed()
		return domain.Principal{}, nil
	}
	p, ok := d.authz.Authorize(apiKey, bearerToken)
	if !ok {
		return domain.Principal{}, monitorerr.New(monitorerr.KindUnauthorized, "invalid or missing credentials")
	}
	return p, nil
}

// tryAcquireService attempts a non-blocking lock on serviceID, returning
// false immediately (Busy) if already held — spec invariant #4.
func (d *Dispatcher) tryAcquireService(serviceID string) bool {
	d.serviceLocksMu.Lock()
	if d.serviceBusy[serviceID] {
		d.serviceLocksMu.Unlock()
		return false
	}
	d.serviceBusy[serviceID] = true
	d.serviceLocksMu.Unlock()
	return true
}

func (d *Dispatcher) releaseService(serviceID string) {
	d.serviceLocksMu.Lock()
	delete(d.serviceBusy, serviceID)
	d.serviceLocksMu.Unlock()
}

// RestartService executes a restart Command: acquire the per-service
// lock, emit ActionStarted, invoke the driver, update registry restart
// bookkeeping, emit ActionCompleted, release the lock.
func (d *Dispatcher) RestartService(ctx context.Context, cmd domain.Command) (containerdriver.Result, error) {
	serviceID := cmd.RestartService.ServiceID
	view, ok := d.registry.Get(serviceID)
	if !ok {
		return containerdriver.Result{}, monitorerr.New(monitorerr.KindNotFound, "unknown service: "+serviceID)
	}
	if view.Service.ContainerName == "" {
		return containerdriver.Result{}, monitorerr.New(monitorerr.KindInvalid, "service has no container configured")
	}

	if !d.tryAcquireService(serviceID) {
		return containerdriver.Result{}, monitorerr.New(monitorerr.KindBusy, "restart already in progress for "+serviceID)
	}
	defer d.releaseService(serviceID)

	actionID := uuid.NewString()
	d.publisher.Publish(domain.Event{
		Kind: domain.EventActionStarted,
		At:   time.Now(),
		ActionStarted: &domain.ActionStartedPayload{
			ActionID: actionID,
			Kind:     string(domain.CommandRestartService),
			Targets:  []string{serviceID},
		},
	})

	start := time.Now()
	res, err := d.driver.Restart(ctx, view.Service.ContainerName)
	elapsed := time.Since(start)
	d.latency.ObserveRestartLatency(serviceID, elapsed)

	success := err == nil && res.Success()
	d.counters.IncRestart(success)

	if success {
		d.restarts.RecordRestart(serviceID)
	}

	d.publisher.Publish(domain.Event{
		Kind: domain.EventActionCompleted,
		At:   time.Now(),
		ActionCompleted: &domain.ActionCompletedPayload{
			ActionID: actionID,
			Kind:     string(domain.CommandRestartService),
			Success:  success,
			ExitCode: res.ExitCode,
			Stdout:   truncate(res.Stdout),
			Stderr:   truncate(res.Stderr),
		},
	})

	if err != nil {
		return res, monitorerr.Wrap(monitorerr.KindDriverError, "restart failed", err)
	}
	return res, nil
}

// ComposeAction executes a compose Command, serialized globally by the
// compose mutex (spec §4.6: "compose invocations mutate shared project
// state").
func (d *Dispatcher) ComposeAction(ctx context.Context, cmd domain.Command) (containerdriver.Result, error) {
	spec := cmd.ComposeAction
	if err := d.validateComposeSpec(*spec); err != nil {
		return containerdriver.Result{}, err
	}

	d.composeMu.Lock()
	defer d.composeMu.Unlock()

	if d.distLock != nil {
		ok, err := d.distLock.TryLock(ctx, composeLockName, composeLockTTL)
		if err != nil {
			d.logger.Warn("distributed compose lock unavailable, proceeding with local lock only", logger.Error(err))
		} else if !ok {
			return containerdriver.Result{}, monitorerr.New(monitorerr.KindBusy, "compose action in progress on another instance")
		} else {
			defer func() { _ = d.distLock.Unlock(context.Background(), composeLockName) }()
		}
	}

	actionID := uuid.NewString()
	targets := spec.Services
	if len(targets) == 0 {
		targets = []string{"*"}
	}
	d.publisher.Publish(domain.Event{
		Kind: domain.EventActionStarted,
		At:   time.Now(),
		ActionStarted: &domain.ActionStartedPayload{
			ActionID: actionID,
			Kind:     string(domain.CommandComposeAction),
			Targets:  targets,
		},
	})

	start := time.Now()
	res, err := d.driver.ComposeAction(ctx, *spec)
	elapsed := time.Since(start)
	d.latency.ObserveComposeLatency(string(spec.Action), elapsed)

	success := err == nil && res.Success()
	d.counters.IncComposeAction(string(spec.Action), success)

	d.publisher.Publish(domain.Event{
		Kind: domain.EventActionCompleted,
		At:   time.Now(),
		ActionCompleted: &domain.ActionCompletedPayload{
			ActionID: actionID,
			Kind:     string(domain.CommandComposeAction),
			Success:  success,
			ExitCode: res.ExitCode,
			Stdout:   truncate(res.Stdout),
			Stderr:   truncate(res.Stderr),
		},
	})

	if err != nil {
		return res, monitorerr.Wrap(monitorerr.KindDriverError, "compose action failed", err)
	}
	return res, nil
}

var allowedComposeActions = map[domain.ComposeActionKind]struct{}{
	domain.ComposeBuild: {}, domain.ComposePull: {}, domain.ComposeUp: {},
	domain.ComposeStart: {}, domain.ComposeStop: {}, domain.ComposeRestart: {},
	domain.ComposePush: {}, domain.ComposePs: {}, domain.ComposeLogs: {},
}

func (d *Dispatcher) validateComposeSpec(spec domain.ComposeActionPayload) error {
	if _, ok := allowedComposeActions[spec.Action]; !ok {
		return monitorerr.New(monitorerr.KindInvalid, "unknown compose action: "+string(spec.Action))
	}
	for _, svcID := range spec.Services {
		if _, ok := d.registry.Get(svcID); !ok {
			return monitorerr.New(monitorerr.KindInvalid, "unknown service id: "+svcID)
		}
	}
	return nil
}

func truncate(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[len(s)-maxOutputBytes:]
}
