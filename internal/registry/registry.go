// Package registry holds the canonical serviceId -> (Service, ServiceStatus)
// table. It is read by every component but mutated only by the Reconciler,
// which is the sole writer of ServiceStatus (spec invariant #1).
package registry

import (
	"sync"

	"github.com/fleetwatch/monitor/internal/domain"
)

const defaultRingSize = 60

// entry bundles a service's static description with its mutex-guarded
// dynamic status record, so readers of one service never block readers
// of another (spec §4.1: "no global lock across services is required").
type entry struct {
	mu      sync.RWMutex
	service domain.Service
	status  *domain.ServiceStatus
}

// Registry is the engine's shared status table.
type Registry struct {
	mu       sync.RWMutex // guards the map shape only, never field contents
	entries  map[string]*entry
	ringSize int
}

// New builds a Registry holding the given services, each with a fresh
// Unknown status. Services are registered once at startup from config;
// the core never hot-reloads the service set.
func New(services []domain.Service) *Registry {
	r := &Registry{
		entries:  make(map[string]*entry, len(services)),
		ringSize: defaultRingSize,
	}
	for _, svc := range services {
		r.entries[svc.ID] = &entry{
			service: svc,
			status:  domain.NewServiceStatus(svc.ID, defaultRingSize),
		}
	}
	return r
}

// ServiceView is a consistent point-in-time read of one service.
type ServiceView struct {
	Service domain.Service
	Status  domain.ServiceStatus
}

// Get returns a consistent snapshot of one service, or ok=false if unknown.
func (r *Registry) Get(serviceID string) (ServiceView, bool) {
	r.mu.RLock()
	e, ok := r.entries[serviceID]
	r.mu.RUnlock()
	if !ok {
		return ServiceView{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return ServiceView{Service: e.service, Status: e.status.Snapshot()}, true
}

// List returns a consistent snapshot of every known service. Each entry's
// status is read under its own lock, so the result is not a single
// atomic fleet-wide snapshot, but each individual ServiceStatus within it
// is never torn.
func (r *Registry) List() []ServiceView {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]ServiceView, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		out = append(out, ServiceView{Service: e.service, Status: e.status.Snapshot()})
		e.mu.RUnlock()
	}
	return out
}

// Mutation mutates a ServiceStatus in place under the entry's exclusive
// lock. Only the Reconciler may call Apply.
type Mutation func(status *domain.ServiceStatus)

// Apply runs fn under exclusive access to serviceID's status record. It
// is the only way ServiceStatus fields are ever written, guaranteeing
// per-service serialization without callers needing their own locks.
func (r *Registry) Apply(serviceID string, fn Mutation) bool {
	r.mu.RLock()
	e, ok := r.entries[serviceID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.status)
	return true
}

// Services returns the static description of every known service, in no
// particular order.
func (r *Registry) Services() []domain.Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Service, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.service)
	}
	return out
}

// Aggregate summarizes fleet-wide health for the /health/aggregate and
// /api/metrics/summary endpoints.
type Aggregate struct {
	Total        int
	Healthy      int
	Degraded     int
	Unhealthy    int
	Unknown      int
	CriticalDown int
	AvgLatencyMs float64
}

// Aggregate computes the fleet summary in O(n) over services.
func (r *Registry) Aggregate() Aggregate {
	views := r.List()
	agg := Aggregate{Total: len(views)}
	var latencySum int64
	var latencyCount int
	for _, v := range views {
		switch v.Status.Status {
		case domain.StatusHealthy:
			agg.Healthy++
		case domain.StatusDegraded:
			agg.Degraded++
		case domain.StatusUnhealthy:
			agg.Unhealthy++
			if v.Service.Critical {
				agg.CriticalDown++
			}
		default:
			agg.Unknown++
		}
		if v.Status.LastLatencyMs > 0 {
			latencySum += v.Status.LastLatencyMs
			latencyCount++
		}
	}
	if latencyCount > 0 {
		agg.AvgLatencyMs = float64(latencySum) / float64(latencyCount)
	}
	return agg
}
