package domain

// ServiceType classifies the role a monitored service plays in the fleet.
type ServiceType string

const (
	ServiceTypeAPI          ServiceType = "api"
	ServiceTypeWorker       ServiceType = "worker"
	ServiceTypeDatabase     ServiceType = "database"
	ServiceTypeAuth         ServiceType = "auth"
	ServiceTypeLoadBalancer ServiceType = "load_balancer"
	ServiceTypeCustom       ServiceType = "custom"
)

// Service is the static description of a sibling microservice under watch.
//
// It is immutable once loaded from configuration: nothing in the engine
// hot-reloads or rewrites a Service. Dynamic, ever-changing observation
// data lives in ServiceStatus instead.
type Service struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is the canonical unique identifier, a lowercase slug.
	ID string

	// Name is the human-readable display name.
	Name string

	// ─────────────────────────────
	// Functional description
	// ─────────────────────────────

	Type ServiceType

	// HealthEndpoint is the URL probed on every check cycle.
	HealthEndpoint string

	// ContainerName is the docker container/service name used by the
	// ContainerDriver for restarts and stats sampling. Empty means the
	// service has no container-lifecycle control or stats collection.
	ContainerName string

	// ExpectedResponseTimeMs is carried from the services file. It does
	// not affect the high-latency threshold, which is the fleet-wide
	// alerts setting for every service.
	ExpectedResponseTimeMs int

	// Critical marks the service as load-bearing for the fleet's
	// aggregate health: an Unhealthy critical service counts toward
	// criticalDown in Registry.aggregate().
	Critical bool

	// DependsOn is informational only; the engine never enforces or
	// reasons about dependency ordering.
	DependsOn []string
}

// String implements fmt.Stringer for compact logging.
func (s Service) String() string {
	return s.ID
}
