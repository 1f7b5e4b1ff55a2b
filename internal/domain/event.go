package domain

import "time"

// EventKind discriminates the Event tagged union.
type EventKind string

const (
	EventStatusChanged   EventKind = "status_changed"
	EventProbeCompleted  EventKind = "probe_completed"
	EventHighLatency     EventKind = "high_latency"
	EventServiceDown     EventKind = "service_down"
	EventServiceUp       EventKind = "service_up"
	EventActionStarted   EventKind = "action_started"
	EventActionCompleted EventKind = "action_completed"
	EventStatsSample     EventKind = "stats_sample"
)

// Event is the tagged union broadcast to subscribers. Exactly one of the
// payload fields is populated, matching Kind; consumers switch on Kind
// exhaustively rather than type-asserting an interface hierarchy.
type Event struct {
	Kind EventKind
	At   time.Time

	StatusChanged   *StatusChangedPayload   `json:"statusChanged,omitempty"`
	ProbeCompleted  *ProbeCompletedPayload  `json:"probeCompleted,omitempty"`
	HighLatency     *HighLatencyPayload     `json:"highLatency,omitempty"`
	ServiceDown     *ServiceDownPayload     `json:"serviceDown,omitempty"`
	ServiceUp       *ServiceUpPayload       `json:"serviceUp,omitempty"`
	ActionStarted   *ActionStartedPayload   `json:"actionStarted,omitempty"`
	ActionCompleted *ActionCompletedPayload `json:"actionCompleted,omitempty"`
	StatsSample     *StatsSamplePayload     `json:"statsSample,omitempty"`
}

// ServiceID returns the service the event pertains to, or "" for the
// action events, which name their targets instead; used by Broadcaster
// filters.
func (e Event) ServiceID() string {
	switch e.Kind {
	case EventStatusChanged:
		return e.StatusChanged.ServiceID
	case EventProbeCompleted:
		return e.ProbeCompleted.ServiceID
	case EventHighLatency:
		return e.HighLatency.ServiceID
	case EventServiceDown:
		return e.ServiceDown.ServiceID
	case EventServiceUp:
		return e.ServiceUp.ServiceID
	case EventStatsSample:
		return e.StatsSample.ServiceID
	default:
		return ""
	}
}

type StatusChangedPayload struct {
	ServiceID string `json:"serviceId"`
	From      Status `json:"from"`
	To        Status `json:"to"`
}

type ProbeCompletedPayload struct {
	ServiceID string  `json:"serviceId"`
	Outcome   Outcome `json:"outcome"`
	LatencyMs int64   `json:"latencyMs"`
}

type HighLatencyPayload struct {
	ServiceID   string `json:"serviceId"`
	LatencyMs   int64  `json:"latencyMs"`
	ThresholdMs int64  `json:"thresholdMs"`
}

type ServiceDownPayload struct {
	ServiceID           string `json:"serviceId"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
}

type ServiceUpPayload struct {
	ServiceID     string `json:"serviceId"`
	DownDurationMs int64 `json:"downDurationMs"`
}

type ActionStartedPayload struct {
	ActionID string   `json:"actionId"`
	Kind     string   `json:"kind"`
	Targets  []string `json:"targets"`
}

type ActionCompletedPayload struct {
	ActionID string `json:"actionId"`
	Kind     string `json:"kind"`
	Success  bool   `json:"success"`
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout,omitempty"` // tail-truncated, see dispatcher.maxOutputBytes
	Stderr   string `json:"stderr,omitempty"`
}

type StatsSamplePayload struct {
	ServiceID string  `json:"serviceId"`
	CPUPct    float64 `json:"cpuPct"`
	MemMB     float64 `json:"memMB"`
	NetIn     int64   `json:"netIn"`
	NetOut    int64   `json:"netOut"`
	BlkRead   int64   `json:"blkRead"`
	BlkWrite  int64   `json:"blkWrite"`
}

// CommandKind discriminates Control Dispatcher commands.
type CommandKind string

const (
	CommandRestartService CommandKind = "restart_service"
	CommandComposeAction  CommandKind = "compose_action"
)

// ComposeActionKind is the allowed set of docker-compose operations.
type ComposeActionKind string

const (
	ComposeBuild   ComposeActionKind = "build"
	ComposePull    ComposeActionKind = "pull"
	ComposeUp      ComposeActionKind = "up"
	ComposeStart   ComposeActionKind = "start"
	ComposeStop    ComposeActionKind = "stop"
	ComposeRestart ComposeActionKind = "restart"
	ComposePush    ComposeActionKind = "push"
	ComposePs      ComposeActionKind = "ps"
	ComposeLogs    ComposeActionKind = "logs"
)

// Principal carries the authenticated role set attached to a Command.
// An empty Principal means the request arrived in open mode (no auth
// configured); a valid shared-secret API key yields Subject "api-key"
// with no roles.
type Principal struct {
	Subject string
	Roles   []string
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RestartServicePayload is the payload for CommandRestartService.
type RestartServicePayload struct {
	ServiceID string
}

// ComposeActionPayload is the payload for CommandComposeAction.
type ComposeActionPayload struct {
	Action   ComposeActionKind
	Services []string // empty means all known services
	File     string
	Project  string
	Detach   bool
	Tail     int
	DryRun   bool
}

// Command is a mutating request accepted by the Control Dispatcher.
type Command struct {
	Kind             CommandKind
	RequestID        string
	Principal        Principal
	RestartService   *RestartServicePayload
	ComposeAction    *ComposeActionPayload
}

// ContainerStats is the latest resource-usage snapshot for one service's
// container, used to update the Stats Collector's gauges.
type ContainerStats struct {
	ServiceID string
	CPUPct    float64
	MemMB     float64
	NetInB    int64
	NetOutB   int64
	BlkReadB  int64
	BlkWriteB int64
	SampledAt time.Time
}
