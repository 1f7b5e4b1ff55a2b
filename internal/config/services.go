package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fleetwatch/monitor/internal/domain"
)

// Monitoring holds the scheduler/prober tunables from the services file's
// monitoring block (spec.md §6).
type Monitoring struct {
	CheckIntervalSeconds int  `yaml:"checkIntervalSeconds"`
	TimeoutSeconds       int  `yaml:"timeoutSeconds"`
	RetryAttempts        int  `yaml:"retryAttempts"`
	BatchSize            int  `yaml:"batchSize"`
	EnableDockerStats    bool `yaml:"enableDockerStats"`
}

// CheckInterval returns the configured cadence as a time.Duration.
func (m Monitoring) CheckInterval() time.Duration {
	return time.Duration(m.CheckIntervalSeconds) * time.Second
}

// Timeout returns the configured per-probe timeout as a time.Duration.
func (m Monitoring) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// Alerts holds the Alert Engine's tunables from the services file's
// alerts block.
type Alerts struct {
	EnableNotifications          bool   `yaml:"enableNotifications"`
	WebhookURL                   string `yaml:"webhookUrl"`
	HighLatencyThresholdMs       int64  `yaml:"highLatencyThresholdMs"`
	ConsecutiveFailuresThreshold int    `yaml:"consecutiveFailuresThreshold"`
}

// serviceEntry is the YAML shape of one fleet member (spec.md §3).
type serviceEntry struct {
	ID                     string   `yaml:"id"`
	Name                   string   `yaml:"name"`
	Type                   string   `yaml:"type"`
	HealthEndpoint         string   `yaml:"healthEndpoint"`
	ContainerName          string   `yaml:"containerName"`
	ExpectedResponseTimeMs int      `yaml:"expectedResponseTimeMs"`
	Critical               bool     `yaml:"critical"`
	DependsOn              []string `yaml:"dependsOn"`
}

// FleetFile is the parsed shape of the services definition file.
type FleetFile struct {
	Monitoring Monitoring     `yaml:"monitoring"`
	Alerts     Alerts         `yaml:"alerts"`
	Services   []serviceEntry `yaml:"services"`
}

var defaultMonitoring = Monitoring{
	CheckIntervalSeconds: 10,
	TimeoutSeconds:       5,
	RetryAttempts:        2,
	BatchSize:            8,
	EnableDockerStats:    true,
}

var defaultAlerts = Alerts{
	HighLatencyThresholdMs:       500,
	ConsecutiveFailuresThreshold: 3,
}

// LoadFleet reads and parses path into a FleetFile, applying defaults to
// checkIntervalSeconds, timeoutSeconds, batchSize, highLatencyThresholdMs
// and consecutiveFailuresThreshold when they are left at zero; the other
// monitoring/alerts fields (retryAttempts and enableDockerStats among
// them) are used as written, so an absent key means 0 or false. A parse failure is
// a Fatal error per spec.md §7: the process cannot start without a known
// fleet topology.
func LoadFleet(path string) (*FleetFile, []domain.Service, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("config: read services file %s: %w", path, err)
	}

	var f FleetFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, nil, fmt.Errorf("config: parse services file %s: %w", path, err)
	}
	applyDefaults(&f)

	if len(f.Services) == 0 {
		return nil, nil, fmt.Errorf("config: services file %s declares no services", path)
	}

	services := make([]domain.Service, len(f.Services))
	seen := make(map[string]struct{}, len(f.Services))
	for i, e := range f.Services {
		if e.ID == "" {
			return nil, nil, fmt.Errorf("config: service at index %d has no id", i)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, nil, fmt.Errorf("config: duplicate service id %q", e.ID)
		}
		seen[e.ID] = struct{}{}

		services[i] = domain.Service{
			ID:                     e.ID,
			Name:                   e.Name,
			Type:                   domain.ServiceType(e.Type),
			HealthEndpoint:         e.HealthEndpoint,
			ContainerName:          e.ContainerName,
			ExpectedResponseTimeMs: e.ExpectedResponseTimeMs,
			Critical:               e.Critical,
			DependsOn:              e.DependsOn,
		}
	}

	return &f, services, nil
}

func applyDefaults(f *FleetFile) {
	if f.Monitoring.CheckIntervalSeconds == 0 {
		f.Monitoring.CheckIntervalSeconds = defaultMonitoring.CheckIntervalSeconds
	}
	if f.Monitoring.TimeoutSeconds == 0 {
		f.Monitoring.TimeoutSeconds = defaultMonitoring.TimeoutSeconds
	}
	if f.Monitoring.BatchSize == 0 {
		f.Monitoring.BatchSize = defaultMonitoring.BatchSize
	}
	if f.Alerts.HighLatencyThresholdMs == 0 {
		f.Alerts.HighLatencyThresholdMs = defaultAlerts.HighLatencyThresholdMs
	}
	if f.Alerts.ConsecutiveFailuresThreshold == 0 {
		f.Alerts.ConsecutiveFailuresThreshold = defaultAlerts.ConsecutiveFailuresThreshold
	}
}
