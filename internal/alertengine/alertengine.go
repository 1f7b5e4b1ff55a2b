// Package alertengine subscribes to health-transition events and posts
// webhook notifications, deduplicated per service per alert kind within
// a sliding window. The POST retry shape (bounded attempts, exponential
// backoff, short per-attempt timeout) is grounded on
// internal/redis/connector.go's connectWithRetry.
package alertengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fleetwatch/monitor/internal/broadcaster"
	"github.com/fleetwatch/monitor/internal/domain"
	"github.com/fleetwatch/monitor/internal/logger"
)

const (
	webhookTimeout   = 5 * time.Second
	maxAttempts      = 4 // the first attempt plus up to 3 retries
	retryBaseBackoff = 250 * time.Millisecond
)

// Config carries the Alert Engine's tunables from the alerts config
// section.
type Config struct {
	Enabled                 bool
	WebhookURL              string
	DedupWindow             time.Duration // default 60s
	HighLatencyThresholdMs  int64
}

// ServiceNamer resolves a service id to a display name for alert
// payloads.
type ServiceNamer interface {
	Get(serviceID string) (name string, ok bool)
}

// DedupStore is an optional distributed dedup marker store shared across
// monitor instances watching the same fleet; internal/store/redis.Store
// satisfies it. Nil disables it, leaving the in-process seen map as the
// only dedup mechanism.
type DedupStore interface {
	MarkSeen(ctx context.Context, serviceID, kind string, window time.Duration) (alreadySeen bool, err error)
}

type dedupKey struct {
	serviceID string
	kind      domain.EventKind
}

// AlertEngine formats and delivers webhook notifications.
type AlertEngine struct {
	cfg    Config
	client *http.Client
	logger logger.Logger
	namer  ServiceNamer
	dedup  DedupStore // optional; nil means single-instance dedup only

	mu   sync.Mutex
	seen map[dedupKey]time.Time
}

// New builds an AlertEngine. A zero DedupWindow defaults to 60s. dedup
// may be nil for single-instance deployments.
func New(cfg Config, namer ServiceNamer, dedup DedupStore, log logger.Logger) *AlertEngine {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 60 * time.Second
	}
	return &AlertEngine{
		cfg:    cfg,
		client: &http.Client{Timeout: webhookTimeout},
		logger: log,
		namer:  namer,
		dedup:  dedup,
		seen:   make(map[dedupKey]time.Time),
	}
}

// alertKinds is the set of events the Alert Engine subscribes to.
var alertKinds = []domain.EventKind{domain.EventServiceDown, domain.EventServiceUp, domain.EventHighLatency}

// Filter builds the broadcaster.Filter matching alertKinds, for wiring
// at startup: engine.Run(bc.Subscribe(engine.Filter()), done).
func (a *AlertEngine) Filter() broadcaster.Filter {
	kinds := make(map[domain.EventKind]struct{}, len(alertKinds))
	for _, k := range alertKinds {
		kinds[k] = struct{}{}
	}
	return broadcaster.Filter{Kinds: kinds}
}

// Run consumes sub until done is closed. If webhookUrl is empty the
// Alert Engine is a no-op (spec §4.7) — it still drains the
// subscription so the Broadcaster's bounded queue never fills against a
// subscriber nobody reads.
func (a *AlertEngine) Run(sub *broadcaster.Subscription, done <-chan struct{}) {
	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			if a.cfg.Enabled && a.cfg.WebhookURL != "" {
				a.handle(e)
			}
		case <-done:
			return
		}
	}
}

func (a *AlertEngine) handle(e domain.Event) {
	switch e.Kind {
	case domain.EventServiceDown, domain.EventServiceUp, domain.EventHighLatency:
	default:
		return
	}

	serviceID := e.ServiceID()
	if serviceID == "" {
		return
	}
	if !a.shouldFire(serviceID, e.Kind) {
		return
	}

	name, _ := a.namer.Get(serviceID)
	doc := alertDoc{
		Kind:        string(e.Kind),
		ServiceID:   serviceID,
		ServiceName: name,
		At:          e.At,
		Details:     detailsFor(e),
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout*maxAttempts)
	defer cancel()
	if err := a.postWithRetry(ctx, doc); err != nil {
		a.logger.Error("alert webhook delivery failed",
			logger.String("service_id", serviceID),
			logger.String("kind", string(e.Kind)),
			logger.Error(err))
	}
}

// shouldFire enforces the per-service-per-kind dedup window, preferring
// the distributed store when one is configured so multiple monitor
// instances watching the same fleet don't double-fire.
func (a *AlertEngine) shouldFire(serviceID string, kind domain.EventKind) bool {
	if a.dedup != nil {
		alreadySeen, err := a.dedup.MarkSeen(context.Background(), serviceID, string(kind), a.cfg.DedupWindow)
		if err == nil {
			return !alreadySeen
		}
		a.logger.Warn("distributed dedup store unavailable, falling back to local dedup",
			logger.String("service_id", serviceID), logger.Error(err))
	}

	key := dedupKey{serviceID: serviceID, kind: kind}
	now := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()
	if last, ok := a.seen[key]; ok && now.Sub(last) < a.cfg.DedupWindow {
		return false
	}
	a.seen[key] = now
	return true
}

type alertDoc struct {
	Kind        string         `json:"kind"`
	ServiceID   string         `json:"serviceId"`
	ServiceName string         `json:"serviceName"`
	At          time.Time      `json:"at"`
	Details     map[string]any `json:"details"`
}

func detailsFor(e domain.Event) map[string]any {
	switch e.Kind {
	case domain.EventServiceDown:
		return map[string]any{"consecutiveFailures": e.ServiceDown.ConsecutiveFailures}
	case domain.EventServiceUp:
		return map[string]any{"downDurationMs": e.ServiceUp.DownDurationMs}
	case domain.EventHighLatency:
		return map[string]any{"latencyMs": e.HighLatency.LatencyMs, "thresholdMs": e.HighLatency.ThresholdMs}
	default:
		return nil
	}
}

// postWithRetry posts doc to the webhook, making up to maxAttempts
// attempts while the webhook answers 5xx or the request fails, with
// exponential backoff between attempts.
func (a *AlertEngine) postWithRetry(ctx context.Context, doc alertDoc) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("alertengine: marshal: %w", err)
	}

	wait := retryBaseBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("alertengine: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 500 {
				return nil
			}
			lastErr = fmt.Errorf("webhook returned %d", resp.StatusCode)
		} else {
			lastErr = err
		}

		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		wait *= 2
	}
	return lastErr
}
