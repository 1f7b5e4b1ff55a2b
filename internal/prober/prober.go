// Package prober issues the actual HTTP health probes and classifies
// their outcome. Its retry/backoff loop is an attempt loop with a
// per-attempt timeout and exponential backoff with a cap; each retry is
// logged at debug level.
package prober

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fleetwatch/monitor/internal/domain"
	"github.com/fleetwatch/monitor/internal/logger"
)

const (
	backoffBase = 250 * time.Millisecond
	backoffCap  = 2 * time.Second
)

// Config bounds a single probe's timeout and retry policy.
type Config struct {
	Timeout        time.Duration
	RetryAttempts  int  // additional attempts beyond the first, on connect/timeout
	DetailedHealth bool // parse JSON body and check a "status" field
}

// Prober performs one health probe per call and returns its ProbeOutcome.
type Prober struct {
	cfg    Config
	client *http.Client
	logger logger.Logger
}

// New builds a Prober with a dedicated http.Client tuned for short-lived
// health checks: no keep-alive reuse assumptions across services, short
// TLS handshake budget, no following of redirects.
func New(cfg Config, log logger.Logger) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   cfg.Timeout,
				KeepAlive: 0,
			}).DialContext,
			TLSHandshakeTimeout: cfg.Timeout,
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
			DisableKeepAlives:   true,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &Prober{cfg: cfg, client: client, logger: log}
}

type healthBody struct {
	Status string `json:"status"`
}

// Probe runs one attempt loop against svc.HealthEndpoint. It never
// returns an error: every failure mode is captured as an Outcome on the
// returned ProbeOutcome, since the Reconciler is the only consumer and
// it absorbs ProbeFailure entirely (spec §7).
func (p *Prober) Probe(ctx context.Context, svc domain.Service) domain.ProbeOutcome {
	started := time.Now()
	attempts := p.cfg.RetryAttempts + 1
	wait := backoffBase

	var last domain.ProbeOutcome
	for attempt := 1; attempt <= attempts; attempt++ {
		out := p.attempt(ctx, svc, started)
		if out.Outcome.Success() || out.Outcome == domain.OutcomeBadStatus || out.Outcome == domain.OutcomeBodyMismatch {
			// Only timeouts and connect errors are retried; a bad status
			// or body mismatch is a definitive answer from a live server.
			return out
		}
		last = out
		if attempt == attempts {
			break
		}

		p.logger.Debug("probe attempt failed, retrying",
			logger.String("service_id", svc.ID),
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			last.Outcome = domain.OutcomeTimedOut
			last.Err = "cancelled during backoff"
			return last
		case <-timer.C:
		}
		wait *= 2
		if wait > backoffCap {
			wait = backoffCap
		}
	}
	return last
}

// attempt performs exactly one HTTP GET and classifies the result.
func (p *Prober) attempt(ctx context.Context, svc domain.Service, started time.Time) domain.ProbeOutcome {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	outcome := domain.ProbeOutcome{ServiceID: svc.ID, StartedAt: started}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, svc.HealthEndpoint, http.NoBody)
	if err != nil {
		outcome.Outcome = domain.OutcomeConnectError
		outcome.Err = err.Error()
		return outcome
	}

	attemptStart := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(attemptStart)
	outcome.LatencyMs = latency.Milliseconds()

	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			outcome.Outcome = domain.OutcomeTimedOut
		} else {
			outcome.Outcome = domain.OutcomeConnectError
		}
		outcome.Err = err.Error()
		return outcome
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		outcome.Outcome = domain.OutcomeBadStatus
		outcome.StatusCode = resp.StatusCode
		outcome.Err = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return outcome
	}

	if p.cfg.DetailedHealth {
		var body healthBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			switch body.Status {
			case "", "ok", "healthy":
			default:
				outcome.Outcome = domain.OutcomeBodyMismatch
				outcome.Err = fmt.Sprintf("body status %q", body.Status)
				return outcome
			}
		}
	}

	outcome.Outcome = domain.OutcomeSuccess
	return outcome
}
