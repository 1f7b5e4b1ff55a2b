package prober

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetwatch/monitor/internal/domain"
	"github.com/fleetwatch/monitor/internal/logger"
)

func newTestProber(t *testing.T, cfg Config) *Prober {
	t.Helper()
	return New(cfg, logger.New("error", false))
}

func TestProbeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestProber(t, Config{Timeout: time.Second})
	out := p.Probe(t.Context(), domain.Service{ID: "svc", HealthEndpoint: srv.URL})

	if out.Outcome != domain.OutcomeSuccess {
		t.Fatalf("Outcome = %v, want Success", out.Outcome)
	}
}

func TestProbeBadStatusNoRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newTestProber(t, Config{Timeout: time.Second, RetryAttempts: 3})
	out := p.Probe(t.Context(), domain.Service{ID: "svc", HealthEndpoint: srv.URL})

	if out.Outcome != domain.OutcomeBadStatus {
		t.Fatalf("Outcome = %v, want BadStatus", out.Outcome)
	}
	if out.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", out.StatusCode)
	}
	if calls != 1 {
		t.Errorf("a definitive 5xx should not be retried, got %d calls", calls)
	}
}

func TestProbeConnectErrorRetries(t *testing.T) {
	p := newTestProber(t, Config{Timeout: 100 * time.Millisecond, RetryAttempts: 2})
	start := time.Now()
	out := p.Probe(t.Context(), domain.Service{ID: "svc", HealthEndpoint: "http://127.0.0.1:1"})
	elapsed := time.Since(start)

	if out.Outcome == domain.OutcomeSuccess {
		t.Fatal("probing a closed port should not succeed")
	}
	// Two retries wait 250ms then 500ms before their attempts.
	if elapsed < 750*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 750ms from two backoff waits", elapsed)
	}
}

func TestProbeDetailedHealthBodyMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"degraded"}`))
	}))
	defer srv.Close()

	p := newTestProber(t, Config{Timeout: time.Second, DetailedHealth: true})
	out := p.Probe(t.Context(), domain.Service{ID: "svc", HealthEndpoint: srv.URL})

	if out.Outcome != domain.OutcomeBodyMismatch {
		t.Fatalf("Outcome = %v, want BodyMismatch", out.Outcome)
	}
}

func TestProbeDetailedHealthOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	p := newTestProber(t, Config{Timeout: time.Second, DetailedHealth: true})
	out := p.Probe(t.Context(), domain.Service{ID: "svc", HealthEndpoint: srv.URL})

	if out.Outcome != domain.OutcomeSuccess {
		t.Fatalf("Outcome = %v, want Success", out.Outcome)
	}
}
