package alertengine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fleetwatch/monitor/internal/domain"
	"github.com/fleetwatch/monitor/internal/logger"
)

type fakeNamer map[string]string

func (f fakeNamer) Get(serviceID string) (string, bool) {
	n, ok := f[serviceID]
	return n, ok
}

func downEvent(serviceID string) domain.Event {
	return domain.Event{
		Kind: domain.EventServiceDown,
		At:   time.Now(),
		ServiceDown: &domain.ServiceDownPayload{
			ServiceID:           serviceID,
			ConsecutiveFailures: 3,
		},
	}
}

func TestNoOpWhenWebhookURLEmpty(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := New(Config{WebhookURL: ""}, fakeNamer{"svc": "svc-name"}, nil, logger.New("error", false))
	e.handle(downEvent("svc"))

	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("expected no webhook call, got %d", hits)
	}
}

func TestDeliversOnServiceDown(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := New(Config{WebhookURL: srv.URL}, fakeNamer{"svc": "svc-name"}, nil, logger.New("error", false))
	e.handle(downEvent("svc"))

	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
}

func TestDedupWithinWindow(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := New(Config{WebhookURL: srv.URL, DedupWindow: time.Minute}, fakeNamer{}, nil, logger.New("error", false))
	e.handle(downEvent("svc"))
	e.handle(downEvent("svc"))

	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("hits = %d, want 1 (second call should be deduped)", hits)
	}
}

func TestRetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := New(Config{WebhookURL: srv.URL}, fakeNamer{}, nil, logger.New("error", false))
	e.handle(downEvent("svc"))

	if atomic.LoadInt32(&attempts) != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := New(Config{WebhookURL: srv.URL}, fakeNamer{}, nil, logger.New("error", false))
	e.handle(downEvent("svc")) // failures are logged, never propagated

	if atomic.LoadInt32(&attempts) != maxAttempts {
		t.Errorf("attempts = %d, want %d", attempts, maxAttempts)
	}
}

func TestIgnoresUnrelatedEventKinds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	e := New(Config{WebhookURL: srv.URL}, fakeNamer{}, nil, logger.New("error", false))
	e.handle(domain.Event{
		Kind: domain.EventActionStarted,
		At:   time.Now(),
		ActionStarted: &domain.ActionStartedPayload{
			ActionID: "a1", Kind: "restart_service", Targets: []string{"svc"},
		},
	})

	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("expected no webhook call for an event with no service id, got %d", hits)
	}
}

type fakeDedupStore struct {
	alreadySeen bool
	err         error
	calls       int
}

func (f *fakeDedupStore) MarkSeen(context.Context, string, string, time.Duration) (bool, error) {
	f.calls++
	return f.alreadySeen, f.err
}

func TestShouldFireUsesDedupStoreWhenConfigured(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	store := &fakeDedupStore{alreadySeen: true}
	e := New(Config{WebhookURL: srv.URL}, fakeNamer{}, store, logger.New("error", false))
	e.handle(downEvent("svc"))

	if store.calls != 1 {
		t.Errorf("dedup store calls = %d, want 1", store.calls)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("expected no webhook call when the dedup store reports alreadySeen, got %d", hits)
	}
}

func TestShouldFireFallsBackToLocalDedupOnStoreError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	store := &fakeDedupStore{err: context.DeadlineExceeded}
	e := New(Config{WebhookURL: srv.URL, DedupWindow: time.Minute}, fakeNamer{}, store, logger.New("error", false))
	e.handle(downEvent("svc"))
	e.handle(downEvent("svc"))

	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("hits = %d, want 1 (local dedup should kick in after the store errors)", hits)
	}
}
