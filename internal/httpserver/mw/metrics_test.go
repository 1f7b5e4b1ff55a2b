package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type capturingRecorder struct {
	method, path, status string
	d                     time.Duration
}

func (c *capturingRecorder) ObserveHTTPRequest(method, path, status string, d time.Duration) {
	c.method, c.path, c.status, c.d = method, path, status, d
}

func TestMetricsRecordsStatusAndRoutePattern(t *testing.T) {
	rec := &capturingRecorder{}
	r := chi.NewRouter()
	r.Use(Metrics(rec))
	r.Get("/services/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/services/svc-1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if rec.method != http.MethodGet {
		t.Errorf("method = %q, want GET", rec.method)
	}
	if rec.path != "/services/{id}" {
		t.Errorf("path = %q, want the route pattern, not the raw path", rec.path)
	}
	if rec.status != "418" {
		t.Errorf("status = %q, want 418", rec.status)
	}
}

func TestMetricsDefaultsStatusToOKWhenUnset(t *testing.T) {
	rec := &capturingRecorder{}
	h := Metrics(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) // no explicit WriteHeader
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if rec.status != "200" {
		t.Errorf("status = %q, want 200", rec.status)
	}
}
