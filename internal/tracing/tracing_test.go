package tracing

import (
	"context"
	"errors"
	"testing"
)

func TestNewNoOpModeWithoutEndpoint(t *testing.T) {
	p, err := New(context.Background(), "monitor-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, span := p.Start(context.Background(), "probe.test")
	if ctx == nil || span == nil {
		t.Fatal("expected a usable span in no-op mode")
	}
	End(span, nil)

	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown in no-op mode should not error: %v", err)
	}
}

func TestEndRecordsError(t *testing.T) {
	p, _ := New(context.Background(), "monitor-test", "")
	_, span := p.Start(context.Background(), "probe.test")
	End(span, errors.New("boom"))
}
