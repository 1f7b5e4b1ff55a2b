package containerdriver

import (
	"context"
	"testing"

	"github.com/fleetwatch/monitor/internal/domain"
)

func TestComposeActionDryRunSkipsExec(t *testing.T) {
	d := NewWithBinary("/does/not/exist")
	res, err := d.ComposeAction(context.Background(), domain.ComposeActionPayload{
		Action: domain.ComposeUp,
		DryRun: true,
	})
	if err != nil {
		t.Fatalf("ComposeAction dry-run returned error: %v", err)
	}
	if !res.Success() || res.Stdout != "dry-run" {
		t.Errorf("got %+v, want a successful dry-run Result", res)
	}
}

func TestRestartUsesTrueBinary(t *testing.T) {
	d := NewWithBinary("true")
	res, err := d.Restart(context.Background(), "some-container")
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if !res.Success() {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
}

func TestRestartNonZeroExit(t *testing.T) {
	d := NewWithBinary("false")
	res, err := d.Restart(context.Background(), "some-container")
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if res.Success() {
		t.Error("expected a non-zero exit from `false`")
	}
}

func TestRestartMissingBinary(t *testing.T) {
	d := NewWithBinary("/no/such/binary/anywhere")
	if _, err := d.Restart(context.Background(), "c"); err == nil {
		t.Error("expected an error invoking a nonexistent binary")
	}
}
