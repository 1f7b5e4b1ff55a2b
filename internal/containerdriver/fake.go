package containerdriver

import (
	"context"

	"github.com/fleetwatch/monitor/internal/domain"
)

// Fake is an in-memory Driver double for dispatcher and wsgateway tests.
type Fake struct {
	RestartCalls []string
	RestartErr   error
	RestartResult Result

	ComposeCalls  []domain.ComposeActionPayload
	ComposeErr    error
	ComposeResult Result

	StatsResult map[string]domain.ContainerStats
	StatsErr    error
}

func (f *Fake) Restart(_ context.Context, containerName string) (Result, error) {
	f.RestartCalls = append(f.RestartCalls, containerName)
	if f.RestartErr != nil {
		return Result{}, f.RestartErr
	}
	if f.RestartResult.ExitCode == 0 && f.RestartResult.Stdout == "" {
		return Result{ExitCode: 0, Stdout: "restarted"}, nil
	}
	return f.RestartResult, nil
}

func (f *Fake) ComposeAction(_ context.Context, spec domain.ComposeActionPayload) (Result, error) {
	f.ComposeCalls = append(f.ComposeCalls, spec)
	if f.ComposeErr != nil {
		return Result{}, f.ComposeErr
	}
	if spec.DryRun {
		return Result{ExitCode: 0, Stdout: "dry-run"}, nil
	}
	if f.ComposeResult.ExitCode == 0 && f.ComposeResult.Stdout == "" {
		return Result{ExitCode: 0, Stdout: "ok"}, nil
	}
	return f.ComposeResult, nil
}

func (f *Fake) Stats(_ context.Context, _ []string) (map[string]domain.ContainerStats, error) {
	if f.StatsErr != nil {
		return nil, f.StatsErr
	}
	return f.StatsResult, nil
}
