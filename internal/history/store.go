// Package history persists task runs and their step-by-step audit trail.
package history

import (
	"context"

	"github.com/xkilldash9x/phonepilot/api/schemas"
)

// Store receives the audit trail for a running task. Implementations must
// tolerate being called after the task's context is cancelled; the agent
// records terminal outcomes on a fresh context.
type Store interface {
	BeginTask(ctx context.Context, taskID, goal string) error
	RecordStep(ctx context.Context, rec *schemas.StepRecord) error
	FinishTask(ctx context.Context, res *schemas.TaskResult) error
	Close()
}

// NopStore discards everything. Used when history persistence is disabled.
type NopStore struct{}

var _ Store = NopStore{}

func (NopStore) BeginTask(context.Context, string, string) error { return nil }

func (NopStore) RecordStep(context.Context, *schemas.StepRecord) error { return nil }

func (NopStore) FinishTask(context.Context, *schemas.TaskResult) error { return nil }

func (NopStore) Close() {}
