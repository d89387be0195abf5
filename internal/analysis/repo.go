package analysis

import (
	"context"
	"time"
)

// Repo persists analysis jobs. Progress and terminal transitions are
// separate operations so the async runner can update cheaply without
// rewriting result payloads.
type Repo interface {
	Create(ctx context.Context, job Job) error
	GetByID(ctx context.Context, id string) (Job, error)
	List(ctx context.Context, limit, offset int) ([]Job, error)

	MarkProcessing(ctx context.Context, id string, startedAt time.Time) error
	UpdateProgress(ctx context.Context, id string, step, percent int) error
	Complete(ctx context.Context, id string, results []OutlierResult, skipped []SkippedChannel, degraded []string, completedAt time.Time) error
	Fail(ctx context.Context, id, code, summary string, skipped []SkippedChannel, completedAt time.Time) error

	// MarkCancelled transitions a pending or processing job to cancelled.
	// It reports false when the job was already terminal.
	MarkCancelled(ctx context.Context, id string, completedAt time.Time) (bool, error)
}
