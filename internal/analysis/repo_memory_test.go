package analysis

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedMemoryJob(t *testing.T, repo *MemoryRepo, status string) Job {
	t.Helper()
	job := Job{
		ID:        "job-1",
		Status:    status,
		Config:    Config{ExclusionChannels: []string{"Thinknoodles"}, MinSubscribers: 1000, MaxSubscribers: 500_000, TimeWindowDays: 14, OutlierThreshold: 15},
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("create: %v", err)
	}
	return job
}

func TestMemoryRepoProgressWriteAfterCancelRejected(t *testing.T) {
	repo := NewMemoryRepo()
	job := seedMemoryJob(t, repo, StatusProcessing)
	ctx := context.Background()

	transitioned, err := repo.MarkCancelled(ctx, job.ID, time.Now().UTC())
	if err != nil || !transitioned {
		t.Fatalf("cancel: transitioned=%v err=%v", transitioned, err)
	}

	// A collector goroutine finishing late must not touch the cancelled row.
	if err := repo.UpdateProgress(ctx, job.ID, StepScoring, 90); !errors.Is(err, ErrTerminal) {
		t.Fatalf("UpdateProgress after cancel: err = %v, want ErrTerminal", err)
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("status = %s, want %s", got.Status, StatusCancelled)
	}
	if got.CurrentStep != 0 || got.ProgressPercent != 0 {
		t.Fatalf("cancelled job mutated: step=%d percent=%d", got.CurrentStep, got.ProgressPercent)
	}
}

func TestMemoryRepoProgressWriteOnLiveJob(t *testing.T) {
	repo := NewMemoryRepo()
	job := seedMemoryJob(t, repo, StatusProcessing)
	ctx := context.Background()

	if err := repo.UpdateProgress(ctx, job.ID, StepCollection, 60); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CurrentStep != StepCollection || got.ProgressPercent != 60 {
		t.Fatalf("progress not recorded: step=%d percent=%d", got.CurrentStep, got.ProgressPercent)
	}
}

func TestMemoryRepoCompleteStoresDegradedChannels(t *testing.T) {
	repo := NewMemoryRepo()
	job := seedMemoryJob(t, repo, StatusProcessing)
	ctx := context.Background()

	degraded := []string{"cand-1", "cand-3"}
	if err := repo.Complete(ctx, job.ID, nil, nil, degraded, time.Now().UTC()); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.DegradedChannels) != 2 || got.DegradedChannels[0] != "cand-1" {
		t.Fatalf("DegradedChannels = %v, want %v", got.DegradedChannels, degraded)
	}
}
