package analysis

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is the in-process job store used when no database is
// configured, and in tests.
type MemoryRepo struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{jobs: make(map[string]Job)}
}

func (r *MemoryRepo) Create(_ context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

func (r *MemoryRepo) List(_ context.Context, limit, offset int) ([]Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		all = append(all, job)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRepo) MarkProcessing(_ context.Context, id string, startedAt time.Time) error {
	return r.updateActive(id, func(job *Job) {
		job.Status = StatusProcessing
		job.StartedAt = &startedAt
	})
}

func (r *MemoryRepo) UpdateProgress(_ context.Context, id string, step, percent int) error {
	return r.updateActive(id, func(job *Job) {
		job.CurrentStep = step
		job.ProgressPercent = percent
	})
}

func (r *MemoryRepo) Complete(_ context.Context, id string, results []OutlierResult, skipped []SkippedChannel, degraded []string, completedAt time.Time) error {
	return r.updateActive(id, func(job *Job) {
		job.Status = StatusCompleted
		job.CurrentStep = StepFinalize
		job.ProgressPercent = 100
		job.Results = results
		job.SkippedChannels = skipped
		job.DegradedChannels = degraded
		job.CompletedAt = &completedAt
	})
}

func (r *MemoryRepo) Fail(_ context.Context, id, code, summary string, skipped []SkippedChannel, completedAt time.Time) error {
	return r.updateActive(id, func(job *Job) {
		job.Status = StatusFailed
		job.ErrorCode = code
		job.ErrorSummary = summary
		job.SkippedChannels = skipped
		job.CompletedAt = &completedAt
	})
}

func (r *MemoryRepo) MarkCancelled(_ context.Context, id string, completedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	if job.Status != StatusPending && job.Status != StatusProcessing {
		return false, nil
	}
	job.Status = StatusCancelled
	job.CompletedAt = &completedAt
	r.jobs[id] = job
	return true, nil
}

// updateActive applies a mutation only while the job is still live, so a
// late runner write cannot overwrite a cancellation.
func (r *MemoryRepo) updateActive(id string, apply func(*Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusPending && job.Status != StatusProcessing {
		return ErrTerminal
	}
	apply(&job)
	r.jobs[id] = job
	return nil
}
