package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"outlier-backend/internal/platform"
	"outlier-backend/internal/quota"
	"outlier-backend/internal/shared/metrics"
	"outlier-backend/internal/shared/telemetry"
)

const maxErrorSummaryLen = 300

// Service orchestrates analysis jobs: it owns the job lifecycle, runs the
// pipeline asynchronously, and publishes progress through the hub.
type Service struct {
	Repo        Repo
	Hub         *Hub
	Exclusions  *ExclusionBuilder
	Discoverer  *Discoverer
	Collector   *Collector
	Scorer      *Scorer
	Concurrency int

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	now func() time.Time
}

func NewService(repo Repo, hub *Hub, exclusions *ExclusionBuilder, discoverer *Discoverer, collector *Collector, scorer *Scorer, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Service{
		Repo:        repo,
		Hub:         hub,
		Exclusions:  exclusions,
		Discoverer:  discoverer,
		Collector:   collector,
		Scorer:      scorer,
		Concurrency: concurrency,
		cancels:     make(map[string]context.CancelFunc),
		now:         time.Now,
	}
}

// Start validates the config, records a pending job, and kicks off the
// pipeline in the background.
func (s *Service) Start(ctx context.Context, cfg Config) (Job, error) {
	cfg = NormalizeConfig(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return Job{}, err
	}

	job := Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Config:    cfg,
		CreatedAt: s.now().UTC(),
	}
	if err := s.Repo.Create(ctx, job); err != nil {
		return Job{}, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[job.ID] = cancel
	s.mu.Unlock()

	go s.runAnalysis(runCtx, job.ID, cfg)
	return job, nil
}

// Get returns the job record without its result payload.
func (s *Service) Get(ctx context.Context, id string) (Job, error) {
	job, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Job{}, err
	}
	job.Results = nil
	return job, nil
}

// List returns recent jobs, newest first, without result payloads.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Job, error) {
	jobs, err := s.Repo.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		jobs[i].Results = nil
	}
	return jobs, nil
}

// Results returns the full job including results. Only completed jobs have
// results to return.
func (s *Service) Results(ctx context.Context, id string) (Job, error) {
	job, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if job.Status != StatusCompleted {
		return Job{}, fmt.Errorf("%w: status is %s", ErrNotCompleted, job.Status)
	}
	return job, nil
}

// Cancel stops a pending or processing job. Cancelling an already terminal
// job returns ErrTerminal.
func (s *Service) Cancel(ctx context.Context, id string) (Job, error) {
	transitioned, err := s.Repo.MarkCancelled(ctx, id, s.now().UTC())
	if err != nil {
		return Job{}, err
	}
	if !transitioned {
		return Job{}, ErrTerminal
	}

	s.mu.Lock()
	cancel := s.cancels[id]
	delete(s.cancels, id)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	metrics.IncJobCancelled()
	telemetry.Info("job.status", map[string]any{
		"jobId":  id,
		"status": StatusCancelled,
	})

	job, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Job{}, err
	}
	// Terminal events carry the last recorded progress so listeners never
	// see the percent move backwards.
	s.Hub.Publish(ProgressEvent{
		JobID:           id,
		Step:            job.CurrentStep,
		Message:         "analysis cancelled",
		ProgressPercent: job.ProgressPercent,
	})
	s.Hub.CloseJob(id)

	return job, nil
}

// Subscribe attaches a progress listener for a job.
func (s *Service) Subscribe(jobID string) (<-chan ProgressEvent, func()) {
	return s.Hub.Subscribe(jobID)
}

func (s *Service) runAnalysis(ctx context.Context, jobID string, cfg Config) {
	defer func() {
		if r := recover(); r != nil {
			s.failJob(jobID, fmt.Errorf("panic: %v", r), nil, nil)
		}
		s.mu.Lock()
		delete(s.cancels, jobID)
		s.mu.Unlock()
	}()

	startedAt := s.now().UTC()
	if err := s.Repo.MarkProcessing(ctx, jobID, startedAt); err != nil {
		// ErrTerminal here means the job was cancelled before it started
		if !errors.Is(err, ErrTerminal) {
			s.failJob(jobID, fmt.Errorf("set processing failed: %w", err), nil, &startedAt)
		}
		return
	}
	metrics.IncJobStarted()
	telemetry.Info("job.status", map[string]any{
		"jobId":  jobID,
		"status": StatusProcessing,
	})
	s.emit(ctx, jobID, StepInit, "analysis started", 2, nil)

	// Step 1: exclusion vocabulary from the reference channels.
	excl, err := s.Exclusions.Build(ctx, cfg.ExclusionChannels)
	if s.cancelled(ctx) {
		return
	}
	if err != nil {
		s.failJob(jobID, err, nil, &startedAt)
		return
	}
	vocab, skipped := excl.Vocab, excl.Skipped
	s.emit(ctx, jobID, StepExclusions, "exclusion vocabulary built", 20, map[string]any{
		"termCount": len(vocab),
		"terms":     headTerms(vocab, 10),
	})

	// Step 2: candidate channel discovery.
	refSet := make(map[string]struct{}, len(excl.RefIDs))
	for _, id := range excl.RefIDs {
		refSet[id] = struct{}{}
	}
	candidates, err := s.Discoverer.Discover(ctx, vocab, cfg, refSet)
	if s.cancelled(ctx) {
		return
	}
	if err != nil {
		s.failJob(jobID, err, skipped, &startedAt)
		return
	}
	s.emit(ctx, jobID, StepDiscovery, "candidate channels discovered", 40, map[string]any{
		"candidateCount": len(candidates),
	})

	// Step 3: video collection across candidates, bounded fan-out.
	collected, collectSkipped, collectDegraded := s.collectAll(ctx, jobID, candidates, cfg, vocab)
	if s.cancelled(ctx) {
		return
	}
	skipped = append(skipped, collectSkipped...)
	degraded := mergeDegraded(excl.Degraded, collectDegraded)
	if len(candidates) > 0 && len(collected) == 0 && allQuotaSkips(collectSkipped) {
		s.failJob(jobID, quota.ErrExceeded, skipped, &startedAt)
		return
	}
	s.emit(ctx, jobID, StepCollection, "video collection finished", 75, map[string]any{
		"channelsCollected": len(collected),
		"channelsSkipped":   len(collectSkipped),
		"channelsDegraded":  len(degraded),
	})

	// Step 4: per-channel baselines and scoring.
	results := s.score(candidates, collected, cfg)
	s.emit(ctx, jobID, StepScoring, "scoring finished", 90, map[string]any{
		"resultCount": len(results),
	})

	// Step 5: finalize.
	if s.cancelled(ctx) {
		return
	}
	completedAt := s.now().UTC()
	if err := s.Repo.Complete(ctx, jobID, results, skipped, degraded, completedAt); err != nil {
		if errors.Is(err, ErrTerminal) {
			return
		}
		s.failJob(jobID, fmt.Errorf("persist results failed: %w", err), skipped, &startedAt)
		return
	}
	metrics.IncJobCompleted()
	metrics.ObserveJobDurationMs(float64(completedAt.Sub(startedAt).Milliseconds()))
	telemetry.Info("job.status", map[string]any{
		"jobId":      jobID,
		"status":     StatusCompleted,
		"results":    len(results),
		"skipped":    len(skipped),
		"degraded":   len(degraded),
		"durationMs": completedAt.Sub(startedAt).Milliseconds(),
		"candidates": len(candidates),
	})
	s.emit(ctx, jobID, StepFinalize, "analysis completed", 100, nil)
	s.Hub.CloseJob(jobID)
}

// collectAll fans the collector out over the candidates with bounded
// concurrency. Per-channel failures become skip entries, not job failures;
// channels served from an expired cache are reported as degraded.
func (s *Service) collectAll(ctx context.Context, jobID string, candidates []platform.Channel, cfg Config, vocab Vocabulary) (map[string][]platform.Video, []SkippedChannel, []string) {
	collected := make(map[string][]platform.Video, len(candidates))
	var skipped []SkippedChannel
	var degraded []string
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.Concurrency)

	done := 0
	total := len(candidates)
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(ch platform.Channel) {
			defer wg.Done()
			defer func() { <-sem }()

			videos, stale, err := s.Collector.Collect(ctx, ch.ID, cfg.TimeWindowDays, vocab)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					skipped = append(skipped, SkippedChannel{ChannelID: ch.ID, Title: ch.Title, Reason: skipReason(err)})
				}
			} else {
				if stale {
					degraded = append(degraded, ch.ID)
				}
				if len(videos) > 0 {
					collected[ch.ID] = videos
				}
			}
			done++
			percent := 40 + 35*done/total
			s.emit(ctx, jobID, StepCollection, fmt.Sprintf("collected %d of %d channels", done, total), percent, nil)
		}(candidate)
	}
	wg.Wait()
	return collected, skipped, degraded
}

// mergeDegraded joins the reference and candidate degraded lists into one
// sorted, deduplicated set.
func mergeDegraded(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// score builds a baseline per channel and keeps videos at or above the
// configured threshold, ranked by outlier score.
func (s *Service) score(candidates []platform.Channel, collected map[string][]platform.Video, cfg Config) []OutlierResult {
	byID := make(map[string]platform.Channel, len(candidates))
	for _, ch := range candidates {
		byID[ch.ID] = ch
	}

	var results []OutlierResult
	for channelID, videos := range collected {
		ch := byID[channelID]
		baseline := ComputeBaseline(videos)
		for _, v := range videos {
			outlier := s.Scorer.OutlierScore(v, baseline)
			if outlier < cfg.OutlierThreshold {
				continue
			}
			results = append(results, OutlierResult{
				Video: v,
				Channel: ChannelSnippet{
					ID:              ch.ID,
					Title:           ch.Title,
					SubscriberCount: ch.SubscriberCount,
				},
				OutlierScore:  outlier,
				BrandFitScore: s.Scorer.BrandFitScore(v, ch),
			})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].OutlierScore != results[j].OutlierScore {
			return results[i].OutlierScore > results[j].OutlierScore
		}
		if results[i].Video.ViewCount != results[j].Video.ViewCount {
			return results[i].Video.ViewCount > results[j].Video.ViewCount
		}
		return results[i].Video.PublishedAt.After(results[j].Video.PublishedAt)
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// emit persists progress and fans the event out. Persistence failures are
// logged and swallowed; progress is advisory. ErrTerminal means the job was
// cancelled under the runner, so the stale event is dropped entirely.
func (s *Service) emit(ctx context.Context, jobID string, step int, message string, percent int, partial map[string]any) {
	if err := s.Repo.UpdateProgress(ctx, jobID, step, percent); err != nil {
		if errors.Is(err, ErrTerminal) || errors.Is(err, context.Canceled) {
			return
		}
		telemetry.Error("job.progress", map[string]any{"jobId": jobID, "error": err.Error()})
	}
	s.Hub.Publish(ProgressEvent{
		JobID:           jobID,
		Step:            step,
		Message:         message,
		ProgressPercent: percent,
		PartialData:     partial,
	})
}

func (s *Service) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}

func (s *Service) failJob(jobID string, cause error, skipped []SkippedChannel, startedAt *time.Time) {
	code := classifyError(cause)
	summary := cause.Error()
	if len(summary) > maxErrorSummaryLen {
		summary = summary[:maxErrorSummaryLen]
	}

	completedAt := s.now().UTC()
	ctx := context.Background()
	if err := s.Repo.Fail(ctx, jobID, code, summary, skipped, completedAt); err != nil {
		if errors.Is(err, ErrTerminal) {
			return
		}
		telemetry.Error("job.fail", map[string]any{"jobId": jobID, "error": err.Error(), "cause": summary})
		return
	}
	metrics.IncJobFailed()
	if startedAt != nil {
		metrics.ObserveJobDurationMs(float64(completedAt.Sub(*startedAt).Milliseconds()))
	}
	telemetry.Info("job.status", map[string]any{
		"jobId":     jobID,
		"status":    StatusFailed,
		"errorCode": code,
		"error":     summary,
	})
	// Re-read the row so the terminal event reports the last recorded
	// progress instead of regressing.
	step, percent := 0, 0
	if job, err := s.Repo.GetByID(ctx, jobID); err == nil {
		step, percent = job.CurrentStep, job.ProgressPercent
	}
	s.Hub.Publish(ProgressEvent{
		JobID:           jobID,
		Step:            step,
		Message:         "analysis failed: " + code,
		ProgressPercent: percent,
	})
	s.Hub.CloseJob(jobID)
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, quota.ErrExceeded):
		return ErrCodeQuota
	case errors.Is(err, ErrExclusionsUnavailable):
		return ErrCodeExclusions
	case errors.Is(err, ErrInvalidConfig):
		return ErrCodeValidation
	case errors.Is(err, platform.ErrNotFound), platform.IsRetryable(err):
		return ErrCodeProvider
	default:
		var apiErr *platform.APIError
		if errors.As(err, &apiErr) {
			return ErrCodeProvider
		}
		return ErrCodeInternal
	}
}

func allQuotaSkips(skipped []SkippedChannel) bool {
	if len(skipped) == 0 {
		return false
	}
	for _, s := range skipped {
		if s.Reason != "quota exhausted" {
			return false
		}
	}
	return true
}

func headTerms(vocab Vocabulary, n int) []string {
	terms := vocab.Terms()
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}
