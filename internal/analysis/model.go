package analysis

import (
	"time"

	"outlier-backend/internal/platform"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Pipeline steps carried on the job while processing.
const (
	StepInit       = 0
	StepExclusions = 1
	StepDiscovery  = 2
	StepCollection = 3
	StepScoring    = 4
	StepFinalize   = 5
)

// Config is the immutable input of an analysis job.
type Config struct {
	ExclusionChannels []string `json:"exclusionChannels"`
	MinSubscribers    int64    `json:"minSubscribers"`
	MaxSubscribers    int64    `json:"maxSubscribers"`
	TimeWindowDays    int      `json:"timeWindowDays"`
	OutlierThreshold  float64  `json:"outlierThreshold"`
}

// SkippedChannel records a candidate that contributed no data and why.
type SkippedChannel struct {
	ChannelID string `json:"channelId"`
	Title     string `json:"title,omitempty"`
	Reason    string `json:"reason"`
}

// Job represents one analysis run.
type Job struct {
	ID               string           `json:"id"`
	Status           string           `json:"status"`
	CurrentStep      int              `json:"currentStep"`
	ProgressPercent  int              `json:"progressPercent"`
	Config           Config           `json:"config"`
	Results          []OutlierResult  `json:"results,omitempty"`
	SkippedChannels  []SkippedChannel `json:"skippedChannels,omitempty"`
	DegradedChannels []string         `json:"degradedChannels,omitempty"`
	ErrorCode        string           `json:"errorCode,omitempty"`
	ErrorSummary     string           `json:"errorSummary,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	StartedAt        *time.Time       `json:"startedAt,omitempty"`
	CompletedAt      *time.Time       `json:"completedAt,omitempty"`
}

// SkipReasonCounts aggregates skip reasons for the completed-job summary.
func (j Job) SkipReasonCounts() map[string]int {
	if len(j.SkippedChannels) == 0 {
		return nil
	}
	counts := make(map[string]int, 4)
	for _, s := range j.SkippedChannels {
		counts[s.Reason]++
	}
	return counts
}

// ChannelSnippet is the denormalized channel slice carried on a result.
type ChannelSnippet struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	SubscriberCount int64  `json:"subscriberCount"`
}

// OutlierResult is the job's terminal artifact, one per qualifying video.
type OutlierResult struct {
	Video         platform.Video `json:"video"`
	Channel       ChannelSnippet `json:"channel"`
	OutlierScore  float64        `json:"outlierScore"`
	BrandFitScore float64        `json:"brandFitScore"`
	Rank          int            `json:"rank"`
}

// Baseline is a channel's own recent view-count distribution. Derived per
// run, never persisted.
type Baseline struct {
	MeanViews   float64
	StdDevViews float64
	MedianViews float64
	SampleSize  int
}

// ProgressEvent is a fire-and-forget progress notification. Consumers that
// miss events can always poll the Job record.
type ProgressEvent struct {
	JobID           string         `json:"jobId"`
	Step            int            `json:"step"`
	Message         string         `json:"message"`
	ProgressPercent int            `json:"progressPercent"`
	PartialData     map[string]any `json:"partialData,omitempty"`
}
