package analysis

import (
	"context"
	"errors"
	"time"

	"outlier-backend/internal/platform"
	"outlier-backend/internal/quota"
)

// Collector pulls a single candidate channel's uploads inside the analysis
// window and drops anything the exclusion vocabulary matches. An empty haul
// is a normal outcome, not an error.
type Collector struct {
	Source     Source
	MaxResults int

	now func() time.Time
}

func NewCollector(source Source, maxResults int) *Collector {
	if maxResults <= 0 {
		maxResults = 50
	}
	return &Collector{Source: source, MaxResults: maxResults, now: time.Now}
}

// Collect returns the channel's in-window, non-excluded uploads plus a
// degraded flag when the data came from an expired cache entry.
func (c *Collector) Collect(ctx context.Context, channelID string, windowDays int, vocab Vocabulary) ([]platform.Video, bool, error) {
	cutoff := c.now().AddDate(0, 0, -windowDays)
	videos, degraded, err := c.Source.RecentVideos(ctx, channelID, cutoff, c.MaxResults)
	if err != nil {
		return nil, degraded, err
	}

	kept := make([]platform.Video, 0, len(videos))
	for _, v := range videos {
		// cached responses can span a wider window than this job asked for
		if v.PublishedAt.Before(cutoff) {
			continue
		}
		if vocab.MatchesVideo(v) {
			continue
		}
		kept = append(kept, v)
	}
	return kept, degraded, nil
}

// skipReason classifies a per-channel failure for the skip report.
func skipReason(err error) string {
	switch {
	case errors.Is(err, quota.ErrExceeded):
		return "quota exhausted"
	case errors.Is(err, platform.ErrNotFound):
		return "channel not found"
	case platform.IsRetryable(err):
		return "provider unavailable"
	default:
		return "provider error"
	}
}
