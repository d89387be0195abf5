package analysis

import (
	"context"
	"time"

	"outlier-backend/internal/platform"
)

// Source is the quota-metered, cached view of the video platform that the
// pipeline stages consume. The degraded flag reports that the payload came
// from an expired cache entry rather than a live call.
type Source interface {
	SearchChannels(ctx context.Context, query string, maxResults int) ([]platform.Channel, bool, error)
	ChannelsByID(ctx context.Context, ids []string) ([]platform.Channel, bool, error)
	RecentVideos(ctx context.Context, channelID string, publishedAfter time.Time, maxResults int) ([]platform.Video, bool, error)
}
