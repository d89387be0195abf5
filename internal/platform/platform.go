package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Operation names used for cache keys and quota cost lookup.
const (
	OpSearchChannels = "search.channels"
	OpChannelDetails = "channels.list"
	OpChannelVideos  = "videos.list"
)

// DefaultCostTable maps operations to their quota cost in provider units.
// Search-type operations are two orders of magnitude more expensive than
// list/detail lookups.
func DefaultCostTable() map[string]int {
	return map[string]int{
		OpSearchChannels: 100,
		OpChannelDetails: 1,
		OpChannelVideos:  2,
	}
}

// Channel is a read-only snapshot of a channel's public metadata.
type Channel struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	SubscriberCount int64     `json:"subscriberCount"`
	VideoCount      int64     `json:"videoCount"`
	IsFamilySafe    bool      `json:"isFamilySafe"`
	LastVideoAt     time.Time `json:"lastVideoAt"`
}

// Video is an immutable snapshot of a video at fetch time.
type Video struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Tags         []string  `json:"tags"`
	PublishedAt  time.Time `json:"publishedAt"`
	ViewCount    int64     `json:"viewCount"`
	LikeCount    int64     `json:"likeCount"`
	CommentCount int64     `json:"commentCount"`
	ChannelID    string    `json:"channelId"`
}

// Client abstracts the external video-platform data API.
type Client interface {
	// SearchChannels returns channels matching a keyword query.
	SearchChannels(ctx context.Context, query string, maxResults int) ([]Channel, error)
	// ChannelsByID returns detailed metadata and statistics for the given channel ids.
	ChannelsByID(ctx context.Context, ids []string) ([]Channel, error)
	// RecentVideos returns videos for a channel published after the given time, newest first.
	RecentVideos(ctx context.Context, channelID string, publishedAfter time.Time, maxResults int) ([]Video, error)
}

// ErrNotFound indicates the requested entity does not exist upstream.
var ErrNotFound = errors.New("not found")

// APIError carries the upstream HTTP status and reason for classification.
type APIError struct {
	StatusCode int
	Reason     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider api error: status=%d reason=%s", e.StatusCode, e.Reason)
}

// IsRetryable reports whether an error is worth retrying: timeouts,
// rate-limit responses and upstream 5xx. Not-found and auth failures are
// permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
