package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"outlier-backend/internal/platform"
)

const defaultBaseURL = "https://www.googleapis.com/youtube/v3"

// Client implements platform.Client against the YouTube Data API v3.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient constructs a YouTube data API client. All requests share a
// uniform timeout and are paced client-side to stay under the provider's
// implicit per-second limits.
func NewClient(apiKey string, timeout time.Duration, qps float64) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("YOUTUBE_API_KEY is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if qps <= 0 {
		qps = 4
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(qps), 1),
	}, nil
}

// WithBaseURL overrides the API endpoint, used by tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

type searchResponse struct {
	Items []struct {
		ID struct {
			ChannelID string `json:"channelId"`
		} `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
	} `json:"items"`
}

type channelsResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		Statistics struct {
			SubscriberCount string `json:"subscriberCount"`
			VideoCount      string `json:"videoCount"`
		} `json:"statistics"`
		Status struct {
			MadeForKids bool `json:"madeForKids"`
		} `json:"status"`
	} `json:"items"`
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string   `json:"title"`
			Description string   `json:"description"`
			Tags        []string `json:"tags"`
			PublishedAt string   `json:"publishedAt"`
			ChannelID   string   `json:"channelId"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// SearchChannels issues a channel-type keyword search. Results carry only id
// and title; callers fetch statistics separately. The search runs with
// safeSearch=strict, so every hit has already passed the provider's
// family-safety screen and is marked accordingly.
func (c *Client) SearchChannels(ctx context.Context, query string, maxResults int) ([]platform.Channel, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "channel")
	params.Set("q", query)
	params.Set("safeSearch", "strict")
	params.Set("maxResults", strconv.Itoa(clampResults(maxResults)))

	var resp searchResponse
	if err := c.get(ctx, "/search", params, &resp); err != nil {
		return nil, err
	}
	out := make([]platform.Channel, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.ChannelID == "" {
			continue
		}
		out = append(out, platform.Channel{
			ID:           item.ID.ChannelID,
			Title:        item.Snippet.Title,
			IsFamilySafe: true,
		})
	}
	return out, nil
}

// ChannelsByID fetches metadata and statistics for up to 50 channels at once.
func (c *Client) ChannelsByID(ctx context.Context, ids []string) ([]platform.Channel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("part", "snippet,statistics,status")
	params.Set("id", strings.Join(ids, ","))

	var resp channelsResponse
	if err := c.get(ctx, "/channels", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, platform.ErrNotFound
	}
	out := make([]platform.Channel, 0, len(resp.Items))
	for _, item := range resp.Items {
		out = append(out, platform.Channel{
			ID:              item.ID,
			Title:           item.Snippet.Title,
			SubscriberCount: parseCount(item.Statistics.SubscriberCount),
			VideoCount:      parseCount(item.Statistics.VideoCount),
			// madeForKids is the only explicit safety signal on the
			// channels endpoint; strict-search provenance is merged in
			// by the caller when the id came from SearchChannels.
			IsFamilySafe: item.Status.MadeForKids,
		})
	}
	return out, nil
}

// RecentVideos returns a channel's videos published after the given time.
// The search endpoint scoped to a channelId is cheap relative to keyword
// search, but the stats still come from the videos endpoint, so this issues
// two wire calls and reports as one logical operation upstream.
func (c *Client) RecentVideos(ctx context.Context, channelID string, publishedAfter time.Time, maxResults int) ([]platform.Video, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("channelId", channelID)
	params.Set("safeSearch", "strict")
	params.Set("order", "date")
	params.Set("maxResults", strconv.Itoa(clampResults(maxResults)))
	if !publishedAfter.IsZero() {
		params.Set("publishedAfter", publishedAfter.UTC().Format(time.RFC3339))
	}

	var listing struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
		} `json:"items"`
	}
	if err := c.get(ctx, "/search", params, &listing); err != nil {
		return nil, err
	}
	videoIDs := make([]string, 0, len(listing.Items))
	for _, item := range listing.Items {
		if item.ID.VideoID != "" {
			videoIDs = append(videoIDs, item.ID.VideoID)
		}
	}
	if len(videoIDs) == 0 {
		return []platform.Video{}, nil
	}

	detailParams := url.Values{}
	detailParams.Set("part", "snippet,statistics")
	detailParams.Set("id", strings.Join(videoIDs, ","))

	var resp videosResponse
	if err := c.get(ctx, "/videos", detailParams, &resp); err != nil {
		return nil, err
	}
	out := make([]platform.Video, 0, len(resp.Items))
	for _, item := range resp.Items {
		publishedAt, _ := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
		out = append(out, platform.Video{
			ID:           item.ID,
			Title:        item.Snippet.Title,
			Description:  item.Snippet.Description,
			Tags:         item.Snippet.Tags,
			PublishedAt:  publishedAt,
			ViewCount:    parseCount(item.Statistics.ViewCount),
			LikeCount:    parseCount(item.Statistics.LikeCount),
			CommentCount: parseCount(item.Statistics.CommentCount),
			ChannelID:    channelID,
		})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	params.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("youtube request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("youtube read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return platform.ErrNotFound
		}
		var apiErr errorResponse
		reason := ""
		if err := json.Unmarshal(body, &apiErr); err == nil && len(apiErr.Error.Errors) > 0 {
			reason = apiErr.Error.Errors[0].Reason
		}
		return &platform.APIError{StatusCode: resp.StatusCode, Reason: reason}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("youtube decode response: %w", err)
	}
	return nil
}

func clampResults(n int) int {
	if n <= 0 {
		return 25
	}
	if n > 50 {
		return 50
	}
	return n
}

func parseCount(raw string) int64 {
	if raw == "" {
		return 0
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return val
}
