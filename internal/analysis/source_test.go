package analysis

import (
	"context"
	"sync"
	"time"

	"outlier-backend/internal/platform"
)

// fakeSource scripts platform responses per query and channel. Queries with
// no explicit script fall back to defaultSearch, which keeps tests stable
// when seed selection changes.
type fakeSource struct {
	mu sync.Mutex

	searches      map[string][]platform.Channel
	searchErrs    map[string]error
	defaultSearch []platform.Channel

	channels    map[string]platform.Channel
	channelsErr error

	videos        map[string][]platform.Video
	videoErrs     map[string]error
	videoDegraded map[string]bool

	searchCalls int
	videoCalls  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		searches:      make(map[string][]platform.Channel),
		searchErrs:    make(map[string]error),
		channels:      make(map[string]platform.Channel),
		videos:        make(map[string][]platform.Video),
		videoErrs:     make(map[string]error),
		videoDegraded: make(map[string]bool),
	}
}

func (f *fakeSource) SearchChannels(_ context.Context, query string, maxResults int) ([]platform.Channel, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if err, ok := f.searchErrs[query]; ok {
		return nil, false, err
	}
	hits, ok := f.searches[query]
	if !ok {
		hits = f.defaultSearch
	}
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits, false, nil
}

func (f *fakeSource) ChannelsByID(_ context.Context, ids []string) ([]platform.Channel, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channelsErr != nil {
		return nil, false, f.channelsErr
	}
	var out []platform.Channel
	for _, id := range ids {
		if ch, ok := f.channels[id]; ok {
			out = append(out, ch)
		}
	}
	return out, false, nil
}

func (f *fakeSource) RecentVideos(_ context.Context, channelID string, publishedAfter time.Time, maxResults int) ([]platform.Video, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoCalls++
	if err, ok := f.videoErrs[channelID]; ok {
		return nil, false, err
	}
	var out []platform.Video
	for _, v := range f.videos[channelID] {
		if v.PublishedAt.After(publishedAfter) {
			out = append(out, v)
		}
	}
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, f.videoDegraded[channelID], nil
}

func (f *fakeSource) addChannel(ch platform.Channel, videos ...platform.Video) {
	f.channels[ch.ID] = ch
	f.videos[ch.ID] = videos
}

func mkChannel(id, title string, subs int64) platform.Channel {
	return platform.Channel{
		ID:              id,
		Title:           title,
		SubscriberCount: subs,
		VideoCount:      200,
		IsFamilySafe:    true,
		LastVideoAt:     time.Now().AddDate(0, 0, -2),
	}
}

func mkVideo(id, title string, views int64, ageDays int) platform.Video {
	return platform.Video{
		ID:           id,
		Title:        title,
		ViewCount:    views,
		LikeCount:    views / 50,
		CommentCount: views / 200,
		PublishedAt:  time.Now().AddDate(0, 0, -ageDays),
	}
}
