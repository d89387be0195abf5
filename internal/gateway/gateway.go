package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"outlier-backend/internal/platform"
	"outlier-backend/internal/quota"
	"outlier-backend/internal/shared/metrics"
	"outlier-backend/internal/shared/telemetry"
	"outlier-backend/internal/shared/util"
)

// DefaultTTLTable maps operations to cache freshness windows. Channel
// metadata moves slowly, video listings faster, search results fastest.
func DefaultTTLTable() map[string]time.Duration {
	return map[string]time.Duration{
		platform.OpSearchChannels: 2 * time.Hour,
		platform.OpChannelDetails: 24 * time.Hour,
		platform.OpChannelVideos:  6 * time.Hour,
	}
}

// Gateway is the only component allowed to talk to the external provider.
// Every read passes through a read-through cache and the quota ledger.
type Gateway struct {
	Provider platform.Client
	Ledger   *quota.Ledger
	Cache    CacheStore
	Costs    map[string]int
	TTLs     map[string]time.Duration
	Retry    RetryPolicy

	now func() time.Time
}

// New constructs a Gateway with default cost, TTL and retry tables.
func New(provider platform.Client, ledger *quota.Ledger, cache CacheStore) *Gateway {
	return &Gateway{
		Provider: provider,
		Ledger:   ledger,
		Cache:    cache,
		Costs:    platform.DefaultCostTable(),
		TTLs:     DefaultTTLTable(),
		Retry:    DefaultRetryPolicy(),
		now:      time.Now,
	}
}

// SearchChannels is the high-cost keyword search. The degraded flag is true
// when a stale cache entry was served because quota was unavailable.
func (g *Gateway) SearchChannels(ctx context.Context, query string, maxResults int) ([]platform.Channel, bool, error) {
	key := "q=" + strings.ToLower(strings.TrimSpace(query)) + "|max=" + strconv.Itoa(maxResults)
	return fetchCached(ctx, g, platform.OpSearchChannels, key, func(ctx context.Context) ([]platform.Channel, error) {
		return g.Provider.SearchChannels(ctx, query, maxResults)
	})
}

// ChannelsByID fetches channel details and statistics.
func (g *Gateway) ChannelsByID(ctx context.Context, ids []string) ([]platform.Channel, bool, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	key := "ids=" + strings.Join(sorted, ",")
	return fetchCached(ctx, g, platform.OpChannelDetails, key, func(ctx context.Context) ([]platform.Channel, error) {
		return g.Provider.ChannelsByID(ctx, ids)
	})
}

// RecentVideos fetches a channel's videos within the publication window. The
// window start is truncated to the hour so consecutive jobs inside a TTL
// share cache entries.
func (g *Gateway) RecentVideos(ctx context.Context, channelID string, publishedAfter time.Time, maxResults int) ([]platform.Video, bool, error) {
	after := publishedAfter.UTC().Truncate(time.Hour)
	key := "ch=" + channelID + "|after=" + after.Format(time.RFC3339) + "|max=" + strconv.Itoa(maxResults)
	return fetchCached(ctx, g, platform.OpChannelVideos, key, func(ctx context.Context) ([]platform.Video, error) {
		return g.Provider.RecentVideos(ctx, channelID, after, maxResults)
	})
}

func fetchCached[T any](ctx context.Context, g *Gateway, op, paramsKey string, call func(context.Context) (T, error)) (T, bool, error) {
	var zero T
	if g.Provider == nil {
		return zero, false, fmt.Errorf("%s: no provider configured", op)
	}
	now := g.now()
	storeKey := op + ":" + util.HashKey(op+"|"+paramsKey)

	var stale *envelope
	raw, found, err := g.Cache.Get(ctx, storeKey)
	if err != nil {
		telemetry.Error("gateway.cache_read_failed", map[string]any{"op": op, "error": err.Error()})
		found = false
	}
	if found {
		var env envelope
		if err := json.Unmarshal(raw, &env); err == nil {
			if now.Sub(env.StoredAt) < g.ttl(op) {
				var out T
				if err := json.Unmarshal(env.Payload, &out); err == nil {
					metrics.IncCacheHit()
					return out, false, nil
				}
			} else {
				stale = &env
			}
		}
	}
	metrics.IncCacheMiss()

	cost := g.Costs[op]
	res, rerr := g.Ledger.Reserve(ctx, cost)
	if rerr != nil || !res.Allowed {
		metrics.IncQuotaDenied()
		if stale != nil {
			return serveStale[T](op, stale)
		}
		if rerr != nil {
			return zero, false, fmt.Errorf("quota reserve %s: %w", op, rerr)
		}
		return zero, false, fmt.Errorf("%s cost=%d remaining=%d: %w", op, cost, res.Remaining, quota.ErrExceeded)
	}

	var out T
	cerr := g.Retry.Do(ctx, func(ctx context.Context) error {
		metrics.IncProviderCall()
		v, err := call(ctx)
		if err != nil {
			metrics.IncProviderError()
			return err
		}
		out = v
		return nil
	})
	if cerr != nil {
		// Refund only when the provider never produced a billable response.
		if platform.IsRetryable(cerr) {
			if err := g.Ledger.Release(ctx, cost); err != nil {
				telemetry.Error("gateway.quota_release_failed", map[string]any{"op": op, "error": err.Error()})
			}
		}
		if stale != nil {
			return serveStale[T](op, stale)
		}
		return zero, false, cerr
	}

	payload, err := json.Marshal(out)
	if err == nil {
		env, err := json.Marshal(envelope{StoredAt: now, Payload: payload})
		if err == nil {
			if err := g.Cache.Set(ctx, storeKey, env, cacheRetention); err != nil {
				telemetry.Error("gateway.cache_write_failed", map[string]any{"op": op, "error": err.Error()})
			}
		}
	}
	return out, false, nil
}

func serveStale[T any](op string, env *envelope) (T, bool, error) {
	var out T
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		var zero T
		return zero, false, fmt.Errorf("decode stale %s entry: %w", op, err)
	}
	metrics.IncCacheStaleServe()
	telemetry.Info("gateway.degraded", map[string]any{"op": op, "stored_at": env.StoredAt})
	return out, true, nil
}

func (g *Gateway) ttl(op string) time.Duration {
	if ttl, ok := g.TTLs[op]; ok {
		return ttl
	}
	return 2 * time.Hour
}
