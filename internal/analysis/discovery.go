package analysis

import (
	"context"
	"sort"
	"time"

	"outlier-backend/internal/platform"
)

const (
	defaultSeedTerms     = 4
	defaultPerSeedHits   = 25
	channelDetailsChunk  = 50
	defaultVideoFloor    = 10
	defaultStaleAfter    = 90 * 24 * time.Hour
	defaultMaxCandidates = 50
)

// Discoverer finds candidate channels in the same topical space as the
// reference channels, then filters them down to the job's audience band.
type Discoverer struct {
	Source        Source
	SeedTerms     int
	PerSeedHits   int
	VideoFloor    int
	StaleAfter    time.Duration
	MaxCandidates int

	now func() time.Time
}

func NewDiscoverer(source Source, videoFloor int, staleAfter time.Duration, maxCandidates int) *Discoverer {
	d := &Discoverer{
		Source:        source,
		SeedTerms:     defaultSeedTerms,
		PerSeedHits:   defaultPerSeedHits,
		VideoFloor:    videoFloor,
		StaleAfter:    staleAfter,
		MaxCandidates: maxCandidates,
		now:           time.Now,
	}
	if d.VideoFloor <= 0 {
		d.VideoFloor = defaultVideoFloor
	}
	if d.StaleAfter <= 0 {
		d.StaleAfter = defaultStaleAfter
	}
	if d.MaxCandidates <= 0 {
		d.MaxCandidates = defaultMaxCandidates
	}
	return d
}

// Discover seeds channel searches from the vocabulary, resolves statistics
// for every hit, and keeps channels inside the configured audience band.
// Channels named in excludeIDs (the reference channels themselves) never
// come back as candidates. Individual seed searches may fail as long as at
// least one succeeds.
func (d *Discoverer) Discover(ctx context.Context, vocab Vocabulary, cfg Config, excludeIDs map[string]struct{}) ([]platform.Channel, error) {
	seeds := d.pickSeeds(vocab)

	seen := make(map[string]struct{})
	safeHit := make(map[string]bool)
	var ids []string
	var lastErr error
	succeeded := 0
	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits, _, err := d.Source.SearchChannels(ctx, seed, d.PerSeedHits)
		if err != nil {
			lastErr = err
			continue
		}
		succeeded++
		for _, ch := range hits {
			if _, dup := seen[ch.ID]; dup {
				continue
			}
			if _, ref := excludeIDs[ch.ID]; ref {
				continue
			}
			seen[ch.ID] = struct{}{}
			safeHit[ch.ID] = ch.IsFamilySafe
			ids = append(ids, ch.ID)
		}
	}
	if succeeded == 0 && lastErr != nil {
		return nil, lastErr
	}
	if len(ids) == 0 {
		return nil, nil
	}

	details, err := d.resolveDetails(ctx, ids)
	if err != nil {
		return nil, err
	}

	cutoff := d.now().Add(-d.StaleAfter)
	candidates := make([]platform.Channel, 0, len(details))
	for _, ch := range details {
		// A strict-search hit has already passed the provider's safety
		// screen even when the channel is not flagged madeForKids.
		if safeHit[ch.ID] {
			ch.IsFamilySafe = true
		}
		if !d.keep(ch, cfg, cutoff) {
			continue
		}
		candidates = append(candidates, ch)
		if len(candidates) >= d.MaxCandidates {
			break
		}
	}
	return candidates, nil
}

// pickSeeds selects the most specific vocabulary terms, longest first, so
// searches land on the topic rather than a generic word.
func (d *Discoverer) pickSeeds(vocab Vocabulary) []string {
	terms := vocab.Terms()
	sort.SliceStable(terms, func(i, j int) bool {
		return len(terms[i]) > len(terms[j])
	})
	n := d.SeedTerms
	if n <= 0 {
		n = defaultSeedTerms
	}
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

func (d *Discoverer) resolveDetails(ctx context.Context, ids []string) ([]platform.Channel, error) {
	var details []platform.Channel
	for start := 0; start < len(ids); start += channelDetailsChunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + channelDetailsChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk, _, err := d.Source.ChannelsByID(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		details = append(details, chunk...)
	}
	return details, nil
}

// keep applies the audience-band and hygiene filters. A zero LastVideoAt
// means the platform did not report upload recency; such channels pass here
// and are weeded out naturally when collection finds nothing in the window.
func (d *Discoverer) keep(ch platform.Channel, cfg Config, staleCutoff time.Time) bool {
	if ch.SubscriberCount < cfg.MinSubscribers || ch.SubscriberCount > cfg.MaxSubscribers {
		return false
	}
	if !ch.IsFamilySafe {
		return false
	}
	if ch.VideoCount < int64(d.VideoFloor) {
		return false
	}
	if !ch.LastVideoAt.IsZero() && ch.LastVideoAt.Before(staleCutoff) {
		return false
	}
	return true
}
