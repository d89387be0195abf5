package analysis

import (
	"math"
	"sort"
	"strings"

	"outlier-backend/internal/platform"
)

// Scorer computes the two ranking signals: how far a video sits above its
// own channel's norm, and how well it fits the brand.
type Scorer struct {
	// Scale stretches the raw z-score into a human-readable magnitude.
	Scale float64
	// BrandKeywords are the lowercase terms counted toward keyword overlap.
	BrandKeywords []string
	// EngagementCeiling is the engagement rate treated as a perfect score.
	EngagementCeiling float64

	KeywordWeight    float64
	SafetyWeight     float64
	EngagementWeight float64
}

func NewScorer(scale float64, keywords []string, engagementCeiling float64) *Scorer {
	if scale <= 0 {
		scale = 10
	}
	if engagementCeiling <= 0 {
		engagementCeiling = 0.08
	}
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &Scorer{
		Scale:             scale,
		BrandKeywords:     lowered,
		EngagementCeiling: engagementCeiling,
		KeywordWeight:     0.4,
		SafetyWeight:      0.3,
		EngagementWeight:  0.3,
	}
}

// ComputeBaseline derives the channel's view-count distribution from its
// in-window uploads. Standard deviation is the population form.
func ComputeBaseline(videos []platform.Video) Baseline {
	n := len(videos)
	if n == 0 {
		return Baseline{}
	}

	views := make([]float64, n)
	var sum float64
	for i, v := range videos {
		views[i] = float64(v.ViewCount)
		sum += views[i]
	}
	mean := sum / float64(n)

	var variance float64
	for _, v := range views {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)

	sort.Float64s(views)
	var median float64
	if n%2 == 1 {
		median = views[n/2]
	} else {
		median = (views[n/2-1] + views[n/2]) / 2
	}

	return Baseline{
		MeanViews:   mean,
		StdDevViews: math.Sqrt(variance),
		MedianViews: median,
		SampleSize:  n,
	}
}

// OutlierScore measures how far the video's views sit above the channel
// baseline. Videos at or below the mean score zero; the deviation divisor is
// floored at one view so uniform channels cannot divide by zero.
func (s *Scorer) OutlierScore(v platform.Video, b Baseline) float64 {
	if b.SampleSize == 0 {
		return 0
	}
	dev := math.Max(b.StdDevViews, 1)
	z := (float64(v.ViewCount) - b.MeanViews) / dev
	if z <= 0 {
		return 0
	}
	return z * s.Scale
}

// BrandFitScore composes keyword overlap, family-safety, and engagement rate
// into a 0-10 score. Videos with no view data get the neutral midpoint on
// the engagement component rather than a penalty.
func (s *Scorer) BrandFitScore(v platform.Video, ch platform.Channel) float64 {
	kw := s.keywordComponent(v)
	safety := 0.0
	if ch.IsFamilySafe {
		safety = 1.0
	}
	eng := s.engagementComponent(v)

	score := 10 * (kw*s.KeywordWeight + safety*s.SafetyWeight + eng*s.EngagementWeight)
	return math.Min(math.Max(score, 0), 10)
}

func (s *Scorer) keywordComponent(v platform.Video) float64 {
	if len(s.BrandKeywords) == 0 {
		return 0.5
	}
	text := strings.ToLower(v.Title + " " + v.Description + " " + strings.Join(v.Tags, " "))
	matched := 0
	for _, kw := range s.BrandKeywords {
		if strings.Contains(text, kw) {
			matched++
		}
	}
	// three distinct keyword hits already signal a strong topical fit
	return math.Min(float64(matched)/3, 1)
}

func (s *Scorer) engagementComponent(v platform.Video) float64 {
	if v.ViewCount == 0 {
		return 0.5
	}
	rate := float64(v.LikeCount+v.CommentCount) / float64(v.ViewCount)
	return math.Min(rate/s.EngagementCeiling, 1)
}
