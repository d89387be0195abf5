package analysis

import (
	"context"
	"testing"

	"outlier-backend/internal/platform"
	"outlier-backend/internal/quota"
)

func TestCollectKeepsOnlyWindowedNonExcludedVideos(t *testing.T) {
	src := newFakeSource()
	ch := mkChannel("ch-1", "Candidate", 100_000)
	src.addChannel(ch,
		mkVideo("in", "Fun science experiment", 10_000, 2),
		mkVideo("excluded", "Minecraft science", 20_000, 3),
		mkVideo("old", "Ancient upload", 5_000, 40),
	)

	vocab := make(Vocabulary)
	vocab.Add("minecraft")

	c := NewCollector(src, 50)
	got, degraded, err := c.Collect(context.Background(), "ch-1", 7, vocab)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if degraded {
		t.Fatalf("unexpected degraded flag")
	}
	if len(got) != 1 || got[0].ID != "in" {
		t.Fatalf("videos = %v, want only the fresh non-excluded one", got)
	}
}

func TestCollectEmptyIsNotAnError(t *testing.T) {
	src := newFakeSource()
	src.addChannel(mkChannel("quiet", "Quiet", 100_000))

	c := NewCollector(src, 50)
	got, _, err := c.Collect(context.Background(), "quiet", 7, make(Vocabulary))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("videos = %v, want none", got)
	}
}

func TestSkipReasonClassification(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{quota.ErrExceeded, "quota exhausted"},
		{platform.ErrNotFound, "channel not found"},
		{&platform.APIError{StatusCode: 503}, "provider unavailable"},
		{&platform.APIError{StatusCode: 403, Reason: "forbidden"}, "provider error"},
	}
	for _, tt := range tests {
		if got := skipReason(tt.err); got != tt.want {
			t.Fatalf("skipReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
