package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	jobsStartedTotal   atomic.Uint64
	jobsCompletedTotal atomic.Uint64
	jobsFailedTotal    atomic.Uint64
	jobsCancelledTotal atomic.Uint64

	quotaDeniedTotal    atomic.Uint64
	cacheHitsTotal      atomic.Uint64
	cacheMissesTotal    atomic.Uint64
	cacheStaleServes    atomic.Uint64
	providerCallsTotal  atomic.Uint64
	providerErrorsTotal atomic.Uint64

	jobDuration = newHistogram([]float64{500, 1000, 2500, 5000, 10000, 30000, 60000, 120000, 300000})
)

// IncJobStarted increments the started counter.
func IncJobStarted() { jobsStartedTotal.Add(1) }

// IncJobCompleted increments the completed counter.
func IncJobCompleted() { jobsCompletedTotal.Add(1) }

// IncJobFailed increments the failed counter.
func IncJobFailed() { jobsFailedTotal.Add(1) }

// IncJobCancelled increments the cancelled counter.
func IncJobCancelled() { jobsCancelledTotal.Add(1) }

// IncQuotaDenied increments the quota denial counter.
func IncQuotaDenied() { quotaDeniedTotal.Add(1) }

// IncCacheHit increments the fresh cache hit counter.
func IncCacheHit() { cacheHitsTotal.Add(1) }

// IncCacheMiss increments the cache miss counter.
func IncCacheMiss() { cacheMissesTotal.Add(1) }

// IncCacheStaleServe increments the degraded (stale entry) serve counter.
func IncCacheStaleServe() { cacheStaleServes.Add(1) }

// IncProviderCall increments the upstream call counter.
func IncProviderCall() { providerCallsTotal.Add(1) }

// IncProviderError increments the upstream error counter.
func IncProviderError() { providerErrorsTotal.Add(1) }

// ObserveJobDurationMs records a job duration in milliseconds.
func ObserveJobDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	jobDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "analysis_jobs_started_total", "Total analysis jobs started", jobsStartedTotal.Load())
	writeCounter(&buf, "analysis_jobs_completed_total", "Total analysis jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "analysis_jobs_failed_total", "Total analysis jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "analysis_jobs_cancelled_total", "Total analysis jobs cancelled", jobsCancelledTotal.Load())
	writeCounter(&buf, "quota_denied_total", "Total quota reservations denied", quotaDeniedTotal.Load())
	writeCounter(&buf, "cache_hits_total", "Total fresh cache hits", cacheHitsTotal.Load())
	writeCounter(&buf, "cache_misses_total", "Total cache misses", cacheMissesTotal.Load())
	writeCounter(&buf, "cache_stale_serves_total", "Total degraded stale cache serves", cacheStaleServes.Load())
	writeCounter(&buf, "provider_calls_total", "Total upstream provider calls", providerCallsTotal.Load())
	writeCounter(&buf, "provider_errors_total", "Total upstream provider errors", providerErrorsTotal.Load())
	writeHistogram(&buf, "analysis_job_duration_ms", "Analysis job duration in milliseconds", jobDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// NowMillis returns current time in milliseconds, useful for callers without time utilities.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
