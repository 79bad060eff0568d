// Package stats computes batch-level performance statistics from a completed
// result list.
package stats

import (
	"sort"

	"github.com/wehubfusion/Daedalus/pkg/result"
)

// BatchStatistics holds the aggregate metrics for one completed batch
type BatchStatistics struct {
	// TotalRuntimeMs is the wall-clock duration of the whole batch, measured
	// by the runner from start to last completion. Per-row execution times
	// overlap under concurrency and cannot be summed to reconstruct it.
	TotalRuntimeMs float64 `json:"totalRuntimeMs"`

	AvgRequestTimeMs  float64 `json:"avgRequestTimeMs"`
	FastestResponseMs float64 `json:"fastestResponseMs"`
	SlowestResponseMs float64 `json:"slowestResponseMs"`
	MedianResponseMs  float64 `json:"medianResponseMs"`

	SuccessCount       int     `json:"successCount"`
	ErrorCount         int     `json:"errorCount"`
	TotalRequests      int     `json:"totalRequests"`
	SuccessRatePercent float64 `json:"successRatePercent"`
}

// Aggregate computes batch statistics over the completed result list.
// The input must be non-empty; callers guard the zero-row case before the
// aggregator is ever reached, so an empty slice here is a programming error.
// The result list itself is never reordered.
func Aggregate(results []result.Result) BatchStatistics {
	if len(results) == 0 {
		panic("stats: aggregate called with no results")
	}

	latencies := make([]float64, len(results))
	successCount := 0
	for i, res := range results {
		latencies[i] = res.ExecutionTimeMs
		if res.Succeeded() {
			successCount++
		}
	}

	var sum float64
	fastest, slowest := latencies[0], latencies[0]
	for _, ms := range latencies {
		sum += ms
		if ms < fastest {
			fastest = ms
		}
		if ms > slowest {
			slowest = ms
		}
	}

	total := len(results)
	return BatchStatistics{
		AvgRequestTimeMs:   sum / float64(total),
		FastestResponseMs:  fastest,
		SlowestResponseMs:  slowest,
		MedianResponseMs:   median(latencies),
		SuccessCount:       successCount,
		ErrorCount:         total - successCount,
		TotalRequests:      total,
		SuccessRatePercent: float64(successCount) / float64(total) * 100,
	}
}

// median computes the median latency. It sorts a copy so the caller's slice,
// which mirrors result order, is left untouched.
func median(latencies []float64) float64 {
	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
