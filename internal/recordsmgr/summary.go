// Package recordsmgr implements the Records Manager: it aggregates
// MetricRecordsMessages from the Record Processor pool, tracks processing
// stats, applies duration filtering, and runs the summarization pass that
// produces the final ProfileResults.
package recordsmgr

import (
	"math"
	"sort"

	"github.com/aiperf/aiperf/internal/messages"
)

// percentile returns the p-th percentile (0-100) of sorted values using
// linear interpolation between closest ranks, matching the percentile
// behavior the summaries are defined against.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Summarize computes the statistical summary for one metric tag over
// its collected values.
func Summarize(tag, unit string, values []float64) messages.MetricResult {
	result := messages.MetricResult{Tag: tag, Unit: unit, Count: len(values)}
	if len(values) == 0 {
		return result
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	var sqDiff float64
	for _, v := range sorted {
		d := v - mean
		sqDiff += d * d
	}

	result.Avg = mean
	result.Min = sorted[0]
	result.Max = sorted[len(sorted)-1]
	result.Std = math.Sqrt(sqDiff / float64(len(sorted)))
	result.P1 = percentile(sorted, 1)
	result.P5 = percentile(sorted, 5)
	result.P10 = percentile(sorted, 10)
	result.P25 = percentile(sorted, 25)
	result.P50 = percentile(sorted, 50)
	result.P75 = percentile(sorted, 75)
	result.P90 = percentile(sorted, 90)
	result.P95 = percentile(sorted, 95)
	result.P99 = percentile(sorted, 99)
	return result
}
