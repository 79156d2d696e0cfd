package recordsmgr

import (
	"context"
	"sync"

	"github.com/aiperf/aiperf/internal/messages"
	"github.com/aiperf/aiperf/internal/models"
	"github.com/aiperf/aiperf/internal/recordproc"
)

// ResultsProcessor is the once-at-the-end aggregation side of the record /
// results split (Glossary): record processors stream per-request, results
// processors accumulate and summarize once. The telemetry results
// processor in internal/telemetry implements the separate
// TelemetryProcessor interface instead.
type ResultsProcessor interface {
	// ProcessResult folds one record's metric map into the accumulator.
	ProcessResult(result models.MetricRecord, metadata models.MetricRecordMetadata)
	// Summarize computes the final MetricResults over everything
	// accumulated.
	Summarize(ctx context.Context) ([]messages.MetricResult, error)
}

// DurationFilter is "Duration filtering" rule for time-bounded
// phases: a record is included iff min_request_timestamp + latency falls
// within duration + grace_period of the phase start. Records missing the
// inputs are included (conservative).
type DurationFilter struct {
	StartTimeNs    int64
	DurationSec    float64
	GracePeriodSec float64
	Enabled        bool
}

// Include applies the filter to one record.
func (f DurationFilter) Include(metadata models.MetricRecordMetadata, result models.MetricRecord) bool {
	if !f.Enabled {
		return true
	}
	latency, ok := result[recordproc.TagRequestLatency]
	if !ok || latency.IsList || metadata.MinRequestTimestampNs == 0 {
		return true
	}
	completionNs := metadata.MinRequestTimestampNs + int64(latency.Scalar*1e6)
	windowNs := int64((f.DurationSec + f.GracePeriodSec) * 1e9)
	return completionNs-f.StartTimeNs <= windowNs
}

// metricUnits maps known tags to their units for MetricResult rows.
var metricUnits = func() map[string]string {
	units := make(map[string]string)
	for _, m := range recordproc.DefaultMetrics() {
		units[m.Tag()] = m.Unit()
	}
	return units
}()

// PrimaryProcessor accumulates every included record's metric values by tag
// and summarizes them with percentiles.
type PrimaryProcessor struct {
	mu     sync.Mutex
	values map[string][]float64
	filter DurationFilter
}

// NewPrimaryProcessor builds an empty accumulator.
func NewPrimaryProcessor() *PrimaryProcessor {
	return &PrimaryProcessor{values: make(map[string][]float64)}
}

// SetDurationFilter installs the filter once the phase timing is known
// (CREDIT_PHASE_START handling in the Manager).
func (p *PrimaryProcessor) SetDurationFilter(f DurationFilter) {
	p.mu.Lock()
	p.filter = f
	p.mu.Unlock()
}

func (p *PrimaryProcessor) ProcessResult(result models.MetricRecord, metadata models.MetricRecordMetadata) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.filter.Include(metadata, result) {
		return
	}
	for tag, value := range result {
		if value.IsList {
			p.values[tag] = append(p.values[tag], value.List...)
		} else {
			p.values[tag] = append(p.values[tag], value.Scalar)
		}
	}
}

func (p *PrimaryProcessor) Summarize(_ context.Context) ([]messages.MetricResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tags := make([]string, 0, len(p.values))
	for tag := range p.values {
		tags = append(tags, tag)
	}
	// Deterministic result ordering for stable reports.
	for i := 0; i < len(tags); i++ {
		for j := i + 1; j < len(tags); j++ {
			if tags[j] < tags[i] {
				tags[i], tags[j] = tags[j], tags[i]
			}
		}
	}

	results := make([]messages.MetricResult, 0, len(tags))
	for _, tag := range tags {
		results = append(results, Summarize(tag, metricUnits[tag], p.values[tag]))
	}
	return results, nil
}
