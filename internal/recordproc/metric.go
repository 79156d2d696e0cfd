// Package recordproc implements the Record Processor: it parses raw
// RequestRecords with the endpoint adapter, derives token counts, and runs
// the registered record metrics over each record in dependency order.
package recordproc

import (
	"fmt"

	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/models"
)

// Flag marks metric properties summary exporters filter on.
type Flag uint8

const (
	FlagNoConsole Flag = 1 << iota
	FlagStreamingTokensOnly
	FlagSupportsReasoning
	FlagExperimental
	FlagInternal
)

// Has reports whether f contains flag.
func (f Flag) Has(flag Flag) bool { return f&flag != 0 }

// RecordMetric computes one value per record. Metrics form a DAG: a metric
// declares RequiredMetrics by tag and receives already-computed values via
// the computed map.
type RecordMetric interface {
	Tag() string
	Unit() string
	Flags() Flag
	RequiredMetrics() []string
	// Compute returns this metric's value for rec. Returning
	// aierrors.ErrNoMetricValue (wrapped or bare) skips the metric for this
	// record without error.
	Compute(rec *models.ParsedResponseRecord, computed models.MetricRecord) (models.MetricValue, error)
}

// TopoOrder sorts metrics so every metric runs after all of its
// RequiredMetrics. A dependency on an unregistered tag is allowed (the
// metric will skip at compute time with NoMetricValue); a cycle is a
// programming error and fails.
func TopoOrder(metrics []RecordMetric) ([]RecordMetric, error) {
	byTag := make(map[string]RecordMetric, len(metrics))
	for _, m := range metrics {
		if _, dup := byTag[m.Tag()]; dup {
			return nil, fmt.Errorf("recordproc: duplicate metric tag %q", m.Tag())
		}
		byTag[m.Tag()] = m
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(metrics))
	ordered := make([]RecordMetric, 0, len(metrics))

	var visit func(m RecordMetric) error
	visit = func(m RecordMetric) error {
		switch state[m.Tag()] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("recordproc: metric dependency cycle through %q", m.Tag())
		}
		state[m.Tag()] = visiting
		for _, dep := range m.RequiredMetrics() {
			if depMetric, ok := byTag[dep]; ok {
				if err := visit(depMetric); err != nil {
					return err
				}
			}
		}
		state[m.Tag()] = done
		ordered = append(ordered, m)
		return nil
	}

	for _, m := range metrics {
		if err := visit(m); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// requireScalar pulls a previously computed scalar out of the computed map,
// raising NoMetricValue when absent — the expected skip path Metric.
func requireScalar(computed models.MetricRecord, tag string) (float64, error) {
	v, ok := computed[tag]
	if !ok || v.IsList {
		return 0, fmt.Errorf("%w: %s", aierrors.ErrNoMetricValue, tag)
	}
	return v.Scalar, nil
}
