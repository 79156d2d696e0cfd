package recordsmgr

import (
	"context"
	"math"
	"testing"

	"github.com/aiperf/aiperf/internal/models"
	"github.com/aiperf/aiperf/internal/recordproc"
)

func TestSummarizeStatistics(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	s := Summarize("request_latency", "ms", values)

	if s.Count != 10 {
		t.Errorf("count = %d, want 10", s.Count)
	}
	if s.Avg != 5.5 {
		t.Errorf("avg = %v, want 5.5", s.Avg)
	}
	if s.Min != 1 || s.Max != 10 {
		t.Errorf("min/max = %v/%v, want 1/10", s.Min, s.Max)
	}
	if s.P50 != 5.5 {
		t.Errorf("p50 = %v, want 5.5 (linear interpolation)", s.P50)
	}
	if math.Abs(s.P99-9.91) > 1e-9 {
		t.Errorf("p99 = %v, want 9.91", s.P99)
	}
	wantStd := math.Sqrt(8.25)
	if math.Abs(s.Std-wantStd) > 1e-9 {
		t.Errorf("std = %v, want %v", s.Std, wantStd)
	}
}

func TestSummarizeEmptyAndSingle(t *testing.T) {
	if s := Summarize("x", "", nil); s.Count != 0 {
		t.Errorf("empty summary count = %d", s.Count)
	}
	s := Summarize("x", "", []float64{7})
	if s.Avg != 7 || s.P1 != 7 || s.P99 != 7 || s.Std != 0 {
		t.Errorf("single-value summary = %+v", s)
	}
}

// Scenario: time-bounded phase with a grace period. A request completing at
// start + 2.9s with a 2s duration and 1s grace is included; one completing
// at start + 3.1s is excluded.
func TestDurationFilterGracePeriod(t *testing.T) {
	startNs := int64(1_000_000_000_000)
	f := DurationFilter{
		StartTimeNs:    startNs,
		DurationSec:    2,
		GracePeriodSec: 1,
		Enabled:        true,
	}

	included := models.MetricRecordMetadata{MinRequestTimestampNs: startNs + 1_500_000_000}
	includedResult := models.MetricRecord{recordproc.TagRequestLatency: models.ScalarValue(1400)} // ms -> completes at +2.9s
	if !f.Include(included, includedResult) {
		t.Error("record completing at start+2.9s should be included within 2s+1s window")
	}

	excluded := models.MetricRecordMetadata{MinRequestTimestampNs: startNs + 1_500_000_000}
	excludedResult := models.MetricRecord{recordproc.TagRequestLatency: models.ScalarValue(1600)} // completes at +3.1s
	if f.Include(excluded, excludedResult) {
		t.Error("record completing at start+3.1s should be excluded")
	}
}

func TestDurationFilterConservativeOnMissingInputs(t *testing.T) {
	f := DurationFilter{StartTimeNs: 1, DurationSec: 1, GracePeriodSec: 1, Enabled: true}

	noLatency := models.MetricRecord{}
	if !f.Include(models.MetricRecordMetadata{MinRequestTimestampNs: 99}, noLatency) {
		t.Error("record without latency must be included")
	}
	noTimestamp := models.MetricRecord{recordproc.TagRequestLatency: models.ScalarValue(5)}
	if !f.Include(models.MetricRecordMetadata{}, noTimestamp) {
		t.Error("record without timestamp must be included")
	}
}

func TestPrimaryProcessorAccumulatesAndSummarizes(t *testing.T) {
	p := NewPrimaryProcessor()
	meta := models.MetricRecordMetadata{CreditPhase: models.PhaseProfiling}

	p.ProcessResult(models.MetricRecord{
		recordproc.TagRequestLatency:    models.ScalarValue(100),
		recordproc.TagInterChunkLatency: models.ListValue([]float64{10, 20}),
	}, meta)
	p.ProcessResult(models.MetricRecord{
		recordproc.TagRequestLatency: models.ScalarValue(200),
	}, meta)

	rows, err := p.Summarize(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	byTag := make(map[string]int)
	for _, r := range rows {
		byTag[r.Tag] = r.Count
	}
	if byTag[recordproc.TagRequestLatency] != 2 {
		t.Errorf("request_latency count = %d, want 2", byTag[recordproc.TagRequestLatency])
	}
	// list values are flattened into the tag's value pool
	if byTag[recordproc.TagInterChunkLatency] != 2 {
		t.Errorf("inter_chunk_latency count = %d, want 2", byTag[recordproc.TagInterChunkLatency])
	}
}

func TestPrimaryProcessorAppliesFilter(t *testing.T) {
	p := NewPrimaryProcessor()
	p.SetDurationFilter(DurationFilter{StartTimeNs: 0, DurationSec: 1, GracePeriodSec: 0, Enabled: true})

	// completes at 5s >> 1s window
	p.ProcessResult(models.MetricRecord{recordproc.TagRequestLatency: models.ScalarValue(1000)},
		models.MetricRecordMetadata{MinRequestTimestampNs: 4_000_000_000})

	rows, _ := p.Summarize(context.Background())
	if len(rows) != 0 {
		t.Errorf("filtered-out record still produced %d summary rows", len(rows))
	}
}
