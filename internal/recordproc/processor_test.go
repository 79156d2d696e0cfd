package recordproc

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/adapters"
	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/models"
)

func msNs(ms int64) int64 { return ms * 1_000_000 }

func streamingRecord() *models.RequestRecord {
	return &models.RequestRecord{
		StartPerfNs: msNs(1000),
		EndPerfNs:   msNs(1400),
		TimestampNs: 1,
		CreditPhase: models.PhaseProfiling,
		Responses: []models.RawResponse{
			{PerfNs: msNs(1100), Body: []byte(`{"object":"chat.completion.chunk","choices":[{"delta":{"content":"one two"}}]}`)},
			{PerfNs: msNs(1200), Body: []byte(`{"object":"chat.completion.chunk","choices":[{"delta":{"content":" three"}}]}`)},
			{PerfNs: msNs(1400), Body: []byte(`{"object":"chat.completion.chunk","choices":[{"delta":{"content":" four"}}]}`)},
		},
	}
}

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	adapter, err := adapters.New("chat")
	if err != nil {
		t.Fatal(err)
	}
	return NewProcessor(adapter, nil, DefaultMetrics(), zerolog.Nop())
}

func TestProcessStreamingRecord(t *testing.T) {
	p := newTestProcessor(t)
	computed, metadata, valid, errDetails := p.Process(streamingRecord())

	if !valid {
		t.Error("record should be valid")
	}
	if errDetails != nil {
		t.Errorf("unexpected error details: %v", errDetails)
	}
	if metadata.CreditPhase != models.PhaseProfiling {
		t.Errorf("metadata phase = %q", metadata.CreditPhase)
	}

	if got := computed[TagRequestLatency].Scalar; got != 400 {
		t.Errorf("request_latency = %v ms, want 400", got)
	}
	if got := computed[TagTimeToFirstToken].Scalar; got != 100 {
		t.Errorf("ttft = %v ms, want 100", got)
	}
	if got := computed[TagTimeToSecondToken].Scalar; got != 200 {
		t.Errorf("ttst = %v ms, want 200", got)
	}
	// word-count fallback tokenizer: "one two three four"
	if got := computed[TagOutputTokenCount].Scalar; got != 4 {
		t.Errorf("output_token_count = %v, want 4", got)
	}
	icl := computed[TagInterChunkLatency]
	if !icl.IsList || len(icl.List) != 2 || icl.List[0] != 100 || icl.List[1] != 200 {
		t.Errorf("inter_chunk_latency = %+v, want [100 200]", icl)
	}
	// (400 - 100) / (4 - 1)
	if got := computed[TagInterTokenLatency].Scalar; got != 100 {
		t.Errorf("inter_token_latency = %v ms, want 100", got)
	}
}

func TestComputedTagsMatchSatisfiedMetrics(t *testing.T) {
	p := newTestProcessor(t)

	// A single-response record: no second chunk, so ttst and
	// inter_chunk_latency must be absent; everything whose inputs are
	// present must be present.
	rec := &models.RequestRecord{
		StartPerfNs: msNs(0),
		EndPerfNs:   msNs(100),
		Responses: []models.RawResponse{
			{PerfNs: msNs(50), Body: []byte(`{"object":"chat.completion","choices":[{"message":{"content":"hi"}}]}`)},
		},
	}
	computed, _, _, _ := p.Process(rec)

	for _, absent := range []string{TagTimeToSecondToken, TagInterChunkLatency, TagInterTokenLatency, TagRequestDelay, TagReasoningTokenCount} {
		if _, ok := computed[absent]; ok {
			t.Errorf("metric %q should have been skipped", absent)
		}
	}
	for _, present := range []string{TagRequestLatency, TagTimeToFirstToken, TagOutputTokenCount, TagErrorRequest, TagCancelledRequest} {
		if _, ok := computed[present]; !ok {
			t.Errorf("metric %q should have been computed", present)
		}
	}
}

func TestUsageReportedTokensWin(t *testing.T) {
	p := newTestProcessor(t)
	rec := &models.RequestRecord{
		StartPerfNs: msNs(0),
		EndPerfNs:   msNs(100),
		Responses: []models.RawResponse{
			{PerfNs: msNs(50), Body: []byte(`{"object":"chat.completion","choices":[{"message":{"content":"hi there"}}],"usage":{"prompt_tokens":10,"completion_tokens":25,"completion_tokens_details":{"reasoning_tokens":5}}}`)},
		},
	}
	computed, _, _, _ := p.Process(rec)

	if got := computed[TagInputTokenCount].Scalar; got != 10 {
		t.Errorf("input_token_count = %v, want server-reported 10", got)
	}
	if got := computed[TagOutputTokenCount].Scalar; got != 20 {
		t.Errorf("output_token_count = %v, want 25 completion - 5 reasoning", got)
	}
	if got := computed[TagReasoningTokenCount].Scalar; got != 5 {
		t.Errorf("reasoning_token_count = %v, want 5", got)
	}
}

func TestErrorRecordFlagsErrorMetric(t *testing.T) {
	p := newTestProcessor(t)
	rec := streamingRecord()
	rec.Responses = nil
	rec.Error = &aierrors.ErrorDetails{Type: "HTTPStatusError", Code: 500, Message: "boom"}

	computed, _, valid, errDetails := p.Process(rec)
	if valid {
		t.Error("errored record must be invalid")
	}
	if errDetails == nil || errDetails.Type != "HTTPStatusError" {
		t.Errorf("error details = %+v", errDetails)
	}
	if got := computed[TagErrorRequest].Scalar; got != 1 {
		t.Errorf("error_request = %v, want 1", got)
	}
}

func TestTopoOrderRespectsDependencies(t *testing.T) {
	ordered, err := TopoOrder(DefaultMetrics())
	if err != nil {
		t.Fatal(err)
	}
	pos := make(map[string]int, len(ordered))
	for i, m := range ordered {
		pos[m.Tag()] = i
	}
	for _, m := range ordered {
		for _, dep := range m.RequiredMetrics() {
			if depPos, ok := pos[dep]; ok && depPos > pos[m.Tag()] {
				t.Errorf("metric %q ordered before its dependency %q", m.Tag(), dep)
			}
		}
	}
}

type cyclicMetric struct {
	tag  string
	deps []string
}

func (m cyclicMetric) Tag() string               { return m.tag }
func (m cyclicMetric) Unit() string              { return "" }
func (m cyclicMetric) Flags() Flag               { return 0 }
func (m cyclicMetric) RequiredMetrics() []string { return m.deps }
func (m cyclicMetric) Compute(_ *models.ParsedResponseRecord, _ models.MetricRecord) (models.MetricValue, error) {
	return models.MetricValue{}, nil
}

func TestTopoOrderRejectsCycle(t *testing.T) {
	_, err := TopoOrder([]RecordMetric{
		cyclicMetric{tag: "a", deps: []string{"b"}},
		cyclicMetric{tag: "b", deps: []string{"a"}},
	})
	if err == nil {
		t.Error("expected cycle detection error")
	}
}
