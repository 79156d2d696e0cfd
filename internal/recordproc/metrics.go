package recordproc

import (
	"fmt"
	"time"

	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/models"
)

// Canonical metric tags.
const (
	TagRequestLatency      = "request_latency"
	TagTimeToFirstToken    = "time_to_first_token"
	TagTimeToFirstOutput   = "time_to_first_output_token"
	TagTimeToSecondToken   = "time_to_second_token"
	TagInterTokenLatency   = "inter_token_latency"
	TagInterChunkLatency   = "inter_chunk_latency"
	TagOutputTokenCount    = "output_token_count"
	TagInputTokenCount     = "input_token_count"
	TagOutputTokensPerSec  = "output_tokens_per_second"
	TagOutputSequenceLength = "output_sequence_length"
	TagReasoningTokenCount = "reasoning_token_count"
	TagRequestDelay        = "request_delay"
	TagErrorRequest        = "error_request"
	TagCancelledRequest    = "cancelled_request"
)

// DefaultMetrics returns the canonical record metric set, already
// topologically ordered.
func DefaultMetrics() []RecordMetric {
	ordered, err := TopoOrder([]RecordMetric{
		requestLatency{},
		timeToFirstToken{},
		timeToFirstOutputToken{},
		timeToSecondToken{},
		interTokenLatency{},
		interChunkLatency{},
		outputTokenCount{},
		inputTokenCount{},
		outputTokensPerSecond{},
		outputSequenceLength{},
		reasoningTokenCount{},
		requestDelay{},
		errorRequest{},
		cancelledRequest{},
	})
	if err != nil {
		// The canonical set is static; a cycle here is a programming error.
		panic(err)
	}
	return ordered
}

func noValue(reason string) error {
	return fmt.Errorf("%w: %s", aierrors.ErrNoMetricValue, reason)
}

// requestLatency is end_perf_ns - start_perf_ns in milliseconds.
type requestLatency struct{}

func (requestLatency) Tag() string               { return TagRequestLatency }
func (requestLatency) Unit() string              { return "ms" }
func (requestLatency) Flags() Flag               { return 0 }
func (requestLatency) RequiredMetrics() []string { return nil }

func (requestLatency) Compute(rec *models.ParsedResponseRecord, _ models.MetricRecord) (models.MetricValue, error) {
	r := rec.Record
	if r.EndPerfNs <= r.StartPerfNs {
		return models.MetricValue{}, noValue("request has no valid latency window")
	}
	return models.ScalarValue(nsToMs(r.EndPerfNs - r.StartPerfNs)), nil
}

// timeToFirstToken is the gap from request start to the first response
// chunk.
type timeToFirstToken struct{}

func (timeToFirstToken) Tag() string               { return TagTimeToFirstToken }
func (timeToFirstToken) Unit() string              { return "ms" }
func (timeToFirstToken) Flags() Flag               { return FlagStreamingTokensOnly }
func (timeToFirstToken) RequiredMetrics() []string { return nil }

func (timeToFirstToken) Compute(rec *models.ParsedResponseRecord, _ models.MetricRecord) (models.MetricValue, error) {
	if len(rec.Parsed) == 0 {
		return models.MetricValue{}, noValue("no parsed responses")
	}
	return models.ScalarValue(nsToMs(rec.Parsed[0].PerfNs - rec.Record.StartPerfNs)), nil
}

// timeToFirstOutputToken is TTFT over non-reasoning chunks only: it skips
// chunks that carry reasoning but no visible output.
type timeToFirstOutputToken struct{}

func (timeToFirstOutputToken) Tag() string               { return TagTimeToFirstOutput }
func (timeToFirstOutputToken) Unit() string              { return "ms" }
func (timeToFirstOutputToken) Flags() Flag               { return FlagStreamingTokensOnly | FlagSupportsReasoning }
func (timeToFirstOutputToken) RequiredMetrics() []string { return nil }

func (timeToFirstOutputToken) Compute(rec *models.ParsedResponseRecord, _ models.MetricRecord) (models.MetricValue, error) {
	for _, p := range rec.Parsed {
		if p.HasOutputContent() {
			return models.ScalarValue(nsToMs(p.PerfNs - rec.Record.StartPerfNs)), nil
		}
	}
	return models.MetricValue{}, noValue("no output-bearing response")
}

// timeToSecondToken is the gap from request start to the second chunk.
type timeToSecondToken struct{}

func (timeToSecondToken) Tag() string               { return TagTimeToSecondToken }
func (timeToSecondToken) Unit() string              { return "ms" }
func (timeToSecondToken) Flags() Flag               { return FlagStreamingTokensOnly | FlagExperimental }
func (timeToSecondToken) RequiredMetrics() []string { return nil }

func (timeToSecondToken) Compute(rec *models.ParsedResponseRecord, _ models.MetricRecord) (models.MetricValue, error) {
	if len(rec.Parsed) < 2 {
		return models.MetricValue{}, noValue("fewer than two responses")
	}
	return models.ScalarValue(nsToMs(rec.Parsed[1].PerfNs - rec.Record.StartPerfNs)), nil
}

// interTokenLatency is (request_latency - ttft) / (output tokens - 1): the
// average gap between successive generated tokens.
type interTokenLatency struct{}

func (interTokenLatency) Tag() string  { return TagInterTokenLatency }
func (interTokenLatency) Unit() string { return "ms" }
func (interTokenLatency) Flags() Flag  { return FlagStreamingTokensOnly }
func (interTokenLatency) RequiredMetrics() []string {
	return []string{TagRequestLatency, TagTimeToFirstToken, TagOutputTokenCount}
}

func (interTokenLatency) Compute(_ *models.ParsedResponseRecord, computed models.MetricRecord) (models.MetricValue, error) {
	latency, err := requireScalar(computed, TagRequestLatency)
	if err != nil {
		return models.MetricValue{}, err
	}
	ttft, err := requireScalar(computed, TagTimeToFirstToken)
	if err != nil {
		return models.MetricValue{}, err
	}
	tokens, err := requireScalar(computed, TagOutputTokenCount)
	if err != nil {
		return models.MetricValue{}, err
	}
	if tokens <= 1 {
		return models.MetricValue{}, noValue("single-token response has no inter-token gaps")
	}
	return models.ScalarValue((latency - ttft) / (tokens - 1)), nil
}

// interChunkLatency is the sequence of gaps between consecutive response
// chunks.
type interChunkLatency struct{}

func (interChunkLatency) Tag() string               { return TagInterChunkLatency }
func (interChunkLatency) Unit() string              { return "ms" }
func (interChunkLatency) Flags() Flag               { return FlagStreamingTokensOnly | FlagNoConsole }
func (interChunkLatency) RequiredMetrics() []string { return nil }

func (interChunkLatency) Compute(rec *models.ParsedResponseRecord, _ models.MetricRecord) (models.MetricValue, error) {
	if len(rec.Parsed) < 2 {
		return models.MetricValue{}, noValue("fewer than two responses")
	}
	gaps := make([]float64, 0, len(rec.Parsed)-1)
	for i := 1; i < len(rec.Parsed); i++ {
		gaps = append(gaps, nsToMs(rec.Parsed[i].PerfNs-rec.Parsed[i-1].PerfNs))
	}
	return models.ListValue(gaps), nil
}

// outputTokenCount reports the derived output token count.
type outputTokenCount struct{}

func (outputTokenCount) Tag() string               { return TagOutputTokenCount }
func (outputTokenCount) Unit() string              { return "tokens" }
func (outputTokenCount) Flags() Flag               { return 0 }
func (outputTokenCount) RequiredMetrics() []string { return nil }

func (outputTokenCount) Compute(rec *models.ParsedResponseRecord, _ models.MetricRecord) (models.MetricValue, error) {
	if rec.OutputTokens == 0 {
		return models.MetricValue{}, noValue("no output tokens")
	}
	return models.ScalarValue(float64(rec.OutputTokens)), nil
}

// inputTokenCount reports the derived input token count.
type inputTokenCount struct{}

func (inputTokenCount) Tag() string               { return TagInputTokenCount }
func (inputTokenCount) Unit() string              { return "tokens" }
func (inputTokenCount) Flags() Flag               { return 0 }
func (inputTokenCount) RequiredMetrics() []string { return nil }

func (inputTokenCount) Compute(rec *models.ParsedResponseRecord, _ models.MetricRecord) (models.MetricValue, error) {
	if rec.InputTokens == 0 {
		return models.MetricValue{}, noValue("no input tokens")
	}
	return models.ScalarValue(float64(rec.InputTokens)), nil
}

// outputTokensPerSecond is output_token_count / request_latency.
type outputTokensPerSecond struct{}

func (outputTokensPerSecond) Tag() string  { return TagOutputTokensPerSec }
func (outputTokensPerSecond) Unit() string { return "tokens/s" }
func (outputTokensPerSecond) Flags() Flag  { return 0 }
func (outputTokensPerSecond) RequiredMetrics() []string {
	return []string{TagRequestLatency, TagOutputTokenCount}
}

func (outputTokensPerSecond) Compute(_ *models.ParsedResponseRecord, computed models.MetricRecord) (models.MetricValue, error) {
	latency, err := requireScalar(computed, TagRequestLatency)
	if err != nil {
		return models.MetricValue{}, err
	}
	tokens, err := requireScalar(computed, TagOutputTokenCount)
	if err != nil {
		return models.MetricValue{}, err
	}
	if latency <= 0 {
		return models.MetricValue{}, noValue("non-positive latency")
	}
	return models.ScalarValue(tokens / (latency / 1000.0)), nil
}

// outputSequenceLength is the total generated sequence: output plus
// reasoning tokens.
type outputSequenceLength struct{}

func (outputSequenceLength) Tag() string               { return TagOutputSequenceLength }
func (outputSequenceLength) Unit() string              { return "tokens" }
func (outputSequenceLength) Flags() Flag               { return FlagSupportsReasoning }
func (outputSequenceLength) RequiredMetrics() []string { return nil }

func (outputSequenceLength) Compute(rec *models.ParsedResponseRecord, _ models.MetricRecord) (models.MetricValue, error) {
	total := rec.OutputTokens + rec.ReasoningTokens
	if total == 0 {
		return models.MetricValue{}, noValue("no generated tokens")
	}
	return models.ScalarValue(float64(total)), nil
}

// reasoningTokenCount reports the derived reasoning token count.
type reasoningTokenCount struct{}

func (reasoningTokenCount) Tag() string               { return TagReasoningTokenCount }
func (reasoningTokenCount) Unit() string              { return "tokens" }
func (reasoningTokenCount) Flags() Flag               { return FlagSupportsReasoning | FlagNoConsole }
func (reasoningTokenCount) RequiredMetrics() []string { return nil }

func (reasoningTokenCount) Compute(rec *models.ParsedResponseRecord, _ models.MetricRecord) (models.MetricValue, error) {
	if rec.ReasoningTokens == 0 {
		return models.MetricValue{}, noValue("no reasoning tokens")
	}
	return models.ScalarValue(float64(rec.ReasoningTokens)), nil
}

// requestDelay surfaces how late the request left vs its scheduled instant.
type requestDelay struct{}

func (requestDelay) Tag() string               { return TagRequestDelay }
func (requestDelay) Unit() string              { return "ms" }
func (requestDelay) Flags() Flag               { return FlagNoConsole }
func (requestDelay) RequiredMetrics() []string { return nil }

func (requestDelay) Compute(rec *models.ParsedResponseRecord, _ models.MetricRecord) (models.MetricValue, error) {
	if rec.Record.DelayedNs == nil {
		return models.MetricValue{}, noValue("request was not schedule-driven")
	}
	return models.ScalarValue(nsToMs(*rec.Record.DelayedNs)), nil
}

// errorRequest is 1 for failed attempts; the Records Manager aggregates it
// into the error rate.
type errorRequest struct{}

func (errorRequest) Tag() string               { return TagErrorRequest }
func (errorRequest) Unit() string              { return "" }
func (errorRequest) Flags() Flag               { return FlagInternal }
func (errorRequest) RequiredMetrics() []string { return nil }

func (errorRequest) Compute(rec *models.ParsedResponseRecord, _ models.MetricRecord) (models.MetricValue, error) {
	if rec.Record.Error != nil {
		return models.ScalarValue(1), nil
	}
	return models.ScalarValue(0), nil
}

// cancelledRequest is 1 for attempts cut off by cancel_after_ns.
type cancelledRequest struct{}

func (cancelledRequest) Tag() string               { return TagCancelledRequest }
func (cancelledRequest) Unit() string              { return "" }
func (cancelledRequest) Flags() Flag               { return FlagInternal }
func (cancelledRequest) RequiredMetrics() []string { return nil }

func (cancelledRequest) Compute(rec *models.ParsedResponseRecord, _ models.MetricRecord) (models.MetricValue, error) {
	if rec.Record.WasCancelled {
		return models.ScalarValue(1), nil
	}
	return models.ScalarValue(0), nil
}

func nsToMs(ns int64) float64 { return float64(ns) / float64(time.Millisecond) }
