package models

import "github.com/aiperf/aiperf/internal/aierrors"

// CreditPhase names which phase a credit/record belongs to.
type CreditPhase string

const (
	PhaseWarmup    CreditPhase = "warmup"
	PhaseProfiling CreditPhase = "profiling"
)

// RequestRecord captures one HTTP attempt end to end. It is owned by
// the worker until pushed to a Record Processor.
type RequestRecord struct {
	StartPerfNs    int64 `json:"start_perf_ns"`
	EndPerfNs      int64 `json:"end_perf_ns"`
	RecvStartPerfNs int64 `json:"recv_start_perf_ns"`
	TimestampNs    int64 `json:"timestamp_ns"`

	Status int `json:"status,omitempty"`

	Responses []RawResponse `json:"responses"`

	Error *aierrors.ErrorDetails `json:"error,omitempty"`

	DelayedNs *int64 `json:"delayed_ns,omitempty"`

	CreditPhase        CreditPhase `json:"credit_phase"`
	CreditDropLatencyNs int64      `json:"credit_drop_latency_ns,omitempty"`
	XRequestID          string     `json:"x_request_id,omitempty"`
	XCorrelationID       string     `json:"x_correlation_id,omitempty"`

	WasCancelled       bool   `json:"was_cancelled"`
	CancelAfterNs      int64  `json:"cancel_after_ns,omitempty"`
	CancellationPerfNs int64  `json:"cancellation_perf_ns,omitempty"`

	ConversationID string `json:"conversation_id,omitempty"`
}

// RawResponse is one chunk of the raw HTTP response as captured by the
// worker, before adapter parsing: the unparsed JSON body (unary) or one SSE
// message's JSON payload (streaming), stamped at arrival time.
type RawResponse struct {
	PerfNs int64  `json:"perf_ns"`
	Body   []byte `json:"body"`
}

// IsValid implements the RequestRecord validity rule: no error, at least
// one response, start strictly before end, and every response timestamp
// positive.
func (r *RequestRecord) IsValid() bool {
	if r.Error != nil {
		return false
	}
	if len(r.Responses) == 0 {
		return false
	}
	if !(r.StartPerfNs >= 0 && r.StartPerfNs < r.EndPerfNs) {
		return false
	}
	for _, resp := range r.Responses {
		if resp.PerfNs <= 0 {
			return false
		}
	}
	return true
}
