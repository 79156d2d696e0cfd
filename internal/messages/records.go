package messages

import (
	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/models"
)

// RequestRecordMessage carries one raw RequestRecord from a worker to the
// Record Processor pool over the raw-inference push channel.
type RequestRecordMessage struct {
	Envelope
	WorkerID string               `json:"worker_id"`
	Record   models.RequestRecord `json:"record"`
}

func (m *RequestRecordMessage) GetEnvelope() Envelope { return m.Envelope }

func init() {
	Register(TypeRequestRecord, "", func() Message {
		return &RequestRecordMessage{Envelope: Envelope{MessageType: TypeRequestRecord}}
	})
}

// MetricRecordsMessage carries one Record Processor's output for a batch of
// RequestRecords. Results holds one map per input record that
// produced at least one metric value.
type MetricRecordsMessage struct {
	Envelope
	WorkerID    string                         `json:"worker_id"`
	CreditPhase models.CreditPhase             `json:"credit_phase"`
	Results     []models.MetricRecord          `json:"results"`
	Metadata    []models.MetricRecordMetadata  `json:"metadata"`
	Valid       []bool                         `json:"valid"`
	Error       *aierrors.ErrorDetails         `json:"error,omitempty"`
}

func (m *MetricRecordsMessage) GetEnvelope() Envelope { return m.Envelope }

func init() {
	Register(TypeMetricRecords, "", func() Message {
		return &MetricRecordsMessage{Envelope: Envelope{MessageType: TypeMetricRecords}}
	})
}

// AllRecordsReceivedMessage is published by the Records Manager once the
// expected record count has arrived.
type AllRecordsReceivedMessage struct {
	Envelope
	TotalRecords int `json:"total_records"`
}

func (m *AllRecordsReceivedMessage) GetEnvelope() Envelope { return m.Envelope }

func init() {
	Register(TypeAllRecordsReceived, "", func() Message {
		return &AllRecordsReceivedMessage{Envelope: Envelope{MessageType: TypeAllRecordsReceived}}
	})
}

// MetricResult is one statistical summary row of ProfileResults.
type MetricResult struct {
	Tag   string  `json:"tag"`
	Unit  string  `json:"unit,omitempty"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Std   float64 `json:"std"`
	Count int     `json:"count"`
	P1    float64 `json:"p1"`
	P5    float64 `json:"p5"`
	P10   float64 `json:"p10"`
	P25   float64 `json:"p25"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// ProfileResults is the final output of one run.
type ProfileResults struct {
	Records      []MetricResult               `json:"records"`
	Completed    int                           `json:"completed"`
	StartNs      int64                         `json:"start_ns"`
	EndNs        int64                         `json:"end_ns"`
	WasCancelled bool                          `json:"was_cancelled"`
	ErrorSummary []aierrors.ErrorDetailsCount  `json:"error_summary"`
}

// ProcessRecordsResultMessage publishes the final or intermediate
// summarization pass.
type ProcessRecordsResultMessage struct {
	Envelope
	Results ProfileResults `json:"results"`
}

func (m *ProcessRecordsResultMessage) GetEnvelope() Envelope { return m.Envelope }

func init() {
	Register(TypeProcessRecordsResult, "", func() Message {
		return &ProcessRecordsResultMessage{Envelope: Envelope{MessageType: TypeProcessRecordsResult}}
	})
}
