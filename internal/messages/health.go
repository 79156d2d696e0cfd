package messages

import "github.com/aiperf/aiperf/internal/models"

// PhaseTaskStats is one phase's worth of per-worker task counters, embedded
// in WorkerHealthMessage.
type PhaseTaskStats struct {
	CreditPhase models.CreditPhase `json:"credit_phase"`
	Received    int                `json:"received"`
	Completed   int                `json:"completed"`
	Errored     int                `json:"errored"`
}

// WorkerHealthMessage is a periodic process-stats heartbeat from each
// worker, used to drive progress display.
type WorkerHealthMessage struct {
	Envelope
	WorkerID       string           `json:"worker_id"`
	CPUPercent     float64          `json:"cpu_percent"`
	MemoryRSSBytes uint64           `json:"memory_rss_bytes"`
	NumGoroutines  int              `json:"num_goroutines"`
	InFlight       int              `json:"in_flight"`
	PhaseStats     []PhaseTaskStats `json:"phase_stats"`
}

func (m *WorkerHealthMessage) GetEnvelope() Envelope { return m.Envelope }

func init() {
	Register(TypeWorkerHealth, "", func() Message {
		return &WorkerHealthMessage{Envelope: Envelope{MessageType: TypeWorkerHealth}}
	})
}
