package messages

import "github.com/aiperf/aiperf/internal/models"

// CreditDropMessage authorizes one worker to send one request. CreditDropNs
// is the scheduled send instant for rate/schedule-driven strategies, or
// zero for concurrency_burst (send ASAP).
type CreditDropMessage struct {
	Envelope
	CreditID       string             `json:"credit_id"`
	CreditPhase    models.CreditPhase `json:"credit_phase"`
	ConversationID string             `json:"conversation_id,omitempty"`
	CreditDropNs   int64              `json:"credit_drop_ns,omitempty"`
	CancelAfterNs  int64              `json:"cancel_after_ns,omitempty"`
}

func (m *CreditDropMessage) GetEnvelope() Envelope { return m.Envelope }

func init() {
	Register(TypeCreditDrop, "", func() Message {
		return &CreditDropMessage{Envelope: Envelope{MessageType: TypeCreditDrop}}
	})
}

// CreditReturnMessage reports that a credit's request completed.
type CreditReturnMessage struct {
	Envelope
	CreditID       string             `json:"credit_id"`
	CreditPhase    models.CreditPhase `json:"credit_phase"`
	ConversationID string             `json:"conversation_id,omitempty"`
	CreditDropNs   int64              `json:"credit_drop_ns,omitempty"`
	DelayedNs      *int64             `json:"delayed_ns,omitempty"`
	PreInferenceNs int64              `json:"pre_inference_ns,omitempty"`
}

func (m *CreditReturnMessage) GetEnvelope() Envelope { return m.Envelope }

func init() {
	Register(TypeCreditReturn, "", func() Message {
		return &CreditReturnMessage{Envelope: Envelope{MessageType: TypeCreditReturn}}
	})
}

// CreditPhaseStartMessage announces the start of one phase with its config
type CreditPhaseStartMessage struct {
	Envelope
	CreditPhase     models.CreditPhase `json:"credit_phase"`
	StartNs         int64              `json:"start_ns"`
	Config          CreditPhaseConfig  `json:"config"`
}

func (m *CreditPhaseStartMessage) GetEnvelope() Envelope { return m.Envelope }

func init() {
	Register(TypeCreditPhaseStart, "", func() Message {
		return &CreditPhaseStartMessage{Envelope: Envelope{MessageType: TypeCreditPhaseStart}}
	})
}

// CreditPhaseProgressMessage is emitted periodically while a phase is
// issuing credits.
type CreditPhaseProgressMessage struct {
	Envelope
	CreditPhase models.CreditPhase `json:"credit_phase"`
	Sent        int                `json:"sent"`
	Completed   int                `json:"completed"`
	InFlight    int                `json:"in_flight"`
}

func (m *CreditPhaseProgressMessage) GetEnvelope() Envelope { return m.Envelope }

func init() {
	Register(TypeCreditPhaseProgress, "", func() Message {
		return &CreditPhaseProgressMessage{Envelope: Envelope{MessageType: TypeCreditPhaseProgress}}
	})
}

// CreditPhaseSendingCompleteMessage marks the end of the send loop for a
// phase: no more credits will be dropped, but some may still
// be in flight.
type CreditPhaseSendingCompleteMessage struct {
	Envelope
	CreditPhase models.CreditPhase `json:"credit_phase"`
	SentEndNs   int64              `json:"sent_end_ns"`
	Sent        int                `json:"sent"`
}

func (m *CreditPhaseSendingCompleteMessage) GetEnvelope() Envelope { return m.Envelope }

func init() {
	Register(TypeCreditPhaseSendingComplete, "", func() Message {
		return &CreditPhaseSendingCompleteMessage{Envelope: Envelope{MessageType: TypeCreditPhaseSendingComplete}}
	})
}

// CreditPhaseCompleteMessage marks a phase fully drained: every sent credit
// has returned, or cancellation cut the wait short.
type CreditPhaseCompleteMessage struct {
	Envelope
	CreditPhase models.CreditPhase `json:"credit_phase"`
	EndNs       int64              `json:"end_ns"`
	Completed   int                `json:"completed"`
	WasCancelled bool              `json:"was_cancelled"`
}

func (m *CreditPhaseCompleteMessage) GetEnvelope() Envelope { return m.Envelope }

func init() {
	Register(TypeCreditPhaseComplete, "", func() Message {
		return &CreditPhaseCompleteMessage{Envelope: Envelope{MessageType: TypeCreditPhaseComplete}}
	})
}

// CreditsCompleteMessage is published once every configured phase has
// completed.
type CreditsCompleteMessage struct {
	Envelope
	WasCancelled bool `json:"was_cancelled"`
}

func (m *CreditsCompleteMessage) GetEnvelope() Envelope { return m.Envelope }

func init() {
	Register(TypeCreditsComplete, "", func() Message {
		return &CreditsCompleteMessage{Envelope: Envelope{MessageType: TypeCreditsComplete}}
	})
}
