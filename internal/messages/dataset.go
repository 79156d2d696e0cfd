package messages

import "github.com/aiperf/aiperf/internal/models"

// ConversationTurnRequest is sent DEALER->ROUTER to the Dataset Manager to
// resolve the next Turn of a conversation. An empty
// ConversationID asks the dataset to pick any turn using its own
// turn-selection strategy.
type ConversationTurnRequest struct {
	Envelope
	ConversationID string `json:"conversation_id,omitempty"`
	TurnIndex      int    `json:"turn_index"`
}

func (m *ConversationTurnRequest) GetEnvelope() Envelope { return m.Envelope }

func init() {
	Register(TypeConversationTurnRequest, "", func() Message {
		return &ConversationTurnRequest{Envelope: Envelope{MessageType: TypeConversationTurnRequest}}
	})
}

// ConversationTurnResponse answers a ConversationTurnRequest.
type ConversationTurnResponse struct {
	Envelope
	ConversationID string       `json:"conversation_id"`
	Turn           models.Turn  `json:"turn"`
	Done           bool         `json:"done"`
}

func (m *ConversationTurnResponse) GetEnvelope() Envelope { return m.Envelope }

func init() {
	Register(TypeConversationTurnResponse, "", func() Message {
		return &ConversationTurnResponse{Envelope: Envelope{MessageType: TypeConversationTurnResponse}}
	})
}
