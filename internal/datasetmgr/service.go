// Package datasetmgr implements the Dataset Manager: it owns the
// loaded conversations and serves turns on request over DEALER/ROUTER.
// Dataset composition itself (synthetic prompt generation, file loading) is
// an external collaborator; this service takes a ready-made set of
// conversations and answers ConversationTurnRequests.
package datasetmgr

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/comms"
	"github.com/aiperf/aiperf/internal/comms/zmq"
	"github.com/aiperf/aiperf/internal/messages"
	"github.com/aiperf/aiperf/internal/models"
)

// Store holds the conversations and the turn-selection strategy for
// anonymous requests.
type Store struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	order         []string
	rng           *rand.Rand
}

// NewStore builds a Store over the given conversations. seed drives the
// anonymous-request selection so runs are reproducible alongside the timing
// engine's seeded Poisson arrivals.
func NewStore(conversations []models.Conversation, seed *int64) *Store {
	var src rand.Source
	if seed != nil {
		src = rand.NewSource(*seed)
	} else {
		src = rand.NewSource(time.Now().UnixNano())
	}

	s := &Store{
		conversations: make(map[string]*models.Conversation, len(conversations)),
		rng:           rand.New(src),
	}
	for i := range conversations {
		c := conversations[i]
		s.conversations[c.SessionID] = &c
		s.order = append(s.order, c.SessionID)
	}
	return s
}

// Turn resolves the turnIndex-th turn of conversationID. An empty
// conversationID picks a random conversation's first turn. done reports
// that the conversation has no turn at that index, or that the returned
// turn is its last one.
func (s *Store) Turn(conversationID string, turnIndex int) (string, *models.Turn, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conversationID == "" {
		if len(s.order) == 0 {
			return "", nil, true, aierrors.Wrap(aierrors.KindLifecycle, "dataset.turn", errors.New("dataset is empty"))
		}
		conversationID = s.order[s.rng.Intn(len(s.order))]
		turnIndex = 0
	}

	conv, ok := s.conversations[conversationID]
	if !ok {
		return conversationID, nil, true, aierrors.Wrap(aierrors.KindParser, "dataset.turn", fmt.Errorf("unknown conversation %q", conversationID))
	}
	if turnIndex >= len(conv.Turns) {
		return conversationID, nil, true, nil
	}
	turn := conv.Turns[turnIndex]
	return conversationID, &turn, turnIndex == len(conv.Turns)-1, nil
}

// Schedule extracts the fixed-schedule entries for the Timing Manager's
// fixed-schedule strategy: every turn carrying a timestamp, as
// (timestamp, conversation_id) pairs sorted by timestamp.
func (s *Store) Schedule() []ScheduleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []ScheduleEntry
	for _, id := range s.order {
		for _, turn := range s.conversations[id].Turns {
			if turn.TimestampNs != nil {
				entries = append(entries, ScheduleEntry{TimestampNs: *turn.TimestampNs, ConversationID: id})
			}
		}
	}
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].TimestampNs < entries[i].TimestampNs {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}
	return entries
}

// ScheduleEntry is one (timestamp, conversation_id) tuple of a fixed
// schedule.
type ScheduleEntry struct {
	TimestampNs    int64
	ConversationID string
}

// Service is the Dataset Manager service: lifecycle plus the ROUTER handler
// answering turn requests.
type Service struct {
	*comms.Service
	logger zerolog.Logger
	store  *Store
}

// New builds the Dataset Manager. router is the already-dialed responder
// client; the caller owns its Run loop.
func New(serviceID string, logger zerolog.Logger, store *Store, router *zmq.RouterResponder, subscriber *zmq.Subscriber, publisher comms.Publisher, heartbeatInterval time.Duration) *Service {
	svc := &Service{logger: logger, store: store}

	hooks := comms.Hooks{
		OnInit: func(ctx context.Context) error {
			router.RegisterRequestHandler(messages.TypeConversationTurnRequest, svc.handleTurnRequest)
			// The dataset has no configure behavior; wiring still ACKs the
			// controller's broadcasts.
			return comms.WireCommands(ctx, subscriber, publisher, serviceID, "dataset_manager", logger,
				func(_ context.Context, cmd *messages.CommandMessage) error {
					if cmd.Command == messages.CommandShutdown {
						svc.TriggerShutdown()
					}
					return nil
				})
		},
	}

	svc.Service = comms.NewService("dataset_manager", serviceID, logger, publisher, heartbeatInterval, hooks, nil)
	return svc
}

func (s *Service) handleTurnRequest(ctx context.Context, req messages.Message) (messages.Message, error) {
	turnReq, ok := req.(*messages.ConversationTurnRequest)
	if !ok {
		return nil, nil
	}

	convID, turn, done, err := s.store.Turn(turnReq.ConversationID, turnReq.TurnIndex)
	if err != nil {
		return nil, err
	}
	if turn == nil {
		return nil, aierrors.Wrap(aierrors.KindParser, "dataset.turn",
			fmt.Errorf("conversation %q has no turn at index %d", convID, turnReq.TurnIndex))
	}

	return &messages.ConversationTurnResponse{
		Envelope:       messages.Envelope{MessageType: messages.TypeConversationTurnResponse, RequestID: turnReq.RequestID},
		ConversationID: convID,
		Turn:           *turn,
		Done:           done,
	}, nil
}
