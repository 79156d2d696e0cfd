package recordproc

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/adapters"
	"github.com/aiperf/aiperf/internal/comms"
	"github.com/aiperf/aiperf/internal/comms/zmq"
	"github.com/aiperf/aiperf/internal/messages"
	"github.com/aiperf/aiperf/internal/models"
)

// Service wires a Processor into the fabric: RequestRecordMessages arrive
// over the raw-inference PULL channel, MetricRecordsMessages leave over the
// records PUSH channel toward the Records Manager.
type Service struct {
	*comms.Service
	logger zerolog.Logger

	pusher Pusher

	mu        sync.Mutex
	processor *Processor
}

// Pusher is the subset of *zmq.Pusher this service needs.
type Pusher interface {
	Push(ctx context.Context, msg messages.Message) error
}

// New builds a Record Processor service. The processor is rebuilt on
// PROFILE_CONFIGURE so the adapter matches the configured endpoint type.
func New(serviceID string, logger zerolog.Logger, pull *zmq.PullWorker, subscriber *zmq.Subscriber, pusher Pusher, publisher comms.Publisher, tokenizer TokenCounter, heartbeatInterval time.Duration) *Service {
	svc := &Service{logger: logger, pusher: pusher}

	hooks := comms.Hooks{
		OnInit: func(ctx context.Context) error {
			pull.RegisterPullCallback(messages.TypeRequestRecord, func(msg messages.Message) {
				svc.handleRecord(ctx, msg)
			})
			return comms.WireCommands(ctx, subscriber, publisher, serviceID, "record_processor", logger,
				func(ctx context.Context, cmd *messages.CommandMessage) error {
					return svc.handleCommand(cmd, tokenizer)
				})
		},
	}

	svc.Service = comms.NewService("record_processor", serviceID, logger, publisher, heartbeatInterval, hooks, nil)
	return svc
}

func (s *Service) handleCommand(cmd *messages.CommandMessage, tokenizer TokenCounter) error {
	switch cmd.Command {
	case messages.CommandProfileConfigure:
		payload, err := cmd.DecodeConfigurePayload()
		if err != nil {
			return err
		}
		adapter, err := adapters.New(payload.EndpointType)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.processor = NewProcessor(adapter, tokenizer, DefaultMetrics(), s.logger)
		s.mu.Unlock()
	case messages.CommandShutdown:
		s.TriggerShutdown()
	}
	return nil
}

// handleRecord processes one raw record and pushes the resulting metrics
// onward.
func (s *Service) handleRecord(ctx context.Context, msg messages.Message) {
	recMsg, ok := msg.(*messages.RequestRecordMessage)
	if !ok {
		return
	}
	s.mu.Lock()
	proc := s.processor
	s.mu.Unlock()
	if proc == nil {
		s.logger.Warn().Msg("recordproc: record received before PROFILE_CONFIGURE, dropped")
		return
	}

	computed, metadata, valid, errDetails := proc.Process(&recMsg.Record)
	metadata.WorkerID = recMsg.WorkerID

	out := &messages.MetricRecordsMessage{
		Envelope:    messages.Envelope{MessageType: messages.TypeMetricRecords, RequestNs: time.Now().UnixNano()},
		WorkerID:    recMsg.WorkerID,
		CreditPhase: recMsg.Record.CreditPhase,
		Results:     []models.MetricRecord{computed},
		Metadata:    []models.MetricRecordMetadata{metadata},
		Valid:       []bool{valid},
		Error:       errDetails,
	}
	if err := s.pusher.Push(ctx, out); err != nil {
		s.logger.Error().Err(err).Msg("recordproc: metric records push failed")
	}
}
