// Package worker implements the request worker: a PULL client receiving
// CreditDrops, resolving conversation turns from the Dataset Manager,
// sending HTTP requests through one pooled transport, and pushing the
// resulting RequestRecords and CreditReturns back into the fabric.
package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/adapters"
	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/comms"
	"github.com/aiperf/aiperf/internal/comms/zmq"
	"github.com/aiperf/aiperf/internal/messages"
	"github.com/aiperf/aiperf/internal/models"
	"github.com/aiperf/aiperf/internal/platform"
)

// TurnResolver asks the Dataset Manager for the next conversation turn;
// satisfied by a closure over *zmq.DealerRequester, kept as an interface so
// worker tests run without a live socket.
type TurnResolver func(ctx context.Context, conversationID string, turnIndex int) (*models.Turn, error)

// endpointState is the run configuration a PROFILE_CONFIGURE command
// installs, immutable until the next configure.
type endpointState struct {
	adapter        adapters.Adapter
	reqURL         string
	streaming      bool
	apiKey         string
	headers        map[string]string
	primaryModel   string
	extraParams    map[string]any
	cancelAfter    time.Duration
}

// Worker is one worker service instance.
type Worker struct {
	*comms.Service
	logger zerolog.Logger

	transport *Transport
	resolver  TurnResolver

	recordPusher Pusher
	returnPusher Pusher
	publisher    comms.Publisher
	sampler      *platform.Sampler
	pull         *zmq.PullWorker

	mu        sync.Mutex
	endpoint  *endpointState
	turnIdx   map[string]int // conversation_id -> next turn index
	stats     map[models.CreditPhase]*messages.PhaseTaskStats
}

// Pusher is the subset of *zmq.Pusher the worker needs.
type Pusher interface {
	Push(ctx context.Context, msg messages.Message) error
}

// New builds a Worker. pull is the CreditDrop PULL client; recordPusher
// dials the raw-inference channel, returnPusher the credit-return channel.
func New(serviceID string, logger zerolog.Logger, pull *zmq.PullWorker, subscriber *zmq.Subscriber, recordPusher, returnPusher Pusher, publisher comms.Publisher, resolver TurnResolver, transport *Transport, sampler *platform.Sampler, heartbeatInterval, healthInterval time.Duration) *Worker {
	w := &Worker{
		logger:       logger,
		transport:    transport,
		resolver:     resolver,
		recordPusher: recordPusher,
		returnPusher: returnPusher,
		publisher:    publisher,
		sampler:      sampler,
		pull:         pull,
		turnIdx:      make(map[string]int),
		stats:        make(map[models.CreditPhase]*messages.PhaseTaskStats),
	}

	hooks := comms.Hooks{
		OnInit: func(ctx context.Context) error {
			pull.RegisterPullCallback(messages.TypeCreditDrop, func(msg messages.Message) {
				w.handleCreditDrop(ctx, msg)
			})
			return comms.WireCommands(ctx, subscriber, publisher, serviceID, "worker", logger, w.handleCommand)
		},
	}
	tasks := []comms.BackgroundTask{
		{Name: "worker_health", Interval: healthInterval, Run: w.publishHealth},
	}

	w.Service = comms.NewService("worker", serviceID, logger, publisher, heartbeatInterval, hooks, tasks)
	return w
}

// handleCommand installs PROFILE_CONFIGURE and ACKs the lifecycle commands
// the controller broadcasts.
func (w *Worker) handleCommand(_ context.Context, cmd *messages.CommandMessage) error {
	switch cmd.Command {
	case messages.CommandProfileConfigure:
		payload, err := cmd.DecodeConfigurePayload()
		if err != nil {
			return err
		}
		return w.Configure(payload)
	case messages.CommandShutdown:
		w.TriggerShutdown()
	}
	return nil
}

// Configure installs the endpoint state for the coming run.
func (w *Worker) Configure(payload messages.ProfileConfigurePayload) error {
	adapter, err := adapters.New(payload.EndpointType)
	if err != nil {
		return err
	}
	reqURL, err := BuildURL(payload.EndpointBaseURL, adapter.Metadata().EndpointPath, payload.CustomEndpoint, payload.URLParams)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.endpoint = &endpointState{
		adapter:       adapter,
		reqURL:        reqURL,
		streaming:     payload.Streaming,
		apiKey:        payload.APIKey,
		headers:       payload.Headers,
		primaryModel:  payload.PrimaryModelName,
		extraParams:   payload.ExtraParams,
		cancelAfter:   time.Duration(payload.CancelAfterSec * float64(time.Second)),
	}
	w.mu.Unlock()
	return nil
}

// handleCreditDrop runs the per-credit sequence. It is invoked from the
// PullWorker's per-message goroutine, so blocking here only holds one
// concurrency slot.
func (w *Worker) handleCreditDrop(ctx context.Context, msg messages.Message) {
	credit, ok := msg.(*messages.CreditDropMessage)
	if !ok {
		return
	}
	creditRecvPerfNs := PerfNow()
	creditRecvWallNs := time.Now().UnixNano()

	w.mu.Lock()
	ep := w.endpoint
	w.mu.Unlock()
	if ep == nil {
		w.logger.Warn().Str("credit_id", credit.CreditID).Msg("worker: credit dropped before PROFILE_CONFIGURE, discarded")
		return
	}

	w.bumpStat(credit.CreditPhase, func(s *messages.PhaseTaskStats) { s.Received++ })

	var delayedNs *int64
	if credit.CreditDropNs > 0 {
		waitUntil(time.Unix(0, credit.CreditDropNs))
		d := time.Now().UnixNano() - credit.CreditDropNs
		if d < 0 {
			d = 0
		}
		delayedNs = &d
	}

	record, preInferenceNs := w.executeCredit(ctx, ep, credit, creditRecvPerfNs, creditRecvWallNs, delayedNs)

	if err := w.recordPusher.Push(ctx, &messages.RequestRecordMessage{
		Envelope: messages.Envelope{MessageType: messages.TypeRequestRecord, RequestNs: time.Now().UnixNano()},
		WorkerID: w.ServiceID,
		Record:   *record,
	}); err != nil {
		w.logger.Error().Err(err).Str("credit_id", credit.CreditID).Msg("worker: record push failed")
	}

	if err := w.returnPusher.Push(ctx, &messages.CreditReturnMessage{
		Envelope:       messages.Envelope{MessageType: messages.TypeCreditReturn},
		CreditID:       credit.CreditID,
		CreditPhase:    credit.CreditPhase,
		ConversationID: credit.ConversationID,
		CreditDropNs:   credit.CreditDropNs,
		DelayedNs:      delayedNs,
		PreInferenceNs: preInferenceNs,
	}); err != nil {
		w.logger.Error().Err(err).Str("credit_id", credit.CreditID).Msg("worker: credit return push failed")
	}

	if record.Error != nil {
		w.bumpStat(credit.CreditPhase, func(s *messages.PhaseTaskStats) { s.Errored++ })
	} else {
		w.bumpStat(credit.CreditPhase, func(s *messages.PhaseTaskStats) { s.Completed++ })
	}
}

// executeCredit resolves the turn, builds and sends the request, and folds
// the result into a RequestRecord.
func (w *Worker) executeCredit(ctx context.Context, ep *endpointState, credit *messages.CreditDropMessage, creditRecvPerfNs, creditRecvWallNs int64, delayedNs *int64) (*models.RequestRecord, int64) {
	record := &models.RequestRecord{
		TimestampNs:    time.Now().UnixNano(),
		CreditPhase:    credit.CreditPhase,
		ConversationID: credit.ConversationID,
		DelayedNs:      delayedNs,
		CancelAfterNs:  credit.CancelAfterNs,
		XRequestID:     uuid.NewString(),
		XCorrelationID: credit.CreditID,
	}
	if credit.CreditDropNs > 0 && creditRecvWallNs > credit.CreditDropNs {
		record.CreditDropLatencyNs = creditRecvWallNs - credit.CreditDropNs
	}

	turnIndex := w.nextTurnIndex(credit.ConversationID)
	turn, err := w.resolver(ctx, credit.ConversationID, turnIndex)
	if err != nil {
		details := aierrors.FromError(err)
		record.Error = &details
		record.StartPerfNs = PerfNow()
		record.EndPerfNs = record.StartPerfNs + 1
		return record, 0
	}

	body, err := ep.adapter.FormatPayload(adapters.RequestInfo{
		Turns:            []models.Turn{*turn},
		PrimaryModelName: ep.primaryModel,
		ExtraParams:      ep.extraParams,
		Streaming:        ep.streaming,
	})
	if err != nil {
		details := aierrors.FromError(err)
		record.Error = &details
		record.StartPerfNs = PerfNow()
		record.EndPerfNs = record.StartPerfNs + 1
		return record, 0
	}
	payload, err := json.Marshal(body)
	if err != nil {
		details := aierrors.FromError(err)
		record.Error = &details
		record.StartPerfNs = PerfNow()
		record.EndPerfNs = record.StartPerfNs + 1
		return record, 0
	}

	headers := Headers(ep.streaming, ep.apiKey, record.XRequestID, record.XCorrelationID, ep.headers)
	preInferenceNs := PerfNow() - creditRecvPerfNs

	cancelAfter := time.Duration(credit.CancelAfterNs)
	if cancelAfter == 0 {
		cancelAfter = ep.cancelAfter
	}
	record.CancelAfterNs = int64(cancelAfter)

	sendCtx := ctx
	var cancel context.CancelFunc
	if cancelAfter > 0 {
		sendCtx, cancel = context.WithTimeout(ctx, cancelAfter)
		defer cancel()
	}

	result, err := w.transport.Send(sendCtx, ep.reqURL, headers, payload, ep.streaming)
	record.StartPerfNs = result.StartPerfNs
	record.EndPerfNs = result.EndPerfNs
	record.RecvStartPerfNs = result.RecvStartPerfNs
	record.TimestampNs = result.TimestampNs
	record.Status = result.Status
	record.Responses = result.Responses

	if err != nil {
		if cancelAfter > 0 && sendCtx.Err() == context.DeadlineExceeded {
			record.WasCancelled = true
			record.CancellationPerfNs = PerfNow()
			record.Responses = nil
		} else {
			details := aierrors.FromError(err)
			record.Error = &details
		}
	}
	return record, preInferenceNs
}

func (w *Worker) nextTurnIndex(conversationID string) int {
	if conversationID == "" {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := w.turnIdx[conversationID]
	w.turnIdx[conversationID] = idx + 1
	return idx
}

func (w *Worker) bumpStat(phase models.CreditPhase, f func(*messages.PhaseTaskStats)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.stats[phase]
	if !ok {
		s = &messages.PhaseTaskStats{CreditPhase: phase}
		w.stats[phase] = s
	}
	f(s)
}

// publishHealth emits the periodic WorkerHealthMessage
func (w *Worker) publishHealth(ctx context.Context) {
	st := w.sampler.Sample()

	w.mu.Lock()
	phaseStats := make([]messages.PhaseTaskStats, 0, len(w.stats))
	for _, s := range w.stats {
		phaseStats = append(phaseStats, *s)
	}
	w.mu.Unlock()

	w.publisher.Publish(&messages.WorkerHealthMessage{
		Envelope:       messages.Envelope{MessageType: messages.TypeWorkerHealth, RequestNs: time.Now().UnixNano()},
		WorkerID:       w.ServiceID,
		CPUPercent:     st.CPUPercent,
		MemoryRSSBytes: st.MemoryRSS,
		NumGoroutines:  st.NumGoroutines,
		InFlight:       w.pull.InFlight(),
		PhaseStats:     phaseStats,
	}, "")
}

// waitUntil sleeps to the scheduled instant with a short busy-wait tail for
// precision: coarse timer sleep to within 1ms of the target, then spin
func waitUntil(target time.Time) {
	for {
		d := time.Until(target)
		if d <= 0 {
			return
		}
		if d > time.Millisecond {
			time.Sleep(d - time.Millisecond)
			continue
		}
		// sub-millisecond tail
		for time.Now().Before(target) {
		}
		return
	}
}

// NewDealerResolver adapts a DealerRequester into a TurnResolver.
func NewDealerResolver(dealer *zmq.DealerRequester, timeout time.Duration) TurnResolver {
	return func(ctx context.Context, conversationID string, turnIndex int) (*models.Turn, error) {
		req := &messages.ConversationTurnRequest{
			Envelope:       messages.Envelope{MessageType: messages.TypeConversationTurnRequest, RequestID: uuid.NewString(), RequestNs: time.Now().UnixNano()},
			ConversationID: conversationID,
			TurnIndex:      turnIndex,
		}
		resp, err := dealer.Request(ctx, req, timeout)
		if err != nil {
			return nil, err
		}
		switch m := resp.(type) {
		case *messages.ConversationTurnResponse:
			return &m.Turn, nil
		case *messages.ErrorMessage:
			return nil, aierrors.ErrorDetails{Code: m.ErrorCode, Type: m.ErrorType, Message: m.ErrorMessage}
		default:
			return nil, aierrors.Wrap(aierrors.KindCommunication, "resolve_turn", aierrors.ErrNoResponse)
		}
	}
}
