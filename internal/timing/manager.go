// Package timing implements the Timing Manager's credit engine: the
// per-phase state tracked only by the Timing Manager, the
// pluggable credit-issuing strategies, and the phase state machine that
// drives warmup then profiling to completion or cancellation.
package timing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/messages"
	"github.com/aiperf/aiperf/internal/models"
)

// Pusher is the subset of *zmq.Pusher the Manager needs, kept as an
// interface so phase-state-machine tests don't need a live socket.
type Pusher interface {
	Push(ctx context.Context, msg messages.Message) error
}

// Publisher is the subset of *zmq.Publisher the Manager needs to broadcast
// phase lifecycle events.
type Publisher interface {
	Publish(msg messages.Message, target string) error
}

// Admitter bounds in-flight requests to the configured concurrency;
// satisfied by a buffered-channel semaphore the caller owns, the same shape
// zmq.PullWorker uses.
type Admitter interface {
	Acquire(ctx context.Context) error
	Release()
}

// chanAdmitter is the default Admitter: a buffered channel used as a
// counting semaphore.
type chanAdmitter struct {
	sem chan struct{}
}

// NewAdmitter builds a concurrency gate bounded by maxConcurrency. A
// non-positive bound means unbounded (no gate).
func NewAdmitter(maxConcurrency int) Admitter {
	if maxConcurrency <= 0 {
		return unboundedAdmitter{}
	}
	return &chanAdmitter{sem: make(chan struct{}, maxConcurrency)}
}

func (a *chanAdmitter) Acquire(ctx context.Context) error {
	select {
	case a.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *chanAdmitter) Release() {
	select {
	case <-a.sem:
	default:
	}
}

type unboundedAdmitter struct{}

func (unboundedAdmitter) Acquire(ctx context.Context) error { return nil }
func (unboundedAdmitter) Release()                          {}

// PhaseSpec bundles one phase's config with the strategy that issues its
// credits.
type PhaseSpec struct {
	Phase    models.CreditPhase
	Config   Config
	Strategy Strategy
}

// Manager is the Timing Manager service It owns the CreditPhaseStats
// for whichever phase is currently running, drives the send loop,
// tracks credit returns, and sequences warmup -> profiling -> CreditsComplete.
type Manager struct {
	logger   zerolog.Logger
	pusher   Pusher
	publisher Publisher
	admitter Admitter

	progressInterval time.Duration

	mu        sync.Mutex
	stats     map[models.CreditPhase]*Stats
	inFlight  map[string]models.CreditPhase // credit_id -> phase, for return routing
	cancelled int32
}

// NewManager builds a Manager. progressInterval controls how often
// CreditPhaseProgressMessage is emitted during a phase's send loop.
func NewManager(logger zerolog.Logger, pusher Pusher, publisher Publisher, admitter Admitter, progressInterval time.Duration) *Manager {
	return &Manager{
		logger:           logger,
		pusher:           pusher,
		publisher:        publisher,
		admitter:         admitter,
		progressInterval: progressInterval,
		stats:            make(map[models.CreditPhase]*Stats),
		inFlight:         make(map[string]models.CreditPhase),
	}
}

// Cancel marks the run cancelled: the current
// phase's send loop exits on its next should_send check and in-flight
// credits are no longer waited on past the drain timeout the caller enforces.
func (m *Manager) Cancel() {
	atomic.StoreInt32(&m.cancelled, 1)
}

func (m *Manager) isCancelled() bool { return atomic.LoadInt32(&m.cancelled) == 1 }

// RunPhase drives one phase end to end: publish
// CreditPhaseStartMessage, loop issuing credits while should_send, publish
// CreditPhaseSendingCompleteMessage once the loop exits, then wait for every
// in-flight credit to return (or the drain deadline to elapse) before
// publishing CreditPhaseCompleteMessage. It returns the final Stats.
func (m *Manager) RunPhase(ctx context.Context, spec PhaseSpec, drainTimeout time.Duration) (*Stats, error) {
	if err := spec.Config.Validate(); err != nil {
		return nil, err
	}

	stats := &Stats{StartNs: time.Now().UnixNano()}
	m.mu.Lock()
	m.stats[spec.Phase] = stats
	m.mu.Unlock()

	m.publisher.Publish(&messages.CreditPhaseStartMessage{
		Envelope:    messages.Envelope{MessageType: messages.TypeCreditPhaseStart},
		CreditPhase: spec.Phase,
		StartNs:     stats.StartNs,
		Config: messages.CreditPhaseConfig{
			TotalExpectedRequests: spec.Config.TotalExpectedRequests,
			ExpectedDurationSec:   spec.Config.ExpectedDurationSec,
		},
	}, "")

	m.runSendLoop(ctx, spec, stats)

	stats.MarkSendingDone(time.Now().UnixNano())
	m.publisher.Publish(&messages.CreditPhaseSendingCompleteMessage{
		Envelope:    messages.Envelope{MessageType: messages.TypeCreditPhaseSendingComplete},
		CreditPhase: spec.Phase,
		SentEndNs:   stats.SentEndNs(),
		Sent:        stats.Sent(),
	}, "")

	m.drain(ctx, stats, drainTimeout)

	stats.MarkEnd(time.Now().UnixNano())
	wasCancelled := m.isCancelled()
	m.publisher.Publish(&messages.CreditPhaseCompleteMessage{
		Envelope:     messages.Envelope{MessageType: messages.TypeCreditPhaseComplete},
		CreditPhase:  spec.Phase,
		EndNs:        stats.EndNs(),
		Completed:    stats.Completed(),
		WasCancelled: wasCancelled,
	}, "")

	return stats, nil
}

// runSendLoop: while should_send, await the strategy's next instant, await
// concurrency admission, push CreditDrop, sent++, emit periodic
// CreditPhaseProgressMessage.
func (m *Manager) runSendLoop(ctx context.Context, spec PhaseSpec, stats *Stats) {
	lastProgress := time.Now()
	for stats.ShouldSend(spec.Config, time.Now().UnixNano(), m.isCancelled()) {
		credit, ok := spec.Strategy.Next(ctx)
		if !ok {
			return
		}
		if err := m.admitter.Acquire(ctx); err != nil {
			return
		}

		creditID := newCreditID()
		m.mu.Lock()
		m.inFlight[creditID] = spec.Phase
		m.mu.Unlock()

		err := m.pusher.Push(ctx, &messages.CreditDropMessage{
			Envelope:       messages.Envelope{MessageType: messages.TypeCreditDrop},
			CreditID:       creditID,
			CreditPhase:    spec.Phase,
			ConversationID: credit.ConversationID,
			CreditDropNs:   credit.DropNs,
		})
		if err != nil {
			m.admitter.Release()
			m.mu.Lock()
			delete(m.inFlight, creditID)
			m.mu.Unlock()
			m.logger.Error().Err(err).Str("credit_id", creditID).Msg("timing: credit drop push failed, dropped")
			continue
		}
		stats.RecordSend()

		if time.Since(lastProgress) >= m.progressInterval {
			m.emitProgress(spec.Phase, stats)
			lastProgress = time.Now()
		}
	}
}

func (m *Manager) emitProgress(phase models.CreditPhase, stats *Stats) {
	m.publisher.Publish(&messages.CreditPhaseProgressMessage{
		Envelope:    messages.Envelope{MessageType: messages.TypeCreditPhaseProgress},
		CreditPhase: phase,
		Sent:        stats.Sent(),
		Completed:   stats.Completed(),
		InFlight:    stats.InFlight(),
	}, "")
}

// drain waits until every sent credit has returned or drainTimeout elapses,
// whichever comes first.
func (m *Manager) drain(ctx context.Context, stats *Stats, drainTimeout time.Duration) {
	deadline := time.After(drainTimeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for stats.InFlight() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			m.logger.Warn().Int("in_flight", stats.InFlight()).Msg("timing: drain deadline elapsed with credits still in flight")
			return
		case <-ticker.C:
		}
	}
}

// HandleCreditReturn processes one CreditReturnMessage: completed++,
// release concurrency admission, decrement in-flight.
func (m *Manager) HandleCreditReturn(msg messages.Message) {
	ret, ok := msg.(*messages.CreditReturnMessage)
	if !ok {
		return
	}

	m.mu.Lock()
	phase, known := m.inFlight[ret.CreditID]
	if known {
		delete(m.inFlight, ret.CreditID)
	}
	m.mu.Unlock()
	if !known {
		phase = ret.CreditPhase
	}

	m.admitter.Release()

	m.mu.Lock()
	stats := m.stats[phase]
	m.mu.Unlock()
	if stats != nil {
		stats.RecordCompletion()
	}
}

// PublishCreditsComplete publishes the final CreditsCompleteMessage once
// every configured phase has run.
func (m *Manager) PublishCreditsComplete() {
	m.publisher.Publish(&messages.CreditsCompleteMessage{
		Envelope:     messages.Envelope{MessageType: messages.TypeCreditsComplete},
		WasCancelled: m.isCancelled(),
	}, "")
}

func newCreditID() string { return uuid.NewString() }
