package timing

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/comms"
	"github.com/aiperf/aiperf/internal/comms/zmq"
	"github.com/aiperf/aiperf/internal/messages"
	"github.com/aiperf/aiperf/internal/models"
)

// ScheduleProvider supplies fixed-schedule entries once the dataset is
// known; nil when the run is rate-driven.
type ScheduleProvider func() []ScheduledCredit

// Service wires a Manager into the standard lifecycle: commands
// arrive over the addressed command topic, CreditReturns over the
// credit-return PULL channel, CreditDrops leave over the credit-drop PUSH
// channel, and phase lifecycle events broadcast over PUB.
type Service struct {
	*comms.Service
	logger zerolog.Logger

	manager  *Manager
	schedule ScheduleProvider

	phases       []PhaseSpec
	cancelAfter  time.Duration
	drainTimeout time.Duration

	runDone chan struct{}
}

// NewService builds the Timing Manager service. subscriber, pullWorker,
// pusher, and publisher are already-dialed fabric clients; the caller owns
// their Run() loops.
func NewService(serviceID string, logger zerolog.Logger, subscriber *zmq.Subscriber, pullWorker *zmq.PullWorker, pusher *zmq.Pusher, publisher *zmq.Publisher, admitter Admitter, schedule ScheduleProvider, heartbeatInterval, progressInterval time.Duration) *Service {
	manager := NewManager(logger, pusher, publisher, admitter, progressInterval)

	svc := &Service{
		logger:   logger,
		manager:  manager,
		schedule: schedule,
	}

	hooks := comms.Hooks{
		OnInit: func(ctx context.Context) error {
			pullWorker.RegisterPullCallback(messages.TypeCreditReturn, manager.HandleCreditReturn)
			return comms.WireCommands(ctx, subscriber, publisher, serviceID, "timing_manager", logger, svc.handleCommand)
		},
	}

	svc.Service = comms.NewService("timing_manager", serviceID, logger, publisher, heartbeatInterval, hooks, nil)
	return svc
}

// handleCommand dispatches PROFILE_CONFIGURE / PROFILE_START / PROFILE_CANCEL
func (s *Service) handleCommand(ctx context.Context, cmd *messages.CommandMessage) error {
	switch cmd.Command {
	case messages.CommandProfileConfigure:
		payload, err := cmd.DecodeConfigurePayload()
		if err != nil {
			return err
		}
		s.configure(payload)
	case messages.CommandProfileStart:
		s.start(ctx)
	case messages.CommandProfileCancel:
		s.manager.Cancel()
	case messages.CommandShutdown:
		s.TriggerShutdown()
	}
	return nil
}

func (s *Service) configure(payload messages.ProfileConfigurePayload) {
	s.phases = s.phases[:0]
	s.drainTimeout = time.Duration(payload.CancelDrainSec * float64(time.Second))
	s.cancelAfter = time.Duration(payload.CancelAfterSec * float64(time.Second))

	if payload.Warmup != nil {
		s.phases = append(s.phases, PhaseSpec{
			Phase:    models.PhaseWarmup,
			Config:   Config{TotalExpectedRequests: payload.Warmup.TotalExpectedRequests, ExpectedDurationSec: payload.Warmup.ExpectedDurationSec},
			Strategy: s.buildStrategy(payload),
		})
	}
	s.phases = append(s.phases, PhaseSpec{
		Phase:    models.PhaseProfiling,
		Config:   Config{TotalExpectedRequests: payload.Profiling.TotalExpectedRequests, ExpectedDurationSec: payload.Profiling.ExpectedDurationSec},
		Strategy: s.buildStrategy(payload),
	})
}

func (s *Service) buildStrategy(payload messages.ProfileConfigurePayload) Strategy {
	switch Mode(payload.LoadMode) {
	case ModeConstant:
		return NewConstantRateStrategy(payload.RequestRate)
	case ModePoisson:
		return NewPoissonStrategy(payload.RequestRate, payload.RandomSeed)
	case ModeFixedSchedule:
		var entries []ScheduledCredit
		if s.schedule != nil {
			entries = s.schedule()
		}
		return NewFixedScheduleStrategy(entries)
	default:
		return ConcurrencyBurstStrategy{}
	}
}

// start runs every configured phase in sequence and publishes
// CreditsCompleteMessage once all have completed. It runs in
// its own goroutine so the PROFILE_START command ACK returns immediately.
func (s *Service) start(ctx context.Context) {
	s.runDone = make(chan struct{})
	go func() {
		defer close(s.runDone)

		runCtx := ctx
		if s.cancelAfter > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, s.cancelAfter)
			defer cancel()
		}

		for _, spec := range s.phases {
			if s.manager.isCancelled() {
				break
			}
			if _, err := s.manager.RunPhase(runCtx, spec, s.drainTimeout); err != nil {
				s.logger.Error().Err(err).Str("phase", string(spec.Phase)).Msg("timing: phase run failed")
				break
			}
		}
		s.manager.PublishCreditsComplete()
	}()
}
