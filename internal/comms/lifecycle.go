package comms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/messages"
)

// State is one of the service lifecycle states.
type State string

const (
	StateCreated      State = "CREATED"
	StateInitializing State = "INITIALIZING"
	StateInitialized  State = "INITIALIZED"
	StateStarting     State = "STARTING"
	StateRunning      State = "RUNNING"
	StateStopping     State = "STOPPING"
	StateStopped      State = "STOPPED"
)

// validTransitions enumerates the legal state graph Any transition
// not in this table is rejected with aierrors.ErrInvalidState.
var validTransitions = map[State][]State{
	StateCreated:      {StateInitializing},
	StateInitializing: {StateInitialized},
	StateInitialized:  {StateStarting},
	StateStarting:     {StateRunning},
	StateRunning:      {StateStopping},
	StateStopping:     {StateStopped},
}

// Hooks are the four lifecycle hook points. Any hook left nil is
// skipped. Each hook is called synchronously, on the caller's goroutine, by
// Initialize, Start, Stop or Cleanup.
type Hooks struct {
	OnInit    func(ctx context.Context) error
	OnStart   func(ctx context.Context) error
	OnStop    func(ctx context.Context) error
	OnCleanup func(ctx context.Context) error
}

// BackgroundTask is a declarative recurring task.
type BackgroundTask struct {
	Name      string
	Immediate bool
	Interval  time.Duration
	Run       func(ctx context.Context)
}

// Service is the base every AIPerf service embeds: the state machine, hook
// registration, background task scheduling, and registration/heartbeat
// publishing Concrete services fill in Hooks and BackgroundTasks in
// their constructor (the "static per class" registration rule) and call
// Initialize/Start/Stop/Cleanup in sequence.
type Service struct {
	ServiceID   string
	ServiceType string

	logger zerolog.Logger
	hooks  Hooks
	tasks  []BackgroundTask

	publisher  Publisher
	hbInterval time.Duration

	mu    sync.Mutex
	state State

	cancel    context.CancelFunc
	taskWg    sync.WaitGroup
	doneTasks chan struct{}

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// Publisher is the minimal interface Service needs to emit registration and
// heartbeat messages, satisfied by *zmq.Publisher; kept as an interface so
// lifecycle tests don't need a live socket.
type Publisher interface {
	Publish(msg messages.Message, target string) error
}

// NewService builds a service in the CREATED state. serviceType identifies
// the kind ("worker", "timing_manager",...); a random id is generated if
// serviceID is empty.
func NewService(serviceType, serviceID string, logger zerolog.Logger, pub Publisher, heartbeatInterval time.Duration, hooks Hooks, tasks []BackgroundTask) *Service {
	if serviceID == "" {
		serviceID = uuid.NewString()
	}
	return &Service{
		ServiceID:   serviceID,
		ServiceType: serviceType,
		logger:      logger.With().Str("service_type", serviceType).Str("service_id", serviceID).Logger(),
		hooks:       hooks,
		tasks:       tasks,
		publisher:   pub,
		hbInterval:  heartbeatInterval,
		state:       StateCreated,
		doneTasks:   make(chan struct{}),
		shutdownCh:  make(chan struct{}),
	}
}

// TriggerShutdown signals the process's main loop that a SHUTDOWN command
// arrived; safe to call more than once.
func (s *Service) TriggerShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// ShutdownRequested is closed once TriggerShutdown has been called.
func (s *Service) ShutdownRequested() <-chan struct{} { return s.shutdownCh }

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, allowed := range validTransitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	return aierrors.Wrap(aierrors.KindLifecycle, "transition",
		fmt.Errorf("%w: %s -> %s", aierrors.ErrInvalidState, s.state, to))
}

// Initialize moves CREATED -> INITIALIZING, runs on_init, then moves to
// INITIALIZED.
func (s *Service) Initialize(ctx context.Context) error {
	if err := s.transition(StateInitializing); err != nil {
		return err
	}
	if s.hooks.OnInit != nil {
		if err := s.hooks.OnInit(ctx); err != nil {
			return aierrors.Wrap(aierrors.KindLifecycle, "on_init", err)
		}
	}
	return s.transition(StateInitialized)
}

// Start runs on_start, starts every background task, publishes a
// RegistrationMessage, and begins heartbeats; moves INITIALIZED -> STARTING
// -> RUNNING.
func (s *Service) Start(ctx context.Context) error {
	if err := s.transition(StateStarting); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.hooks.OnStart != nil {
		if err := s.hooks.OnStart(runCtx); err != nil {
			cancel()
			return aierrors.Wrap(aierrors.KindLifecycle, "on_start", err)
		}
	}

	for _, t := range s.tasks {
		s.startTask(runCtx, t)
	}

	if err := s.transition(StateRunning); err != nil {
		cancel()
		return err
	}

	s.publishRegistration()
	s.startHeartbeat(runCtx)
	return nil
}

func (s *Service) startTask(ctx context.Context, t BackgroundTask) {
	s.taskWg.Add(1)
	go func() {
		defer s.taskWg.Done()
		if t.Interval <= 0 {
			if t.Immediate {
				s.runTaskOnce(ctx, t)
			}
			return
		}
		ticker := time.NewTicker(t.Interval)
		defer ticker.Stop()
		if t.Immediate {
			s.runTaskOnce(ctx, t)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runTaskOnce(ctx, t)
			}
		}
	}()
}

func (s *Service) runTaskOnce(ctx context.Context, t BackgroundTask) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("task", t.Name).Msg("background task panicked, recovered")
		}
	}()
	t.Run(ctx)
}

func (s *Service) startHeartbeat(ctx context.Context) {
	if s.hbInterval <= 0 || s.publisher == nil {
		return
	}
	s.taskWg.Add(1)
	go func() {
		defer s.taskWg.Done()
		ticker := time.NewTicker(s.hbInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.publisher.Publish(&messages.HeartbeatMessage{
					Envelope:  messages.Envelope{MessageType: messages.TypeHeartbeat, RequestNs: time.Now().UnixNano()},
					ServiceID: s.ServiceID,
					State:     string(s.State()),
				}, "")
			}
		}
	}()
}

func (s *Service) publishRegistration() {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(&messages.RegistrationMessage{
		Envelope:    messages.Envelope{MessageType: messages.TypeRegistration, RequestNs: time.Now().UnixNano()},
		ServiceID:   s.ServiceID,
		ServiceType: s.ServiceType,
	}, "")
}

// Stop runs on_stop, cancels all background tasks, and waits for them to
// exit; moves RUNNING -> STOPPING -> STOPPED.
func (s *Service) Stop(ctx context.Context) error {
	if err := s.transition(StateStopping); err != nil {
		return err
	}
	if s.hooks.OnStop != nil {
		if err := s.hooks.OnStop(ctx); err != nil {
			s.logger.Error().Err(err).Msg("on_stop hook failed")
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.taskWg.Wait()
	return s.transition(StateStopped)
}

// Cleanup runs on_cleanup and publishes a DeregistrationMessage, the final
// step of teardown sequence.
func (s *Service) Cleanup(ctx context.Context) error {
	if s.hooks.OnCleanup != nil {
		if err := s.hooks.OnCleanup(ctx); err != nil {
			s.logger.Error().Err(err).Msg("on_cleanup hook failed")
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(&messages.DeregistrationMessage{
			Envelope:  messages.Envelope{MessageType: messages.TypeDeregistration},
			ServiceID: s.ServiceID,
		}, "")
	}
	return nil
}
