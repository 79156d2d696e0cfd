// Package controller implements the System Controller: it spawns
// the broker and service fleet, waits for registration, drives the
// PROFILE_CONFIGURE / PROFILE_START / SHUTDOWN command sequence, relays
// progress, and collects the final ProfileResults.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/comms"
	"github.com/aiperf/aiperf/internal/comms/zmq"
	"github.com/aiperf/aiperf/internal/config"
	"github.com/aiperf/aiperf/internal/messages"
)

// ErrLifecycle marks a failed run that should exit with code 1: a
// service failed to register or initialize.
var ErrLifecycle = errors.New("controller: lifecycle operation failed")

// ProgressFunc relays run progress to the UI collaborator.
type ProgressFunc func(msg messages.Message)

// ResultFunc receives the final ProfileResults.
type ResultFunc func(results messages.ProfileResults)

// Controller orchestrates one profiling run.
type Controller struct {
	logger    zerolog.Logger
	registry  *comms.Registry
	publisher *zmq.Publisher
	sub       *zmq.Subscriber

	userCfg *config.UserConfig
	svcCfg  *config.ServiceConfig

	onProgress ProgressFunc
	onResult   ResultFunc

	mu       sync.Mutex
	acks     map[string]map[string]struct{} // command_id -> service_ids that ACKed
	resultCh chan messages.ProfileResults
	doneCh   chan struct{}
}

// New builds a Controller over already-dialed fabric clients. onProgress
// and onResult may be nil.
func New(logger zerolog.Logger, publisher *zmq.Publisher, sub *zmq.Subscriber, userCfg *config.UserConfig, svcCfg *config.ServiceConfig, onProgress ProgressFunc, onResult ResultFunc) (*Controller, error) {
	c := &Controller{
		logger:     logger,
		registry:   comms.NewRegistry(),
		publisher:  publisher,
		sub:        sub,
		userCfg:    userCfg,
		svcCfg:     svcCfg,
		onProgress: onProgress,
		onResult:   onResult,
		acks:       make(map[string]map[string]struct{}),
		resultCh:   make(chan messages.ProfileResults, 1),
		doneCh:     make(chan struct{}, 1),
	}

	err := sub.SubscribeAll(map[string]zmq.Callback{
		messages.TypeRegistration:         c.handleRegistration,
		messages.TypeDeregistration:       c.handleDeregistration,
		messages.TypeHeartbeat:            c.handleHeartbeat,
		messages.TypeCommandResponse:      c.handleCommandResponse,
		messages.TypeCreditPhaseProgress:  c.relayProgress,
		messages.TypeCreditPhaseStart:     c.relayProgress,
		messages.TypeCreditPhaseComplete:  c.relayProgress,
		messages.TypeWorkerHealth:         c.relayProgress,
		messages.TypeTelemetryStatus:      c.relayProgress,
		messages.TypeError:                c.relayProgress,
		messages.TypeAllRecordsReceived:   c.handleAllRecordsReceived,
		messages.TypeProcessRecordsResult: c.handleResult,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) handleRegistration(msg messages.Message) {
	reg, ok := msg.(*messages.RegistrationMessage)
	if !ok {
		return
	}
	c.logger.Info().Str("service_id", reg.ServiceID).Str("service_type", reg.ServiceType).Msg("service registered")
	c.registry.Register(reg.ServiceID, reg.ServiceType, time.Now())
}

func (c *Controller) handleDeregistration(msg messages.Message) {
	dereg, ok := msg.(*messages.DeregistrationMessage)
	if !ok {
		return
	}
	c.registry.Deregister(dereg.ServiceID)
}

func (c *Controller) handleHeartbeat(msg messages.Message) {
	hb, ok := msg.(*messages.HeartbeatMessage)
	if !ok {
		return
	}
	c.registry.Heartbeat(hb.ServiceID, hb.State, time.Now())
}

func (c *Controller) handleCommandResponse(msg messages.Message) {
	resp, ok := msg.(*messages.CommandResponseMessage)
	if !ok {
		return
	}
	if !resp.Success {
		c.logger.Error().Str("service_id", resp.ServiceID).Str("detail", resp.Detail).Msg("command NACKed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	byService, ok := c.acks[resp.CommandID]
	if !ok {
		return
	}
	byService[resp.ServiceID] = struct{}{}
}

func (c *Controller) relayProgress(msg messages.Message) {
	if c.onProgress != nil {
		c.onProgress(msg)
	}
}

func (c *Controller) handleAllRecordsReceived(msg messages.Message) {
	c.relayProgress(msg)
	select {
	case c.doneCh <- struct{}{}:
	default:
	}
}

func (c *Controller) handleResult(msg messages.Message) {
	result, ok := msg.(*messages.ProcessRecordsResultMessage)
	if !ok {
		return
	}
	if c.onResult != nil {
		c.onResult(result.Results)
	}
	select {
	case c.resultCh <- result.Results:
	default:
	}
}

// ExpectedServices maps service type to the number of instances the run
// requires, derived from UserConfig.
func (c *Controller) ExpectedServices() map[string]int {
	expected := map[string]int{
		"timing_manager":   1,
		"dataset_manager":  1,
		"records_manager":  1,
		"worker":           c.userCfg.NumWorkers,
		"record_processor": c.userCfg.NumRecordProcessors,
	}
	if len(c.userCfg.DCGMURLs) > 0 {
		expected["telemetry_manager"] = 1
	}
	return expected
}

// WaitForRegistration blocks until every expected service is RUNNING or the
// registration timeout elapses.
func (c *Controller) WaitForRegistration(ctx context.Context) error {
	timeout := time.Duration(c.svcCfg.RegistrationTimeoutSec * float64(time.Second))
	deadline := time.After(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	expected := c.ExpectedServices()
	for {
		ready := true
		for serviceType, count := range expected {
			if c.registry.CountByType(serviceType) < count {
				ready = false
				break
			}
		}
		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrLifecycle, ctx.Err())
		case <-deadline:
			return fmt.Errorf("%w: %v: expected %v, registered %d services",
				ErrLifecycle, aierrors.ErrRegistrationTimeout, expected, len(c.registry.All()))
		case <-ticker.C:
		}
	}
}

// BroadcastCommand publishes one command (broadcast, or addressed when
// target is non-empty) and returns its command_id for ACK tracking.
func (c *Controller) BroadcastCommand(command string, payload any, target string) (string, error) {
	commandID := uuid.NewString()

	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", err
		}
		raw = data
	}

	c.mu.Lock()
	c.acks[commandID] = make(map[string]struct{})
	c.mu.Unlock()

	err := c.publisher.Publish(&messages.CommandMessage{
		Envelope: messages.Envelope{
			MessageType: messages.TypeCommand,
			Command:     command,
			CommandID:   commandID,
			RequestNs:   time.Now().UnixNano(),
		},
		Payload: raw,
	}, target)
	return commandID, err
}

// WaitForAcks blocks until expectedCount distinct services have ACKed
// commandID or the timeout elapses.
func (c *Controller) WaitForAcks(ctx context.Context, commandID string, expectedCount int, timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		c.mu.Lock()
		got := len(c.acks[commandID])
		c.mu.Unlock()
		if got >= expectedCount {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrLifecycle, ctx.Err())
		case <-deadline:
			return fmt.Errorf("%w: command %s ACKed by %d of %d services", ErrLifecycle, commandID, got, expectedCount)
		case <-ticker.C:
		}
	}
}

// ConfigurePayload assembles the PROFILE_CONFIGURE payload from UserConfig.
func (c *Controller) ConfigurePayload() messages.ProfileConfigurePayload {
	load := c.userCfg.Load
	payload := messages.ProfileConfigurePayload{
		EndpointType:     c.userCfg.Endpoint.Type,
		EndpointBaseURL:  c.userCfg.Endpoint.BaseURL,
		CustomEndpoint:   c.userCfg.Endpoint.CustomEndpoint,
		Streaming:        c.userCfg.Endpoint.Streaming,
		PrimaryModelName: c.userCfg.Endpoint.PrimaryModelName,
		APIKey:           c.userCfg.Endpoint.APIKey,
		ExtraParams:      c.userCfg.Endpoint.ExtraParams,
		URLParams:        c.userCfg.Endpoint.URLParams,
		Headers:          c.userCfg.Endpoint.Headers,

		LoadMode:       load.Mode,
		RequestRate:    load.RequestRate,
		MaxConcurrency: load.MaxConcurrency,
		RandomSeed:     load.RandomSeed,

		BenchmarkGraceSec: load.BenchmarkGraceSec,
		CancelAfterSec:    load.CancelAfterSec,
		CancelDrainSec:    load.CancelDrainSec,
	}

	if load.TotalRequests > 0 {
		n := load.TotalRequests
		payload.Profiling = messages.CreditPhaseConfig{TotalExpectedRequests: &n}
	} else {
		d := load.DurationSec
		payload.Profiling = messages.CreditPhaseConfig{ExpectedDurationSec: &d}
	}
	if load.WarmupRequests > 0 {
		n := load.WarmupRequests
		payload.Warmup = &messages.CreditPhaseConfig{TotalExpectedRequests: &n}
	} else if load.WarmupDurationSec > 0 {
		d := load.WarmupDurationSec
		payload.Warmup = &messages.CreditPhaseConfig{ExpectedDurationSec: &d}
	}
	return payload
}

// Run drives the full orchestration flow against an already-spawned fleet. It
// returns the final results, or an error wrapping ErrLifecycle for exit
// code 1 situations.
func (c *Controller) Run(ctx context.Context) (*messages.ProfileResults, error) {
	if err := c.WaitForRegistration(ctx); err != nil {
		return nil, err
	}
	c.logger.Info().Msg("all services registered")

	ackTimeout := time.Duration(c.svcCfg.RegistrationTimeoutSec * float64(time.Second))
	totalServices := 0
	for _, n := range c.ExpectedServices() {
		totalServices += n
	}

	configureID, err := c.BroadcastCommand(messages.CommandProfileConfigure, c.ConfigurePayload(), "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLifecycle, err)
	}
	if err := c.WaitForAcks(ctx, configureID, totalServices, ackTimeout); err != nil {
		return nil, err
	}
	c.logger.Info().Msg("profile configured")

	if _, err := c.BroadcastCommand(messages.CommandProfileStart, nil, ""); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLifecycle, err)
	}
	c.logger.Info().Msg("profile started")

	select {
	case <-ctx.Done():
		c.Cancel()
	case <-c.doneCh:
	case results := <-c.resultCh:
		return &results, nil
	}

	// AllRecordsReceived arrived (or cancellation): wait for the
	// summarization result with a generous deadline.
	select {
	case results := <-c.resultCh:
		return &results, nil
	case <-time.After(ackTimeout):
		return nil, fmt.Errorf("%w: no ProcessRecordsResultMessage received", ErrLifecycle)
	}
}

// Cancel broadcasts PROFILE_CANCEL.
func (c *Controller) Cancel() {
	if _, err := c.BroadcastCommand(messages.CommandProfileCancel, nil, ""); err != nil {
		c.logger.Error().Err(err).Msg("cancel broadcast failed")
	}
}

// Shutdown broadcasts SHUTDOWN to every service in reverse registration
// order and waits for deregistrations.
func (c *Controller) Shutdown(ctx context.Context, timeout time.Duration) {
	for _, serviceID := range c.registry.AllServiceIDsReverse() {
		if _, err := c.BroadcastCommand(messages.CommandShutdown, nil, serviceID); err != nil {
			c.logger.Warn().Err(err).Str("service_id", serviceID).Msg("shutdown send failed")
		}
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for len(c.registry.All()) > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			c.logger.Warn().Int("remaining", len(c.registry.All())).Msg("services still registered at shutdown deadline")
			return
		case <-ticker.C:
		}
	}
}
