package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/aiperf/aiperf/internal/boot"
	"github.com/aiperf/aiperf/internal/config"
	"github.com/aiperf/aiperf/internal/controller"
	"github.com/aiperf/aiperf/internal/messages"
)

// Exit codes: 0 clean completion (including cancelled runs),
// 1 lifecycle error, 2 configuration error.
func main() {
	os.Exit(run())
}

func run() int {
	fabric, err := boot.Setup("system_controller")
	if err != nil {
		os.Stderr.WriteString("controller: " + err.Error() + "\n")
		return 2
	}
	logger := fabric.Logger
	config.LogConfig(logger, fabric.UserCfg, fabric.SvcCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	spawner, err := controller.NewSpawner(logger)
	if err != nil {
		logger.Error().Err(err).Msg("spawner setup failed")
		return 1
	}
	defer spawner.Terminate()

	telemetryEnabled := len(fabric.UserCfg.DCGMURLs) > 0 || fabric.TelCfg.Enabled
	if err := spawner.SpawnFleet(ctx, fabric.UserCfg.NumWorkers, fabric.UserCfg.NumRecordProcessors, telemetryEnabled); err != nil {
		logger.Error().Err(err).Msg("fleet spawn failed")
		return 1
	}

	publisher, err := fabric.Publisher(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("publisher dial failed")
		return 1
	}
	subscriber, err := fabric.Subscriber(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("subscriber dial failed")
		return 1
	}

	ctrl, err := controller.New(logger, publisher, subscriber, fabric.UserCfg, fabric.SvcCfg,
		func(msg messages.Message) { relayProgress(logger, msg) }, nil)
	if err != nil {
		logger.Error().Err(err).Msg("controller build failed")
		return 1
	}

	// SIGINT cancels the run; the run still completes cleanly with
	// was_cancelled set.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("signal received, cancelling run")
		ctrl.Cancel()
	}()

	results, err := ctrl.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("run failed")
		ctrl.Shutdown(ctx, 10*time.Second)
		return 1
	}

	logger.Info().
		Int("completed", results.Completed).
		Bool("was_cancelled", results.WasCancelled).
		Int("metrics", len(results.Records)).
		Int("error_kinds", len(results.ErrorSummary)).
		Msg("profiling run complete")

	ctrl.Shutdown(ctx, 30*time.Second)
	return 0
}

// relayProgress is the UI collaborator boundary: the core
// relays progress here; a real frontend would render it.
func relayProgress(logger zerolog.Logger, msg messages.Message) {
	switch m := msg.(type) {
	case *messages.CreditPhaseProgressMessage:
		logger.Info().
			Str("phase", string(m.CreditPhase)).
			Int("sent", m.Sent).
			Int("completed", m.Completed).
			Int("in_flight", m.InFlight).
			Msg("progress")
	case *messages.CreditPhaseStartMessage:
		logger.Info().Str("phase", string(m.CreditPhase)).Msg("phase started")
	case *messages.CreditPhaseCompleteMessage:
		logger.Info().Str("phase", string(m.CreditPhase)).Int("completed", m.Completed).Msg("phase complete")
	case *messages.TelemetryStatusMessage:
		logger.Info().
			Bool("enabled", m.Enabled).
			Strs("endpoints_reachable", m.EndpointsReachable).
			Msg("telemetry status")
	case *messages.ErrorMessage:
		logger.Warn().Str("error_type", m.ErrorType).Str("error", m.ErrorMessage).Msg("service error")
	}
}
