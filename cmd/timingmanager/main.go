package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	_ "go.uber.org/automaxprocs"

	"github.com/aiperf/aiperf/internal/boot"
	"github.com/aiperf/aiperf/internal/comms"
	"github.com/aiperf/aiperf/internal/timing"
)

func main() {
	fabric, err := boot.Setup("timing_manager")
	if err != nil {
		os.Stderr.WriteString("timing-manager: " + err.Error() + "\n")
		os.Exit(2)
	}
	logger := fabric.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscriber, err := fabric.Subscriber(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("subscriber dial failed")
	}
	pull, err := fabric.Pull(ctx, comms.ChannelCreditReturn, fabric.SvcCfg.WorkerConcurrentRequests)
	if err != nil {
		logger.Fatal().Err(err).Msg("credit-return pull dial failed")
	}
	pusher, err := fabric.Pusher(ctx, comms.ChannelCreditDrop)
	if err != nil {
		logger.Fatal().Err(err).Msg("credit-drop pusher dial failed")
	}
	publisher, err := fabric.Publisher(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("publisher dial failed")
	}

	admitter := timing.NewAdmitter(fabric.UserCfg.Load.MaxConcurrency)
	hbInterval := time.Duration(fabric.SvcCfg.HeartbeatIntervalSec * float64(time.Second))
	progressInterval := time.Duration(fabric.SvcCfg.ProgressIntervalSec * float64(time.Second))

	svc := timing.NewService(uuid.NewString(), logger, subscriber, pull, pusher, publisher, admitter, nil, hbInterval, progressInterval)

	fabric.ServeMetrics(ctx)
	if err := boot.RunService(ctx, svc, logger); err != nil {
		logger.Fatal().Err(err).Msg("timing manager run failed")
	}
}
