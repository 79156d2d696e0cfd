package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	_ "go.uber.org/automaxprocs"

	"github.com/aiperf/aiperf/internal/boot"
	"github.com/aiperf/aiperf/internal/comms"
	"github.com/aiperf/aiperf/internal/telemetry"
)

func main() {
	fabric, err := boot.Setup("telemetry_manager")
	if err != nil {
		os.Stderr.WriteString("telemetry-collector: " + err.Error() + "\n")
		os.Exit(2)
	}
	logger := fabric.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscriber, err := fabric.Subscriber(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("subscriber dial failed")
	}
	pusher, err := fabric.Pusher(ctx, comms.ChannelRecords)
	if err != nil {
		logger.Fatal().Err(err).Msg("records pusher dial failed")
	}
	publisher, err := fabric.Publisher(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("publisher dial failed")
	}

	hbInterval := time.Duration(fabric.SvcCfg.HeartbeatIntervalSec * float64(time.Second))

	svc := telemetry.NewManager(uuid.NewString(), logger, *fabric.TelCfg, subscriber, pusher, publisher, hbInterval)

	fabric.ServeMetrics(ctx)
	if err := boot.RunService(ctx, svc, logger); err != nil {
		logger.Fatal().Err(err).Msg("telemetry manager run failed")
	}
}
