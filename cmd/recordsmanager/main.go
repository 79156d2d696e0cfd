package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	_ "go.uber.org/automaxprocs"

	"github.com/aiperf/aiperf/internal/boot"
	"github.com/aiperf/aiperf/internal/comms"
	"github.com/aiperf/aiperf/internal/recordsmgr"
	"github.com/aiperf/aiperf/internal/telemetry"
)

func main() {
	fabric, err := boot.Setup("records_manager")
	if err != nil {
		os.Stderr.WriteString("records-manager: " + err.Error() + "\n")
		os.Exit(2)
	}
	logger := fabric.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pull, err := fabric.Pull(ctx, comms.ChannelRecords, fabric.SvcCfg.WorkerConcurrentRequests)
	if err != nil {
		logger.Fatal().Err(err).Msg("records pull dial failed")
	}
	subscriber, err := fabric.Subscriber(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("subscriber dial failed")
	}
	publisher, err := fabric.Publisher(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("publisher dial failed")
	}

	hbInterval := time.Duration(fabric.SvcCfg.HeartbeatIntervalSec * float64(time.Second))

	svc, err := recordsmgr.New(uuid.NewString(), logger, pull, subscriber, publisher,
		recordsmgr.NewPrimaryProcessor(), telemetry.NewResultsProcessor(),
		fabric.UserCfg.Load.BenchmarkGraceSec, hbInterval)
	if err != nil {
		logger.Fatal().Err(err).Msg("records manager build failed")
	}

	fabric.ServeMetrics(ctx)
	if err := boot.RunService(ctx, svc, logger); err != nil {
		logger.Fatal().Err(err).Msg("records manager run failed")
	}
}
