package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	_ "go.uber.org/automaxprocs"

	"github.com/aiperf/aiperf/internal/boot"
	"github.com/aiperf/aiperf/internal/comms"
	"github.com/aiperf/aiperf/internal/platform"
	"github.com/aiperf/aiperf/internal/worker"
)

func main() {
	fabric, err := boot.Setup("worker")
	if err != nil {
		os.Stderr.WriteString("worker: " + err.Error() + "\n")
		os.Exit(2)
	}
	logger := fabric.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pull, err := fabric.Pull(ctx, comms.ChannelCreditDrop, fabric.SvcCfg.WorkerConcurrentRequests)
	if err != nil {
		logger.Fatal().Err(err).Msg("credit-drop pull dial failed")
	}
	subscriber, err := fabric.Subscriber(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("subscriber dial failed")
	}
	recordPusher, err := fabric.Pusher(ctx, comms.ChannelRawInference)
	if err != nil {
		logger.Fatal().Err(err).Msg("record pusher dial failed")
	}
	returnPusher, err := fabric.Pusher(ctx, comms.ChannelCreditReturn)
	if err != nil {
		logger.Fatal().Err(err).Msg("credit-return pusher dial failed")
	}
	publisher, err := fabric.Publisher(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("publisher dial failed")
	}
	dealer, err := fabric.Dealer(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("dealer dial failed")
	}
	sampler, err := platform.NewSampler()
	if err != nil {
		logger.Fatal().Err(err).Msg("process sampler failed")
	}

	dealerTimeout := time.Duration(fabric.SvcCfg.DealerTimeoutSec * float64(time.Second))
	transport := worker.NewTransport(time.Duration(fabric.SvcCfg.RequestTimeoutSec*float64(time.Second)), logger)
	hbInterval := time.Duration(fabric.SvcCfg.HeartbeatIntervalSec * float64(time.Second))
	progressInterval := time.Duration(fabric.SvcCfg.ProgressIntervalSec * float64(time.Second))

	svc := worker.New(uuid.NewString(), logger, pull, subscriber, recordPusher, returnPusher, publisher,
		worker.NewDealerResolver(dealer, dealerTimeout), transport, sampler, hbInterval, progressInterval)

	fabric.ServeMetrics(ctx)
	if err := boot.RunService(ctx, svc, logger); err != nil {
		logger.Fatal().Err(err).Msg("worker run failed")
	}
}
