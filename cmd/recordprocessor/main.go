package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	_ "go.uber.org/automaxprocs"

	"github.com/aiperf/aiperf/internal/boot"
	"github.com/aiperf/aiperf/internal/comms"
	"github.com/aiperf/aiperf/internal/recordproc"
)

func main() {
	fabric, err := boot.Setup("record_processor")
	if err != nil {
		os.Stderr.WriteString("record-processor: " + err.Error() + "\n")
		os.Exit(2)
	}
	logger := fabric.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pull, err := fabric.Pull(ctx, comms.ChannelRawInference, fabric.SvcCfg.WorkerConcurrentRequests)
	if err != nil {
		logger.Fatal().Err(err).Msg("raw-inference pull dial failed")
	}
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

	// Tokenizer integration is an external collaborator; nil falls back
	// to the processor's built-in approximation.
	svc := recordproc.New(uuid.NewString(), logger, pull, subscriber, pusher, publisher, nil, hbInterval)

	fabric.ServeMetrics(ctx)
	if err := boot.RunService(ctx, svc, logger); err != nil {
		logger.Fatal().Err(err).Msg("record processor run failed")
	}
}
