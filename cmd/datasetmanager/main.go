package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	_ "go.uber.org/automaxprocs"

	"github.com/aiperf/aiperf/internal/boot"
	"github.com/aiperf/aiperf/internal/datasetmgr"
)

func main() {
	fabric, err := boot.Setup("dataset_manager")
	if err != nil {
		os.Stderr.WriteString("dataset-manager: " + err.Error() + "\n")
		os.Exit(2)
	}
	logger := fabric.Logger

	conversations, err := datasetmgr.LoadConversations(fabric.UserCfg.DatasetPath)
	if err != nil {
		logger.Error().Err(err).Msg("dataset load failed")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router, err := fabric.Router(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("router dial failed")
	}
	subscriber, err := fabric.Subscriber(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("subscriber dial failed")
	}
	publisher, err := fabric.Publisher(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("publisher dial failed")
	}

	store := datasetmgr.NewStore(conversations, fabric.UserCfg.Load.RandomSeed)
	hbInterval := time.Duration(fabric.SvcCfg.HeartbeatIntervalSec * float64(time.Second))

	svc := datasetmgr.New(uuid.NewString(), logger, store, router, subscriber, publisher, hbInterval)

	fabric.ServeMetrics(ctx)
	if err := boot.RunService(ctx, svc, logger); err != nil {
		logger.Fatal().Err(err).Msg("dataset manager run failed")
	}
}
