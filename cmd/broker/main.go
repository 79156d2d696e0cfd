package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/aiperf/aiperf/internal/boot"
	"github.com/aiperf/aiperf/internal/comms/broker"
)

func main() {
	fabric, err := boot.Setup("broker")
	if err != nil {
		os.Stderr.WriteString("broker: " + err.Error() + "\n")
		os.Exit(2)
	}
	logger := fabric.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := broker.NewBroker(ctx, fabric.SvcCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("broker startup failed")
	}
	defer b.Close()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Info().Msg("signal received, shutting down")
		cancel()
	}()

	logger.Info().Msg("broker running")
	b.Run(ctx)
}
