// Package boot holds the startup plumbing every cmd/* entrypoint shares:
// config loading, logger construction, fabric client dialing, the /metrics
// listener, and the Initialize/Start/wait/Stop/Cleanup run loop. It keeps
// each main to the load-config / build / start / wait-signal shape.
package boot

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/comms"
	"github.com/aiperf/aiperf/internal/comms/zmq"
	"github.com/aiperf/aiperf/internal/config"
	"github.com/aiperf/aiperf/internal/logging"
	"github.com/aiperf/aiperf/internal/metrics"
)

// Fabric bundles the loaded configuration with the resolved broker
// endpoints for one service process.
type Fabric struct {
	Logger    zerolog.Logger
	UserCfg   *config.UserConfig
	SvcCfg    *config.ServiceConfig
	TelCfg    *config.TelemetryConfig
	Endpoints comms.Endpoints
	Metrics   *metrics.Registry

	opts zmq.SocketOptions
}

// Setup loads config and builds the process-wide logger for serviceType.
func Setup(serviceType string) (*Fabric, error) {
	uc, sc, tc, err := config.Load(nil)
	if err != nil {
		return nil, err
	}
	logger := logging.New(sc.LogLevel, logging.Format(sc.LogFormat), serviceType, "")

	opts := zmq.DefaultSocketOptions()
	opts.Timeout = time.Duration(sc.RequestTimeoutSec * float64(time.Second))

	return &Fabric{
		Logger:    logger,
		UserCfg:   uc,
		SvcCfg:    sc,
		TelCfg:    tc,
		Endpoints: comms.Resolve(sc),
		Metrics:   metrics.NewRegistry(),
		opts:      opts,
	}, nil
}

// Publisher dials the pub/sub frontend.
func (f *Fabric) Publisher(ctx context.Context) (*zmq.Publisher, error) {
	return zmq.NewPublisher(ctx, f.Endpoints.PubSubFrontend, f.Logger, f.opts)
}

// Subscriber dials the pub/sub backend and starts its receive loop.
func (f *Fabric) Subscriber(ctx context.Context) (*zmq.Subscriber, error) {
	sub, err := zmq.NewSubscriber(ctx, f.Endpoints.PubSubBackend, f.Logger, f.opts)
	if err != nil {
		return nil, err
	}
	go sub.Run(ctx)
	return sub, nil
}

// Pull dials one push channel's backend as a PULL worker and starts its
// receive loop.
func (f *Fabric) Pull(ctx context.Context, channel comms.PushChannel, maxConcurrency int) (*zmq.PullWorker, error) {
	pull, err := zmq.NewPullWorker(ctx, f.Endpoints.PushBackend[channel], f.Logger, f.opts, maxConcurrency)
	if err != nil {
		return nil, err
	}
	go pull.Run(ctx)
	return pull, nil
}

// Pusher dials one push channel's frontend.
func (f *Fabric) Pusher(ctx context.Context, channel comms.PushChannel) (*zmq.Pusher, error) {
	return zmq.NewPusher(ctx, f.Endpoints.PushFrontend[channel], f.Logger, f.opts)
}

// Dealer dials the dealer frontend as a requester and starts its response
// loop.
func (f *Fabric) Dealer(ctx context.Context) (*zmq.DealerRequester, error) {
	dealer, err := zmq.NewDealerRequester(ctx, f.Endpoints.DealerFrontend, f.Logger, f.opts)
	if err != nil {
		return nil, err
	}
	go dealer.Run(ctx)
	return dealer, nil
}

// Router dials the dealer backend as a responder and starts its receive
// loop.
func (f *Fabric) Router(ctx context.Context) (*zmq.RouterResponder, error) {
	router, err := zmq.NewRouterResponder(ctx, f.Endpoints.DealerBackend, f.Logger, f.opts)
	if err != nil {
		return nil, err
	}
	go router.Run(ctx)
	return router, nil
}

// ServeMetrics exposes this process's /metrics on an ephemeral port (every
// service carries one). The bound
// address is logged so scrapers can discover it.
func (f *Fabric) ServeMetrics(ctx context.Context) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		f.Logger.Warn().Err(err).Msg("metrics listener failed")
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", f.Metrics.Handler())
	srv := &http.Server{Handler: mux}

	f.Logger.Info().Str("addr", ln.Addr().String()).Msg("metrics listening")
	go srv.Serve(ln)
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
}

// Runner is the lifecycle surface every service exposes via comms.Service.
type Runner interface {
	Initialize(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Cleanup(ctx context.Context) error
	ShutdownRequested() <-chan struct{}
}

// RunService drives one service to RUNNING, waits for a SHUTDOWN command or
// an OS signal, then stops and cleans up.
func RunService(ctx context.Context, svc Runner, logger zerolog.Logger) error {
	if err := svc.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-ctx.Done():
	case <-sigCh:
		logger.Info().Msg("signal received, shutting down")
	case <-svc.ShutdownRequested():
		logger.Info().Msg("shutdown command received")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svc.Stop(stopCtx); err != nil {
		logger.Error().Err(err).Msg("stop failed")
	}
	return svc.Cleanup(stopCtx)
}
