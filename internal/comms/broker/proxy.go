// Package broker implements Communication Broker: three ZMQ proxies
// (XPUB/XSUB for pub/sub, ROUTER/DEALER for request/reply, PULL/PUSH for
// work queues), each binding a frontend and backend endpoint and pumping
// messages bidirectionally between them. Every other service connects only
// to these six endpoints, never to each other.
//
// Each proxy runs two goroutines copying messages in each direction.
package broker

import (
	"context"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"
)

// Proxy binds a frontend and backend socket and forwards every message
// received on one to the other, preserving multi-frame structure (so ROUTER
// routing-identity frames and PUB/SUB topic frames pass through intact).
type Proxy struct {
	name     string
	frontend zmq4.Socket
	backend  zmq4.Socket
	logger   zerolog.Logger
}

// New builds a Proxy. frontend and backend must already be constructed with
// the correct socket types for the pattern (see broker.go) and not yet
// bound; New calls Listen on both.
func New(name string, frontend, backend zmq4.Socket, frontendEndpoint, backendEndpoint string, logger zerolog.Logger) (*Proxy, error) {
	if err := frontend.Listen(frontendEndpoint); err != nil {
		return nil, err
	}
	if err := backend.Listen(backendEndpoint); err != nil {
		return nil, err
	}
	return &Proxy{
		name:     name,
		frontend: frontend,
		backend:  backend,
		logger:   logger.With().Str("proxy", name).Logger(),
	}, nil
}

// Run pumps messages bidirectionally until ctx is cancelled. It blocks;
// callers run it in its own goroutine per proxy.
func (p *Proxy) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go p.pump(ctx, &wg, p.frontend, p.backend, "frontend->backend")
	go p.pump(ctx, &wg, p.backend, p.frontend, "backend->frontend")
	wg.Wait()
}

func (p *Proxy) pump(ctx context.Context, wg *sync.WaitGroup, src, dst zmq4.Socket, direction string) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := src.Recv()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			p.logger.Debug().Err(err).Str("direction", direction).Msg("proxy: recv failed")
			continue
		}

		if err := dst.Send(msg); err != nil {
			p.logger.Debug().Err(err).Str("direction", direction).Msg("proxy: forward failed")
		}
	}
}

// Close closes both sockets with LINGER=0 semantics.
func (p *Proxy) Close() error {
	err1 := p.frontend.Close()
	err2 := p.backend.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
