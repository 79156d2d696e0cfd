package broker

import (
	"context"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/comms"
)

// Broker owns the broker proxies: one process hosting an XPUB/XSUB proxy,
// a ROUTER/DEALER proxy, and one PULL/PUSH proxy per logical work queue;
// all inter-service traffic flows through this single process. PUSH/PULL
// has no topic routing, so
// each channel (credit drops, credit returns, raw records, processed
// records) gets its own proxy pair.
type Broker struct {
	pubsub  *Proxy
	dealer  *Proxy
	pushers []*Proxy
}

// NewBroker builds every proxy bound to the endpoints resolved from
// ServiceAddressing.
//
// A PUB socket is only wire-compatible with SUB/XSUB, and a SUB socket
// only with PUB/XPUB, so the frontend (where publishers dial in) binds as
// XSUB and the backend (where subscribers dial in) binds as XPUB. See
// DESIGN.md.
func NewBroker(ctx context.Context, addr comms.ServiceAddressing, logger zerolog.Logger) (*Broker, error) {
	eps := comms.Resolve(addr)

	b := &Broker{}
	closeAll := func() {
		if b.pubsub != nil {
			b.pubsub.Close()
		}
		if b.dealer != nil {
			b.dealer.Close()
		}
		for _, p := range b.pushers {
			p.Close()
		}
	}

	var err error
	b.pubsub, err = New("pubsub", zmq4.NewXSub(ctx), zmq4.NewXPub(ctx), eps.PubSubFrontend, eps.PubSubBackend, logger)
	if err != nil {
		return nil, err
	}

	b.dealer, err = New("dealer", zmq4.NewRouter(ctx), zmq4.NewDealer(ctx), eps.DealerFrontend, eps.DealerBackend, logger)
	if err != nil {
		closeAll()
		return nil, err
	}

	for _, ch := range comms.PushChannels {
		p, err := New("push-"+string(ch), zmq4.NewPull(ctx), zmq4.NewPush(ctx), eps.PushFrontend[ch], eps.PushBackend[ch], logger)
		if err != nil {
			closeAll()
			return nil, err
		}
		b.pushers = append(b.pushers, p)
	}

	return b, nil
}

// Run starts every proxy and blocks until ctx is cancelled.
func (b *Broker) Run(ctx context.Context) {
	all := append([]*Proxy{b.pubsub, b.dealer}, b.pushers...)
	done := make(chan struct{}, len(all))
	for _, p := range all {
		p := p
		go func() { p.Run(ctx); done <- struct{}{} }()
	}
	for range all {
		<-done
	}
}

// Close tears down every proxy.
func (b *Broker) Close() error {
	var firstErr error
	for _, p := range append([]*Proxy{b.pubsub, b.dealer}, b.pushers...) {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
