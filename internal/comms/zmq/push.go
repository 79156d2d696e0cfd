package zmq

import (
	"context"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/messages"
)

// Pusher is the PUSH half of the push/pull pattern: fan-out,
// load-balanced, each message delivered to exactly one consumer. The
// upstream PULL proxy rotates consumers round-robin.
type Pusher struct {
	baseClient
	sock zmq4.Socket
}

// NewPusher dials the broker's push/pull frontend as a PUSH client.
func NewPusher(ctx context.Context, endpoint string, logger zerolog.Logger, opts SocketOptions) (*Pusher, error) {
	sock := zmq4.NewPush(ctx, buildOptions(opts)...)
	if err := sock.Dial(endpoint); err != nil {
		return nil, aierrors.Wrap(aierrors.KindCommunication, "pusher.dial", err)
	}
	return &Pusher{baseClient: newBaseClient(logger, opts), sock: sock}, nil
}

// Push sends msg as a single JSON frame. Unlike Publish this is allowed to
// return an error to the caller: credit returns and record pushes need the
// caller to know a send failed so it can retry with backoff.
func (p *Pusher) Push(ctx context.Context, msg messages.Message) error {
	if p.closed {
		return aierrors.Wrap(aierrors.KindCommunication, "pusher.push", aierrors.ErrAlreadyShutdown)
	}
	payload, err := messages.ToJSON(msg)
	if err != nil {
		return aierrors.Wrap(aierrors.KindCommunication, "pusher.encode", err)
	}
	return retryWithBackoff(ctx, "pusher.push", 3, baseRetryDelay, maxRetryDelay, func() error {
		return p.sock.Send(zmq4.NewMsg(payload))
	})
}

// Close shuts the PUSH socket.
func (p *Pusher) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.sock.Close()
}
