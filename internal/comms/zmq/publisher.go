package zmq

import (
	"context"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/messages"
)

// Publisher is the PUB half of the pub/sub pattern: publish is
// non-blocking and unconfirmed; cancellation or bus shutdown swallows
// errors silently, matching the client contract.
type Publisher struct {
	baseClient
	sock zmq4.Socket
}

// NewPublisher dials the broker's pub/sub frontend as a PUB client.
func NewPublisher(ctx context.Context, endpoint string, logger zerolog.Logger, opts SocketOptions) (*Publisher, error) {
	sock := zmq4.NewPub(ctx, buildOptions(opts)...)
	if err := sock.Dial(endpoint); err != nil {
		return nil, aierrors.Wrap(aierrors.KindCommunication, "publisher.dial", err)
	}
	return &Publisher{baseClient: newBaseClient(logger, opts), sock: sock}, nil
}

// Publish encodes msg and sends it as a two-frame PUB message: topic bytes,
// then payload bytes. Addressed publishes pass a service id or service type
// as target to build the addressed topic form; leave it empty for a
// broadcast.
func (p *Publisher) Publish(msg messages.Message, target string) error {
	if p.closed {
		return nil
	}
	payload, err := messages.ToJSON(msg)
	if err != nil {
		p.logger.Error().Err(err).Str("message_type", msg.GetEnvelope().MessageType).Msg("publisher: encode failed")
		return nil
	}

	var topic string
	if target == "" {
		topic = messages.Topic(msg.GetEnvelope().MessageType)
	} else {
		topic = messages.AddressedTopic(msg.GetEnvelope().MessageType, target)
	}

	zmsg := zmq4.NewMsgFrom([]byte(topic), payload)
	if err := p.sock.Send(zmsg); err != nil {
		// Publish failures are swallowed: the caller never blocks
		// or retries on a fire-and-forget channel.
		p.logger.Debug().Err(err).Str("topic", topic).Msg("publisher: send failed, dropped")
	}
	return nil
}

// Close shuts the PUB socket with LINGER=0 semantics (no blocking on close).
func (p *Publisher) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.sock.Close()
}
