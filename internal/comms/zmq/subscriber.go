package zmq

import (
	"context"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/messages"
)

// Callback handles one deserialized message delivered to a Subscriber or
// PullWorker.
type Callback func(msg messages.Message)

// Subscriber is the SUB half subscribe(type, callback) and
// subscribe_all(map) register callbacks keyed by topic prefix; a background
// receive loop deserializes and dispatches to every callback registered for
// the topic concurrently. A callback panic is recovered and logged, never
// stopping the loop.
type Subscriber struct {
	baseClient
	sock zmq4.Socket

	mu        sync.Mutex
	callbacks map[string][]Callback // topic prefix -> callbacks
}

// NewSubscriber dials the broker's pub/sub backend as a SUB client.
func NewSubscriber(ctx context.Context, endpoint string, logger zerolog.Logger, opts SocketOptions) (*Subscriber, error) {
	sock := zmq4.NewSub(ctx, buildOptions(opts)...)
	if err := sock.Dial(endpoint); err != nil {
		return nil, aierrors.Wrap(aierrors.KindCommunication, "subscriber.dial", err)
	}
	return &Subscriber{
		baseClient: newBaseClient(logger, opts),
		sock:       sock,
		callbacks:  make(map[string][]Callback),
	}, nil
}

// Subscribe registers cb for every broadcast (unaddressed) message of
// messageType and subscribes the underlying socket to that prefix.
func (s *Subscriber) Subscribe(messageType string, cb Callback) error {
	return s.subscribePrefix(messages.TopicPrefix(messageType), cb)
}

// SubscribeAddressed registers cb for messages of messageType addressed to
// target.
func (s *Subscriber) SubscribeAddressed(messageType, target string, cb Callback) error {
	return s.subscribePrefix(messages.TopicPrefixAddressed(messageType, target), cb)
}

// SubscribeAll registers every (messageType -> callback) pair in m as
// broadcast subscriptions in one call.
// A service that accepts either addressed or broadcast traffic for a type
// must call both Subscribe and SubscribeAddressed explicitly.
func (s *Subscriber) SubscribeAll(m map[string]Callback) error {
	for messageType, cb := range m {
		if err := s.Subscribe(messageType, cb); err != nil {
			return err
		}
	}
	return nil
}

func (s *Subscriber) subscribePrefix(prefix string, cb Callback) error {
	if err := s.sock.SetOption(zmq4.OptionSubscribe, prefix); err != nil {
		return aierrors.Wrap(aierrors.KindCommunication, "subscriber.subscribe", err)
	}
	s.mu.Lock()
	s.callbacks[prefix] = append(s.callbacks[prefix], cb)
	s.mu.Unlock()
	return nil
}

// Run starts the background receive loop. It blocks until the socket
// closes or ctx is cancelled; callers run it in its own goroutine.
func (s *Subscriber) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		zmsg, err := s.sock.Recv()
		if err != nil {
			if s.closed {
				return
			}
			s.logger.Debug().Err(err).Msg("subscriber: recv failed")
			continue
		}
		if len(zmsg.Frames) < 2 {
			continue
		}
		topic := string(zmsg.Frames[0])
		payload := zmsg.Frames[1]

		msg, err := messages.FromJSON(payload)
		if err != nil {
			s.logger.Warn().Err(err).Str("topic", topic).Msg("subscriber: decode failed")
			continue
		}

		s.mu.Lock()
		var matched []Callback
		for prefix, cbs := range s.callbacks {
			if hasPrefix(topic, prefix) {
				matched = append(matched, cbs...)
			}
		}
		s.mu.Unlock()

		for _, cb := range matched {
			go s.dispatch(cb, msg)
		}
	}
}

func (s *Subscriber) dispatch(cb Callback, msg messages.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("subscriber: callback panicked, recovered")
		}
	}()
	cb(msg)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Close shuts the SUB socket.
func (s *Subscriber) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sock.Close()
}
