package zmq

import (
	"context"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/messages"
)

// PullWorker is the PULL half of the push/pull pattern: exactly one
// callback per message type; a background loop acquires a concurrency
// semaphore *before* receiving, then spawns the callback and releases the
// semaphore in a deferred func so timeout, cancellation, and panic all
// release it exactly once.
//
// The acquire happens before the blocking receive rather than around the
// callback, which is what lets the upstream PUSH/PULL proxy balance fairly
// across workers.
type PullWorker struct {
	baseClient
	sock zmq4.Socket
	sem  chan struct{}

	mu        sync.Mutex
	callbacks map[string]Callback // message_type -> callback
}

// NewPullWorker dials the broker's push/pull backend as a PULL client.
// maxConcurrency bounds in-flight callback invocations; callers should pass
// config.ServiceConfig.WorkerConcurrentRequests.
func NewPullWorker(ctx context.Context, endpoint string, logger zerolog.Logger, opts SocketOptions, maxConcurrency int) (*PullWorker, error) {
	sock := zmq4.NewPull(ctx, buildOptions(opts)...)
	if err := sock.Dial(endpoint); err != nil {
		return nil, aierrors.Wrap(aierrors.KindCommunication, "pullworker.dial", err)
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 500
	}
	return &PullWorker{
		baseClient: newBaseClient(logger, opts),
		sock:       sock,
		sem:        make(chan struct{}, maxConcurrency),
		callbacks:  make(map[string]Callback),
	}, nil
}

// RegisterPullCallback registers cb for every pulled message of messageType
//. Re-registering the same type
// replaces the callback rather than erroring — callers are expected to call
// this once per type at service init.
func (w *PullWorker) RegisterPullCallback(messageType string, cb Callback) {
	w.mu.Lock()
	w.callbacks[messageType] = cb
	w.mu.Unlock()
}

// Run starts the acquire-before-receive loop It blocks
// until ctx is cancelled or the socket closes.
func (w *PullWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case w.sem <- struct{}{}:
		}

		zmsg, err := w.sock.Recv()
		if err != nil {
			<-w.sem
			if w.closed {
				return
			}
			w.logger.Debug().Err(err).Msg("pullworker: recv failed")
			continue
		}

		if len(zmsg.Frames) == 0 {
			<-w.sem
			continue
		}
		payload := zmsg.Frames[len(zmsg.Frames)-1]
		msg, err := messages.FromJSON(payload)
		if err != nil {
			w.logger.Warn().Err(err).Msg("pullworker: decode failed")
			<-w.sem
			continue
		}

		go w.handle(msg)
	}
}

func (w *PullWorker) handle(msg messages.Message) {
	defer func() {
		<-w.sem
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Msg("pullworker: callback panicked, recovered")
		}
	}()
	w.mu.Lock()
	cb, ok := w.callbacks[msg.GetEnvelope().MessageType]
	w.mu.Unlock()
	if ok && cb != nil {
		cb(msg)
	}
}

// InFlight reports the current number of outstanding callback invocations,
// useful for WorkerHealthMessage.
func (w *PullWorker) InFlight() int { return len(w.sem) }

// Close shuts the PULL socket.
func (w *PullWorker) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.sock.Close()
}
