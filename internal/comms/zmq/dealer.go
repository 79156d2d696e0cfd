package zmq

import (
	"context"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/messages"
)

// ResponseCallback handles one correlated DEALER response.
type ResponseCallback func(msg messages.Message)

// DealerRequester is the DEALER half of the request/response pattern.
// request_async registers request_id -> callback and sends; a background
// loop receives responses and dispatches by request_id. Response ordering
// is not guaranteed to match request order.
type DealerRequester struct {
	baseClient
	sock zmq4.Socket

	mu        sync.Mutex
	responses map[string]ResponseCallback
}

// NewDealerRequester dials the broker's dealer frontend as a DEALER client.
func NewDealerRequester(ctx context.Context, endpoint string, logger zerolog.Logger, opts SocketOptions) (*DealerRequester, error) {
	sock := zmq4.NewDealer(ctx, buildOptions(opts)...)
	if err := sock.Dial(endpoint); err != nil {
		return nil, aierrors.Wrap(aierrors.KindCommunication, "dealer.dial", err)
	}
	return &DealerRequester{
		baseClient: newBaseClient(logger, opts),
		sock:       sock,
		responses:  make(map[string]ResponseCallback),
	}, nil
}

// RequestAsync registers msg.request_id -> cb and sends msg, returning as
// soon as the send completes (not when a response arrives).
func (d *DealerRequester) RequestAsync(msg messages.Message, cb ResponseCallback) error {
	env := msg.GetEnvelope()
	if env.RequestID == "" {
		return aierrors.Wrap(aierrors.KindCommunication, "dealer.request_async", aierrors.ErrInvalidState)
	}
	payload, err := messages.ToJSON(msg)
	if err != nil {
		return aierrors.Wrap(aierrors.KindCommunication, "dealer.encode", err)
	}

	d.mu.Lock()
	d.responses[env.RequestID] = cb
	d.mu.Unlock()

	if err := d.sock.Send(zmq4.NewMsg(payload)); err != nil {
		d.mu.Lock()
		delete(d.responses, env.RequestID)
		d.mu.Unlock()
		return aierrors.Wrap(aierrors.KindCommunication, "dealer.send", err)
	}
	return nil
}

// Request wraps RequestAsync in a blocking call bounded by timeout.
func (d *DealerRequester) Request(ctx context.Context, msg messages.Message, timeout time.Duration) (messages.Message, error) {
	resultCh := make(chan messages.Message, 1)
	if err := d.RequestAsync(msg, func(resp messages.Message) {
		select {
		case resultCh <- resp:
		default:
		}
	}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-resultCh:
		return resp, nil
	case <-timer.C:
		d.mu.Lock()
		delete(d.responses, msg.GetEnvelope().RequestID)
		d.mu.Unlock()
		return nil, aierrors.Wrap(aierrors.KindCommunication, "dealer.request", context.DeadlineExceeded)
	case <-ctx.Done():
		d.mu.Lock()
		delete(d.responses, msg.GetEnvelope().RequestID)
		d.mu.Unlock()
		return nil, aierrors.Wrap(aierrors.KindCommunication, "dealer.request", ctx.Err())
	}
}

// Run starts the background response-receive loop.
func (d *DealerRequester) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		zmsg, err := d.sock.Recv()
		if err != nil {
			if d.closed {
				return
			}
			d.logger.Debug().Err(err).Msg("dealer: recv failed")
			continue
		}
		if len(zmsg.Frames) == 0 {
			continue
		}
		payload := zmsg.Frames[len(zmsg.Frames)-1]
		msg, err := messages.FromJSON(payload)
		if err != nil {
			d.logger.Warn().Err(err).Msg("dealer: decode failed")
			continue
		}

		requestID := msg.GetEnvelope().RequestID
		d.mu.Lock()
		cb, ok := d.responses[requestID]
		if ok {
			delete(d.responses, requestID)
		}
		d.mu.Unlock()

		if ok && cb != nil {
			go cb(msg)
		} else {
			d.logger.Debug().Str("request_id", requestID).Msg("dealer: response for unknown request_id, dropped")
		}
	}
}

// Close shuts the DEALER socket.
func (d *DealerRequester) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.sock.Close()
}
