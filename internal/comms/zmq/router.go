package zmq

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/messages"
)

// Handler processes one request and returns a response, or nil/error. A nil
// response with a nil error produces a NO_RESPONSE ErrorMessage; a
// non-nil error produces an ErrorMessage built from aierrors.FromError.
type Handler func(ctx context.Context, req messages.Message) (messages.Message, error)

// RouterResponder is the ROUTER half of the request/response pattern.
// register_request_handler is 1:1 per message type; a background loop
// receives (routing envelope, payload), spawns the handler, and
// asynchronously sends the result back preserving the routing envelope. A
// ROUTER handler never leaks a routing envelope: exactly one frame is sent
// back for every received request.
type RouterResponder struct {
	baseClient
	sock zmq4.Socket

	mu       sync.Mutex
	handlers map[string]Handler // message_type -> handler
}

// NewRouterResponder dials the broker's dealer backend as a ROUTER client.
func NewRouterResponder(ctx context.Context, endpoint string, logger zerolog.Logger, opts SocketOptions) (*RouterResponder, error) {
	sock := zmq4.NewRouter(ctx, buildOptions(opts)...)
	if err := sock.Dial(endpoint); err != nil {
		return nil, aierrors.Wrap(aierrors.KindCommunication, "router.dial", err)
	}
	return &RouterResponder{
		baseClient: newBaseClient(logger, opts),
		sock:       sock,
		handlers:   make(map[string]Handler),
	}, nil
}

// RegisterRequestHandler registers h for messageType. Re-registering the
// same type replaces the handler (service init calls this once per type it
// serves).
func (r *RouterResponder) RegisterRequestHandler(messageType string, h Handler) {
	r.mu.Lock()
	r.handlers[messageType] = h
	r.mu.Unlock()
}

// Run starts the background receive loop: pull the routing identity frame
// off the front, decode the remaining payload, dispatch, and always send
// exactly one frame back addressed to the same identity.
func (r *RouterResponder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		zmsg, err := r.sock.Recv()
		if err != nil {
			if r.closed {
				return
			}
			r.logger.Debug().Err(err).Msg("router: recv failed")
			continue
		}
		if len(zmsg.Frames) < 2 {
			continue
		}
		identity := zmsg.Frames[0]
		payload := zmsg.Frames[len(zmsg.Frames)-1]

		req, err := messages.FromJSON(payload)
		if err != nil {
			r.logger.Warn().Err(err).Msg("router: decode failed")
			r.sendError(identity, req, aierrors.ErrorDetails{Type: "DecodeError", Message: err.Error()}, "")
			continue
		}

		r.mu.Lock()
		h, ok := r.handlers[req.GetEnvelope().MessageType]
		r.mu.Unlock()

		go r.handle(ctx, identity, req, h, ok)
	}
}

func (r *RouterResponder) handle(ctx context.Context, identity []byte, req messages.Message, h Handler, ok bool) {
	requestID := req.GetEnvelope().RequestID
	if !ok || h == nil {
		r.sendError(identity, req, aierrors.ErrorDetails{
			Type:    messages.NoResponseErrorType,
			Message: fmt.Sprintf("no handler registered for message_type=%q", req.GetEnvelope().MessageType),
		}, requestID)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("router: handler panicked, recovered")
			r.sendError(identity, req, aierrors.ErrorDetails{Type: "PanicError", Message: fmt.Sprintf("%v", rec)}, requestID)
		}
	}()

	resp, err := h(ctx, req)
	if err != nil {
		r.sendError(identity, req, aierrors.FromError(err), requestID)
		return
	}
	if resp == nil {
		r.sendError(identity, req, aierrors.ErrorDetails{Type: messages.NoResponseErrorType, Message: "handler returned no response"}, requestID)
		return
	}
	r.send(identity, resp)
}

func (r *RouterResponder) sendError(identity []byte, req messages.Message, details aierrors.ErrorDetails, requestID string) {
	errMsg := &messages.ErrorMessage{
		Envelope:     messages.Envelope{MessageType: messages.TypeError, RequestID: requestID},
		ErrorType:    details.Type,
		ErrorCode:    details.Code,
		ErrorMessage: details.Message,
	}
	r.send(identity, errMsg)
}

func (r *RouterResponder) send(identity []byte, resp messages.Message) {
	payload, err := messages.ToJSON(resp)
	if err != nil {
		r.logger.Error().Err(err).Msg("router: encode response failed, routing envelope dropped")
		return
	}
	zmsg := zmq4.NewMsgFrom(identity, payload)
	if err := r.sock.Send(zmsg); err != nil {
		r.logger.Debug().Err(err).Msg("router: send response failed")
	}
}

// Close shuts the ROUTER socket.
func (r *RouterResponder) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.sock.Close()
}
