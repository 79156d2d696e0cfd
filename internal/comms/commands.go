package comms

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/comms/zmq"
	"github.com/aiperf/aiperf/internal/messages"
)

// CommandFunc handles one command addressed to (or broadcast at) a service.
// A nil error ACKs the command; an error NACKs it with the error text.
type CommandFunc func(ctx context.Context, cmd *messages.CommandMessage) error

// WireCommands subscribes a service to the command topic in all three forms
// it must accept — broadcast, addressed to its service id, addressed to its
// service type — and publishes a CommandResponseMessage for
// every command received, correlated by command_id. Commands ride
// PUB/SUB rather than DEALER/ROUTER because the dealer proxy load-balances
// to one responder, while PROFILE_CONFIGURE and friends must reach every
// addressed service.
func WireCommands(ctx context.Context, sub *zmq.Subscriber, pub Publisher, serviceID, serviceType string, logger zerolog.Logger, handler CommandFunc) error {
	cb := zmq.Callback(func(msg messages.Message) {
		cmd, ok := msg.(*messages.CommandMessage)
		if !ok {
			return
		}
		err := handler(ctx, cmd)
		if err != nil {
			logger.Error().Err(err).Str("command", cmd.Command).Msg("command handler failed")
		}

		resp := &messages.CommandResponseMessage{
			Envelope: messages.Envelope{
				MessageType: messages.TypeCommandResponse,
				CommandID:   cmd.CommandID,
				RequestID:   cmd.RequestID,
			},
			ServiceID: serviceID,
			Success:   err == nil,
		}
		if err != nil {
			resp.Detail = err.Error()
		}
		pub.Publish(resp, "")
	})

	if err := sub.Subscribe(messages.TypeCommand, cb); err != nil {
		return err
	}
	if err := sub.SubscribeAddressed(messages.TypeCommand, serviceID, cb); err != nil {
		return err
	}
	return sub.SubscribeAddressed(messages.TypeCommand, serviceType, cb)
}
