package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"github.com/Ananth-NQI/convo-followups/internal/followup"
	"github.com/Ananth-NQI/convo-followups/internal/models"
)

// InboundSink applies inbound message events
type InboundSink interface {
	HandleEvent(ctx context.Context, ev models.InboundEvent) error
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth a redelivery
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// DecodeChatInbound turns a chat.inbound.v1 envelope into an InboundEvent
func DecodeChatInbound(body []byte) (models.InboundEvent, error) {
	var env GenericEnvelope[ChatInboundV1]
	if err := json.Unmarshal(body, &env); err != nil {
		return models.InboundEvent{}, fmt.Errorf("decode %s: %w", KeyChatInbound, err)
	}
	data := env.Data
	return models.InboundEvent{
		ConversationID: data.Conversation.ConversationID,
		Direction:      models.DirectionInbound,
		Timestamp:      data.Timestamp(),
		Contact:        data.Conversation.ProviderChatID,
	}, nil
}

// ChatInboundHandler feeds chat.inbound.v1 deliveries to sink. Malformed
// events are dropped; storage errors are retried.
func ChatInboundHandler(sink InboundSink) HandlerFunc {
	return func(ctx context.Context, d amqp091.Delivery) error {
		ev, err := DecodeChatInbound(d.Body)
		if err != nil {
			return Permanent(err)
		}
		if err := sink.HandleEvent(ctx, ev); err != nil {
			if followup.IsValidation(err) {
				return Permanent(err)
			}
			return err
		}
		return nil
	}
}
