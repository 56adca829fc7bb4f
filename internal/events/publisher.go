package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/Ananth-NQI/convo-followups/internal/models"
)

// Publisher sends dispatch results to the platform exchange
type Publisher struct {
	conn     *amqp091.Connection
	exchange string
	log      *slog.Logger
}

// NewPublisher declares the exchange on conn and returns a publisher
func NewPublisher(conn *amqp091.Connection, exchange string, logger *slog.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{conn: conn, exchange: exchange, log: logger}, nil
}

// Publish sends an envelope under key
func (p *Publisher) Publish(ctx context.Context, key string, msg Envelope) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if msg.Meta.ID == "" {
		msg.Meta.ID = uuid.NewString()
	}
	if msg.Meta.Time.IsZero() {
		msg.Meta.Time = time.Now().UTC()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	cid := msg.Meta.ID
	if msg.Meta.CorrelationID != nil {
		cid = *msg.Meta.CorrelationID
	}

	err = ch.PublishWithContext(
		ctx, p.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     msg.Meta.ID,
			CorrelationId: cid,
			Timestamp:     msg.Meta.Time,
			Body:          body,
		},
	)
	if err == nil {
		p.log.Debug("published", slog.String("key", key), slog.String("exchange", p.exchange))
	}
	return err
}

// PublishResult reports one dispatch attempt
func (p *Publisher) PublishResult(ctx context.Context, result models.DispatchResult) error {
	return p.Publish(ctx, KeyFollowUpDispatched, ResultEnvelope(result))
}

// ResultEnvelope wraps a dispatch result for the bus
func ResultEnvelope(result models.DispatchResult) Envelope {
	name := producer
	return Envelope{
		Meta: Meta{
			ID:       uuid.NewString(),
			Producer: &name,
			Time:     result.At,
			Type:     KeyFollowUpDispatched,
		},
		Data: result,
	}
}
