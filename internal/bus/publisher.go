package bus

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"github.com/driftline/outreach-backend/internal/model"
)

// EventPublisher fans normalized campaign events out to downstream consumers
// (analytics, CRM sync). Publishing is best-effort: the event row is already
// durable before anything is published.
type EventPublisher interface {
	PublishEvent(e *model.CampaignEvent) error
	Close() error
}

// AMQPPublisher publishes to a durable topic exchange, routing key
// "<channel>.<event_type>".
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open AMQP channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) PublishEvent(e *model.CampaignEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.ch.Publish(
		p.exchange,
		e.EventType, // e.g. email.opened
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		log.Warn().Err(err).Msg("close AMQP channel")
	}
	return p.conn.Close()
}

// NopPublisher is used when no AMQP broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishEvent(*model.CampaignEvent) error { return nil }

func (NopPublisher) Close() error { return nil }

var (
	_ EventPublisher = (*AMQPPublisher)(nil)
	_ EventPublisher = NopPublisher{}
)
