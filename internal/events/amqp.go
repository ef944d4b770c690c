package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange domain events are published to.
const DefaultExchange = "resto.events"

// Channel is the subset of *amqp.Channel used by the publisher.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher forwards events to a RabbitMQ topic exchange, routed by topic.
type AMQPPublisher struct {
	ch       Channel
	exchange string
	timeout  time.Duration
}

// DialAMQP connects to url and returns a publisher bound to exchange.
func DialAMQP(url, exchange string) (*AMQPPublisher, *amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	pub, err := NewAMQPPublisher(ch, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return pub, conn, nil
}

// NewAMQPPublisher declares the exchange on ch.
func NewAMQPPublisher(ch Channel, exchange string) (*AMQPPublisher, error) {
	if ch == nil {
		return nil, errors.New("events: amqp channel is required")
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare %s: %w", exchange, err)
	}
	return &AMQPPublisher{ch: ch, exchange: exchange, timeout: 3 * time.Second}, nil
}

// Notify publishes the event as a persistent JSON message.
func (p *AMQPPublisher) Notify(ctx context.Context, ev Event) error {
	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.ch.PublishWithContext(pubCtx, p.exchange, ev.Topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID.String(),
		Timestamp:    ev.OccurredAt,
		Type:         ev.Topic,
		Body:         ev.Payload,
	})
}

// Close releases the channel.
func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}
