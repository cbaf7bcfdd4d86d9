package observer

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"organoid-qc/internal/logger"
)

const publishTimeout = 5 * time.Second

// amqpChannel is the subset of *amqp.Channel the observer needs.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPObserver publishes every event as JSON to a topic exchange. The
// routing key is "<prefix>.<event_type>".
type AMQPObserver struct {
	channel  amqpChannel
	exchange string
	prefix   string
}

// NewAMQPObserver opens a channel on conn and declares the exchange.
func NewAMQPObserver(conn *amqp.Connection, exchange, routingPrefix string) (*AMQPObserver, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true, // durable
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, err
	}

	return newAMQPObserver(ch, exchange, routingPrefix), nil
}

func newAMQPObserver(ch amqpChannel, exchange, routingPrefix string) *AMQPObserver {
	return &AMQPObserver{channel: ch, exchange: exchange, prefix: routingPrefix}
}

func (o *AMQPObserver) routingKey(t EventType) string {
	if o.prefix == "" {
		return string(t)
	}
	return o.prefix + "." + string(t)
}

// OnEvent publishes the event. Failures are logged and otherwise ignored.
func (o *AMQPObserver) OnEvent(ctx context.Context, event QCEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		logger.WithError(err).Error("Failed to encode event")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = o.channel.PublishWithContext(ctx,
		o.exchange,
		o.routingKey(event.EventType),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		logger.WithError(err).WithField("event_type", event.EventType).Warn("Failed to publish event")
	}
}

// GetObserverName returns the observer name
func (o *AMQPObserver) GetObserverName() string {
	return "amqp_observer"
}

// Close closes the channel.
func (o *AMQPObserver) Close() error {
	return o.channel.Close()
}
