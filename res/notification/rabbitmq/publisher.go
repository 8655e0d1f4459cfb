package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RoutingKeyPrefix namespaces every settlement event on the exchange
const RoutingKeyPrefix = "settlement."

// channel is the part of *amqp.Channel the publisher uses
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher emits settlement events to a topic exchange for downstream consumers
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	logger   *log.Logger
	now      func() time.Time
}

// Envelope is the JSON body of every published event
type Envelope struct {
	Kind       string                 `json:"kind"`
	UserID     string                 `json:"userId"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
}

func NewPublisher(url, exchange string, logger *log.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange, logger: logger, now: time.Now}, nil
}

// Notify publishes the event under settlement.<kind>
func (p *Publisher) Notify(ctx context.Context, userID, eventKind string, payload map[string]interface{}) error {
	body, err := json.Marshal(Envelope{
		Kind:       eventKind,
		UserID:     userID,
		Payload:    payload,
		OccurredAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventKind, err)
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKeyPrefix+eventKind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", eventKind, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
