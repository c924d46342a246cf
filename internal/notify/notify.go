// Package notify publishes collaboration events for downstream consumers
// (e.g. an email worker picking up invite notifications).
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const inviteRoutingKey = "invite.created"

// InviteEvent describes a newly created collaboration invite.
type InviteEvent struct {
	ResourceID        uint      `json:"resourceId"`
	ResourceTitle     string    `json:"resourceTitle"`
	CollaboratorEmail string    `json:"collaboratorEmail"`
	Message           string    `json:"message,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Publisher emits collaboration events. Publishing is best-effort: callers
// log failures and continue, an undelivered notification never fails the
// originating request.
type Publisher interface {
	InviteCreated(ev InviteEvent) error
	Close() error
}

// AMQPPublisher publishes events to a RabbitMQ topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = "openshare.events"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// InviteCreated publishes an invite-created event.
func (p *AMQPPublisher) InviteCreated(ev InviteEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode invite event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.ch.PublishWithContext(ctx, p.exchange, inviteRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) InviteCreated(InviteEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
