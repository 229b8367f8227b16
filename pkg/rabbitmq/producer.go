/**
 * @description
 * This package provides a producer for publishing transfer events to
 * RabbitMQ so downstream consumers (notification bots, reporting) can react
 * to completed transfers without sitting in the request path. Publishing is
 * best-effort: the ledger is the source of truth and a lost event never
 * fails a transfer.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// TransferEvent is the payload published when a transfer completes.
type TransferEvent struct {
	TransactionID   string    `json:"transaction_id"`
	FromUserID      string    `json:"from_user_id"`
	ToUserID        *string   `json:"to_user_id,omitempty"`
	ToAccountNumber string    `json:"to_account_number"`
	Amount          int64     `json:"amount"`
	Timestamp       time.Time `json:"timestamp"`
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	PublishTransferEvent(ctx context.Context, event TransferEvent) error
	Close()
}

// EventProducer holds the RabbitMQ connection and channel for publishing.
type EventProducer struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	logger   *slog.Logger
}

// NoopPublisher is used when RabbitMQ is not configured or unavailable at
// startup; publishes are skipped with a warning.
type NoopPublisher struct {
	Logger *slog.Logger
}

func (p *NoopPublisher) PublishTransferEvent(ctx context.Context, event TransferEvent) error {
	if p.Logger != nil {
		p.Logger.Warn("transfer event publish skipped, no broker configured",
			"transaction_id", event.TransactionID)
	}
	return nil
}

func (p *NoopPublisher) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer dials RabbitMQ with a bounded timeout and returns a
// producer publishing on the given topic exchange.
func NewEventProducer(amqpURL, exchange string, logger *slog.Logger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch, exchange: exchange, logger: logger}, nil
}

// PublishTransferEvent sends the event with routing key "transfer.completed".
func (p *EventProducer) PublishTransferEvent(ctx context.Context, event TransferEvent) error {
	if err := p.ensureExchange(); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.channel.PublishWithContext(publishCtx,
		p.exchange,
		"transfer.completed",
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (p *EventProducer) ensureExchange() error {
	err := p.channel.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	)
	if err == nil {
		return nil
	}
	p.logger.Warn("exchange declare failed, reopening channel", "exchange", p.exchange, "err", err)
	if p.conn == nil {
		return err
	}
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return chErr
	}
	p.channel = ch
	return p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil)
}

// Close shuts down the channel and connection.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
