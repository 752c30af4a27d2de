package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/models"
)

const exchangeName = "transaction.events"

// TransactionEvent is the payload published on every lifecycle event.
type TransactionEvent struct {
	Event         string          `json:"event"`
	TransactionID string          `json:"transaction_id"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	FromAccount   string          `json:"from_account,omitempty"`
	ToAccount     string          `json:"to_account,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Publisher emits transaction lifecycle events to a topic exchange.
type Publisher struct {
	connection *amqp.Connection
	channel    *amqp.Channel
}

// connectWithRetry dials RabbitMQ with exponential backoff; the broker often
// comes up after the service in a compose environment.
func connectWithRetry(url string, maxRetries int) (*amqp.Connection, error) {
	for i := 0; i < maxRetries; i++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			logrus.Info("Connected to RabbitMQ")
			return conn, nil
		}

		if i < maxRetries-1 {
			wait := time.Duration(1<<uint(i)) * time.Second
			logrus.WithError(err).Warnf("Failed to connect to RabbitMQ (attempt %d/%d), retrying in %v", i+1, maxRetries, wait)
			time.Sleep(wait)
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d retries", maxRetries)
}

func NewPublisher(rabbitmqURL string) (*Publisher, error) {
	conn, err := connectWithRetry(rabbitmqURL, 7)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		connection: conn,
		channel:    ch,
	}, nil
}

// PublishTransactionEvent publishes a lifecycle event with the event name as
// routing key, e.g. transaction.completed.
func (p *Publisher) PublishTransactionEvent(ctx context.Context, tx *models.Transaction, event string) error {
	return p.publish(ctx, event, &TransactionEvent{
		Event:         event,
		TransactionID: tx.TransactionID,
		Type:          tx.Type,
		Status:        tx.Status,
		FromAccount:   tx.FromAccount,
		ToAccount:     tx.ToAccount,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		FailureReason: tx.FailureReason,
		Timestamp:     time.Now().UTC(),
	})
}

// PublishManualActionRequired emits the high-severity event operators alert
// on: a compensation failed and money conservation needs a human.
func (p *Publisher) PublishManualActionRequired(ctx context.Context, tx *models.Transaction) error {
	return p.publish(ctx, "transaction.manual_action_required", &TransactionEvent{
		Event:         "transaction.manual_action_required",
		TransactionID: tx.TransactionID,
		Type:          tx.Type,
		Status:        tx.Status,
		FromAccount:   tx.FromAccount,
		ToAccount:     tx.ToAccount,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		FailureReason: tx.FailureReason,
		Timestamp:     time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, routingKey string, event *TransactionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", routingKey, err)
	}

	return nil
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.connection != nil {
		return p.connection.Close()
	}
	return nil
}

// NoopPublisher satisfies the orchestrator when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishTransactionEvent(context.Context, *models.Transaction, string) error {
	return nil
}

func (NoopPublisher) PublishManualActionRequired(context.Context, *models.Transaction) error {
	return nil
}
