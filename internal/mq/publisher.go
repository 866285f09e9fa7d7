package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/notifier/internal/telemetry"
)

const contentTypeJSON = "application/json"

// ConfirmPublisher публикует сообщение и ждёт подтверждения брокера.
// *Connection удовлетворяет этому интерфейсу.
type ConfirmPublisher interface {
	PublishConfirmed(ctx context.Context, exchange, key string, msg amqp.Publishing) error
}

// Message — конверт сообщения в очереди.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип события (например, ACCOUNT_VERIFICATION).
	Type string `json:"type"`

	// Payload — полезная нагрузка в JSON.
	Payload json.RawMessage `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage сериализует payload и создаёт конверт с новым ID.
func NewMessage(msgType string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal payload: %v", ErrSerialization, err)
	}

	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Publisher публикует сообщения в queue exchange.
type Publisher struct {
	conn     ConfirmPublisher
	exchange Exchange
	logger   *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn ConfirmPublisher, cfg BrokerConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		conn:     conn,
		exchange: cfg.WithDefaults().QueueExchange,
		logger:   logger,
	}
}

// Publish сериализует payload в конверт и публикует его с routing key.
// Возвращает nil только после publisher confirm.
func (p *Publisher) Publish(ctx context.Context, routingKey RoutingKey, msgType string, payload any) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		telemetry.MessagesPublished.WithLabelValues(string(routingKey), telemetry.ResultError).Inc()
		return err
	}

	return p.PublishMessage(ctx, routingKey, msg)
}

// PublishMessage публикует готовый конверт.
func (p *Publisher) PublishMessage(ctx context.Context, routingKey RoutingKey, msg *Message) error {
	if err := p.publish(ctx, routingKey, msg); err != nil {
		telemetry.MessagesPublished.WithLabelValues(string(routingKey), telemetry.ResultError).Inc()
		return err
	}

	telemetry.MessagesPublished.WithLabelValues(string(routingKey), telemetry.ResultOK).Inc()
	return nil
}

func (p *Publisher) publish(ctx context.Context, routingKey RoutingKey, msg *Message) error {
	if p == nil || p.conn == nil {
		return ErrNotConnected
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: marshal message: %v", ErrSerialization, err)
	}

	err = p.conn.PublishConfirmed(ctx, string(p.exchange), string(routingKey), amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    msg.ID,
		Type:         msg.Type,
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			return err
		}
		if !errors.Is(err, ErrPublish) {
			err = fmt.Errorf("%w: %w", ErrPublish, err)
		}
		return fmt.Errorf("publish to %s/%s: %w", p.exchange, routingKey, err)
	}

	p.logger.Debug("published message",
		"exchange", p.exchange,
		"routing_key", routingKey,
		"message_id", msg.ID,
		"type", msg.Type,
	)

	return nil
}

// PublishRaw публикует тело как есть (replay из журнала dead-letter).
// Заголовки не переносятся, поэтому счётчик попыток начинается заново.
func (p *Publisher) PublishRaw(ctx context.Context, routingKey RoutingKey, messageID, msgType string, body []byte) error {
	if p == nil || p.conn == nil {
		return ErrNotConnected
	}

	err := p.conn.PublishConfirmed(ctx, string(p.exchange), string(routingKey), amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Type:         msgType,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		telemetry.MessagesPublished.WithLabelValues(string(routingKey), telemetry.ResultError).Inc()
		if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrPublish) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}

	telemetry.MessagesPublished.WithLabelValues(string(routingKey), telemetry.ResultOK).Inc()
	return nil
}
