package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/notifier/internal/domain"
	"github.com/shaiso/notifier/internal/telemetry"
)

// Заголовок истории dead-lettering, который ведёт сам RabbitMQ.
const (
	headerXDeath       = "x-death"
	deathReasonReject  = "rejected"
	deathFieldReason   = "reason"
	deathFieldCount    = "count"
	deathFieldRoutings = "routing-keys"
)

// Action — решение Router'а для упавшего сообщения.
type Action int

const (
	// ActionRequeue — reject без requeue: сообщение уходит в retry очередь
	// и возвращается после TTL.
	ActionRequeue Action = iota

	// ActionDeadLetter — копия публикуется в dead-letter exchange, оригинал ack.
	ActionDeadLetter
)

func (a Action) String() string {
	switch a {
	case ActionRequeue:
		return "requeue"
	case ActionDeadLetter:
		return "dead_letter"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// DeadLetterStore — журнал dead-lettered сообщений.
type DeadLetterStore interface {
	Create(ctx context.Context, dl *domain.DeadLetter) error
}

// Router решает судьбу сообщения, обработчик которого вернул ошибку.
//
// Счётчик попыток не хранится в процессе: он выводится из x-death,
// поэтому рестарт не теряет состояние retry.
type Router struct {
	publisher   ConfirmPublisher
	store       DeadLetterStore
	deadLetter  Exchange
	maxAttempts int
	logger      *slog.Logger
}

// RouterConfig — конфигурация Router.
type RouterConfig struct {
	// Publisher — канал в confirm mode для публикации в dead-letter exchange.
	Publisher ConfirmPublisher

	// Store — журнал dead-letter (опционально).
	Store DeadLetterStore

	Broker BrokerConfig
	Logger *slog.Logger
}

// NewRouter создаёт новый Router.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	broker := cfg.Broker.WithDefaults()

	return &Router{
		publisher:   cfg.Publisher,
		store:       cfg.Store,
		deadLetter:  broker.DeadLetterExchange,
		maxAttempts: broker.MaxRetryAttempts,
		logger:      logger,
	}
}

// Decide возвращает действие по числу прошлых reject'ов.
func Decide(attempts, maxRetryAttempts int) Action {
	if attempts < maxRetryAttempts {
		return ActionRequeue
	}
	return ActionDeadLetter
}

// DeathCount считает прошлые reject'ы сообщения на routing key по заголовку x-death.
// Нет заголовка — 0 (первая ошибка).
func DeathCount(headers amqp.Table, key RoutingKey) int {
	raw, ok := headers[headerXDeath]
	if !ok {
		return 0
	}

	entries, ok := raw.([]interface{})
	if !ok {
		return 0
	}

	total := 0
	for _, e := range entries {
		death := asTable(e)
		if death == nil {
			continue
		}

		if reason, _ := death[deathFieldReason].(string); reason != deathReasonReject {
			continue
		}
		if !containsRoutingKey(death[deathFieldRoutings], key) {
			continue
		}

		total += toInt(death[deathFieldCount])
	}

	return total
}

// Route выполняет решение для упавшего сообщения и возвращает его.
// Сообщение завершается ровно одним действием: reject или (publish в DLX + ack).
func (r *Router) Route(ctx context.Context, d *Delivery, reg Registration, cause error) Action {
	attempts := DeathCount(d.Raw.Headers, reg.RoutingKey)
	action := Decide(attempts, r.maxAttempts)

	logger := telemetry.WithRoutingKey(telemetry.WithTopic(r.logger, reg.Topic), string(reg.RoutingKey))
	logger = telemetry.WithMessageID(logger, d.MessageID()).With(
		"attempt", attempts+1,
		"max_retry_attempts", r.maxAttempts,
	)

	if action == ActionDeadLetter {
		if err := r.publishDeadLetter(ctx, d, reg); err != nil {
			// Копии в DLX нет, ack нельзя: сообщение идёт ещё на круг через retry
			logger.Error("dead-letter publish failed, falling back to retry",
				"error", err,
				"cause", cause,
			)
			action = ActionRequeue
		}
	}

	switch action {
	case ActionDeadLetter:
		if err := d.Raw.Ack(false); err != nil {
			logger.Error("failed to ack dead-lettered message", "error", err)
		}

		r.journal(ctx, d, reg, attempts+1, cause)

		telemetry.Deliveries.WithLabelValues(reg.Topic, telemetry.OutcomeDeadLettered).Inc()
		logger.Error("message dead-lettered",
			"exchange", r.deadLetter,
			"queue", reg.Queues().DeadLetter,
			"error", cause,
		)

	default:
		if err := d.Raw.Reject(false); err != nil {
			logger.Error("failed to reject message", "error", err)
		}

		telemetry.Deliveries.WithLabelValues(reg.Topic, telemetry.OutcomeRequeued).Inc()
		logger.Warn("message scheduled for retry",
			"queue", reg.Queues().Retry,
			"error", cause,
		)
	}

	return action
}

// publishDeadLetter публикует копию с исходными заголовками и свойствами.
//
// Expiration не копируется: dead-letter очередь хранит сообщение до разбора.
// UserId тоже: брокер сверяет его с пользователем соединения и отклонит чужой.
func (r *Router) publishDeadLetter(ctx context.Context, d *Delivery, reg Registration) error {
	if r.publisher == nil {
		return ErrNotConnected
	}

	raw := d.Raw
	return r.publisher.PublishConfirmed(ctx, string(r.deadLetter), string(reg.RoutingKey), amqp.Publishing{
		Headers:         raw.Headers,
		ContentType:     raw.ContentType,
		ContentEncoding: raw.ContentEncoding,
		DeliveryMode:    amqp.Persistent,
		Priority:        raw.Priority,
		CorrelationId:   raw.CorrelationId,
		ReplyTo:         raw.ReplyTo,
		MessageId:       raw.MessageId,
		Timestamp:       raw.Timestamp,
		Type:            raw.Type,
		AppId:           raw.AppId,
		Body:            raw.Body,
	})
}

// journal записывает dead-letter в журнал. Ошибка журнала не влияет на сообщение:
// копия уже лежит в dead-letter очереди.
func (r *Router) journal(ctx context.Context, d *Delivery, reg Registration, attempts int, cause error) {
	if r.store == nil {
		return
	}

	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}

	dl := &domain.DeadLetter{
		ID:          uuid.New(),
		Topic:       reg.Topic,
		RoutingKey:  string(reg.RoutingKey),
		MessageID:   d.MessageID(),
		MessageType: d.MessageType(),
		Payload:     d.Raw.Body,
		Headers:     map[string]any(d.Raw.Headers),
		Attempts:    attempts,
		LastError:   lastError,
		Status:      domain.DeadLetterStatusDead,
		CreatedAt:   time.Now().UTC(),
	}

	if err := r.store.Create(ctx, dl); err != nil {
		r.logger.Warn("failed to journal dead letter",
			"topic", reg.Topic,
			"message_id", dl.MessageID,
			"error", err,
		)
	}
}

func asTable(v interface{}) amqp.Table {
	switch t := v.(type) {
	case amqp.Table:
		return t
	case map[string]interface{}:
		return amqp.Table(t)
	default:
		return nil
	}
}

func containsRoutingKey(v interface{}, key RoutingKey) bool {
	switch keys := v.(type) {
	case []interface{}:
		for _, k := range keys {
			if s, ok := k.(string); ok && s == string(key) {
				return true
			}
		}
	case []string:
		for _, s := range keys {
			if s == string(key) {
				return true
			}
		}
	}
	return false
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return int(n)
	case uint64:
		return int(n)
	default:
		return 0
	}
}
