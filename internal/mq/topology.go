package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Суффиксы имён очередей.
const (
	primaryQueueSuffix    = "_queue"
	retryQueueSuffix      = "_retry_queue"
	deadLetterQueueSuffix = "_dead_letter_queue"

	exchangeKindTopic = "topic"
)

// Аргументы очередей RabbitMQ.
const (
	argDeadLetterExchange   = "x-dead-letter-exchange"
	argDeadLetterRoutingKey = "x-dead-letter-routing-key"
	argMessageTTL           = "x-message-ttl"
)

// QueueTriplet — три очереди одного topic.
type QueueTriplet struct {
	Primary    Queue `json:"primary"`
	Retry      Queue `json:"retry"`
	DeadLetter Queue `json:"dead_letter"`
}

// All возвращает очереди в порядке объявления.
func (q QueueTriplet) All() []Queue {
	return []Queue{q.Primary, q.Retry, q.DeadLetter}
}

// QueueNames строит имена очередей для topic.
func QueueNames(topic string) QueueTriplet {
	return QueueTriplet{
		Primary:    Queue(topic + primaryQueueSuffix),
		Retry:      Queue(topic + retryQueueSuffix),
		DeadLetter: Queue(topic + deadLetterQueueSuffix),
	}
}

// Declarer — операции AMQP канала, нужные для объявления топологии.
// *amqp.Channel удовлетворяет этому интерфейсу.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// SetupTopology объявляет exchanges, queues и bindings для всех регистраций.
// Любая ошибка фатальна для старта.
func SetupTopology(ctx context.Context, conn *Connection, cfg BrokerConfig, registry *Registry) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return DeclareTopology(ch, cfg, registry)
	})
}

// DeclareTopology объявляет топологию через Declarer.
//
// Порядок:
//  1. три exchange (queue, retry, dead-letter)
//  2. для каждого topic: primary → retry → dead-letter queue
//  3. bindings: primary → queueExchange, retry → retryExchange, dlq → deadLetterExchange
//
// Все объявления идемпотентны: существующие очереди с теми же аргументами переиспользуются.
func DeclareTopology(ch Declarer, cfg BrokerConfig, registry *Registry) error {
	if ch == nil {
		return fmt.Errorf("%w: %w", ErrTopology, ErrNotConnected)
	}

	// 1. Exchanges
	if err := declareExchanges(ch, cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrTopology, err)
	}

	regs := registry.Registrations()

	// 2. Queues
	for _, reg := range regs {
		if err := declareQueues(ch, cfg, reg); err != nil {
			return fmt.Errorf("%w: %w", ErrTopology, err)
		}
	}

	// 3. Bindings
	for _, reg := range regs {
		if err := bindQueues(ch, cfg, reg); err != nil {
			return fmt.Errorf("%w: %w", ErrTopology, err)
		}
	}

	return nil
}

// declareExchanges создаёт обменники.
func declareExchanges(ch Declarer, cfg BrokerConfig) error {
	for _, ex := range []Exchange{cfg.QueueExchange, cfg.RetryExchange, cfg.DeadLetterExchange} {
		err := ch.ExchangeDeclare(
			string(ex),        // name
			exchangeKindTopic, // type
			true,              // durable
			false,             // auto-deleted
			false,             // internal
			false,             // no-wait
			nil,               // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}

	return nil
}

// declareQueues создаёт тройку очередей одного topic.
func declareQueues(ch Declarer, cfg BrokerConfig, reg Registration) error {
	names := reg.Queues()

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// primary — rejected сообщения уходят в retry exchange
		{names.Primary, PrimaryQueueArgs(cfg, reg.RoutingKey)},

		// retry — после TTL сообщения возвращаются в queue exchange
		{names.Retry, RetryQueueArgs(cfg, reg.RoutingKey)},

		// dead-letter — терминальная очередь
		{names.DeadLetter, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает тройку очередей к обменникам.
func bindQueues(ch Declarer, cfg BrokerConfig, reg Registration) error {
	names := reg.Queues()

	bindings := []struct {
		queue    Queue
		exchange Exchange
	}{
		{names.Primary, cfg.QueueExchange},
		{names.Retry, cfg.RetryExchange},
		{names.DeadLetter, cfg.DeadLetterExchange},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),        // queue name
			string(reg.RoutingKey), // routing key
			string(b.exchange),     // exchange
			false,                  // no-wait
			nil,                    // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// PrimaryQueueArgs — аргументы primary очереди.
func PrimaryQueueArgs(cfg BrokerConfig, key RoutingKey) amqp.Table {
	return amqp.Table{
		argDeadLetterExchange:   string(cfg.RetryExchange),
		argDeadLetterRoutingKey: string(key),
	}
}

// RetryQueueArgs — аргументы retry очереди.
func RetryQueueArgs(cfg BrokerConfig, key RoutingKey) amqp.Table {
	return amqp.Table{
		argMessageTTL:           cfg.RetryDelay.Milliseconds(),
		argDeadLetterExchange:   string(cfg.QueueExchange),
		argDeadLetterRoutingKey: string(key),
	}
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo(cfg BrokerConfig, registry *Registry) string {
	var b strings.Builder

	b.WriteString("Notifier RabbitMQ Topology:\n")
	fmt.Fprintf(&b, "  exchanges (topic): %s, %s, %s\n", cfg.QueueExchange, cfg.RetryExchange, cfg.DeadLetterExchange)
	fmt.Fprintf(&b, "  retry: max %d attempts, delay %s\n", cfg.MaxRetryAttempts, cfg.RetryDelay)

	for _, reg := range registry.Registrations() {
		q := reg.Queues()
		fmt.Fprintf(&b, "  %s [routing: %s]\n", reg.Topic, reg.RoutingKey)
		fmt.Fprintf(&b, "    %s ← %s (dlx → %s)\n", q.Primary, cfg.QueueExchange, cfg.RetryExchange)
		fmt.Fprintf(&b, "    %s ← %s (ttl, dlx → %s)\n", q.Retry, cfg.RetryExchange, cfg.QueueExchange)
		fmt.Fprintf(&b, "    %s ← %s (manual processing)\n", q.DeadLetter, cfg.DeadLetterExchange)
	}

	return b.String()
}
