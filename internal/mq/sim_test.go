package mq

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// simBroker — упрощённый брокер в памяти для одной регистрации.
//
// Повторяет поведение RabbitMQ, на которое опирается Router:
//   - publish в queue exchange кладёт сообщение в primary очередь
//   - reject(requeue=false) добавляет запись x-death {reason: rejected}
//     и (TTL retry очереди истекает мгновенно) возвращает сообщение в primary
//   - publish в dead-letter exchange складывает копию в deadLetters
type simBroker struct {
	cfg BrokerConfig
	reg Registration

	mu          sync.Mutex
	nextTag     uint64
	inflight    map[uint64]amqp.Delivery
	acked       []amqp.Delivery
	rejected    int
	deadLetters []amqp.Publishing
	publishErr  error

	primary chan amqp.Delivery
}

func newSimBroker(cfg BrokerConfig, reg Registration) *simBroker {
	return &simBroker{
		cfg:      cfg.WithDefaults(),
		reg:      reg,
		inflight: make(map[uint64]amqp.Delivery),
		primary:  make(chan amqp.Delivery, 128),
	}
}

// --- ConfirmPublisher ---

func (b *simBroker) PublishConfirmed(_ context.Context, exchange, key string, msg amqp.Publishing) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch Exchange(exchange) {
	case b.cfg.QueueExchange:
		if key != string(b.reg.RoutingKey) {
			return nil // нет binding'а — сообщение отброшено брокером
		}
		b.enqueueLocked(amqp.Delivery{
			Headers:      msg.Headers,
			ContentType:  msg.ContentType,
			DeliveryMode: msg.DeliveryMode,
			MessageId:    msg.MessageId,
			Timestamp:    msg.Timestamp,
			Type:         msg.Type,
			Exchange:     exchange,
			RoutingKey:   key,
			Body:         msg.Body,
		})
		return nil

	case b.cfg.DeadLetterExchange:
		if b.publishErr != nil {
			return b.publishErr
		}
		b.deadLetters = append(b.deadLetters, msg)
		return nil

	default:
		return fmt.Errorf("%w: unknown exchange %s", ErrPublish, exchange)
	}
}

// --- DeliverySource ---

func (b *simBroker) Consume(queue Queue, _ int) (<-chan amqp.Delivery, func(), error) {
	if queue != b.reg.Queues().Primary {
		return nil, nil, fmt.Errorf("no queue %s", queue)
	}
	return b.primary, func() {}, nil
}

func (b *simBroker) ReconnectNotify() <-chan struct{} {
	return nil
}

// --- amqp.Acknowledger ---

func (b *simBroker) Ack(tag uint64, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.inflight[tag]
	if !ok {
		return fmt.Errorf("unknown delivery tag %d", tag)
	}
	delete(b.inflight, tag)
	b.acked = append(b.acked, d)
	return nil
}

func (b *simBroker) Nack(tag uint64, _ bool, requeue bool) error {
	return b.Reject(tag, requeue)
}

func (b *simBroker) Reject(tag uint64, requeue bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.inflight[tag]
	if !ok {
		return fmt.Errorf("unknown delivery tag %d", tag)
	}
	delete(b.inflight, tag)
	b.rejected++

	headers := copyTable(d.Headers)
	if !requeue {
		// primary → retry exchange
		headers = addDeath(headers, b.reg.Queues().Primary, deathReasonReject, b.cfg.QueueExchange, d.RoutingKey)
		// retry TTL истёк → queue exchange
		headers = addDeath(headers, b.reg.Queues().Retry, "expired", b.cfg.RetryExchange, d.RoutingKey)
	}

	d.Headers = headers
	d.Redelivered = requeue
	b.enqueueLocked(d)
	return nil
}

func (b *simBroker) enqueueLocked(d amqp.Delivery) {
	b.nextTag++
	d.DeliveryTag = b.nextTag
	d.Acknowledger = b
	b.inflight[d.DeliveryTag] = d
	b.primary <- d
}

func (b *simBroker) snapshot() (acked []amqp.Delivery, rejected int, deadLetters []amqp.Publishing) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]amqp.Delivery(nil), b.acked...), b.rejected, append([]amqp.Publishing(nil), b.deadLetters...)
}

func (b *simBroker) pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inflight)
}

// addDeath повторяет правило RabbitMQ: запись с той же (queue, reason)
// увеличивает count и переносится в начало списка.
func addDeath(headers amqp.Table, queue Queue, reason string, exchange Exchange, key string) amqp.Table {
	var deaths []interface{}
	if existing, ok := headers[headerXDeath].([]interface{}); ok {
		deaths = existing
	}

	var updated []interface{}
	var found amqp.Table
	for _, e := range deaths {
		t := e.(amqp.Table)
		if t["queue"] == string(queue) && t[deathFieldReason] == reason {
			found = copyTable(t)
			found[deathFieldCount] = t[deathFieldCount].(int64) + 1
			continue
		}
		updated = append(updated, t)
	}

	if found == nil {
		found = amqp.Table{
			"queue":            string(queue),
			deathFieldReason:   reason,
			deathFieldCount:    int64(1),
			"exchange":         string(exchange),
			deathFieldRoutings: []interface{}{key},
			"time":             time.Now(),
		}
	}

	headers[headerXDeath] = append([]interface{}{found}, updated...)
	return headers
}

func copyTable(t amqp.Table) amqp.Table {
	out := amqp.Table{}
	for k, v := range t {
		out[k] = v
	}
	return out
}

// --- Другие fakes ---

// recordingPublisher запоминает публикации.
type recordingPublisher struct {
	mu        sync.Mutex
	exchanges []string
	keys      []string
	msgs      []amqp.Publishing
	err       error
}

func (p *recordingPublisher) PublishConfirmed(_ context.Context, exchange, key string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.exchanges = append(p.exchanges, exchange)
	p.keys = append(p.keys, key)
	p.msgs = append(p.msgs, msg)
	return nil
}

// recordingAcker — amqp.Acknowledger, запоминающий вызовы.
type recordingAcker struct {
	mu      sync.Mutex
	acks    int
	rejects int
	requeue []bool
}

func (a *recordingAcker) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *recordingAcker) Nack(tag uint64, multiple, requeue bool) error {
	return a.Reject(tag, requeue)
}

func (a *recordingAcker) Reject(_ uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejects++
	a.requeue = append(a.requeue, requeue)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor ждёт выполнения условия или падает по таймауту.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
