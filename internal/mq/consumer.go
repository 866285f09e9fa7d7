package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/notifier/internal/telemetry"
)

var errDeliveriesClosed = errors.New("deliveries channel closed")

// defaultRouteTimeout ограничивает publish в DLX и ack/reject после ошибки обработчика.
const defaultRouteTimeout = 10 * time.Second

// Delivery — доставленное сообщение.
//
// Брокер владеет сообщением до ack; Consumer завершает его ровно одним
// действием: ack, reject или publish в DLX + ack.
type Delivery struct {
	// Topic — topic регистрации, из очереди которой пришло сообщение.
	Topic string

	// Message — распарсенный конверт.
	Message Message

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// MessageID возвращает ID из конверта или из AMQP свойств.
func (d *Delivery) MessageID() string {
	if d.Message.ID != "" {
		return d.Message.ID
	}
	return d.Raw.MessageId
}

// MessageType возвращает тип из конверта или из AMQP свойств.
func (d *Delivery) MessageType() string {
	if d.Message.Type != "" {
		return d.Message.Type
	}
	return d.Raw.Type
}

// DeliverySource — источник доставок. *Connection удовлетворяет этому интерфейсу.
//
// Consume возвращает функцию release, закрывающую AMQP канал подписки.
type DeliverySource interface {
	Consume(queue Queue, prefetch int) (deliveries <-chan amqp.Delivery, release func(), err error)
	ReconnectNotify() <-chan struct{}
}

// Consumer потребляет primary очередь одной регистрации.
type Consumer struct {
	source      DeliverySource
	router      *Router
	reg         Registration
	queue       Queue
	prefetch    int
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger

	routeTimeout     time.Duration
	resubscribeDelay time.Duration

	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Registration — topic, routing key и обработчик.
	Registration Registration

	// Router — решает retry/dead-letter при ошибке обработчика.
	Router *Router

	// Prefetch — количество сообщений для предварительной загрузки.
	Prefetch int

	// Concurrency — количество параллельных обработчиков.
	Concurrency int

	// HandlerTimeout — таймаут одного вызова обработчика.
	HandlerTimeout time.Duration
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(source DeliverySource, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = DefaultPrefetch
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	// Больше обработчиков, чем prefetch, всё равно простаивали бы
	concurrency = min(concurrency, prefetch)

	timeout := cfg.HandlerTimeout
	if timeout <= 0 {
		timeout = DefaultHandlerTimeout
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		source:      source,
		router:      cfg.Router,
		reg:         cfg.Registration,
		queue:       cfg.Registration.Queues().Primary,
		prefetch:    prefetch,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      telemetry.WithTopic(logger, cfg.Registration.Topic).With("queue", cfg.Registration.Queues().Primary),

		routeTimeout:     defaultRouteTimeout,
		resubscribeDelay: reconnectInitialDelay,
	}
}

// Start запускает потребление сообщений. Блокируется до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()

	return c.consume(ctx)
}

// consume — основной цикл потребления.
//
// Подписка пересоздаётся, когда канал доставок закрывается: переподключение
// соединения, basic.cancel от брокера (очередь удалена) или channel exception.
// Между попытками — экспоненциальная задержка; сигнал переподключения будит сразу.
func (c *Consumer) consume(ctx context.Context) error {
	delay := c.resubscribeDelay

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Подписку до переподключения нужно взять заранее, иначе сигнал можно пропустить
		reconnected := c.source.ReconnectNotify()

		deliveries, release, err := c.source.Consume(c.queue, c.prefetch)
		if err != nil {
			c.logger.Error("failed to setup consume", "error", err, "retry_in", delay)
		} else {
			c.logger.Info("consumer started",
				"prefetch", c.prefetch,
				"concurrency", c.concurrency,
				"handler_timeout", c.timeout,
			)

			handled, err := c.processDeliveries(ctx, deliveries)
			if release != nil {
				release()
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if handled > 0 {
				delay = c.resubscribeDelay
			}
			c.logger.Warn("subscription ended, resubscribing", "error", err, "retry_in", delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reconnected:
			c.logger.Info("reconnected, restarting consumer")
			delay = c.resubscribeDelay
		case <-time.After(delay):
			delay = min(delay*2, reconnectMaxDelay)
		}
	}
}

// processDeliveries раздаёт сообщения ограниченному пулу обработчиков
// и возвращает количество обработанных сообщений.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) (int, error) {
	var (
		wg      sync.WaitGroup
		handled atomic.Int64
	)

	for range c.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case raw, ok := <-deliveries:
					if !ok {
						return
					}
					c.handleDelivery(ctx, raw)
					handled.Add(1)
				}
			}
		}()
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return int(handled.Load()), err
	}
	return int(handled.Load()), errDeliveriesClosed
}

// handleDelivery обрабатывает одно сообщение: ack при успехе, Router при ошибке.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	d := &Delivery{Topic: c.reg.Topic, Raw: raw}

	start := time.Now()
	err := c.invoke(ctx, d)
	telemetry.HandlerDuration.WithLabelValues(c.reg.Topic).Observe(time.Since(start).Seconds())

	if err == nil {
		if ackErr := raw.Ack(false); ackErr != nil {
			// Канал закрыт — брокер передоставит сообщение
			c.logger.Error("failed to ack message", "message_id", d.MessageID(), "error", ackErr)
			return
		}

		telemetry.Deliveries.WithLabelValues(c.reg.Topic, telemetry.OutcomeAcked).Inc()
		c.logger.Debug("message processed",
			"message_id", d.MessageID(),
			"type", d.MessageType(),
			"redelivered", raw.Redelivered,
		)
		return
	}

	herr := &HandlerError{Topic: c.reg.Topic, MessageID: d.MessageID(), Err: err}
	c.logger.Warn("handler failed",
		"message_id", d.MessageID(),
		"type", d.MessageType(),
		"error", err,
	)

	if c.router == nil {
		raw.Reject(false)
		return
	}

	// Решение должно дойти до брокера даже при остановке consumer'а,
	// но зависший confirm не держит слот пула дольше routeTimeout
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.routeTimeout)
	defer cancel()

	c.router.Route(rctx, d, c.reg, herr)
}

// invoke парсит конверт и вызывает обработчик с таймаутом.
// Ошибка парсинга и истёкший таймаут считаются ошибкой обработчика.
func (c *Consumer) invoke(ctx context.Context, d *Delivery) error {
	if err := json.Unmarshal(d.Raw.Body, &d.Message); err != nil {
		return fmt.Errorf("%w: unmarshal message: %v", ErrSerialization, err)
	}

	// Отмена ctx не прерывает начатую обработку: остановка ждёт in-flight сообщения
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	hctx = telemetry.WithLogger(hctx, telemetry.WithMessageID(c.logger, d.MessageID()))

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("handler panic: %v", r)
			}
		}()
		done <- c.reg.Handler(hctx, d)
	}()

	select {
	case err := <-done:
		return err
	case <-hctx.Done():
		return fmt.Errorf("%w after %s", ErrHandlerTimeout, c.timeout)
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}
