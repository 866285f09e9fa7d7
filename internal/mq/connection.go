package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Параметры переподключения.
const (
	reconnectInitialDelay = time.Second
	reconnectMaxDelay     = 30 * time.Second
)

// Connection — обёртка над AMQP соединением с автоматическим reconnect.
//
// Особенности:
//   - Одно соединение на процесс
//   - Канал для топологии и отдельный канал в confirm mode для публикаций
//   - Consumer'ы открывают собственные каналы через Consume
//   - Автоматическое переподключение при разрыве (только после успешного старта)
type Connection struct {
	url    string
	logger *slog.Logger

	mu         sync.RWMutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	pubChannel *amqp.Channel

	closed   bool
	closedCh chan struct{}

	// Закрывается и пересоздаётся при каждом переподключении
	reconnected chan struct{}
}

// NewConnection создаёт новое соединение с RabbitMQ.
// Ошибка на старте фатальна и не ретраится: возвращается ErrConnection.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		url:         url,
		logger:      logger,
		closedCh:    make(chan struct{}),
		reconnected: make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	// Запускаем горутину для мониторинга соединения
	go c.watchConnection()

	return c, nil
}

// connect устанавливает соединение и открывает каналы.
func (c *Connection) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	pub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open publish channel: %w", err)
	}

	if err := pub.Confirm(false); err != nil {
		conn.Close()
		return fmt.Errorf("enable publisher confirms: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.pubChannel = pub
	c.mu.Unlock()

	c.logger.Info("connected to RabbitMQ")

	return nil
}

// watchConnection следит за соединением и переподключается при разрыве.
func (c *Connection) watchConnection() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			time.Sleep(time.Second)
			continue
		}

		// Ждём уведомления о закрытии соединения
		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case err := <-notifyClose:
			if err != nil {
				c.logger.Warn("connection closed", "error", err)
			}

			c.reconnect()
		}
	}
}

// reconnect пытается переподключиться с экспоненциальной задержкой.
func (c *Connection) reconnect() {
	delay := reconnectInitialDelay

	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		c.mu.RUnlock()

		c.logger.Info("attempting to reconnect", "delay", delay)

		select {
		case <-c.closedCh:
			return
		case <-time.After(delay):
		}

		if err := c.connect(); err != nil {
			c.logger.Warn("reconnect failed", "error", err)
			delay = min(delay*2, reconnectMaxDelay)
			continue
		}

		c.logger.Info("reconnected to RabbitMQ")

		// Будим всех, кто ждёт переподключения
		c.mu.Lock()
		close(c.reconnected)
		c.reconnected = make(chan struct{})
		c.mu.Unlock()

		return
	}
}

// ReconnectNotify возвращает канал, который закроется при следующем переподключении.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnected
}

// Close закрывает соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.closedCh)

	var errs []error

	for _, ch := range []*amqp.Channel{c.pubChannel, c.channel} {
		if ch == nil {
			continue
		}
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.logger.Info("connection closed")
	return nil
}

// IsConnected проверяет, установлено ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return false
	}

	return !c.conn.IsClosed()
}

// WithChannel выполняет функцию с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if c == nil {
		return ErrNotConnected
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return ErrNotConnected
	}

	return fn(ch)
}

// PublishConfirmed публикует сообщение и ждёт publisher confirm.
// Возвращает nil только после ack брокера.
func (c *Connection) PublishConfirmed(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	if c == nil {
		return ErrNotConnected
	}

	ch, err := c.publishChannel()
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(
		ctx,
		exchange, // exchange
		key,      // routing key
		false,    // mandatory
		false,    // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: wait confirm: %w", ErrPublish, err)
	}
	if !acked {
		return fmt.Errorf("%w: %w", ErrPublish, ErrPublishNacked)
	}

	return nil
}

// publishChannel возвращает канал публикаций. После channel exception
// при живом соединении канал переоткрывается в confirm mode.
func (c *Connection) publishChannel() (*amqp.Channel, error) {
	c.mu.RLock()
	ch := c.pubChannel
	c.mu.RUnlock()

	if ch != nil && !ch.IsClosed() {
		return ch, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Канал мог переоткрыть другой publisher, пока мы ждали блокировку
	if c.pubChannel != nil && !c.pubChannel.IsClosed() {
		return c.pubChannel, nil
	}
	if c.closed || c.conn == nil || c.conn.IsClosed() {
		return nil, ErrNotConnected
	}

	pub, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: reopen publish channel: %w", ErrNotConnected, err)
	}
	if err := pub.Confirm(false); err != nil {
		pub.Close()
		return nil, fmt.Errorf("%w: enable publisher confirms: %w", ErrNotConnected, err)
	}

	c.pubChannel = pub
	c.logger.Info("publish channel reopened")

	return pub, nil
}

// Consume открывает отдельный канал, выставляет prefetch и начинает потребление
// с ручным подтверждением. release закрывает канал подписки.
func (c *Connection) Consume(queue Queue, prefetch int) (<-chan amqp.Delivery, func(), error) {
	if c == nil {
		return nil, nil, ErrNotConnected
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, nil, ErrNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("open consumer channel: %w", err)
	}

	// Устанавливаем prefetch
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(queue), // queue
		"",            // consumer tag (auto-generated)
		false,         // auto-ack (мы ack вручную)
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("consume: %w", err)
	}

	release := func() {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Warn("failed to close consumer channel", "queue", queue, "error", err)
		}
	}

	return deliveries, release, nil
}

// QueueStats — состояние очереди.
type QueueStats struct {
	Queue     Queue `json:"queue"`
	Messages  int   `json:"messages"`
	Consumers int   `json:"consumers"`
}

// InspectQueue возвращает количество сообщений и consumer'ов в очереди.
//
// Passive declare закрывает канал при отсутствии очереди, поэтому
// используется временный канал.
func (c *Connection) InspectQueue(ctx context.Context, queue Queue) (QueueStats, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return QueueStats{}, ErrNotConnected
	}

	if err := ctx.Err(); err != nil {
		return QueueStats{}, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return QueueStats{}, fmt.Errorf("open inspect channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclarePassive(string(queue), true, false, false, false, nil)
	if err != nil {
		return QueueStats{}, fmt.Errorf("inspect queue %s: %w", queue, err)
	}

	return QueueStats{Queue: queue, Messages: q.Messages, Consumers: q.Consumers}, nil
}
