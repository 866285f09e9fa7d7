package mq

import (
	"fmt"
	"time"
)

// Значения по умолчанию.
const (
	DefaultQueueExchange      Exchange = "notifier.queue"
	DefaultRetryExchange      Exchange = "notifier.retry"
	DefaultDeadLetterExchange Exchange = "notifier.dead_letter"

	DefaultPrefetch       = 10
	DefaultConcurrency    = 1
	DefaultHandlerTimeout = 30 * time.Second
)

// BrokerConfig — конфигурация брокера, задаётся один раз при старте.
type BrokerConfig struct {
	// URL — AMQP URI.
	URL string

	// Exchanges (все topic, durable).
	QueueExchange      Exchange
	RetryExchange      Exchange
	DeadLetterExchange Exchange

	// MaxRetryAttempts — сколько раз сообщение уходит в retry до dead-letter.
	MaxRetryAttempts int

	// RetryDelay — x-message-ttl retry-очереди.
	RetryDelay time.Duration

	// Prefetch — QoS prefetch count для каждого consumer.
	Prefetch int

	// Concurrency — количество горутин-обработчиков на один consumer.
	// 1 сохраняет FIFO в пределах очереди.
	Concurrency int

	// HandlerTimeout — таймаут одного вызова обработчика.
	// Истечение таймаута считается ошибкой обработчика.
	HandlerTimeout time.Duration
}

// WithDefaults возвращает копию конфигурации с заполненными значениями по умолчанию.
func (c BrokerConfig) WithDefaults() BrokerConfig {
	if c.QueueExchange == "" {
		c.QueueExchange = DefaultQueueExchange
	}
	if c.RetryExchange == "" {
		c.RetryExchange = DefaultRetryExchange
	}
	if c.DeadLetterExchange == "" {
		c.DeadLetterExchange = DefaultDeadLetterExchange
	}
	if c.Prefetch <= 0 {
		c.Prefetch = DefaultPrefetch
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = DefaultHandlerTimeout
	}
	return c
}

// Validate проверяет конфигурацию.
func (c BrokerConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	if c.QueueExchange == "" || c.RetryExchange == "" || c.DeadLetterExchange == "" {
		return fmt.Errorf("%w: all three exchange names are required", ErrInvalidConfig)
	}
	if c.QueueExchange == c.RetryExchange ||
		c.QueueExchange == c.DeadLetterExchange ||
		c.RetryExchange == c.DeadLetterExchange {
		return fmt.Errorf("%w: exchange names must be distinct", ErrInvalidConfig)
	}
	if c.MaxRetryAttempts < 0 {
		return fmt.Errorf("%w: max retry attempts must be >= 0", ErrInvalidConfig)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry delay must be >= 0", ErrInvalidConfig)
	}
	if c.Prefetch < 0 || c.Concurrency < 0 || c.HandlerTimeout < 0 {
		return fmt.Errorf("%w: consumer limits must be >= 0", ErrInvalidConfig)
	}
	return nil
}
