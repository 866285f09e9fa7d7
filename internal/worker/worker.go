package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shaiso/notifier/internal/mq"
)

// Worker доставляет сообщения всех зарегистрированных топиков.
//
// Для каждой регистрации запускается свой mq.Consumer на primary очередь.
// Ошибки обработчиков уходят в mq.Router (retry или dead-letter).
// Workers масштабируются горизонтально: несколько экземпляров
// могут потреблять из одних и тех же очередей.
type Worker struct {
	source   mq.DeliverySource
	registry *mq.Registry
	router   *mq.Router
	broker   mq.BrokerConfig

	consumers []*mq.Consumer

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	started    bool
	stopped    bool
}

// Config — конфигурация Worker.
type Config struct {
	// Source — источник доставок (*mq.Connection).
	Source mq.DeliverySource

	// Registry — зарегистрированные топики и обработчики.
	Registry *mq.Registry

	// Router — retry/dead-letter для упавших сообщений.
	Router *mq.Router

	// Broker — prefetch, concurrency и таймаут обработчика.
	Broker mq.BrokerConfig

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		source:   cfg.Source,
		registry: cfg.Registry,
		router:   cfg.Router,
		broker:   cfg.Broker.WithDefaults(),
		logger:   logger,
	}
}

// Start запускает по consumer'у на каждую регистрацию и сразу возвращается.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.stopped:
		return ErrWorkerStopped
	case w.started:
		return ErrAlreadyStarted
	case w.source == nil:
		return ErrNoSource
	case w.router == nil:
		return ErrNoRouter
	case w.registry.Len() == 0:
		return ErrNoRegistrations
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel
	w.started = true

	w.logger.Info("starting worker",
		"topics", w.registry.Len(),
		"prefetch", w.broker.Prefetch,
		"concurrency", w.broker.Concurrency,
		"handler_timeout", w.broker.HandlerTimeout,
	)

	for _, reg := range w.registry.Registrations() {
		consumer := mq.NewConsumer(w.source, w.logger, mq.ConsumerConfig{
			Registration:   reg,
			Router:         w.router,
			Prefetch:       w.broker.Prefetch,
			Concurrency:    w.broker.Concurrency,
			HandlerTimeout: w.broker.HandlerTimeout,
		})
		w.consumers = append(w.consumers, consumer)

		w.wg.Add(1)
		go func(topic string) {
			defer w.wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("consumer error", "topic", topic, "error", err)
			}
		}(reg.Topic)
	}

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает consumer'ов и ждёт их завершения.
// Обработчики, уже получившие сообщение, доводят его до ack или reject.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	consumers := w.consumers
	cancel := w.cancelFunc
	w.mu.Unlock()

	w.logger.Info("stopping worker...")

	if cancel != nil {
		cancel()
	}
	for _, c := range consumers {
		c.Stop()
	}

	// Ждём завершения горутин
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}
