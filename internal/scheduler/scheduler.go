package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/notifier/internal/mq"
	"github.com/shaiso/notifier/internal/telemetry"
)

// DefaultTickTimeout — таймаут одного тика.
const DefaultTickTimeout = 10 * time.Second

// QueueInspector читает состояние очереди. *mq.Connection удовлетворяет интерфейсу.
type QueueInspector interface {
	InspectQueue(ctx context.Context, queue mq.Queue) (mq.QueueStats, error)
}

// Inspector по расписанию снимает глубину всех очередей топиков.
type Inspector struct {
	source   QueueInspector
	registry *mq.Registry
	schedule string
	timeout  time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// Config — конфигурация Inspector.
type Config struct {
	Inspector QueueInspector
	Registry  *mq.Registry
	Schedule  string        // cron-выражение (например, "@every 1m")
	Timeout   time.Duration // таймаут тика (default: 10s)
	Logger    *slog.Logger
}

// NewInspector создаёт Inspector и проверяет расписание.
func NewInspector(cfg Config) (*Inspector, error) {
	if cfg.Inspector == nil {
		return nil, ErrNoInspector
	}
	if err := ValidateCronExpr(cfg.Schedule); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTickTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Inspector{
		source:   cfg.Inspector,
		registry: cfg.Registry,
		schedule: cfg.Schedule,
		timeout:  timeout,
		logger:   logger.With("component", "dlq-inspector"),
	}, nil
}

// Start запускает cron. Тики останавливаются при отмене ctx или вызове Stop.
func (i *Inspector) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	_, err := c.AddFunc(i.schedule, func() {
		tickCtx, cancel := context.WithTimeout(ctx, i.timeout)
		defer cancel()

		if _, err := i.Tick(tickCtx); err != nil {
			i.logger.Warn("queue inspection incomplete", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidSchedule, i.schedule, err)
	}

	c.Start()
	i.cron = c

	// Расписание уже разобрано AddFunc, ошибки здесь нет
	next, _ := NextRun(i.schedule, time.Now())
	i.logger.Info("dlq inspector started", "schedule", i.schedule, "next_run", next)

	go func() {
		<-ctx.Done()
		i.Stop()
	}()

	return nil
}

// Stop останавливает cron и ждёт завершения текущего тика.
func (i *Inspector) Stop() {
	i.mu.Lock()
	c := i.cron
	i.cron = nil
	i.mu.Unlock()

	if c == nil {
		return
	}

	<-c.Stop().Done()
	i.logger.Info("dlq inspector stopped")
}

// Tick опрашивает все очереди, обновляет notifier_queue_depth
// и предупреждает о непустых dead-letter очередях.
//
// Ошибка одной очереди не прерывает опрос остальных.
func (i *Inspector) Tick(ctx context.Context) ([]mq.QueueStats, error) {
	var stats []mq.QueueStats
	var errs []error

	for _, reg := range i.registry.Registrations() {
		queues := reg.Queues()

		for _, queue := range queues.All() {
			s, err := i.source.InspectQueue(ctx, queue)
			if err != nil {
				errs = append(errs, fmt.Errorf("inspect %s: %w", queue, err))
				continue
			}

			telemetry.QueueDepth.WithLabelValues(string(queue)).Set(float64(s.Messages))
			stats = append(stats, s)

			if queue == queues.DeadLetter && s.Messages > 0 {
				i.logger.Warn("dead letter queue is not empty",
					"topic", reg.Topic,
					"queue", queue,
					"messages", s.Messages,
				)
			}
		}
	}

	i.logger.Debug("queues inspected", "count", len(stats))

	return stats, errors.Join(errs...)
}
