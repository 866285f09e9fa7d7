// Notifier Worker — доставляет уведомления из RabbitMQ.
//
// Worker:
//   - Объявляет топологию (queue, retry и dead-letter exchanges и очереди)
//   - Потребляет очереди всех зарегистрированных топиков
//   - Повторяет упавшие сообщения через retry-очередь с TTL
//   - После MAX_RETRY_ATTEMPTS переносит сообщение в dead-letter очередь
//   - Отдаёт admin API, /healthz и /metrics
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/notifier/internal/api"
	"github.com/shaiso/notifier/internal/config"
	"github.com/shaiso/notifier/internal/mq"
	"github.com/shaiso/notifier/internal/notification"
	"github.com/shaiso/notifier/internal/repo"
	"github.com/shaiso/notifier/internal/scheduler"
	"github.com/shaiso/notifier/internal/telemetry"
	"github.com/shaiso/notifier/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting notifier-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// RabbitMQ: без брокера работать нечем, ошибка на старте фатальна
	mqConn, err := mq.NewConnection(cfg.Broker.URL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	publisher := mq.NewPublisher(mqConn, cfg.Broker, logger)
	events := notification.NewEvents(publisher, cfg.EmailRoutingKey)

	// Регистрируем обработчики топиков
	service := notification.NewService(newSender(cfg.SMTP, logger), cfg.SMTP.From, logger)
	registry, err := service.Register(mq.NewRegistryBuilder(), cfg.EmailTopic, cfg.EmailRoutingKey).Build()
	if err != nil {
		logger.Error("invalid handler registration", "error", err)
		os.Exit(1)
	}

	// Создаём топологию
	if err := mq.SetupTopology(ctx, mqConn, cfg.Broker, registry); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	logger.Info("topology declared", "topology", mq.TopologyInfo(cfg.Broker, registry))

	// Журнал dead-letter (опционально)
	var store mq.DeadLetterStore
	var deadLetters api.DeadLetterStore
	if cfg.DatabaseURL != "" {
		pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		dlRepo := repo.NewDeadLetterRepo(pool)
		if err := dlRepo.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare dead letter journal", "error", err)
			os.Exit(1)
		}
		store, deadLetters = dlRepo, dlRepo
		logger.Info("dead letter journal enabled")
	} else {
		logger.Warn("DB_URL is not set, dead letter journal disabled")
	}

	router := mq.NewRouter(mq.RouterConfig{
		Publisher: mqConn,
		Store:     store,
		Broker:    cfg.Broker,
		Logger:    logger,
	})

	// Создаём worker
	w := worker.New(worker.Config{
		Source:   mqConn,
		Registry: registry,
		Router:   router,
		Broker:   cfg.Broker,
		Logger:   logger,
	})

	// Запускаем worker
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// Проверка dead-letter очередей по расписанию
	inspector, err := scheduler.NewInspector(scheduler.Config{
		Inspector: mqConn,
		Registry:  registry,
		Schedule:  cfg.InspectSchedule,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("invalid inspector schedule", "error", err)
		os.Exit(1)
	}
	if err := inspector.Start(ctx); err != nil {
		logger.Error("failed to start inspector", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics + admin API
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !mqConn.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("rabbitmq disconnected"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler := api.NewHandler(api.Config{
		DeadLetters:   deadLetters,
		Replayer:      publisher,
		Notifications: events,
		Inspector:     mqConn,
		Broker:        cfg.Broker,
		Registry:      registry,
		Logger:        logger,
	})
	handler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}

	// Останавливаем worker
	inspector.Stop()
	w.Stop()
	logger.Info("notifier-worker stopped")
}

// newSender выбирает отправителя писем: SMTP, если он настроен, иначе лог.
func newSender(cfg config.SMTPConfig, logger *slog.Logger) notification.Sender {
	if !cfg.Enabled() {
		logger.Warn("SMTP_HOST is not set, emails will only be logged")
		return notification.NewLogSender(logger)
	}

	return notification.NewSMTPSender(notification.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	}, logger)
}
