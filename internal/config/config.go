package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/notifier/internal/mq"
)

// Значения по умолчанию.
const (
	DefaultEmailTopic      = "email"
	DefaultEmailRoutingKey = "notification.email"
	DefaultHTTPPort        = "8082"
	DefaultInspectSchedule = "@every 1m"
	DefaultSMTPPort        = 587
)

// SMTPConfig — параметры почтового сервера.
// Пустой Host означает, что письма только пишутся в лог.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled сообщает, настроена ли реальная отправка.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

// Config — конфигурация процесса notifier-worker.
type Config struct {
	Broker mq.BrokerConfig

	// DatabaseURL — DSN журнала dead-letter. Пустой — журнал отключён.
	DatabaseURL string

	HTTPPort string

	EmailTopic      string
	EmailRoutingKey mq.RoutingKey

	SMTP SMTPConfig

	// InspectSchedule — cron-расписание проверки глубины очередей.
	InspectSchedule string
}

// Load читает конфигурацию из окружения процесса.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom читает конфигурацию через getenv.
func LoadFrom(getenv func(string) string) (*Config, error) {
	l := loader{getenv: getenv}

	cfg := &Config{
		Broker: mq.BrokerConfig{
			URL:                l.required("RABBITMQ_URL"),
			QueueExchange:      mq.Exchange(l.str("QUEUE_EXCHANGE", string(mq.DefaultQueueExchange))),
			RetryExchange:      mq.Exchange(l.str("RETRY_EXCHANGE", string(mq.DefaultRetryExchange))),
			DeadLetterExchange: mq.Exchange(l.str("DEAD_LETTER_EXCHANGE", string(mq.DefaultDeadLetterExchange))),
			MaxRetryAttempts:   l.requiredInt("MAX_RETRY_ATTEMPTS"),
			RetryDelay:         time.Duration(l.requiredInt("RETRY_DELAY_MS")) * time.Millisecond,
			Prefetch:           l.integer("CONSUMER_PREFETCH", mq.DefaultPrefetch),
			Concurrency:        l.integer("CONSUMER_CONCURRENCY", mq.DefaultConcurrency),
			HandlerTimeout:     time.Duration(l.integer("HANDLER_TIMEOUT_MS", int(mq.DefaultHandlerTimeout/time.Millisecond))) * time.Millisecond,
		},
		DatabaseURL:     l.str("DB_URL", ""),
		HTTPPort:        l.str("WORKER_PORT", DefaultHTTPPort),
		EmailTopic:      l.str("EMAIL_QUEUE", DefaultEmailTopic),
		EmailRoutingKey: mq.RoutingKey(l.str("EMAIL_ROUTING_KEY", DefaultEmailRoutingKey)),
		SMTP: SMTPConfig{
			Host:     l.str("SMTP_HOST", ""),
			Port:     l.integer("SMTP_PORT", DefaultSMTPPort),
			Username: l.str("SMTP_USERNAME", ""),
			Password: l.str("SMTP_PASSWORD", ""),
			From:     l.str("SMTP_FROM", ""),
		},
		InspectSchedule: l.str("DLQ_INSPECT_SCHEDULE", DefaultInspectSchedule),
	}

	if l.err != nil {
		return nil, l.err
	}

	if err := cfg.Broker.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if cfg.SMTP.Enabled() && cfg.SMTP.From == "" {
		return nil, fmt.Errorf("%w: SMTP_FROM is required when SMTP_HOST is set", ErrMissing)
	}

	return cfg, nil
}

// loader запоминает первую ошибку, чтобы Load собирал конфиг одним выражением.
type loader struct {
	getenv func(string) string
	err    error
}

func (l *loader) lookup(key string) string {
	return strings.TrimSpace(l.getenv(key))
}

func (l *loader) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

func (l *loader) str(key, def string) string {
	if v := l.lookup(key); v != "" {
		return v
	}
	return def
}

func (l *loader) required(key string) string {
	v := l.lookup(key)
	if v == "" {
		l.fail(fmt.Errorf("%w: %s", ErrMissing, key))
	}
	return v
}

func (l *loader) parseInt(key, v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		l.fail(fmt.Errorf("%w: %s=%q must be a non-negative integer", ErrInvalid, key, v))
		return 0
	}
	return n
}

func (l *loader) integer(key string, def int) int {
	v := l.lookup(key)
	if v == "" {
		return def
	}
	return l.parseInt(key, v)
}

func (l *loader) requiredInt(key string) int {
	v := l.required(key)
	if v == "" {
		return 0
	}
	return l.parseInt(key, v)
}
