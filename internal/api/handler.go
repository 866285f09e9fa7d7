package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/notifier/internal/domain"
	"github.com/shaiso/notifier/internal/mq"
	"github.com/shaiso/notifier/internal/repo"
)

// DeadLetterStore — журнал dead-letter. *repo.DeadLetterRepo удовлетворяет интерфейсу.
type DeadLetterStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DeadLetter, error)
	List(ctx context.Context, filter repo.DeadLetterFilter) ([]domain.DeadLetter, error)
	Count(ctx context.Context, filter repo.DeadLetterFilter) (int, error)
	MarkReplayed(ctx context.Context, id uuid.UUID, at time.Time) error
	RevertReplay(ctx context.Context, id uuid.UUID) error
}

// Replayer повторно публикует тело сообщения. *mq.Publisher удовлетворяет интерфейсу.
type Replayer interface {
	PublishRaw(ctx context.Context, routingKey mq.RoutingKey, messageID, msgType string, body []byte) error
}

// NotificationSender ставит запрос на письмо в очередь. *notification.Events удовлетворяет интерфейсу.
type NotificationSender interface {
	SendEmailRequest(ctx context.Context, req domain.EmailRequest) error
}

// QueueInspector читает состояние очереди. *mq.Connection удовлетворяет интерфейсу.
type QueueInspector interface {
	InspectQueue(ctx context.Context, queue mq.Queue) (mq.QueueStats, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	deadLetters   DeadLetterStore
	replayer      Replayer
	notifications NotificationSender
	inspector     QueueInspector
	broker        mq.BrokerConfig
	registry      *mq.Registry
	logger        *slog.Logger
}

// Config — конфигурация для создания Handler.
// Nil-зависимость отключает соответствующие endpoints (503).
type Config struct {
	DeadLetters   DeadLetterStore
	Replayer      Replayer
	Notifications NotificationSender
	Inspector     QueueInspector
	Broker        mq.BrokerConfig
	Registry      *mq.Registry
	Logger        *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		deadLetters:   cfg.DeadLetters,
		replayer:      cfg.Replayer,
		notifications: cfg.Notifications,
		inspector:     cfg.Inspector,
		broker:        cfg.Broker.WithDefaults(),
		registry:      cfg.Registry,
		logger:        logger,
	}
}
