package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/notifier/internal/domain"
	"github.com/shaiso/notifier/internal/mq"
)

// Dead letter DTOs

// DeadLetterResponse — ответ с записью журнала.
type DeadLetterResponse struct {
	ID          uuid.UUID               `json:"id"`
	Topic       string                  `json:"topic"`
	RoutingKey  string                  `json:"routing_key"`
	MessageID   string                  `json:"message_id,omitempty"`
	MessageType string                  `json:"message_type,omitempty"`
	Payload     json.RawMessage         `json:"payload"`
	Headers     map[string]any          `json:"headers,omitempty"`
	Attempts    int                     `json:"attempts"`
	LastError   string                  `json:"last_error,omitempty"`
	Status      domain.DeadLetterStatus `json:"status"`
	CreatedAt   time.Time               `json:"created_at"`
	ReplayedAt  *time.Time              `json:"replayed_at,omitempty"`
}

// DeadLetterFromDomain конвертирует domain.DeadLetter в DeadLetterResponse.
// Тело не-JSON отдаётся строкой.
func DeadLetterFromDomain(d domain.DeadLetter) DeadLetterResponse {
	payload := json.RawMessage(d.Payload)
	if !json.Valid(d.Payload) {
		payload, _ = json.Marshal(string(d.Payload))
	}

	return DeadLetterResponse{
		ID:          d.ID,
		Topic:       d.Topic,
		RoutingKey:  d.RoutingKey,
		MessageID:   d.MessageID,
		MessageType: d.MessageType,
		Payload:     payload,
		Headers:     d.Headers,
		Attempts:    d.Attempts,
		LastError:   d.LastError,
		Status:      d.Status,
		CreatedAt:   d.CreatedAt,
		ReplayedAt:  d.ReplayedAt,
	}
}

// Notification DTOs

// SendNotificationRequest — запрос на отправку письма.
type SendNotificationRequest struct {
	Type    domain.NotificationType `json:"type"`
	To      domain.Recipients       `json:"to"`
	Context map[string]string       `json:"context,omitempty"`
}

// ToDomain конвертирует запрос в domain.EmailRequest.
func (r SendNotificationRequest) ToDomain() domain.EmailRequest {
	return domain.EmailRequest{
		Type:    r.Type,
		To:      r.To,
		Context: r.Context,
	}
}

// SendNotificationResponse — ответ о постановке письма в очередь.
type SendNotificationResponse struct {
	Type   domain.NotificationType `json:"type"`
	To     []string                `json:"to"`
	Status string                  `json:"status"`
}

// Broker DTOs

// ExchangesResponse — имена exchanges.
type ExchangesResponse struct {
	Queue      mq.Exchange `json:"queue"`
	Retry      mq.Exchange `json:"retry"`
	DeadLetter mq.Exchange `json:"dead_letter"`
}

// QueuesResponse — очереди одного топика.
type QueuesResponse struct {
	Primary    mq.Queue `json:"primary"`
	Retry      mq.Queue `json:"retry"`
	DeadLetter mq.Queue `json:"dead_letter"`
}

// RegistrationResponse — зарегистрированный топик.
type RegistrationResponse struct {
	Topic      string         `json:"topic"`
	RoutingKey mq.RoutingKey  `json:"routing_key"`
	Queues     QueuesResponse `json:"queues"`
}

// TopologyResponse — топология брокера.
type TopologyResponse struct {
	Exchanges        ExchangesResponse      `json:"exchanges"`
	MaxRetryAttempts int                    `json:"max_retry_attempts"`
	RetryDelayMs     int64                  `json:"retry_delay_ms"`
	Registrations    []RegistrationResponse `json:"registrations"`
}

// TopologyFromRegistry собирает TopologyResponse.
func TopologyFromRegistry(cfg mq.BrokerConfig, registry *mq.Registry) TopologyResponse {
	regs := registry.Registrations()
	result := TopologyResponse{
		Exchanges: ExchangesResponse{
			Queue:      cfg.QueueExchange,
			Retry:      cfg.RetryExchange,
			DeadLetter: cfg.DeadLetterExchange,
		},
		MaxRetryAttempts: cfg.MaxRetryAttempts,
		RetryDelayMs:     cfg.RetryDelay.Milliseconds(),
		Registrations:    make([]RegistrationResponse, len(regs)),
	}

	for i, reg := range regs {
		q := reg.Queues()
		result.Registrations[i] = RegistrationResponse{
			Topic:      reg.Topic,
			RoutingKey: reg.RoutingKey,
			Queues: QueuesResponse{
				Primary:    q.Primary,
				Retry:      q.Retry,
				DeadLetter: q.DeadLetter,
			},
		}
	}

	return result
}

// QueueStatsResponse — состояние одной очереди.
type QueueStatsResponse struct {
	Topic     string   `json:"topic"`
	Queue     mq.Queue `json:"queue"`
	Messages  int      `json:"messages"`
	Consumers int      `json:"consumers"`
	Error     string   `json:"error,omitempty"`
}
