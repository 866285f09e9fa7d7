package notification

import (
	"context"
	"fmt"

	"github.com/shaiso/notifier/internal/domain"
	"github.com/shaiso/notifier/internal/mq"
)

// EventPublisher публикует событие в queue exchange.
// *mq.Publisher удовлетворяет этому интерфейсу.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey mq.RoutingKey, msgType string, payload any) error
}

// Events — продюсер email-событий.
type Events struct {
	publisher  EventPublisher
	routingKey mq.RoutingKey
}

// NewEvents создаёт Events для routing key email-топика.
func NewEvents(publisher EventPublisher, routingKey mq.RoutingKey) *Events {
	return &Events{
		publisher:  publisher,
		routingKey: routingKey,
	}
}

// SendEmailRequest проверяет запрос и ставит его в очередь.
// Возвращает nil после подтверждения брокера.
func (e *Events) SendEmailRequest(ctx context.Context, req domain.EmailRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if e == nil || e.publisher == nil {
		return ErrNoPublisher
	}

	if err := e.publisher.Publish(ctx, e.routingKey, string(req.Type), req); err != nil {
		return fmt.Errorf("send email request: %w", err)
	}
	return nil
}
