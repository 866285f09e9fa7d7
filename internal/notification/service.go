package notification

import (
	"context"
	"log/slog"

	"github.com/shaiso/notifier/internal/domain"
	"github.com/shaiso/notifier/internal/mq"
	"github.com/shaiso/notifier/internal/telemetry"
)

// mailSpec — тема и шаблон письма для типа уведомления.
type mailSpec struct {
	Subject  string
	Template string
}

var mailSpecs = map[domain.NotificationType]mailSpec{
	domain.NotificationTypeAccountVerification: {
		Subject:  "Account Registration Confirmation",
		Template: "signup-confirmation-email-template",
	},
	domain.NotificationTypeAccountRegistration: {
		Subject:  "Account Verification Notification",
		Template: "account-verification-email-template",
	},
	domain.NotificationTypePasswordReset: {
		Subject:  "Reset Password",
		Template: "reset-password-email-template",
	},
}

// Service обрабатывает запросы на отправку писем.
type Service struct {
	sender Sender
	from   string
	logger *slog.Logger
}

// NewService создаёт Service.
func NewService(sender Sender, from string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sender: sender,
		from:   from,
		logger: logger,
	}
}

// HandleEmailRequest отправляет письмо по типу запроса.
func (s *Service) HandleEmailRequest(ctx context.Context, req domain.EmailRequest) error {
	spec, ok := mailSpecs[req.Type]
	if !ok {
		telemetry.FromContext(ctx).Warn("no mail template for notification type, skipping",
			"type", req.Type,
		)
		return nil
	}

	s.logger.Debug("dispatching email", "type", req.Type, "template", spec.Template)

	return s.sender.Send(ctx, Mail{
		From:     s.from,
		To:       req.To,
		Subject:  spec.Subject,
		Template: spec.Template,
		Context:  req.Context,
	})
}

// Register добавляет обработчик email-топика в реестр.
func (s *Service) Register(b *mq.RegistryBuilder, topic string, routingKey mq.RoutingKey) *mq.RegistryBuilder {
	return b.Register(topic, routingKey, mq.JSONHandler(func(ctx context.Context, req domain.EmailRequest) error {
		return s.HandleEmailRequest(ctx, req)
	}))
}
