package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// NotificationType — тип уведомления.
type NotificationType string

const (
	// NotificationTypeEmailVerification — токен подтверждения email при регистрации.
	NotificationTypeEmailVerification NotificationType = "EMAIL_VERIFICATION"

	// NotificationTypeAccountVerification — ссылка подтверждения аккаунта.
	NotificationTypeAccountVerification NotificationType = "ACCOUNT_VERIFICATION"

	// NotificationTypeAccountRegistration — аккаунт успешно подтверждён.
	NotificationTypeAccountRegistration NotificationType = "ACCOUNT_REGISTRATION"

	// NotificationTypePasswordReset — OTP для сброса пароля.
	NotificationTypePasswordReset NotificationType = "PASSWORD_RESET"
)

// IsValid проверяет, что тип известен.
func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationTypeEmailVerification,
		NotificationTypeAccountVerification,
		NotificationTypeAccountRegistration,
		NotificationTypePasswordReset:
		return true
	default:
		return false
	}
}

// ErrInvalidEmailRequest — запрос на отправку письма некорректен.
var ErrInvalidEmailRequest = errors.New("invalid email request")

// Recipients — список адресатов.
// В JSON принимает как строку, так и массив строк.
type Recipients []string

// UnmarshalJSON реализует json.Unmarshaler.
func (r *Recipients) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*r = Recipients{}
			return nil
		}
		*r = Recipients{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("recipients must be a string or an array of strings: %w", err)
	}
	*r = Recipients(many)
	return nil
}

// EmailRequest — событие на отправку письма.
// Публикуется доменным слоем, обрабатывается notification.Service.
type EmailRequest struct {
	Type     NotificationType  `json:"type"`
	Subject  string            `json:"subject,omitempty"`
	To       Recipients        `json:"to"`
	Template string            `json:"template,omitempty"`
	Context  map[string]string `json:"context"`
}

// Validate проверяет обязательные поля.
func (r EmailRequest) Validate() error {
	if !r.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEmailRequest, r.Type)
	}
	if len(r.To) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", ErrInvalidEmailRequest)
	}
	for _, addr := range r.To {
		if !strings.Contains(addr, "@") {
			return fmt.Errorf("%w: invalid recipient %q", ErrInvalidEmailRequest, addr)
		}
	}
	return nil
}
