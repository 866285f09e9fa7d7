package notification

import "errors"

var (
	// ErrSend — письмо не удалось отправить.
	ErrSend = errors.New("send email")

	// ErrNoPublisher — Events создан без publisher.
	ErrNoPublisher = errors.New("publisher is not configured")
)
