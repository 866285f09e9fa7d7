package mq

import (
	"errors"
	"fmt"
)

// Ошибки брокера.
var (
	// ErrConnection — не удалось подключиться к RabbitMQ при старте.
	ErrConnection = errors.New("broker connection failed")

	// ErrTopology — не удалось объявить exchange, queue или binding.
	ErrTopology = errors.New("broker topology declaration failed")

	// ErrNotConnected — соединение или канал ещё не установлены.
	ErrNotConnected = errors.New("broker not connected")

	// ErrPublish — брокер не принял публикацию.
	ErrPublish = errors.New("publish failed")

	// ErrPublishNacked — брокер ответил nack на publisher confirm.
	ErrPublishNacked = errors.New("publish not confirmed by broker")

	// ErrSerialization — не удалось сериализовать или распарсить сообщение.
	ErrSerialization = errors.New("message serialization failed")

	// ErrHandlerTimeout — обработчик не уложился в HandlerTimeout.
	ErrHandlerTimeout = errors.New("handler timeout")

	// ErrInvalidConfig — BrokerConfig не прошёл валидацию.
	ErrInvalidConfig = errors.New("invalid broker config")

	// ErrInvalidRegistration — регистрация обработчика некорректна.
	ErrInvalidRegistration = errors.New("invalid topic registration")

	// ErrDuplicateRoutingKey — routing key уже зарегистрирован.
	ErrDuplicateRoutingKey = errors.New("duplicate routing key")

	// ErrDuplicateTopic — topic уже зарегистрирован.
	ErrDuplicateTopic = errors.New("duplicate topic")
)

// HandlerError — ошибка обработки одного сообщения.
//
// Никогда не покидает delivery loop: Consumer превращает её в решение Router'а.
type HandlerError struct {
	Topic     string
	MessageID string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handle %s message %s: %v", e.Topic, e.MessageID, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
