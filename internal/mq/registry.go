package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Handler — функция обработки сообщения.
// Возвращает error, если обработка не удалась (сообщение уйдёт в retry или DLQ).
type Handler func(ctx context.Context, msg *Delivery) error

// JSONHandler оборачивает типизированный обработчик: payload сообщения
// распарсивается в T перед вызовом fn.
func JSONHandler[T any](fn func(ctx context.Context, payload T) error) Handler {
	return func(ctx context.Context, msg *Delivery) error {
		payload, err := ParsePayload[T](&msg.Message)
		if err != nil {
			return err
		}
		return fn(ctx, payload)
	}
}

// Registration — регистрация обработчика для topic.
type Registration struct {
	// Topic — имя topic, из него строятся имена очередей.
	Topic string

	// RoutingKey — ключ маршрутизации, уникален в пределах Registry.
	RoutingKey RoutingKey

	// Handler — обработчик сообщений.
	Handler Handler
}

// Queues возвращает тройку очередей регистрации.
func (r Registration) Queues() QueueTriplet {
	return QueueNames(r.Topic)
}

// Registry — неизменяемый набор регистраций.
// Создаётся через RegistryBuilder до подключения к брокеру.
type Registry struct {
	registrations []Registration
}

// Registrations возвращает копию списка регистраций.
func (r *Registry) Registrations() []Registration {
	if r == nil {
		return nil
	}
	out := make([]Registration, len(r.registrations))
	copy(out, r.registrations)
	return out
}

// Len возвращает количество регистраций.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.registrations)
}

// Lookup ищет регистрацию по routing key.
func (r *Registry) Lookup(key RoutingKey) (Registration, bool) {
	if r == nil {
		return Registration{}, false
	}
	for _, reg := range r.registrations {
		if reg.RoutingKey == key {
			return reg, true
		}
	}
	return Registration{}, false
}

// RegistryBuilder накапливает регистрации. Первая ошибка запоминается
// и возвращается из Build.
//
//	registry, err := mq.NewRegistryBuilder().
//	    Register("email", "notification.email", emailHandler).
//	    Build()
type RegistryBuilder struct {
	registrations []Registration
	topics        map[string]struct{}
	keys          map[RoutingKey]struct{}
	err           error
}

// NewRegistryBuilder создаёт пустой RegistryBuilder.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{
		topics: make(map[string]struct{}),
		keys:   make(map[RoutingKey]struct{}),
	}
}

// Register добавляет обработчик для topic.
func (b *RegistryBuilder) Register(topic string, routingKey RoutingKey, handler Handler) *RegistryBuilder {
	if b.err != nil {
		return b
	}

	if err := validateRegistration(topic, routingKey, handler); err != nil {
		b.err = err
		return b
	}

	if _, ok := b.topics[topic]; ok {
		b.err = fmt.Errorf("%w: %s", ErrDuplicateTopic, topic)
		return b
	}
	if _, ok := b.keys[routingKey]; ok {
		b.err = fmt.Errorf("%w: %s", ErrDuplicateRoutingKey, routingKey)
		return b
	}

	b.topics[topic] = struct{}{}
	b.keys[routingKey] = struct{}{}
	b.registrations = append(b.registrations, Registration{
		Topic:      topic,
		RoutingKey: routingKey,
		Handler:    handler,
	})

	return b
}

// Build возвращает неизменяемый Registry.
func (b *RegistryBuilder) Build() (*Registry, error) {
	if b.err != nil {
		return nil, b.err
	}

	regs := make([]Registration, len(b.registrations))
	copy(regs, b.registrations)

	return &Registry{registrations: regs}, nil
}

func validateRegistration(topic string, routingKey RoutingKey, handler Handler) error {
	switch {
	case strings.TrimSpace(topic) == "":
		return fmt.Errorf("%w: topic is required", ErrInvalidRegistration)
	case strings.TrimSpace(string(routingKey)) == "":
		return fmt.Errorf("%w: routing key is required for topic %s", ErrInvalidRegistration, topic)
	case strings.ContainsAny(string(routingKey), "*#"):
		// wildcard привяжет очередь к чужим ключам
		return fmt.Errorf("%w: routing key %q must not contain wildcards", ErrInvalidRegistration, routingKey)
	case handler == nil:
		return fmt.Errorf("%w: handler is required for topic %s", ErrInvalidRegistration, topic)
	}
	return nil
}

// ParsePayload парсит payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	if len(msg.Payload) == 0 {
		return result, fmt.Errorf("%w: empty payload", ErrSerialization)
	}

	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return result, fmt.Errorf("%w: unmarshal payload: %v", ErrSerialization, err)
	}

	return result, nil
}
