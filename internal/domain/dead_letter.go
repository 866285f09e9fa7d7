package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeadLetterStatus — статус записи в журнале dead-letter.
//
// Жизненный цикл:
//
//	DEAD → REPLAYED
type DeadLetterStatus string

const (
	// DeadLetterStatusDead — сообщение исчерпало retry и лежит в dead-letter очереди.
	DeadLetterStatusDead DeadLetterStatus = "DEAD"

	// DeadLetterStatusReplayed — оператор повторно опубликовал сообщение.
	DeadLetterStatusReplayed DeadLetterStatus = "REPLAYED"
)

// IsValid проверяет, что статус известен.
func (s DeadLetterStatus) IsValid() bool {
	return s == DeadLetterStatusDead || s == DeadLetterStatusReplayed
}

// DeadLetter — запись о сообщении, ушедшем в dead-letter exchange.
type DeadLetter struct {
	ID          uuid.UUID
	Topic       string
	RoutingKey  string
	MessageID   string
	MessageType string
	Payload     []byte
	Headers     map[string]any
	Attempts    int
	LastError   string
	Status      DeadLetterStatus
	CreatedAt   time.Time
	ReplayedAt  *time.Time
}

// CanReplay возвращает true, если запись ещё не переиграна.
func (d *DeadLetter) CanReplay() bool {
	return d.Status == DeadLetterStatusDead
}

// MarkReplayed переводит запись в REPLAYED.
func (d *DeadLetter) MarkReplayed() {
	now := time.Now().UTC()
	d.Status = DeadLetterStatusReplayed
	d.ReplayedAt = &now
}
