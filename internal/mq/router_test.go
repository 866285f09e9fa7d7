package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/notifier/internal/domain"
)

// --- DeathCount Tests ---

func TestDeathCount(t *testing.T) {
	key := RoutingKey("notification.email")

	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{
			name:    "no headers",
			headers: nil,
			want:    0,
		},
		{
			name:    "no x-death",
			headers: amqp.Table{"trace-id": "abc"},
			want:    0,
		},
		{
			name: "single rejected entry",
			headers: amqp.Table{headerXDeath: []interface{}{
				amqp.Table{"queue": "email_queue", "reason": "rejected", "count": int64(3), "routing-keys": []interface{}{"notification.email"}},
			}},
			want: 3,
		},
		{
			name: "expired entries are ignored",
			headers: amqp.Table{headerXDeath: []interface{}{
				amqp.Table{"queue": "email_retry_queue", "reason": "expired", "count": int64(2), "routing-keys": []interface{}{"notification.email"}},
				amqp.Table{"queue": "email_queue", "reason": "rejected", "count": int64(2), "routing-keys": []interface{}{"notification.email"}},
			}},
			want: 2,
		},
		{
			name: "other routing keys are ignored",
			headers: amqp.Table{headerXDeath: []interface{}{
				amqp.Table{"queue": "sms_queue", "reason": "rejected", "count": int64(4), "routing-keys": []interface{}{"notification.sms"}},
				amqp.Table{"queue": "email_queue", "reason": "rejected", "count": int64(1), "routing-keys": []interface{}{"notification.email"}},
			}},
			want: 1,
		},
		{
			name: "int32 count",
			headers: amqp.Table{headerXDeath: []interface{}{
				amqp.Table{"reason": "rejected", "count": int32(4), "routing-keys": []interface{}{"notification.email"}},
			}},
			want: 4,
		},
		{
			name:    "malformed x-death",
			headers: amqp.Table{headerXDeath: "garbage"},
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeathCount(tt.headers, key); got != tt.want {
				t.Errorf("DeathCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

// --- Decide Tests ---

func TestDecide(t *testing.T) {
	tests := []struct {
		attempts int
		max      int
		want     Action
	}{
		{0, 5, ActionRequeue},
		{4, 5, ActionRequeue},
		{5, 5, ActionDeadLetter},
		{6, 5, ActionDeadLetter},
		{0, 0, ActionDeadLetter},
	}

	for _, tt := range tests {
		if got := Decide(tt.attempts, tt.max); got != tt.want {
			t.Errorf("Decide(%d, %d) = %s, want %s", tt.attempts, tt.max, got, tt.want)
		}
	}
}

// --- Router Tests ---

type memoryStore struct {
	records []*domain.DeadLetter
	err     error
}

func (s *memoryStore) Create(_ context.Context, dl *domain.DeadLetter) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, dl)
	return nil
}

func exhaustedHeaders(count int64) amqp.Table {
	return amqp.Table{
		"x-custom": "kept",
		headerXDeath: []interface{}{
			amqp.Table{"queue": "email_queue", "reason": "rejected", "count": count, "routing-keys": []interface{}{"notification.email"}},
		},
	}
}

func TestRouter_Route_RequeueRejectsWithoutRequeue(t *testing.T) {
	pub := &recordingPublisher{}
	acker := &recordingAcker{}
	router := NewRouter(RouterConfig{Publisher: pub, Broker: testBrokerConfig(), Logger: discardLogger()})
	reg := Registration{Topic: "email", RoutingKey: "notification.email"}

	d := &Delivery{Raw: amqp.Delivery{Acknowledger: acker, DeliveryTag: 7, Headers: exhaustedHeaders(2)}}
	action := router.Route(context.Background(), d, reg, errBoom)

	if action != ActionRequeue {
		t.Fatalf("expected requeue, got %s", action)
	}
	if acker.rejects != 1 || acker.requeue[0] {
		t.Errorf("expected reject(requeue=false), got %d rejects %v", acker.rejects, acker.requeue)
	}
	if acker.acks != 0 {
		t.Errorf("expected no ack, got %d", acker.acks)
	}
	if len(pub.msgs) != 0 {
		t.Errorf("expected no dead-letter publish, got %d", len(pub.msgs))
	}
}

func TestRouter_Route_DeadLetterPublishesCopyThenAcks(t *testing.T) {
	pub := &recordingPublisher{}
	acker := &recordingAcker{}
	store := &memoryStore{}
	cfg := testBrokerConfig()
	router := NewRouter(RouterConfig{Publisher: pub, Store: store, Broker: cfg, Logger: discardLogger()})
	reg := Registration{Topic: "email", RoutingKey: "notification.email"}

	headers := exhaustedHeaders(5)
	d := &Delivery{
		Message: Message{ID: "msg-1", Type: "PASSWORD_RESET"},
		Raw: amqp.Delivery{
			Acknowledger: acker,
			DeliveryTag:  9,
			Headers:      headers,
			ContentType:  contentTypeJSON,
			MessageId:    "msg-1",
			Priority:     5,
			Expiration:   "60000",
			Body:         []byte(`{"id":"msg-1"}`),
		},
	}

	action := router.Route(context.Background(), d, reg, errBoom)

	if action != ActionDeadLetter {
		t.Fatalf("expected dead letter, got %s", action)
	}
	if acker.acks != 1 || acker.rejects != 0 {
		t.Errorf("expected exactly one ack, got acks=%d rejects=%d", acker.acks, acker.rejects)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected one dead-letter publish, got %d", len(pub.msgs))
	}
	if pub.exchanges[0] != string(cfg.DeadLetterExchange) {
		t.Errorf("expected exchange %s, got %s", cfg.DeadLetterExchange, pub.exchanges[0])
	}
	if pub.keys[0] != "notification.email" {
		t.Errorf("expected routing key notification.email, got %s", pub.keys[0])
	}
	if pub.msgs[0].Headers["x-custom"] != "kept" {
		t.Error("original headers must be preserved")
	}
	if pub.msgs[0].DeliveryMode != amqp.Persistent {
		t.Error("dead letter must be persistent")
	}
	if pub.msgs[0].Priority != 5 {
		t.Errorf("expected priority 5, got %d", pub.msgs[0].Priority)
	}
	if pub.msgs[0].Expiration != "" {
		t.Errorf("dead letter must not expire, got expiration %q", pub.msgs[0].Expiration)
	}

	if len(store.records) != 1 {
		t.Fatalf("expected one journal record, got %d", len(store.records))
	}
	rec := store.records[0]
	if rec.ID == uuid.Nil {
		t.Error("record id should be set")
	}
	if rec.Attempts != 6 {
		t.Errorf("expected 6 attempts, got %d", rec.Attempts)
	}
	if rec.Status != domain.DeadLetterStatusDead {
		t.Errorf("expected DEAD status, got %s", rec.Status)
	}
	if rec.MessageType != "PASSWORD_RESET" {
		t.Errorf("expected message type PASSWORD_RESET, got %s", rec.MessageType)
	}
	if rec.LastError != errBoom.Error() {
		t.Errorf("expected last error %q, got %q", errBoom, rec.LastError)
	}
}

func TestRouter_Route_DeadLetterPublishFailureFallsBackToRetry(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("channel closed")}
	acker := &recordingAcker{}
	store := &memoryStore{}
	router := NewRouter(RouterConfig{Publisher: pub, Store: store, Broker: testBrokerConfig(), Logger: discardLogger()})
	reg := Registration{Topic: "email", RoutingKey: "notification.email"}

	d := &Delivery{Raw: amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Headers: exhaustedHeaders(5)}}
	action := router.Route(context.Background(), d, reg, errBoom)

	if action != ActionRequeue {
		t.Fatalf("expected fallback to requeue, got %s", action)
	}
	if acker.acks != 0 {
		t.Error("message must not be acked when the dead-letter copy was not stored")
	}
	if acker.rejects != 1 {
		t.Errorf("expected one reject, got %d", acker.rejects)
	}
	if len(store.records) != 0 {
		t.Errorf("expected no journal record, got %d", len(store.records))
	}
}

func TestRouter_Route_JournalFailureStillAcks(t *testing.T) {
	pub := &recordingPublisher{}
	acker := &recordingAcker{}
	store := &memoryStore{err: errors.New("db down")}
	router := NewRouter(RouterConfig{Publisher: pub, Store: store, Broker: testBrokerConfig(), Logger: discardLogger()})
	reg := Registration{Topic: "email", RoutingKey: "notification.email"}

	d := &Delivery{Raw: amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Headers: exhaustedHeaders(5)}}
	if action := router.Route(context.Background(), d, reg, errBoom); action != ActionDeadLetter {
		t.Fatalf("expected dead letter, got %s", action)
	}
	if acker.acks != 1 {
		t.Errorf("expected ack, got %d", acker.acks)
	}
}

func TestAction_String(t *testing.T) {
	if ActionRequeue.String() != "requeue" {
		t.Errorf("unexpected %s", ActionRequeue)
	}
	if ActionDeadLetter.String() != "dead_letter" {
		t.Errorf("unexpected %s", ActionDeadLetter)
	}
}
