package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/notifier/internal/mq"
)

// fakeSource отдаёт заранее созданные каналы доставок по имени очереди.
type fakeSource struct {
	mu       sync.Mutex
	channels map[mq.Queue]chan amqp.Delivery
	consumed []mq.Queue
}

func newFakeSource(queues ...mq.Queue) *fakeSource {
	s := &fakeSource{channels: make(map[mq.Queue]chan amqp.Delivery)}
	for _, q := range queues {
		s.channels[q] = make(chan amqp.Delivery, 10)
	}
	return s
}

func (s *fakeSource) Consume(queue mq.Queue, _ int) (<-chan amqp.Delivery, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[queue]
	if !ok {
		return nil, nil, errors.New("NOT_FOUND - no queue")
	}
	s.consumed = append(s.consumed, queue)
	return ch, func() {}, nil
}

func (s *fakeSource) ReconnectNotify() <-chan struct{} {
	return make(chan struct{})
}

type nopPublisher struct{}

func (nopPublisher) PublishConfirmed(context.Context, string, string, amqp.Publishing) error {
	return nil
}

// acker считает ack'и и reject'ы.
type acker struct {
	mu      sync.Mutex
	acks    int
	rejects int
}

func (a *acker) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *acker) Nack(uint64, bool, bool) error { return a.Reject(0, false) }

func (a *acker) Reject(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejects++
	return nil
}

func (a *acker) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks, a.rejects
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, source mq.DeliverySource, handlers map[string]mq.Handler) Config {
	t.Helper()

	b := mq.NewRegistryBuilder()
	for topic, h := range handlers {
		b.Register(topic, mq.RoutingKey("notification."+topic), h)
	}
	registry, err := b.Build()
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	broker := mq.BrokerConfig{URL: "amqp://test", MaxRetryAttempts: 3, RetryDelay: time.Second}.WithDefaults()

	return Config{
		Source:   source,
		Registry: registry,
		Router:   mq.NewRouter(mq.RouterConfig{Publisher: nopPublisher{}, Broker: broker, Logger: discardLogger()}),
		Broker:   broker,
		Logger:   discardLogger(),
	}
}

func delivery(a *acker, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: a, DeliveryTag: 1, Body: []byte(body)}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- Worker Tests ---

func TestWorker_ConsumesEveryTopic(t *testing.T) {
	source := newFakeSource("email_queue", "sms_queue")

	var mu sync.Mutex
	seen := map[string]int{}
	handler := func(ctx context.Context, d *mq.Delivery) error {
		mu.Lock()
		defer mu.Unlock()
		seen[d.Topic]++
		return nil
	}

	w := New(testConfig(t, source, map[string]mq.Handler{"email": handler, "sms": handler}))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	a := &acker{}
	source.channels["email_queue"] <- delivery(a, `{"id":"1","type":"X","payload":{}}`)
	source.channels["sms_queue"] <- delivery(a, `{"id":"2","type":"X","payload":{}}`)

	waitFor(t, func() bool {
		acks, _ := a.counts()
		return acks == 2
	})

	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	if seen["email"] != 1 || seen["sms"] != 1 {
		t.Errorf("unexpected deliveries %v", seen)
	}
	if !w.IsStopped() {
		t.Error("worker should be stopped")
	}
}

func TestWorker_FailedHandlerIsRejected(t *testing.T) {
	source := newFakeSource("email_queue")
	w := New(testConfig(t, source, map[string]mq.Handler{
		"email": func(context.Context, *mq.Delivery) error { return errors.New("smtp down") },
	}))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	a := &acker{}
	source.channels["email_queue"] <- delivery(a, `{"id":"1","type":"X","payload":{}}`)

	waitFor(t, func() bool {
		_, rejects := a.counts()
		return rejects == 1
	})
	if acks, _ := a.counts(); acks != 0 {
		t.Errorf("failed message must not be acked, got %d acks", acks)
	}
}

func TestWorker_StartErrors(t *testing.T) {
	noop := func(context.Context, *mq.Delivery) error { return nil }

	cfg := testConfig(t, newFakeSource("email_queue"), map[string]mq.Handler{"email": noop})
	cfg.Source = nil
	if err := New(cfg).Start(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}

	cfg = testConfig(t, newFakeSource(), map[string]mq.Handler{})
	if err := New(cfg).Start(context.Background()); !errors.Is(err, ErrNoRegistrations) {
		t.Errorf("expected ErrNoRegistrations, got %v", err)
	}

	cfg = testConfig(t, newFakeSource("email_queue"), map[string]mq.Handler{"email": noop})
	w := New(cfg)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
	w.Stop()
	w.Stop()
	if err := w.Start(context.Background()); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("expected ErrWorkerStopped, got %v", err)
	}
}

func TestWorker_StopOnContextCancel(t *testing.T) {
	source := newFakeSource("email_queue")
	w := New(testConfig(t, source, map[string]mq.Handler{
		"email": func(context.Context, *mq.Delivery) error { return nil },
	}))

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
