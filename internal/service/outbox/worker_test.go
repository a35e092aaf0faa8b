package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodorder/internal/domain"
	"github.com/vladislavdragonenkov/foodorder/internal/storage/memory"
)

// stubPublisher собирает публикации и падает заданное число раз.
type stubPublisher struct {
	mu        sync.Mutex
	published []domain.OutboxMessage
	failures  int
}

func (p *stubPublisher) Publish(msg domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, msg)
	return nil
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func enqueue(t *testing.T, repo domain.OutboxRepository, orderID, eventType string) domain.OutboxMessage {
	t.Helper()
	msg, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       []byte(`{"order_id":"` + orderID + `"}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return msg
}

func TestWorker_ProcessOncePublishesAndMarksSent(t *testing.T) {
	repo := memory.NewOutboxRepository()
	publisher := &stubPublisher{}
	worker := NewWorker(repo, publisher,
		WithLogger(log.New().WithField("test", t.Name())),
		WithRetryBaseDelay(0),
	)

	enqueue(t, repo, "order-1", "order.validated")
	enqueue(t, repo, "order-2", "order.saga_completed")

	worker.ProcessOnce(context.Background())

	if publisher.count() != 2 {
		t.Fatalf("expected 2 published, got %d", publisher.count())
	}
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d pending", len(pending))
	}
}

func TestWorker_RetriesTransientPublishError(t *testing.T) {
	repo := memory.NewOutboxRepository()
	publisher := &stubPublisher{failures: 2}
	worker := NewWorker(repo, publisher,
		WithLogger(log.New().WithField("test", t.Name())),
		WithMaxAttempts(3),
		WithRetryBaseDelay(time.Millisecond),
	)

	enqueue(t, repo, "order-1", "order.validated")
	worker.ProcessOnce(context.Background())

	if publisher.count() != 1 {
		t.Fatalf("expected publish to succeed on third attempt, got %d", publisher.count())
	}
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d pending", len(pending))
	}
}

func TestWorker_ExhaustedRetriesGoToDLQ(t *testing.T) {
	repo := memory.NewOutboxRepository()
	publisher := &stubPublisher{failures: 100}
	dlq := &stubPublisher{}
	worker := NewWorker(repo, publisher,
		WithLogger(log.New().WithField("test", t.Name())),
		WithMaxAttempts(2),
		WithRetryBaseDelay(0),
		WithDLQPublisher(dlq),
	)

	msg := enqueue(t, repo, "order-1", "order.validated")
	worker.ProcessOnce(context.Background())

	if dlq.count() != 1 {
		t.Fatalf("expected 1 DLQ message, got %d", dlq.count())
	}
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("expected record marked failed, got %d pending", len(pending))
	}

	// DLQ-сообщение несёт исходный payload и причину сбоя.
	var envelope struct {
		OutboxID     string          `json:"outbox_id"`
		EventType    string          `json:"event_type"`
		Payload      json.RawMessage `json:"payload"`
		PublishError string          `json:"publish_error"`
	}
	dlq.mu.Lock()
	raw := dlq.published[0].Payload
	dlq.mu.Unlock()
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshal dlq payload: %v", err)
	}
	if envelope.OutboxID != msg.ID {
		t.Fatalf("expected outbox id %s, got %s", msg.ID, envelope.OutboxID)
	}
	if envelope.EventType != "order.validated" {
		t.Fatalf("unexpected event type %s", envelope.EventType)
	}
	if envelope.PublishError == "" {
		t.Fatal("expected publish error to be recorded")
	}
	if string(envelope.Payload) != `{"order_id":"order-1"}` {
		t.Fatalf("unexpected original payload: %s", envelope.Payload)
	}
}

func TestWorker_RunStopsOnContextCancel(t *testing.T) {
	repo := memory.NewOutboxRepository()
	worker := NewWorker(repo, &stubPublisher{},
		WithLogger(log.New().WithField("test", t.Name())),
		WithPollInterval(time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}
