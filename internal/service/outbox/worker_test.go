package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/switix/bookstore/internal/domain"
)

type fakeOutboxRepo struct {
	backlog []domain.OutboxMessage
	sent    []string
	failed  []string
}

func (f *fakeOutboxRepo) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	f.backlog = append(f.backlog, msg)
	return msg, nil
}

func (f *fakeOutboxRepo) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 || limit >= len(f.backlog) {
		return append([]domain.OutboxMessage(nil), f.backlog...), nil
	}
	return append([]domain.OutboxMessage(nil), f.backlog[:limit]...), nil
}

func (f *fakeOutboxRepo) Stats() (domain.OutboxStats, error) {
	stats := domain.OutboxStats{PendingCount: len(f.backlog)}
	if len(f.backlog) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (f *fakeOutboxRepo) MarkSent(id string) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeOutboxRepo) MarkFailed(id string) error {
	f.failed = append(f.failed, id)
	return nil
}

var _ domain.OutboxRepository = (*fakeOutboxRepo)(nil)

// fakePublisher отдаёт ошибки из script по порядку, затем err.
type fakePublisher struct {
	mu       sync.Mutex
	err      error
	script   []error
	received []domain.OutboxMessage
}

func (f *fakePublisher) Publish(msg domain.OutboxMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.received = append(f.received, msg)
	if len(f.script) > 0 {
		err := f.script[0]
		f.script = f.script[1:]
		return err
	}
	return f.err
}

func (f *fakePublisher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func (f *fakePublisher) last() domain.OutboxMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received[len(f.received)-1]
}

var _ domain.OutboxPublisher = (*fakePublisher)(nil)

func statusChangedMessage(id, orderID string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     "order.status_changed",
		Payload:       []byte(`{"status":"confirmed","previous":"pending"}`),
	}
}

func TestWorker_DeliversAndMarksSent(t *testing.T) {
	t.Parallel()

	repo := &fakeOutboxRepo{backlog: []domain.OutboxMessage{statusChangedMessage("msg-1", "order-1")}}
	publisher := &fakePublisher{}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0))
	worker.ProcessOnce(context.Background())

	if publisher.calls() != 1 {
		t.Fatalf("expected single publish, got %d", publisher.calls())
	}
	if len(repo.sent) != 1 || repo.sent[0] != "msg-1" {
		t.Fatalf("expected msg-1 marked sent, got %v", repo.sent)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("expected no failed marks, got %v", repo.failed)
	}
}

func TestWorker_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	repo := &fakeOutboxRepo{backlog: []domain.OutboxMessage{statusChangedMessage("msg-2", "order-2")}}
	publisher := &fakePublisher{script: []error{
		errors.New("broker unavailable"),
		errors.New("broker unavailable"),
		nil,
	}}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))
	worker.ProcessOnce(context.Background())

	if publisher.calls() != 3 {
		t.Fatalf("expected 3 attempts, got %d", publisher.calls())
	}
	if len(repo.sent) != 1 {
		t.Fatalf("expected message marked sent after retry, got sent=%v failed=%v", repo.sent, repo.failed)
	}
}

func TestWorker_ExhaustedRetriesGoToDeadLetter(t *testing.T) {
	t.Parallel()

	repo := &fakeOutboxRepo{backlog: []domain.OutboxMessage{statusChangedMessage("msg-3", "order-3")}}
	publisher := &fakePublisher{err: errors.New("partition offline")}
	dlq := &fakePublisher{}

	worker := NewWorker(repo, publisher,
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithMaxAttempts(2),
	)
	worker.ProcessOnce(context.Background())

	if publisher.calls() != 2 {
		t.Fatalf("expected 2 attempts, got %d", publisher.calls())
	}
	if len(repo.failed) != 1 || repo.failed[0] != "msg-3" {
		t.Fatalf("expected msg-3 marked failed, got %v", repo.failed)
	}
	if dlq.calls() != 1 {
		t.Fatalf("expected one DLQ publish, got %d", dlq.calls())
	}

	// DLQ-сообщение несёт исходное событие, причину и момент отказа —
	// контракт, от которого зависит переигрывание в dlq-reprocess.
	var record deadLetter
	if err := json.Unmarshal(dlq.last().Payload, &record); err != nil {
		t.Fatalf("decode dlq payload: %v", err)
	}
	if record.OutboxID != "msg-3" || record.EventType != "order.status_changed" {
		t.Fatalf("unexpected dlq record: %+v", record)
	}
	if record.PublishError != "publish failed after 2 attempts: partition offline" {
		t.Fatalf("unexpected publish error text: %q", record.PublishError)
	}
	if string(record.Payload) != `{"status":"confirmed","previous":"pending"}` {
		t.Fatalf("original payload lost in dlq record: %s", record.Payload)
	}
}

func TestWorker_RunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&fakeOutboxRepo{}, &fakePublisher{},
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}
