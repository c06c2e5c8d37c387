package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/switix/bookstore/internal/domain"
)

func enqueueOrderEvent(t *testing.T, repo domain.OutboxRepository, id, orderID, eventType string) domain.OutboxMessage {
	t.Helper()

	stored, err := repo.Enqueue(domain.OutboxMessage{
		ID:            id,
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       []byte(`{"order_id":"` + orderID + `"}`),
	})
	if err != nil {
		t.Fatalf("enqueue %s for %s: %v", eventType, orderID, err)
	}
	return stored
}

func TestOutboxRepository_PostgresPendingLifecycle(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	created := enqueueOrderEvent(t, repo, "", "order-1", "order.created")
	if created.ID == "" {
		t.Fatal("expected generated outbox id")
	}
	changed := enqueueOrderEvent(t, repo, "outbox-fixed-id", "order-2", "order.status_changed")
	if changed.ID != "outbox-fixed-id" {
		t.Fatalf("expected caller-provided id to survive, got %q", changed.ID)
	}

	// PullPending(0) идёт по ветке лимита по умолчанию.
	pending, err := repo.PullPending(0)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}
	if pending[0].ID != created.ID {
		t.Fatalf("expected oldest message first, got %q", pending[0].ID)
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 2 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected backlog stats: %+v", stats)
	}

	if err := repo.MarkSent(created.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := repo.MarkFailed(changed.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	after, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending after marks: %v", err)
	}
	if len(after) != 0 {
		t.Fatalf("expected empty backlog after marks, got %d", len(after))
	}
	stats, err = repo.Stats()
	if err != nil {
		t.Fatalf("stats after marks: %v", err)
	}
	if stats.PendingCount != 0 {
		t.Fatalf("expected pending=0 after marks, got %d", stats.PendingCount)
	}
}

func TestOutboxRepository_PostgresMarkUnknownID(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	if err := repo.MarkSent("missing-outbox"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish on mark sent, got %v", err)
	}
	if err := repo.MarkFailed("missing-outbox"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish on mark failed, got %v", err)
	}
}

func TestOutboxRepository_PostgresOldestPendingTracksBacklog(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	oldest := enqueueOrderEvent(t, repo, "", "order-old", "order.created")
	time.Sleep(5 * time.Millisecond)
	enqueueOrderEvent(t, repo, "", "order-new", "order.created")

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 2 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats with backlog: %+v", stats)
	}
	firstOldest := stats.OldestPendingAt

	if err := repo.MarkSent(oldest.ID); err != nil {
		t.Fatalf("mark sent oldest: %v", err)
	}
	stats, err = repo.Stats()
	if err != nil {
		t.Fatalf("stats after mark: %v", err)
	}
	if stats.PendingCount != 1 {
		t.Fatalf("expected pending=1 after mark, got %d", stats.PendingCount)
	}
	if !stats.OldestPendingAt.After(firstOldest) {
		t.Fatalf("oldest pending must advance after draining head: %s -> %s", firstOldest, stats.OldestPendingAt)
	}
}
