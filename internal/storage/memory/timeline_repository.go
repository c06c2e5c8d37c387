package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/switix/bookstore/internal/domain"
)

// timelineRepositoryInMemory хранит историю заказов в памяти (для разработки/тестов).
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{events: make(map[string][]domain.TimelineEvent)}
}

// Append добавляет событие в историю заказа. Пустое Occurred
// заменяется текущим временем UTC, как в postgres-реализации.
func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[event.OrderID] = append(r.events[event.OrderID], event)
	return nil
}

// List возвращает события заказа в хронологическом порядке. События с
// одинаковым Occurred сохраняют порядок добавления.
func (r *timelineRepositoryInMemory) List(orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[orderID]
	history := make([]domain.TimelineEvent, len(events))
	copy(history, events)

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Occurred.Before(history[j].Occurred)
	})
	return history, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
