package kafka

import "time"

// EventType определяет тип события жизненного цикла заказа.
type EventType string

// Реестр событий заказа. Значения используются сервисом checkout
// при записи в outbox и воспроизводятся в топике без изменений.
const (
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeOrderCancelled     EventType = "order.cancelled"
	EventTypeOrderDeleted       EventType = "order.deleted"
)

// Valid сообщает, относится ли тип к реестру событий заказа.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeOrderCreated, EventTypeOrderStatusChanged,
		EventTypeOrderCancelled, EventTypeOrderDeleted:
		return true
	default:
		return false
	}
}

// Топики Kafka.
const (
	TopicOrderEvents     = "bookstore.order.events"
	TopicDeadLetterQueue = "bookstore.dlq"
)

// Заголовки для retry-логики и DLQ.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent — типизированное событие заказа в topic bookstore.order.events.
type OrderEvent struct {
	EventType EventType              `json:"event_type"`
	OrderID   string                 `json:"order_id"`
	UserID    string                 `json:"user_id,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создаёт событие заказа с текущей меткой времени.
func NewOrderEvent(eventType EventType, orderID, userID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}
