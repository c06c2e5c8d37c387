package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/switix/bookstore/internal/domain"
)

// AggregateOrder — тип агрегата заказов в outbox-сообщениях.
const AggregateOrder = "order"

// Envelope — формат сообщения в топиках bookstore.*: outbox-метаданные
// плюс полезная нагрузка события. Его же читает dlq-reprocess при replay.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// OutboxTopicPublisher публикует outbox-сообщения в Kafka topic.
// События заказов дополнительно нормализуются в типизированный OrderEvent.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	// Нормализация только для топика событий: в DLQ сообщение уходит
	// как есть, иначе deadLetter-обёртка воркера была бы разрушена.
	payload := json.RawMessage(event.Payload)
	if p.topic != TopicDeadLetterQueue && event.AggregateType == AggregateOrder && EventType(event.EventType).Valid() {
		typed, err := orderEventFromOutbox(event)
		if err != nil {
			return fmt.Errorf("normalize order event %s: %w", event.ID, err)
		}
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Errorf("marshal order event %s: %w", event.ID, err)
		}
		payload = encoded
	}

	envelope := Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   time.Now().UTC(),
	}

	return p.producer.PublishEvent(p.topic, partitionKey(event), envelope)
}

// partitionKey: события одного заказа попадают в одну партицию,
// порядок внутри заказа сохраняется.
func partitionKey(event domain.OutboxMessage) string {
	if event.AggregateID != "" {
		return event.AggregateID
	}
	return event.ID
}

// orderEventFromOutbox собирает типизированное событие заказа из
// сырого outbox-payload: известные поля переносятся в структуру,
// остальные уходят в Metadata.
func orderEventFromOutbox(event domain.OutboxMessage) (*OrderEvent, error) {
	fields := map[string]interface{}{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &fields); err != nil {
			return nil, fmt.Errorf("decode outbox payload: %w", err)
		}
	}

	userID, _ := fields["user_id"].(string)
	status, _ := fields["status"].(string)
	delete(fields, "order_id")
	delete(fields, "user_id")
	delete(fields, "status")
	if len(fields) == 0 {
		fields = nil
	}

	return NewOrderEvent(EventType(event.EventType), event.AggregateID, userID, status, fields), nil
}
