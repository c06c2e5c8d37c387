package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/switix/bookstore/internal/domain"
	"github.com/switix/bookstore/internal/messaging/kafka"
)

func testConfig() config {
	return config{
		brokers:     []string{"localhost:9092"},
		sourceTopic: kafka.TopicDeadLetterQueue,
		targetTopic: kafka.TopicOrderEvents,
		limit:       defaultScanLimit,
		idleTimeout: 200 * time.Millisecond,
	}
}

// deadLetterValue собирает значение DLQ-сообщения так, как его пишет
// outbox-воркер: deadLetter-обёртка внутри Envelope.
func deadLetterValue(t *testing.T, record deadLetterRecord) []byte {
	t.Helper()

	payload, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal dead letter record: %v", err)
	}
	envelope := kafka.Envelope{
		ID:            record.OutboxID,
		AggregateType: record.AggregateType,
		AggregateID:   record.AggregateID,
		EventType:     record.EventType,
		Payload:       payload,
		PublishedAt:   time.Now().UTC(),
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return value
}

func orderDeadLetter(orderID, eventType string) deadLetterRecord {
	return deadLetterRecord{
		OutboxID:      "outbox-" + orderID,
		AggregateType: kafka.AggregateOrder,
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       json.RawMessage(`{"order_id":"` + orderID + `"}`),
		PublishError:  "broker unavailable",
	}
}

type fakeOffsets struct {
	partitions []int32
	newest     map[int32]int64
}

func (f *fakeOffsets) Partitions(string) ([]int32, error) {
	return f.partitions, nil
}

func (f *fakeOffsets) GetOffset(_ string, partition int32, spec int64) (int64, error) {
	if spec == sarama.OffsetOldest {
		return 0, nil
	}
	return f.newest[partition], nil
}

func (f *fakeOffsets) Close() error { return nil }

type fakeReader struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (f *fakeReader) Messages() <-chan *sarama.ConsumerMessage { return f.messages }
func (f *fakeReader) Errors() <-chan *sarama.ConsumerError     { return f.errors }
func (f *fakeReader) Close() error                             { return nil }

type fakeSource struct {
	readers map[int32]*fakeReader
}

func (f *fakeSource) ConsumePartition(_ string, partition int32, _ int64) (partitionReader, error) {
	return f.readers[partition], nil
}

func (f *fakeSource) Close() error { return nil }

type fakeSink struct {
	events []domain.OutboxMessage
	err    error
}

func (f *fakeSink) Publish(event domain.OutboxMessage) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

var _ domain.OutboxPublisher = (*fakeSink)(nil)

// newTestReplayer раскладывает values по одной партиции с offset 0..n-1.
func newTestReplayer(t *testing.T, cfg config, sink domain.OutboxPublisher, values ...[]byte) *replayer {
	t.Helper()

	reader := &fakeReader{
		messages: make(chan *sarama.ConsumerMessage, len(values)),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	for i, value := range values {
		reader.messages <- &sarama.ConsumerMessage{
			Topic:     cfg.sourceTopic,
			Partition: 0,
			Offset:    int64(i),
			Value:     value,
		}
	}

	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	return &replayer{
		cfg:      cfg,
		client:   &fakeOffsets{partitions: []int32{0}, newest: map[int32]int64{0: int64(len(values))}},
		consumer: &fakeSource{readers: map[int32]*fakeReader{0: reader}},
		sink:     sink,
		logger:   logger.WithField("component", "dlq-reprocess"),
	}
}

func TestReadConfig(t *testing.T) {
	cfg, err := readConfig([]string{"-brokers", "k1:9092, k2:9092", "-order-id", "order-7"})
	if err != nil {
		t.Fatalf("readConfig: %v", err)
	}
	if len(cfg.brokers) != 2 || cfg.brokers[0] != "k1:9092" || cfg.brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.brokers)
	}
	if cfg.sourceTopic != kafka.TopicDeadLetterQueue || cfg.targetTopic != kafka.TopicOrderEvents {
		t.Fatalf("unexpected default topics: %+v", cfg)
	}
	if cfg.orderID != "order-7" || cfg.execute {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.limit != defaultScanLimit || cfg.idleTimeout != defaultIdleTimeout {
		t.Fatalf("unexpected scan defaults: %+v", cfg)
	}
}

func TestReadConfig_Rejections(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"no brokers", nil},
		{"zero limit", []string{"-brokers", "k1:9092", "-limit", "0"}},
		{"blank source topic", []string{"-brokers", "k1:9092", "-source-topic", " "}},
		{"blank target topic", []string{"-brokers", "k1:9092", "-target-topic", ""}},
		{"zero idle timeout", []string{"-brokers", "k1:9092", "-idle-timeout", "0s"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := readConfig(tc.args); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}

func TestReadConfig_BrokersFromEnv(t *testing.T) {
	t.Setenv("BOOKSTORE_KAFKA_BROKERS", "env-broker:9092")

	cfg, err := readConfig(nil)
	if err != nil {
		t.Fatalf("readConfig with env brokers: %v", err)
	}
	if len(cfg.brokers) != 1 || cfg.brokers[0] != "env-broker:9092" {
		t.Fatalf("unexpected brokers from env: %v", cfg.brokers)
	}
}

func TestDecode_RestoresOriginalEvent(t *testing.T) {
	r := newTestReplayer(t, testConfig(), nil)

	msg := &sarama.ConsumerMessage{Value: deadLetterValue(t, orderDeadLetter("order-1", "order.created"))}
	event, ok := r.decode(msg)
	if !ok {
		t.Fatal("expected decodable dlq message")
	}
	if event.ID != "outbox-order-1" || event.AggregateID != "order-1" {
		t.Fatalf("unexpected event identity: %+v", event)
	}
	if event.AggregateType != kafka.AggregateOrder || event.EventType != "order.created" {
		t.Fatalf("unexpected event shape: %+v", event)
	}
	if string(event.Payload) != `{"order_id":"order-1"}` {
		t.Fatalf("original payload not restored: %s", event.Payload)
	}
}

func TestDecode_RejectsForeignMessages(t *testing.T) {
	r := newTestReplayer(t, testConfig(), nil)

	unknownType := orderDeadLetter("order-2", "order.exploded")
	nonOrder := orderDeadLetter("order-3", "order.created")
	nonOrder.AggregateType = "inventory"
	emptyPayload := orderDeadLetter("order-4", "order.created")
	emptyPayload.Payload = nil

	cases := []struct {
		name  string
		value []byte
	}{
		{"not json", []byte("not-json")},
		{"empty payload", deadLetterValue(t, emptyPayload)},
		{"unknown event type", deadLetterValue(t, unknownType)},
		{"non-order aggregate", deadLetterValue(t, nonOrder)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := r.decode(&sarama.ConsumerMessage{Value: tc.value}); ok {
				t.Fatal("expected message to be rejected")
			}
		})
	}
}

func TestDecode_OrderIDFilter(t *testing.T) {
	cfg := testConfig()
	cfg.orderID = "order-5"
	r := newTestReplayer(t, cfg, nil)

	matching := &sarama.ConsumerMessage{Value: deadLetterValue(t, orderDeadLetter("order-5", "order.cancelled"))}
	other := &sarama.ConsumerMessage{Value: deadLetterValue(t, orderDeadLetter("order-6", "order.cancelled"))}

	if _, ok := r.decode(matching); !ok {
		t.Fatal("expected matching order to pass the filter")
	}
	if _, ok := r.decode(other); ok {
		t.Fatal("expected foreign order to be filtered out")
	}
}

func TestReplay_ExecutePublishesValidEvents(t *testing.T) {
	sink := &fakeSink{}
	r := newTestReplayer(t, testConfig(), sink,
		deadLetterValue(t, orderDeadLetter("order-1", "order.created")),
		[]byte("garbage"),
		deadLetterValue(t, orderDeadLetter("order-2", "order.status_changed")),
	)

	if err := r.replay(context.Background()); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(sink.events) != 2 {
		t.Fatalf("expected 2 replayed events, got %d", len(sink.events))
	}
	if sink.events[0].AggregateID != "order-1" || sink.events[1].AggregateID != "order-2" {
		t.Fatalf("unexpected replay order: %+v", sink.events)
	}
}

func TestReplay_DryRunPublishesNothing(t *testing.T) {
	r := newTestReplayer(t, testConfig(), nil,
		deadLetterValue(t, orderDeadLetter("order-1", "order.created")),
		deadLetterValue(t, orderDeadLetter("order-2", "order.deleted")),
	)

	if err := r.replay(context.Background()); err != nil {
		t.Fatalf("dry-run replay: %v", err)
	}
}

func TestReplay_RespectsScanLimit(t *testing.T) {
	cfg := testConfig()
	cfg.limit = 1
	sink := &fakeSink{}
	r := newTestReplayer(t, cfg, sink,
		deadLetterValue(t, orderDeadLetter("order-1", "order.created")),
		deadLetterValue(t, orderDeadLetter("order-2", "order.created")),
	)

	if err := r.replay(context.Background()); err != nil {
		t.Fatalf("replay with limit: %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected exactly 1 replayed event under limit, got %d", len(sink.events))
	}
}

func TestReplay_SinkErrorAborts(t *testing.T) {
	sink := &fakeSink{err: sarama.ErrOutOfBrokers}
	r := newTestReplayer(t, testConfig(), sink,
		deadLetterValue(t, orderDeadLetter("order-1", "order.created")),
	)

	if err := r.replay(context.Background()); err == nil {
		t.Fatal("expected replay to abort on publish error")
	}
}

func TestReplay_EmptyPartitionIsNoOp(t *testing.T) {
	sink := &fakeSink{}
	r := newTestReplayer(t, testConfig(), sink)

	if err := r.replay(context.Background()); err != nil {
		t.Fatalf("replay over empty topic: %v", err)
	}
	if len(sink.events) != 0 {
		t.Fatalf("expected no replays, got %d", len(sink.events))
	}
}
