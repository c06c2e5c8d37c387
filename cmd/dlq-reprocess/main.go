// dlq-reprocess переигрывает события заказов из bookstore.dlq обратно
// в топик событий. По умолчанию работает в dry-run: показывает кандидатов,
// ничего не публикуя.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/switix/bookstore/internal/domain"
	"github.com/switix/bookstore/internal/messaging/kafka"
)

const (
	defaultScanLimit   = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	orderID     string
	limit       int
	execute     bool
	idleTimeout time.Duration
}

// deadLetterRecord — payload DLQ-сообщения, записанный outbox-воркером.
type deadLetterRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

// Узкие интерфейсы поверх sarama, чтобы переигрывание тестировалось
// без брокера.
type offsetsClient interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, spec int64) (int64, error)
	Close() error
}

type partitionReader interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type consumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionReader, error)
	Close() error
}

type saramaSource struct {
	consumer sarama.Consumer
}

func (s saramaSource) ConsumePartition(topic string, partition int32, offset int64) (partitionReader, error) {
	return s.consumer.ConsumePartition(topic, partition, offset)
}

func (s saramaSource) Close() error {
	if s.consumer == nil {
		return nil
	}
	return s.consumer.Close()
}

// replayer сканирует DLQ и переигрывает валидные события заказов.
// sink == nil означает dry-run.
type replayer struct {
	cfg      config
	client   offsetsClient
	consumer consumerSource
	sink     domain.OutboxPublisher
	logger   *log.Entry
}

type replayStats struct {
	scanned  int
	replayed int
	skipped  int
}

func (s *replayStats) add(other replayStats) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.skipped += other.skipped
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig(os.Args[1:])
	if err != nil {
		fail("%v", err)
	}
	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(args []string) (config, error) {
	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)

	var brokersRaw string
	var cfg config
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers, comma-separated (fallback: BOOKSTORE_KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderEvents, "topic to replay events into")
	fs.StringVar(&cfg.orderID, "order-id", "", "replay only events of this order")
	fs.IntVar(&cfg.limit, "limit", defaultScanLimit, "max messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish replays; default is dry-run")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop scanning a partition after this much silence")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("BOOKSTORE_KAFKA_BROKERS")
	}
	for _, chunk := range strings.Split(brokersRaw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			cfg.brokers = append(cfg.brokers, broker)
		}
	}

	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or BOOKSTORE_KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, fmt.Errorf("source-topic is required")
	case strings.TrimSpace(cfg.targetTopic) == "":
		return config{}, fmt.Errorf("target-topic is required")
	case cfg.limit <= 0:
		return config{}, fmt.Errorf("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config) error {
	client, err := sarama.NewClient(cfg.brokers, sarama.NewConfig())
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer client.Close()

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	source := saramaSource{consumer: rawConsumer}
	defer source.Close()

	// Переигрывание идёт через тот же outbox-паблишер, что и воркер:
	// событие заново нормализуется в типизированный OrderEvent.
	var sink domain.OutboxPublisher
	if cfg.execute {
		producer, err := kafka.NewProducer(cfg.brokers)
		if err != nil {
			return fmt.Errorf("create replay producer: %w", err)
		}
		defer producer.Close()
		sink = kafka.NewOutboxPublisher(producer, cfg.targetTopic)
	}

	r := &replayer{
		cfg:      cfg,
		client:   client,
		consumer: source,
		sink:     sink,
		logger:   log.WithField("component", "dlq-reprocess"),
	}
	return r.replay(ctx)
}

func (r *replayer) replay(ctx context.Context) error {
	mode := "dry-run"
	if r.sink != nil {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"mode":         mode,
		"source_topic": r.cfg.sourceTopic,
		"target_topic": r.cfg.targetTopic,
		"limit":        r.cfg.limit,
	}).Info("starting dlq replay")

	partitions, err := r.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for %s: %w", r.cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", r.cfg.sourceTopic).Warn("dlq topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var total replayStats
	for _, partition := range partitions {
		remaining := r.cfg.limit - total.scanned
		if remaining <= 0 {
			break
		}
		stats, err := r.scanPartition(ctx, partition, remaining)
		total.add(stats)
		if err != nil {
			return err
		}
	}

	r.logger.WithFields(log.Fields{
		"mode":     mode,
		"scanned":  total.scanned,
		"replayed": total.replayed,
		"skipped":  total.skipped,
	}).Info("dlq replay finished")
	return nil
}

func (r *replayer) scanPartition(ctx context.Context, partition int32, limit int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	reader, err := r.consumer.ConsumePartition(r.cfg.sourceTopic, partition, oldest)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer reader.Close()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.scanned < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case consumeErr := <-reader.Errors():
			if consumeErr != nil {
				return stats, fmt.Errorf("partition %d: %w", partition, consumeErr)
			}
		case msg, ok := <-reader.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.cfg.idleTimeout)

			stats.scanned++
			replayed, err := r.handle(msg)
			if err != nil {
				return stats, err
			}
			if replayed {
				stats.replayed++
			} else {
				stats.skipped++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		case <-idle.C:
			return stats, nil
		}
	}
	return stats, nil
}

// decode разворачивает Envelope и deadLetter-обёртку воркера обратно
// в исходное outbox-сообщение.
func (r *replayer) decode(msg *sarama.ConsumerMessage) (domain.OutboxMessage, bool) {
	var envelope kafka.Envelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return domain.OutboxMessage{}, false
	}

	var record deadLetterRecord
	if err := json.Unmarshal(envelope.Payload, &record); err != nil || len(record.Payload) == 0 {
		return domain.OutboxMessage{}, false
	}

	event := domain.OutboxMessage{
		ID:            firstNonEmpty(record.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(record.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(record.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(record.EventType, envelope.EventType),
		Payload:       record.Payload,
	}

	// Переигрываются только события из реестра заказов: произвольный
	// мусор из DLQ не должен попадать в топик событий.
	if event.AggregateType != kafka.AggregateOrder || !kafka.EventType(event.EventType).Valid() {
		return domain.OutboxMessage{}, false
	}
	if r.cfg.orderID != "" && event.AggregateID != r.cfg.orderID {
		return domain.OutboxMessage{}, false
	}
	return event, true
}

// handle разбирает одно DLQ-сообщение и, в режиме execute, публикует его
// в целевой топик. Возвращает true, если сообщение пошло (или пошло бы)
// в replay.
func (r *replayer) handle(msg *sarama.ConsumerMessage) (bool, error) {
	event, ok := r.decode(msg)
	fields := log.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	}
	if !ok {
		r.logger.WithFields(fields).Debug("skip non-replayable dlq message")
		return false, nil
	}

	fields["order_id"] = event.AggregateID
	fields["event_type"] = event.EventType
	if r.sink == nil {
		r.logger.WithFields(fields).Info("dlq replay candidate")
		return true, nil
	}

	if err := r.sink.Publish(event); err != nil {
		return false, fmt.Errorf("replay outbox %s: %w", event.ID, err)
	}
	r.logger.WithFields(fields).Info("dlq event replayed")
	return true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
