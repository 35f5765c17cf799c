package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/capital-cycle-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

// TopicProducer writes JSON-encoded values to one topic.
type TopicProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

func newTopicProducer(logger *slog.Logger, cfg *config.KafkaConfig, topic string, async bool) (*TopicProducer, error) {
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is not configured")
	}
	if err := EnsureTopics(cfg.Brokers, cfg.NumPartitions, cfg.ReplicationFactor, logger, topic); err != nil {
		return nil, fmt.Errorf("failed to ensure topic %s exists: %w", topic, err)
	}

	acks := kafka.RequireAll
	if async {
		acks = kafka.RequireOne
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: acks,
		Async:        async,
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write messages asynchronously", "topic", topic, "error", err, "count", len(messages))
			}
		},
	}

	return &TopicProducer{logger: logger, writer: writer, topic: topic}, nil
}

// NewTaskRequestProducer publishes task creation requests for the settlement worker.
// Keys are account ids so one account's requests stay ordered.
func NewTaskRequestProducer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*TopicProducer, error) {
	return newTopicProducer(logger, cfg, cfg.TaskRequestTopic, false)
}

// NewLedgerEventProducer publishes committed ledger entries relayed by the outbox poller.
func NewLedgerEventProducer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*TopicProducer, error) {
	return newTopicProducer(logger, cfg, cfg.LedgerEventsTopic, false)
}

func (p *TopicProducer) Topic() string { return p.topic }

func (p *TopicProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", p.topic, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published message", "topic", p.topic, "key", key)
	return nil
}

func (p *TopicProducer) Close() error {
	p.logger.Info("Closing Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
