package consumers

import (
	"context"
	"log/slog"
	"time"

	"github.com/capital-cycle-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer defines the message queue consumer interface
type Consumer interface {
	Subscribe(ctx context.Context, handler MessageHandler) error
	Close() error
}

// Reader is the subset of kafka.Reader the consumer drives.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer implements Consumer using Kafka
type KafkaConsumer struct {
	reader       Reader
	logger       *slog.Logger
	topic        string
	groupID      string
	fetchBackoff time.Duration
	done         chan struct{}
}

// NewKafkaConsumer reads the task request topic in the configured consumer group.
func NewKafkaConsumer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) *KafkaConsumer {
	startOffset := cfg.StartOffset
	if startOffset == 0 {
		startOffset = kafka.FirstOffset
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{cfg.Brokers},
		Topic:       cfg.TaskRequestTopic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		StartOffset: startOffset,
	})
	return NewConsumerWithReader(logger, reader, cfg.TaskRequestTopic, cfg.ConsumerGroup)
}

func NewConsumerWithReader(logger *slog.Logger, reader Reader, topic, groupID string) *KafkaConsumer {
	return &KafkaConsumer{
		reader:       reader,
		logger:       logger.With("topic", topic, "group_id", groupID),
		topic:        topic,
		groupID:      groupID,
		fetchBackoff: time.Second,
		done:         make(chan struct{}),
	}
}

// Subscribe starts the fetch loop in a goroutine. Offsets are committed only
// after the handler succeeds, so a failed message is redelivered after a rebalance.
func (c *KafkaConsumer) Subscribe(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Subscribed to Kafka topic")

	go func() {
		defer close(c.done)
		for {
			if ctx.Err() != nil {
				c.logger.Info("Context canceled, stopping consumer")
				return
			}

			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Error("Failed to fetch message from Kafka", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.fetchBackoff):
				}
				continue
			}

			log := c.logger.With("partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))
			log.Debug("Received message from Kafka")

			if err := handler(ctx, msg.Key, msg.Value); err != nil {
				log.Error("Failed to process message, will not commit offset", "error", err)
				continue
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				log.Error("Failed to commit message after successful processing", "error", err)
			}
		}
	}()

	return nil
}

// Done is closed when the fetch loop exits.
func (c *KafkaConsumer) Done() <-chan struct{} {
	return c.done
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
