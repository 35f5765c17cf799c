package producers

import (
	"context"
	"io"

	"github.com/segmentio/kafka-go"
)

// MessagePublisher is satisfied by TopicProducer. Values are JSON encoded and
// keyed so every event for one account lands on the same partition.
type MessagePublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	io.Closer
}

// DeadLetterPublisher parks raw messages that can never be handled.
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, raw []byte, reason string) error
	io.Closer
}

// KafkaWriter is the part of *kafka.Writer the producers call.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	io.Closer
}

var (
	_ KafkaWriter         = (*kafka.Writer)(nil)
	_ MessagePublisher    = (*TopicProducer)(nil)
	_ DeadLetterPublisher = (*DLQProducer)(nil)
)
