package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/capital-cycle-ledger/internal/config"
	"github.com/capital-cycle-ledger/internal/domain/pool"
	"github.com/segmentio/kafka-go"
)

// PoolAlert is the low-inventory notification payload.
type PoolAlert struct {
	Available int64     `json:"available"`
	Threshold int       `json:"threshold"`
	At        time.Time `json:"at"`
}

// PoolAlertNotifier implements pool.Notifier on the pool alerts topic.
type PoolAlertNotifier struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

var _ pool.Notifier = (*PoolAlertNotifier)(nil)

func NewPoolAlertNotifier(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*PoolAlertNotifier, error) {
	if err := EnsureTopics(cfg.Brokers, cfg.NumPartitions, cfg.ReplicationFactor, logger, cfg.PoolAlertsTopic); err != nil {
		return nil, fmt.Errorf("failed to ensure pool alerts topic: %w", err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.PoolAlertsTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("Pool alert was not delivered", "topic", cfg.PoolAlertsTopic, "error", err)
			}
		},
	}

	return &PoolAlertNotifier{logger: logger, writer: writer, topic: cfg.PoolAlertsTopic}, nil
}

// NotifyLowInventory never blocks the caller on broker acknowledgement.
func (n *PoolAlertNotifier) NotifyLowInventory(ctx context.Context, available int64, threshold int) error {
	value, err := json.Marshal(PoolAlert{Available: available, Threshold: threshold, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal pool alert: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte("pool.low_inventory"),
		Value: value,
		Headers: []kafka.Header{
			{Key: "available", Value: []byte(strconv.FormatInt(available, 10))},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		n.logger.Warn("Failed to send pool alert", "available", available, "threshold", threshold, "error", err)
		return fmt.Errorf("failed to send pool alert: %w", err)
	}

	n.logger.Warn("Address pool inventory is low", "available", available, "threshold", threshold)
	return nil
}

func (n *PoolAlertNotifier) Close() error {
	if err := n.writer.Close(); err != nil {
		return fmt.Errorf("failed to close pool alert writer: %w", err)
	}
	return nil
}
