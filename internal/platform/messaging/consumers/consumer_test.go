package consumers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/capital-cycle-ledger/internal/config"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs []error
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewKafkaConsumer(t *testing.T) {
	cfg := &config.KafkaConfig{
		Brokers:          "localhost:9092",
		TaskRequestTopic: "task_requests",
		ConsumerGroup:    "settlement-worker-group",
		MinBytes:         1024,
		MaxBytes:         10240,
		MaxWait:          time.Second,
	}

	consumer := NewKafkaConsumer(context.Background(), testLogger(), cfg)
	require.NotNil(t, consumer)
	assert.Equal(t, "task_requests", consumer.topic)
	assert.Equal(t, "settlement-worker-group", consumer.groupID)
	require.NoError(t, consumer.Close())
}

func TestKafkaConsumer_Subscribe(t *testing.T) {
	reader := &fakeReader{
		fetchErrs: []error{errors.New("coordinator not available")},
		queue: []kafka.Message{
			{Key: []byte("a"), Value: []byte("ok"), Offset: 1},
			{Key: []byte("b"), Value: []byte("fail"), Offset: 2},
			{Key: []byte("c"), Value: []byte("ok"), Offset: 3},
		},
	}
	consumer := NewConsumerWithReader(testLogger(), reader, "task_requests", "g")
	consumer.fetchBackoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled sync.WaitGroup
	handled.Add(3)
	handler := func(_ context.Context, _ []byte, value []byte) error {
		defer handled.Done()
		if string(value) == "fail" {
			return errors.New("transient")
		}
		return nil
	}

	require.NoError(t, consumer.Subscribe(ctx, handler))
	handled.Wait()

	assert.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{1, 3}, reader.commits())

	cancel()
	select {
	case <-consumer.Done():
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
	require.NoError(t, consumer.Close())
	assert.True(t, reader.closed)
}

func TestKafkaConsumer_CloseWithNilReader(t *testing.T) {
	consumer := &KafkaConsumer{logger: testLogger()}
	require.NoError(t, consumer.Close())
}
