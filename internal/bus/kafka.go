package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaBus is the production Bus, grounded on the teacher's
// internal/messaging KafkaProducer/KafkaConsumer pair, trimmed to a single
// shared producer plus one reader and one consume goroutine per subscribed
// topic. Subscribed topics do not share a consume loop; they share only the
// cancel/Close lifecycle.
type KafkaBus struct {
	brokers  []BrokerEndpoint
	groupID  string
	logger   *zap.Logger

	mu       sync.Mutex
	writer   *kafka.Writer
	readers  []*kafka.Reader
	handlers map[string]Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewKafkaBus constructs a bus that will connect to brokerAddrs (each
// "host:port") using consumer group groupID once Connect is called.
func NewKafkaBus(brokerAddrs []string, groupID string, logger *zap.Logger) (*KafkaBus, error) {
	eps, err := ValidateBrokerEndpoints(brokerAddrs)
	if err != nil {
		return nil, err
	}
	return &KafkaBus{
		brokers:  eps,
		groupID:  groupID,
		logger:   logger,
		handlers: make(map[string]Handler),
	}, nil
}

func (b *KafkaBus) addrs() []string {
	out := make([]string, len(b.brokers))
	for i, e := range b.brokers {
		out[i] = e.String()
	}
	return out
}

// Connect configures the shared producer. Broker validation already ran in
// NewKafkaBus, so Connect itself has no further pre-flight checks.
func (b *KafkaBus) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.writer = &kafka.Writer{
		Addr: kafka.TCP(b.addrs()...),
		// Hash routes by key to a stable partition, giving the per-user
		// FIFO guarantee the engine relies on (spec.md §4.8).
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return nil
}

// Publish routes value to the partition owned by key, preserving
// per-key FIFO.
func (b *KafkaBus) Publish(topic, key string, value []byte) error {
	b.mu.Lock()
	writer := b.writer
	b.mu.Unlock()
	if writer == nil {
		return errors.New("bus: Connect must be called before Publish")
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}
	return writer.WriteMessages(context.Background(), msg)
}

// Subscribe registers handler for topic and starts a background consume
// goroutine reading topic from the earliest offset under the engine's fixed
// consumer group. Every call starts its own reader and its own goroutine;
// the goroutines of distinct topics share only the cancel that Close fires.
func (b *KafkaBus) Subscribe(topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[topic]; exists {
		return fmt.Errorf("bus: already subscribed to topic %q", topic)
	}
	b.handlers[topic] = handler

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.addrs(),
		Topic:       topic,
		GroupID:     b.groupID,
		StartOffset: kafka.FirstOffset,
	})
	b.readers = append(b.readers, reader)

	ctx, cancel := context.WithCancel(context.Background())
	if b.cancel == nil {
		b.cancel = cancel
	} else {
		// combine cancels: replacing b.cancel would leak the earlier
		// context, so wrap it.
		prev := b.cancel
		b.cancel = func() { prev(); cancel() }
	}

	b.wg.Add(1)
	go b.consumeLoop(ctx, reader, topic, handler)
	return nil
}

func (b *KafkaBus) consumeLoop(ctx context.Context, reader *kafka.Reader, topic string, handler Handler) {
	defer b.wg.Done()
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Error("bus: read failed", zap.String("topic", topic), zap.Error(err))
			continue
		}
		handler(Message{
			Topic:     msg.Topic,
			Key:       string(msg.Key),
			Value:     msg.Value,
			Partition: msg.Partition,
			Offset:    msg.Offset,
		})
	}
}

// Close stops every consume loop and closes the producer and all readers.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	cancel := b.cancel
	writer := b.writer
	readers := b.readers
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()

	var firstErr error
	if writer != nil {
		if err := writer.Close(); err != nil {
			firstErr = err
		}
	}
	for _, r := range readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
