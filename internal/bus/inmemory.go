package bus

import (
	"sync"
)

// InMemoryBus is a Bus implementation used in tests and local development
// (no external Kafka broker). It preserves global publish order per topic,
// which is a stronger guarantee than the per-key ordering spec.md §4.8
// requires and is sufficient to exercise it.
type InMemoryBus struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queues   map[string][]Message
	handlers map[string]Handler
	closed   bool
	wg       sync.WaitGroup
}

// NewInMemoryBus constructs a ready-to-use in-memory bus.
func NewInMemoryBus() *InMemoryBus {
	b := &InMemoryBus{
		queues:   make(map[string][]Message),
		handlers: make(map[string]Handler),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Connect is a no-op; the in-memory bus has no external endpoint.
func (b *InMemoryBus) Connect() error { return nil }

// Publish appends value to topic's queue and wakes any waiting consumer
// loop.
func (b *InMemoryBus) Publish(topic, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.queues[topic] = append(b.queues[topic], Message{Topic: topic, Key: key, Value: value})
	b.cond.Broadcast()
	return nil
}

// Subscribe starts a dedicated consume loop for topic that invokes handler
// for every published message in publish order.
func (b *InMemoryBus) Subscribe(topic string, handler Handler) error {
	b.mu.Lock()
	b.handlers[topic] = handler
	b.mu.Unlock()

	b.wg.Add(1)
	go b.consumeLoop(topic)
	return nil
}

func (b *InMemoryBus) consumeLoop(topic string) {
	defer b.wg.Done()
	for {
		b.mu.Lock()
		for len(b.queues[topic]) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queues[topic]) == 0 && b.closed {
			b.mu.Unlock()
			return
		}
		msg := b.queues[topic][0]
		b.queues[topic] = b.queues[topic][1:]
		handler := b.handlers[topic]
		b.mu.Unlock()

		if handler != nil {
			handler(msg)
		}
	}
}

// Close stops every consume loop after draining pending messages.
func (b *InMemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}
