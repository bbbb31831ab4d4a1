package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler receives the raw payload of one event.
type Handler func(channel string, payload []byte)

// Subscription is one active channel subscription. Closing it stops
// delivery.
type Subscription interface {
	Close() error
}

// Bus is a named-channel publish/subscribe abstraction. Implementations are
// safe for concurrent use.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error)
	Close() error
}

// MemoryBus is an in-process bus. Delivery is asynchronous; publish never
// blocks on slow handlers.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string]map[int]Handler
	next     int
	closed   bool
	logger   *logrus.Logger
}

// NewMemoryBus creates an in-process event bus.
func NewMemoryBus(logger *logrus.Logger) *MemoryBus {
	return &MemoryBus{
		handlers: make(map[string]map[int]Handler),
		logger:   logger,
	}
}

func (b *MemoryBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	for _, handler := range b.handlers[channel] {
		go handler(channel, payload)
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, channel string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[channel] == nil {
		b.handlers[channel] = make(map[int]Handler)
	}
	id := b.next
	b.next++
	b.handlers[channel][id] = handler

	return &memorySubscription{bus: b, channel: channel, id: id}, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[string]map[int]Handler)
	return nil
}

type memorySubscription struct {
	bus     *MemoryBus
	channel string
	id      int
	once    sync.Once
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if handlers, ok := s.bus.handlers[s.channel]; ok {
			delete(handlers, s.id)
			if len(handlers) == 0 {
				delete(s.bus.handlers, s.channel)
			}
		}
	})
	return nil
}
