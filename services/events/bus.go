package eventsvc

import (
	"context"
	"sync"

	"github.com/trezcool/feeledger/core"
)

// Bus hands every event to each of its publishers, in order.
type Bus struct {
	publishers []core.EventPublisher
}

var _ core.EventPublisher = (*Bus)(nil)

func NewBus(publishers ...core.EventPublisher) *Bus {
	return &Bus{publishers: publishers}
}

func (b *Bus) Subscribe(p core.EventPublisher) {
	b.publishers = append(b.publishers, p)
}

func (b *Bus) Publish(ctx context.Context, events ...core.LedgerEvent) {
	if len(events) == 0 {
		return
	}
	for _, p := range b.publishers {
		p.Publish(ctx, events...)
	}
}

// Memory keeps published events in memory.
type Memory struct {
	mu     sync.Mutex
	events []core.LedgerEvent
}

var _ core.EventPublisher = (*Memory)(nil)

func (m *Memory) Publish(_ context.Context, events ...core.LedgerEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
}

func (m *Memory) Events() []core.LedgerEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.LedgerEvent{}, m.events...)
}

func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
