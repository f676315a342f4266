package events

import "context"

// MemoryBus is an in-process Bus for tests and single-process setups where
// workers and the API share one binary.
type MemoryBus struct {
	hub *hub
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{hub: newHub()}
}

func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	b.hub.broadcast(ev)
	return nil
}

func (b *MemoryBus) Subscribe() (<-chan Event, func()) {
	return b.hub.subscribe()
}
