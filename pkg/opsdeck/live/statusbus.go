package live

import (
	"sync"

	"go.uber.org/zap"
)

// statusBus fans StatusEvents out to registered listeners. Delivery order
// is registration order, and each invocation is isolated: a panicking
// listener is recovered and logged without aborting the broadcast.
type statusBus struct {
	logger *zap.Logger

	mu        sync.Mutex
	nextID    ListenerID
	order     []ListenerID
	listeners map[ListenerID]StatusListener
}

func newStatusBus(logger *zap.Logger) *statusBus {
	return &statusBus{
		logger:    logger,
		listeners: make(map[ListenerID]StatusListener),
	}
}

func (b *statusBus) add(listener StatusListener) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.order = append(b.order, id)
	b.listeners[id] = listener
	return id
}

func (b *statusBus) remove(id ListenerID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.listeners[id]; !ok {
		return
	}
	delete(b.listeners, id)
	for i, other := range b.order {
		if other == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *statusBus) emit(event StatusEvent) {
	b.mu.Lock()
	snapshot := make([]StatusListener, 0, len(b.order))
	for _, id := range b.order {
		if listener, ok := b.listeners[id]; ok {
			snapshot = append(snapshot, listener)
		}
	}
	b.mu.Unlock()

	for _, listener := range snapshot {
		b.invoke(listener, event)
	}
}

func (b *statusBus) invoke(listener StatusListener, event StatusEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Status listener panicked",
				zap.String("status", string(event.Status)),
				zap.String("topic", event.Topic),
				zap.Any("panic", r))
		}
	}()
	listener(event)
}
