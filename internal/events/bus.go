package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Handler consumes a published event. Handlers must be safe for
// concurrent use; slow handlers do not block publishers.
type Handler func(Event)

// Bus is an in-process publish/subscribe fan-out for domain events.
// Subscribers are registered once at startup, before the first Publish.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	wg       sync.WaitGroup
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers the event to every subscriber asynchronously.
// It never blocks the caller.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	log.Debug().
		Str("event", string(evt.Name)).
		Str("account_id", evt.AccountID.String()).
		Msg("Publishing domain event")

	for _, h := range handlers {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			h(evt)
		}(h)
	}
}

// Wait blocks until all in-flight handler invocations finish.
// Used on shutdown and in tests.
func (b *Bus) Wait() {
	b.wg.Wait()
}
