// Package eventbus dispatches workflow events to registered handlers.
//
// Handlers matching an event's type run concurrently; Publish returns only
// after every matching handler has settled. A handler failure (error return
// or panic) is caught, logged, and recorded on the result — it never prevents
// sibling handlers from running and never fails the publish itself.
package eventbus

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Bus dispatches events to registered handlers.
type Bus struct {
	handlers []Handler
	mu       sync.RWMutex
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{}
}

// Register adds a handler to the bus.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Unregister removes the handler with the given ID. Unknown IDs are a no-op.
func (b *Bus) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.handlers[:0]
	for _, h := range b.handlers {
		if h.ID() != id {
			kept = append(kept, h)
		}
	}
	b.handlers = kept
}

// Handlers returns all registered handlers (for introspection/status reporting).
func (b *Bus) Handlers() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, len(b.handlers))
	copy(out, b.handlers)
	return out
}

// Publish sends an event to every registered handler that handles its type,
// each in its own goroutine, and returns once all have settled. Handlers
// registered after Publish is called do not see the event. The returned
// error covers only bus-level problems (nil event); handler failures live on
// the Result.
func (b *Bus) Publish(ctx context.Context, event *Event) (*Result, error) {
	if event == nil {
		return nil, fmt.Errorf("eventbus: nil event")
	}

	b.mu.RLock()
	matching := b.matchingHandlers(event.Type)
	b.mu.RUnlock()

	result := &Result{}

	var wg sync.WaitGroup
	for _, h := range matching {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			if err := b.invoke(ctx, h, event, result); err != nil {
				log.Printf("eventbus: handler %q error for %s: %v", h.ID(), event.Type, err)
				result.recordError(h.ID(), err)
			}
		}(h)
	}
	wg.Wait()

	return result, nil
}

// invoke calls one handler, converting a panic into an error so one broken
// handler cannot take down the process or its siblings.
func (b *Bus) invoke(ctx context.Context, h Handler, event *Event, result *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, event, result)
}

// matchingHandlers returns handlers that handle the given event type.
// Must be called with at least a read lock held.
func (b *Bus) matchingHandlers(eventType EventType) []Handler {
	var matched []Handler
	for _, h := range b.handlers {
		for _, t := range h.Handles() {
			if t == eventType {
				matched = append(matched, h)
				break
			}
		}
	}
	return matched
}
