package eventbus

import "context"

// Handler processes events on the bus. Handlers registered for the same
// event type run concurrently with no ordering guarantee between them.
type Handler interface {
	// ID returns a unique identifier for this handler.
	ID() string

	// Handles returns the event types this handler processes.
	Handles() []EventType

	// Handle processes a single event and may record outcomes on the
	// aggregated result. Returning an error is logged and recorded on the
	// result but never blocks sibling handlers or fails the publish.
	Handle(ctx context.Context, event *Event, result *Result) error
}
