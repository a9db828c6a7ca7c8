package webhook

import (
	"context"
	"sort"
)

// Handler processes one webhook event type.
type Handler interface {
	Handle(ctx context.Context, body *Body) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, body *Body) (any, error)

// Handle calls f(ctx, body).
func (f HandlerFunc) Handle(ctx context.Context, body *Body) (any, error) {
	return f(ctx, body)
}

// Registry maps event types to handlers. It is built once at startup and
// never modified afterwards, so concurrent lookups need no locking.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates a registry from a copy of handlers. Nil handlers are
// skipped.
func NewRegistry(handlers map[string]Handler) *Registry {
	copied := make(map[string]Handler, len(handlers))
	for event, handler := range handlers {
		if handler != nil {
			copied[event] = handler
		}
	}
	return &Registry{handlers: copied}
}

// Lookup returns the handler registered for eventType.
func (r *Registry) Lookup(eventType string) (Handler, bool) {
	handler, ok := r.handlers[eventType]
	return handler, ok
}

// Events returns the registered event types in sorted order.
func (r *Registry) Events() []string {
	events := make([]string, 0, len(r.handlers))
	for event := range r.handlers {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

// Count returns the number of registered event types.
func (r *Registry) Count() int {
	return len(r.handlers)
}
