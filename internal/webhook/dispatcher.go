package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"checkhub/internal/apperror"
)

const tracerName = "checkhub/internal/webhook"

// ErrUnsupportedEvent is the cause of the error returned for event types
// without a registered handler.
var ErrUnsupportedEvent = errors.New("unsupported event type")

// Dispatcher routes verified webhook payloads to the handler registered for
// their event type.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if registry == nil {
		registry = NewRegistry(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// Registry returns the registry the dispatcher routes through.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs the handler for eventType and returns its result or error
// unchanged. Unknown event types fail with a NotFound error.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, body *Body) (any, error) {
	ctx, span := d.tracer.Start(ctx, "hook.dispatch", trace.WithAttributes(
		attribute.String("github.event", eventType),
	))
	defer span.End()

	handler, ok := d.registry.Lookup(eventType)
	if !ok {
		err := apperror.Wrap(ErrUnsupportedEvent, apperror.NotFound, fmt.Sprintf("no handler for %q", eventType), 0)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Debug("No handler for event", "event", eventType)
		return nil, err
	}

	d.logger.Debug("Dispatching event", "event", eventType)
	result, err := handler.Handle(ctx, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}
