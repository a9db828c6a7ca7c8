package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"checkhub/internal/apperror"
)

func newTestDispatcher(handlers map[string]Handler) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(NewRegistry(handlers), logger)
}

func mustParseBody(t *testing.T, raw string) *Body {
	t.Helper()
	body, err := ParseBody([]byte(raw))
	if err != nil {
		t.Fatalf("Failed to parse body: %v", err)
	}
	return body
}

func TestDispatch_UnknownEvent(t *testing.T) {
	d := newTestDispatcher(nil)

	_, err := d.Dispatch(context.Background(), "push", mustParseBody(t, `{}`))
	if err == nil {
		t.Fatal("Expected error for unregistered event")
	}
	if !apperror.Is(err, apperror.NotFound) {
		t.Errorf("Expected NotFound error, got %v", err)
	}
	if apperror.StatusCode(err) != 404 {
		t.Errorf("Expected status 404, got %d", apperror.StatusCode(err))
	}
	if !errors.Is(err, ErrUnsupportedEvent) {
		t.Errorf("Expected ErrUnsupportedEvent, got %v", err)
	}
}

func TestDispatch_ReturnsHandlerResult(t *testing.T) {
	want := map[string]any{"checks": []string{"approval"}}
	var received *Body

	d := newTestDispatcher(map[string]Handler{
		"push": HandlerFunc(func(ctx context.Context, body *Body) (any, error) {
			received = body
			return want, nil
		}),
	})

	body := mustParseBody(t, `{"ref":"refs/heads/main"}`)
	got, err := d.Dispatch(context.Background(), "push", body)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected handler result %v, got %v", want, got)
	}
	if received != body {
		t.Error("Expected handler to receive the dispatched body")
	}
}

func TestDispatch_PropagatesHandlerError(t *testing.T) {
	cause := errors.New("database is locked")
	handlerErr := apperror.NewRepositoryHandlerError("repository 7 not found", cause)

	d := newTestDispatcher(map[string]Handler{
		"pull_request": HandlerFunc(func(ctx context.Context, body *Body) (any, error) {
			return nil, handlerErr
		}),
	})

	_, err := d.Dispatch(context.Background(), "pull_request", mustParseBody(t, `{}`))
	if err != handlerErr {
		t.Fatalf("Expected handler error to pass through unchanged, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("Expected cause to be preserved")
	}
}

func TestRegistry_IsACopy(t *testing.T) {
	handlers := map[string]Handler{
		"ping": HandlerFunc(func(ctx context.Context, body *Body) (any, error) { return "pong", nil }),
	}
	registry := NewRegistry(handlers)

	handlers["push"] = handlers["ping"]
	delete(handlers, "ping")

	if _, ok := registry.Lookup("ping"); !ok {
		t.Error("Expected registry to keep 'ping' after source map changed")
	}
	if _, ok := registry.Lookup("push"); ok {
		t.Error("Expected registry not to see entries added after construction")
	}
}

func TestRegistry_Events(t *testing.T) {
	noop := HandlerFunc(func(ctx context.Context, body *Body) (any, error) { return nil, nil })
	registry := NewRegistry(map[string]Handler{
		"pull_request": noop,
		"ping":         noop,
		"skipped":      nil,
	})

	if got := registry.Events(); !reflect.DeepEqual(got, []string{"ping", "pull_request"}) {
		t.Errorf("Expected sorted events without nil handlers, got %v", got)
	}
	if registry.Count() != 2 {
		t.Errorf("Expected 2 handlers, got %d", registry.Count())
	}
}
