// Package async provides combinators for running an ordered list of
// blocking operations one after another.
//
// Both combinators run their operations strictly in slice order on the
// calling goroutine. Callers rely on that ordering, for example to try a
// local store before falling back to the GitHub API, or to persist a list of
// repositories one row at a time.
package async

import (
	"context"
	"errors"
)

// ErrEmptyInput is returned by FirstSuccess when it is given no operations.
var ErrEmptyInput = errors.New("async: no operations to attempt")

// Operation is a unit of work that eventually yields a T or fails.
type Operation[T any] func(ctx context.Context) (T, error)

// Step is the function folded over the items passed to Reduce.
type Step[T, A any] func(ctx context.Context, acc A, item T, index int, items []T) (A, error)

// FirstSuccess attempts each operation in order and returns the value of the
// first one that succeeds. Operations after it are never invoked.
//
// If every operation fails, the error of the last operation is returned
// unchanged. Earlier errors are discarded.
func FirstSuccess[T any](ctx context.Context, ops []Operation[T]) (T, error) {
	var zero T
	if len(ops) == 0 {
		return zero, ErrEmptyInput
	}

	var lastErr error
	for _, op := range ops {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}

	return zero, lastErr
}

// Reduce folds step over items from left to right. Each step must return
// before the next one is started. An empty items slice yields initial
// without calling step.
//
// The first failing step aborts the fold: its error is returned unchanged
// and the partial accumulator is dropped.
func Reduce[T, A any](ctx context.Context, items []T, step Step[T, A], initial A) (A, error) {
	acc := initial
	for i, item := range items {
		next, err := step(ctx, acc, item, i, items)
		if err != nil {
			var zero A
			return zero, err
		}
		acc = next
	}

	return acc, nil
}
