// Package chans holds small helpers for context-aware channel receives.
package chans

import (
	"context"
	"iter"
)

// ReceiveOrDone blocks until a value arrives on ch, ch is closed, or ctx is done. The boolean is false in the last
// two cases.
func ReceiveOrDone[T any](ctx context.Context, ch <-chan T) (T, bool) {
	var zero T
	if ctx.Err() != nil {
		return zero, false
	}

	select {
	case <-ctx.Done():
		return zero, false
	case v, ok := <-ch:
		return v, ok
	}
}

// ReceiveOrDoneSeq ranges over ch until it is closed or ctx is done. Workers use it as
//
//	for v := range chans.ReceiveOrDoneSeq(ctx, ch) { ... }
func ReceiveOrDoneSeq[T any](ctx context.Context, ch <-chan T) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok := ReceiveOrDone(ctx, ch)
			if !ok || !yield(v) {
				return
			}
		}
	}
}
