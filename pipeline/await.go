// Package pipeline adapts callback-style storage operations into blocking,
// context-aware calls and sequences them into named chains.
//
// An awaited operation resolves exactly once: with the success value, with the
// failure, or with an Aborted error when ctx ends first. A late callback after
// cancellation is dropped.
package pipeline

import (
	"context"
	"sync"

	"github.com/brettbedarf/entryfs"
)

// Await starts an asynchronous operation and blocks until it reports or ctx
// is done. op names the operation in the Aborted error.
//
// Await must not be called from a storage callback of the same storage; the
// callback would wait on a task queued behind itself.
func Await[T any](ctx context.Context, op string, start func(success func(T), fail func(error))) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	var once sync.Once
	settle := func(r result) {
		once.Do(func() { ch <- r })
	}

	start(
		func(v T) { settle(result{v: v}) },
		func(err error) { settle(result{err: err}) },
	)

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, entryfs.WrapError(entryfs.Aborted, op, "", ctx.Err())
	}
}

// AwaitDone is Await for operations whose success callback carries no value
func AwaitDone(ctx context.Context, op string, start func(success func(), fail func(error))) error {
	_, err := Await(ctx, op, func(ok func(struct{}), fail func(error)) {
		start(func() { ok(struct{}{}) }, fail)
	})
	return err
}
