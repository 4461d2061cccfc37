package interp

import (
	"context"
	"sync"

	"github.com/nyashlang/nyash-core/box"
	"golang.org/x/sync/errgroup"
)

// Future is the Box produced by `nowait expr` and consumed by
// `await future` (spec.md §4.1, §4.5). Its result is delivered exactly
// once; Await may be called more than once and always observes the same
// outcome.
type Future struct {
	id     box.ID
	once   sync.Once
	done   chan struct{}
	result box.Box
	err    error
}

func newFuture() *Future {
	return &Future{id: box.NextID(), done: make(chan struct{})}
}

func (f *Future) TypeName() string  { return "Future" }
func (f *Future) TypeID() box.TypeID { return futureTypeID }
func (f *Future) BoxID() box.ID      { return f.id }

// CloneValue and ShareReference both return f itself: a future's
// identity is its single eventual outcome, so there is nothing a clone
// would meaningfully copy ahead of completion.
func (f *Future) CloneValue() box.Box     { return f }
func (f *Future) ShareReference() box.Box { return f }

func (f *Future) complete(result box.Box, err error) {
	f.once.Do(func() {
		f.result, f.err = result, err
		close(f.done)
	})
}

// Await blocks until the future completes, respecting ctx cancellation.
func (f *Future) Await(ctx context.Context) (box.Box, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

const futureTypeID box.TypeID = -8

// Scheduler runs `nowait` bodies concurrently on an errgroup.Group so
// that a program-level Wait can join every outstanding strand
// (SPEC_FULL.md §B: golang.org/x/sync wired into nowait/await). No
// limit is set on how many bodies run at once.
type Scheduler struct {
	group *errgroup.Group
	ctx   context.Context
}

// NewScheduler returns a Scheduler whose errgroup is derived from ctx.
// Canceling ctx neither interrupts running bodies nor ends an Await
// wait: Await observes only the context passed to it.
func NewScheduler(ctx context.Context) *Scheduler {
	g, ctx := errgroup.WithContext(ctx)
	return &Scheduler{group: g, ctx: ctx}
}

// Nowait schedules fn and returns a Future immediately.
func (s *Scheduler) Nowait(fn func() (box.Box, error)) *Future {
	f := newFuture()
	s.group.Go(func() error {
		result, err := fn()
		f.complete(result, err)
		return nil // errors are delivered through the Future, not the group
	})
	return f
}

// Wait blocks until every scheduled body has completed.
func (s *Scheduler) Wait() error { return s.group.Wait() }
