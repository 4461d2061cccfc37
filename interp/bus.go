package interp

import (
	"container/list"
	"context"
	"sync"

	"github.com/nyashlang/nyash-core/box"
	"golang.org/x/xerrors"
)

// busKey identifies one ordered channel of the bus: a (source, target)
// pair of outbox-addressable names, mirroring MIR's Bus instruction
// (spec.md §4.4) which carries Peer as the other endpoint.
type busKey struct {
	source, target string
}

// Bus implements Send/Recv with strict per-(source,target) FIFO
// ordering (SPEC_FULL.md §C.5): messages sent from the same source to
// the same target are observed by Recv in send order, using
// container/list as the queue exactly as a classic Go producer/consumer
// channel-replacement would, guarded by a Mutex/Cond pair rather than a
// buffered chan so that Recv can block without a fixed capacity.
type Bus struct {
	mu    sync.Mutex
	cond  *sync.Cond
	lines map[busKey]*list.List
	closed bool
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	b := &Bus{lines: make(map[busKey]*list.List)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send enqueues v on the (source, target) line and wakes any blocked
// Recv.
func (b *Bus) Send(source, target string, v box.Box) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := busKey{source, target}
	q, ok := b.lines[k]
	if !ok {
		q = list.New()
		b.lines[k] = q
	}
	q.PushBack(v)
	b.cond.Broadcast()
}

// Recv blocks until a message is available on the (source, target)
// line, ctx is canceled, or Close is called.
func (b *Bus) Recv(ctx context.Context, source, target string) (box.Box, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			b.cond.Broadcast()
		case <-done:
		}
	}()

	b.mu.Lock()
	defer b.mu.Unlock()
	k := busKey{source, target}
	for {
		if q, ok := b.lines[k]; ok && q.Len() > 0 {
			front := q.Remove(q.Front())
			return front.(box.Box), nil
		}
		if b.closed {
			return nil, xerrors.Errorf("interp: bus closed while waiting on %s -> %s", source, target)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		b.cond.Wait()
	}
}

// Close unblocks every pending Recv with an error, used at program
// shutdown.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}
