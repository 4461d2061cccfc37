package plugin

import (
	"context"
	"os"

	"github.com/nyashlang/nyash-core/diag"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"
)

// AllocFunc lets a plugin ask the host for scratch memory sized for a
// result it cannot fit in the value it was first asked to produce
// (spec.md §4.7's SHORT_BUFFER convention: the host allocates and the
// plugin retries). Go-to-Go Invoke never needs this path (see
// InvokeFunc's doc in abi.go), but HostVTable still carries it so a
// plugin written against the literal ABI can be ported without a
// second host-side seam.
type AllocFunc func(size int) []byte

// LogFunc lets a plugin emit diagnostics through the host's logger
// rather than writing its shared library's own stderr.
type LogFunc func(level, message string)

// WakeFunc notifies the host that a previously-deferred async result
// (spec.md's nowait/future continuations, §4.5) is ready; plugins that
// do their own I/O call this instead of blocking the host's strand.
type WakeFunc func(token uint64)

// HostVTable is the set of callbacks the host passes into
// NyashPluginInit (spec.md §4.7 "host vtable"), letting a plugin log,
// request buffers and signal completion without linking the host's
// packages directly.
type HostVTable struct {
	Alloc AllocFunc
	Log   LogFunc
	Wake  WakeFunc
}

// NewHostVTable builds the vtable a Loader installs for every plugin it
// loads. Log writes through unix.Write straight to stderr's file
// descriptor rather than through a buffered os.Stderr write: a plugin
// that has corrupted its own higher-level state (panic recovery
// mid-unwind, broken libc state) can still get a line out. Everything
// else this process logs goes through the shared diag.Reporter; only
// this one boundary bypasses it.
func NewHostVTable(reporter diag.Reporter, wake WakeFunc) *HostVTable {
	r := diag.Or(reporter)
	fd := int(os.Stderr.Fd())
	return &HostVTable{
		Alloc: func(size int) []byte { return make([]byte, size) },
		Log: func(level, message string) {
			line := "[" + level + "] nyash-plugin: " + message + "\n"
			if _, err := unix.Write(fd, []byte(line)); err != nil {
				r.Logf("plugin: writing host log line: %v", err)
			}
		},
		Wake: wake,
	}
}

// reentryGuard enforces spec.md §4.7's single-threaded-per-plugin
// re-entrancy model: NyashPluginInvoke must never run concurrently with
// itself, or with NyashPluginFini, for a given loaded plugin instance.
// A weighted semaphore with capacity 1 gives both a blocking Enter,
// which Loaded.call in loader.go uses, and a non-blocking TryEnter
// probe.
type reentryGuard struct {
	sem *semaphore.Weighted
}

func newReentryGuard() *reentryGuard {
	return &reentryGuard{sem: semaphore.NewWeighted(1)}
}

func (g *reentryGuard) TryEnter() bool {
	return g.sem.TryAcquire(1)
}

func (g *reentryGuard) Enter(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

func (g *reentryGuard) Leave() {
	g.sem.Release(1)
}
