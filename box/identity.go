package box

import "sync/atomic"

// ID is a Box's process-wide stable identity. It is assigned once at
// creation, preserved across ShareReference, and replaced on CloneValue.
type ID uint64

// TypeID is a type's process-wide stable identity, assigned by the
// Registry at registration time.
type TypeID int32

// counter is the monotonic source of Box identities. A Box must never
// reuse an ID, even after finalization, so that a stale ID can never be
// mistaken for a different, later Box (the same discipline go/ssa uses
// for its per-function ValueId allocation, just process-wide instead of
// per-function).
var counter uint64

// NextID returns a fresh, never-before-issued Box identity.
func NextID() ID {
	return ID(atomic.AddUint64(&counter, 1))
}
