package box

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/nyashlang/nyash-core/finalize"
	"golang.org/x/xerrors"
)

// WeakRef is a non-owning reference to a Box. It does not keep the
// referent alive and observably becomes dead once the referent has been
// finalized (spec.md §3.2). The pair (id, generation) lets WeakLoad and
// WeakCheck answer in O(1) without scanning: a WeakRef is dead exactly
// when its recorded generation no longer matches the live node's
// generation (or the node is gone).
type WeakRef struct {
	id         ID
	generation uint64
}

// node is the Forest's bookkeeping record for one live Box.
type node struct {
	box            Box
	strongParent   ID // 0 means no strong parent
	strongChildren []ID
	generation     uint64 // bumped on finalize; invalidates WeakRefs
	finalized      bool
}

// Forest maintains the strong-parent ownership forest of spec.md §3.2:
// every Box has at most one strong parent, the strong-parent relation is
// acyclic, and finalization cascades to strong children before the
// parent's own finalizer completes. A single Forest is shared by the
// interpreter and the VM (they operate on the same Box graph), the same
// way a single go/ssa Program is shared by every Function built from
// it.
type Forest struct {
	mu    sync.Mutex
	nodes map[ID]*node
	log   *finalize.PanicLog
}

// NewForest returns an empty Forest. If log is nil, finalize.Default is
// used to collect any panics recovered from `fini` bodies.
func NewForest(log *finalize.PanicLog) *Forest {
	if log == nil {
		log = finalize.Default
	}
	return &Forest{nodes: make(map[ID]*node), log: log}
}

// Track registers b with the forest. It must be called exactly once per
// Box, at construction, before the Box can participate in Adopt/Release
// or be the target of a WeakRef.
func (f *Forest) Track(b Box) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[b.BoxID()] = &node{box: b}
}

// Forget removes bookkeeping for an immutable/primitive Box that will
// never be adopted, weak-referenced, or finalized (spec.md §3.1's
// "primitive ... Box types ... indistinguishable from identity"). It is
// an optimization, not a correctness requirement; calling Track is
// always safe too.
func (f *Forest) Forget(id ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nodes, id)
}

// Adopt establishes a strong-parent edge from parent to child, per
// MIR's NewBox/Adopt semantics (spec.md §4.4). Adopting child under the
// strong parent it already has is a no-op. It fails with
// ErrMultipleStrongParents if child already has a different strong
// parent, and with ErrStrongCycle if parent is (transitively) a strong
// descendant of child — both are the runtime counterpart of the MIR
// ownership verifier's static checks (§4.4, §8 invariants 1-2).
func (f *Forest) Adopt(parent, child ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cn, ok := f.nodes[child]
	if !ok {
		return xerrors.Errorf("box: adopt: unknown child %d", child)
	}
	if cn.strongParent == parent {
		return nil
	}
	if cn.strongParent != 0 {
		return xerrors.Errorf("box: adopt %d -> %d: %w", parent, child, ErrMultipleStrongParents)
	}
	if f.reaches(parent, child) {
		return xerrors.Errorf("box: adopt %d -> %d would create a cycle: %w", parent, child, ErrStrongCycle)
	}
	pn, ok := f.nodes[parent]
	if !ok {
		return xerrors.Errorf("box: adopt: unknown parent %d", parent)
	}
	cn.strongParent = parent
	pn.strongChildren = append(pn.strongChildren, child)
	return nil
}

// reaches reports whether walking strong-parent edges from start ever
// reaches target. Caller must hold f.mu.
func (f *Forest) reaches(start, target ID) bool {
	for cur := start; cur != 0; {
		if cur == target {
			return true
		}
		n, ok := f.nodes[cur]
		if !ok {
			return false
		}
		cur = n.strongParent
	}
	return false
}

// Release downgrades a strong edge: it detaches child from its strong
// parent without finalizing it, the MIR `Release` instruction's runtime
// counterpart (§4.4 Tier 2). The child becomes parentless; any existing
// WeakRefs to it remain valid since it has not been finalized.
func (f *Forest) Release(child ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cn, ok := f.nodes[child]
	if !ok || cn.strongParent == 0 {
		return
	}
	pn := f.nodes[cn.strongParent]
	cn.strongParent = 0
	if pn == nil {
		return
	}
	for i, c := range pn.strongChildren {
		if c == child {
			pn.strongChildren = append(pn.strongChildren[:i], pn.strongChildren[i+1:]...)
			break
		}
	}
}

// NewWeak returns a WeakRef to the Box identified by id. The WeakRef
// observes all future finalizations of that Box, including ones that
// happen after NewWeak returns.
func (f *Forest) NewWeak(id ID) WeakRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.nodes[id]
	if n == nil {
		// Referent already gone (or never tracked): return a WeakRef
		// that is permanently dead, generation 1 ahead of any possible
		// live node.
		return WeakRef{id: id, generation: 1}
	}
	return WeakRef{id: id, generation: n.generation}
}

// WeakLoad returns a shared reference to w's referent, or (nil, false)
// if it has been finalized — deterministically, per §8 invariant 3 and
// §9's "weak observes finalization as null/false".
func (f *Forest) WeakLoad(w WeakRef) (Box, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.nodes[w.id]
	if n == nil || n.finalized || n.generation != w.generation {
		return nil, false
	}
	return n.box.ShareReference(), true
}

// WeakCheck reports whether w's referent is still alive.
func (f *Forest) WeakCheck(w WeakRef) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.nodes[w.id]
	return n != nil && !n.finalized && n.generation == w.generation
}

// Finalize finalizes the Box identified by id: strong children are
// finalized first (in reverse adoption order, which for a user-defined
// instance's fields adopted during `birth` in declaration order yields
// "reverse declaration order" per spec.md §4.3), then the Box's own
// Finalizer.Finalize (if any) runs, then all WeakRefs to id are
// invalidated. Finalize is idempotent: a second call on an
// already-finalized id is a no-op (§8 law, §3.2).
func (f *Forest) Finalize(id ID) {
	f.mu.Lock()
	n := f.nodes[id]
	if n == nil || n.finalized {
		f.mu.Unlock()
		return
	}
	n.finalized = true
	children := append([]ID(nil), n.strongChildren...)
	n.strongChildren = nil
	b := n.box
	f.mu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		f.Finalize(children[i])
	}

	if fin, ok := b.(Finalizer); ok {
		f.runFinalizerSafely(b, fin)
	}

	f.mu.Lock()
	n.generation++
	f.mu.Unlock()
}

// runFinalizerSafely invokes fin.Finalize, recovering and logging any
// panic rather than letting it propagate — "a panic inside a fini body
// is caught, logged, and does not prevent subsequent cascaded
// finalizations" (spec.md §7).
func (f *Forest) runFinalizerSafely(b Box, fin Finalizer) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Record(finalize.Entry{
				BoxID:     uint64(b.BoxID()),
				TypeName:  b.TypeName(),
				Recovered: r,
				Stack:     debug.Stack(),
				At:        time.Now(),
			})
		}
	}()
	fin.Finalize()
}

// Tracked reports whether id is registered with the forest at all —
// false for a bare primitive literal (box.NewInteger and similar never
// call Track) or any id the forest has never seen, as opposed to
// IsFinalized's false-for-already-gone. Adopt/DropStrongRef callers use
// this to skip ownership bookkeeping for values that were never meant
// to participate in it (spec.md §3.1's "primitive Box types").
func (f *Forest) Tracked(id ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.nodes[id]
	return ok
}

// IsFinalized reports whether id has already been finalized.
func (f *Forest) IsFinalized(id ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.nodes[id]
	return n == nil || n.finalized
}

// StrongParent returns the current strong parent of id, or 0 if none.
func (f *Forest) StrongParent(id ID) ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.nodes[id]
	if n == nil {
		return 0
	}
	return n.strongParent
}

// DropStrongRef severs the strong edge from parent to child and, if
// parent was child's only strong parent, finalizes child: the runtime
// counterpart of "a Box is finalized ... when its last strong reference
// is dropped" (spec.md §3.2) for the case where that drop is a field or
// Ref overwrite rather than an explicit fini() call. A no-op if parent
// is not (or is no longer) child's strong parent, so a caller can call
// this unconditionally before writing a new value over an old one.
func (f *Forest) DropStrongRef(parent, child ID) {
	if f.StrongParent(child) != parent {
		return
	}
	f.Release(child)
	f.Finalize(child)
}
