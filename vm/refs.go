package vm

import "github.com/nyashlang/nyash-core/box"

// refBox is the runtime value a MIR RefGet/RefSet ValueId resolves to:
// a generic one-slot mutable cell, the register-machine counterpart of
// box.Cell[T] used throughout the box package (SPEC_FULL.md §C.4). It is
// tracked in the shared Forest like any other Box so that RefSet can
// Adopt a TBoxHandle value into it, mirroring the verifier's symbolic
// tryAdopt(ref, val) check at runtime.
type refBox struct {
	id   box.ID
	cell *box.Cell[box.Box]
}

func newRef(forest *box.Forest, initial box.Box) *refBox {
	r := &refBox{id: box.NextID(), cell: box.NewCell(initial)}
	forest.Track(r)
	return r
}

func (r *refBox) TypeName() string    { return "Ref" }
func (r *refBox) TypeID() box.TypeID  { return refTypeID }
func (r *refBox) BoxID() box.ID       { return r.id }
func (r *refBox) ShareReference() box.Box {
	return &refBox{id: r.id, cell: r.cell}
}
func (r *refBox) CloneValue() box.Box {
	// CloneValue has no Forest handle of its own; the VM never calls it
	// directly (register values are always freshly built via newRef), so
	// this exists only to satisfy the Box interface.
	cloned := &refBox{id: box.NextID(), cell: box.NewCell(r.get())}
	return cloned
}

func (r *refBox) get() box.Box {
	return box.Read(r.cell, func(v box.Box) box.Box { return v })
}

func (r *refBox) set(v box.Box) {
	box.Write(r.cell, func(slot *box.Box) { *slot = v })
}

// weakBox is the runtime value a MIR WeakNew ValueId resolves to: a
// box.WeakRef wrapped so it can live in a register alongside ordinary
// Box handles.
type weakBox struct {
	id     box.ID
	w      box.WeakRef
	forest *box.Forest
}

func newWeak(forest *box.Forest, target box.ID) *weakBox {
	w := &weakBox{id: box.NextID(), w: forest.NewWeak(target), forest: forest}
	forest.Track(w)
	return w
}

func (w *weakBox) TypeName() string       { return "Weak" }
func (w *weakBox) TypeID() box.TypeID     { return weakTypeID }
func (w *weakBox) BoxID() box.ID          { return w.id }
func (w *weakBox) ShareReference() box.Box { return w }
func (w *weakBox) CloneValue() box.Box     { return w }

const (
	refTypeID  box.TypeID = -9
	weakTypeID box.TypeID = -10
)
