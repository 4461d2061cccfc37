package box

import "testing"

func trackNew(f *Forest, id ID) Box {
	b := &fakeBox{id: id}
	f.Track(b)
	return b
}

// fakeBox is a minimal Box used only to exercise Forest bookkeeping,
// where identity is all that matters.
type fakeBox struct {
	id        ID
	finalized bool
}

func (b *fakeBox) TypeName() string    { return "Fake" }
func (b *fakeBox) TypeID() TypeID      { return 0 }
func (b *fakeBox) BoxID() ID           { return b.id }
func (b *fakeBox) CloneValue() Box     { return &fakeBox{id: NextID()} }
func (b *fakeBox) ShareReference() Box { return b }
func (b *fakeBox) Finalize()           { b.finalized = true }

func TestForestSingleStrongParent(t *testing.T) {
	f := NewForest(nil)
	a, c := NextID(), NextID()
	trackNew(f, a)
	trackNew(f, c)

	if err := f.Adopt(a, c); err != nil {
		t.Fatal(err)
	}
	other := NextID()
	trackNew(f, other)
	if err := f.Adopt(other, c); err == nil {
		t.Fatalf("expected ErrMultipleStrongParents")
	}
}

func TestForestCycleRejected(t *testing.T) {
	f := NewForest(nil)
	a, b := NextID(), NextID()
	trackNew(f, a)
	trackNew(f, b)

	if err := f.Adopt(a, b); err != nil {
		t.Fatal(err)
	}
	if err := f.Adopt(b, a); err == nil {
		t.Fatalf("expected cycle rejection")
	}
}

func TestForestFinalizeCascade(t *testing.T) {
	f := NewForest(nil)
	parentID := NextID()
	parent := &fakeBox{id: parentID}
	f.Track(parent)

	var child1, child2 *fakeBox
	c1ID, c2ID := NextID(), NextID()
	child1 = &fakeBox{id: c1ID}
	child2 = &fakeBox{id: c2ID}
	f.Track(child1)
	f.Track(child2)
	if err := f.Adopt(parentID, c1ID); err != nil {
		t.Fatal(err)
	}
	if err := f.Adopt(parentID, c2ID); err != nil {
		t.Fatal(err)
	}

	f.Finalize(parentID)
	if !parent.finalized || !child1.finalized || !child2.finalized {
		t.Fatalf("finalize did not cascade to all children")
	}

	// Idempotent: second call must not panic or re-run anything.
	parent.finalized = false
	f.Finalize(parentID)
	if parent.finalized {
		t.Fatalf("finalize re-ran on an already-finalized box")
	}
}

func TestWeakObservesFinalization(t *testing.T) {
	f := NewForest(nil)
	id := NextID()
	f.Track(&fakeBox{id: id})

	w := f.NewWeak(id)
	if !f.WeakCheck(w) {
		t.Fatalf("weak ref should be alive before finalize")
	}
	if _, ok := f.WeakLoad(w); !ok {
		t.Fatalf("weak load should succeed before finalize")
	}

	f.Finalize(id)

	if f.WeakCheck(w) {
		t.Fatalf("weak ref should be dead after finalize")
	}
	if v, ok := f.WeakLoad(w); ok || v != nil {
		t.Fatalf("weak load should yield (nil, false) after finalize")
	}
	// Repeating the checks yields the same (permanence, §8 invariant 3).
	if f.WeakCheck(w) {
		t.Fatalf("weak ref resurrected on repeated check")
	}
}

func TestFinalizerPanicRecovered(t *testing.T) {
	f := NewForest(nil)
	id := NextID()
	f.Track(&panickingBox{id: id})
	f.Finalize(id) // must not panic
	if !f.IsFinalized(id) {
		t.Fatalf("expected box to be marked finalized despite panic")
	}
}

type panickingBox struct{ id ID }

func (b *panickingBox) TypeName() string    { return "Panicker" }
func (b *panickingBox) TypeID() TypeID      { return 0 }
func (b *panickingBox) BoxID() ID           { return b.id }
func (b *panickingBox) CloneValue() Box     { return &panickingBox{id: NextID()} }
func (b *panickingBox) ShareReference() Box { return b }
func (b *panickingBox) Finalize()           { panic("boom") }
