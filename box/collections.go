package box

import "strconv"

// ArrayBox and MapBox are the canonical stateful builtin Boxes: they
// exist to give the ownership forest, the Cell synchronization policy,
// and the clone/share contract something concrete to operate on, not to
// be a complete standard-library collection (spec.md §1 explicitly
// treats the rich built-in Box library as an out-of-scope external
// collaborator). Both wrap their interior state in a *Cell so that
// ShareReference is a true reference share and CloneValue is a deep
// copy under a fresh identity and a fresh Cell, exactly the split
// spec.md §3.1 calls "the single most common source of state-loss bugs"
// if gotten wrong.

// ArrayBox is a stateful, mutable sequence of Boxes.
type ArrayBox struct {
	id   ID
	cell *Cell[[]Box]
}

func NewArray(elems []Box) *ArrayBox {
	cp := append([]Box(nil), elems...)
	return &ArrayBox{id: NextID(), cell: NewCell(cp)}
}

func (b *ArrayBox) TypeName() string { return "Array" }
func (b *ArrayBox) TypeID() TypeID   { return typeIDArray }
func (b *ArrayBox) BoxID() ID        { return b.id }

// ShareReference returns another handle pointing at the same Cell and
// the same identity: mutations through either handle are visible
// through both, which is exactly what "variable reads share rather
// than clone" (spec.md §8 scenario 1) depends on for stateful Boxes.
func (b *ArrayBox) ShareReference() Box {
	return &ArrayBox{id: b.id, cell: b.cell}
}

// CloneValue deep-copies the interior slice (and every element, if the
// element itself is cloneable) into a new Cell under a fresh identity.
func (b *ArrayBox) CloneValue() Box {
	snap := b.cell.Snapshot()
	out := make([]Box, len(snap))
	for i, e := range snap {
		if e == nil {
			continue
		}
		out[i] = e.CloneValue()
	}
	return &ArrayBox{id: NextID(), cell: NewCell(out)}
}

func (b *ArrayBox) ToString() string {
	return "Array(len=" + strconv.Itoa(b.Len()) + ")"
}

func (b *ArrayBox) Len() int {
	return Read(b.cell, func(s []Box) int { return len(s) })
}

func (b *ArrayBox) Get(i int) (Box, bool) {
	return Read(b.cell, func(s []Box) (Box, bool) {
		if i < 0 || i >= len(s) {
			return nil, false
		}
		return s[i], true
	})
}

func (b *ArrayBox) Push(v Box) {
	Write(b.cell, func(s *[]Box) { *s = append(*s, v) })
}

func (b *ArrayBox) Set(i int, v Box) bool {
	ok := false
	Write(b.cell, func(s *[]Box) {
		if i >= 0 && i < len(*s) {
			(*s)[i] = v
			ok = true
		}
	})
	return ok
}

func (b *ArrayBox) AsAny() any { return b.cell.Snapshot() }

// MapBox is a stateful, mutable string-keyed map of Boxes, following
// the same Cell-backed share/clone split as ArrayBox.
type MapBox struct {
	id   ID
	cell *Cell[map[string]Box]
}

func NewMap() *MapBox {
	return &MapBox{id: NextID(), cell: NewCell(make(map[string]Box))}
}

func (b *MapBox) TypeName() string { return "Map" }
func (b *MapBox) TypeID() TypeID   { return typeIDMap }
func (b *MapBox) BoxID() ID        { return b.id }

func (b *MapBox) ShareReference() Box {
	return &MapBox{id: b.id, cell: b.cell}
}

func (b *MapBox) CloneValue() Box {
	snap := b.cell.Snapshot()
	out := make(map[string]Box, len(snap))
	for k, v := range snap {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = v.CloneValue()
	}
	return &MapBox{id: NextID(), cell: NewCell(out)}
}

func (b *MapBox) ToString() string { return "Map(len=" + strconv.Itoa(b.Len()) + ")" }

func (b *MapBox) Len() int {
	return Read(b.cell, func(m map[string]Box) int { return len(m) })
}

func (b *MapBox) Get(key string) (Box, bool) {
	return Read(b.cell, func(m map[string]Box) (Box, bool) {
		v, ok := m[key]
		return v, ok
	})
}

func (b *MapBox) Put(key string, v Box) {
	Write(b.cell, func(m *map[string]Box) { (*m)[key] = v })
}

func (b *MapBox) AsAny() any { return b.cell.Snapshot() }

const (
	typeIDArray TypeID = -6
	typeIDMap   TypeID = -7
)
