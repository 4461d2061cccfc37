package box

import (
	"fmt"
	"hash/fnv"

	"golang.org/x/text/unicode/norm"
)

// Primitive, immutable Box types. Per spec.md §3.1, these may implement
// ShareReference as CloneValue because their state is indistinguishable
// from identity — there is nothing a second handle could observe that
// the first handle's value doesn't already fully determine. They are
// not part of an excluded "standard library of built-in Box types";
// they are the literal forms the interpreter and MIR builder must be
// able to produce for int/float/bool/null/string literals, so they live
// in the core rather than behind the BoxFactory/plugin boundary.

// IntegerBox is the immutable 64-bit signed integer Box.
type IntegerBox struct {
	id  ID
	val int64
}

func NewInteger(v int64) *IntegerBox { return &IntegerBox{id: NextID(), val: v} }

func (b *IntegerBox) TypeName() string    { return "Integer" }
func (b *IntegerBox) TypeID() TypeID      { return typeIDInteger }
func (b *IntegerBox) BoxID() ID           { return b.id }
func (b *IntegerBox) Value() int64        { return b.val }
func (b *IntegerBox) ToString() string    { return fmt.Sprintf("%d", b.val) }
func (b *IntegerBox) CloneValue() Box     { return NewInteger(b.val) }
func (b *IntegerBox) ShareReference() Box { return b }
func (b *IntegerBox) Hash() uint64        { return uint64(b.val) }
func (b *IntegerBox) AsAny() any          { return b.val }

func (b *IntegerBox) Equals(other Box) bool {
	o, ok := other.(*IntegerBox)
	return ok && o.val == b.val
}

func (b *IntegerBox) Compare(other Box) (int, bool) {
	o, ok := other.(*IntegerBox)
	if !ok {
		return 0, false
	}
	switch {
	case b.val < o.val:
		return -1, true
	case b.val > o.val:
		return 1, true
	default:
		return 0, true
	}
}

func (b *IntegerBox) TryAdd(other Box) (Box, bool) {
	o, ok := other.(*IntegerBox)
	if !ok {
		return nil, false
	}
	return NewInteger(b.val + o.val), true
}

func (b *IntegerBox) TrySub(other Box) (Box, bool) {
	o, ok := other.(*IntegerBox)
	if !ok {
		return nil, false
	}
	return NewInteger(b.val - o.val), true
}

func (b *IntegerBox) TryMul(other Box) (Box, bool) {
	o, ok := other.(*IntegerBox)
	if !ok {
		return nil, false
	}
	return NewInteger(b.val * o.val), true
}

func (b *IntegerBox) TryDiv(other Box) (Box, bool) {
	o, ok := other.(*IntegerBox)
	if !ok || o.val == 0 {
		return nil, false
	}
	return NewInteger(b.val / o.val), true
}

func (b *IntegerBox) TryMod(other Box) (Box, bool) {
	o, ok := other.(*IntegerBox)
	if !ok || o.val == 0 {
		return nil, false
	}
	return NewInteger(b.val % o.val), true
}

// FloatBox is the immutable 64-bit float Box.
type FloatBox struct {
	id  ID
	val float64
}

func NewFloat(v float64) *FloatBox { return &FloatBox{id: NextID(), val: v} }

func (b *FloatBox) TypeName() string    { return "Float" }
func (b *FloatBox) TypeID() TypeID      { return typeIDFloat }
func (b *FloatBox) BoxID() ID           { return b.id }
func (b *FloatBox) Value() float64      { return b.val }
func (b *FloatBox) ToString() string    { return fmt.Sprintf("%g", b.val) }
func (b *FloatBox) CloneValue() Box     { return NewFloat(b.val) }
func (b *FloatBox) ShareReference() Box { return b }
func (b *FloatBox) AsAny() any          { return b.val }

func (b *FloatBox) Equals(other Box) bool {
	o, ok := other.(*FloatBox)
	return ok && o.val == b.val
}

func (b *FloatBox) Compare(other Box) (int, bool) {
	o, ok := other.(*FloatBox)
	if !ok {
		return 0, false
	}
	switch {
	case b.val < o.val:
		return -1, true
	case b.val > o.val:
		return 1, true
	default:
		return 0, true
	}
}

func (b *FloatBox) TryAdd(other Box) (Box, bool) {
	o, ok := other.(*FloatBox)
	if !ok {
		return nil, false
	}
	return NewFloat(b.val + o.val), true
}

func (b *FloatBox) TrySub(other Box) (Box, bool) {
	o, ok := other.(*FloatBox)
	if !ok {
		return nil, false
	}
	return NewFloat(b.val - o.val), true
}

func (b *FloatBox) TryMul(other Box) (Box, bool) {
	o, ok := other.(*FloatBox)
	if !ok {
		return nil, false
	}
	return NewFloat(b.val * o.val), true
}

func (b *FloatBox) TryDiv(other Box) (Box, bool) {
	o, ok := other.(*FloatBox)
	if !ok || o.val == 0 {
		return nil, false
	}
	return NewFloat(b.val / o.val), true
}

func (b *FloatBox) TryMod(other Box) (Box, bool) { return nil, false }

// BoolBox is the immutable boolean Box.
type BoolBox struct {
	id  ID
	val bool
}

func NewBool(v bool) *BoolBox { return &BoolBox{id: NextID(), val: v} }

func (b *BoolBox) TypeName() string    { return "Boolean" }
func (b *BoolBox) TypeID() TypeID      { return typeIDBool }
func (b *BoolBox) BoxID() ID           { return b.id }
func (b *BoolBox) Value() bool         { return b.val }
func (b *BoolBox) ToString() string    { return fmt.Sprintf("%t", b.val) }
func (b *BoolBox) CloneValue() Box     { return NewBool(b.val) }
func (b *BoolBox) ShareReference() Box { return b }
func (b *BoolBox) AsAny() any          { return b.val }

func (b *BoolBox) Equals(other Box) bool {
	o, ok := other.(*BoolBox)
	return ok && o.val == b.val
}

// NullBox is the immutable, singleton-by-convention null Box. Distinct
// NullBox values are always structurally equal.
type NullBox struct{ id ID }

func NewNull() *NullBox { return &NullBox{id: NextID()} }

func (b *NullBox) TypeName() string    { return "Null" }
func (b *NullBox) TypeID() TypeID      { return typeIDNull }
func (b *NullBox) BoxID() ID           { return b.id }
func (b *NullBox) ToString() string    { return "null" }
func (b *NullBox) CloneValue() Box     { return NewNull() }
func (b *NullBox) ShareReference() Box { return b }
func (b *NullBox) AsAny() any          { return nil }
func (b *NullBox) Equals(other Box) bool {
	_, ok := other.(*NullBox)
	return ok
}

// StringBox is the immutable string Box. Equality and hashing
// normalize to Unicode NFC first (SPEC_FULL.md §B) so that two strings
// built from different combining-character sequences but the same
// rendered text compare structurally equal.
type StringBox struct {
	id  ID
	val string
}

func NewString(v string) *StringBox {
	return &StringBox{id: NextID(), val: v}
}

func (b *StringBox) TypeName() string    { return "String" }
func (b *StringBox) TypeID() TypeID      { return typeIDString }
func (b *StringBox) BoxID() ID           { return b.id }
func (b *StringBox) Value() string       { return b.val }
func (b *StringBox) ToString() string    { return b.val }
func (b *StringBox) CloneValue() Box     { return NewString(b.val) }
func (b *StringBox) ShareReference() Box { return b }
func (b *StringBox) AsAny() any          { return b.val }

func (b *StringBox) normalized() string { return norm.NFC.String(b.val) }

func (b *StringBox) Equals(other Box) bool {
	o, ok := other.(*StringBox)
	return ok && b.normalized() == o.normalized()
}

func (b *StringBox) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(b.normalized()))
	return h.Sum64()
}

func (b *StringBox) Compare(other Box) (int, bool) {
	o, ok := other.(*StringBox)
	if !ok {
		return 0, false
	}
	x, y := b.normalized(), o.normalized()
	switch {
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	default:
		return 0, true
	}
}

func (b *StringBox) TryAdd(other Box) (Box, bool) {
	o, ok := other.(*StringBox)
	if !ok {
		return nil, false
	}
	return NewString(b.val + o.val), true
}
func (b *StringBox) TrySub(other Box) (Box, bool) { return nil, false }
func (b *StringBox) TryMul(other Box) (Box, bool) { return nil, false }
func (b *StringBox) TryDiv(other Box) (Box, bool) { return nil, false }
func (b *StringBox) TryMod(other Box) (Box, bool) { return nil, false }

// Well-known primitive type ids, reserved below the range a Registry
// hands out to user/plugin/builtin-collection types.
const (
	typeIDInteger TypeID = -1
	typeIDFloat   TypeID = -2
	typeIDBool    TypeID = -3
	typeIDNull    TypeID = -4
	typeIDString  TypeID = -5
)

var (
	_ StringConverter = (*IntegerBox)(nil)
	_ Equatable       = (*IntegerBox)(nil)
	_ Orderable       = (*IntegerBox)(nil)
	_ Arithmetic      = (*IntegerBox)(nil)
	_ Hashable        = (*IntegerBox)(nil)
)
