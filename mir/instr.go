package mir

import "fmt"

// Instruction is implemented by all 25 MIR instructions (spec.md §4.4).
// The tiering (0/1/2) is documentary only; every instruction here is a
// first-class Instruction, mirroring go/ssa's single flat Instruction
// interface for its dozens of concrete instruction kinds.
type Instruction interface {
	// Result is the ValueId this instruction defines, or 0 if it
	// defines none (e.g. a pure control instruction).
	Result() ValueId

	// Operands returns the ValueIds this instruction reads, in a
	// stable order, mirroring go/ssa's Instruction.Operands.
	Operands() []ValueId

	// ResultType is the type tag of Result(), meaningless if Result()
	// is 0.
	ResultType() TypeTag

	// Effect is this instruction's entry in the pure/mut/io/control
	// lattice (spec.md §4.4).
	Effect() Effect

	// String renders the canonical disassembly text used by the MIR
	// printer (spec.md §4.4 "MIR printer").
	String() string
}

// ---- Tier 0: universal core ----

// Const loads an immediate value (an already-evaluated Box literal, a
// numeric constant, a string, or a boolean) into a fresh ValueId.
type Const struct {
	ID  ValueId
	Typ TypeTag
	// Value is the literal payload: int64, float64, bool, or string.
	Value any
}

func (i *Const) Result() ValueId      { return i.ID }
func (i *Const) Operands() []ValueId  { return nil }
func (i *Const) ResultType() TypeTag  { return i.Typ }
func (i *Const) Effect() Effect       { return Pure }
func (i *Const) String() string       { return fmt.Sprintf("%s = const %v", vref(i.ID), i.Value) }

// BinOp is an eager arithmetic operator. Operator-trait dispatch (if
// both operands are statically known to implement the trait) happens
// at a higher level; BinOp itself is the lowered, already-resolved
// operation.
type BinOp struct {
	ID       ValueId
	Op       string // "+","-","*","/","%"
	A, B     ValueId
	Typ      TypeTag
}

func (i *BinOp) Result() ValueId     { return i.ID }
func (i *BinOp) Operands() []ValueId { return []ValueId{i.A, i.B} }
func (i *BinOp) ResultType() TypeTag { return i.Typ }
func (i *BinOp) Effect() Effect      { return Pure }
func (i *BinOp) String() string {
	return fmt.Sprintf("%s = binop %s %s %s %s", vref(i.ID), vref(i.A), i.Op, vref(i.B), i.Typ)
}

// Compare is a relational/equality/identity comparison, always
// producing a TBoolean.
type Compare struct {
	ID   ValueId
	Op   string // "==","!=","<","<=",">",">=","is"
	A, B ValueId
}

func (i *Compare) Result() ValueId     { return i.ID }
func (i *Compare) Operands() []ValueId { return []ValueId{i.A, i.B} }
func (i *Compare) ResultType() TypeTag { return TBoolean }
func (i *Compare) Effect() Effect      { return Pure }
func (i *Compare) String() string {
	return fmt.Sprintf("%s = compare %s %s %s", vref(i.ID), vref(i.A), i.Op, vref(i.B))
}

// Branch is a conditional jump.
type Branch struct {
	Cond           ValueId
	Then, Else     BlockId
}

func (i *Branch) Result() ValueId     { return invalidValue }
func (i *Branch) Operands() []ValueId { return []ValueId{i.Cond} }
func (i *Branch) ResultType() TypeTag { return TVoid }
func (i *Branch) Effect() Effect      { return Control }
func (i *Branch) String() string {
	return fmt.Sprintf("branch %s -> %s, %s", vref(i.Cond), bref(i.Then), bref(i.Else))
}

// Jump is an unconditional jump.
type Jump struct {
	Target BlockId
}

func (i *Jump) Result() ValueId     { return invalidValue }
func (i *Jump) Operands() []ValueId { return nil }
func (i *Jump) ResultType() TypeTag { return TVoid }
func (i *Jump) Effect() Effect      { return Control }
func (i *Jump) String() string      { return fmt.Sprintf("jump -> %s", bref(i.Target)) }

// PhiEdge is one (predecessor block, incoming value) pair of a Phi.
type PhiEdge struct {
	Block BlockId
	Value ValueId
}

// Phi merges values at a join point.
type Phi struct {
	ID    ValueId
	Typ   TypeTag
	Edges []PhiEdge
}

func (i *Phi) Result() ValueId { return i.ID }
func (i *Phi) Operands() []ValueId {
	ops := make([]ValueId, len(i.Edges))
	for k, e := range i.Edges {
		ops[k] = e.Value
	}
	return ops
}
func (i *Phi) ResultType() TypeTag { return i.Typ }
func (i *Phi) Effect() Effect      { return Pure }
func (i *Phi) String() string {
	s := fmt.Sprintf("%s = phi [", vref(i.ID))
	for k, e := range i.Edges {
		if k > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s: %s", bref(e.Block), vref(e.Value))
	}
	return s + "]"
}

// Call invokes a free function (not a Box method). Its effect is
// inherited from the callee's declared effect (spec.md §4.4); the
// builder stamps Eff accordingly.
type Call struct {
	ID   ValueId
	Typ  TypeTag
	Fn   string
	Args []ValueId
	Eff  Effect
}

func (i *Call) Result() ValueId     { return i.ID }
func (i *Call) Operands() []ValueId { return i.Args }
func (i *Call) ResultType() TypeTag { return i.Typ }
func (i *Call) Effect() Effect      { return i.Eff }
func (i *Call) String() string {
	return fmt.Sprintf("%s = call %s(%s)", vref(i.ID), i.Fn, vrefs(i.Args))
}

// Return returns from the current function, with an optional value
// (invalidValue means a bare return). Outbox carries, in the same order
// as the enclosing Function's Outbox name list, the current SSA value
// of each outbox local still live at this return point (spec.md §3.4,
// §4.3: "outbox bindings are moved to the caller's frame ... rather
// than dropped"). A name whose value is invalidValue here was never
// assigned on this path and transfers nothing.
type Return struct {
	Value  ValueId
	Outbox []ValueId
}

func (i *Return) Result() ValueId { return invalidValue }
func (i *Return) Operands() []ValueId {
	ops := i.Outbox
	if i.Value != invalidValue {
		ops = append([]ValueId{i.Value}, ops...)
	}
	return ops
}
func (i *Return) ResultType() TypeTag { return TVoid }
func (i *Return) Effect() Effect      { return Control }
func (i *Return) String() string {
	ret := "return"
	if i.Value != invalidValue {
		ret = fmt.Sprintf("return %s", vref(i.Value))
	}
	if len(i.Outbox) == 0 {
		return ret
	}
	return fmt.Sprintf("%s, outbox(%s)", ret, vrefs(i.Outbox))
}

// ---- Tier 1: language semantics ----

// NewBox creates a Box of the given type and establishes a strong-
// parent edge from Owner (invalidValue if there is no current owner,
// i.e. the value escapes to the caller) to the new Box.
type NewBox struct {
	ID    ValueId
	Type  string
	Args  []ValueId
	Owner ValueId // invalidValue if none
	Eff   Effect
}

func (i *NewBox) Result() ValueId { return i.ID }
func (i *NewBox) Operands() []ValueId {
	if i.Owner == invalidValue {
		return i.Args
	}
	return append(append([]ValueId(nil), i.Args...), i.Owner)
}
func (i *NewBox) ResultType() TypeTag { return TBoxHandle }
func (i *NewBox) Effect() Effect      { return i.Eff }
func (i *NewBox) String() string {
	s := fmt.Sprintf("%s = newbox %s(%s)", vref(i.ID), i.Type, vrefs(i.Args))
	if i.Owner != invalidValue {
		s += fmt.Sprintf(" owner=%s", vref(i.Owner))
	}
	return s
}

// BoxFieldLoad reads a field of a Box.
type BoxFieldLoad struct {
	ID    ValueId
	Typ   TypeTag
	Box   ValueId
	Field string
}

func (i *BoxFieldLoad) Result() ValueId     { return i.ID }
func (i *BoxFieldLoad) Operands() []ValueId { return []ValueId{i.Box} }
func (i *BoxFieldLoad) ResultType() TypeTag { return i.Typ }
func (i *BoxFieldLoad) Effect() Effect      { return Mut }
func (i *BoxFieldLoad) String() string {
	return fmt.Sprintf("%s = fieldload %s.%s", vref(i.ID), vref(i.Box), i.Field)
}

// BoxFieldStore writes a field of a Box. If Val's type tag is
// TBoxHandle, this also establishes (or attempts to establish) a
// strong-parent edge from Box to Val, subject to the ownership
// verifier (spec.md §8 scenario 3).
type BoxFieldStore struct {
	Box   ValueId
	Field string
	Val   ValueId
	ValTyp TypeTag
}

func (i *BoxFieldStore) Result() ValueId     { return invalidValue }
func (i *BoxFieldStore) Operands() []ValueId { return []ValueId{i.Box, i.Val} }
func (i *BoxFieldStore) ResultType() TypeTag { return TVoid }
func (i *BoxFieldStore) Effect() Effect      { return Mut }
func (i *BoxFieldStore) String() string {
	return fmt.Sprintf("fieldstore %s.%s = %s", vref(i.Box), i.Field, vref(i.Val))
}

// BoxCall invokes a method on a Box (user-defined, builtin, or a
// from-Parent-specialized dispatch — the MIR builder lowers
// `from Parent.method(...)` to a BoxCall with ParentHint set).
type BoxCall struct {
	ID         ValueId
	Typ        TypeTag
	Receiver   ValueId
	Method     string
	Args       []ValueId
	ParentHint string // "" unless this is a `from Parent.method(...)` call
	Eff        Effect
}

func (i *BoxCall) Result() ValueId     { return i.ID }
func (i *BoxCall) Operands() []ValueId { return append([]ValueId{i.Receiver}, i.Args...) }
func (i *BoxCall) ResultType() TypeTag { return i.Typ }
func (i *BoxCall) Effect() Effect      { return i.Eff }
func (i *BoxCall) String() string {
	prefix := ""
	if i.ParentHint != "" {
		prefix = "from " + i.ParentHint + "."
	}
	return fmt.Sprintf("%s = boxcall %s%s.%s(%s)", vref(i.ID), prefix, vref(i.Receiver), i.Method, vrefs(i.Args))
}

// ExternCall dispatches through the plugin ABI (spec.md §4.7).
type ExternCall struct {
	ID     ValueId
	Typ    TypeTag
	Iface  string
	Method string
	Args   []ValueId
	Eff    Effect
}

func (i *ExternCall) Result() ValueId     { return i.ID }
func (i *ExternCall) Operands() []ValueId { return i.Args }
func (i *ExternCall) ResultType() TypeTag { return i.Typ }
func (i *ExternCall) Effect() Effect      { return i.Eff }
func (i *ExternCall) String() string {
	return fmt.Sprintf("%s = externcall %s.%s(%s)", vref(i.ID), i.Iface, i.Method, vrefs(i.Args))
}

// Safepoint marks an allowed suspension/interruption point (spec.md
// §4.6 "Safepoints").
type Safepoint struct{}

func (i *Safepoint) Result() ValueId     { return invalidValue }
func (i *Safepoint) Operands() []ValueId { return nil }
func (i *Safepoint) ResultType() TypeTag { return TVoid }
func (i *Safepoint) Effect() Effect      { return Control }
func (i *Safepoint) String() string      { return "safepoint" }

// RefGet reads through a generic reference cell.
type RefGet struct {
	ID  ValueId
	Typ TypeTag
	Ref ValueId
}

func (i *RefGet) Result() ValueId     { return i.ID }
func (i *RefGet) Operands() []ValueId { return []ValueId{i.Ref} }
func (i *RefGet) ResultType() TypeTag { return i.Typ }
func (i *RefGet) Effect() Effect      { return Mut }
func (i *RefGet) String() string      { return fmt.Sprintf("%s = refget %s", vref(i.ID), vref(i.Ref)) }

// RefSet writes through a generic reference cell, subject to the
// ownership-rule check of spec.md §4.4 when the written value is a
// TBoxHandle.
type RefSet struct {
	Ref    ValueId
	Val    ValueId
	ValTyp TypeTag
}

func (i *RefSet) Result() ValueId     { return invalidValue }
func (i *RefSet) Operands() []ValueId { return []ValueId{i.Ref, i.Val} }
func (i *RefSet) ResultType() TypeTag { return TVoid }
func (i *RefSet) Effect() Effect      { return Mut }
func (i *RefSet) String() string      { return fmt.Sprintf("refset %s = %s", vref(i.Ref), vref(i.Val)) }

// WeakNew creates a weak reference to a Box.
type WeakNew struct {
	ID  ValueId
	Box ValueId
}

func (i *WeakNew) Result() ValueId     { return i.ID }
func (i *WeakNew) Operands() []ValueId { return []ValueId{i.Box} }
func (i *WeakNew) ResultType() TypeTag { return TWeakHandle }
func (i *WeakNew) Effect() Effect      { return Pure }
func (i *WeakNew) String() string      { return fmt.Sprintf("%s = weaknew %s", vref(i.ID), vref(i.Box)) }

// WeakLoad yields the referent (or null, deterministically, if dead).
type WeakLoad struct {
	ID   ValueId
	Weak ValueId
}

func (i *WeakLoad) Result() ValueId     { return i.ID }
func (i *WeakLoad) Operands() []ValueId { return []ValueId{i.Weak} }
func (i *WeakLoad) ResultType() TypeTag { return TBoxHandle }
func (i *WeakLoad) Effect() Effect      { return Mut }
func (i *WeakLoad) String() string      { return fmt.Sprintf("%s = weakload %s", vref(i.ID), vref(i.Weak)) }

// WeakCheck yields whether the referent is still alive.
type WeakCheck struct {
	ID   ValueId
	Weak ValueId
}

func (i *WeakCheck) Result() ValueId     { return i.ID }
func (i *WeakCheck) Operands() []ValueId { return []ValueId{i.Weak} }
func (i *WeakCheck) ResultType() TypeTag { return TBoolean }
func (i *WeakCheck) Effect() Effect      { return Mut }
func (i *WeakCheck) String() string      { return fmt.Sprintf("%s = weakcheck %s", vref(i.ID), vref(i.Weak)) }

// BusDir distinguishes Send from Recv within the single Bus
// instruction kind.
type BusDir int

const (
	BusSend BusDir = iota
	BusRecv
)

// Bus is the unified Send(data, target) / Recv(source) communication
// primitive of spec.md §4.4: the specification presents Send and Recv
// as a single slash-joined bullet, and folding both directions into one
// instruction kind (direction carried by Dir) keeps the 25-instruction
// budget exact (8 + 12 + 5) while preserving both operations'
// semantics.
type Bus struct {
	ID     ValueId // result for Recv; invalidValue for Send
	Dir    BusDir
	Peer   ValueId // target for Send, source for Recv
	Data   ValueId // payload for Send; invalidValue for Recv
}

func (i *Bus) Result() ValueId {
	if i.Dir == BusRecv {
		return i.ID
	}
	return invalidValue
}
func (i *Bus) Operands() []ValueId {
	if i.Dir == BusSend {
		return []ValueId{i.Peer, i.Data}
	}
	return []ValueId{i.Peer}
}
func (i *Bus) ResultType() TypeTag {
	if i.Dir == BusRecv {
		return TBoxHandle
	}
	return TVoid
}
func (i *Bus) Effect() Effect { return IO }
func (i *Bus) String() string {
	if i.Dir == BusSend {
		return fmt.Sprintf("send %s -> %s", vref(i.Data), vref(i.Peer))
	}
	return fmt.Sprintf("%s = recv %s", vref(i.ID), vref(i.Peer))
}

// ---- Tier 2: implementation aids ----

// TailCall reuses the current register window where the verifier
// permits (spec.md §4.6).
type TailCall struct {
	Fn   string
	Args []ValueId
	Eff  Effect
}

func (i *TailCall) Result() ValueId     { return invalidValue }
func (i *TailCall) Operands() []ValueId { return i.Args }
func (i *TailCall) ResultType() TypeTag { return TVoid }
func (i *TailCall) Effect() Effect      { return i.Eff }
func (i *TailCall) String() string      { return fmt.Sprintf("tailcall %s(%s)", i.Fn, vrefs(i.Args)) }

// Adopt transfers strong ownership of Child to Parent.
type Adopt struct {
	Parent ValueId
	Child  ValueId
}

func (i *Adopt) Result() ValueId     { return invalidValue }
func (i *Adopt) Operands() []ValueId { return []ValueId{i.Parent, i.Child} }
func (i *Adopt) ResultType() TypeTag { return TVoid }
func (i *Adopt) Effect() Effect      { return Mut }
func (i *Adopt) String() string      { return fmt.Sprintf("adopt %s <- %s", vref(i.Parent), vref(i.Child)) }

// Release downgrades a strong reference to weak or to null.
type Release struct {
	Ref ValueId
}

func (i *Release) Result() ValueId     { return invalidValue }
func (i *Release) Operands() []ValueId { return []ValueId{i.Ref} }
func (i *Release) ResultType() TypeTag { return TVoid }
func (i *Release) Effect() Effect      { return Mut }
func (i *Release) String() string      { return fmt.Sprintf("release %s", vref(i.Ref)) }

// MemCopy copies Size bytes/elements from Src to Dst.
type MemCopy struct {
	Dst, Src, Size ValueId
}

func (i *MemCopy) Result() ValueId     { return invalidValue }
func (i *MemCopy) Operands() []ValueId { return []ValueId{i.Dst, i.Src, i.Size} }
func (i *MemCopy) ResultType() TypeTag { return TVoid }
func (i *MemCopy) Effect() Effect      { return Mut }
func (i *MemCopy) String() string {
	return fmt.Sprintf("memcopy %s <- %s, %s", vref(i.Dst), vref(i.Src), vref(i.Size))
}

// AtomicFence orders memory operations across strands.
type AtomicFence struct {
	Ordering string
}

func (i *AtomicFence) Result() ValueId     { return invalidValue }
func (i *AtomicFence) Operands() []ValueId { return nil }
func (i *AtomicFence) ResultType() TypeTag { return TVoid }
func (i *AtomicFence) Effect() Effect      { return IO }
func (i *AtomicFence) String() string      { return fmt.Sprintf("atomicfence %s", i.Ordering) }

func vref(id ValueId) string {
	if id == invalidValue {
		return "<none>"
	}
	return fmt.Sprintf("%%%d", id)
}

func vrefs(ids []ValueId) string {
	s := ""
	for i, id := range ids {
		if i > 0 {
			s += ", "
		}
		s += vref(id)
	}
	return s
}

func bref(id BlockId) string { return fmt.Sprintf("bb%d", id) }
