// Package mir implements the mid-level intermediate representation of
// spec.md §3.5 and §4.4: a 25-instruction SSA form with an effect
// system and an ownership-forest invariant, modeled on go/ssa's Value/
// Instruction split and go/ssa's sanity checker, generalized from "Go
// program in SSA form" to "Nyash Box program in SSA form with explicit
// ownership edges".
package mir

import "fmt"

// ValueId identifies an SSA value, unique within the defining Function.
// No ValueId is ever assigned twice (spec.md §3.5, §8 invariant 6).
type ValueId uint32

// BlockId identifies a basic block, unique within the defining
// Function.
type BlockId uint32

// invalidValue is used as the "no value" placeholder for instructions
// that do not define a value (e.g. Jump, Branch, BoxFieldStore).
const invalidValue ValueId = 0

// TypeTag is the closed set of value type tags MIR values carry
// (spec.md §3.5).
type TypeTag int

const (
	TInteger TypeTag = iota
	TFloat
	TBoolean
	TString
	TBoxHandle
	TWeakHandle
	TVoid
	TFutureHandle
)

func (t TypeTag) String() string {
	switch t {
	case TInteger:
		return "integer"
	case TFloat:
		return "float"
	case TBoolean:
		return "boolean"
	case TString:
		return "string"
	case TBoxHandle:
		return "box"
	case TWeakHandle:
		return "weak"
	case TVoid:
		return "void"
	case TFutureHandle:
		return "future"
	default:
		return fmt.Sprintf("TypeTag(%d)", int(t))
	}
}

// Effect is the optimizer's contract of spec.md §4.4 and §9: the only
// information a pass may use to reorder or eliminate instructions.
type Effect int

const (
	Pure Effect = iota
	Mut
	IO
	Control
)

func (e Effect) String() string {
	switch e {
	case Pure:
		return "pure"
	case Mut:
		return "mut"
	case IO:
		return "io"
	case Control:
		return "control"
	default:
		return fmt.Sprintf("Effect(%d)", int(e))
	}
}
