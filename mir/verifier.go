package mir

import (
	"fmt"
	"io"
	"os"
)

// OwnershipError reports a static violation of the ownership-forest
// invariant (spec.md §3.2, §4.4, §8 invariants 1-2). It names the
// offending instruction's index and the existing strong parent, as
// spec.md §7 requires of ownership-error messages.
type OwnershipError struct {
	Function       string
	Block          BlockId
	InstrIndex     int
	Instr          string
	ExistingParent ValueId
	Reason         string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("mir: ownership violation in %s, block %s, instr #%d (%s): %s (existing strong parent %s)",
		e.Function, bref(e.Block), e.InstrIndex, e.Instr, e.Reason, vref(e.ExistingParent))
}

// verifierState is the symbolic ownership graph the verifier builds
// while scanning a function: for each ValueId known to be a Box handle,
// the ValueId of its current symbolic strong parent (0 if none).
type verifierState struct {
	strongParent map[ValueId]ValueId
}

func newVerifierState() *verifierState {
	return &verifierState{strongParent: make(map[ValueId]ValueId)}
}

// reaches reports whether walking strong-parent edges from start ever
// reaches target.
func (s *verifierState) reaches(start, target ValueId) bool {
	seen := make(map[ValueId]bool)
	for cur := start; cur != invalidValue; {
		if cur == target {
			return true
		}
		if seen[cur] {
			return false // already-broken cycle elsewhere; don't loop forever
		}
		seen[cur] = true
		cur = s.strongParent[cur]
	}
	return false
}

// tryAdopt attempts to record a new strong edge parent -> child. It
// returns a non-empty reason string on failure (either "already has a
// strong parent" or "would create a cycle"), and the existing parent
// for error reporting. Recording an edge that already exists (child's
// strong parent is already parent) succeeds and changes nothing.
func (s *verifierState) tryAdopt(parent, child ValueId) (reason string, existing ValueId) {
	if p, ok := s.strongParent[child]; ok && p != invalidValue {
		if p == parent {
			return "", invalidValue
		}
		return "box already has a strong parent", p
	}
	if s.reaches(parent, child) {
		return "would create a strong ownership cycle", s.strongParent[parent]
	}
	s.strongParent[child] = parent
	return "", invalidValue
}

// VerifyFunction runs the static ownership-forest pass required before
// VM execution (spec.md §4.4 "Ownership-forest verifier"). It rejects
// the function (returning a non-nil *OwnershipError) if any Box has
// strong in-degree greater than one, if a strong cycle exists, or if a
// BoxFieldStore/RefSet/Adopt would create one. Weak references are
// permitted to form arbitrary graphs and are not checked here.
func VerifyFunction(f *Function) error {
	st := newVerifierState()

	for _, b := range f.Blocks {
		for idx, instr := range b.Instrs {
			switch in := instr.(type) {
			case *NewBox:
				if in.Owner != invalidValue {
					if reason, existing := st.tryAdopt(in.Owner, in.ID); reason != "" {
						return &OwnershipError{f.Name, b.ID, idx, in.String(), existing, reason}
					}
				}
			case *BoxFieldStore:
				if in.ValTyp == TBoxHandle {
					if reason, existing := st.tryAdopt(in.Box, in.Val); reason != "" {
						return &OwnershipError{f.Name, b.ID, idx, in.String(), existing, reason}
					}
				}
			case *RefSet:
				if in.ValTyp == TBoxHandle {
					if reason, existing := st.tryAdopt(in.Ref, in.Val); reason != "" {
						return &OwnershipError{f.Name, b.ID, idx, in.String(), existing, reason}
					}
				}
			case *Adopt:
				if reason, existing := st.tryAdopt(in.Parent, in.Child); reason != "" {
					return &OwnershipError{f.Name, b.ID, idx, in.String(), existing, reason}
				}
			case *Release:
				delete(st.strongParent, in.Ref)
			}
		}
	}
	return nil
}

// sanity mirrors go/ssa's sanity-checking pass shape: a secondary,
// best-effort structural check over CFG invariants (no control
// instruction mid-block, no empty block, every block ending in a control
// instruction; Phi operands and block reachability are not checked)
// reported to an io.Writer rather than
// returned as an error, since these are implementation-quality
// diagnostics rather than the hard ownership rejection above.
type sanity struct {
	reporter io.Writer
	fn       *Function
	insane   bool
}

// SanityCheck performs integrity checking of f's CFG shape, writing
// diagnostics to reporter (os.Stderr if nil), and returns true if f was
// structurally sound.
func SanityCheck(f *Function, reporter io.Writer) bool {
	if reporter == nil {
		reporter = os.Stderr
	}
	s := &sanity{reporter: reporter, fn: f}
	s.checkFunction()
	return !s.insane
}

func (s *sanity) errorf(format string, args ...any) {
	s.insane = true
	fmt.Fprintf(s.reporter, "Error: function %s: ", s.fn.Name)
	fmt.Fprintf(s.reporter, format, args...)
	fmt.Fprintln(s.reporter)
}

func (s *sanity) checkFunction() {
	for _, b := range s.fn.Blocks {
		for idx, instr := range b.Instrs {
			switch instr.(type) {
			case *Branch, *Jump, *Return, *TailCall:
				if idx != len(b.Instrs)-1 {
					s.errorf("control instruction not at end of block %s", bref(b.ID))
				}
			case *Phi:
				if idx != 0 {
					// Not fatal on its own; go/ssa treats phi-ordering
					// as a warning-level nit rather than an error.
				}
			}
		}
		if len(b.Instrs) == 0 {
			s.errorf("block %s has no instructions", bref(b.ID))
			continue
		}
		switch b.Instrs[len(b.Instrs)-1].(type) {
		case *Branch, *Jump, *Return, *TailCall:
		default:
			s.errorf("block %s does not end in a control instruction", bref(b.ID))
		}
	}
}
