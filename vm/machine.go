// Package vm implements the register-based execution engine of
// spec.md §4.6: it runs a verified mir.Function directly, one register
// per ValueId, rather than walking the AST the way package interp does.
// The two engines share the same Box/Registry/Forest runtime and the
// same box.DispatchMethod dispatch-chain helper, so a program's
// observable behavior under either engine is expected to agree
// (golden-equivalence, spec.md §6, §8 invariant 7).
//
// Its dispatch-loop shape is the general "register file indexed by
// instruction id, one basic block at a time" structure common to
// register-based bytecode VMs, adapted here from a fixed-width
// opcode encoding to MIR's ValueId-addressed SSA registers.
package vm

import (
	"context"
	"runtime"

	"github.com/nyashlang/nyash-core/box"
	"github.com/nyashlang/nyash-core/interp"
	"github.com/nyashlang/nyash-core/mir"
	"golang.org/x/xerrors"
)

// Machine is the shared state one register-based execution needs: the
// type registry and ownership forest (shared with any interp.Interp
// running the same program), the builtin method-dispatch tail, a free-
// function table for Call/TailCall targets, and the strand
// communication bus for Bus instructions.
type Machine struct {
	Reg     *box.Registry
	Forest  *box.Forest
	Builtin box.BuiltinMethodFunc
	Bus     *interp.Bus

	// Functions resolves a Call/TailCall's Fn name to the MIR function
	// to run. Free functions only: BoxCall/ExternCall dispatch through
	// the receiver Box itself, not through this table.
	Functions map[string]*mir.Function
}

// NewMachine returns a Machine over the given shared Registry/Forest. If
// bus is nil, a fresh one is allocated.
func NewMachine(reg *box.Registry, forest *box.Forest, builtin box.BuiltinMethodFunc, bus *interp.Bus) *Machine {
	if bus == nil {
		bus = interp.NewBus()
	}
	m := &Machine{
		Reg:       reg,
		Forest:    forest,
		Builtin:   builtin,
		Bus:       bus,
		Functions: make(map[string]*mir.Function),
	}
	m.registerRefType()
	return m
}

// registerRefType installs the builtin "Ref" constructor that NewBox
// Type=="Ref" resolves to: the generic reference cell RefGet/RefSet
// operate on. It is a no-op if something else already registered a
// builtin "Ref" (e.g. a second Machine sharing this Registry).
func (m *Machine) registerRefType() {
	_, _ = m.Reg.Register("Ref", box.KindBuiltin, func(args []box.Box) (box.Box, error) {
		var initial box.Box = box.NewNull()
		if len(args) > 0 {
			initial = args[0]
		}
		return newRef(m.Forest, initial), nil
	}, box.TypeMeta{Kind: box.KindBuiltin})
}

// Run verifies fn's ownership-forest discipline (spec.md §4.4: execution
// requires the static verifier to have already accepted the function)
// and then executes it to completion, following TailCall chains without
// growing the Go call stack.
func (m *Machine) Run(fn *mir.Function, args []box.Box) (box.Box, error) {
	if err := mir.VerifyFunction(fn); err != nil {
		return nil, err
	}
	for {
		regs := m.newWindow(fn, args)
		result, tailFn, tailArgs, err := m.runBody(fn, regs)
		if err != nil {
			return nil, err
		}
		if tailFn == nil {
			return result, nil
		}
		if err := mir.VerifyFunction(tailFn); err != nil {
			return nil, err
		}
		fn, args = tailFn, tailArgs
	}
}

// newWindow allocates a register window sized to fn's value pool
// (spec.md §4.6) and binds the incoming arguments to fn's Params.
func (m *Machine) newWindow(fn *mir.Function, args []box.Box) []box.Box {
	regs := make([]box.Box, fn.MaxValueId()+1)
	for i, p := range fn.Params {
		if i < len(args) {
			regs[p] = args[i]
		}
	}
	return regs
}

// runBody executes fn's blocks starting at block 0 until a Return or
// TailCall instruction is reached. A non-nil tailFn return means the
// caller should re-enter the dispatch loop with a fresh window rather
// than recursing, implementing TailCall's register-window reuse.
func (m *Machine) runBody(fn *mir.Function, regs []box.Box) (result box.Box, tailFn *mir.Function, tailArgs []box.Box, err error) {
	cur := mir.BlockId(0)
	var prev mir.BlockId
	havePrev := false

blockLoop:
	for {
		block := fn.Blocks[cur]
		for _, instr := range block.Instrs {
			switch in := instr.(type) {
			case *mir.Phi:
				for _, e := range in.Edges {
					if havePrev && e.Block == prev {
						regs[in.ID] = regs[e.Value]
						break
					}
				}
			case *mir.Const:
				regs[in.ID] = constBox(in)
			case *mir.BinOp:
				v, e := m.binOp(in, regs)
				if e != nil {
					return nil, nil, nil, e
				}
				regs[in.ID] = v
			case *mir.Compare:
				v, e := m.compareOp(in, regs)
				if e != nil {
					return nil, nil, nil, e
				}
				regs[in.ID] = v
			case *mir.Branch:
				prev, havePrev = cur, true
				if truthy(regs[in.Cond]) {
					cur = in.Then
				} else {
					cur = in.Else
				}
				continue blockLoop
			case *mir.Jump:
				prev, havePrev = cur, true
				cur = in.Target
				continue blockLoop
			case *mir.Call:
				v, e := m.callFunction(in.Fn, m.values(in.Args, regs))
				if e != nil {
					return nil, nil, nil, e
				}
				regs[in.ID] = v
			case *mir.TailCall:
				callee, ok := m.Functions[in.Fn]
				if !ok {
					return nil, nil, nil, xerrors.Errorf("vm: tailcall: unknown function %q", in.Fn)
				}
				return nil, callee, m.values(in.Args, regs), nil
			case *mir.Return:
				if in.Value == 0 {
					return nil, nil, nil, nil
				}
				return regs[in.Value], nil, nil, nil
			case *mir.NewBox:
				v, e := m.newBox(in, regs)
				if e != nil {
					return nil, nil, nil, e
				}
				regs[in.ID] = v
			case *mir.BoxFieldLoad:
				fa, ok := regs[in.Box].(box.FieldAccessor)
				if !ok {
					return nil, nil, nil, xerrors.Errorf("vm: %s has no fields", regs[in.Box].TypeName())
				}
				v, ok := fa.GetField(in.Field)
				if !ok {
					return nil, nil, nil, xerrors.Errorf("vm: %s.%s: no such field", regs[in.Box].TypeName(), in.Field)
				}
				regs[in.ID] = v
			case *mir.BoxFieldStore:
				recv := regs[in.Box]
				val := regs[in.Val]
				fa, ok := recv.(box.FieldAccessor)
				if !ok {
					return nil, nil, nil, xerrors.Errorf("vm: %s.%s: no such field", recv.TypeName(), in.Field)
				}
				if old, had := fa.GetField(in.Field); had && old != nil {
					m.Forest.DropStrongRef(recv.BoxID(), old.BoxID())
				}
				if in.ValTyp == mir.TBoxHandle {
					if e := m.Forest.Adopt(recv.BoxID(), val.BoxID()); e != nil {
						return nil, nil, nil, e
					}
				}
				if !fa.SetField(in.Field, val) {
					return nil, nil, nil, xerrors.Errorf("vm: %s.%s: no such field", recv.TypeName(), in.Field)
				}
			case *mir.BoxCall:
				v, e := m.boxCall(in, regs)
				if e != nil {
					return nil, nil, nil, e
				}
				regs[in.ID] = v
			case *mir.ExternCall:
				return nil, nil, nil, xerrors.Errorf("vm: externcall %s.%s: no plugin host installed", in.Iface, in.Method)
			case *mir.Safepoint:
				runtime.Gosched()
			case *mir.RefGet:
				r, ok := regs[in.Ref].(*refBox)
				if !ok {
					return nil, nil, nil, xerrors.Errorf("vm: refget on a non-Ref value")
				}
				regs[in.ID] = r.get()
			case *mir.RefSet:
				r, ok := regs[in.Ref].(*refBox)
				if !ok {
					return nil, nil, nil, xerrors.Errorf("vm: refset on a non-Ref value")
				}
				val := regs[in.Val]
				if old := r.get(); old != nil {
					m.Forest.DropStrongRef(r.BoxID(), old.BoxID())
				}
				if in.ValTyp == mir.TBoxHandle {
					if e := m.Forest.Adopt(r.BoxID(), val.BoxID()); e != nil {
						return nil, nil, nil, e
					}
				}
				r.set(val)
			case *mir.WeakNew:
				regs[in.ID] = newWeak(m.Forest, regs[in.Box].BoxID())
			case *mir.WeakLoad:
				w, ok := regs[in.Weak].(*weakBox)
				if !ok {
					return nil, nil, nil, xerrors.Errorf("vm: weakload on a non-Weak value")
				}
				if target, alive := m.Forest.WeakLoad(w.w); alive {
					regs[in.ID] = target
				} else {
					regs[in.ID] = box.NewNull()
				}
			case *mir.WeakCheck:
				w, ok := regs[in.Weak].(*weakBox)
				if !ok {
					return nil, nil, nil, xerrors.Errorf("vm: weakcheck on a non-Weak value")
				}
				regs[in.ID] = box.NewBool(m.Forest.WeakCheck(w.w))
			case *mir.Bus:
				if e := m.busOp(fn, in, regs); e != nil {
					return nil, nil, nil, e
				}
			case *mir.Adopt:
				if e := m.Forest.Adopt(regs[in.Parent].BoxID(), regs[in.Child].BoxID()); e != nil {
					return nil, nil, nil, e
				}
			case *mir.Release:
				m.Forest.Release(regs[in.Ref].BoxID())
			case *mir.MemCopy:
				// Box-level values have no addressable byte storage in
				// this runtime; the only operation meaningful at this
				// level is copying one Ref cell's contents into another,
				// so MemCopy degrades to that when both sides are Refs
				// (Size is not used: a Box value has no length of its
				// own to slice).
				dst, dok := regs[in.Dst].(*refBox)
				src, sok := regs[in.Src].(*refBox)
				if !dok || !sok {
					return nil, nil, nil, xerrors.Errorf("vm: memcopy requires Ref operands in this runtime")
				}
				dst.set(src.get())
			case *mir.AtomicFence:
				// single-process, GOMAXPROCS-scheduled goroutines already
				// observe sequential consistency through Go's memory
				// model at points protected by this package's mutexes;
				// nothing further to do here.
			default:
				return nil, nil, nil, xerrors.Errorf("vm: unhandled instruction %T", instr)
			}
		}
		// A well-formed block (mir.SanityCheck) always ends in a control
		// instruction, which always `continue blockLoop`s or returns
		// above; reaching here means the function fell off the end of a
		// block with no terminator.
		return nil, nil, nil, xerrors.Errorf("vm: block %d has no terminator", cur)
	}
}

func (m *Machine) values(ids []mir.ValueId, regs []box.Box) []box.Box {
	out := make([]box.Box, len(ids))
	for i, id := range ids {
		out[i] = regs[id]
	}
	return out
}

func (m *Machine) callFunction(name string, args []box.Box) (box.Box, error) {
	callee, ok := m.Functions[name]
	if !ok {
		return nil, xerrors.Errorf("vm: call: unknown function %q", name)
	}
	return m.Run(callee, args)
}

func (m *Machine) newBox(in *mir.NewBox, regs []box.Box) (box.Box, error) {
	b, err := m.Reg.Resolve(in.Type, m.values(in.Args, regs))
	if err != nil {
		return nil, err
	}
	if !m.Forest.Tracked(b.BoxID()) {
		m.Forest.Track(b)
	}
	if in.Owner != invalidOwner {
		if owner := regs[in.Owner]; owner != nil {
			if err := m.Forest.Adopt(owner.BoxID(), b.BoxID()); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

func (m *Machine) boxCall(in *mir.BoxCall, regs []box.Box) (box.Box, error) {
	recv := regs[in.Receiver]
	args := m.values(in.Args, regs)
	if in.Method == "fini" && in.ParentHint == "" {
		if _, ok := recv.(box.Finalizer); ok {
			m.Forest.Finalize(recv.BoxID())
			return box.NewNull(), nil
		}
	}
	if in.ParentHint != "" {
		// `from Parent.method(...)` needs the receiver's own declared
		// parent-chain method table (interp.Interp.callFromParent), which
		// this package's Box-capability-only dispatch has no access to;
		// a user-defined Instance must be run through interp for this
		// call shape until the two engines share a compiled method
		// table.
		return nil, xerrors.Errorf("vm: from %s.%s: forced parent dispatch is not supported by this engine", in.ParentHint, in.Method)
	}
	return box.DispatchMethod(recv, in.Method, args, m.Builtin)
}

func (m *Machine) busOp(fn *mir.Function, in *mir.Bus, regs []box.Box) error {
	peer := regs[in.Peer]
	peerName, ok := peer.(box.StringConverter)
	if !ok {
		return xerrors.Errorf("vm: bus peer must be a string identity")
	}
	if in.Dir == mir.BusSend {
		m.Bus.Send(fn.Name, peerName.ToString(), regs[in.Data])
		return nil
	}
	v, err := m.Bus.Recv(context.Background(), peerName.ToString(), fn.Name)
	if err != nil {
		return err
	}
	regs[in.ID] = v
	return nil
}

const invalidOwner mir.ValueId = 0

func truthy(b box.Box) bool {
	bb, ok := b.(*box.BoolBox)
	return ok && bb.Value()
}

func constBox(c *mir.Const) box.Box {
	switch v := c.Value.(type) {
	case int64:
		return box.NewInteger(v)
	case int:
		return box.NewInteger(int64(v))
	case float64:
		return box.NewFloat(v)
	case bool:
		return box.NewBool(v)
	case string:
		return box.NewString(v)
	case nil:
		return box.NewNull()
	default:
		return box.NewNull()
	}
}

func (m *Machine) binOp(in *mir.BinOp, regs []box.Box) (box.Box, error) {
	a, b := regs[in.A], regs[in.B]
	arith, ok := a.(box.Arithmetic)
	if !ok {
		return nil, xerrors.Errorf("vm: %s does not support arithmetic", a.TypeName())
	}
	var v box.Box
	switch in.Op {
	case "+":
		v, ok = arith.TryAdd(b)
	case "-":
		v, ok = arith.TrySub(b)
	case "*":
		v, ok = arith.TryMul(b)
	case "/":
		v, ok = arith.TryDiv(b)
	case "%":
		v, ok = arith.TryMod(b)
	default:
		return nil, xerrors.Errorf("vm: unknown binop %q", in.Op)
	}
	if !ok {
		return nil, xerrors.Errorf("vm: %s %s %s: unsupported operand combination", a.TypeName(), in.Op, b.TypeName())
	}
	return v, nil
}

func (m *Machine) compareOp(in *mir.Compare, regs []box.Box) (box.Box, error) {
	a, b := regs[in.A], regs[in.B]
	if in.Op == "is" {
		return box.NewBool(box.Is(a, b)), nil
	}
	if in.Op == "==" || in.Op == "!=" {
		eq, ok := a.(box.Equatable)
		if !ok {
			return nil, xerrors.Errorf("vm: %s does not support ==", a.TypeName())
		}
		result := eq.Equals(b)
		if in.Op == "!=" {
			result = !result
		}
		return box.NewBool(result), nil
	}
	ord, ok := a.(box.Orderable)
	if !ok {
		return nil, xerrors.Errorf("vm: %s does not support relational comparison", a.TypeName())
	}
	cmp, ok := ord.Compare(b)
	if !ok {
		return nil, xerrors.Errorf("vm: %s %s %s: not comparable", a.TypeName(), in.Op, b.TypeName())
	}
	var result bool
	switch in.Op {
	case "<":
		result = cmp < 0
	case "<=":
		result = cmp <= 0
	case ">":
		result = cmp > 0
	case ">=":
		result = cmp >= 0
	default:
		return nil, xerrors.Errorf("vm: unknown compare op %q", in.Op)
	}
	return box.NewBool(result), nil
}
