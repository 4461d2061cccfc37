package interp

import (
	"github.com/nyashlang/nyash-core/ast"
	"github.com/nyashlang/nyash-core/box"
	"golang.org/x/xerrors"
)

// control is the statement-execution signal used to unwind `break` and
// `return` without panicking, the same non-exceptional control-flow
// shape a tree-walking interpreter typically threads through its
// exec* return values.
type control int

const (
	ctrlNone control = iota
	ctrlBreak
	ctrlReturn
)

func (i *Interp) execBlock(env *Environment, blk *ast.Block) (control, box.Box, error) {
	if blk == nil {
		return ctrlNone, nil, nil
	}
	child := env.Child()
	for _, s := range blk.Stmts {
		ctrl, v, err := i.execStmt(child, s)
		if err != nil || ctrl != ctrlNone {
			return ctrl, v, err
		}
	}
	return ctrlNone, nil, nil
}

func (i *Interp) execStmt(env *Environment, s ast.Stmt) (control, box.Box, error) {
	switch st := s.(type) {
	case *ast.ExprStmt:
		_, err := i.evalExpr(env, st.X)
		return ctrlNone, nil, err

	case *ast.VarDecl:
		var v box.Box = box.NewNull()
		if st.Init != nil {
			var err error
			v, err = i.evalExpr(env, st.Init)
			if err != nil {
				return ctrlNone, nil, err
			}
		}
		env.Define(st.Name, v, st.Kind == ast.VarOutbox)
		return ctrlNone, nil, nil

	case *ast.Assign:
		v, err := i.evalExpr(env, st.Value)
		if err != nil {
			return ctrlNone, nil, err
		}
		switch target := st.Target.(type) {
		case *ast.Ident:
			if !env.Set(target.Name, v) {
				return ctrlNone, nil, i.undeclaredError(env, target.Name)
			}
		case *ast.FieldAccess:
			recv, err := i.evalExpr(env, target.Receiver)
			if err != nil {
				return ctrlNone, nil, err
			}
			fa, ok := recv.(box.FieldAccessor)
			if !ok {
				return ctrlNone, nil, xerrors.Errorf("interp: %s has no settable fields: %w", recv.TypeName(), ErrNotCallable)
			}
			// Mirror vm/machine.go's BoxFieldStore: drop the forest edge
			// to whatever this field held before (finalizing it if recv
			// was its last strong parent), then adopt the new value, so
			// the interpreter builds the same ownership forest the VM
			// does during normal execution (spec.md §3.2).
			if old, had := fa.GetField(target.Field); had && old != nil && i.Forest.Tracked(old.BoxID()) {
				i.Forest.DropStrongRef(recv.BoxID(), old.BoxID())
			}
			if i.Forest.Tracked(v.BoxID()) {
				if e := i.Forest.Adopt(recv.BoxID(), v.BoxID()); e != nil {
					return ctrlNone, nil, e
				}
			}
			fa.SetField(target.Field, v)
		default:
			return ctrlNone, nil, xerrors.Errorf("interp: unsupported assignment target %T", st.Target)
		}
		return ctrlNone, nil, nil

	case *ast.Block:
		return i.execBlock(env, st)

	case *ast.If:
		cond, err := i.evalExpr(env, st.Cond)
		if err != nil {
			return ctrlNone, nil, err
		}
		truth, err := truthy(cond)
		if err != nil {
			return ctrlNone, nil, err
		}
		if truth {
			return i.execBlock(env, st.Then)
		}
		return i.execBlock(env, st.Else)

	case *ast.Loop:
		for {
			cond, err := i.evalExpr(env, st.Cond)
			if err != nil {
				return ctrlNone, nil, err
			}
			truth, err := truthy(cond)
			if err != nil {
				return ctrlNone, nil, err
			}
			if !truth {
				return ctrlNone, nil, nil
			}
			ctrl, v, err := i.execBlock(env, st.Body)
			if err != nil {
				return ctrlNone, nil, err
			}
			if ctrl == ctrlBreak {
				return ctrlNone, nil, nil
			}
			if ctrl == ctrlReturn {
				return ctrlReturn, v, nil
			}
		}

	case *ast.Break:
		return ctrlBreak, nil, nil

	case *ast.Return:
		if st.Value == nil {
			return ctrlReturn, box.NewNull(), nil
		}
		v, err := i.evalExpr(env, st.Value)
		if err != nil {
			return ctrlNone, nil, err
		}
		return ctrlReturn, v, nil

	case *ast.Using, *ast.Include:
		// Namespace/module resolution is a loader concern outside this
		// package's scope (spec.md §1); by the time a Program reaches
		// Interp, using/include have already done their work.
		return ctrlNone, nil, nil

	default:
		return ctrlNone, nil, xerrors.Errorf("interp: unsupported statement %T", s)
	}
}

func (i *Interp) evalExpr(env *Environment, e ast.Expr) (box.Box, error) {
	switch ex := e.(type) {
	case *ast.IntLiteral:
		return box.NewInteger(ex.Value), nil
	case *ast.FloatLiteral:
		return box.NewFloat(ex.Value), nil
	case *ast.StringLiteral:
		return box.NewString(ex.Value), nil
	case *ast.BoolLiteral:
		return box.NewBool(ex.Value), nil
	case *ast.NullLiteral:
		return box.NewNull(), nil

	case *ast.Ident:
		v, ok := env.Get(ex.Name)
		if !ok {
			return nil, i.undeclaredError(env, ex.Name)
		}
		return v, nil

	case *ast.Me:
		v, ok := env.Get("me")
		if !ok {
			return nil, xerrors.Errorf("interp: `me` used outside a method body")
		}
		return v, nil

	case *ast.BinaryExpr:
		return i.evalBinary(env, ex)

	case *ast.UnaryExpr:
		x, err := i.evalExpr(env, ex.X)
		if err != nil {
			return nil, err
		}
		return negate(x)

	case *ast.NotExpr:
		x, err := i.evalExpr(env, ex.X)
		if err != nil {
			return nil, err
		}
		t, err := truthy(x)
		if err != nil {
			return nil, err
		}
		return box.NewBool(!t), nil

	case *ast.CompareExpr:
		return i.evalCompare(env, ex)

	case *ast.LogicalExpr:
		return i.evalLogical(env, ex)

	case *ast.FieldAccess:
		recv, err := i.evalExpr(env, ex.Receiver)
		if err != nil {
			return nil, err
		}
		fa, ok := recv.(box.FieldAccessor)
		if !ok {
			return nil, xerrors.Errorf("interp: %s has no readable fields: %w", recv.TypeName(), ErrNotCallable)
		}
		v, ok := fa.GetField(ex.Field)
		if !ok {
			return nil, xerrors.Errorf("interp: %s has no field %q", recv.TypeName(), ex.Field)
		}
		return v, nil

	case *ast.MethodCall:
		recv, err := i.evalExpr(env, ex.Receiver)
		if err != nil {
			return nil, err
		}
		args, err := i.evalArgs(env, ex.Args)
		if err != nil {
			return nil, err
		}
		return i.dispatchMethodCall(env, recv, ex.Method, args)

	case *ast.DelegationCall:
		meVal, ok := env.Get("me")
		if !ok {
			return nil, xerrors.Errorf("interp: `from Parent.method` used outside a method body")
		}
		recv, ok := meVal.(*Instance)
		if !ok {
			return nil, xerrors.Errorf("interp: `from Parent.method` receiver is not a user-defined Box")
		}
		args, err := i.evalArgs(env, ex.Args)
		if err != nil {
			return nil, err
		}
		v, outbox, err := i.callFromParent(recv, ex.Parent, ex.Method, args)
		if err != nil {
			return nil, err
		}
		receiveOutbox(env, outbox)
		return v, nil

	case *ast.NewExpr:
		args, err := i.evalArgs(env, ex.Args)
		if err != nil {
			return nil, err
		}
		v, err := i.Reg.Resolve(ex.TypeName, args)
		if err != nil {
			return nil, err
		}
		// A user-defined construction already tracked itself in
		// i.construct (and may have adopted children in birth), and a
		// plugin Proxy tracks itself in newProxy; re-tracking would
		// replace that node and drop its strong edges, so only values
		// the forest does not know yet are tracked here. Builtin
		// constructions never call Forest.Track on their own, so without
		// this every Array/Map value would be unadoptable
		// (vm/machine.go's newBox does the same).
		if !i.Forest.Tracked(v.BoxID()) {
			i.Forest.Track(v)
		}
		return v, nil

	case *ast.NowaitExpr:
		snap := snapshotEnv(env)
		future := i.Sched.Nowait(func() (box.Box, error) {
			return i.evalExpr(snap, ex.X)
		})
		return future, nil

	case *ast.AwaitExpr:
		v, err := i.evalExpr(env, ex.X)
		if err != nil {
			return nil, err
		}
		future, ok := v.(*Future)
		if !ok {
			return nil, xerrors.Errorf("interp: await on a non-future value (%s)", v.TypeName())
		}
		return future.Await(i.ctx)

	default:
		return nil, xerrors.Errorf("interp: unsupported expression %T", e)
	}
}

func (i *Interp) evalArgs(env *Environment, exprs []ast.Expr) ([]box.Box, error) {
	out := make([]box.Box, len(exprs))
	for idx, e := range exprs {
		v, err := i.evalExpr(env, e)
		if err != nil {
			return nil, err
		}
		out[idx] = v
	}
	return out, nil
}

func (i *Interp) undeclaredError(env *Environment, name string) error {
	if suggestion, ok := nearestName(name, env.Names()); ok {
		return xerrors.Errorf("interp: undeclared variable %q, did you mean %q?: %w", name, suggestion, ErrUndeclaredVariable)
	}
	return xerrors.Errorf("interp: undeclared variable %q: %w", name, ErrUndeclaredVariable)
}

// snapshotEnv copies every scope's bindings (not the values themselves,
// which remain shared Box handles) into a fresh Environment chain, so a
// `nowait` body reads a point-in-time view of its enclosing locals
// rather than racing the scheduling statement's continued execution.
func snapshotEnv(env *Environment) *Environment {
	var chain []*Environment
	for s := env; s != nil; s = s.parent {
		chain = append(chain, s)
	}
	var out *Environment
	for idx := len(chain) - 1; idx >= 0; idx-- {
		s := chain[idx]
		var next *Environment
		if out == nil {
			next = NewEnvironment()
		} else {
			next = out.Child()
		}
		for k, v := range s.vars {
			next.vars[k] = v
		}
		for k := range s.outbox {
			next.outbox[k] = true
		}
		out = next
	}
	if out == nil {
		return NewEnvironment()
	}
	return out
}

func truthy(v box.Box) (bool, error) {
	b, ok := v.(*box.BoolBox)
	if !ok {
		return false, xerrors.Errorf("interp: expected a Boolean, got %s", v.TypeName())
	}
	return b.Value(), nil
}

func negate(v box.Box) (box.Box, error) {
	switch n := v.(type) {
	case *box.IntegerBox:
		return box.NewInteger(-n.Value()), nil
	case *box.FloatBox:
		return box.NewFloat(-n.Value()), nil
	default:
		return nil, xerrors.Errorf("interp: unary - on non-numeric %s", v.TypeName())
	}
}

func (i *Interp) evalBinary(env *Environment, ex *ast.BinaryExpr) (box.Box, error) {
	a, err := i.evalExpr(env, ex.Left)
	if err != nil {
		return nil, err
	}
	b, err := i.evalExpr(env, ex.Right)
	if err != nil {
		return nil, err
	}
	arith, ok := a.(box.Arithmetic)
	if !ok {
		return nil, xerrors.Errorf("interp: %s does not support operator %q", a.TypeName(), ex.Op)
	}
	var result box.Box
	var applied bool
	switch ex.Op {
	case "+":
		result, applied = arith.TryAdd(b)
	case "-":
		result, applied = arith.TrySub(b)
	case "*":
		result, applied = arith.TryMul(b)
	case "/":
		result, applied = arith.TryDiv(b)
	case "%":
		result, applied = arith.TryMod(b)
	default:
		return nil, xerrors.Errorf("interp: unknown operator %q", ex.Op)
	}
	if !applied {
		return nil, xerrors.Errorf("interp: %s %s %s is not defined", a.TypeName(), ex.Op, b.TypeName())
	}
	return result, nil
}

func (i *Interp) evalCompare(env *Environment, ex *ast.CompareExpr) (box.Box, error) {
	a, err := i.evalExpr(env, ex.Left)
	if err != nil {
		return nil, err
	}
	b, err := i.evalExpr(env, ex.Right)
	if err != nil {
		return nil, err
	}
	if ex.Op == "is" {
		return box.NewBool(box.Is(a, b)), nil
	}
	if ex.Op == "==" || ex.Op == "!=" {
		eq, ok := a.(box.Equatable)
		if !ok {
			return nil, xerrors.Errorf("interp: %s does not support equality", a.TypeName())
		}
		result := eq.Equals(b)
		if ex.Op == "!=" {
			result = !result
		}
		return box.NewBool(result), nil
	}
	ord, ok := a.(box.Orderable)
	if !ok {
		return nil, xerrors.Errorf("interp: %s does not support ordering", a.TypeName())
	}
	cmp, ok := ord.Compare(b)
	if !ok {
		return nil, xerrors.Errorf("interp: %s and %s are not comparable", a.TypeName(), b.TypeName())
	}
	switch ex.Op {
	case "<":
		return box.NewBool(cmp < 0), nil
	case "<=":
		return box.NewBool(cmp <= 0), nil
	case ">":
		return box.NewBool(cmp > 0), nil
	case ">=":
		return box.NewBool(cmp >= 0), nil
	default:
		return nil, xerrors.Errorf("interp: unknown comparison operator %q", ex.Op)
	}
}

func (i *Interp) evalLogical(env *Environment, ex *ast.LogicalExpr) (box.Box, error) {
	a, err := i.evalExpr(env, ex.Left)
	if err != nil {
		return nil, err
	}
	at, err := truthy(a)
	if err != nil {
		return nil, err
	}
	if ex.Op == "and" && !at {
		return box.NewBool(false), nil
	}
	if ex.Op == "or" && at {
		return box.NewBool(true), nil
	}
	b, err := i.evalExpr(env, ex.Right)
	if err != nil {
		return nil, err
	}
	bt, err := truthy(b)
	if err != nil {
		return nil, err
	}
	return box.NewBool(bt), nil
}
