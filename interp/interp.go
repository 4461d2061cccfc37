// Package interp implements the tree-walking interpreter of spec.md
// §4.3: it evaluates ast.Program directly, independent of the mir/vm
// execution path, so that the two engines' observable behavior can be
// compared for golden equivalence (spec.md §6, §8 invariant 7). Its
// scope-stack/dispatch-chain shape follows the Environment/Evaluator
// split common to tree-walking Go interpreters, adapted to this
// package's Box/Registry/Forest types instead of a plain object model.
package interp

import (
	"context"

	"github.com/nyashlang/nyash-core/ast"
	"github.com/nyashlang/nyash-core/box"
	"github.com/nyashlang/nyash-core/diag"
	"golang.org/x/xerrors"
)

// BuiltinMethodFunc is box.BuiltinMethodFunc under this package's name
// (spec.md §4.3's dispatch-chain tail): the factory/plugin packages
// install this to forward to the plugin ABI and the builtin method
// table; it is nil in a bare Interp.
type BuiltinMethodFunc = box.BuiltinMethodFunc

type effectiveMethod struct {
	decl  *ast.MethodDecl
	owner string
}

// Interp is the tree-walking interpreter's top-level state: the type
// registry and ownership forest it shares with every other execution
// path, plus the method tables built from LoadProgram.
type Interp struct {
	Reg    *box.Registry
	Forest *box.Forest
	Reporter diag.Reporter
	Bus    *Bus
	Sched  *Scheduler
	Builtin BuiltinMethodFunc

	ctx context.Context

	decls      map[string]*ast.BoxDecl
	ownMethods map[string]map[string]*ast.MethodDecl
	effective  map[string]map[string]effectiveMethod
	globalEnv  *Environment
}

// New returns an Interp over the given shared Registry and Forest. If
// reporter is nil, diag.Default is used.
func New(reg *box.Registry, forest *box.Forest, reporter diag.Reporter) *Interp {
	ctx := context.Background()
	return &Interp{
		Reg:       reg,
		Forest:    forest,
		Reporter:  diag.Or(reporter),
		Bus:       NewBus(),
		Sched:     NewScheduler(ctx),
		ctx:       ctx,
		decls:     make(map[string]*ast.BoxDecl),
		ownMethods: make(map[string]map[string]*ast.MethodDecl),
		effective: make(map[string]map[string]effectiveMethod),
		globalEnv: NewEnvironment(),
	}
}

// LoadProgram registers every BoxDecl's factory and validates the
// override rule of spec.md §4.3: a method that shadows an inherited
// method must be declared `override`, and `override` on a method with
// nothing to override is itself a declaration-time error.
func (i *Interp) LoadProgram(prog *ast.Program) error {
	for _, decl := range prog.Boxes {
		i.decls[decl.Name] = decl
		own := make(map[string]*ast.MethodDecl, len(decl.Methods))
		for _, m := range decl.Methods {
			own[m.Name] = m
		}
		i.ownMethods[decl.Name] = own
	}

	visiting := make(map[string]bool)
	for name := range i.decls {
		if err := i.buildEffective(name, visiting); err != nil {
			return err
		}
	}

	for name, decl := range i.decls {
		// typeName/decl are re-bound here (not just read from the range
		// clause) so the factory closure below captures this iteration's
		// values: go.mod targets go 1.21, where a range variable is
		// shared across iterations rather than fresh per iteration.
		typeName, decl := name, decl
		methods := i.effective[typeName]
		names := make([]string, 0, len(methods))
		for m := range methods {
			names = append(names, m)
		}
		var assignedID box.TypeID
		_, err := i.Reg.Register(typeName, box.KindUser, func(args []box.Box) (box.Box, error) {
			return i.construct(typeName, assignedID, decl, args)
		}, box.TypeMeta{Kind: box.KindUser, MethodNames: names})
		if err != nil {
			return err
		}
		id, _ := i.Reg.TypeIDOf(typeName)
		assignedID = id
	}
	return nil
}

// buildEffective computes the inheritance-merged method table for
// name, memoized in i.effective, recursing up the Parent chain first.
func (i *Interp) buildEffective(name string, visiting map[string]bool) error {
	if _, done := i.effective[name]; done {
		return nil
	}
	if visiting[name] {
		return xerrors.Errorf("interp: Box %q participates in a parent cycle", name)
	}
	visiting[name] = true
	defer delete(visiting, name)

	decl, ok := i.decls[name]
	if !ok {
		return xerrors.Errorf("interp: unknown Box type %q", name)
	}

	inherited := make(map[string]effectiveMethod)
	if decl.Parent != "" {
		if _, ok := i.decls[decl.Parent]; ok {
			if err := i.buildEffective(decl.Parent, visiting); err != nil {
				return err
			}
			for k, v := range i.effective[decl.Parent] {
				inherited[k] = v
			}
		}
	}

	for _, m := range decl.Methods {
		prev, hadPrev := inherited[m.Name]
		switch {
		case hadPrev && !m.Override:
			return xerrors.Errorf("interp: %s.%s shadows %s.%s: %w", name, m.Name, prev.owner, m.Name, ErrMissingOverride)
		case !hadPrev && m.Override:
			return xerrors.Errorf("interp: %s.%s: %w", name, m.Name, ErrSpuriousOverride)
		}
		inherited[m.Name] = effectiveMethod{decl: m, owner: name}
	}

	i.effective[name] = inherited
	return nil
}

func (i *Interp) lookupEffective(typeName, method string) (effectiveMethod, bool) {
	t, ok := i.effective[typeName]
	if !ok {
		return effectiveMethod{}, false
	}
	m, ok := t[method]
	return m, ok
}

func (i *Interp) construct(typeName string, typeID box.TypeID, decl *ast.BoxDecl, args []box.Box) (box.Box, error) {
	inst := newInstance(i, typeName, typeID, decl)
	i.Forest.Track(inst)
	for _, name := range decl.Fields {
		if v, ok := inst.GetField(name); ok && v != nil && i.Forest.Tracked(v.BoxID()) {
			_ = i.Forest.Adopt(inst.BoxID(), v.BoxID())
		}
	}
	if _, ok := i.lookupEffective(typeName, "birth"); ok {
		if _, _, err := i.callMethod(inst, typeName, "birth", args); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// callMethod resolves method on typeName's effective table and invokes
// it with recv bound to `me`, returning any outbox bindings the method
// body's return point produced (spec.md §3.4).
func (i *Interp) callMethod(recv *Instance, typeName, method string, args []box.Box) (box.Box, map[string]box.Box, error) {
	eff, ok := i.lookupEffective(typeName, method)
	if !ok {
		return nil, nil, xerrors.Errorf("interp: %s.%s: %w", typeName, method, ErrNoSuchMethod)
	}
	return i.invoke(recv, eff.decl, args)
}

// callFromParent implements `from Parent.method(args)`: dispatch is
// forced to the method declared at (or inherited into) parentName,
// bypassing any override a more-derived type applied (spec.md §4.2).
func (i *Interp) callFromParent(recv *Instance, parentName, method string, args []box.Box) (box.Box, map[string]box.Box, error) {
	if _, ok := i.decls[parentName]; !ok {
		return nil, nil, xerrors.Errorf("interp: from %s.%s: %w", parentName, method, ErrUnknownParent)
	}
	eff, ok := i.lookupEffective(parentName, method)
	if !ok {
		return nil, nil, xerrors.Errorf("interp: from %s.%s: %w", parentName, method, ErrNoSuchMethod)
	}
	return i.invoke(recv, eff.decl, args)
}

// invoke runs decl's body in a fresh call frame and returns its result
// together with the value of every `outbox` local still live at the
// return point, keyed by name — the caller (dispatchMethodCall or
// DelegationCall's evaluator) is responsible for binding those values
// into its own environment, which is the frame-transfer spec.md §3.4
// and §4.3 describe ("outbox bindings are moved to the caller's frame
// ... rather than dropped").
func (i *Interp) invoke(recv *Instance, decl *ast.MethodDecl, args []box.Box) (box.Box, map[string]box.Box, error) {
	env := i.globalEnv.NewFrame()
	if recv != nil {
		env.Define("me", recv, false)
	}
	for idx, p := range decl.Params {
		var v box.Box
		if idx < len(args) {
			v = args[idx]
		} else {
			v = box.NewNull()
		}
		env.Define(p.Name, v, false)
	}
	ctrl, val, err := i.execBlock(env, decl.Body)
	if err != nil {
		return nil, nil, err
	}
	outbox := env.OutboxBindings()
	if ctrl == ctrlReturn {
		return val, outbox, nil
	}
	return box.NewNull(), outbox, nil
}

// dispatchMethodCall is the full §4.3 dispatch chain for an ordinary
// `recv.method(args)` call: user-defined MethodDispatcher first, then
// the installed Builtin hook, matching "user-defined -> plugin ->
// builtin" with from-Parent handled separately by DelegationCall. The
// VM uses the same box.DispatchMethod helper so both engines agree on
// dispatch order.
//
// An explicit `recv.fini()` call is special-cased: it is routed through
// i.Forest.Finalize rather than straight to the receiver's fini body,
// so a user calling fini() directly gets the same idempotency,
// strong-child cascade, and weak-reference invalidation as finalization
// triggered by a dropped last strong reference (spec.md §3.2, §4.3, §8
// "fini is idempotent").
//
// A call against a user-defined Instance is dispatched directly through
// callMethod (rather than through box.DispatchMethod's generic
// MethodDispatcher path) whenever the method resolves in its effective
// table, so this function can capture and merge any outbox bindings the
// call produced into env before returning.
func (i *Interp) dispatchMethodCall(env *Environment, recv box.Box, method string, args []box.Box) (box.Box, error) {
	if method == "fini" {
		if _, ok := recv.(box.Finalizer); ok {
			i.Forest.Finalize(recv.BoxID())
			return box.NewNull(), nil
		}
	}
	if inst, ok := recv.(*Instance); ok {
		if _, ok := i.lookupEffective(inst.typeName, method); ok {
			v, outbox, err := i.callMethod(inst, inst.typeName, method, args)
			if err != nil {
				return nil, err
			}
			receiveOutbox(env, outbox)
			return v, nil
		}
	}
	return box.DispatchMethod(recv, method, args, i.Builtin)
}

// receiveOutbox binds each outbox value into env under its original
// name, the caller-frame half of spec.md §3.4's transfer: the callee's
// `local` bindings are dropped with its frame, but its `outbox`
// bindings reappear as ordinary locals in the caller.
func receiveOutbox(env *Environment, bindings map[string]box.Box) {
	for name, v := range bindings {
		env.Define(name, v, false)
	}
}

