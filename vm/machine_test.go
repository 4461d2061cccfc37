package vm_test

import (
	"testing"

	"github.com/nyashlang/nyash-core/ast"
	"github.com/nyashlang/nyash-core/box"
	"github.com/nyashlang/nyash-core/mir"
	"github.com/nyashlang/nyash-core/vm"
)

func ident(name string) *ast.Ident { return &ast.Ident{Name: name} }

// fieldBox is a minimal box.Box + box.FieldAccessor fixture standing in
// for a builtin Box type, so these tests can exercise BoxFieldLoad/
// BoxFieldStore/NewBox without needing a full interp.Instance.
type fieldBox struct {
	id       box.ID
	typeName string
	fields   map[string]box.Box
}

func newFieldBox(typeName string) *fieldBox {
	return &fieldBox{id: box.NextID(), typeName: typeName, fields: make(map[string]box.Box)}
}

func (f *fieldBox) TypeName() string      { return f.typeName }
func (f *fieldBox) TypeID() box.TypeID    { return 1000 }
func (f *fieldBox) BoxID() box.ID         { return f.id }
func (f *fieldBox) CloneValue() box.Box   { return newFieldBox(f.typeName) }
func (f *fieldBox) ShareReference() box.Box { return f }

func (f *fieldBox) GetField(name string) (box.Box, bool) {
	v, ok := f.fields[name]
	return v, ok
}

func (f *fieldBox) SetField(name string, v box.Box) bool {
	f.fields[name] = v
	return true
}

func newMachine() (*vm.Machine, *box.Registry, *box.Forest) {
	reg := box.NewRegistry()
	forest := box.NewForest(nil)
	m := vm.NewMachine(reg, forest, nil, nil)
	return m, reg, forest
}

func buildAndRun(t *testing.T, body *ast.Block, hasReceiver bool, args []box.Box) box.Box {
	t.Helper()
	b := mir.NewBuilder(nil)
	fn, err := b.BuildMethod("Test", &ast.MethodDecl{Name: "run", Body: body}, hasReceiver)
	if err != nil {
		t.Fatalf("BuildMethod: %v", err)
	}
	m, _, _ := newMachine()
	result, err := m.Run(fn, args)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return result
}

func TestReturnsConstant(t *testing.T) {
	body := &ast.Block{Stmts: []ast.Stmt{
		&ast.Return{Value: &ast.IntLiteral{Value: 42}},
	}}
	result := buildAndRun(t, body, false, nil)
	n, ok := result.(*box.IntegerBox)
	if !ok || n.Value() != 42 {
		t.Fatalf("expected Integer(42), got %#v", result)
	}
}

func TestBinOpAddition(t *testing.T) {
	body := &ast.Block{Stmts: []ast.Stmt{
		&ast.Return{Value: &ast.BinaryExpr{Op: "+", Left: &ast.IntLiteral{Value: 2}, Right: &ast.IntLiteral{Value: 3}}},
	}}
	result := buildAndRun(t, body, false, nil)
	n, ok := result.(*box.IntegerBox)
	if !ok || n.Value() != 5 {
		t.Fatalf("expected Integer(5), got %#v", result)
	}
}

func TestCompareAndIfMergesPhi(t *testing.T) {
	body := &ast.Block{Stmts: []ast.Stmt{
		&ast.VarDecl{Name: "x", Init: &ast.IntLiteral{Value: 1}},
		&ast.If{
			Cond: &ast.CompareExpr{Op: "<", Left: &ast.IntLiteral{Value: 1}, Right: &ast.IntLiteral{Value: 2}},
			Then: &ast.Block{Stmts: []ast.Stmt{
				&ast.Assign{Target: ident("x"), Value: &ast.IntLiteral{Value: 100}},
			}},
			Else: &ast.Block{Stmts: []ast.Stmt{
				&ast.Assign{Target: ident("x"), Value: &ast.IntLiteral{Value: 200}},
			}},
		},
		&ast.Return{Value: ident("x")},
	}}
	result := buildAndRun(t, body, false, nil)
	n, ok := result.(*box.IntegerBox)
	if !ok || n.Value() != 100 {
		t.Fatalf("expected Integer(100) from the true branch, got %#v", result)
	}
}

func TestNewBoxFieldStoreAdoptsChild(t *testing.T) {
	// A parameter (already-tracked Box, standing in for a live receiver)
	// gets a freshly constructed Child adopted into one of its fields;
	// reading the field back must observe the same child, and the
	// Forest must record the strong edge.
	m, reg, forest := newMachine()
	_, err := reg.Register("Child", box.KindBuiltin, func(args []box.Box) (box.Box, error) {
		return newFieldBox("Child"), nil
	}, box.TypeMeta{Kind: box.KindBuiltin})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	owner := newFieldBox("Owner")
	forest.Track(owner)

	body := &ast.Block{Stmts: []ast.Stmt{
		&ast.Assign{
			Target: &ast.FieldAccess{Receiver: ident("owner"), Field: "child"},
			Value:  &ast.NewExpr{TypeName: "Child"},
		},
		&ast.Return{Value: &ast.FieldAccess{Receiver: ident("owner"), Field: "child"}},
	}}
	b := mir.NewBuilder(nil)
	methodAST := &ast.MethodDecl{Name: "run", Params: []ast.Param{{Name: "owner"}}, Body: body}
	fn, err := b.BuildMethod("Test", methodAST, false)
	if err != nil {
		t.Fatalf("BuildMethod: %v", err)
	}

	result, err := m.Run(fn, []box.Box{owner})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	child, ok := result.(*fieldBox)
	if !ok || child.typeName != "Child" {
		t.Fatalf("expected the stored Child back, got %#v", result)
	}
	if forest.StrongParent(child.BoxID()) != owner.BoxID() {
		t.Fatalf("expected Forest to record owner as child's strong parent")
	}
}

func TestCallDispatchesThroughFunctionTable(t *testing.T) {
	// `nowait expr` lowers to a Call{Fn: "nowait"} (the MIR builder
	// records only the call-site shape; actual scheduling is a host
	// concern). Resolving it through Machine.Functions exercises the
	// Tier-0 Call instruction end to end.
	b := mir.NewBuilder(nil)
	produceFn, err := b.BuildMethod("Test", &ast.MethodDecl{
		Name: "produce",
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Return{Value: &ast.IntLiteral{Value: 99}},
		}},
	}, false)
	if err != nil {
		t.Fatalf("BuildMethod produce: %v", err)
	}

	callerFn, err := b.BuildMethod("Test", &ast.MethodDecl{
		Name: "caller",
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Return{Value: &ast.NowaitExpr{X: &ast.IntLiteral{Value: 99}}},
		}},
	}, false)
	if err != nil {
		t.Fatalf("BuildMethod caller: %v", err)
	}

	m, _, _ := newMachine()
	m.Functions["nowait"] = produceFn
	result, err := m.Run(callerFn, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := result.(*box.IntegerBox).Value(); n != 99 {
		t.Fatalf("expected Integer(99), got %d", n)
	}
}

func TestBoxCallDispatchesThroughSharedHelper(t *testing.T) {
	// box.DispatchMethod is shared with package interp; a Builtin hook
	// installed on the Machine must be reachable from a MIR BoxCall the
	// same way it is from interp.Interp.dispatchMethodCall.
	var gotMethod string
	builtin := box.BuiltinMethodFunc(func(recv box.Box, method string, args []box.Box) (box.Box, bool, error) {
		gotMethod = method
		return box.NewInteger(7), true, nil
	})
	reg := box.NewRegistry()
	forest := box.NewForest(nil)
	m := vm.NewMachine(reg, forest, builtin, nil)

	recv := newFieldBox("Widget")
	forest.Track(recv)

	b := mir.NewBuilder(nil)
	fn, err := b.BuildMethod("Test", &ast.MethodDecl{
		Name:   "run",
		Params: []ast.Param{{Name: "w"}},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Return{Value: &ast.MethodCall{Receiver: ident("w"), Method: "size"}},
		}},
	}, false)
	if err != nil {
		t.Fatalf("BuildMethod: %v", err)
	}

	result, err := m.Run(fn, []box.Box{recv})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := result.(*box.IntegerBox).Value(); n != 7 {
		t.Fatalf("expected Integer(7), got %d", n)
	}
	if gotMethod != "size" {
		t.Fatalf("expected builtin hook to see method %q, got %q", "size", gotMethod)
	}
}
