package interp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nyashlang/nyash-core/ast"
	"github.com/nyashlang/nyash-core/box"
)

func newTestInterp() *Interp {
	return New(box.NewRegistry(), box.NewForest(nil), nil)
}

func ident(name string) *ast.Ident { return &ast.Ident{Name: name} }

func counterDecl() *ast.BoxDecl {
	return &ast.BoxDecl{
		Name:   "Counter",
		Fields: []string{"n"},
		Methods: []*ast.MethodDecl{
			{
				Name: "birth",
				Body: &ast.Block{Stmts: []ast.Stmt{
					&ast.Assign{
						Target: &ast.FieldAccess{Receiver: &ast.Me{}, Field: "n"},
						Value:  &ast.IntLiteral{Value: 0},
					},
				}},
			},
			{
				Name: "bump",
				Body: &ast.Block{Stmts: []ast.Stmt{
					&ast.Assign{
						Target: &ast.FieldAccess{Receiver: &ast.Me{}, Field: "n"},
						Value: &ast.BinaryExpr{
							Op:    "+",
							Left:  &ast.FieldAccess{Receiver: &ast.Me{}, Field: "n"},
							Right: &ast.IntLiteral{Value: 1},
						},
					},
					&ast.Return{Value: &ast.FieldAccess{Receiver: &ast.Me{}, Field: "n"}},
				}},
			},
		},
	}
}

func TestConstructAndDispatch(t *testing.T) {
	i := newTestInterp()
	prog := &ast.Program{Boxes: []*ast.BoxDecl{counterDecl()}}
	if err := i.LoadProgram(prog); err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	inst, err := i.Reg.Resolve("Counter", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	md := inst.(box.MethodDispatcher)
	v, err := md.DispatchMethod("bump", nil)
	if err != nil {
		t.Fatalf("bump: %v", err)
	}
	if got := v.(*box.IntegerBox).Value(); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	v, err = md.DispatchMethod("bump", nil)
	if err != nil {
		t.Fatalf("bump: %v", err)
	}
	if got := v.(*box.IntegerBox).Value(); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}

func TestOverrideEnforced(t *testing.T) {
	base := &ast.BoxDecl{
		Name: "Base",
		Methods: []*ast.MethodDecl{
			{Name: "speak", Body: &ast.Block{}},
		},
	}
	derived := &ast.BoxDecl{
		Name:   "Derived",
		Parent: "Base",
		Methods: []*ast.MethodDecl{
			{Name: "speak", Body: &ast.Block{}}, // missing Override: true
		},
	}
	i := newTestInterp()
	prog := &ast.Program{Boxes: []*ast.BoxDecl{base, derived}}
	if err := i.LoadProgram(prog); err == nil {
		t.Fatalf("expected a missing-override error")
	}
}

func TestOverrideAccepted(t *testing.T) {
	base := &ast.BoxDecl{
		Name: "Base",
		Methods: []*ast.MethodDecl{
			{Name: "speak", Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.Return{Value: &ast.StringLiteral{Value: "base"}},
			}}},
		},
	}
	derived := &ast.BoxDecl{
		Name:   "Derived",
		Parent: "Base",
		Methods: []*ast.MethodDecl{
			{Name: "speak", Override: true, Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.Return{Value: &ast.StringLiteral{Value: "derived"}},
			}}},
		},
	}
	i := newTestInterp()
	prog := &ast.Program{Boxes: []*ast.BoxDecl{base, derived}}
	if err := i.LoadProgram(prog); err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	inst, err := i.Reg.Resolve("Derived", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	v, err := inst.(box.MethodDispatcher).DispatchMethod("speak", nil)
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	if got := v.(*box.StringBox).Value(); got != "derived" {
		t.Fatalf("expected derived, got %s", got)
	}
}

func TestFromParentBypassesOverride(t *testing.T) {
	base := &ast.BoxDecl{
		Name: "Base",
		Methods: []*ast.MethodDecl{
			{Name: "speak", Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.Return{Value: &ast.StringLiteral{Value: "base"}},
			}}},
		},
	}
	derived := &ast.BoxDecl{
		Name:   "Derived",
		Parent: "Base",
		Methods: []*ast.MethodDecl{
			{Name: "speak", Override: true, Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.Return{Value: &ast.DelegationCall{Parent: "Base", Method: "speak"}},
			}}},
		},
	}
	i := newTestInterp()
	prog := &ast.Program{Boxes: []*ast.BoxDecl{base, derived}}
	if err := i.LoadProgram(prog); err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	inst, err := i.Reg.Resolve("Derived", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	v, err := inst.(box.MethodDispatcher).DispatchMethod("speak", nil)
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	if got := v.(*box.StringBox).Value(); got != "base" {
		t.Fatalf("expected base (via from Parent), got %s", got)
	}
}

// TestExplicitFiniIsIdempotent exercises an ordinary `r.fini(); r.fini()`
// call pair written in Nyash source (ast.MethodCall, not a direct Go
// call to DispatchMethod), checking that a second explicit fini() is a
// no-op — the interpreter must route the call through Forest.Finalize,
// not straight to the fini method body, or "hits" would read 2.
func TestExplicitFiniIsIdempotent(t *testing.T) {
	resource := &ast.BoxDecl{
		Name:   "Resource",
		Fields: []string{"hits"},
		Methods: []*ast.MethodDecl{
			{Name: "birth", Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.Assign{
					Target: &ast.FieldAccess{Receiver: &ast.Me{}, Field: "hits"},
					Value:  &ast.IntLiteral{Value: 0},
				},
			}}},
			{Name: "fini", Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.Assign{
					Target: &ast.FieldAccess{Receiver: &ast.Me{}, Field: "hits"},
					Value: &ast.BinaryExpr{
						Op:    "+",
						Left:  &ast.FieldAccess{Receiver: &ast.Me{}, Field: "hits"},
						Right: &ast.IntLiteral{Value: 1},
					},
				},
			}}},
		},
	}
	driver := &ast.BoxDecl{
		Name: "Driver",
		Methods: []*ast.MethodDecl{
			{Name: "run", Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.VarDecl{Name: "r", Init: &ast.NewExpr{TypeName: "Resource"}},
				&ast.ExprStmt{X: &ast.MethodCall{Receiver: ident("r"), Method: "fini"}},
				&ast.ExprStmt{X: &ast.MethodCall{Receiver: ident("r"), Method: "fini"}},
				&ast.Return{Value: &ast.FieldAccess{Receiver: ident("r"), Field: "hits"}},
			}}},
		},
	}

	i := newTestInterp()
	prog := &ast.Program{Boxes: []*ast.BoxDecl{resource, driver}}
	if err := i.LoadProgram(prog); err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	inst, err := i.Reg.Resolve("Driver", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	v, err := inst.(box.MethodDispatcher).DispatchMethod("run", nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := v.(*box.IntegerBox).Value(); got != 1 {
		t.Fatalf("expected fini to run exactly once (idempotent second call), got hits=%d", got)
	}
}

// TestOutboxSurvivesReturn checks that an `outbox` local's value is
// still readable through the caller's environment after the callee
// returns, per spec.md §3.4's frame-transfer rule — unlike a `local`,
// which this test does not exercise since it is simply gone.
func TestOutboxSurvivesReturn(t *testing.T) {
	leaker := &ast.BoxDecl{
		Name: "Leaker",
		Methods: []*ast.MethodDecl{
			{Name: "make", Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.VarDecl{Kind: ast.VarOutbox, Name: "leaked", Init: &ast.IntLiteral{Value: 7}},
				&ast.Return{},
			}}},
		},
	}
	i := newTestInterp()
	prog := &ast.Program{Boxes: []*ast.BoxDecl{leaker}}
	if err := i.LoadProgram(prog); err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	inst, err := i.Reg.Resolve("Leaker", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	l := inst.(*Instance)

	env := i.globalEnv.NewFrame()
	env.Define("l", l, false)
	if _, err := i.evalExpr(env, &ast.MethodCall{Receiver: ident("l"), Method: "make"}); err != nil {
		t.Fatalf("make: %v", err)
	}
	v, ok := env.Get("leaked")
	if !ok {
		t.Fatalf("expected outbox binding %q to appear in the caller's environment", "leaked")
	}
	if got := v.(*box.IntegerBox).Value(); got != 7 {
		t.Fatalf("expected leaked=7, got %d", got)
	}
}

func TestUndeclaredVariableSuggestsNearestName(t *testing.T) {
	i := newTestInterp()
	env := NewEnvironment()
	env.Define("counter", box.NewInteger(1), false)
	_, err := i.evalExpr(env, ident("counte"))
	if err == nil {
		t.Fatalf("expected an undeclared-variable error")
	}
	if !strings.Contains(err.Error(), `did you mean "counter"`) {
		t.Fatalf("expected the error to suggest %q, got %v", "counter", err)
	}
}

func TestFiniCascadesOnFinalize(t *testing.T) {
	var finalized []string
	parent := &ast.BoxDecl{
		Name:   "Parent",
		Fields: []string{"child"},
		Methods: []*ast.MethodDecl{
			{Name: "birth", Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.Assign{
					Target: &ast.FieldAccess{Receiver: &ast.Me{}, Field: "child"},
					Value:  &ast.NewExpr{TypeName: "Child"},
				},
			}}},
		},
	}
	child := &ast.BoxDecl{Name: "Child"}

	i := newTestInterp()
	prog := &ast.Program{Boxes: []*ast.BoxDecl{parent, child}}
	if err := i.LoadProgram(prog); err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	_ = finalized

	p, err := i.Reg.Resolve("Parent", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	pi := p.(*Instance)
	childBox, _ := pi.GetField("child")
	ci := childBox.(*Instance)

	// birth's `me.child = new Child()` assignment already adopted ci
	// under pi through the interpreter's own FieldAccess-assign path
	// (interp/eval.go), with no test-side Forest bookkeeping needed.
	if got := i.Forest.StrongParent(ci.BoxID()); got != pi.BoxID() {
		t.Fatalf("expected birth's field assignment to adopt the child, strong parent = %d, want %d", got, pi.BoxID())
	}

	i.Forest.Finalize(pi.BoxID())
	if !i.Forest.IsFinalized(ci.BoxID()) {
		t.Fatalf("expected child to be finalized by cascade")
	}
}

func TestNowaitAwaitRoundTrip(t *testing.T) {
	i := newTestInterp()
	env := NewEnvironment()
	v, err := i.evalExpr(env, &ast.AwaitExpr{X: &ast.NowaitExpr{X: &ast.IntLiteral{Value: 7}}})
	if err != nil {
		t.Fatalf("await/nowait: %v", err)
	}
	if got := v.(*box.IntegerBox).Value(); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestBusFIFOOrdering(t *testing.T) {
	bus := NewBus()
	bus.Send("a", "b", box.NewInteger(1))
	bus.Send("a", "b", box.NewInteger(2))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v1, err := bus.Recv(ctx, "a", "b")
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	v2, err := bus.Recv(ctx, "a", "b")
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if v1.(*box.IntegerBox).Value() != 1 || v2.(*box.IntegerBox).Value() != 2 {
		t.Fatalf("expected FIFO order 1, 2; got %v, %v", v1, v2)
	}
}
