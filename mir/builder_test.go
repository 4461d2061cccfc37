package mir

import (
	"strings"
	"testing"

	"github.com/nyashlang/nyash-core/ast"
)

func ident(name string) *ast.Ident { return &ast.Ident{Name: name} }

func TestBuildSimpleReturn(t *testing.T) {
	m := &ast.MethodDecl{
		Name: "answer",
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Return{Value: &ast.IntLiteral{Value: 42}},
		}},
	}
	b := NewBuilder(nil)
	fn, err := b.BuildMethod("Demo", m, false)
	if err != nil {
		t.Fatalf("BuildMethod: %v", err)
	}
	if err := VerifyFunction(fn); err != nil {
		t.Fatalf("VerifyFunction: %v", err)
	}
	if !SanityCheck(fn, nil) {
		t.Fatalf("SanityCheck failed for %s", fn.Name)
	}
	if len(fn.Blocks) != 1 {
		t.Fatalf("expected a single block, got %d", len(fn.Blocks))
	}
	last := fn.Blocks[0].Instrs[len(fn.Blocks[0].Instrs)-1]
	if _, ok := last.(*Return); !ok {
		t.Fatalf("expected terminating Return, got %T", last)
	}
}

func TestBuildIfMergesPhi(t *testing.T) {
	m := &ast.MethodDecl{
		Name: "pick",
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.VarDecl{Name: "x", Init: &ast.IntLiteral{Value: 1}},
			&ast.If{
				Cond: &ast.BoolLiteral{Value: true},
				Then: &ast.Block{Stmts: []ast.Stmt{
					&ast.Assign{Target: ident("x"), Value: &ast.IntLiteral{Value: 2}},
				}},
				Else: &ast.Block{Stmts: []ast.Stmt{
					&ast.Assign{Target: ident("x"), Value: &ast.IntLiteral{Value: 3}},
				}},
			},
			&ast.Return{Value: ident("x")},
		}},
	}
	b := NewBuilder(nil)
	fn, err := b.BuildMethod("Demo", m, false)
	if err != nil {
		t.Fatalf("BuildMethod: %v", err)
	}
	if err := VerifyFunction(fn); err != nil {
		t.Fatalf("VerifyFunction: %v", err)
	}
	if !SanityCheck(fn, nil) {
		t.Fatalf("SanityCheck failed")
	}

	var foundPhi bool
	fn.Instructions(func(_ *BasicBlock, instr Instruction) bool {
		if _, ok := instr.(*Phi); ok {
			foundPhi = true
		}
		return true
	})
	if !foundPhi {
		t.Fatalf("expected a Phi merging the two branch values of x, dump:\n%s", fn.String())
	}
}

func TestBuildLoopPhiAndBreak(t *testing.T) {
	m := &ast.MethodDecl{
		Name: "countdown",
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.VarDecl{Name: "n", Init: &ast.IntLiteral{Value: 3}},
			&ast.Loop{
				Cond: &ast.CompareExpr{Op: ">", Left: ident("n"), Right: &ast.IntLiteral{Value: 0}},
				Body: &ast.Block{Stmts: []ast.Stmt{
					&ast.If{
						Cond: &ast.CompareExpr{Op: "==", Left: ident("n"), Right: &ast.IntLiteral{Value: 1}},
						Then: &ast.Block{Stmts: []ast.Stmt{&ast.Break{}}},
					},
					&ast.Assign{
						Target: ident("n"),
						Value:  &ast.BinaryExpr{Op: "-", Left: ident("n"), Right: &ast.IntLiteral{Value: 1}},
					},
				}},
			},
			&ast.Return{Value: ident("n")},
		}},
	}
	b := NewBuilder(nil)
	fn, err := b.BuildMethod("Demo", m, false)
	if err != nil {
		t.Fatalf("BuildMethod: %v", err)
	}
	if err := VerifyFunction(fn); err != nil {
		t.Fatalf("VerifyFunction: %v", err)
	}
	if !SanityCheck(fn, nil) {
		t.Fatalf("SanityCheck failed, dump:\n%s", fn.String())
	}

	dump := fn.String()
	if !strings.Contains(dump, "phi") {
		t.Fatalf("expected loop header phi for n, dump:\n%s", dump)
	}
}

func TestBuildNewBoxOwnership(t *testing.T) {
	// me.child = new Child() establishes a strong edge from the
	// receiver to the new Box; the field store then records that same
	// edge again, which the verifier accepts because the parent is
	// unchanged.
	m := &ast.MethodDecl{
		Name: "birth",
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Assign{
				Target: &ast.FieldAccess{Receiver: &ast.Me{}, Field: "child"},
				Value:  &ast.NewExpr{TypeName: "Child"},
			},
			&ast.Return{},
		}},
	}
	b := NewBuilder(nil)
	fn, err := b.BuildMethod("Parent", m, true)
	if err != nil {
		t.Fatalf("BuildMethod: %v", err)
	}
	if err := VerifyFunction(fn); err != nil {
		t.Fatalf("VerifyFunction: %v", err)
	}
}

func TestVerifyRejectsOwnershipCycle(t *testing.T) {
	// Mirrors spec.md §8 scenario 3: NewBox A, NewBox B, then
	// A.field = B followed by B.field = A must be rejected as a
	// strong-ownership cycle.
	fn := NewFunction("cyclic")
	blk := fn.newBlock("entry")
	a := fn.allocValue()
	blk.emit(&NewBox{ID: a, Type: "A"})
	b := fn.allocValue()
	blk.emit(&NewBox{ID: b, Type: "B"})
	blk.emit(&BoxFieldStore{Box: a, Field: "f", Val: b, ValTyp: TBoxHandle})
	blk.emit(&BoxFieldStore{Box: b, Field: "g", Val: a, ValTyp: TBoxHandle})
	blk.emit(&Return{})

	err := VerifyFunction(fn)
	if err == nil {
		t.Fatalf("expected an ownership cycle error")
	}
	oe, ok := err.(*OwnershipError)
	if !ok {
		t.Fatalf("expected *OwnershipError, got %T", err)
	}
	if oe.Reason != "would create a strong ownership cycle" {
		t.Fatalf("unexpected reason: %s", oe.Reason)
	}
}

func TestVerifyRejectsDoubleStrongParent(t *testing.T) {
	fn := NewFunction("double")
	blk := fn.newBlock("entry")
	parent1 := fn.allocValue()
	blk.emit(&NewBox{ID: parent1, Type: "P1"})
	parent2 := fn.allocValue()
	blk.emit(&NewBox{ID: parent2, Type: "P2"})
	child := fn.allocValue()
	blk.emit(&NewBox{ID: child, Type: "C"})
	blk.emit(&BoxFieldStore{Box: parent1, Field: "c", Val: child, ValTyp: TBoxHandle})
	blk.emit(&BoxFieldStore{Box: parent2, Field: "c", Val: child, ValTyp: TBoxHandle})
	blk.emit(&Return{})

	err := VerifyFunction(fn)
	if err == nil {
		t.Fatalf("expected a double-strong-parent error")
	}
	oe, ok := err.(*OwnershipError)
	if !ok {
		t.Fatalf("expected *OwnershipError, got %T", err)
	}
	if oe.ExistingParent != parent1 {
		t.Fatalf("expected existing parent %v, got %v", parent1, oe.ExistingParent)
	}
}

func TestSanityCheckDetectsMissingTerminator(t *testing.T) {
	fn := NewFunction("broken")
	blk := fn.newBlock("entry")
	blk.emit(&Const{ID: fn.allocValue(), Typ: TInteger, Value: int64(1)})
	// no terminator

	var buf strings.Builder
	if SanityCheck(fn, &buf) {
		t.Fatalf("expected SanityCheck to fail on a block with no terminator")
	}
	if buf.Len() == 0 {
		t.Fatalf("expected a diagnostic to be written")
	}
}

func TestPrinterIsDeterministic(t *testing.T) {
	m := &ast.MethodDecl{
		Name: "answer",
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.Return{Value: &ast.IntLiteral{Value: 42}},
		}},
	}
	b := NewBuilder(nil)
	fn1, _ := b.BuildMethod("Demo", m, false)
	fn2, _ := b.BuildMethod("Demo", m, false)
	if fn1.String() != fn2.String() {
		t.Fatalf("printer output differs between two identical builds:\n%s\n---\n%s", fn1.String(), fn2.String())
	}
}
