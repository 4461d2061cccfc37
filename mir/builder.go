package mir

import (
	"fmt"
	"sort"

	"github.com/nyashlang/nyash-core/ast"
)

// EffectOf is supplied by the embedding host (normally the BoxFactory
// registry) to tell the builder whether a given call target is pure or
// requires io, so that Call/BoxCall/ExternCall can "inherit their
// effect from the callee's declared effect" (spec.md §4.4). Kind is
// "func", "method", or "construct"; name is the function/method/type
// name. When nil, the builder assumes Mut for in-language calls/method
// calls and IO for ExternCall, which are safe (conservative)
// defaults.
type EffectOf func(kind, name string) Effect

// Builder lowers a single AST Program's methods into MIR Functions, one
// Function per method, mirroring go/ssa's Builder: it maintains, per
// function, the current basic block, a name -> current-ValueId map, a
// stack of enclosing loops (for break), and an owner stack (for
// strong-parent attribution of NewBox), exactly as spec.md §4.5
// describes.
type Builder struct {
	effectOf EffectOf
}

// NewBuilder returns a Builder. effectOf may be nil.
func NewBuilder(effectOf EffectOf) *Builder {
	if effectOf == nil {
		effectOf = func(kind, name string) Effect {
			if kind == "extern" {
				return IO
			}
			return Mut
		}
	}
	return &Builder{effectOf: effectOf}
}

// loopCtx records the blocks a `break` inside the loop should jump to.
type loopCtx struct {
	header, after BlockId
}

// fnBuilder is per-function lowering state.
type fnBuilder struct {
	b          *Builder
	fn         *Function
	block      *BasicBlock
	env        map[string]ValueId
	envTyp     map[string]TypeTag
	loops      []loopCtx
	ownerStack []ValueId // current strong-owner attribution for NewBox
	boxName    string    // the enclosing Box type's name, for "from Parent"

	// outboxNames is the function-wide, sorted set of every `outbox`
	// local declared anywhere in the method body (spec.md §3.4),
	// computed once up front so every Return site — however the body
	// branches to reach it — emits an Outbox list in the same order.
	outboxNames []string
}

// BuildMethod lowers a single method declaration of a Box type into a
// MIR Function named "BoxName.MethodName". hasReceiver is false only
// for standalone bodies with no `me` in scope (e.g. a future body
// lowered from `nowait`); ordinary instance methods pass true, and the
// builder allocates `me` as the function's first value, so that NewBox
// expressions assigned straight into `me.field` attribute ownership to
// the receiver.
func (b *Builder) BuildMethod(boxName string, m *ast.MethodDecl, hasReceiver bool) (*Function, error) {
	fn := NewFunction(boxName + "." + m.Name)
	fb := &fnBuilder{
		b:       b,
		fn:      fn,
		env:     make(map[string]ValueId),
		envTyp:  make(map[string]TypeTag),
		boxName: boxName,
	}
	fb.block = fn.newBlock("entry")

	if hasReceiver {
		recvOwner := fn.allocValue()
		fn.Params = append(fn.Params, recvOwner)
		fb.env["me"] = recvOwner
		fb.envTyp["me"] = TBoxHandle
		fb.ownerStack = append(fb.ownerStack, recvOwner)
	}
	for _, p := range m.Params {
		id := fn.allocValue()
		fn.Params = append(fn.Params, id)
		fb.env[p.Name] = id
		fb.envTyp[p.Name] = TBoxHandle // parameters are Box handles by default
	}

	fb.outboxNames = collectOutbox(m.Body)
	fn.Outbox = fb.outboxNames

	if err := fb.buildBlock(m.Body); err != nil {
		return nil, err
	}
	fb.ensureTerminated()
	return fn, nil
}

// collectOutbox returns, sorted, every name an `outbox name = ...`
// VarDecl introduces anywhere within blk, recursing into If and Loop
// bodies since an outbox local may be declared conditionally.
func collectOutbox(blk *ast.Block) []string {
	seen := make(map[string]bool)
	var walk func(b *ast.Block)
	walk = func(b *ast.Block) {
		if b == nil {
			return
		}
		for _, s := range b.Stmts {
			switch st := s.(type) {
			case *ast.VarDecl:
				if st.Kind == ast.VarOutbox {
					seen[st.Name] = true
				}
			case *ast.If:
				walk(st.Then)
				walk(st.Else)
			case *ast.Loop:
				walk(st.Body)
			}
		}
	}
	walk(blk)
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// outboxValues returns the current SSA value for each name in
// fb.outboxNames, in that order, using invalidValue for a name not yet
// bound on the control-flow path reaching this point.
func (fb *fnBuilder) outboxValues() []ValueId {
	if len(fb.outboxNames) == 0 {
		return nil
	}
	out := make([]ValueId, len(fb.outboxNames))
	for i, name := range fb.outboxNames {
		if v, ok := fb.env[name]; ok {
			out[i] = v
		} else {
			out[i] = invalidValue
		}
	}
	return out
}

// ensureTerminated appends an implicit `return` to the current block if
// it is not already terminated, matching a method body that falls off
// the end without an explicit return.
func (fb *fnBuilder) ensureTerminated() {
	if fb.block == nil {
		return
	}
	if n := len(fb.block.Instrs); n > 0 {
		switch fb.block.Instrs[n-1].(type) {
		case *Return, *Jump, *Branch, *TailCall:
			return
		}
	}
	fb.block.emit(&Return{Value: invalidValue, Outbox: fb.outboxValues()})
}

func (fb *fnBuilder) buildBlock(blk *ast.Block) error {
	if blk == nil {
		return nil
	}
	for _, s := range blk.Stmts {
		if err := fb.buildStmt(s); err != nil {
			return err
		}
		if fb.block == nil {
			break // a Return/Break terminated the enclosing flow already
		}
	}
	return nil
}

func (fb *fnBuilder) buildStmt(s ast.Stmt) error {
	switch st := s.(type) {
	case *ast.ExprStmt:
		_, _, err := fb.buildExpr(st.X)
		return err

	case *ast.VarDecl:
		// st.Kind's `outbox` case was already folded into fb.outboxNames
		// by collectOutbox before this function's body was built, so
		// every Return site knows to carry this name's value forward;
		// the binding itself still flows through fb.env like any local.
		if st.Init != nil {
			v, typ, err := fb.buildExpr(st.Init)
			if err != nil {
				return err
			}
			fb.env[st.Name] = v
			fb.envTyp[st.Name] = typ
		} else {
			v := fb.block.emit(&Const{ID: fb.fn.allocValue(), Typ: TVoid, Value: nil})
			fb.env[st.Name] = v
			fb.envTyp[st.Name] = TVoid
		}
		return nil

	case *ast.Assign:
		v, typ, err := fb.buildExpr(st.Value)
		if err != nil {
			return err
		}
		switch target := st.Target.(type) {
		case *ast.Ident:
			fb.env[target.Name] = v
			fb.envTyp[target.Name] = typ
		case *ast.FieldAccess:
			recv, _, err := fb.buildExpr(target.Receiver)
			if err != nil {
				return err
			}
			fb.block.emit(&BoxFieldStore{Box: recv, Field: target.Field, Val: v, ValTyp: typ})
		default:
			return fmt.Errorf("mir: unsupported assignment target %T", st.Target)
		}
		return nil

	case *ast.If:
		return fb.buildIf(st)

	case *ast.Loop:
		return fb.buildLoop(st)

	case *ast.Break:
		if len(fb.loops) == 0 {
			return fmt.Errorf("mir: break outside loop")
		}
		cur := fb.loops[len(fb.loops)-1]
		fb.fn.addEdge(fb.block.ID, cur.after)
		fb.block.emit(&Jump{Target: cur.after})
		fb.block = nil
		return nil

	case *ast.Return:
		var v ValueId = invalidValue
		if st.Value != nil {
			var err error
			v, _, err = fb.buildExpr(st.Value)
			if err != nil {
				return err
			}
		}
		fb.block.emit(&Return{Value: v, Outbox: fb.outboxValues()})
		fb.block = nil
		return nil

	default:
		return fmt.Errorf("mir: unsupported statement %T", s)
	}
}

// buildIf lowers if/else into then/else/merge blocks, inserting Phi
// nodes in the merge block for every variable whose value differs
// between the two incoming branches (spec.md §4.5).
func (fb *fnBuilder) buildIf(st *ast.If) error {
	cond, _, err := fb.buildExpr(st.Cond)
	if err != nil {
		return err
	}
	thenB := fb.fn.newBlock("if.then")
	elseB := fb.fn.newBlock("if.else")
	fb.fn.addEdge(fb.block.ID, thenB.ID)
	fb.fn.addEdge(fb.block.ID, elseB.ID)
	fb.block.emit(&Branch{Cond: cond, Then: thenB.ID, Else: elseB.ID})

	preEnv, preTyp := cloneEnv(fb.env), cloneEnv(fb.envTyp)

	fb.block = thenB
	if err := fb.buildBlock(st.Then); err != nil {
		return err
	}
	thenEnv, thenTyp, thenExit := fb.env, fb.envTyp, fb.block

	fb.env, fb.envTyp = cloneEnv(preEnv), cloneEnv(preTyp)
	fb.block = elseB
	if st.Else != nil {
		if err := fb.buildBlock(st.Else); err != nil {
			return err
		}
	}
	elseEnv, elseTyp, elseExit := fb.env, fb.envTyp, fb.block

	mergeB := fb.fn.newBlock("if.merge")
	merged := make(map[string]ValueId)
	mergedTyp := make(map[string]TypeTag)
	for name, prev := range preEnv {
		tv, tok := thenEnv[name]
		ev, eok := elseEnv[name]
		if !tok {
			tv = prev
		}
		if !eok {
			ev = prev
		}
		if tv == ev {
			merged[name] = tv
			merged_type(mergedTyp, preTyp, thenTyp, elseTyp, name)
			continue
		}
		var edges []PhiEdge
		if thenExit != nil {
			edges = append(edges, PhiEdge{Block: thenExit.ID, Value: tv})
		}
		if elseExit != nil {
			edges = append(edges, PhiEdge{Block: elseExit.ID, Value: ev})
		}
		typ := thenTyp[name]
		if typ == 0 && eok {
			typ = elseTyp[name]
		}
		id := mergeB.emit(&Phi{ID: fb.fn.allocValue(), Typ: typ, Edges: edges})
		merged[name] = id
		mergedTyp[name] = typ
	}
	// Names introduced only inside one branch (new locals) are scoped
	// to that branch and simply don't survive into merged.

	if thenExit != nil {
		fb.fn.addEdge(thenExit.ID, mergeB.ID)
		thenExit.emit(&Jump{Target: mergeB.ID})
	}
	if elseExit != nil {
		fb.fn.addEdge(elseExit.ID, mergeB.ID)
		elseExit.emit(&Jump{Target: mergeB.ID})
	}

	fb.env, fb.envTyp = merged, mergedTyp
	fb.block = mergeB
	return nil
}

func merged_type(dst map[string]TypeTag, pre, then, els map[string]TypeTag, name string) {
	if t, ok := then[name]; ok {
		dst[name] = t
		return
	}
	if t, ok := els[name]; ok {
		dst[name] = t
		return
	}
	dst[name] = pre[name]
}

// buildLoop lowers `loop(condition) { body }` using the standard
// pre-allocated-Phi technique: every name assigned anywhere in the
// loop body gets a Phi at the loop header with a placeholder back-edge
// that is patched once the body's exit values are known. `break`
// targets the after-block directly.
func (fb *fnBuilder) buildLoop(st *ast.Loop) error {
	preheader := fb.block
	header := fb.fn.newBlock("loop.header")
	body := fb.fn.newBlock("loop.body")
	after := fb.fn.newBlock("loop.after")

	fb.fn.addEdge(preheader.ID, header.ID)
	preheader.emit(&Jump{Target: header.ID})

	assigned := collectAssigned(st.Body)
	phis := make(map[string]*Phi)
	headerEnv := make(map[string]ValueId)
	headerTyp := make(map[string]TypeTag)
	for name, prev := range fb.env {
		headerEnv[name] = prev
		headerTyp[name] = fb.envTyp[name]
	}
	for name := range assigned {
		typ := fb.envTyp[name]
		phi := &Phi{ID: fb.fn.allocValue(), Typ: typ, Edges: []PhiEdge{{Block: preheader.ID, Value: fb.env[name]}}}
		header.emit(phi)
		phis[name] = phi
		headerEnv[name] = phi.ID
	}

	fb.block = header
	fb.env, fb.envTyp = headerEnv, headerTyp
	cond, _, err := fb.buildExpr(st.Cond)
	if err != nil {
		return err
	}
	fb.fn.addEdge(header.ID, body.ID)
	fb.fn.addEdge(header.ID, after.ID)
	header.emit(&Branch{Cond: cond, Then: body.ID, Else: after.ID})

	fb.loops = append(fb.loops, loopCtx{header: header.ID, after: after.ID})
	fb.block = body
	if err := fb.buildBlock(st.Body); err != nil {
		return err
	}
	bodyExit := fb.block
	fb.loops = fb.loops[:len(fb.loops)-1]

	if bodyExit != nil {
		for name, phi := range phis {
			phi.Edges = append(phi.Edges, PhiEdge{Block: bodyExit.ID, Value: fb.env[name]})
		}
		fb.fn.addEdge(bodyExit.ID, header.ID)
		bodyExit.emit(&Jump{Target: header.ID})
	}

	fb.block = after
	fb.env, fb.envTyp = headerEnv, headerTyp
	return nil
}

// collectAssigned returns the set of variable names directly assigned
// (VarDecl or Assign-to-Ident) anywhere within blk, crossing If
// branches (either branch may run on a given iteration) and recursing
// into nested Loop bodies.
func collectAssigned(blk *ast.Block) map[string]bool {
	out := make(map[string]bool)
	var walk func(b *ast.Block)
	walk = func(b *ast.Block) {
		if b == nil {
			return
		}
		for _, s := range b.Stmts {
			switch st := s.(type) {
			case *ast.VarDecl:
				out[st.Name] = true
			case *ast.Assign:
				if id, ok := st.Target.(*ast.Ident); ok {
					out[id.Name] = true
				}
			case *ast.If:
				walk(st.Then)
				walk(st.Else)
			case *ast.Loop:
				walk(st.Body)
			}
		}
	}
	walk(blk)
	return out
}

func cloneEnv[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// buildExpr lowers an expression, returning its defining ValueId and
// type tag.
func (fb *fnBuilder) buildExpr(e ast.Expr) (ValueId, TypeTag, error) {
	switch ex := e.(type) {
	case *ast.IntLiteral:
		return fb.block.emit(&Const{ID: fb.fn.allocValue(), Typ: TInteger, Value: ex.Value}), TInteger, nil
	case *ast.FloatLiteral:
		return fb.block.emit(&Const{ID: fb.fn.allocValue(), Typ: TFloat, Value: ex.Value}), TFloat, nil
	case *ast.StringLiteral:
		return fb.block.emit(&Const{ID: fb.fn.allocValue(), Typ: TString, Value: ex.Value}), TString, nil
	case *ast.BoolLiteral:
		return fb.block.emit(&Const{ID: fb.fn.allocValue(), Typ: TBoolean, Value: ex.Value}), TBoolean, nil
	case *ast.NullLiteral:
		return fb.block.emit(&Const{ID: fb.fn.allocValue(), Typ: TBoxHandle, Value: nil}), TBoxHandle, nil

	case *ast.Ident:
		v, ok := fb.env[ex.Name]
		if !ok {
			return 0, 0, fmt.Errorf("mir: undeclared variable %q", ex.Name)
		}
		return v, fb.envTyp[ex.Name], nil

	case *ast.Me:
		v, ok := fb.env["me"]
		if !ok {
			return 0, 0, fmt.Errorf("mir: `me` used outside a method body")
		}
		return v, TBoxHandle, nil

	case *ast.BinaryExpr:
		a, typ, err := fb.buildExpr(ex.Left)
		if err != nil {
			return 0, 0, err
		}
		bv, _, err := fb.buildExpr(ex.Right)
		if err != nil {
			return 0, 0, err
		}
		return fb.block.emit(&BinOp{ID: fb.fn.allocValue(), Op: ex.Op, A: a, B: bv, Typ: typ}), typ, nil

	case *ast.UnaryExpr:
		// Lowered as `0 - x` / `not x`-style BinOp against a synthetic
		// zero for arithmetic negation; logical `not` is handled by
		// NotExpr separately since it does not carry arithmetic
		// operator-trait semantics.
		x, typ, err := fb.buildExpr(ex.X)
		if err != nil {
			return 0, 0, err
		}
		zero := fb.block.emit(&Const{ID: fb.fn.allocValue(), Typ: typ, Value: int64(0)})
		return fb.block.emit(&BinOp{ID: fb.fn.allocValue(), Op: "-", A: zero, B: x, Typ: typ}), typ, nil

	case *ast.NotExpr:
		x, _, err := fb.buildExpr(ex.X)
		if err != nil {
			return 0, 0, err
		}
		truth := fb.block.emit(&Const{ID: fb.fn.allocValue(), Typ: TBoolean, Value: true})
		return fb.block.emit(&Compare{ID: fb.fn.allocValue(), Op: "!=", A: x, B: truth}), TBoolean, nil

	case *ast.CompareExpr:
		a, _, err := fb.buildExpr(ex.Left)
		if err != nil {
			return 0, 0, err
		}
		bv, _, err := fb.buildExpr(ex.Right)
		if err != nil {
			return 0, 0, err
		}
		return fb.block.emit(&Compare{ID: fb.fn.allocValue(), Op: ex.Op, A: a, B: bv}), TBoolean, nil

	case *ast.LogicalExpr:
		return fb.buildLogical(ex)

	case *ast.FieldAccess:
		recv, _, err := fb.buildExpr(ex.Receiver)
		if err != nil {
			return 0, 0, err
		}
		id := fb.fn.allocValue()
		fb.block.emit(&BoxFieldLoad{ID: id, Typ: TBoxHandle, Box: recv, Field: ex.Field})
		return id, TBoxHandle, nil

	case *ast.MethodCall:
		recv, _, err := fb.buildExpr(ex.Receiver)
		if err != nil {
			return 0, 0, err
		}
		args, err := fb.buildArgs(ex.Args)
		if err != nil {
			return 0, 0, err
		}
		id := fb.fn.allocValue()
		eff := fb.b.effectOf("method", ex.Method)
		fb.block.emit(&BoxCall{ID: id, Typ: TBoxHandle, Receiver: recv, Method: ex.Method, Args: args, Eff: eff})
		return id, TBoxHandle, nil

	case *ast.DelegationCall:
		recv, ok := fb.env["me"]
		if !ok {
			return 0, 0, fmt.Errorf("mir: `from Parent.method` used outside a method body")
		}
		args, err := fb.buildArgs(ex.Args)
		if err != nil {
			return 0, 0, err
		}
		id := fb.fn.allocValue()
		eff := fb.b.effectOf("method", ex.Method)
		fb.block.emit(&BoxCall{ID: id, Typ: TBoxHandle, Receiver: recv, Method: ex.Method, Args: args, ParentHint: ex.Parent, Eff: eff})
		return id, TBoxHandle, nil

	case *ast.NewExpr:
		args, err := fb.buildArgs(ex.Args)
		if err != nil {
			return 0, 0, err
		}
		id := fb.fn.allocValue()
		var owner ValueId
		if len(fb.ownerStack) > 0 {
			owner = fb.ownerStack[len(fb.ownerStack)-1]
		}
		eff := fb.b.effectOf("construct", ex.TypeName)
		fb.block.emit(&NewBox{ID: id, Type: ex.TypeName, Args: args, Owner: owner, Eff: eff})
		return id, TBoxHandle, nil

	case *ast.NowaitExpr:
		// Lowered as a Call that constructs a future-Box and schedules
		// the expression (spec.md §4.5); the actual scheduling is a
		// host (interpreter) concern, so the MIR only records the
		// call-site shape.
		id := fb.fn.allocValue()
		fb.block.emit(&Call{ID: id, Typ: TFutureHandle, Fn: "nowait", Args: nil, Eff: Mut})
		return id, TFutureHandle, nil

	case *ast.AwaitExpr:
		f, _, err := fb.buildExpr(ex.X)
		if err != nil {
			return 0, 0, err
		}
		fb.block.emit(&Safepoint{})
		id := fb.fn.allocValue()
		fb.block.emit(&BoxCall{ID: id, Typ: TBoxHandle, Receiver: f, Method: "await", Eff: Mut})
		return id, TBoxHandle, nil

	default:
		return 0, 0, fmt.Errorf("mir: unsupported expression %T", e)
	}
}

// buildLogical lowers `and`/`or` with short-circuit control flow rather
// than an eager BinOp, since both operands must not always be
// evaluated.
func (fb *fnBuilder) buildLogical(ex *ast.LogicalExpr) (ValueId, TypeTag, error) {
	a, _, err := fb.buildExpr(ex.Left)
	if err != nil {
		return 0, 0, err
	}
	rhsB := fb.fn.newBlock("logical.rhs")
	mergeB := fb.fn.newBlock("logical.merge")
	lhsExit := fb.block

	if ex.Op == "and" {
		fb.fn.addEdge(lhsExit.ID, rhsB.ID)
		fb.fn.addEdge(lhsExit.ID, mergeB.ID)
		lhsExit.emit(&Branch{Cond: a, Then: rhsB.ID, Else: mergeB.ID})
	} else {
		fb.fn.addEdge(lhsExit.ID, mergeB.ID)
		fb.fn.addEdge(lhsExit.ID, rhsB.ID)
		lhsExit.emit(&Branch{Cond: a, Then: mergeB.ID, Else: rhsB.ID})
	}

	fb.block = rhsB
	bv, _, err := fb.buildExpr(ex.Right)
	if err != nil {
		return 0, 0, err
	}
	rhsExit := fb.block
	fb.fn.addEdge(rhsExit.ID, mergeB.ID)
	rhsExit.emit(&Jump{Target: mergeB.ID})

	phi := &Phi{
		ID:  fb.fn.allocValue(),
		Typ: TBoolean,
		Edges: []PhiEdge{
			{Block: lhsExit.ID, Value: a},
			{Block: rhsExit.ID, Value: bv},
		},
	}
	mergeB.emit(phi)
	fb.block = mergeB
	return phi.ID, TBoolean, nil
}

func (fb *fnBuilder) buildArgs(exprs []ast.Expr) ([]ValueId, error) {
	out := make([]ValueId, len(exprs))
	for i, e := range exprs {
		v, _, err := fb.buildExpr(e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
