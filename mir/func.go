package mir

// Function and BasicBlock are MIR's structural containers, analogous to
// go/ssa's Function/BasicBlock: a function is a sequence of basic
// blocks; a basic block is a sequence of instructions ending in exactly
// one control instruction (Branch, Jump, Return, or TailCall).

// BasicBlock is one block of a Function's control-flow graph.
type BasicBlock struct {
	ID      BlockId
	Comment string
	Instrs  []Instruction
	Preds   []BlockId
	Succs   []BlockId
}

// Function is one MIR-lowered function body.
type Function struct {
	Name   string
	Params []ValueId
	Blocks []*BasicBlock

	// Outbox lists, in a stable sorted order, every local this function
	// declared `outbox` anywhere in its body (spec.md §3.4). Each Return
	// instruction carries the current SSA value for each name still in
	// scope at that return point in its own Outbox field; this slice is
	// just the function-wide name set, for the printer and any caller
	// wanting to know which names a call might escape.
	Outbox []string

	nextVal ValueId
}

// NewFunction returns an empty Function ready for a Builder to populate.
func NewFunction(name string) *Function {
	return &Function{Name: name}
}

// allocValue returns a fresh, never-before-issued ValueId for this
// function (spec.md §3.5, §8 invariant 6: "every ValueId has exactly
// one defining instruction").
func (f *Function) allocValue() ValueId {
	f.nextVal++
	return f.nextVal
}

// newBlock appends and returns a fresh BasicBlock.
func (f *Function) newBlock(comment string) *BasicBlock {
	b := &BasicBlock{ID: BlockId(len(f.Blocks)), Comment: comment}
	f.Blocks = append(f.Blocks, b)
	return b
}

func (f *Function) block(id BlockId) *BasicBlock {
	return f.Blocks[id]
}

// addEdge records a CFG edge from -> to.
func (f *Function) addEdge(from, to BlockId) {
	fb, tb := f.block(from), f.block(to)
	fb.Succs = append(fb.Succs, to)
	tb.Preds = append(tb.Preds, from)
}

// emit appends instr to b and, if instr defines a value, returns that
// ValueId.
func (b *BasicBlock) emit(instr Instruction) ValueId {
	b.Instrs = append(b.Instrs, instr)
	return instr.Result()
}

// MaxValueId returns the largest ValueId allocated in f (ValueIds are
// allocated from 1 upward) — used by the VM to size its register window (spec.md §4.6
// "a value pool sized to the function's maximum ValueId + 1").
func (f *Function) MaxValueId() ValueId {
	return f.nextVal
}

// Instructions iterates every instruction in block order, used by the
// verifier and the printer.
func (f *Function) Instructions(yield func(b *BasicBlock, instr Instruction) bool) {
	for _, b := range f.Blocks {
		for _, instr := range b.Instrs {
			if !yield(b, instr) {
				return
			}
		}
	}
}
