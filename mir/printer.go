package mir

import (
	"bytes"
	"fmt"
	"io"
)

// WriteFunction writes a canonical, stable textual disassembly of f to
// buf. This is the "MIR printer" of spec.md §4.4: its output is the
// medium of golden tests that compare the interpreter and VM execution
// paths (spec.md §6 "Canonical MIR dump"), so its format must not
// depend on map iteration order or other non-determinism — every
// consumer here (Function.Blocks, BasicBlock.Instrs) is already a
// slice, so simple sequential printing is already stable, the same
// property go/ssa's WriteFunction relies on.
func WriteFunction(buf *bytes.Buffer, f *Function) {
	fmt.Fprintf(buf, "# Name: %s\n", f.Name)
	fmt.Fprintf(buf, "# Params:")
	for _, p := range f.Params {
		fmt.Fprintf(buf, " %s", vref(p))
	}
	buf.WriteString("\n")
	if len(f.Outbox) > 0 {
		fmt.Fprintf(buf, "# Outbox: %v\n", f.Outbox)
	}

	for _, b := range f.Blocks {
		fmt.Fprintf(buf, "%s:", bref(b.ID))
		if b.Comment != "" {
			fmt.Fprintf(buf, " ; %s", b.Comment)
		}
		fmt.Fprintf(buf, " P:%d S:%d\n", len(b.Preds), len(b.Succs))
		for _, instr := range b.Instrs {
			fmt.Fprintf(buf, "\t%s\n", instr.String())
		}
	}
}

// WriteTo implements io.WriterTo for Function, mirroring go/ssa's
// Function.WriteTo.
func (f *Function) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	WriteFunction(&buf, f)
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// String returns the canonical disassembly as a string, for golden
// tests that want a plain string comparison.
func (f *Function) String() string {
	var buf bytes.Buffer
	WriteFunction(&buf, f)
	return buf.String()
}
