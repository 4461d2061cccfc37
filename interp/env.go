package interp

import "github.com/nyashlang/nyash-core/box"

// Environment is a lexical scope frame: `local` and `outbox` variable
// bindings, chained to an enclosing scope. Reads and writes share the
// Box (never clone it) per spec.md §8 scenario 1 — an Environment only
// ever stores and hands back the same box.Box handle it was given.
//
// frame points at this call's frame-root Environment (itself, for a
// root) so that an `outbox` declaration made in a nested block — e.g.
// inside an `if` — is still visible to OutboxBindings at the call's
// return point, without every nested scope needing to know it is
// nested (spec.md §3.4, §4.3 "outbox bindings are moved to the
// caller's frame ... rather than dropped").
type Environment struct {
	parent *Environment
	frame  *Environment
	vars   map[string]box.Box
	outbox map[string]bool // names declared `outbox`, a subset of vars
}

// NewEnvironment returns a root environment with no parent, itself its
// own frame. Used for the interpreter's global scope and for a
// `nowait` body's snapshot chain, neither of which transfers outbox
// bindings anywhere on return.
func NewEnvironment() *Environment {
	e := &Environment{vars: make(map[string]box.Box), outbox: make(map[string]bool)}
	e.frame = e
	return e
}

// Child returns a new scope nested under e, sharing e's frame: used
// for a block (`if`, `loop`, or a bare `{ }`) introduced *within* a
// single call, where an outbox declaration still belongs to the
// enclosing method invocation's frame.
func (e *Environment) Child() *Environment {
	c := &Environment{parent: e, vars: make(map[string]box.Box), outbox: make(map[string]bool)}
	c.frame = e.frame
	return c
}

// NewFrame returns a new scope nested under e that starts its own
// frame identity: used once per method invocation so that call N's
// outbox bindings never leak into call N+1's, even when both share
// the same enclosing (global) environment.
func (e *Environment) NewFrame() *Environment {
	c := &Environment{parent: e, vars: make(map[string]box.Box), outbox: make(map[string]bool)}
	c.frame = c
	return c
}

// Define introduces a new binding in this scope (VarDecl lowering). An
// outbox declaration's value is also mirrored onto the enclosing frame
// root (both the name-declared-outbox marker and the value itself), so
// OutboxBindings can read it back at the call's return point without
// needing the specific nested block Environment that declared it —
// which by then has already gone out of scope and been discarded by
// execBlock.
func (e *Environment) Define(name string, v box.Box, isOutbox bool) {
	e.vars[name] = v
	if isOutbox {
		e.outbox[name] = true
		e.frame.outbox[name] = true
		e.frame.vars[name] = v
	}
}

// Get searches this scope and its ancestors for name.
func (e *Environment) Get(name string) (box.Box, bool) {
	for s := e; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Set assigns to an already-declared name, searching outward, and
// reports whether any enclosing scope declared it. A reassignment of an
// outbox name keeps the frame root's mirrored copy current too.
func (e *Environment) Set(name string, v box.Box) bool {
	for s := e; s != nil; s = s.parent {
		if _, ok := s.vars[name]; ok {
			s.vars[name] = v
			if e.IsOutbox(name) {
				s.frame.vars[name] = v
			}
			return true
		}
	}
	return false
}

// IsOutbox reports whether name was declared with `outbox` in whichever
// scope defines it.
func (e *Environment) IsOutbox(name string) bool {
	for s := e; s != nil; s = s.parent {
		if _, ok := s.vars[name]; ok {
			return s.outbox[name]
		}
	}
	return false
}

// OutboxBindings collects the current value of every `outbox` local
// declared anywhere in e's call frame. Define and Set both mirror an
// outbox name's latest value onto e.frame directly, so this reads
// straight off the frame root rather than needing the specific nested
// scope that last assigned it (which, by the time a method returns, has
// already gone out of scope). Returns nil if the frame declared no
// outbox locals.
func (e *Environment) OutboxBindings() map[string]box.Box {
	frame := e.frame
	if len(frame.outbox) == 0 {
		return nil
	}
	out := make(map[string]box.Box, len(frame.outbox))
	for name := range frame.outbox {
		if v, ok := frame.vars[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Names returns every name visible from e, used to build the
// nearest-name suggestion on an undeclared-variable error.
func (e *Environment) Names() []string {
	seen := make(map[string]bool)
	var out []string
	for s := e; s != nil; s = s.parent {
		for name := range s.vars {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}
