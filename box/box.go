// Package box implements the universal value representation described in
// spec.md §3.1: every language value is a Box — an identity-bearing,
// reference-counted container. The package defines the minimal Box
// contract plus a set of optional capability interfaces (string
// conversion, equality, hashing, ordering, arithmetic, method dispatch,
// field access, finalization), following the same "small mandatory core,
// many optional capability interfaces" shape that go/ssa's Value and
// Instruction interfaces use: a type asserts for the capabilities it
// needs rather than a single fat interface every Box must implement in
// full.
package box

// Box is the universal value. Every concrete Box type — builtin,
// user-defined, or plugin-backed — satisfies this interface and may
// additionally satisfy any of the capability interfaces below.
type Box interface {
	// TypeName is the language-level type name, resolvable through a
	// Registry.
	TypeName() string

	// TypeID is the Box's numeric type. Registry-registered user and
	// plugin types get their id from the Registry; builtin primitive,
	// collection and future Boxes report fixed negative ids (IntegerBox
	// is -1).
	TypeID() TypeID

	// BoxID is this Box's stable identity. ShareReference preserves it;
	// CloneValue issues a new one.
	BoxID() ID

	// CloneValue produces a new Box with a fresh identity and a deep
	// copy of state: "code semantically requests a copy" (spec.md §3.1).
	CloneValue() Box

	// ShareReference produces another handle to the same underlying
	// state and the same identity. Stateful Boxes must implement this
	// as a true reference share; immutable Boxes may implement it as
	// CloneValue, since their state is indistinguishable from identity.
	ShareReference() Box
}

// StringConverter is implemented by Boxes that support to_string.
type StringConverter interface {
	ToString() string
}

// Equatable is implemented by Boxes that support the == operator.
// Equality is structural by default and must not be conflated with
// identity equality (the `is` operator, which compares BoxID directly
// and needs no capability interface).
type Equatable interface {
	Equals(other Box) bool
}

// Hashable is implemented by Boxes usable as map/set keys.
type Hashable interface {
	Hash() uint64
}

// Orderable is implemented by Boxes that support relational operators.
// Compare returns (cmp, true) with cmp following the usual
// negative/zero/positive convention, or (0, false) if other is not
// comparable to the receiver.
type Orderable interface {
	Compare(other Box) (int, bool)
}

// Arithmetic is the operator-trait hook set for the arithmetic
// operators. Each Try* method returns (result, true) on success or
// (nil, false) if the receiver does not support the operation with the
// given operand, in which case the caller falls back to a dynamic
// lookup (spec.md §4.3).
type Arithmetic interface {
	TryAdd(other Box) (Box, bool)
	TrySub(other Box) (Box, bool)
	TryMul(other Box) (Box, bool)
	TryDiv(other Box) (Box, bool)
	TryMod(other Box) (Box, bool)
}

// MethodDispatcher is implemented by Boxes that resolve method calls
// themselves rather than through the interpreter's builtin method
// table — user-defined instances and plugin proxies both implement
// this (dispatch then continues per spec.md §4.3).
type MethodDispatcher interface {
	DispatchMethod(method string, args []Box) (Box, error)
}

// FieldAccessor is implemented by Boxes with named fields (user-defined
// instances, and any builtin that exposes struct-like state).
type FieldAccessor interface {
	GetField(name string) (Box, bool)
	SetField(name string, v Box) bool
}

// Finalizer is implemented by Boxes that hold resources requiring
// deterministic release (§3.2, §4.3).
type Finalizer interface {
	Finalize()
}

// AsAny exposes the concrete Go value behind a Box for type-specific
// downcasting, mirroring go/ssa's Value.(*Foo) type switches.
type AsAny interface {
	AsAny() any
}

// Is reports whether a and b are the same Box by identity — the `is`
// operator of spec.md §4.1, distinct from Equatable.Equals (`==`).
func Is(a, b Box) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.BoxID() == b.BoxID()
}
