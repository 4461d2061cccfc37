package box

import "errors"

// Sentinel errors for the box package's slice of the spec.md §7 error
// taxonomy. Callers wrap these with golang.org/x/xerrors.Errorf so that
// errors.Is still matches while the wrapped message carries context
// (offending type name, instruction, and so on).
var (
	// ErrTypeNotFound is the "type not found" error of §4.1.
	ErrTypeNotFound = errors.New("type not found")

	// ErrDuplicateConstructor is the "one constructor per type" error
	// of §3.3/§4.8.
	ErrDuplicateConstructor = errors.New("duplicate constructor")

	// ErrStrongCycle reports that an Adopt/RefSet would create a cycle
	// in the strong-parent relation, violating §3.2's forest invariant.
	ErrStrongCycle = errors.New("strong ownership cycle")

	// ErrMultipleStrongParents reports that a Box already has a strong
	// parent and a second Adopt was attempted, violating "at most one
	// strong parent" (§3.2, invariant 1 of §8).
	ErrMultipleStrongParents = errors.New("box already has a strong parent")

	// ErrDoubleFinalize reports a non-idempotent second Finalize call
	// that did not go through the idempotent Forest.Finalize path.
	ErrDoubleFinalize = errors.New("box finalized twice")

	// ErrNoSuchMethod is the common tail of the method-dispatch chain
	// (§4.3): neither a MethodDispatcher nor the installed builtin hook
	// recognized the method name.
	ErrNoSuchMethod = errors.New("no such method")

	// ErrArityMismatch reports a builtin method call with the wrong
	// number of arguments (§7).
	ErrArityMismatch = errors.New("wrong number of arguments")

	// ErrTypeMismatch reports a builtin method call whose argument type
	// does not match what the method requires (§7).
	ErrTypeMismatch = errors.New("argument type mismatch")
)
