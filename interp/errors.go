package interp

import (
	"errors"

	"github.com/nyashlang/nyash-core/box"
)

// Sentinel declaration-time and runtime errors, wrapped with context via
// golang.org/x/xerrors at each call site (spec.md §7's error taxonomy),
// mirroring box's sentinel-error-plus-xerrors.Errorf("...: %w") shape.
var (
	ErrUndeclaredVariable = errors.New("interp: undeclared variable")
	ErrMissingOverride    = errors.New("interp: method shadows an inherited method without `override`")
	ErrSpuriousOverride   = errors.New("interp: `override` on a method with no inherited method of that name")
	ErrUnknownParent      = errors.New("interp: `from Parent.method` references an undeclared parent")
	ErrBreakOutsideLoop   = errors.New("interp: break outside a loop")
	ErrNotCallable        = errors.New("interp: value does not support this operation")

	// ErrNoSuchMethod is box.ErrNoSuchMethod under this package's name,
	// so existing callers and errors.Is checks here keep working while
	// the interpreter and the VM share one sentinel underneath.
	ErrNoSuchMethod = box.ErrNoSuchMethod
)
