package box

import "golang.org/x/xerrors"

// BuiltinMethodFunc is the dispatch-chain tail shared by the
// interpreter and the VM (spec.md §4.3): when a receiver does not
// resolve a method itself, both execution engines fall through to the
// same builtin/plugin lookup so their dispatch order stays identical,
// which golden-equivalence testing (§6, §8 invariant 7) depends on.
type BuiltinMethodFunc func(recv Box, method string, args []Box) (Box, bool, error)

// DispatchMethod implements the common "user-defined -> builtin/plugin"
// tail of method dispatch: it first asks recv itself (if it implements
// MethodDispatcher — true of user-defined Instances and plugin
// proxies), then falls back to builtin. `from Parent.method` forced
// dispatch is not part of this helper since it needs the caller's own
// parent-chain bookkeeping (see interp.Interp.callFromParent).
func DispatchMethod(recv Box, method string, args []Box, builtin BuiltinMethodFunc) (Box, error) {
	if md, ok := recv.(MethodDispatcher); ok {
		v, err := md.DispatchMethod(method, args)
		if err == nil || !xerrors.Is(err, ErrNoSuchMethod) {
			return v, err
		}
	}
	if builtin != nil {
		if v, handled, err := builtin(recv, method, args); handled {
			return v, err
		}
	}
	return nil, xerrors.Errorf("box: %s.%s: %w", recv.TypeName(), method, ErrNoSuchMethod)
}
