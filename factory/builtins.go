package factory

import (
	"github.com/nyashlang/nyash-core/box"
	"golang.org/x/xerrors"
)

// RegisterBuiltins registers the stateful collection types' `new`
// constructors with reg under box.KindBuiltin, so `new Array()` and
// `new Map()` resolve the same way a user-defined or plugin type does
// (spec.md §4.1's uniform construction story).
func RegisterBuiltins(reg *box.Registry) error {
	if _, err := reg.Register("Array", box.KindBuiltin, func(args []box.Box) (box.Box, error) {
		return box.NewArray(args), nil
	}, box.TypeMeta{Pure: true, MethodNames: []string{"size", "get", "set", "push", "to_string"}}); err != nil {
		return err
	}
	if _, err := reg.Register("Map", box.KindBuiltin, func(args []box.Box) (box.Box, error) {
		return box.NewMap(), nil
	}, box.TypeMeta{Pure: true, MethodNames: []string{"size", "get", "put", "to_string"}}); err != nil {
		return err
	}
	return nil
}

// BuiltinMethods returns the BuiltinMethodFunc dispatch-chain tail
// (box.dispatch.go) that both interp.Interp and vm.Machine install:
// method calls on Array/Map/Integer/Float/String/Boolean that reach
// here (because the receiver does not resolve the method itself) are
// answered from this fixed table, keeping golden-equivalence between
// the two engines (spec.md §6, §8 invariant 7).
func BuiltinMethods(forest *box.Forest) box.BuiltinMethodFunc {
	return func(recv box.Box, method string, args []box.Box) (box.Box, bool, error) {
		switch r := recv.(type) {
		case *box.ArrayBox:
			return dispatchArray(r, method, args)
		case *box.MapBox:
			return dispatchMap(r, method, args)
		case box.StringConverter:
			if method == "to_string" {
				return box.NewString(r.ToString()), true, nil
			}
		}
		return nil, false, nil
	}
}

func dispatchArray(a *box.ArrayBox, method string, args []box.Box) (box.Box, bool, error) {
	switch method {
	case "size":
		return box.NewInteger(int64(a.Len())), true, nil
	case "get":
		i, err := indexArg(args)
		if err != nil {
			return nil, true, err
		}
		v, ok := a.Get(i)
		if !ok {
			return box.NewNull(), true, nil
		}
		return v, true, nil
	case "set":
		if len(args) != 2 {
			return nil, true, xerrors.Errorf("factory: Array.set wants (index, value): %w", box.ErrArityMismatch)
		}
		i, err := indexArg(args[:1])
		if err != nil {
			return nil, true, err
		}
		a.Set(i, args[1])
		return box.NewNull(), true, nil
	case "push":
		if len(args) != 1 {
			return nil, true, xerrors.Errorf("factory: Array.push wants (value): %w", box.ErrArityMismatch)
		}
		a.Push(args[0])
		return box.NewNull(), true, nil
	case "to_string":
		return box.NewString(a.ToString()), true, nil
	default:
		return nil, false, nil
	}
}

func dispatchMap(m *box.MapBox, method string, args []box.Box) (box.Box, bool, error) {
	switch method {
	case "size":
		return box.NewInteger(int64(m.Len())), true, nil
	case "get":
		key, err := stringArg(args)
		if err != nil {
			return nil, true, err
		}
		v, ok := m.Get(key)
		if !ok {
			return box.NewNull(), true, nil
		}
		return v, true, nil
	case "put":
		if len(args) != 2 {
			return nil, true, xerrors.Errorf("factory: Map.put wants (key, value): %w", box.ErrArityMismatch)
		}
		key, err := stringArg(args[:1])
		if err != nil {
			return nil, true, err
		}
		m.Put(key, args[1])
		return box.NewNull(), true, nil
	case "to_string":
		return box.NewString(m.ToString()), true, nil
	default:
		return nil, false, nil
	}
}

func indexArg(args []box.Box) (int, error) {
	if len(args) != 1 {
		return 0, xerrors.Errorf("factory: expected a single Integer index argument: %w", box.ErrArityMismatch)
	}
	i, ok := args[0].(*box.IntegerBox)
	if !ok {
		return 0, xerrors.Errorf("factory: index must be an Integer, got %s: %w", args[0].TypeName(), box.ErrTypeMismatch)
	}
	return int(i.Value()), nil
}

func stringArg(args []box.Box) (string, error) {
	if len(args) != 1 {
		return "", xerrors.Errorf("factory: expected a single String argument: %w", box.ErrArityMismatch)
	}
	s, ok := args[0].(*box.StringBox)
	if !ok {
		return "", xerrors.Errorf("factory: key must be a String, got %s: %w", args[0].TypeName(), box.ErrTypeMismatch)
	}
	return s.Value(), nil
}
