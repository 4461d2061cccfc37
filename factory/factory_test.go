package factory_test

import (
	"testing"

	"github.com/nyashlang/nyash-core/box"
	"github.com/nyashlang/nyash-core/factory"
)

func TestArrayConstructAndDispatch(t *testing.T) {
	rt, err := factory.New()
	if err != nil {
		t.Fatalf("factory.New: %v", err)
	}

	arr, err := rt.Reg.Resolve("Array", nil)
	if err != nil {
		t.Fatalf("Resolve Array: %v", err)
	}

	if _, err := box.DispatchMethod(arr, "push", []box.Box{box.NewInteger(10)}, rt.Interp.Builtin); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := box.DispatchMethod(arr, "push", []box.Box{box.NewInteger(20)}, rt.Interp.Builtin); err != nil {
		t.Fatalf("push: %v", err)
	}

	size, err := box.DispatchMethod(arr, "size", nil, rt.Interp.Builtin)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if n := size.(*box.IntegerBox).Value(); n != 2 {
		t.Fatalf("expected size 2, got %d", n)
	}

	got, err := box.DispatchMethod(arr, "get", []box.Box{box.NewInteger(1)}, rt.Interp.Builtin)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n := got.(*box.IntegerBox).Value(); n != 20 {
		t.Fatalf("expected element 20, got %d", n)
	}
}

func TestMapConstructAndDispatch(t *testing.T) {
	rt, err := factory.New()
	if err != nil {
		t.Fatalf("factory.New: %v", err)
	}

	m, err := rt.Reg.Resolve("Map", nil)
	if err != nil {
		t.Fatalf("Resolve Map: %v", err)
	}

	if _, err := box.DispatchMethod(m, "put", []box.Box{box.NewString("name"), box.NewString("nyash")}, rt.Interp.Builtin); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := box.DispatchMethod(m, "get", []box.Box{box.NewString("name")}, rt.Interp.Builtin)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s := got.(*box.StringBox).Value(); s != "nyash" {
		t.Fatalf("expected %q, got %q", "nyash", s)
	}
}

func TestUnknownTypeIsRejected(t *testing.T) {
	rt, err := factory.New()
	if err != nil {
		t.Fatalf("factory.New: %v", err)
	}
	if _, err := rt.Reg.Resolve("NoSuchType", nil); err == nil {
		t.Fatalf("expected Resolve to reject an unregistered type")
	}
}
