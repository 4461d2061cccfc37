package box

import "testing"

func TestShareSameIdentity(t *testing.T) {
	a := NewArray([]Box{NewInteger(1)})
	s := a.ShareReference()
	if !Is(a, s) {
		t.Fatalf("share changed identity: %d != %d", a.BoxID(), s.BoxID())
	}
	// Mutation through the share must be visible through a.
	s.(*ArrayBox).Push(NewInteger(2))
	if a.Len() != 2 {
		t.Fatalf("mutation through share not observed: len=%d", a.Len())
	}
}

func TestCloneFreshIdentity(t *testing.T) {
	a := NewArray([]Box{NewInteger(1)})
	c := a.CloneValue()
	if Is(a, c) {
		t.Fatalf("clone preserved identity")
	}
	c.(*ArrayBox).Push(NewInteger(99))
	if a.Len() != 1 {
		t.Fatalf("mutation leaked through clone: len=%d", a.Len())
	}
}

func TestShareIdempotentUpToIdentity(t *testing.T) {
	a := NewInteger(7)
	s1 := a.ShareReference()
	s2 := s1.ShareReference()
	if s2.BoxID() != a.BoxID() {
		t.Fatalf("share not idempotent up to identity")
	}
}

func TestIdentityVsStructuralEquality(t *testing.T) {
	a := NewInteger(5)
	b := NewInteger(5)
	if Is(a, b) {
		t.Fatalf("distinct integers compared identity-equal")
	}
	if !a.Equals(b) {
		t.Fatalf("structurally equal integers compared unequal")
	}
}

func TestStringEqualityNormalizes(t *testing.T) {
	// "é" as a single codepoint vs "e" + combining acute accent.
	composed := NewString("café")
	decomposed := NewString("café")
	if !composed.Equals(decomposed) {
		t.Fatalf("NFC-equivalent strings compared unequal")
	}
}

func TestRegistryResolutionOrder(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register("Widget", KindBuiltin, func(args []Box) (Box, error) {
		return NewString("builtin"), nil
	}, TypeMeta{Pure: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register("Widget", KindUser, func(args []Box) (Box, error) {
		return NewString("user"), nil
	}, TypeMeta{Pure: true}); err != nil {
		t.Fatal(err)
	}

	got, err := r.Resolve("Widget", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.(*StringBox).Value() != "user" {
		t.Fatalf("expected user factory to win by default priority, got %q", got.(*StringBox).Value())
	}

	r.SetPriority([]FactoryKind{KindBuiltin, KindUser})
	got, err = r.Resolve("Widget", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.(*StringBox).Value() != "builtin" {
		t.Fatalf("priority override not honored, got %q", got.(*StringBox).Value())
	}
}

func TestRegistryDuplicateConstructor(t *testing.T) {
	r := NewRegistry()
	f := func(args []Box) (Box, error) { return NewNull(), nil }
	if _, err := r.Register("Gadget", KindUser, f, TypeMeta{}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register("Gadget", KindUser, f, TypeMeta{}); err == nil {
		t.Fatalf("expected duplicate constructor error")
	}
}

func TestRegistryTypeNotFound(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve("Nonexistent", nil); err == nil {
		t.Fatalf("expected type-not-found error")
	}
}
