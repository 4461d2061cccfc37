package interp

import (
	"github.com/nyashlang/nyash-core/ast"
	"github.com/nyashlang/nyash-core/box"
)

// Instance is the runtime representation of a user-defined Box (a
// BoxDecl's construction): an identity, a type name resolving into the
// Interp's method tables, and a Cell-backed field set so that
// ShareReference is a true reference share and CloneValue deep-copies
// under a fresh identity, the same split box.ArrayBox/box.MapBox use.
type Instance struct {
	id       box.ID
	typeName string
	typeID   box.TypeID
	fields   *box.Cell[map[string]box.Box]
	interp   *Interp
}

func newInstance(interp *Interp, typeName string, typeID box.TypeID, decl *ast.BoxDecl) *Instance {
	fields := make(map[string]box.Box)
	for _, f := range decl.Fields {
		fields[f] = box.NewNull()
	}
	return &Instance{
		id:       box.NextID(),
		typeName: typeName,
		typeID:   typeID,
		fields:   box.NewCell(fields),
		interp:   interp,
	}
}

func (i *Instance) TypeName() string  { return i.typeName }
func (i *Instance) TypeID() box.TypeID { return i.typeID }
func (i *Instance) BoxID() box.ID      { return i.id }

func (i *Instance) ShareReference() box.Box {
	return &Instance{id: i.id, typeName: i.typeName, typeID: i.typeID, fields: i.fields, interp: i.interp}
}

// CloneValue deep-copies every field (sharing a Box field copies it via
// its own CloneValue, recursively) under a fresh identity.
func (i *Instance) CloneValue() box.Box {
	snap := i.fields.Snapshot()
	out := make(map[string]box.Box, len(snap))
	for k, v := range snap {
		if v == nil {
			continue
		}
		out[k] = v.CloneValue()
	}
	return &Instance{id: box.NextID(), typeName: i.typeName, typeID: i.typeID, fields: box.NewCell(out), interp: i.interp}
}

func (i *Instance) GetField(name string) (box.Box, bool) {
	return box.Read(i.fields, func(m map[string]box.Box) (box.Box, bool) {
		v, ok := m[name]
		return v, ok
	})
}

func (i *Instance) SetField(name string, v box.Box) bool {
	existed := false
	box.Write(i.fields, func(m *map[string]box.Box) {
		_, existed = (*m)[name]
		(*m)[name] = v
	})
	return existed
}

// DispatchMethod resolves through the effective (inheritance-merged)
// method table for i.typeName — the "user-defined" link of spec.md
// §4.3's dispatch chain; the interpreter falls further down the chain
// (from-Parent, plugin, builtin) only when this returns ErrNoSuchMethod.
func (i *Instance) DispatchMethod(method string, args []box.Box) (box.Box, error) {
	// Outbox bindings from this path have nowhere to go: DispatchMethod
	// implements box.MethodDispatcher, whose callers (box.DispatchMethod,
	// plugin proxies) have no Environment to bind them into. Callers that
	// do have one (interp.dispatchMethodCall, for a direct *Instance
	// receiver) call i.interp.callMethod themselves instead of coming
	// through here, so they can capture outbox bindings; this path only
	// runs for dispatch reached some other way (e.g. a builtin's
	// BuiltinMethodFunc calling back into a field that happens to be a
	// user-defined Instance).
	v, _, err := i.interp.callMethod(i, i.typeName, method, args)
	return v, err
}

// Finalize runs the `fini` method, if declared, wired to the
// interpreter's ownership Forest (spec.md §3.2, §4.3). Any outbox
// bindings fini's body produces are discarded: a Forest-triggered
// finalization has no caller frame to transfer them into.
func (i *Instance) Finalize() {
	if _, ok := i.interp.lookupEffective(i.typeName, "fini"); ok {
		_, _, _ = i.interp.callMethod(i, i.typeName, "fini", nil)
	}
}

var (
	_ box.FieldAccessor    = (*Instance)(nil)
	_ box.MethodDispatcher = (*Instance)(nil)
	_ box.Finalizer        = (*Instance)(nil)
)
