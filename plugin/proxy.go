package plugin

import (
	"sync/atomic"

	"github.com/nyashlang/nyash-core/box"
)

// proxyState is shared by every handle ShareReference hands out for the
// same plugin instance: the refcount and the plugin-side identity live
// here, not on *Proxy, so sharing a Proxy is a true reference share
// (spec.md §3.1's "stateful Boxes implement ShareReference as a true
// reference share").
type proxyState struct {
	forest    *box.Forest
	loaded    *Loaded
	typeID    TypeID
	typeName  string
	boxTypeID box.TypeID
	inst      InstanceID
	refs      int32
}

// Proxy is the host-side handle for one plugin-owned object: a Box
// whose method calls and destructor cross the ABI boundary via
// NyashPluginInvoke (spec.md §4.7 "handle lifetime: refcounted
// host-side proxy; destructor invoked via method_id MethodFini on last
// release").
type Proxy struct {
	id    box.ID
	state *proxyState
}

func newProxy(forest *box.Forest, loaded *Loaded, typeID TypeID, typeName string, boxTypeID box.TypeID, inst InstanceID) *Proxy {
	p := &Proxy{
		id: box.NextID(),
		state: &proxyState{
			forest:    forest,
			loaded:    loaded,
			typeID:    typeID,
			typeName:  typeName,
			boxTypeID: boxTypeID,
			inst:      inst,
			refs:      1,
		},
	}
	forest.Track(p)
	return p
}

func (p *Proxy) TypeName() string   { return p.state.typeName }
func (p *Proxy) TypeID() box.TypeID { return p.state.boxTypeID }
func (p *Proxy) BoxID() box.ID      { return p.id }

// ShareReference hands out another Go-level handle to the same
// instance and bumps the refcount; both handles carry the same BoxID
// so the Forest still treats them as a single ownership node.
func (p *Proxy) ShareReference() box.Box {
	atomic.AddInt32(&p.state.refs, 1)
	return &Proxy{id: p.id, state: p.state}
}

// CloneValue re-invokes the plugin's birth method with no arguments to
// obtain an independent instance, the closest equivalent a plugin-owned
// type has to a value copy (the ABI has no generic clone entry point;
// plugins wanting real copy semantics publish their own "clone" method
// and user code calls it explicitly instead of relying on this).
func (p *Proxy) CloneValue() box.Box {
	inst := InstanceID(atomic.AddUint32(&p.state.loaded.nextInst, 1))
	if _, err := p.state.loaded.call(p.state.typeID, MethodBirth, inst, nil); err != nil {
		return box.NewNull()
	}
	clone := newProxy(p.state.forest, p.state.loaded, p.state.typeID, p.state.typeName, p.state.boxTypeID, inst)
	return clone
}

// DispatchMethod satisfies box.MethodDispatcher, routing a method call
// through to the loaded plugin's NyashPluginInvoke.
func (p *Proxy) DispatchMethod(method string, args []box.Box) (box.Box, error) {
	methodID, ok := p.state.loaded.methodID(p.state.typeID, method)
	if !ok {
		return nil, ErrUnknownMethod
	}
	tlvArgs, err := toValues(args)
	if err != nil {
		return nil, err
	}
	results, err := p.state.loaded.call(p.state.typeID, methodID, p.state.inst, tlvArgs)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return box.NewNull(), nil
	}
	return fromValue(results[0]), nil
}

// Finalize releases this handle; only the last surviving handle for the
// shared instance actually invokes MethodFini (spec.md §4.7).
func (p *Proxy) Finalize() {
	if atomic.AddInt32(&p.state.refs, -1) > 0 {
		return
	}
	_, _ = p.state.loaded.call(p.state.typeID, MethodFini, p.state.inst, nil)
}

func (ld *Loaded) methodID(typeID TypeID, name string) (MethodID, bool) {
	for _, t := range ld.Info.Types {
		if t.TypeID != typeID {
			continue
		}
		for _, m := range t.Methods {
			if m.Name == name {
				return m.ID, true
			}
		}
	}
	return 0, false
}

