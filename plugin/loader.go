package plugin

import (
	"context"
	goplugin "plugin"
	"sync"
	"sync/atomic"

	"github.com/nyashlang/nyash-core/box"
	"github.com/nyashlang/nyash-core/diag"
	"golang.org/x/xerrors"
)

// Loaded is one dynamically loaded plugin library: its published type
// table, the vtable it was handed, and the guard serializing calls into
// it (spec.md §4.7).
type Loaded struct {
	Path     string
	Info     PluginInfo
	invoke   InvokeFunc
	shut     ShutdownFunc
	host     *HostVTable
	guard    *reentryGuard
	nextInst uint32
}

// Loader loads nyash.toml-declared plugin libraries via Go's stdlib
// plugin package (the Go-to-Go substitute for dlopen chosen in
// abi.go's package doc) and registers each published type as a
// box.Registry plugin-kind (box.KindPlugin) factory producing *Proxy
// Box values.
type Loader struct {
	reg      *box.Registry
	forest   *box.Forest
	reporter diag.Reporter
	wake     WakeFunc
	mu       sync.Mutex
	plugins  map[string]*Loaded
}

func NewLoader(reg *box.Registry, forest *box.Forest, reporter diag.Reporter, wake WakeFunc) *Loader {
	return &Loader{reg: reg, forest: forest, reporter: diag.Or(reporter), wake: wake, plugins: map[string]*Loaded{}}
}

// Load opens the shared object at path, performs the ABI handshake and
// registers every type it publishes with the Registry under
// box.KindPlugin (spec.md §4.8: plugin factories participate in the
// same resolution order as user and builtin types).
func (l *Loader) Load(path string) (*Loaded, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.plugins[path]; ok {
		return existing, nil
	}

	p, err := goplugin.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("plugin: opening %s: %w", path, err)
	}

	abiSym, err := p.Lookup(ExportABI)
	if err != nil {
		return nil, &ABIError{Path: path, MissingExport: ExportABI}
	}
	abiPtr, ok := abiSym.(*uint32)
	if !ok || *abiPtr != ABIVersion {
		got := uint32(0)
		if ok {
			got = *abiPtr
		}
		return nil, &ABIError{Path: path, WantVersion: ABIVersion, GotVersion: got}
	}

	initSym, err := p.Lookup(ExportInit)
	if err != nil {
		return nil, &ABIError{Path: path, MissingExport: ExportInit}
	}
	initFn, ok := initSym.(func(*HostVTable) (PluginInfo, int32))
	if !ok {
		return nil, &ABIError{Path: path, MissingExport: ExportInit}
	}

	invokeSym, err := p.Lookup(ExportInvoke)
	if err != nil {
		return nil, &ABIError{Path: path, MissingExport: ExportInvoke}
	}
	invokeFn, ok := invokeSym.(func(TypeID, MethodID, InstanceID, []Value) ([]Value, error))
	if !ok {
		return nil, &ABIError{Path: path, MissingExport: ExportInvoke}
	}

	shutSym, err := p.Lookup(ExportShutdown)
	if err != nil {
		return nil, &ABIError{Path: path, MissingExport: ExportShutdown}
	}
	shutFn, ok := shutSym.(func())
	if !ok {
		return nil, &ABIError{Path: path, MissingExport: ExportShutdown}
	}
	shutdownFn := ShutdownFunc(shutFn)

	host := NewHostVTable(l.reporter, l.wake)
	info, status := initFn(host)
	if status != 0 {
		return nil, xerrors.Errorf("plugin: %s: %s returned status %d: %w", path, ExportInit, status, ErrPluginInternal)
	}
	l.reporter.Logf("plugin: loaded %s, publishing %d type(s)", path, len(info.Types))

	loaded := &Loaded{
		Path:   path,
		Info:   info,
		invoke: InvokeFunc(invokeFn),
		shut:   shutdownFn,
		host:   host,
		guard:  newReentryGuard(),
	}
	l.plugins[path] = loaded

	for _, t := range info.Types {
		t := t
		boxTypeID := new(box.TypeID)
		id, err := l.reg.Register(t.TypeName, box.KindPlugin, l.factoryFor(loaded, t, boxTypeID), box.TypeMeta{
			Kind:        box.KindPlugin,
			RequiresIO:  true,
			MethodNames: methodNames(t.Methods),
		})
		if err != nil {
			return nil, xerrors.Errorf("plugin: registering %s from %s: %w", t.TypeName, path, err)
		}
		*boxTypeID = id
	}
	return loaded, nil
}

// Shutdown invokes the plugin's NyashPluginShutdown export (Load
// refuses a library without one) before the host process exits or the plugin is
// otherwise retired. Go's plugin package never actually unloads a
// shared object's code (spec.md §4.7's lifecycle ends at this call, not
// at dlclose, which the stdlib plugin package does not support).
func (ld *Loaded) Shutdown() {
	if ld.shut != nil {
		ld.shut()
	}
}

// Close runs Shutdown on every plugin this Loader has opened.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ld := range l.plugins {
		ld.Shutdown()
	}
}

func methodNames(methods []MethodDescriptor) []string {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.Name
	}
	return names
}

func (l *Loader) factoryFor(loaded *Loaded, t TypeDescriptor, boxTypeID *box.TypeID) box.Factory {
	return func(args []box.Box) (box.Box, error) {
		inst := InstanceID(atomic.AddUint32(&loaded.nextInst, 1))
		tlvArgs, err := toValues(args)
		if err != nil {
			return nil, err
		}
		if _, err := loaded.call(t.TypeID, MethodBirth, inst, tlvArgs); err != nil {
			return nil, err
		}
		proxy := newProxy(l.forest, loaded, t.TypeID, t.TypeName, *boxTypeID, inst)
		return proxy, nil
	}
}

// call serializes one invoke through the plugin's reentryGuard, per
// spec.md §4.7's single-threaded-per-plugin model.
func (ld *Loaded) call(typeID TypeID, methodID MethodID, inst InstanceID, args []Value) ([]Value, error) {
	if err := ld.guard.Enter(context.Background()); err != nil {
		return nil, xerrors.Errorf("plugin: acquiring reentry guard: %w", err)
	}
	defer ld.guard.Leave()
	return ld.invoke(typeID, methodID, inst, args)
}

func toValues(args []box.Box) ([]Value, error) {
	out := make([]Value, 0, len(args))
	for _, a := range args {
		v, err := toValue(a)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func toValue(b box.Box) (Value, error) {
	switch v := b.(type) {
	case *box.IntegerBox:
		return I64(v.Value()), nil
	case *box.StringBox:
		return String(v.Value()), nil
	case *box.BoolBox:
		return Bool(v.Value()), nil
	case *Proxy:
		return HandleValue(Handle{TypeID: v.state.typeID, InstanceID: v.state.inst}), nil
	default:
		return Value{}, xerrors.Errorf("plugin: cannot marshal %s across the ABI boundary: %w", b.TypeName(), ErrInvalidArgs)
	}
}

func fromValue(v Value) box.Box {
	switch v.Tag {
	case TagBool:
		return box.NewBool(v.Bool)
	case TagI32:
		return box.NewInteger(int64(v.I32))
	case TagI64:
		return box.NewInteger(v.I64)
	case TagF32:
		return box.NewFloat(float64(v.F32))
	case TagF64:
		return box.NewFloat(v.F64)
	case TagString:
		return box.NewString(v.Str)
	case TagBytes:
		return box.NewString(string(v.Bytes))
	default:
		return box.NewNull()
	}
}
