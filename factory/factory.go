// Package factory is the composition root that assembles a runnable
// Nyash core: a shared box.Registry and box.Forest, the builtin
// constructors and method table for the primitive collection types,
// an interp.Interp wired to that registry, and (optionally) the
// plugin.Loader's types merged into the same resolution order
// (spec.md §4.1/§4.8's "BoxFactory": user-defined > plugin > builtin
// by default, configurable).
//
// This mirrors how go/ssa's ssautil.BuildPackage or go/packages.Load
// wires a Program + loader.Config together before any analysis runs:
// one place assembles the pieces other packages only define.
package factory

import (
	"github.com/nyashlang/nyash-core/box"
	"github.com/nyashlang/nyash-core/diag"
	"github.com/nyashlang/nyash-core/finalize"
	"github.com/nyashlang/nyash-core/interp"
	"github.com/nyashlang/nyash-core/mir"
	"github.com/nyashlang/nyash-core/plugin"
	"github.com/nyashlang/nyash-core/vm"
	"golang.org/x/xerrors"
)

// Runtime bundles the shared state every execution engine (interp, vm)
// operates over.
type Runtime struct {
	Reg      *box.Registry
	Forest   *box.Forest
	Reporter diag.Reporter
	Loader   *plugin.Loader
	Interp   *interp.Interp
}

// Option configures New.
type Option func(*options)

type options struct {
	reporter diag.Reporter
	priority []box.FactoryKind
	panicLog *finalize.PanicLog
}

// WithReporter installs a diag.Reporter shared by the registry,
// interpreter, and plugin loader.
func WithReporter(r diag.Reporter) Option { return func(o *options) { o.reporter = r } }

// WithPriority overrides the default {User, Plugin, Builtin} factory
// resolution order (spec.md §4.8).
func WithPriority(order []box.FactoryKind) Option { return func(o *options) { o.priority = order } }

// WithPanicLog installs a non-default finalize.PanicLog for the Forest.
func WithPanicLog(log *finalize.PanicLog) Option { return func(o *options) { o.panicLog = log } }

// New assembles a fresh Runtime: a Registry with the builtin
// collection types and the plugin-dispatch tail installed, a Forest,
// and an Interp over both.
func New(opts ...Option) (*Runtime, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	reporter := diag.Or(o.reporter)

	reg := box.NewRegistry()
	if o.priority != nil {
		reg.SetPriority(o.priority)
	}
	forest := box.NewForest(o.panicLog)
	loader := plugin.NewLoader(reg, forest, reporter, nil)

	if err := RegisterBuiltins(reg); err != nil {
		return nil, xerrors.Errorf("factory: registering builtins: %w", err)
	}

	in := interp.New(reg, forest, reporter)
	in.Builtin = BuiltinMethods(forest)

	return &Runtime{
		Reg:      reg,
		Forest:   forest,
		Reporter: reporter,
		Loader:   loader,
		Interp:   in,
	}, nil
}

// NewMachine returns a vm.Machine sharing this Runtime's Registry,
// Forest, builtin method table and strand Bus with rt.Interp, so the
// same program run through either engine observes the same Box
// identities and the same Bus traffic (spec.md §6, §8 invariant 7).
// functions resolves a Call/TailCall's free-function name; pass nil
// for a Machine that only ever runs a single entry function directly.
func (rt *Runtime) NewMachine(functions map[string]*mir.Function) *vm.Machine {
	m := vm.NewMachine(rt.Reg, rt.Forest, BuiltinMethods(rt.Forest), rt.Interp.Bus)
	m.Functions = functions
	return m
}

// LoadPluginConfig reads a nyash.toml manifest and loads every declared
// plugin library into the Runtime's shared Registry, refusing any
// plugin whose declared ABI is incompatible with plugin.ABIVersion
// (spec.md §4.7).
func (rt *Runtime) LoadPluginConfig(path string) error {
	cfg, err := plugin.LoadConfig(path)
	if err != nil {
		return err
	}
	hostABI := "v1.0.0"
	if cfg.ABI != "" && !cfg.CompatibleWith(hostABI) {
		return xerrors.Errorf("factory: %s declares abi %s, incompatible with host %s: %w", path, cfg.ABI, hostABI, plugin.ErrABIMismatch)
	}
	for name, p := range cfg.Plugins {
		if p.Path == "" {
			return xerrors.Errorf("factory: plugin section %q has no path: %w", name, plugin.ErrMalformedConfig)
		}
		if _, err := rt.Loader.Load(p.Path); err != nil {
			return xerrors.Errorf("factory: loading %s: %w", name, err)
		}
	}
	return nil
}
