// Package plugin implements the stable C-ABI plugin boundary of
// spec.md §4.7: a versioned init handshake, a single dispatch entry
// point keyed by (type_id, method_id, instance_id), TLV-encoded
// arguments and results, and a nyash.toml configuration file enumerating
// plugin libraries and their published methods.
//
// Go's standard library has no portable dlopen/dlsym; the idiomatic-Go
// answer to "load code at runtime" is the stdlib plugin package, which
// this package builds on (see Loader in loader.go and DESIGN.md for why
// this is the chosen approximation of the C-ABI boundary rather than
// cgo).
package plugin

// ABIVersion is the host's plugin ABI version (spec.md §4.7,
// §7 "Plugin ABI stability": bump this for any breaking change, never
// redefine an existing TLV tag).
const ABIVersion uint32 = 1

// Well-known method ids. All other ids are plugin-assigned and
// published in the plugin's method table (spec.md §4.7).
const (
	MethodBirth MethodID = 0
	MethodFini  MethodID = 0xFFFFFFFF
)

// MethodID identifies a method within one plugin-provided type.
type MethodID uint32

// Required lifecycle export symbol names (spec.md §4.7 "Lifecycle
// exports"). A plugin shared library not exposing at least these under
// Go's plugin.Lookup fails to load.
const (
	ExportABI      = "NyashPluginABI"
	ExportInit     = "NyashPluginInit"
	ExportInvoke   = "NyashPluginInvoke"
	ExportShutdown = "NyashPluginShutdown"
)

// TypeID identifies a plugin-provided Box type, scoped to the plugin
// that published it; the host remaps it into its own box.TypeID space
// at registration (see factory.BoxFactory).
type TypeID uint32

// InstanceID identifies one plugin-owned object within its type.
type InstanceID uint32

// MethodDescriptor is one entry of a plugin's published method table
// (spec.md §4.7 "publishes its type name, numeric type id, method table
// (method id, name, signature hash)").
type MethodDescriptor struct {
	ID            MethodID
	Name          string
	SignatureHash uint64
}

// TypeDescriptor is the full publication one plugin makes for one Box
// type during NyashPluginInit.
type TypeDescriptor struct {
	TypeName string
	TypeID   TypeID
	Methods  []MethodDescriptor
}

// PluginInfo is everything NyashPluginInit reports back to the host.
type PluginInfo struct {
	ABIVersion uint32
	Types      []TypeDescriptor
}

// InitFunc is the Go-plugin-package shape of NyashPluginInit: the host
// vtable in, the plugin's published info and an error code out.
type InitFunc func(host *HostVTable) (PluginInfo, int32)

// InvokeFunc is the Go-plugin-package shape of NyashPluginInvoke: it
// receives already-decoded TLV arguments and returns already-decoded
// TLV results (the two-call SHORT_BUFFER convention of spec.md §4.7
// exists for genuine cross-language C ABIs; with Go-to-Go plugin.Lookup
// calls there is no raw buffer to size, so Invoke returns []Value
// directly and short-buffer never arises here — see DESIGN.md).
type InvokeFunc func(typeID TypeID, methodID MethodID, instance InstanceID, args []Value) ([]Value, error)

// ShutdownFunc is called once before the host unloads the plugin.
type ShutdownFunc func()
