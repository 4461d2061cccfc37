package plugin

import (
	"fmt"

	"golang.org/x/xerrors"
)

// ABIError reports a versioned-handshake failure at plugin load time
// (spec.md §4.7/§7): the plugin's declared ABI version, or its missing
// lifecycle export, whichever caused Loader.Load to refuse the library.
type ABIError struct {
	Path          string
	WantVersion   uint32
	GotVersion    uint32
	MissingExport string
}

func (e *ABIError) Error() string {
	if e.MissingExport != "" {
		return fmt.Sprintf("plugin: %s: missing required export %s", e.Path, e.MissingExport)
	}
	return fmt.Sprintf("plugin: %s: ABI version %d incompatible with host version %d", e.Path, e.GotVersion, e.WantVersion)
}

func (e *ABIError) Unwrap() error { return ErrABIMismatch }

// Sentinel errors surfaced across the TLV codec and the loader/host
// boundary (spec.md §4.7 "error taxonomy").
var (
	ErrReservedTag     = xerrors.New("plugin: reserved TLV tag")
	ErrMalformedTLV    = xerrors.New("plugin: malformed TLV buffer")
	ErrABIMismatch     = xerrors.New("plugin: ABI version mismatch")
	ErrUnknownType     = xerrors.New("plugin: unknown type id")
	ErrUnknownMethod   = xerrors.New("plugin: unknown method id")
	ErrInvalidArgs     = xerrors.New("plugin: invalid arguments")
	ErrInvalidInstance = xerrors.New("plugin: invalid or expired instance id")
	ErrPluginInternal  = xerrors.New("plugin: internal plugin error")
	ErrMissingExport   = xerrors.New("plugin: missing required lifecycle export")
	ErrReentered       = xerrors.New("plugin: re-entrant invoke on single-threaded plugin")
	ErrMalformedConfig = xerrors.New("plugin: malformed nyash.toml")
)

// StatusCode is the numeric error-code taxonomy NyashPluginInvoke
// returns in place of a Go error across the ABI boundary (spec.md §4.7:
// "zero on success, negative error categories otherwise").
type StatusCode int32

const (
	StatusOK StatusCode = 0

	StatusInvalidType     StatusCode = -1
	StatusInvalidMethod   StatusCode = -2
	StatusInvalidArgs     StatusCode = -3
	StatusInvalidInstance StatusCode = -4
	StatusShortBuffer     StatusCode = -5
	StatusInternal        StatusCode = -6
	StatusABIMismatch     StatusCode = -7
)

// StatusFromError classifies an error from this package into the wire
// status code a real C-ABI plugin would return: the one place that
// maps Go errors onto the taxonomy. host.go and loader.go do not call
// it; they return Go errors.
func StatusFromError(err error) StatusCode {
	switch {
	case err == nil:
		return StatusOK
	case xerrors.Is(err, ErrABIMismatch):
		return StatusABIMismatch
	case xerrors.Is(err, ErrUnknownType):
		return StatusInvalidType
	case xerrors.Is(err, ErrUnknownMethod):
		return StatusInvalidMethod
	case xerrors.Is(err, ErrInvalidArgs), xerrors.Is(err, ErrMalformedTLV), xerrors.Is(err, ErrReservedTag):
		return StatusInvalidArgs
	case xerrors.Is(err, ErrInvalidInstance):
		return StatusInvalidInstance
	default:
		return StatusInternal
	}
}
