package plugin_test

import (
	"testing"

	"github.com/nyashlang/nyash-core/plugin"
)

const sampleConfig = `
abi = "v1.2.0"

[plugins.FileBox]
path = "libfilebox.so"
methods = "open"
methods = "read"
methods = "close"
`

func TestParseConfig(t *testing.T) {
	cfg, err := plugin.ParseConfig(sampleConfig, "nyash.toml")
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.ABI != "v1.2.0" {
		t.Fatalf("expected abi v1.2.0, got %q", cfg.ABI)
	}
	section, ok := cfg.Plugins["plugins.FileBox"]
	if !ok {
		t.Fatalf("expected a plugins.FileBox section, got %+v", cfg.Plugins)
	}
	if section.Path != "libfilebox.so" {
		t.Fatalf("expected path libfilebox.so, got %q", section.Path)
	}
	if got := len(section.Methods["methods"]); got != 3 {
		t.Fatalf("expected 3 declared methods, got %d", got)
	}
}

func TestParseConfigRejectsBadSemver(t *testing.T) {
	_, err := plugin.ParseConfig(`abi = "not-a-version"`, "nyash.toml")
	if err == nil {
		t.Fatalf("expected ParseConfig to reject a non-semver abi")
	}
}

func TestCompatibleWith(t *testing.T) {
	cfg := &plugin.Config{ABI: "v1.1.0"}
	if !cfg.CompatibleWith("v1.2.0") {
		t.Fatalf("expected v1.1.0 to be compatible with host v1.2.0")
	}
	if cfg.CompatibleWith("v2.0.0") {
		t.Fatalf("expected v1.1.0 to be incompatible with host v2.0.0")
	}
	if cfg.CompatibleWith("v1.0.0") {
		t.Fatalf("expected v1.1.0 to be incompatible with older host v1.0.0")
	}
}
