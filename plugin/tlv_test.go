package plugin_test

import (
	"testing"

	"github.com/nyashlang/nyash-core/plugin"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := []plugin.Value{
		plugin.Bool(true),
		plugin.I32(-7),
		plugin.I64(1 << 40),
		plugin.F32(1.5),
		plugin.F64(3.25),
		plugin.String("hello, nyash"),
		plugin.Bytes([]byte{0x01, 0x02, 0x03}),
		plugin.HandleValue(plugin.Handle{TypeID: 9, InstanceID: 42}),
	}

	wire, err := plugin.Encode(values)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := plugin.Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != len(values) {
		t.Fatalf("expected %d values back, got %d", len(values), len(decoded))
	}
	if decoded[0].Bool != true {
		t.Fatalf("bool mismatch: %+v", decoded[0])
	}
	if decoded[1].I32 != -7 {
		t.Fatalf("i32 mismatch: %+v", decoded[1])
	}
	if decoded[2].I64 != 1<<40 {
		t.Fatalf("i64 mismatch: %+v", decoded[2])
	}
	if decoded[5].Str != "hello, nyash" {
		t.Fatalf("string mismatch: %+v", decoded[5])
	}
	if decoded[7].Handle != (plugin.Handle{TypeID: 9, InstanceID: 42}) {
		t.Fatalf("handle mismatch: %+v", decoded[7])
	}
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	wire, err := plugin.Encode([]plugin.Value{plugin.I32(5)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, err = plugin.Decode(wire[:len(wire)-1])
	if err == nil {
		t.Fatalf("expected Decode to reject a truncated buffer")
	}
}

func TestEncodeRejectsReservedTag(t *testing.T) {
	_, err := plugin.Encode([]plugin.Value{{Tag: plugin.TagReservedArray}})
	if err == nil {
		t.Fatalf("expected Encode to reject a reserved tag")
	}
}
