package plugin

import (
	"encoding/binary"
	"math"

	"golang.org/x/xerrors"
)

// Tag is a TLV entry's type tag (spec.md §4.7 "TLV encoding"). Tags
// 20-22 are reserved for Result/Option/Array and are not encoded by
// this package: Encode and Decode reject them with ErrReservedTag.
type Tag uint8

const (
	TagBool   Tag = 1
	TagI32    Tag = 2
	TagI64    Tag = 3
	TagF32    Tag = 4
	TagF64    Tag = 5
	TagString Tag = 6
	TagBytes  Tag = 7
	TagHandle Tag = 8

	TagReservedResult Tag = 20
	TagReservedOption Tag = 21
	TagReservedArray  Tag = 22
)

func (t Tag) String() string {
	switch t {
	case TagBool:
		return "bool"
	case TagI32:
		return "i32"
	case TagI64:
		return "i64"
	case TagF32:
		return "f32"
	case TagF64:
		return "f64"
	case TagString:
		return "string"
	case TagBytes:
		return "bytes"
	case TagHandle:
		return "handle"
	default:
		return "unknown"
	}
}

// Handle is the TLV tag-8 payload: a plugin-owned object identity.
type Handle struct {
	TypeID     TypeID
	InstanceID InstanceID
}

// Value is one decoded TLV entry: exactly one of the typed fields below
// is meaningful, selected by Tag.
type Value struct {
	Tag    Tag
	Bool   bool
	I32    int32
	I64    int64
	F32    float32
	F64    float64
	Str    string
	Bytes  []byte
	Handle Handle
}

func Bool(v bool) Value     { return Value{Tag: TagBool, Bool: v} }
func I32(v int32) Value     { return Value{Tag: TagI32, I32: v} }
func I64(v int64) Value     { return Value{Tag: TagI64, I64: v} }
func F32(v float32) Value   { return Value{Tag: TagF32, F32: v} }
func F64(v float64) Value   { return Value{Tag: TagF64, F64: v} }
func String(v string) Value { return Value{Tag: TagString, Str: v} }
func Bytes(v []byte) Value  { return Value{Tag: TagBytes, Bytes: v} }
func HandleValue(h Handle) Value { return Value{Tag: TagHandle, Handle: h} }

// header is the fixed TLV envelope preceding the entries (spec.md §4.7:
// "a short header {version:u16, argc:u16}").
type header struct {
	Version uint16
	Argc    uint16
}

// Encode renders values into the wire format spec.md §4.7 defines: a
// 4-byte header followed by argc entries of {tag:u8, reserved:u8,
// length:u16, bytes[length]}, all integers little-endian.
func Encode(values []Value) ([]byte, error) {
	if len(values) > math.MaxUint16 {
		return nil, xerrors.Errorf("plugin: %d values exceeds TLV argc limit", len(values))
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:2], 1)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(values)))

	for _, v := range values {
		payload, err := encodeOne(v)
		if err != nil {
			return nil, err
		}
		if len(payload) > math.MaxUint16 {
			return nil, xerrors.Errorf("plugin: TLV entry of %d bytes exceeds length field", len(payload))
		}
		entry := make([]byte, 4+len(payload))
		entry[0] = byte(v.Tag)
		entry[1] = 0 // reserved
		binary.LittleEndian.PutUint16(entry[2:4], uint16(len(payload)))
		copy(entry[4:], payload)
		buf = append(buf, entry...)
	}
	return buf, nil
}

func encodeOne(v Value) ([]byte, error) {
	switch v.Tag {
	case TagBool:
		if v.Bool {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case TagI32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v.I32))
		return b, nil
	case TagI64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(v.I64))
		return b, nil
	case TagF32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(v.F32))
		return b, nil
	case TagF64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v.F64))
		return b, nil
	case TagString:
		return []byte(v.Str), nil
	case TagBytes:
		return v.Bytes, nil
	case TagHandle:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint32(b[0:4], uint32(v.Handle.TypeID))
		binary.LittleEndian.PutUint32(b[4:8], uint32(v.Handle.InstanceID))
		return b, nil
	default:
		return nil, xerrors.Errorf("plugin: tag %d is reserved, not encodable: %w", v.Tag, ErrReservedTag)
	}
}

// Decode parses the wire format Encode produces.
func Decode(b []byte) ([]Value, error) {
	if len(b) < 4 {
		return nil, xerrors.Errorf("plugin: TLV buffer shorter than header: %w", ErrMalformedTLV)
	}
	argc := binary.LittleEndian.Uint16(b[2:4])
	b = b[4:]

	values := make([]Value, 0, argc)
	for i := uint16(0); i < argc; i++ {
		if len(b) < 4 {
			return nil, xerrors.Errorf("plugin: truncated TLV entry %d: %w", i, ErrMalformedTLV)
		}
		tag := Tag(b[0])
		length := binary.LittleEndian.Uint16(b[2:4])
		b = b[4:]
		if len(b) < int(length) {
			return nil, xerrors.Errorf("plugin: TLV entry %d declares %d bytes, only %d remain: %w", i, length, len(b), ErrMalformedTLV)
		}
		payload := b[:length]
		b = b[length:]

		v, err := decodeOne(tag, payload)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func decodeOne(tag Tag, payload []byte) (Value, error) {
	switch tag {
	case TagBool:
		return Value{Tag: tag, Bool: len(payload) > 0 && payload[0] != 0}, nil
	case TagI32:
		return Value{Tag: tag, I32: int32(binary.LittleEndian.Uint32(payload))}, nil
	case TagI64:
		return Value{Tag: tag, I64: int64(binary.LittleEndian.Uint64(payload))}, nil
	case TagF32:
		return Value{Tag: tag, F32: math.Float32frombits(binary.LittleEndian.Uint32(payload))}, nil
	case TagF64:
		return Value{Tag: tag, F64: math.Float64frombits(binary.LittleEndian.Uint64(payload))}, nil
	case TagString:
		return Value{Tag: tag, Str: string(payload)}, nil
	case TagBytes:
		return Value{Tag: tag, Bytes: append([]byte(nil), payload...)}, nil
	case TagHandle:
		if len(payload) < 8 {
			return Value{}, xerrors.Errorf("plugin: handle payload too short: %w", ErrMalformedTLV)
		}
		return Value{Tag: tag, Handle: Handle{
			TypeID:     TypeID(binary.LittleEndian.Uint32(payload[0:4])),
			InstanceID: InstanceID(binary.LittleEndian.Uint32(payload[4:8])),
		}}, nil
	default:
		return Value{}, xerrors.Errorf("plugin: tag %d is reserved or unknown: %w", tag, ErrReservedTag)
	}
}
