package fields

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	ErrMalformed = errors.New("fields: malformed payload")
)

// Field is one decoded protobuf field. Scalar wire types carry their raw
// bits in Bits; length-delimited fields carry Bytes.
type Field struct {
	Num   protowire.Number
	Type  protowire.Type
	Bits  uint64
	Bytes []byte
}

func (f Field) Uint32() uint32 {
	switch f.Type {
	case protowire.VarintType, protowire.Fixed32Type, protowire.Fixed64Type:
		return uint32(f.Bits)
	}
	return 0
}

func (f Field) Int32() int32 {
	return int32(f.Uint32())
}

// Sint32 decodes a zigzag varint.
func (f Field) Sint32() int32 {
	if f.Type != protowire.VarintType {
		return 0
	}
	return int32(protowire.DecodeZigZag(f.Bits & math.MaxUint32))
}

func (f Field) Bool() bool {
	return f.Type == protowire.VarintType && protowire.DecodeBool(f.Bits)
}

func (f Field) Float() float32 {
	if f.Type != protowire.Fixed32Type {
		return 0
	}
	return math.Float32frombits(uint32(f.Bits))
}

func (f Field) Text() string {
	if f.Type != protowire.BytesType {
		return ""
	}
	return string(f.Bytes)
}

// Data returns a copy of a length-delimited value.
func (f Field) Data() []byte {
	if f.Type != protowire.BytesType {
		return nil
	}
	out := make([]byte, len(f.Bytes))
	copy(out, f.Bytes)
	return out
}

// Walk calls fn for every field in payload in wire order. Groups are
// skipped. Bytes values alias payload.
func Walk(payload []byte, fn func(Field) error) error {
	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return fmt.Errorf("%w: tag: %v", ErrMalformed, protowire.ParseError(n))
		}
		payload = payload[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.Bits, n = protowire.ConsumeVarint(payload)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(payload)
			f.Bits = uint64(v)
		case protowire.Fixed64Type:
			f.Bits, n = protowire.ConsumeFixed64(payload)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(payload)
		default:
			n = protowire.ConsumeFieldValue(num, typ, payload)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			payload = payload[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		payload = payload[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// Decode collects every field in payload.
func Decode(payload []byte) ([]Field, error) {
	out := make([]Field, 0)
	err := Walk(payload, func(f Field) error {
		out = append(out, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the last occurrence of num, matching protobuf merge rules.
func Get(fields []Field, num protowire.Number) (Field, bool) {
	for i := len(fields) - 1; i >= 0; i-- {
		if fields[i].Num == num {
			return fields[i], true
		}
	}
	return Field{}, false
}

// Builder appends proto3 fields. Zero scalars are omitted.
type Builder struct {
	buf []byte
}

func (b *Builder) Uint32(num protowire.Number, v uint32) *Builder {
	if v != 0 {
		b.buf = protowire.AppendTag(b.buf, num, protowire.VarintType)
		b.buf = protowire.AppendVarint(b.buf, uint64(v))
	}
	return b
}

func (b *Builder) Int32(num protowire.Number, v int32) *Builder {
	if v != 0 {
		b.buf = protowire.AppendTag(b.buf, num, protowire.VarintType)
		b.buf = protowire.AppendVarint(b.buf, uint64(int64(v)))
	}
	return b
}

func (b *Builder) Sint32(num protowire.Number, v int32) *Builder {
	if v != 0 {
		b.buf = protowire.AppendTag(b.buf, num, protowire.VarintType)
		b.buf = protowire.AppendVarint(b.buf, protowire.EncodeZigZag(int64(v)))
	}
	return b
}

func (b *Builder) Bool(num protowire.Number, v bool) *Builder {
	if v {
		b.buf = protowire.AppendTag(b.buf, num, protowire.VarintType)
		b.buf = protowire.AppendVarint(b.buf, 1)
	}
	return b
}

func (b *Builder) Fixed32(num protowire.Number, v uint32) *Builder {
	if v != 0 {
		b.buf = protowire.AppendTag(b.buf, num, protowire.Fixed32Type)
		b.buf = protowire.AppendFixed32(b.buf, v)
	}
	return b
}

func (b *Builder) Float(num protowire.Number, v float32) *Builder {
	if v != 0 || math.Signbit(float64(v)) {
		b.buf = protowire.AppendTag(b.buf, num, protowire.Fixed32Type)
		b.buf = protowire.AppendFixed32(b.buf, math.Float32bits(v))
	}
	return b
}

func (b *Builder) String(num protowire.Number, v string) *Builder {
	if v != "" {
		b.buf = protowire.AppendTag(b.buf, num, protowire.BytesType)
		b.buf = protowire.AppendString(b.buf, v)
	}
	return b
}

func (b *Builder) Bytes(num protowire.Number, v []byte) *Builder {
	if len(v) > 0 {
		b.buf = protowire.AppendTag(b.buf, num, protowire.BytesType)
		b.buf = protowire.AppendBytes(b.buf, v)
	}
	return b
}

// Strings writes every element of a repeated string, empty ones included.
func (b *Builder) Strings(num protowire.Number, vs []string) *Builder {
	for _, v := range vs {
		b.buf = protowire.AppendTag(b.buf, num, protowire.BytesType)
		b.buf = protowire.AppendString(b.buf, v)
	}
	return b
}

// Message writes an embedded message. Empty embedded messages are kept so
// repeated entries survive a round trip.
func (b *Builder) Message(num protowire.Number, payload []byte) *Builder {
	b.buf = protowire.AppendTag(b.buf, num, protowire.BytesType)
	b.buf = protowire.AppendBytes(b.buf, payload)
	return b
}

func (b *Builder) Build() []byte {
	if b.buf == nil {
		return []byte{}
	}
	return b.buf
}
