package binary

import (
	"github.com/tetratelabs/wasmengine/internal/cursor"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

// readConstantExpression decodes an initializer that must produce a value of type want.
func (d *decoder) readConstantExpression(s *cursor.Cursor, want wasm.ValueType) *wasm.ConstantExpression {
	offset := s.Offset()
	opcode := s.ReadU8("constant expression opcode")
	immediate := s.Rest()
	dataStart := s.Pos()
	var got wasm.ValueType
	switch opcode {
	case wasm.OpcodeI32Const:
		s.ReadVarInt32("i32.const value")
		got = wasm.ValueTypeI32
	case wasm.OpcodeI64Const:
		s.ReadVarInt64("i64.const value")
		got = wasm.ValueTypeI64
	case wasm.OpcodeF32Const:
		s.ReadU32("f32.const value")
		got = wasm.ValueTypeF32
	case wasm.OpcodeF64Const:
		s.ReadU64("f64.const value")
		got = wasm.ValueTypeF64
	case wasm.OpcodeGetGlobal:
		idxOffset := s.Offset()
		idx := s.ReadVarUint32("global index")
		if !s.OK() {
			return nil
		}
		// Only imported globals have a value before the module's own initializers run.
		if idx >= d.m.ImportedGlobalCount {
			s.Errorf(idxOffset, "constant expression global index %d is not an imported global", idx)
			return nil
		}
		got = d.m.Globals[idx].Type.ValType
	default:
		if s.OK() {
			s.Errorf(offset, "invalid constant expression opcode %#x", opcode)
		}
		return nil
	}
	dataEnd := s.Pos()
	endOffset := s.Offset()
	if end := s.ReadU8("constant expression end"); s.OK() && end != wasm.OpcodeEnd {
		s.Errorf(endOffset, "constant expression not terminated by end")
		return nil
	}
	if !s.OK() {
		return nil
	}
	if got != want {
		s.Errorf(offset, "constant expression type %s != %s", wasm.ValueTypeName(got), wasm.ValueTypeName(want))
		return nil
	}
	return &wasm.ConstantExpression{Opcode: opcode, Data: immediate[:dataEnd-dataStart:dataEnd-dataStart]}
}

func encodeConstantExpression(expr *wasm.ConstantExpression) []byte {
	data := append([]byte{expr.Opcode}, expr.Data...)
	return append(data, wasm.OpcodeEnd)
}
