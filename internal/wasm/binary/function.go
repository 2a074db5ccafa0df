package binary

import (
	"github.com/tetratelabs/wasmengine/internal/cursor"
	"github.com/tetratelabs/wasmengine/internal/leb128"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

// maxLocals is the most locals, including parameters, a function may declare.
const maxLocals = 50000

func (d *decoder) decodeFunctionSignatures(s *cursor.Cursor) {
	count := readCount(s, "function")
	for i := uint32(0); i < count && s.OK(); i++ {
		typeIdx, ft := readSignatureIndex(s, d.m)
		if ft == nil {
			return
		}
		d.m.Functions = append(d.m.Functions, &wasm.Function{TypeIndex: typeIdx, Type: ft})
	}
}

func (d *decoder) decodeFunctionBodies(s *cursor.Cursor) {
	m := d.m
	offset := s.Offset()
	count := readCount(s, "function body")
	defined := m.DefinedFunctions()
	if s.OK() && count != uint32(len(defined)) {
		s.Errorf(offset, "function and body count mismatch (%d != %d)", len(defined), count)
		return
	}
	for i := uint32(0); i < count && s.OK(); i++ {
		size := s.ReadVarUint32("body size")
		body := s.Window(size, "function body")
		if !s.OK() {
			return
		}
		fn := defined[i]
		fn.LocalTypes = decodeLocals(body, uint32(len(fn.Type.Params)))
		if !body.OK() {
			return
		}
		fn.BodyOffset = uint32(body.Offset())
		fn.Body = body.Rest()
		d.bodies++
	}
}

func decodeLocals(c *cursor.Cursor, paramCount uint32) []wasm.ValueType {
	declCount := readCount(c, "local declaration")
	total := uint64(paramCount)
	var ret []wasm.ValueType
	for i := uint32(0); i < declCount && c.OK(); i++ {
		offset := c.Offset()
		n := c.ReadVarUint32("local count")
		t := readValueType(c, "local type")
		if !c.OK() {
			return nil
		}
		if total += uint64(n); total > maxLocals {
			c.Errorf(offset, "too many locals: %d > %d", total, maxLocals)
			return nil
		}
		for j := uint32(0); j < n; j++ {
			ret = append(ret, t)
		}
	}
	return ret
}

// encodeLocals compresses runs of the same local type into (count, type) declarations.
func encodeLocals(localTypes []wasm.ValueType) []byte {
	var decls []byte
	var declCount uint32
	for i := 0; i < len(localTypes); {
		t := localTypes[i]
		n := 1
		for i+n < len(localTypes) && localTypes[i+n] == t {
			n++
		}
		decls = append(decls, leb128.EncodeUint32(uint32(n))...)
		decls = append(decls, t)
		declCount++
		i += n
	}
	return append(leb128.EncodeUint32(declCount), decls...)
}

func encodeFunctionType(t *wasm.FunctionType) []byte {
	data := leb128.EncodeUint32(uint32(len(t.Params)))
	data = append(data, leb128.EncodeUint32(uint32(len(t.Results)))...)
	data = append(data, t.Params...)
	return append(data, t.Results...)
}

func encodeFunctionBody(f *wasm.Function) []byte {
	body := append(encodeLocals(f.LocalTypes), f.Body...)
	return append(leb128.EncodeUint32(uint32(len(body))), body...)
}
