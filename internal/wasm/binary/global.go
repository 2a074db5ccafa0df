package binary

import (
	"github.com/tetratelabs/wasmengine/internal/cursor"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

func readGlobalType(s *cursor.Cursor) *wasm.GlobalType {
	t := readValueType(s, "global type")
	offset := s.Offset()
	mut := s.ReadU8("global mutability")
	if !s.OK() {
		return nil
	}
	if mut > 1 {
		s.Errorf(offset, "invalid global mutability %#x", mut)
		return nil
	}
	return &wasm.GlobalType{ValType: t, Mutable: mut == 1}
}

func (d *decoder) decodeGlobals(s *cursor.Cursor) {
	m := d.m
	count := readCount(s, "global")
	for i := uint32(0); i < count && s.OK(); i++ {
		gt := readGlobalType(s)
		if gt == nil {
			return
		}
		init := d.readConstantExpression(s, gt.ValType)
		if !s.OK() {
			return
		}
		m.Globals = append(m.Globals, &wasm.Global{Type: gt, Init: init})
	}
	m.GlobalsSize = layoutGlobals(m.Globals)
}

// layoutGlobals assigns each defined global an offset aligned to its own size, returning the buffer size needed.
func layoutGlobals(globals []*wasm.Global) (size uint32) {
	for _, g := range globals {
		if g.Imported {
			continue
		}
		s := wasm.ValueTypeSize(g.Type.ValType)
		size = (size + s - 1) &^ (s - 1)
		g.Offset = size
		size += s
	}
	return
}

func encodeGlobalType(gt *wasm.GlobalType) []byte {
	if gt.Mutable {
		return []byte{gt.ValType, 1}
	}
	return []byte{gt.ValType, 0}
}

func encodeGlobal(g *wasm.Global) []byte {
	return append(encodeGlobalType(g.Type), encodeConstantExpression(g.Init)...)
}
