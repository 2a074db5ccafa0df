package binary

import (
	"github.com/tetratelabs/wasmengine/internal/cursor"
	"github.com/tetratelabs/wasmengine/internal/leb128"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

func (d *decoder) decodeExports(s *cursor.Cursor) {
	m := d.m
	count := readCount(s, "export")
	m.Exports = make([]*wasm.Export, 0, count)
	names := make(map[string]struct{}, count)
	for i := uint32(0); i < count && s.OK(); i++ {
		offset := s.Offset()
		e := &wasm.Export{Kind: s.ReadU8("export kind")}
		e.Index = s.ReadVarUint32("export index")
		e.Name = s.ReadName("export name")
		if !s.OK() {
			return
		}
		if _, ok := names[e.Name]; ok {
			s.Errorf(offset, "export[%d] duplicate name %q", i, e.Name)
			return
		}
		names[e.Name] = struct{}{}

		var limit uint32
		switch e.Kind {
		case wasm.ExternTypeFunc:
			limit = uint32(len(m.Functions))
		case wasm.ExternTypeTable:
			limit = uint32(len(m.Tables))
		case wasm.ExternTypeMemory:
			if m.Memory != nil {
				limit = 1
			}
		case wasm.ExternTypeGlobal:
			limit = uint32(len(m.Globals))
		default:
			s.Errorf(offset, "export[%d] invalid kind %#x", i, e.Kind)
			return
		}
		if e.Index >= limit {
			s.Errorf(offset, "export[%d] %s index %d out of range", i, wasm.ExternTypeName(e.Kind), e.Index)
			return
		}
		if e.Kind == wasm.ExternTypeFunc {
			m.Functions[e.Index].Exported = true
		}
		m.Exports = append(m.Exports, e)
	}
}

// encodeExport returns the wasm.Export encoded in the binary format.
func encodeExport(e *wasm.Export) []byte {
	data := []byte{e.Kind}
	data = append(data, leb128.EncodeUint32(e.Index)...)
	return append(data, encodeName(e.Name)...)
}
