package binary

import (
	"github.com/tetratelabs/wasmengine/internal/cursor"
	"github.com/tetratelabs/wasmengine/internal/leb128"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

func (d *decoder) decodeImports(s *cursor.Cursor) {
	count := readCount(s, "import")
	d.m.Imports = make([]*wasm.Import, 0, count)
	for i := uint32(0); i < count && s.OK(); i++ {
		d.decodeImport(s, i)
	}
}

func (d *decoder) decodeImport(s *cursor.Cursor, i uint32) {
	m := d.m
	imp := &wasm.Import{Module: s.ReadName("import module"), Name: s.ReadName("import field")}
	kindOffset := s.Offset()
	imp.Kind = s.ReadU8("import kind")
	if !s.OK() {
		return
	}
	importIdx := wasm.Index(len(m.Imports))
	switch imp.Kind {
	case wasm.ExternTypeFunc:
		typeIdx, ft := readSignatureIndex(s, m)
		if ft == nil {
			return
		}
		imp.DescFunc = typeIdx
		imp.IndexPerType = m.ImportedFunctionCount
		m.Functions = append(m.Functions, &wasm.Function{TypeIndex: typeIdx, Type: ft, Imported: true, ImportIndex: importIdx})
		m.ImportedFunctionCount++
	case wasm.ExternTypeTable:
		if len(m.Tables) > 0 {
			s.Errorf(kindOffset, "import[%d] at most one table allowed", i)
			return
		}
		t := d.readTableLimits(s)
		if t == nil {
			return
		}
		t.Imported = true
		imp.DescTable = t
		m.Tables = append(m.Tables, t)
		m.ImportedTableCount++
	case wasm.ExternTypeMemory:
		if m.Memory != nil {
			s.Errorf(kindOffset, "import[%d] at most one memory allowed", i)
			return
		}
		mem := d.readMemoryLimits(s)
		if mem == nil {
			return
		}
		mem.Imported = true
		imp.DescMem = mem
		m.Memory = mem
	case wasm.ExternTypeGlobal:
		gt := readGlobalType(s)
		if !s.OK() {
			return
		}
		imp.DescGlobal = gt
		imp.IndexPerType = m.ImportedGlobalCount
		m.Globals = append(m.Globals, &wasm.Global{Type: gt, Imported: true})
		m.ImportedGlobalCount++
	default:
		s.Errorf(kindOffset, "import[%d] invalid kind %#x", i, imp.Kind)
		return
	}
	m.Imports = append(m.Imports, imp)
}

// encodeImport returns the wasm.Import encoded in the binary format.
func encodeImport(i *wasm.Import) []byte {
	data := encodeName(i.Module)
	data = append(data, encodeName(i.Name)...)
	data = append(data, i.Kind)
	switch i.Kind {
	case wasm.ExternTypeFunc:
		data = append(data, leb128.EncodeUint32(i.DescFunc)...)
	case wasm.ExternTypeTable:
		data = append(data, encodeLimits(i.DescTable.Min, i.DescTable.Max)...)
	case wasm.ExternTypeMemory:
		data = append(data, encodeLimits(i.DescMem.Min, i.DescMem.Max)...)
	case wasm.ExternTypeGlobal:
		data = append(data, encodeGlobalType(i.DescGlobal)...)
	}
	return data
}
