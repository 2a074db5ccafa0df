package binary

import (
	"encoding/binary"

	"github.com/tetratelabs/wasmengine/internal/leb128"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

// EncodeModule implements wasm.EncodeModule for the binary format. Sections are written in the order DecodeModule
// requires, empty ones omitted.
//
// Note: Function.Body and Function.LocalTypes are written for defined functions, so a module decoded by DecodeModule
// re-encodes to equivalent bytes.
func EncodeModule(m *wasm.Module) (bytes []byte) {
	bytes = append(bytes, Magic...)
	bytes = binary.LittleEndian.AppendUint32(bytes, Version)

	if len(m.Signatures) > 0 {
		bytes = append(bytes, encodeVectorSection(SectionNameSignatures, len(m.Signatures), func(i int) []byte {
			return encodeFunctionType(m.Signatures[i])
		})...)
	}
	if len(m.Imports) > 0 {
		bytes = append(bytes, encodeVectorSection(SectionNameImportTable, len(m.Imports), func(i int) []byte {
			return encodeImport(m.Imports[i])
		})...)
	}
	defined := m.Functions[m.ImportedFunctionCount:]
	if len(defined) > 0 {
		bytes = append(bytes, encodeVectorSection(SectionNameFunctionSignatures, len(defined), func(i int) []byte {
			return leb128.EncodeUint32(defined[i].TypeIndex)
		})...)
	}
	if tables := m.Tables[m.ImportedTableCount:]; len(tables) > 0 {
		bytes = append(bytes, encodeVectorSection(SectionNameTable, len(tables), func(i int) []byte {
			return encodeLimits(tables[i].Min, tables[i].Max)
		})...)
	}
	if m.Memory != nil && !m.Memory.Imported {
		bytes = append(bytes, encodeSection(SectionNameMemory, encodeMemory(m.Memory))...)
	}
	if globals := m.Globals[m.ImportedGlobalCount:]; len(globals) > 0 {
		bytes = append(bytes, encodeVectorSection(SectionNameGlobals, len(globals), func(i int) []byte {
			return encodeGlobal(globals[i])
		})...)
	}
	if len(m.Exports) > 0 {
		bytes = append(bytes, encodeVectorSection(SectionNameExportTable, len(m.Exports), func(i int) []byte {
			return encodeExport(m.Exports[i])
		})...)
	}
	if m.StartFunction != nil {
		bytes = append(bytes, encodeSection(SectionNameStartFunction, leb128.EncodeUint32(*m.StartFunction))...)
	}
	if len(m.ElementSegments) > 0 {
		bytes = append(bytes, encodeVectorSection(SectionNameElements, len(m.ElementSegments), func(i int) []byte {
			return encodeElementSegment(m.ElementSegments[i])
		})...)
	}
	if len(defined) > 0 {
		bytes = append(bytes, encodeVectorSection(SectionNameFunctionBodies, len(defined), func(i int) []byte {
			return encodeFunctionBody(defined[i])
		})...)
	}
	if len(m.DataSegments) > 0 {
		bytes = append(bytes, encodeVectorSection(SectionNameDataSegments, len(m.DataSegments), func(i int) []byte {
			return encodeDataSegment(m.DataSegments[i])
		})...)
	}
	if names := encodeNames(defined); names != nil {
		bytes = append(bytes, encodeSection(SectionNameNames, names)...)
	}
	return
}

// encodeNames returns nil unless at least one defined function has a name. Only the prefix of functions up to the
// last named one is written.
func encodeNames(functions []*wasm.Function) []byte {
	last := -1
	for i, f := range functions {
		if f.Name != "" {
			last = i
		}
	}
	if last < 0 {
		return nil
	}
	data := leb128.EncodeUint32(uint32(last + 1))
	for _, f := range functions[:last+1] {
		data = append(data, encodeName(f.Name)...)
		data = append(data, 0) // no local names
	}
	return data
}

func encodeVectorSection(name string, count int, encodeElement func(i int) []byte) []byte {
	contents := leb128.EncodeUint32(uint32(count))
	for i := 0; i < count; i++ {
		contents = append(contents, encodeElement(i)...)
	}
	return encodeSection(name, contents)
}

// encodeSection encodes the size-prefixed section: the size covers the name and the contents.
func encodeSection(name string, contents []byte) []byte {
	payload := append(encodeName(name), contents...)
	return append(leb128.EncodeUint32(uint32(len(payload))), payload...)
}

// EncodeSection is exported for tests that need to build malformed or unknown sections.
func EncodeSection(name string, contents []byte) []byte {
	return encodeSection(name, contents)
}

func encodeName(name string) []byte {
	return append(leb128.EncodeUint32(uint32(len(name))), name...)
}
