package binary

import (
	"github.com/tetratelabs/wasmengine/internal/cursor"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

func (d *decoder) decodeMemory(s *cursor.Cursor) {
	offset := s.Offset()
	if d.m.Memory != nil {
		s.Errorf(offset, "at most one memory allowed")
		return
	}
	mem := d.readMemoryLimits(s)
	exported := s.ReadU8("memory exported flag")
	if mem == nil || !s.OK() {
		return
	}
	if exported > 1 {
		s.Errorf(offset, "invalid memory exported flag %#x", exported)
		return
	}
	mem.Exported = exported == 1
	d.m.Memory = mem
}

// readMemoryLimits decodes the page limits, enforcing DecodeOptions.MemoryMaxPages.
func (d *decoder) readMemoryLimits(s *cursor.Cursor) *wasm.Memory {
	offset := s.Offset()
	min := s.ReadVarUint32("memory min pages")
	max := s.ReadVarUint32("memory max pages")
	if !s.OK() {
		return nil
	}
	limit := d.opts.MemoryMaxPages
	if max > limit {
		s.Errorf(offset, "max %d pages (%s) outside range of %d pages (%s)", max, wasm.PagesToUnitOfBytes(max), limit, wasm.PagesToUnitOfBytes(limit))
		return nil
	} else if min > max {
		s.Errorf(offset, "min %d pages (%s) > max %d pages (%s)", min, wasm.PagesToUnitOfBytes(min), max, wasm.PagesToUnitOfBytes(max))
		return nil
	}
	return &wasm.Memory{Min: min, Max: max}
}

// encodeMemory returns the wasm.Memory encoded in the "memory" section format.
func encodeMemory(m *wasm.Memory) []byte {
	data := encodeLimits(m.Min, m.Max)
	if m.Exported {
		return append(data, 1)
	}
	return append(data, 0)
}
