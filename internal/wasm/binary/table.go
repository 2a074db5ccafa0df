package binary

import (
	"github.com/tetratelabs/wasmengine/internal/cursor"
	"github.com/tetratelabs/wasmengine/internal/leb128"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

// maxTableSize is the largest table a module may declare.
const maxTableSize = 10_000_000

func (d *decoder) decodeTable(s *cursor.Cursor) {
	offset := s.Offset()
	count := readCount(s, "table")
	if !s.OK() {
		return
	}
	if count+uint32(len(d.m.Tables)) > 1 {
		s.Errorf(offset, "at most one table allowed")
		return
	}
	if count == 1 {
		if t := d.readTableLimits(s); t != nil {
			d.m.Tables = append(d.m.Tables, t)
		}
	}
}

func (d *decoder) readTableLimits(s *cursor.Cursor) *wasm.Table {
	offset := s.Offset()
	min := s.ReadVarUint32("table min")
	max := s.ReadVarUint32("table max")
	if !s.OK() {
		return nil
	}
	if min > max {
		s.Errorf(offset, "table min %d > max %d", min, max)
		return nil
	}
	if max > maxTableSize {
		s.Errorf(offset, "table max %d > limit %d", max, maxTableSize)
		return nil
	}
	return &wasm.Table{Min: min, Max: max}
}

func (d *decoder) decodeElements(s *cursor.Cursor) {
	m := d.m
	count := readCount(s, "element segment")
	m.ElementSegments = make([]*wasm.ElementSegment, 0, count)
	for i := uint32(0); i < count && s.OK(); i++ {
		offset := s.Offset()
		tableIdx := s.ReadVarUint32("table index")
		if s.OK() && tableIdx >= uint32(len(m.Tables)) {
			s.Errorf(offset, "element[%d] table index %d out of range", i, tableIdx)
			return
		}
		expr := d.readConstantExpression(s, wasm.ValueTypeI32)
		n := readCount(s, "element")
		init := make([]wasm.Index, 0, n)
		for j := uint32(0); j < n && s.OK(); j++ {
			fnOffset := s.Offset()
			fnIdx := s.ReadVarUint32("function index")
			if s.OK() && fnIdx >= uint32(len(m.Functions)) {
				s.Errorf(fnOffset, "element[%d].init[%d] function index %d out of range", i, j, fnIdx)
				return
			}
			init = append(init, fnIdx)
		}
		m.ElementSegments = append(m.ElementSegments, &wasm.ElementSegment{TableIndex: tableIdx, OffsetExpr: expr, Init: init})
	}
}

func encodeLimits(min, max uint32) []byte {
	return append(leb128.EncodeUint32(min), leb128.EncodeUint32(max)...)
}

func encodeElementSegment(e *wasm.ElementSegment) []byte {
	data := leb128.EncodeUint32(e.TableIndex)
	data = append(data, encodeConstantExpression(e.OffsetExpr)...)
	data = append(data, leb128.EncodeUint32(uint32(len(e.Init)))...)
	for _, idx := range e.Init {
		data = append(data, leb128.EncodeUint32(idx)...)
	}
	return data
}
