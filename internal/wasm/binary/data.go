package binary

import (
	"github.com/tetratelabs/wasmengine/internal/cursor"
	"github.com/tetratelabs/wasmengine/internal/leb128"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

func (d *decoder) decodeDataSegments(s *cursor.Cursor) {
	m := d.m
	offset := s.Offset()
	if m.Memory == nil {
		s.Errorf(offset, "data segments declared without memory")
		return
	}
	count := readCount(s, "data segment")
	m.DataSegments = make([]*wasm.DataSegment, 0, count)
	for i := uint32(0); i < count && s.OK(); i++ {
		expr := d.readConstantExpression(s, wasm.ValueTypeI32)
		size := s.ReadVarUint32("data segment size")
		sourceOffset := s.Offset()
		init := s.ReadBytes(size, "data segment bytes")
		if !s.OK() {
			return
		}
		m.DataSegments = append(m.DataSegments, &wasm.DataSegment{
			OffsetExpression: expr,
			SourceOffset:     uint32(sourceOffset),
			Init:             init,
		})
	}
}

func encodeDataSegment(seg *wasm.DataSegment) []byte {
	data := encodeConstantExpression(seg.OffsetExpression)
	data = append(data, leb128.EncodeUint32(uint32(len(seg.Init)))...)
	return append(data, seg.Init...)
}
