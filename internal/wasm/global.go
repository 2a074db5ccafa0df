package wasm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tetratelabs/wasmengine/internal/leb128"
)

// GlobalInstance is a view of a global's value. Globals defined by a module live in its instance's globals buffer,
// and instances importing them share the same view. Host globals own their storage.
type GlobalInstance struct {
	Type *GlobalType
	// view is ValueTypeSize(Type.ValType) bytes, little-endian.
	view []byte
}

// NewHostGlobal returns a global not backed by any instance, holding the raw bits v.
func NewHostGlobal(t *GlobalType, v uint64) *GlobalInstance {
	g := &GlobalInstance{Type: t, view: make([]byte, ValueTypeSize(t.ValType))}
	g.Set(v)
	return g
}

func newBufferedGlobal(t *GlobalType, buf []byte, offset uint32) *GlobalInstance {
	size := ValueTypeSize(t.ValType)
	return &GlobalInstance{Type: t, view: buf[offset : offset+size : offset+size]}
}

// Kind implements HostValue.Kind
func (g *GlobalInstance) Kind() ExternType {
	return ExternTypeGlobal
}

// Get returns the raw bits of the value. 32-bit types are zero-extended.
func (g *GlobalInstance) Get() uint64 {
	if len(g.view) == 4 {
		return uint64(binary.LittleEndian.Uint32(g.view))
	}
	return binary.LittleEndian.Uint64(g.view)
}

// Set writes the raw bits of the value. 32-bit types keep the low bits.
func (g *GlobalInstance) Set(v uint64) {
	if len(g.view) == 4 {
		binary.LittleEndian.PutUint32(g.view, uint32(v))
	} else {
		binary.LittleEndian.PutUint64(g.view, v)
	}
}

// String implements fmt.Stringer
func (g *GlobalInstance) String() string {
	switch g.Type.ValType {
	case ValueTypeI32:
		return fmt.Sprintf("global(%d)", int32(g.Get()))
	case ValueTypeI64:
		return fmt.Sprintf("global(%d)", int64(g.Get()))
	case ValueTypeF32:
		return fmt.Sprintf("global(%f)", math.Float32frombits(uint32(g.Get())))
	case ValueTypeF64:
		return fmt.Sprintf("global(%f)", math.Float64frombits(g.Get()))
	default:
		panic(fmt.Errorf("BUG: unknown value type %X", g.Type.ValType))
	}
}

// evalConstantExpression returns the raw bits of the initializer's value. The expression was validated by the
// decoder, so a get_global index always refers to an imported, hence already bound, global.
func evalConstantExpression(globals []*GlobalInstance, expr *ConstantExpression) uint64 {
	switch expr.Opcode {
	case OpcodeI32Const:
		v, _, _ := leb128.LoadInt32(expr.Data)
		return uint64(uint32(v))
	case OpcodeI64Const:
		v, _, _ := leb128.LoadInt64(expr.Data)
		return uint64(v)
	case OpcodeF32Const:
		return uint64(binary.LittleEndian.Uint32(expr.Data))
	case OpcodeF64Const:
		return binary.LittleEndian.Uint64(expr.Data)
	case OpcodeGetGlobal:
		idx, _, _ := leb128.LoadUint32(expr.Data)
		return globals[idx].Get()
	}
	panic(fmt.Errorf("BUG: invalid constant expression opcode %#x", expr.Opcode))
}

// evalOffset evaluates a segment offset, an i32 interpreted as signed.
func evalOffset(globals []*GlobalInstance, expr *ConstantExpression) int64 {
	return int64(int32(evalConstantExpression(globals, expr)))
}
