package ast

import (
	"github.com/tetratelabs/wasmengine/internal/cursor"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

// Operand decoders read the immediates following an opcode. Each records its length in bytes. On a truncated or
// malformed encoding the cursor records the error, and the decoder reports it at the opcode's offset.

type blockArityOperand struct {
	arity  uint32
	length int
}

func readBlockArity(c *cursor.Cursor) (o blockArityOperand) {
	o.arity, o.length = c.ReadVarUint32Len("block arity")
	return
}

type localIndexOperand struct {
	index  uint32
	length int
}

func readLocalIndex(c *cursor.Cursor) (o localIndexOperand) {
	o.index, o.length = c.ReadVarUint32Len("local index")
	return
}

type globalIndexOperand struct {
	index  uint32
	length int
}

func readGlobalIndex(c *cursor.Cursor) (o globalIndexOperand) {
	o.index, o.length = c.ReadVarUint32Len("global index")
	return
}

type functionIndexOperand struct {
	index  uint32
	length int
}

func readFunctionIndex(c *cursor.Cursor) (o functionIndexOperand) {
	o.index, o.length = c.ReadVarUint32Len("function index")
	return
}

type signatureIndexOperand struct {
	index  uint32
	length int
}

func readSignatureIndex(c *cursor.Cursor) (o signatureIndexOperand) {
	o.index, o.length = c.ReadVarUint32Len("signature index")
	return
}

type breakDepthOperand struct {
	depth  uint32
	length int
}

func readBreakDepth(c *cursor.Cursor) (o breakDepthOperand) {
	o.depth, o.length = c.ReadVarUint32Len("break depth")
	return
}

// maxBranchTableCount bounds the entries of a branch table so that its byte length can't overflow.
const maxBranchTableCount = 1 << 24

type branchTableOperand struct {
	// targets are the depths for each key, followed by the default depth.
	targets []uint32
	length  int
}

func readBranchTable(c *cursor.Cursor) (o branchTableOperand) {
	start := c.Offset()
	count := c.ReadVarUint32("branch table count")
	if !c.OK() {
		return
	}
	if count >= maxBranchTableCount {
		c.Errorf(start, "branch table count %d too large", count)
		return
	}
	if !c.CheckRange(c.Pos(), (count+1)*4, "branch table") {
		return
	}
	o.targets = make([]uint32, count+1)
	for i := range o.targets {
		o.targets[i] = c.ReadU32("branch table entry")
	}
	o.length = c.Offset() - start
	return
}

type memoryAccessOperand struct {
	alignment, offset uint32
	length            int
}

func readMemoryAccess(c *cursor.Cursor) (o memoryAccessOperand) {
	var n int
	o.alignment, o.length = c.ReadVarUint32Len("memory alignment")
	o.offset, n = c.ReadVarUint32Len("memory offset")
	o.length += n
	return
}

type i8Operand struct {
	value  int8
	length int
}

func readI8(c *cursor.Cursor) i8Operand {
	return i8Operand{value: int8(c.ReadU8("i8 immediate")), length: 1}
}

type i32Operand struct {
	value  int32
	length int
}

func readI32(c *cursor.Cursor) (o i32Operand) {
	o.value, o.length = c.ReadVarInt32Len("i32 immediate")
	return
}

type i64Operand struct {
	value  int64
	length int
}

func readI64(c *cursor.Cursor) (o i64Operand) {
	o.value, o.length = c.ReadVarInt64Len("i64 immediate")
	return
}

type f32Operand struct {
	bits   uint32
	length int
}

func readF32(c *cursor.Cursor) f32Operand {
	return f32Operand{bits: c.ReadU32("f32 immediate"), length: 4}
}

type f64Operand struct {
	bits   uint64
	length int
}

func readF64(c *cursor.Cursor) f64Operand {
	return f64Operand{bits: c.ReadU64("f64 immediate"), length: 8}
}

// skipImmediates reads past the immediates of oc and returns the count of children it has, or false if the opcode
// is unknown or its immediates are malformed. References are resolved leniently: an invalid function or signature
// index counts as zero parameters, leaving the error to the decoder.
func skipImmediates(c *cursor.Cursor, m *wasm.Module, sig *wasm.FunctionType, oc wasm.Opcode) (arity int, ok bool) {
	switch oc {
	case wasm.OpcodeNop, wasm.OpcodeUnreachable, wasm.OpcodeMemorySize:
	case wasm.OpcodeBlock, wasm.OpcodeLoop:
		arity = int(readBlockArity(c).arity)
	case wasm.OpcodeIf:
		arity = 2
	case wasm.OpcodeIfElse, wasm.OpcodeSelect:
		arity = 3
	case wasm.OpcodeBr:
		readBreakDepth(c)
		arity = 1
	case wasm.OpcodeBrIf:
		readBreakDepth(c)
		arity = 2
	case wasm.OpcodeBrTable:
		readBranchTable(c)
		arity = 2
	case wasm.OpcodeI8Const:
		readI8(c)
	case wasm.OpcodeI32Const:
		readI32(c)
	case wasm.OpcodeI64Const:
		readI64(c)
	case wasm.OpcodeF32Const:
		readF32(c)
	case wasm.OpcodeF64Const:
		readF64(c)
	case wasm.OpcodeGetLocal:
		readLocalIndex(c)
	case wasm.OpcodeSetLocal:
		readLocalIndex(c)
		arity = 1
	case wasm.OpcodeGetGlobal:
		readGlobalIndex(c)
	case wasm.OpcodeSetGlobal:
		readGlobalIndex(c)
		arity = 1
	case wasm.OpcodeCallFunction:
		o := readFunctionIndex(c)
		if m != nil {
			if t := m.FunctionType(o.index); t != nil {
				arity = len(t.Params)
			}
		}
	case wasm.OpcodeCallIndirect:
		o := readSignatureIndex(c)
		arity = 1
		if m != nil && o.index < uint32(len(m.Signatures)) {
			arity += len(m.Signatures[o.index].Params)
		}
	case wasm.OpcodeReturn:
		arity = len(sig.Results)
	case wasm.OpcodeGrowMemory:
		arity = 1
	default:
		if a, isMem := wasm.MemoryAccessOf(oc); isMem {
			readMemoryAccess(c)
			arity = 1
			if a.Store {
				arity = 2
			}
		} else if s := wasm.SimpleOpcodeSignature(oc); s != nil {
			arity = len(s.Params)
		} else {
			return 0, false
		}
	}
	return arity, c.OK()
}
