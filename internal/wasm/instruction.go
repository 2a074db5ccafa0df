package wasm

// Opcode is the binary Opcode of an instruction. See also InstructionName
//
// Function bodies use a pre-order encoding: an opcode is followed by its immediates and then by the encodings of its
// children. For example, "i32.add (get_local 0) (get_local 1)" is the byte sequence 0x40 0x0e 0x00 0x0e 0x01.
type Opcode = byte

const (
	// OpcodeNop does nothing.
	OpcodeNop Opcode = 0x00
	// OpcodeBlock is followed by a varuint32 count of child expressions. A branch to a block continues after its last
	// child, and the value of the last child falls through as the value of the block.
	OpcodeBlock Opcode = 0x01
	// OpcodeLoop is like OpcodeBlock, except a branch to depth zero from inside jumps back to its first child.
	OpcodeLoop Opcode = 0x02
	// OpcodeIf has two children: an i32 condition and the expression evaluated when it is non-zero.
	OpcodeIf Opcode = 0x03
	// OpcodeIfElse has three children: an i32 condition, the true expression and the false expression.
	OpcodeIfElse Opcode = 0x04
	// OpcodeSelect has three children: the true value, the false value and an i32 condition. Both values are always
	// evaluated.
	OpcodeSelect Opcode = 0x05
	// OpcodeBr is followed by a varuint32 depth and has one child, the value carried to the target.
	OpcodeBr Opcode = 0x06
	// OpcodeBrIf is followed by a varuint32 depth and has two children: the value carried and the i32 condition.
	OpcodeBrIf Opcode = 0x07
	// OpcodeBrTable is followed by a varuint32 count and count+1 fixed-width uint32 depths, the last of which is the
	// default. It has two children: the value carried and the i32 key.
	OpcodeBrTable Opcode = 0x08

	// OpcodeI8Const is followed by one byte, sign-extended to an i32.
	OpcodeI8Const  Opcode = 0x09
	OpcodeI32Const Opcode = 0x0a
	OpcodeI64Const Opcode = 0x0b
	// OpcodeF32Const is followed by a fixed-width little-endian IEEE 754 value.
	OpcodeF32Const Opcode = 0x0c
	// OpcodeF64Const is followed by a fixed-width little-endian IEEE 754 value.
	OpcodeF64Const Opcode = 0x0d

	OpcodeGetLocal  Opcode = 0x0e
	OpcodeSetLocal  Opcode = 0x0f
	OpcodeGetGlobal Opcode = 0x10
	OpcodeSetGlobal Opcode = 0x11

	// OpcodeCallFunction is followed by a varuint32 index in the function index space, and has one child per
	// parameter of the callee.
	OpcodeCallFunction Opcode = 0x12
	// OpcodeCallIndirect is followed by a varuint32 signature index. Its first child is the i32 table key, followed
	// by one child per parameter.
	OpcodeCallIndirect Opcode = 0x13
	// OpcodeReturn has one child per result of the enclosing function.
	OpcodeReturn Opcode = 0x14
	// OpcodeUnreachable causes an unconditional trap.
	OpcodeUnreachable Opcode = 0x15
	// OpcodeEnd terminates a ConstantExpression. It is not valid in function bodies.
	OpcodeEnd Opcode = 0x16

	// memory instructions are followed by a varuint32 alignment exponent and a varuint32 offset.

	OpcodeI32Load8S  Opcode = 0x20
	OpcodeI32Load8U  Opcode = 0x21
	OpcodeI32Load16S Opcode = 0x22
	OpcodeI32Load16U Opcode = 0x23
	OpcodeI64Load8S  Opcode = 0x24
	OpcodeI64Load8U  Opcode = 0x25
	OpcodeI64Load16S Opcode = 0x26
	OpcodeI64Load16U Opcode = 0x27
	OpcodeI64Load32S Opcode = 0x28
	OpcodeI64Load32U Opcode = 0x29
	OpcodeI32Load    Opcode = 0x2a
	OpcodeI64Load    Opcode = 0x2b
	OpcodeF32Load    Opcode = 0x2c
	OpcodeF64Load    Opcode = 0x2d
	OpcodeI32Store8  Opcode = 0x2e
	OpcodeI32Store16 Opcode = 0x2f
	OpcodeI64Store8  Opcode = 0x30
	OpcodeI64Store16 Opcode = 0x31
	OpcodeI64Store32 Opcode = 0x32
	OpcodeI32Store   Opcode = 0x33
	OpcodeI64Store   Opcode = 0x34
	OpcodeF32Store   Opcode = 0x35
	OpcodeF64Store   Opcode = 0x36

	// OpcodeGrowMemory has one i32 child, the page delta, and results in the previous size in pages or -1.
	OpcodeGrowMemory Opcode = 0x39
	// OpcodeMemorySize results in the current size in pages.
	OpcodeMemorySize Opcode = 0x3b

	// numeric instructions have a fixed signature. See SimpleOpcodeSignature

	OpcodeI32Add            Opcode = 0x40
	OpcodeI32Sub            Opcode = 0x41
	OpcodeI32Mul            Opcode = 0x42
	OpcodeI32DivS           Opcode = 0x43
	OpcodeI32DivU           Opcode = 0x44
	OpcodeI32RemS           Opcode = 0x45
	OpcodeI32RemU           Opcode = 0x46
	OpcodeI32And            Opcode = 0x47
	OpcodeI32Or             Opcode = 0x48
	OpcodeI32Xor            Opcode = 0x49
	OpcodeI32Shl            Opcode = 0x4a
	OpcodeI32ShrU           Opcode = 0x4b
	OpcodeI32ShrS           Opcode = 0x4c
	OpcodeI32Eq             Opcode = 0x4d
	OpcodeI32Ne             Opcode = 0x4e
	OpcodeI32LtS            Opcode = 0x4f
	OpcodeI32LeS            Opcode = 0x50
	OpcodeI32LtU            Opcode = 0x51
	OpcodeI32LeU            Opcode = 0x52
	OpcodeI32GtS            Opcode = 0x53
	OpcodeI32GeS            Opcode = 0x54
	OpcodeI32GtU            Opcode = 0x55
	OpcodeI32GeU            Opcode = 0x56
	OpcodeI32Clz            Opcode = 0x57
	OpcodeI32Ctz            Opcode = 0x58
	OpcodeI32Popcnt         Opcode = 0x59
	OpcodeI32Eqz            Opcode = 0x5a
	OpcodeI64Add            Opcode = 0x5b
	OpcodeI64Sub            Opcode = 0x5c
	OpcodeI64Mul            Opcode = 0x5d
	OpcodeI64DivS           Opcode = 0x5e
	OpcodeI64DivU           Opcode = 0x5f
	OpcodeI64RemS           Opcode = 0x60
	OpcodeI64RemU           Opcode = 0x61
	OpcodeI64And            Opcode = 0x62
	OpcodeI64Or             Opcode = 0x63
	OpcodeI64Xor            Opcode = 0x64
	OpcodeI64Shl            Opcode = 0x65
	OpcodeI64ShrU           Opcode = 0x66
	OpcodeI64ShrS           Opcode = 0x67
	OpcodeI64Eq             Opcode = 0x68
	OpcodeI64Ne             Opcode = 0x69
	OpcodeI64LtS            Opcode = 0x6a
	OpcodeI64LeS            Opcode = 0x6b
	OpcodeI64LtU            Opcode = 0x6c
	OpcodeI64LeU            Opcode = 0x6d
	OpcodeI64GtS            Opcode = 0x6e
	OpcodeI64GeS            Opcode = 0x6f
	OpcodeI64GtU            Opcode = 0x70
	OpcodeI64GeU            Opcode = 0x71
	OpcodeI64Clz            Opcode = 0x72
	OpcodeI64Ctz            Opcode = 0x73
	OpcodeI64Popcnt         Opcode = 0x74
	OpcodeF32Add            Opcode = 0x75
	OpcodeF32Sub            Opcode = 0x76
	OpcodeF32Mul            Opcode = 0x77
	OpcodeF32Div            Opcode = 0x78
	OpcodeF32Min            Opcode = 0x79
	OpcodeF32Max            Opcode = 0x7a
	OpcodeF32Abs            Opcode = 0x7b
	OpcodeF32Neg            Opcode = 0x7c
	OpcodeF32Copysign       Opcode = 0x7d
	OpcodeF32Ceil           Opcode = 0x7e
	OpcodeF32Floor          Opcode = 0x7f
	OpcodeF32Trunc          Opcode = 0x80
	OpcodeF32Nearest        Opcode = 0x81
	OpcodeF32Sqrt           Opcode = 0x82
	OpcodeF32Eq             Opcode = 0x83
	OpcodeF32Ne             Opcode = 0x84
	OpcodeF32Lt             Opcode = 0x85
	OpcodeF32Le             Opcode = 0x86
	OpcodeF32Gt             Opcode = 0x87
	OpcodeF32Ge             Opcode = 0x88
	OpcodeF64Add            Opcode = 0x89
	OpcodeF64Sub            Opcode = 0x8a
	OpcodeF64Mul            Opcode = 0x8b
	OpcodeF64Div            Opcode = 0x8c
	OpcodeF64Min            Opcode = 0x8d
	OpcodeF64Max            Opcode = 0x8e
	OpcodeF64Abs            Opcode = 0x8f
	OpcodeF64Neg            Opcode = 0x90
	OpcodeF64Copysign       Opcode = 0x91
	OpcodeF64Ceil           Opcode = 0x92
	OpcodeF64Floor          Opcode = 0x93
	OpcodeF64Trunc          Opcode = 0x94
	OpcodeF64Nearest        Opcode = 0x95
	OpcodeF64Sqrt           Opcode = 0x96
	OpcodeF64Eq             Opcode = 0x97
	OpcodeF64Ne             Opcode = 0x98
	OpcodeF64Lt             Opcode = 0x99
	OpcodeF64Le             Opcode = 0x9a
	OpcodeF64Gt             Opcode = 0x9b
	OpcodeF64Ge             Opcode = 0x9c
	OpcodeI32TruncSF32      Opcode = 0x9d
	OpcodeI32TruncSF64      Opcode = 0x9e
	OpcodeI32TruncUF32      Opcode = 0x9f
	OpcodeI32TruncUF64      Opcode = 0xa0
	OpcodeI32WrapI64        Opcode = 0xa1
	OpcodeI64TruncSF32      Opcode = 0xa2
	OpcodeI64TruncSF64      Opcode = 0xa3
	OpcodeI64TruncUF32      Opcode = 0xa4
	OpcodeI64TruncUF64      Opcode = 0xa5
	OpcodeI64ExtendSI32     Opcode = 0xa6
	OpcodeI64ExtendUI32     Opcode = 0xa7
	OpcodeF32ConvertSI32    Opcode = 0xa8
	OpcodeF32ConvertUI32    Opcode = 0xa9
	OpcodeF32ConvertSI64    Opcode = 0xaa
	OpcodeF32ConvertUI64    Opcode = 0xab
	OpcodeF32DemoteF64      Opcode = 0xac
	OpcodeF32ReinterpretI32 Opcode = 0xad
	OpcodeF64ConvertSI32    Opcode = 0xae
	OpcodeF64ConvertUI32    Opcode = 0xaf
	OpcodeF64ConvertSI64    Opcode = 0xb0
	OpcodeF64ConvertUI64    Opcode = 0xb1
	OpcodeF64PromoteF32     Opcode = 0xb2
	OpcodeF64ReinterpretI64 Opcode = 0xb3
	OpcodeI32ReinterpretF32 Opcode = 0xb4
	OpcodeI64ReinterpretF64 Opcode = 0xb5
	OpcodeI32Ror            Opcode = 0xb6
	OpcodeI32Rol            Opcode = 0xb7
	OpcodeI64Ror            Opcode = 0xb8
	OpcodeI64Rol            Opcode = 0xb9
	OpcodeI64Eqz            Opcode = 0xba
)

var instructionNames = [256]string{
	OpcodeNop:               "nop",
	OpcodeBlock:             "block",
	OpcodeLoop:              "loop",
	OpcodeIf:                "if",
	OpcodeIfElse:            "if_else",
	OpcodeSelect:            "select",
	OpcodeBr:                "br",
	OpcodeBrIf:              "br_if",
	OpcodeBrTable:           "br_table",
	OpcodeI8Const:           "i8.const",
	OpcodeI32Const:          "i32.const",
	OpcodeI64Const:          "i64.const",
	OpcodeF32Const:          "f32.const",
	OpcodeF64Const:          "f64.const",
	OpcodeGetLocal:          "get_local",
	OpcodeSetLocal:          "set_local",
	OpcodeGetGlobal:         "get_global",
	OpcodeSetGlobal:         "set_global",
	OpcodeCallFunction:      "call_function",
	OpcodeCallIndirect:      "call_indirect",
	OpcodeReturn:            "return",
	OpcodeUnreachable:       "unreachable",
	OpcodeEnd:               "end",
	OpcodeI32Load8S:         "i32.load8_s",
	OpcodeI32Load8U:         "i32.load8_u",
	OpcodeI32Load16S:        "i32.load16_s",
	OpcodeI32Load16U:        "i32.load16_u",
	OpcodeI64Load8S:         "i64.load8_s",
	OpcodeI64Load8U:         "i64.load8_u",
	OpcodeI64Load16S:        "i64.load16_s",
	OpcodeI64Load16U:        "i64.load16_u",
	OpcodeI64Load32S:        "i64.load32_s",
	OpcodeI64Load32U:        "i64.load32_u",
	OpcodeI32Load:           "i32.load",
	OpcodeI64Load:           "i64.load",
	OpcodeF32Load:           "f32.load",
	OpcodeF64Load:           "f64.load",
	OpcodeI32Store8:         "i32.store8",
	OpcodeI32Store16:        "i32.store16",
	OpcodeI64Store8:         "i64.store8",
	OpcodeI64Store16:        "i64.store16",
	OpcodeI64Store32:        "i64.store32",
	OpcodeI32Store:          "i32.store",
	OpcodeI64Store:          "i64.store",
	OpcodeF32Store:          "f32.store",
	OpcodeF64Store:          "f64.store",
	OpcodeGrowMemory:        "grow_memory",
	OpcodeMemorySize:        "memory_size",
	OpcodeI32Add:            "i32.add",
	OpcodeI32Sub:            "i32.sub",
	OpcodeI32Mul:            "i32.mul",
	OpcodeI32DivS:           "i32.div_s",
	OpcodeI32DivU:           "i32.div_u",
	OpcodeI32RemS:           "i32.rem_s",
	OpcodeI32RemU:           "i32.rem_u",
	OpcodeI32And:            "i32.and",
	OpcodeI32Or:             "i32.or",
	OpcodeI32Xor:            "i32.xor",
	OpcodeI32Shl:            "i32.shl",
	OpcodeI32ShrU:           "i32.shr_u",
	OpcodeI32ShrS:           "i32.shr_s",
	OpcodeI32Eq:             "i32.eq",
	OpcodeI32Ne:             "i32.ne",
	OpcodeI32LtS:            "i32.lt_s",
	OpcodeI32LeS:            "i32.le_s",
	OpcodeI32LtU:            "i32.lt_u",
	OpcodeI32LeU:            "i32.le_u",
	OpcodeI32GtS:            "i32.gt_s",
	OpcodeI32GeS:            "i32.ge_s",
	OpcodeI32GtU:            "i32.gt_u",
	OpcodeI32GeU:            "i32.ge_u",
	OpcodeI32Clz:            "i32.clz",
	OpcodeI32Ctz:            "i32.ctz",
	OpcodeI32Popcnt:         "i32.popcnt",
	OpcodeI32Eqz:            "i32.eqz",
	OpcodeI64Add:            "i64.add",
	OpcodeI64Sub:            "i64.sub",
	OpcodeI64Mul:            "i64.mul",
	OpcodeI64DivS:           "i64.div_s",
	OpcodeI64DivU:           "i64.div_u",
	OpcodeI64RemS:           "i64.rem_s",
	OpcodeI64RemU:           "i64.rem_u",
	OpcodeI64And:            "i64.and",
	OpcodeI64Or:             "i64.or",
	OpcodeI64Xor:            "i64.xor",
	OpcodeI64Shl:            "i64.shl",
	OpcodeI64ShrU:           "i64.shr_u",
	OpcodeI64ShrS:           "i64.shr_s",
	OpcodeI64Eq:             "i64.eq",
	OpcodeI64Ne:             "i64.ne",
	OpcodeI64LtS:            "i64.lt_s",
	OpcodeI64LeS:            "i64.le_s",
	OpcodeI64LtU:            "i64.lt_u",
	OpcodeI64LeU:            "i64.le_u",
	OpcodeI64GtS:            "i64.gt_s",
	OpcodeI64GeS:            "i64.ge_s",
	OpcodeI64GtU:            "i64.gt_u",
	OpcodeI64GeU:            "i64.ge_u",
	OpcodeI64Clz:            "i64.clz",
	OpcodeI64Ctz:            "i64.ctz",
	OpcodeI64Popcnt:         "i64.popcnt",
	OpcodeF32Add:            "f32.add",
	OpcodeF32Sub:            "f32.sub",
	OpcodeF32Mul:            "f32.mul",
	OpcodeF32Div:            "f32.div",
	OpcodeF32Min:            "f32.min",
	OpcodeF32Max:            "f32.max",
	OpcodeF32Abs:            "f32.abs",
	OpcodeF32Neg:            "f32.neg",
	OpcodeF32Copysign:       "f32.copysign",
	OpcodeF32Ceil:           "f32.ceil",
	OpcodeF32Floor:          "f32.floor",
	OpcodeF32Trunc:          "f32.trunc",
	OpcodeF32Nearest:        "f32.nearest",
	OpcodeF32Sqrt:           "f32.sqrt",
	OpcodeF32Eq:             "f32.eq",
	OpcodeF32Ne:             "f32.ne",
	OpcodeF32Lt:             "f32.lt",
	OpcodeF32Le:             "f32.le",
	OpcodeF32Gt:             "f32.gt",
	OpcodeF32Ge:             "f32.ge",
	OpcodeF64Add:            "f64.add",
	OpcodeF64Sub:            "f64.sub",
	OpcodeF64Mul:            "f64.mul",
	OpcodeF64Div:            "f64.div",
	OpcodeF64Min:            "f64.min",
	OpcodeF64Max:            "f64.max",
	OpcodeF64Abs:            "f64.abs",
	OpcodeF64Neg:            "f64.neg",
	OpcodeF64Copysign:       "f64.copysign",
	OpcodeF64Ceil:           "f64.ceil",
	OpcodeF64Floor:          "f64.floor",
	OpcodeF64Trunc:          "f64.trunc",
	OpcodeF64Nearest:        "f64.nearest",
	OpcodeF64Sqrt:           "f64.sqrt",
	OpcodeF64Eq:             "f64.eq",
	OpcodeF64Ne:             "f64.ne",
	OpcodeF64Lt:             "f64.lt",
	OpcodeF64Le:             "f64.le",
	OpcodeF64Gt:             "f64.gt",
	OpcodeF64Ge:             "f64.ge",
	OpcodeI32TruncSF32:      "i32.trunc_s/f32",
	OpcodeI32TruncSF64:      "i32.trunc_s/f64",
	OpcodeI32TruncUF32:      "i32.trunc_u/f32",
	OpcodeI32TruncUF64:      "i32.trunc_u/f64",
	OpcodeI32WrapI64:        "i32.wrap/i64",
	OpcodeI64TruncSF32:      "i64.trunc_s/f32",
	OpcodeI64TruncSF64:      "i64.trunc_s/f64",
	OpcodeI64TruncUF32:      "i64.trunc_u/f32",
	OpcodeI64TruncUF64:      "i64.trunc_u/f64",
	OpcodeI64ExtendSI32:     "i64.extend_s/i32",
	OpcodeI64ExtendUI32:     "i64.extend_u/i32",
	OpcodeF32ConvertSI32:    "f32.convert_s/i32",
	OpcodeF32ConvertUI32:    "f32.convert_u/i32",
	OpcodeF32ConvertSI64:    "f32.convert_s/i64",
	OpcodeF32ConvertUI64:    "f32.convert_u/i64",
	OpcodeF32DemoteF64:      "f32.demote/f64",
	OpcodeF32ReinterpretI32: "f32.reinterpret/i32",
	OpcodeF64ConvertSI32:    "f64.convert_s/i32",
	OpcodeF64ConvertUI32:    "f64.convert_u/i32",
	OpcodeF64ConvertSI64:    "f64.convert_s/i64",
	OpcodeF64ConvertUI64:    "f64.convert_u/i64",
	OpcodeF64PromoteF32:     "f64.promote/f32",
	OpcodeF64ReinterpretI64: "f64.reinterpret/i64",
	OpcodeI32ReinterpretF32: "i32.reinterpret/f32",
	OpcodeI64ReinterpretF64: "i64.reinterpret/f64",
	OpcodeI32Ror:            "i32.ror",
	OpcodeI32Rol:            "i32.rol",
	OpcodeI64Ror:            "i64.ror",
	OpcodeI64Rol:            "i64.rol",
	OpcodeI64Eqz:            "i64.eqz",
}

// InstructionName returns the instruction corresponding to this binary Opcode, or empty if it is not defined.
func InstructionName(oc Opcode) string {
	return instructionNames[oc]
}

var (
	sig_F32F32_F32 = &FunctionType{Params: []ValueType{ValueTypeF32, ValueTypeF32}, Results: []ValueType{ValueTypeF32}}
	sig_F32F32_I32 = &FunctionType{Params: []ValueType{ValueTypeF32, ValueTypeF32}, Results: []ValueType{ValueTypeI32}}
	sig_F32_F32    = &FunctionType{Params: []ValueType{ValueTypeF32}, Results: []ValueType{ValueTypeF32}}
	sig_F32_F64    = &FunctionType{Params: []ValueType{ValueTypeF32}, Results: []ValueType{ValueTypeF64}}
	sig_F32_I32    = &FunctionType{Params: []ValueType{ValueTypeF32}, Results: []ValueType{ValueTypeI32}}
	sig_F32_I64    = &FunctionType{Params: []ValueType{ValueTypeF32}, Results: []ValueType{ValueTypeI64}}
	sig_F64F64_F64 = &FunctionType{Params: []ValueType{ValueTypeF64, ValueTypeF64}, Results: []ValueType{ValueTypeF64}}
	sig_F64F64_I32 = &FunctionType{Params: []ValueType{ValueTypeF64, ValueTypeF64}, Results: []ValueType{ValueTypeI32}}
	sig_F64_F32    = &FunctionType{Params: []ValueType{ValueTypeF64}, Results: []ValueType{ValueTypeF32}}
	sig_F64_F64    = &FunctionType{Params: []ValueType{ValueTypeF64}, Results: []ValueType{ValueTypeF64}}
	sig_F64_I32    = &FunctionType{Params: []ValueType{ValueTypeF64}, Results: []ValueType{ValueTypeI32}}
	sig_F64_I64    = &FunctionType{Params: []ValueType{ValueTypeF64}, Results: []ValueType{ValueTypeI64}}
	sig_I32I32_I32 = &FunctionType{Params: []ValueType{ValueTypeI32, ValueTypeI32}, Results: []ValueType{ValueTypeI32}}
	sig_I32_F32    = &FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeF32}}
	sig_I32_F64    = &FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeF64}}
	sig_I32_I32    = &FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI32}}
	sig_I32_I64    = &FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI64}}
	sig_I64I64_I32 = &FunctionType{Params: []ValueType{ValueTypeI64, ValueTypeI64}, Results: []ValueType{ValueTypeI32}}
	sig_I64I64_I64 = &FunctionType{Params: []ValueType{ValueTypeI64, ValueTypeI64}, Results: []ValueType{ValueTypeI64}}
	sig_I64_F32    = &FunctionType{Params: []ValueType{ValueTypeI64}, Results: []ValueType{ValueTypeF32}}
	sig_I64_F64    = &FunctionType{Params: []ValueType{ValueTypeI64}, Results: []ValueType{ValueTypeF64}}
	sig_I64_I32    = &FunctionType{Params: []ValueType{ValueTypeI64}, Results: []ValueType{ValueTypeI32}}
	sig_I64_I64    = &FunctionType{Params: []ValueType{ValueTypeI64}, Results: []ValueType{ValueTypeI64}}
)

var simpleSignatures = [256]*FunctionType{
	OpcodeI32Add:            sig_I32I32_I32,
	OpcodeI32Sub:            sig_I32I32_I32,
	OpcodeI32Mul:            sig_I32I32_I32,
	OpcodeI32DivS:           sig_I32I32_I32,
	OpcodeI32DivU:           sig_I32I32_I32,
	OpcodeI32RemS:           sig_I32I32_I32,
	OpcodeI32RemU:           sig_I32I32_I32,
	OpcodeI32And:            sig_I32I32_I32,
	OpcodeI32Or:             sig_I32I32_I32,
	OpcodeI32Xor:            sig_I32I32_I32,
	OpcodeI32Shl:            sig_I32I32_I32,
	OpcodeI32ShrU:           sig_I32I32_I32,
	OpcodeI32ShrS:           sig_I32I32_I32,
	OpcodeI32Eq:             sig_I32I32_I32,
	OpcodeI32Ne:             sig_I32I32_I32,
	OpcodeI32LtS:            sig_I32I32_I32,
	OpcodeI32LeS:            sig_I32I32_I32,
	OpcodeI32LtU:            sig_I32I32_I32,
	OpcodeI32LeU:            sig_I32I32_I32,
	OpcodeI32GtS:            sig_I32I32_I32,
	OpcodeI32GeS:            sig_I32I32_I32,
	OpcodeI32GtU:            sig_I32I32_I32,
	OpcodeI32GeU:            sig_I32I32_I32,
	OpcodeI32Clz:            sig_I32_I32,
	OpcodeI32Ctz:            sig_I32_I32,
	OpcodeI32Popcnt:         sig_I32_I32,
	OpcodeI32Eqz:            sig_I32_I32,
	OpcodeI64Add:            sig_I64I64_I64,
	OpcodeI64Sub:            sig_I64I64_I64,
	OpcodeI64Mul:            sig_I64I64_I64,
	OpcodeI64DivS:           sig_I64I64_I64,
	OpcodeI64DivU:           sig_I64I64_I64,
	OpcodeI64RemS:           sig_I64I64_I64,
	OpcodeI64RemU:           sig_I64I64_I64,
	OpcodeI64And:            sig_I64I64_I64,
	OpcodeI64Or:             sig_I64I64_I64,
	OpcodeI64Xor:            sig_I64I64_I64,
	OpcodeI64Shl:            sig_I64I64_I64,
	OpcodeI64ShrU:           sig_I64I64_I64,
	OpcodeI64ShrS:           sig_I64I64_I64,
	OpcodeI64Eq:             sig_I64I64_I32,
	OpcodeI64Ne:             sig_I64I64_I32,
	OpcodeI64LtS:            sig_I64I64_I32,
	OpcodeI64LeS:            sig_I64I64_I32,
	OpcodeI64LtU:            sig_I64I64_I32,
	OpcodeI64LeU:            sig_I64I64_I32,
	OpcodeI64GtS:            sig_I64I64_I32,
	OpcodeI64GeS:            sig_I64I64_I32,
	OpcodeI64GtU:            sig_I64I64_I32,
	OpcodeI64GeU:            sig_I64I64_I32,
	OpcodeI64Clz:            sig_I64_I64,
	OpcodeI64Ctz:            sig_I64_I64,
	OpcodeI64Popcnt:         sig_I64_I64,
	OpcodeF32Add:            sig_F32F32_F32,
	OpcodeF32Sub:            sig_F32F32_F32,
	OpcodeF32Mul:            sig_F32F32_F32,
	OpcodeF32Div:            sig_F32F32_F32,
	OpcodeF32Min:            sig_F32F32_F32,
	OpcodeF32Max:            sig_F32F32_F32,
	OpcodeF32Abs:            sig_F32_F32,
	OpcodeF32Neg:            sig_F32_F32,
	OpcodeF32Copysign:       sig_F32F32_F32,
	OpcodeF32Ceil:           sig_F32_F32,
	OpcodeF32Floor:          sig_F32_F32,
	OpcodeF32Trunc:          sig_F32_F32,
	OpcodeF32Nearest:        sig_F32_F32,
	OpcodeF32Sqrt:           sig_F32_F32,
	OpcodeF32Eq:             sig_F32F32_I32,
	OpcodeF32Ne:             sig_F32F32_I32,
	OpcodeF32Lt:             sig_F32F32_I32,
	OpcodeF32Le:             sig_F32F32_I32,
	OpcodeF32Gt:             sig_F32F32_I32,
	OpcodeF32Ge:             sig_F32F32_I32,
	OpcodeF64Add:            sig_F64F64_F64,
	OpcodeF64Sub:            sig_F64F64_F64,
	OpcodeF64Mul:            sig_F64F64_F64,
	OpcodeF64Div:            sig_F64F64_F64,
	OpcodeF64Min:            sig_F64F64_F64,
	OpcodeF64Max:            sig_F64F64_F64,
	OpcodeF64Abs:            sig_F64_F64,
	OpcodeF64Neg:            sig_F64_F64,
	OpcodeF64Copysign:       sig_F64F64_F64,
	OpcodeF64Ceil:           sig_F64_F64,
	OpcodeF64Floor:          sig_F64_F64,
	OpcodeF64Trunc:          sig_F64_F64,
	OpcodeF64Nearest:        sig_F64_F64,
	OpcodeF64Sqrt:           sig_F64_F64,
	OpcodeF64Eq:             sig_F64F64_I32,
	OpcodeF64Ne:             sig_F64F64_I32,
	OpcodeF64Lt:             sig_F64F64_I32,
	OpcodeF64Le:             sig_F64F64_I32,
	OpcodeF64Gt:             sig_F64F64_I32,
	OpcodeF64Ge:             sig_F64F64_I32,
	OpcodeI32TruncSF32:      sig_F32_I32,
	OpcodeI32TruncSF64:      sig_F64_I32,
	OpcodeI32TruncUF32:      sig_F32_I32,
	OpcodeI32TruncUF64:      sig_F64_I32,
	OpcodeI32WrapI64:        sig_I64_I32,
	OpcodeI64TruncSF32:      sig_F32_I64,
	OpcodeI64TruncSF64:      sig_F64_I64,
	OpcodeI64TruncUF32:      sig_F32_I64,
	OpcodeI64TruncUF64:      sig_F64_I64,
	OpcodeI64ExtendSI32:     sig_I32_I64,
	OpcodeI64ExtendUI32:     sig_I32_I64,
	OpcodeF32ConvertSI32:    sig_I32_F32,
	OpcodeF32ConvertUI32:    sig_I32_F32,
	OpcodeF32ConvertSI64:    sig_I64_F32,
	OpcodeF32ConvertUI64:    sig_I64_F32,
	OpcodeF32DemoteF64:      sig_F64_F32,
	OpcodeF32ReinterpretI32: sig_I32_F32,
	OpcodeF64ConvertSI32:    sig_I32_F64,
	OpcodeF64ConvertUI32:    sig_I32_F64,
	OpcodeF64ConvertSI64:    sig_I64_F64,
	OpcodeF64ConvertUI64:    sig_I64_F64,
	OpcodeF64PromoteF32:     sig_F32_F64,
	OpcodeF64ReinterpretI64: sig_I64_F64,
	OpcodeI32ReinterpretF32: sig_F32_I32,
	OpcodeI64ReinterpretF64: sig_F64_I64,
	OpcodeI32Ror:            sig_I32I32_I32,
	OpcodeI32Rol:            sig_I32I32_I32,
	OpcodeI64Ror:            sig_I64I64_I64,
	OpcodeI64Rol:            sig_I64I64_I64,
	OpcodeI64Eqz:            sig_I64_I32,
}

// SimpleOpcodeSignature returns the fixed signature of a numeric opcode, or nil if the opcode has immediates or
// special typing rules.
func SimpleOpcodeSignature(oc Opcode) *FunctionType {
	return simpleSignatures[oc]
}

// MemoryAccess describes a load or store opcode.
type MemoryAccess struct {
	// Type is the value type loaded, or stored.
	Type ValueType
	// Size is the count of bytes accessed in memory, which may be narrower than Type.
	Size uint32
	// Signed is true when a narrow load sign-extends.
	Signed bool
	Store  bool
}

// MaxAlignment is the largest valid alignment exponent, i.e. the natural alignment of the access.
func (a MemoryAccess) MaxAlignment() uint32 {
	switch a.Size {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	}
	return 3
}

var memoryAccesses = map[Opcode]MemoryAccess{
	OpcodeI32Load8S:  {Type: ValueTypeI32, Size: 1, Signed: true},
	OpcodeI32Load8U:  {Type: ValueTypeI32, Size: 1},
	OpcodeI32Load16S: {Type: ValueTypeI32, Size: 2, Signed: true},
	OpcodeI32Load16U: {Type: ValueTypeI32, Size: 2},
	OpcodeI64Load8S:  {Type: ValueTypeI64, Size: 1, Signed: true},
	OpcodeI64Load8U:  {Type: ValueTypeI64, Size: 1},
	OpcodeI64Load16S: {Type: ValueTypeI64, Size: 2, Signed: true},
	OpcodeI64Load16U: {Type: ValueTypeI64, Size: 2},
	OpcodeI64Load32S: {Type: ValueTypeI64, Size: 4, Signed: true},
	OpcodeI64Load32U: {Type: ValueTypeI64, Size: 4},
	OpcodeI32Load:    {Type: ValueTypeI32, Size: 4},
	OpcodeI64Load:    {Type: ValueTypeI64, Size: 8},
	OpcodeF32Load:    {Type: ValueTypeF32, Size: 4},
	OpcodeF64Load:    {Type: ValueTypeF64, Size: 8},
	OpcodeI32Store8:  {Type: ValueTypeI32, Size: 1, Store: true},
	OpcodeI32Store16: {Type: ValueTypeI32, Size: 2, Store: true},
	OpcodeI64Store8:  {Type: ValueTypeI64, Size: 1, Store: true},
	OpcodeI64Store16: {Type: ValueTypeI64, Size: 2, Store: true},
	OpcodeI64Store32: {Type: ValueTypeI64, Size: 4, Store: true},
	OpcodeI32Store:   {Type: ValueTypeI32, Size: 4, Store: true},
	OpcodeI64Store:   {Type: ValueTypeI64, Size: 8, Store: true},
	OpcodeF32Store:   {Type: ValueTypeF32, Size: 4, Store: true},
	OpcodeF64Store:   {Type: ValueTypeF64, Size: 8, Store: true},
}

// MemoryAccessOf returns the access performed by a load or store opcode.
func MemoryAccessOf(oc Opcode) (MemoryAccess, bool) {
	a, ok := memoryAccesses[oc]
	return a, ok
}
