package ast

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/wasmengine/internal/wasm"
)

var (
	i32, i64, f32, f64 = wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64
	v_v                = &wasm.FunctionType{}
	v_i32              = &wasm.FunctionType{Results: []wasm.ValueType{i32}}
	v_i64              = &wasm.FunctionType{Results: []wasm.ValueType{i64}}
	v_f64              = &wasm.FunctionType{Results: []wasm.ValueType{f64}}
	i32_i32            = &wasm.FunctionType{Params: []wasm.ValueType{i32}, Results: []wasm.ValueType{i32}}
	i32i32_i32         = &wasm.FunctionType{Params: []wasm.ValueType{i32, i32}, Results: []wasm.ValueType{i32}}
)

// testModule has two functions, a table, a memory and two globals: a mutable i32 and an immutable i64.
func testModule() *wasm.Module {
	return &wasm.Module{
		Signatures: []*wasm.FunctionType{v_v, i32_i32},
		Functions:  []*wasm.Function{{Type: v_v}, {TypeIndex: 1, Type: i32_i32}},
		Tables:     []*wasm.Table{{Min: 1, Max: 1}},
		Memory:     &wasm.Memory{Min: 1, Max: 1},
		Globals: []*wasm.Global{
			{Type: &wasm.GlobalType{ValType: i32, Mutable: true}},
			{Type: &wasm.GlobalType{ValType: i64}},
		},
	}
}

func testBody(sig *wasm.FunctionType, locals []wasm.ValueType, code ...byte) *FunctionBody {
	return &FunctionBody{Module: testModule(), Signature: sig, Locals: locals, Code: code}
}

func TestDecodeFunctionBody(t *testing.T) {
	tests := []struct {
		name         string
		sig          *wasm.FunctionType
		locals       []wasm.ValueType
		code         []byte
		expectedLast string
		expectedType wasm.ValueType
	}{
		{
			name:         "add",
			sig:          i32i32_i32,
			code:         []byte{wasm.OpcodeReturn, wasm.OpcodeI32Add, wasm.OpcodeGetLocal, 0, wasm.OpcodeGetLocal, 1},
			expectedLast: "(return (i32.add (get_local) (get_local)))",
			expectedType: TypeUnreachable,
		},
		{
			name:         "implicit return",
			sig:          i32i32_i32,
			code:         []byte{wasm.OpcodeI32Add, wasm.OpcodeGetLocal, 0, wasm.OpcodeGetLocal, 1},
			expectedLast: "(i32.add (get_local) (get_local))",
			expectedType: i32,
		},
		{
			name:         "block falls through",
			sig:          v_i32,
			code:         []byte{wasm.OpcodeBlock, 2, wasm.OpcodeNop, wasm.OpcodeI8Const, 5},
			expectedLast: "(block (nop) (i8.const))",
			expectedType: i32,
		},
		{
			name: "br carries value",
			sig:  v_i32,
			code: []byte{
				wasm.OpcodeBlock, 2,
				wasm.OpcodeBr, 0, wasm.OpcodeI8Const, 1,
				wasm.OpcodeI8Const, 2,
			},
			expectedLast: "(block (br (i8.const)) (i8.const))",
			expectedType: i32,
		},
		{
			name:         "infinite loop satisfies any result",
			sig:          v_i32,
			code:         []byte{wasm.OpcodeLoop, 1, wasm.OpcodeBr, 0, wasm.OpcodeNop},
			expectedLast: "(loop (br (nop)))",
			expectedType: TypeUnreachable,
		},
		{
			name:         "break out of loop",
			sig:          v_i32,
			code:         []byte{wasm.OpcodeLoop, 1, wasm.OpcodeBr, 1, wasm.OpcodeI8Const, 3},
			expectedLast: "(loop (br (i8.const)))",
			expectedType: i32,
		},
		{
			name: "if_else",
			sig:  i32_i32,
			code: []byte{
				wasm.OpcodeIfElse, wasm.OpcodeGetLocal, 0,
				wasm.OpcodeI8Const, 1,
				wasm.OpcodeI8Const, 2,
			},
			expectedLast: "(if_else (get_local) (i8.const) (i8.const))",
			expectedType: i32,
		},
		{
			name: "if_else with one dead branch",
			sig:  i32_i32,
			code: []byte{
				wasm.OpcodeIfElse, wasm.OpcodeGetLocal, 0,
				wasm.OpcodeUnreachable,
				wasm.OpcodeI8Const, 2,
			},
			expectedLast: "(if_else (get_local) (unreachable) (i8.const))",
			expectedType: i32,
		},
		{
			name:         "if",
			sig:          v_v,
			locals:       []wasm.ValueType{i32},
			code:         []byte{wasm.OpcodeIf, wasm.OpcodeGetLocal, 0, wasm.OpcodeSetLocal, 0, wasm.OpcodeI8Const, 1},
			expectedLast: "(if (get_local) (set_local (i8.const)))",
			expectedType: TypeVoid,
		},
		{
			name: "br_if",
			sig:  i32_i32,
			code: []byte{
				wasm.OpcodeBlock, 2,
				wasm.OpcodeBrIf, 0, wasm.OpcodeI8Const, 1, wasm.OpcodeGetLocal, 0,
				wasm.OpcodeI8Const, 2,
			},
			expectedLast: "(block (br_if (i8.const) (get_local)) (i8.const))",
			expectedType: i32,
		},
		{
			name: "br_table",
			sig:  i32_i32,
			code: []byte{
				wasm.OpcodeBlock, 1,
				wasm.OpcodeBrTable, 1, 0, 0, 0, 0, 0, 0, 0, 0,
				wasm.OpcodeI8Const, 7, wasm.OpcodeGetLocal, 0,
			},
			expectedLast: "(block (br_table (i8.const) (get_local)))",
			expectedType: i32,
		},
		{
			name:         "select",
			sig:          i32_i32,
			code:         []byte{wasm.OpcodeSelect, wasm.OpcodeI8Const, 1, wasm.OpcodeI8Const, 2, wasm.OpcodeGetLocal, 0},
			expectedLast: "(select (i8.const) (i8.const) (get_local))",
			expectedType: i32,
		},
		{
			name: "load and store",
			sig:  i32_i32,
			code: []byte{
				wasm.OpcodeI32Store, 2, 0, wasm.OpcodeGetLocal, 0,
				wasm.OpcodeI32Load, 2, 4, wasm.OpcodeGetLocal, 0,
			},
			expectedLast: "(i32.store (get_local) (i32.load (get_local)))",
			expectedType: i32,
		},
		{
			name:         "narrow store of i64",
			sig:          v_i64,
			code:         []byte{wasm.OpcodeI64Store8, 0, 0, wasm.OpcodeI8Const, 0, wasm.OpcodeI64Const, 1},
			expectedLast: "(i64.store8 (i8.const) (i64.const))",
			expectedType: i64,
		},
		{
			name:         "globals",
			sig:          v_i64,
			code:         []byte{wasm.OpcodeSetGlobal, 0, wasm.OpcodeI8Const, 1, wasm.OpcodeGetGlobal, 1},
			expectedLast: "(get_global)",
			expectedType: i64,
		},
		{
			name:         "call",
			sig:          v_i32,
			code:         []byte{wasm.OpcodeCallFunction, 0, wasm.OpcodeCallFunction, 1, wasm.OpcodeI8Const, 1},
			expectedLast: "(call_function (i8.const))",
			expectedType: i32,
		},
		{
			name:         "call_indirect",
			sig:          v_i32,
			code:         []byte{wasm.OpcodeCallIndirect, 1, wasm.OpcodeI8Const, 0, wasm.OpcodeI8Const, 1},
			expectedLast: "(call_indirect (i8.const) (i8.const))",
			expectedType: i32,
		},
		{
			name:         "grow memory",
			sig:          v_i32,
			code:         []byte{wasm.OpcodeGrowMemory, wasm.OpcodeMemorySize},
			expectedLast: "(grow_memory (memory_size))",
			expectedType: i32,
		},
		{
			name:         "unreachable satisfies any result",
			sig:          v_i64,
			code:         []byte{wasm.OpcodeUnreachable},
			expectedLast: "(unreachable)",
			expectedType: TypeUnreachable,
		},
		{
			name:         "conversion",
			sig:          v_f64,
			code:         []byte{wasm.OpcodeF64PromoteF32, wasm.OpcodeF32Const, 0, 0, 0x80, 0x3f},
			expectedLast: "(f64.promote/f32 (f32.const))",
			expectedType: f64,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			res, err := DecodeFunctionBody(testBody(tc.sig, tc.locals, tc.code...), nil, Options{})
			require.NoError(t, err)
			last := res.Trees[len(res.Trees)-1]
			require.Equal(t, tc.expectedLast, last.String())
			require.Equal(t, TypeName(tc.expectedType), TypeName(last.Type))
			require.Equal(t, resultType(tc.sig), res.ReturnType)
		})
	}
}

func TestDecodeFunctionBody_Empty(t *testing.T) {
	res, err := DecodeFunctionBody(testBody(v_v, nil), nil, Options{})
	require.NoError(t, err)
	require.Zero(t, len(res.Trees))
	require.Zero(t, res.OpcodeCount)
}

func TestDecodeFunctionBody_Stats(t *testing.T) {
	res, err := DecodeFunctionBody(testBody(i32i32_i32, nil,
		wasm.OpcodeReturn, wasm.OpcodeI32Add, wasm.OpcodeGetLocal, 0, wasm.OpcodeGetLocal, 1), nil, Options{})
	require.NoError(t, err)
	require.Equal(t, 4, res.OpcodeCount)
	require.Equal(t, 2, res.MaxStackDepth)
}

func TestDecodeFunctionBody_Errors(t *testing.T) {
	tests := []struct {
		name        string
		sig         *wasm.FunctionType
		locals      []wasm.ValueType
		code        []byte
		expectedErr string
	}{
		{
			name:        "type mismatch",
			sig:         v_i32,
			code:        []byte{wasm.OpcodeI32Add, wasm.OpcodeI64Const, 1, wasm.OpcodeI8Const, 1},
			expectedErr: "invalid function $0 @+0 (i32.add): i32.add[0] expected type i32, found i64.const of type i64",
		},
		{
			name:        "br outside any block",
			sig:         v_v,
			code:        []byte{wasm.OpcodeBr, 0, wasm.OpcodeNop},
			expectedErr: "invalid function $0 @+0 (br): invalid break depth 0: nesting is 0",
		},
		{
			name:        "br depth equals nesting",
			sig:         v_v,
			code:        []byte{wasm.OpcodeBlock, 1, wasm.OpcodeBr, 1, wasm.OpcodeNop},
			expectedErr: "invalid function $0 @+2 (br): invalid break depth 1: nesting is 1",
		},
		{
			name:        "br_if beyond loop",
			sig:         v_v,
			code:        []byte{wasm.OpcodeLoop, 1, wasm.OpcodeBrIf, 2, wasm.OpcodeNop, wasm.OpcodeI8Const, 0},
			expectedErr: "invalid function $0 @+2 (br_if): invalid break depth 2: nesting is 2",
		},
		{
			name: "br_table entry",
			sig:  v_v,
			code: []byte{
				wasm.OpcodeBlock, 1,
				wasm.OpcodeBrTable, 0, 1, 0, 0, 0, wasm.OpcodeNop, wasm.OpcodeI8Const, 0,
			},
			expectedErr: "invalid function $0 @+2 (br_table): invalid branch table entry 0: depth 1, nesting is 1",
		},
		{
			name:        "truncated block arity",
			sig:         v_v,
			code:        []byte{wasm.OpcodeNop, wasm.OpcodeBlock, 0x80},
			expectedErr: "decode error in function $0 @+1: beyond end of code: expected block arity",
		},
		{
			name:        "block arity exceeds code",
			sig:         v_v,
			code:        []byte{wasm.OpcodeBlock, 5, wasm.OpcodeNop},
			expectedErr: "decode error in function $0 @+0: block arity 5 exceeds the 1 remaining bytes",
		},
		{
			name:        "truncated branch table",
			sig:         v_v,
			code:        []byte{wasm.OpcodeBlock, 1, wasm.OpcodeBrTable, 1, 0, 0, 0, 0, 0},
			expectedErr: "decode error in function $0 @+2: beyond end of code: branch table: expected 8 bytes, fell off end",
		},
		{
			name:        "truncated f64",
			sig:         v_f64,
			code:        []byte{wasm.OpcodeF64Const, 0, 0},
			expectedErr: "decode error in function $0 @+0: beyond end of code: f64 immediate: expected 8 bytes, fell off end",
		},
		{
			name:        "unterminated",
			sig:         i32_i32,
			code:        []byte{wasm.OpcodeI32Add, wasm.OpcodeGetLocal, 0},
			expectedErr: "decode error in function $0 @+0: unterminated control structure: i32.add has 1 of 2 children",
		},
		{
			name:        "invalid opcode",
			sig:         v_v,
			code:        []byte{wasm.OpcodeEnd},
			expectedErr: "decode error in function $0 @+0: invalid opcode 0x16",
		},
		{
			name:        "invalid local",
			sig:         v_i32,
			code:        []byte{wasm.OpcodeGetLocal, 5},
			expectedErr: "invalid function $0 @+0 (get_local): invalid local index 5",
		},
		{
			name:        "set_local type",
			sig:         v_v,
			locals:      []wasm.ValueType{f32},
			code:        []byte{wasm.OpcodeSetLocal, 0, wasm.OpcodeI8Const, 1},
			expectedErr: "invalid function $0 @+0 (set_local): set_local[0] expected type f32, found i8.const of type i32",
		},
		{
			name:        "invalid global",
			sig:         v_v,
			code:        []byte{wasm.OpcodeGetGlobal, 2},
			expectedErr: "invalid function $0 @+0 (get_global): invalid global index 2",
		},
		{
			name:        "immutable global",
			sig:         v_v,
			code:        []byte{wasm.OpcodeSetGlobal, 1, wasm.OpcodeI64Const, 0},
			expectedErr: "invalid function $0 @+0 (set_global): global 1 is immutable",
		},
		{
			name:        "alignment",
			sig:         v_i32,
			code:        []byte{wasm.OpcodeI32Load, 3, 0, wasm.OpcodeI8Const, 0},
			expectedErr: "invalid function $0 @+0 (i32.load): alignment 3 exceeds natural alignment 2",
		},
		{
			name:        "store value type",
			sig:         v_v,
			code:        []byte{wasm.OpcodeF32Store, 2, 0, wasm.OpcodeI8Const, 0, wasm.OpcodeI8Const, 0},
			expectedErr: "invalid function $0 @+0 (f32.store): f32.store[1] expected type f32, found i8.const of type i32",
		},
		{
			name:        "missing implicit return",
			sig:         v_i32,
			expectedErr: "invalid function $0 @+0 (return): implicit return expects 1 value, found none",
		},
		{
			name:        "implicit return type",
			sig:         v_i32,
			code:        []byte{wasm.OpcodeI64Const, 1},
			expectedErr: "invalid function $0 @+0 (return): implicit return expected type i32, found i64.const of type i64",
		},
		{
			name: "if_else values disagree",
			sig:  i32_i32,
			code: []byte{
				wasm.OpcodeIfElse, wasm.OpcodeGetLocal, 0,
				wasm.OpcodeI8Const, 1,
				wasm.OpcodeI64Const, 2,
			},
			expectedErr: "invalid function $0 @+0 (return): implicit return expected type i32, found if_else of type void",
		},
		{
			name:        "select operand",
			sig:         v_v,
			code:        []byte{wasm.OpcodeSelect, wasm.OpcodeNop, wasm.OpcodeNop, wasm.OpcodeNop},
			expectedErr: "invalid function $0 @+0 (select): select operand should be expression",
		},
		{
			name:        "select operands disagree",
			sig:         v_v,
			code:        []byte{wasm.OpcodeSelect, wasm.OpcodeI8Const, 0, wasm.OpcodeI64Const, 0, wasm.OpcodeI8Const, 0},
			expectedErr: "invalid function $0 @+0 (select): select[1] expected type i32, found i64.const of type i64",
		},
		{
			name:        "if condition",
			sig:         v_v,
			code:        []byte{wasm.OpcodeIf, wasm.OpcodeI64Const, 0, wasm.OpcodeNop},
			expectedErr: "invalid function $0 @+0 (if): if[0] expected type i32, found i64.const of type i64",
		},
		{
			name:        "return type",
			sig:         i32_i32,
			code:        []byte{wasm.OpcodeReturn, wasm.OpcodeF32Const, 0, 0, 0, 0},
			expectedErr: "invalid function $0 @+0 (return): return[0] expected type i32, found f32.const of type f32",
		},
		{
			name:        "call argument",
			sig:         v_v,
			code:        []byte{wasm.OpcodeCallFunction, 1, wasm.OpcodeI64Const, 0},
			expectedErr: "invalid function $0 @+0 (call_function): call_function[0] expected type i32, found i64.const of type i64",
		},
		{
			name:        "call_indirect key",
			sig:         v_v,
			code:        []byte{wasm.OpcodeCallIndirect, 0, wasm.OpcodeI64Const, 0},
			expectedErr: "invalid function $0 @+0 (call_indirect): call_indirect[0] expected type i32, found i64.const of type i64",
		},
		{
			name:        "invalid function",
			sig:         v_v,
			code:        []byte{wasm.OpcodeCallFunction, 9},
			expectedErr: "invalid function $0 @+0 (call_function): invalid function index 9",
		},
		{
			name:        "invalid signature",
			sig:         v_v,
			code:        []byte{wasm.OpcodeCallIndirect, 9},
			expectedErr: "invalid function $0 @+0 (call_indirect): invalid signature index 9",
		},
		{
			name: "first error wins",
			sig:  v_v,
			code: []byte{
				wasm.OpcodeNop,
				wasm.OpcodeGetLocal, 3,
				wasm.OpcodeGetGlobal, 9,
			},
			expectedErr: "invalid function $0 @+1 (get_local): invalid local index 3",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeFunctionBody(testBody(tc.sig, tc.locals, tc.code...), nil, Options{})
			require.EqualError(t, err, tc.expectedErr)
		})
	}
}

func TestDecodeFunctionBody_ErrorTypes(t *testing.T) {
	body := testBody(v_v, nil, wasm.OpcodeNop, wasm.OpcodeBlock)
	body.Offset = 100
	body.Index = 3
	_, err := DecodeFunctionBody(body, nil, Options{})
	var de *wasm.DecodeError
	require.True(t, errors.As(err, &de))
	require.Equal(t, 101, de.Offset)
	require.Equal(t, "function $3", de.Context)

	body = testBody(v_i32, nil, wasm.OpcodeNop, wasm.OpcodeI32Eqz, wasm.OpcodeF32Const, 0, 0, 0, 0)
	body.Offset = 100
	body.Index = 3
	_, err = DecodeFunctionBody(body, nil, Options{})
	var ve *wasm.ValidationError
	require.True(t, errors.As(err, &ve))
	require.Equal(t, &wasm.ValidationError{
		Function: 3,
		Offset:   101,
		Opcode:   wasm.OpcodeI32Eqz,
		Expected: "i32",
		Found:    "f32",
		Msg:      "i32.eqz[0] expected type i32, found f32.const of type f32",
	}, ve)
}

func TestDecodeFunctionBody_ModuleRequirements(t *testing.T) {
	tests := []struct {
		name        string
		code        []byte
		expectedErr string
	}{
		{
			name:        "load",
			code:        []byte{wasm.OpcodeI32Load, 0, 0, wasm.OpcodeI8Const, 0},
			expectedErr: "invalid function $0 @+0 (i32.load): memory instruction requires a memory",
		},
		{
			name:        "memory_size",
			code:        []byte{wasm.OpcodeMemorySize},
			expectedErr: "invalid function $0 @+0 (memory_size): memory instruction requires a memory",
		},
		{
			name:        "grow_memory",
			code:        []byte{wasm.OpcodeGrowMemory, wasm.OpcodeI8Const, 1},
			expectedErr: "invalid function $0 @+0 (grow_memory): memory instruction requires a memory",
		},
		{
			name:        "call_indirect",
			code:        []byte{wasm.OpcodeCallIndirect, 0, wasm.OpcodeI8Const, 0},
			expectedErr: "invalid function $0 @+0 (call_indirect): call_indirect requires a table",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			body := &FunctionBody{Signature: v_v, Code: tc.code} // nil Module
			_, err := DecodeFunctionBody(body, nil, Options{})
			require.EqualError(t, err, tc.expectedErr)
		})
	}
}

func TestDecodeFunctionBody_MaxLocals(t *testing.T) {
	body := testBody(i32_i32, []wasm.ValueType{i32, i32}, wasm.OpcodeGetLocal, 0)

	_, err := DecodeFunctionBody(body, nil, Options{MaxLocals: 2})
	require.EqualError(t, err, "decode error in function $0 @+0: 3 locals exceed the maximum of 2")

	_, err = DecodeFunctionBody(body, nil, Options{MaxLocals: 3})
	require.NoError(t, err)
}

func TestDecodeFunctionBody_InvalidLocalType(t *testing.T) {
	_, err := DecodeFunctionBody(testBody(v_v, []wasm.ValueType{0x7f}), nil, Options{})
	require.EqualError(t, err, "decode error in function $0 @+0: invalid type 0x7f of local 0")
}

// TestDecodeFunctionBody_BranchDepth checks that depth zero targets the innermost block and any depth at or beyond
// the nesting is rejected.
func TestDecodeFunctionBody_BranchDepth(t *testing.T) {
	for nesting := 0; nesting < 4; nesting++ {
		for depth := 0; depth < 6; depth++ {
			// nesting blocks of one child each, around "br depth (i8.const)".
			var code []byte
			for i := 0; i < nesting; i++ {
				code = append(code, wasm.OpcodeBlock, 1)
			}
			code = append(code, wasm.OpcodeBr, byte(depth), wasm.OpcodeI8Const, 1)

			_, err := DecodeFunctionBody(testBody(v_v, nil, code...), nil, Options{})
			if depth < nesting {
				require.NoError(t, err, "nesting=%d depth=%d", nesting, depth)
			} else {
				var ve *wasm.ValidationError
				require.True(t, errors.As(err, &ve), "nesting=%d depth=%d", nesting, depth)
				require.Equal(t, 2*nesting, ve.Offset)
			}
		}
	}

	// The value of a br to depth zero is the value of the innermost block.
	res, err := DecodeFunctionBody(testBody(v_v, nil,
		wasm.OpcodeBlock, 2,
		wasm.OpcodeBlock, 1, wasm.OpcodeBr, 0, wasm.OpcodeI64Const, 1,
		wasm.OpcodeI8Const, 2,
	), nil, Options{})
	require.NoError(t, err)
	outer := res.Trees[0]
	require.Equal(t, i32, outer.Type)
	require.Equal(t, i64, outer.Children[0].Type)
}

func TestDecodeFunctionBody_Deterministic(t *testing.T) {
	code := []byte{
		wasm.OpcodeBlock, 2,
		wasm.OpcodeBrIf, 0, wasm.OpcodeI8Const, 1, wasm.OpcodeGetLocal, 0,
		wasm.OpcodeI32Add, wasm.OpcodeGetLocal, 0, wasm.OpcodeF32Const, 0, 0, 0, 0,
	}
	_, err1 := DecodeFunctionBody(testBody(i32_i32, nil, code...), nil, Options{})
	_, err2 := DecodeFunctionBody(testBody(i32_i32, nil, code...), nil, Options{})
	require.Error(t, err1)
	require.Equal(t, err1, err2)
}

func TestTree_String(t *testing.T) {
	tree := &Tree{Opcode: wasm.OpcodeI32Add, Children: []*Tree{{Opcode: wasm.OpcodeGetLocal}, nil}}
	require.Equal(t, "(i32.add (get_local) <nil>)", tree.String())

	require.Equal(t, "(0xff)", (&Tree{Opcode: 0xff}).String())
}

func TestTypeName(t *testing.T) {
	require.Equal(t, "void", TypeName(TypeVoid))
	require.Equal(t, "unreachable", TypeName(TypeUnreachable))
	require.Equal(t, "f64", TypeName(f64))
}

func TestNewFunctionBody(t *testing.T) {
	m := testModule()
	m.Functions[1].LocalTypes = []wasm.ValueType{i64}
	m.Functions[1].Body = []byte{wasm.OpcodeGetLocal, 0}
	m.Functions[1].BodyOffset = 42

	body := NewFunctionBody(m, 1)
	require.Equal(t, &FunctionBody{
		Module:    m,
		Index:     1,
		Signature: i32_i32,
		Locals:    []wasm.ValueType{i64},
		Code:      []byte{wasm.OpcodeGetLocal, 0},
		Offset:    42,
	}, body)
	require.Equal(t, []wasm.ValueType{i32, i64}, body.localTypes())
}

func TestValidateFunction(t *testing.T) {
	m := testModule()
	m.Functions[1].Body = []byte{wasm.OpcodeGetLocal, 0}
	require.NoError(t, ValidateFunction(m, 1))

	m.Functions[1].Body = []byte{wasm.OpcodeI64Const, 1}
	m.Functions[1].BodyOffset = 10
	require.EqualError(t, ValidateFunction(m, 1),
		"invalid function $1 @+10 (return): implicit return expected type i32, found i64.const of type i64")
}
