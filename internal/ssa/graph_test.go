package ssa

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/wasmengine/internal/ast"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

var (
	v_v        = &wasm.FunctionType{}
	i32_i32    = &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
	i32i32_i32 = &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
)

func build(t *testing.T, body *ast.FunctionBody) *Graph {
	if body.Module == nil {
		body.Module = &wasm.Module{
			Signatures: []*wasm.FunctionType{v_v, i32_i32},
			Functions:  []*wasm.Function{{Type: v_v}, {TypeIndex: 1, Type: i32_i32}},
			Tables:     []*wasm.Table{{Min: 1}},
			Memory:     &wasm.Memory{Min: 1},
		}
	}
	g := NewBuilder(body.Signature)
	_, err := ast.DecodeFunctionBody(body, g, ast.Options{})
	require.NoError(t, err)
	return g
}

func TestGraph_Format(t *testing.T) {
	tests := []struct {
		name     string
		body     *ast.FunctionBody
		expected string
	}{
		{
			name: "add",
			body: &ast.FunctionBody{
				Signature: i32i32_i32,
				Code:      []byte{wasm.OpcodeReturn, wasm.OpcodeI32Add, wasm.OpcodeGetLocal, 0, wasm.OpcodeGetLocal, 1},
			},
			expected: `#1 = Start 2
#2 = Param:i32 0 #1
#3 = Param:i32 1 #1
#4 = Binop:i32 i32.add #2 #3 @+1
#5 = Return #4 #1 #1
`,
		},
		{
			name: "load",
			body: &ast.FunctionBody{
				Signature: i32_i32,
				Code:      []byte{wasm.OpcodeI32Load, 2, 8, wasm.OpcodeGetLocal, 0},
			},
			expected: `#1 = Start 1
#2 = Param:i32 0 #1
#3 = MemoryBase:i64
#4 = MemorySize:i32
#5 = LoadMem:i32 size=4 offset=8 #3 #4 #2 #1 #1 @+0
#6 = Return #5 #5 #1
`,
		},
		{
			name: "calls",
			body: &ast.FunctionBody{
				Signature: v_v,
				Code: []byte{
					wasm.OpcodeCallFunction, 1, wasm.OpcodeI8Const, 5,
					wasm.OpcodeCallIndirect, 0, wasm.OpcodeI8Const, 0,
				},
			},
			expected: `#1 = Start 0
#2 = Int32Constant:i32 5
#3 = Call:i32 1 #2 #1 #1 @+0
#4 = Int32Constant:i32 0
#5 = CallIndirect 0 #4 #3 #3 @+4
#6 = Return #5 #5
`,
		},
		{
			name: "loop back edge",
			body: &ast.FunctionBody{
				Signature: v_v,
				Locals:    []wasm.ValueType{wasm.ValueTypeI32},
				Code: []byte{
					wasm.OpcodeLoop, 1,
					wasm.OpcodeBr, 0,
					wasm.OpcodeSetLocal, 0, wasm.OpcodeI32Add, wasm.OpcodeGetLocal, 0, wasm.OpcodeI8Const, 1,
				},
			},
			expected: `#1 = Start 0
#2 = Int32Constant:i32 0
#3 = Loop #1 #3
#4 = EffectPhi #1 #4 #3
#5 = Terminate #4 #3
#6 = Phi:i32 #2 #8 #3
#7 = Int32Constant:i32 1
#8 = Binop:i32 i32.add #6 #7 @+6
`,
		},
		{
			name: "if_else joins values",
			body: &ast.FunctionBody{
				Signature: i32_i32,
				Code: []byte{
					wasm.OpcodeIfElse, wasm.OpcodeGetLocal, 0,
					wasm.OpcodeI8Const, 1,
					wasm.OpcodeI8Const, 2,
				},
			},
			expected: `#1 = Start 1
#2 = Param:i32 0 #1
#3 = Branch #2 #1
#4 = IfTrue #3
#5 = IfFalse #3
#6 = Int32Constant:i32 1
#7 = Int32Constant:i32 2
#8 = Merge #4 #5
#9 = Phi:i32 #6 #7 #8
#10 = Return #9 #1 #8
`,
		},
		{
			name: "unreachable",
			body: &ast.FunctionBody{
				Signature: v_v,
				Code:      []byte{wasm.OpcodeNop, wasm.OpcodeUnreachable},
			},
			expected: `#1 = Start 0
#2 = Unreachable #1 #1 @+1
`,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			g := build(t, tc.body)
			require.Equal(t, tc.expected, g.Format())
		})
	}
}

func TestGraph_MemoryReferences(t *testing.T) {
	g := build(t, &ast.FunctionBody{
		Signature: i32_i32,
		Code: []byte{
			wasm.OpcodeI32Store, 2, 0, wasm.OpcodeGetLocal, 0,
			wasm.OpcodeGrowMemory, wasm.OpcodeMemorySize,
		},
	})

	var kinds []string
	for _, ref := range g.MemoryReferences {
		n := g.Node(ref.Node)
		switch ref.Kind {
		case MemoryReferenceBase:
			require.Equal(t, OpMemoryBase, n.Op)
		case MemoryReferenceSize:
			require.Equal(t, OpMemorySize, n.Op)
		}
		kinds = append(kinds, ref.Kind.String())
	}
	// memory_size is decoded before the store reduces.
	require.Equal(t, []string{"size", "base", "size"}, kinds)
}

func TestGraph_CallSites(t *testing.T) {
	g := build(t, &ast.FunctionBody{
		Signature: v_v,
		Code: []byte{
			wasm.OpcodeCallFunction, 0,
			wasm.OpcodeCallIndirect, 1, wasm.OpcodeI8Const, 0, wasm.OpcodeI8Const, 7,
			wasm.OpcodeCallFunction, 1, wasm.OpcodeI8Const, 3,
		},
	})

	require.Equal(t, 3, len(g.CallSites))
	require.Equal(t, CallSite{Node: g.CallSites[0].Node, Target: 0}, g.CallSites[0])
	require.Equal(t, CallSite{Node: g.CallSites[1].Node, Target: 1, Indirect: true}, g.CallSites[1])
	require.Equal(t, CallSite{Node: g.CallSites[2].Node, Target: 1}, g.CallSites[2])
	require.Equal(t, OpCall, g.Node(g.CallSites[0].Node).Op)
	require.Equal(t, OpCallIndirect, g.Node(g.CallSites[1].Node).Op)
	require.Equal(t, 2, g.Node(g.CallSites[1].Node).Offset)
}

func TestGraph_Exits(t *testing.T) {
	g := build(t, &ast.FunctionBody{
		Signature: i32_i32,
		Code: []byte{
			wasm.OpcodeIf, wasm.OpcodeGetLocal, 0, wasm.OpcodeReturn, wasm.OpcodeI8Const, 1,
			wasm.OpcodeI8Const, 2,
		},
	})

	var ops []Op
	for _, e := range g.Exits() {
		ops = append(ops, g.Node(e).Op)
	}
	require.Equal(t, []Op{OpReturn, OpReturn}, ops)
}

func TestOp_String(t *testing.T) {
	require.Equal(t, "Phi", OpPhi.String())
	require.Equal(t, "Op(0)", Op(0).String())
	require.Equal(t, "Op(200)", Op(200).String())
}
