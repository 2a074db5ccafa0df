// Package ast decodes and validates function bodies.
//
// Bodies use a pre-order expression encoding: each opcode is followed by its immediates and then by its children.
// The decoder is a shift-reduce parser: an opcode with children is shifted as a pending production, and completes
// (reduces) into its parent once its last child completed. Every reduction is type-checked, and when a Builder is
// supplied it also emits graph nodes threaded through an SSA environment that tracks reachability, the control and
// effect chain, and the current value of each local.
package ast

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wasmengine/internal/wasm"
)

const (
	// TypeVoid is the type of expressions that produce no value, ex. nop or a store to a local of a void block.
	TypeVoid wasm.ValueType = 0
	// TypeUnreachable is the type of expressions that never complete, ex. br or return. It type-checks against any
	// expected type.
	TypeUnreachable wasm.ValueType = 0xff
)

// TypeName returns the name of a value type including the internal sentinels.
func TypeName(t wasm.ValueType) string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeUnreachable:
		return "unreachable"
	}
	return wasm.ValueTypeName(t)
}

// DefaultMaxLocals is the maximum count of parameters and locals a function may declare, unless overridden by
// Options.MaxLocals.
const DefaultMaxLocals = 50000

// Options configure DecodeFunctionBody.
type Options struct {
	// LoopAssignmentAnalysis narrows the phis created at loop headers to the locals assigned inside the loop.
	// It only affects the graph emitted to a Builder.
	LoopAssignmentAnalysis bool

	// MaxLocals is the maximum count of parameters and locals. Zero means DefaultMaxLocals.
	MaxLocals int
}

// FunctionBody is the input of DecodeFunctionBody.
type FunctionBody struct {
	// Module resolves function, signature, global, table and memory references. It may be nil when the body
	// doesn't reference any.
	Module *wasm.Module

	// Index is the position of the function in the function index space, used in errors.
	Index wasm.Index

	Signature *wasm.FunctionType

	// Locals are the declared locals, excluding parameters.
	Locals []wasm.ValueType

	// Code is the expression bytes.
	Code []byte

	// Offset is the absolute position of Code[0] in the module source.
	Offset int
}

// NewFunctionBody returns the body of the defined function at funcIdx.
func NewFunctionBody(m *wasm.Module, funcIdx wasm.Index) *FunctionBody {
	f := m.Functions[funcIdx]
	return &FunctionBody{
		Module:    m,
		Index:     funcIdx,
		Signature: f.Type,
		Locals:    f.LocalTypes,
		Code:      f.Body,
		Offset:    int(f.BodyOffset),
	}
}

// ValidateFunction decodes the defined function at funcIdx without a Builder. It is a binary.FunctionValidator.
func ValidateFunction(m *wasm.Module, funcIdx wasm.Index) error {
	_, err := DecodeFunctionBody(NewFunctionBody(m, funcIdx), nil, Options{})
	return err
}

// localTypes returns the types of parameters followed by declared locals.
func (b *FunctionBody) localTypes() []wasm.ValueType {
	ret := make([]wasm.ValueType, 0, len(b.Signature.Params)+len(b.Locals))
	ret = append(ret, b.Signature.Params...)
	return append(ret, b.Locals...)
}

// returnType is the single result type, or TypeVoid.
func (b *FunctionBody) returnType() wasm.ValueType {
	if len(b.Signature.Results) == 0 {
		return TypeVoid
	}
	return b.Signature.Results[0]
}

// Tree is a fully reduced expression.
type Tree struct {
	Opcode wasm.Opcode
	// Type is the result type. Blocks, loops and if_else have the type of the values reaching their end: the first
	// one that does, or TypeVoid when they disagree, or TypeUnreachable when none does.
	Type wasm.ValueType
	// Offset is the absolute position of Opcode in the module source.
	Offset int
	// Node is the value produced in the graph, or NoNode without a Builder or in unreachable code.
	Node     Node
	Children []*Tree
}

// String renders the tree as an s-expression. Ex. "(i32.add (get_local) (get_local))"
func (t *Tree) String() string {
	var sb strings.Builder
	t.format(&sb)
	return sb.String()
}

func (t *Tree) format(sb *strings.Builder) {
	sb.WriteByte('(')
	if name := wasm.InstructionName(t.Opcode); name != "" {
		sb.WriteString(name)
	} else {
		fmt.Fprintf(sb, "%#x", t.Opcode)
	}
	for _, c := range t.Children {
		sb.WriteByte(' ')
		if c == nil {
			sb.WriteString("<nil>")
			continue
		}
		c.format(sb)
	}
	sb.WriteByte(')')
}

// Result is the outcome of decoding a valid function body.
type Result struct {
	// Trees are the top-level expressions in order.
	Trees []*Tree

	// ReturnType is the type returned by the function, or TypeVoid.
	ReturnType wasm.ValueType

	// OpcodeCount is the count of opcodes decoded.
	OpcodeCount int

	// MaxStackDepth is the maximum count of pending productions.
	MaxStackDepth int
}
