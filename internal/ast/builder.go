package ast

import "github.com/tetratelabs/wasmengine/internal/wasm"

// Node is a handle to a node emitted by a Builder. The decoder never inspects nodes, it only passes them back.
type Node uint32

// NoNode is the zero Node.
const NoNode Node = 0

// Chain is the current control and effect dependency of a program point. Builder operations that read or write
// state, or that may trap, consume the chain and replace it with their own node.
type Chain struct {
	Control, Effect Node
}

// Builder is the code generation capability driven by DecodeFunctionBody. A nil Builder means validation only.
//
// The decoder calls a Builder only on reachable code, so inputs are never NoNode.
type Builder interface {
	// Start returns the entry chain of a function with the given count of parameters.
	Start(paramCount int) Chain

	// Param returns the value of the parameter at index.
	Param(index int, t wasm.ValueType) Node

	Int32Constant(v int32) Node
	Int64Constant(v int64) Node
	Float32Constant(bits uint32) Node
	Float64Constant(bits uint64) Node

	// Unop builds an opcode with a single operand, see wasm.SimpleOpcodeSignature.
	Unop(oc wasm.Opcode, in Node) Node

	// Binop builds an opcode with two operands, see wasm.SimpleOpcodeSignature.
	Binop(oc wasm.Opcode, left, right Node) Node

	// Branch splits control on cond, returning the control of each direction.
	Branch(cond, control Node) (ifTrue, ifFalse Node)

	// Switch dispatches control on key to count successors: IfValue for 0 until count-2, then IfDefault.
	Switch(count int, key, control Node) Node
	IfValue(value int, sw Node) Node
	IfDefault(sw Node) Node

	// Merge joins the given controls.
	Merge(controls ...Node) Node

	// Loop creates a loop header entered from entry. Back edges are added with AppendToMerge.
	Loop(entry Node) Node

	// Terminate anchors a loop, which may never exit, to the end of the graph.
	Terminate(c Chain)

	// Phi joins values of type t, one per input of merge.
	Phi(t wasm.ValueType, merge Node, values ...Node) Node

	// EffectPhi joins effects, one per input of merge.
	EffectPhi(merge Node, effects ...Node) Node

	// AppendToMerge adds the control from as a new input of merge.
	AppendToMerge(merge, from Node)

	// AppendToPhi adds the value from as the input of phi for the newest input of merge.
	AppendToPhi(merge, phi, from Node)

	// IsPhiWithMerge returns true if phi is a Phi or EffectPhi of merge.
	IsPhiWithMerge(phi, merge Node) bool

	// InputCount returns the count of control inputs of merge.
	InputCount(merge Node) int

	// Return ends control flow, returning values.
	Return(c *Chain, values ...Node) Node

	// Unreachable ends control flow with a trap.
	Unreachable(c *Chain) Node

	LoadGlobal(c *Chain, index wasm.Index, t wasm.ValueType) Node
	StoreGlobal(c *Chain, index wasm.Index, value Node) Node

	// LoadMem reads memory at index+offset. The node depends on the memory base and size.
	LoadMem(c *Chain, access wasm.MemoryAccess, index Node, offset uint32) Node

	// StoreMem writes value to memory at index+offset. The node depends on the memory base and size.
	StoreMem(c *Chain, access wasm.MemoryAccess, index Node, offset uint32, value Node) Node

	// MemSize returns the size of memory in pages.
	MemSize(c *Chain) Node

	// GrowMemory grows memory by delta pages, returning the previous size in pages or -1.
	GrowMemory(c *Chain, delta Node) Node

	// CallDirect calls the function at funcIdx in the function index space.
	CallDirect(c *Chain, funcIdx wasm.Index, sig *wasm.FunctionType, args ...Node) Node

	// CallIndirect calls the table element at key, which must have the signature at sigIdx.
	CallIndirect(c *Chain, sigIdx wasm.Index, sig *wasm.FunctionType, key Node, args ...Node) Node

	// SetSourcePosition records the absolute source offset of the opcode that produced n, for trap reporting.
	SetSourcePosition(n Node, offset int)
}
