// Package ssa records the graph emitted by the function body decoder.
//
// A Graph is a sea of nodes: each node has value inputs followed, for nodes with side effects, by the effect and
// control it depends on. Joins are Merge or Loop nodes whose Phi and EffectPhi nodes carry the merge as their last
// input. The graph is not lowered to machine code: it is kept with its call sites and memory references, which the
// engine links and relocates.
package ssa

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wasmengine/internal/ast"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

// Op is the operation of a Node.
type Op byte

const (
	OpStart Op = iota + 1
	OpParam
	OpInt32Constant
	OpInt64Constant
	OpFloat32Constant
	OpFloat64Constant
	OpUnop
	OpBinop
	OpBranch
	OpIfTrue
	OpIfFalse
	OpSwitch
	OpIfValue
	OpIfDefault
	OpMerge
	OpLoop
	OpPhi
	OpEffectPhi
	OpTerminate
	OpReturn
	OpUnreachable
	OpLoadGlobal
	OpStoreGlobal
	// OpMemoryBase is the address of the memory buffer. It is a MemoryReference rewritten when memory moves.
	OpMemoryBase
	// OpMemorySize is the length of the memory buffer in bytes. It is a MemoryReference rewritten when memory grows.
	OpMemorySize
	OpLoadMem
	OpStoreMem
	OpMemPages
	OpGrowMemory
	OpCall
	OpCallIndirect
)

var opNames = [...]string{
	OpStart:           "Start",
	OpParam:           "Param",
	OpInt32Constant:   "Int32Constant",
	OpInt64Constant:   "Int64Constant",
	OpFloat32Constant: "Float32Constant",
	OpFloat64Constant: "Float64Constant",
	OpUnop:            "Unop",
	OpBinop:           "Binop",
	OpBranch:          "Branch",
	OpIfTrue:          "IfTrue",
	OpIfFalse:         "IfFalse",
	OpSwitch:          "Switch",
	OpIfValue:         "IfValue",
	OpIfDefault:       "IfDefault",
	OpMerge:           "Merge",
	OpLoop:            "Loop",
	OpPhi:             "Phi",
	OpEffectPhi:       "EffectPhi",
	OpTerminate:       "Terminate",
	OpReturn:          "Return",
	OpUnreachable:     "Unreachable",
	OpLoadGlobal:      "LoadGlobal",
	OpStoreGlobal:     "StoreGlobal",
	OpMemoryBase:      "MemoryBase",
	OpMemorySize:      "MemorySize",
	OpLoadMem:         "LoadMem",
	OpStoreMem:        "StoreMem",
	OpMemPages:        "MemPages",
	OpGrowMemory:      "GrowMemory",
	OpCall:            "Call",
	OpCallIndirect:    "CallIndirect",
}

// String implements fmt.Stringer
func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", o)
}

// Node is a vertex of the graph.
type Node struct {
	Op Op
	// Type is the type of the value produced, or ast.TypeVoid.
	Type wasm.ValueType
	// Opcode is set for Unop and Binop.
	Opcode wasm.Opcode
	// Access is set for LoadMem and StoreMem.
	Access wasm.MemoryAccess
	Inputs []ast.Node
	// Aux is the immediate of the node: constant bits, a parameter, global, function or signature index, a switch
	// case, a memory offset or the count of parameters of Start.
	Aux uint64
	// Offset is the absolute source position of the opcode that produced the node, or -1.
	Offset int
}

// CallSite is a call node and its target.
type CallSite struct {
	Node ast.Node
	// Target is the callee in the function index space, or the expected signature index when Indirect.
	Target   wasm.Index
	Indirect bool
}

// MemoryReferenceKind is what a MemoryReference embeds.
type MemoryReferenceKind byte

const (
	// MemoryReferenceBase embeds the address of the memory buffer.
	MemoryReferenceBase MemoryReferenceKind = iota
	// MemoryReferenceSize embeds the length of the memory buffer in bytes.
	MemoryReferenceSize
)

// String implements fmt.Stringer
func (k MemoryReferenceKind) String() string {
	if k == MemoryReferenceBase {
		return "base"
	}
	return "size"
}

// MemoryReference is a node whose value depends on the location or size of memory.
type MemoryReference struct {
	Node ast.Node
	Kind MemoryReferenceKind
}

// Graph is the graph of a single function. It implements ast.Builder.
type Graph struct {
	Signature *wasm.FunctionType

	// CallSites are the direct and indirect calls in emission order.
	CallSites []CallSite

	// MemoryReferences are the nodes to relocate when memory moves or grows, in emission order.
	MemoryReferences []MemoryReference

	// nodes is indexed by ast.Node, so nodes[0] is unused.
	nodes []Node
	start ast.Node
	// exits are the Return, Unreachable and Terminate nodes.
	exits []ast.Node
}

// NewBuilder returns an empty graph for a function of the given signature.
func NewBuilder(sig *wasm.FunctionType) *Graph {
	return &Graph{Signature: sig, nodes: make([]Node, 1, 64)}
}

var _ ast.Builder = (*Graph)(nil)

// NodeCount returns the count of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes) - 1
}

// Node returns the node n, which must have been returned by this graph.
func (g *Graph) Node(n ast.Node) *Node {
	return &g.nodes[n]
}

// Exits returns the Return, Unreachable and Terminate nodes in emission order.
func (g *Graph) Exits() []ast.Node {
	return g.exits
}

func (g *Graph) add(op Op, t wasm.ValueType, aux uint64, inputs ...ast.Node) ast.Node {
	g.nodes = append(g.nodes, Node{Op: op, Type: t, Inputs: inputs, Aux: aux, Offset: -1})
	return ast.Node(len(g.nodes) - 1)
}

// Start implements ast.Builder.Start
func (g *Graph) Start(paramCount int) ast.Chain {
	g.start = g.add(OpStart, ast.TypeVoid, uint64(paramCount))
	return ast.Chain{Control: g.start, Effect: g.start}
}

// Param implements ast.Builder.Param
func (g *Graph) Param(index int, t wasm.ValueType) ast.Node {
	return g.add(OpParam, t, uint64(index), g.start)
}

// Int32Constant implements ast.Builder.Int32Constant
func (g *Graph) Int32Constant(v int32) ast.Node {
	return g.add(OpInt32Constant, wasm.ValueTypeI32, uint64(uint32(v)))
}

// Int64Constant implements ast.Builder.Int64Constant
func (g *Graph) Int64Constant(v int64) ast.Node {
	return g.add(OpInt64Constant, wasm.ValueTypeI64, uint64(v))
}

// Float32Constant implements ast.Builder.Float32Constant
func (g *Graph) Float32Constant(bits uint32) ast.Node {
	return g.add(OpFloat32Constant, wasm.ValueTypeF32, uint64(bits))
}

// Float64Constant implements ast.Builder.Float64Constant
func (g *Graph) Float64Constant(bits uint64) ast.Node {
	return g.add(OpFloat64Constant, wasm.ValueTypeF64, bits)
}

// Unop implements ast.Builder.Unop
func (g *Graph) Unop(oc wasm.Opcode, in ast.Node) ast.Node {
	n := g.add(OpUnop, wasm.SimpleOpcodeSignature(oc).Results[0], 0, in)
	g.nodes[n].Opcode = oc
	return n
}

// Binop implements ast.Builder.Binop
func (g *Graph) Binop(oc wasm.Opcode, left, right ast.Node) ast.Node {
	n := g.add(OpBinop, wasm.SimpleOpcodeSignature(oc).Results[0], 0, left, right)
	g.nodes[n].Opcode = oc
	return n
}

// Branch implements ast.Builder.Branch
func (g *Graph) Branch(cond, control ast.Node) (ifTrue, ifFalse ast.Node) {
	br := g.add(OpBranch, ast.TypeVoid, 0, cond, control)
	return g.add(OpIfTrue, ast.TypeVoid, 0, br), g.add(OpIfFalse, ast.TypeVoid, 0, br)
}

// Switch implements ast.Builder.Switch
func (g *Graph) Switch(count int, key, control ast.Node) ast.Node {
	return g.add(OpSwitch, ast.TypeVoid, uint64(count), key, control)
}

// IfValue implements ast.Builder.IfValue
func (g *Graph) IfValue(value int, sw ast.Node) ast.Node {
	return g.add(OpIfValue, ast.TypeVoid, uint64(value), sw)
}

// IfDefault implements ast.Builder.IfDefault
func (g *Graph) IfDefault(sw ast.Node) ast.Node {
	return g.add(OpIfDefault, ast.TypeVoid, 0, sw)
}

// Merge implements ast.Builder.Merge
func (g *Graph) Merge(controls ...ast.Node) ast.Node {
	return g.add(OpMerge, ast.TypeVoid, 0, controls...)
}

// Loop implements ast.Builder.Loop
func (g *Graph) Loop(entry ast.Node) ast.Node {
	return g.add(OpLoop, ast.TypeVoid, 0, entry)
}

// Terminate implements ast.Builder.Terminate
func (g *Graph) Terminate(c ast.Chain) {
	g.exits = append(g.exits, g.add(OpTerminate, ast.TypeVoid, 0, c.Effect, c.Control))
}

// Phi implements ast.Builder.Phi
func (g *Graph) Phi(t wasm.ValueType, merge ast.Node, values ...ast.Node) ast.Node {
	return g.add(OpPhi, t, 0, append(append([]ast.Node{}, values...), merge)...)
}

// EffectPhi implements ast.Builder.EffectPhi
func (g *Graph) EffectPhi(merge ast.Node, effects ...ast.Node) ast.Node {
	return g.add(OpEffectPhi, ast.TypeVoid, 0, append(append([]ast.Node{}, effects...), merge)...)
}

// AppendToMerge implements ast.Builder.AppendToMerge
func (g *Graph) AppendToMerge(merge, from ast.Node) {
	m := &g.nodes[merge]
	m.Inputs = append(m.Inputs, from)
}

// AppendToPhi implements ast.Builder.AppendToPhi
func (g *Graph) AppendToPhi(merge, phi, from ast.Node) {
	p := &g.nodes[phi]
	// The merge stays the last input.
	p.Inputs[len(p.Inputs)-1] = from
	p.Inputs = append(p.Inputs, merge)
}

// IsPhiWithMerge implements ast.Builder.IsPhiWithMerge
func (g *Graph) IsPhiWithMerge(phi, merge ast.Node) bool {
	if phi == ast.NoNode || int(phi) >= len(g.nodes) {
		return false
	}
	p := &g.nodes[phi]
	return (p.Op == OpPhi || p.Op == OpEffectPhi) && p.Inputs[len(p.Inputs)-1] == merge
}

// InputCount implements ast.Builder.InputCount
func (g *Graph) InputCount(merge ast.Node) int {
	return len(g.nodes[merge].Inputs)
}

// Return implements ast.Builder.Return
func (g *Graph) Return(c *ast.Chain, values ...ast.Node) ast.Node {
	n := g.add(OpReturn, ast.TypeVoid, 0, append(append([]ast.Node{}, values...), c.Effect, c.Control)...)
	g.exits = append(g.exits, n)
	c.Control, c.Effect = n, n
	return n
}

// Unreachable implements ast.Builder.Unreachable
func (g *Graph) Unreachable(c *ast.Chain) ast.Node {
	n := g.add(OpUnreachable, ast.TypeVoid, 0, c.Effect, c.Control)
	g.exits = append(g.exits, n)
	c.Control, c.Effect = n, n
	return n
}

// LoadGlobal implements ast.Builder.LoadGlobal
func (g *Graph) LoadGlobal(c *ast.Chain, index wasm.Index, t wasm.ValueType) ast.Node {
	n := g.add(OpLoadGlobal, t, uint64(index), c.Effect, c.Control)
	c.Effect = n
	return n
}

// StoreGlobal implements ast.Builder.StoreGlobal
func (g *Graph) StoreGlobal(c *ast.Chain, index wasm.Index, value ast.Node) ast.Node {
	n := g.add(OpStoreGlobal, ast.TypeVoid, uint64(index), value, c.Effect, c.Control)
	c.Effect = n
	return n
}

// memoryReference adds a relocatable node embedding the memory base or size.
func (g *Graph) memoryReference(kind MemoryReferenceKind) ast.Node {
	op, t := OpMemoryBase, wasm.ValueTypeI64
	if kind == MemoryReferenceSize {
		op, t = OpMemorySize, wasm.ValueTypeI32
	}
	n := g.add(op, t, 0)
	g.MemoryReferences = append(g.MemoryReferences, MemoryReference{Node: n, Kind: kind})
	return n
}

// LoadMem implements ast.Builder.LoadMem
func (g *Graph) LoadMem(c *ast.Chain, access wasm.MemoryAccess, index ast.Node, offset uint32) ast.Node {
	base, size := g.memoryReference(MemoryReferenceBase), g.memoryReference(MemoryReferenceSize)
	n := g.add(OpLoadMem, access.Type, uint64(offset), base, size, index, c.Effect, c.Control)
	g.nodes[n].Access = access
	c.Effect = n
	return n
}

// StoreMem implements ast.Builder.StoreMem
func (g *Graph) StoreMem(c *ast.Chain, access wasm.MemoryAccess, index ast.Node, offset uint32, value ast.Node) ast.Node {
	base, size := g.memoryReference(MemoryReferenceBase), g.memoryReference(MemoryReferenceSize)
	n := g.add(OpStoreMem, ast.TypeVoid, uint64(offset), base, size, index, value, c.Effect, c.Control)
	g.nodes[n].Access = access
	c.Effect = n
	return n
}

// MemSize implements ast.Builder.MemSize
func (g *Graph) MemSize(c *ast.Chain) ast.Node {
	size := g.memoryReference(MemoryReferenceSize)
	return g.add(OpMemPages, wasm.ValueTypeI32, 0, size)
}

// GrowMemory implements ast.Builder.GrowMemory
func (g *Graph) GrowMemory(c *ast.Chain, delta ast.Node) ast.Node {
	n := g.add(OpGrowMemory, wasm.ValueTypeI32, 0, delta, c.Effect, c.Control)
	c.Control, c.Effect = n, n
	return n
}

// CallDirect implements ast.Builder.CallDirect
func (g *Graph) CallDirect(c *ast.Chain, funcIdx wasm.Index, sig *wasm.FunctionType, args ...ast.Node) ast.Node {
	n := g.add(OpCall, resultType(sig), uint64(funcIdx), append(append([]ast.Node{}, args...), c.Effect, c.Control)...)
	g.CallSites = append(g.CallSites, CallSite{Node: n, Target: funcIdx})
	c.Control, c.Effect = n, n
	return n
}

// CallIndirect implements ast.Builder.CallIndirect
func (g *Graph) CallIndirect(c *ast.Chain, sigIdx wasm.Index, sig *wasm.FunctionType, key ast.Node, args ...ast.Node) ast.Node {
	inputs := append([]ast.Node{key}, args...)
	n := g.add(OpCallIndirect, resultType(sig), uint64(sigIdx), append(inputs, c.Effect, c.Control)...)
	g.CallSites = append(g.CallSites, CallSite{Node: n, Target: sigIdx, Indirect: true})
	c.Control, c.Effect = n, n
	return n
}

// SetSourcePosition implements ast.Builder.SetSourcePosition
func (g *Graph) SetSourcePosition(n ast.Node, offset int) {
	g.nodes[n].Offset = offset
}

func resultType(sig *wasm.FunctionType) wasm.ValueType {
	if len(sig.Results) == 0 {
		return ast.TypeVoid
	}
	return sig.Results[0]
}

// Format renders one node per line. Ex. "#5 = Binop i32.add #3 #4 @+42"
func (g *Graph) Format() string {
	var sb strings.Builder
	for i := 1; i < len(g.nodes); i++ {
		g.formatNode(&sb, ast.Node(i))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (g *Graph) formatNode(sb *strings.Builder, id ast.Node) {
	n := &g.nodes[id]
	fmt.Fprintf(sb, "#%d = %s", id, n.Op)
	if n.Type != ast.TypeVoid {
		fmt.Fprintf(sb, ":%s", ast.TypeName(n.Type))
	}
	switch n.Op {
	case OpUnop, OpBinop:
		fmt.Fprintf(sb, " %s", wasm.InstructionName(n.Opcode))
	case OpStart, OpParam, OpSwitch, OpIfValue, OpLoadGlobal, OpStoreGlobal, OpCall, OpCallIndirect:
		fmt.Fprintf(sb, " %d", n.Aux)
	case OpInt32Constant:
		fmt.Fprintf(sb, " %d", int32(n.Aux))
	case OpInt64Constant:
		fmt.Fprintf(sb, " %d", int64(n.Aux))
	case OpFloat32Constant, OpFloat64Constant:
		fmt.Fprintf(sb, " %#x", n.Aux)
	case OpLoadMem, OpStoreMem:
		fmt.Fprintf(sb, " size=%d offset=%d", n.Access.Size, n.Aux)
	}
	for _, in := range n.Inputs {
		fmt.Fprintf(sb, " #%d", in)
	}
	if n.Offset >= 0 {
		fmt.Fprintf(sb, " @+%d", n.Offset)
	}
}
