package ast

import (
	"errors"
	"fmt"

	"github.com/tetratelabs/wasmengine/internal/cursor"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

// DecodeFunctionBody decodes and validates body, driving builder if it is not nil.
//
// Malformed encodings return a *wasm.DecodeError and type or index errors a *wasm.ValidationError, in both cases at
// the absolute offset of the offending opcode. Decoding stops at the first error. Validation doesn't depend on the
// builder: the same body is accepted or rejected, with the same error, whether or not a builder is supplied.
func DecodeFunctionBody(body *FunctionBody, builder Builder, opts Options) (*Result, error) {
	if opts.MaxLocals == 0 {
		opts.MaxLocals = DefaultMaxLocals
	}
	m := body.Module
	if m == nil {
		m = &wasm.Module{}
	}
	d := &decoder{
		body:       body,
		module:     m,
		builder:    builder,
		opts:       opts,
		localTypes: body.localTypes(),
		returnType: body.returnType(),
		c:          cursor.New(body.Code, body.Offset),
	}
	d.decode()
	if d.err != nil {
		return nil, d.err
	}
	return &Result{
		Trees:         d.trees,
		ReturnType:    d.returnType,
		OpcodeCount:   d.opcodeCount,
		MaxStackDepth: d.maxStackDepth,
	}, nil
}

// production is an expression whose children are still being decoded.
type production struct {
	tree *Tree
	// index is the position of the next child.
	index int
	imm   immediates
}

func (p *production) done() bool {
	return p.index >= len(p.tree.Children)
}

func (p *production) last() *Tree {
	return p.tree.Children[p.index-1]
}

// immediates are the decoded operands a production needs when it reduces.
type immediates struct {
	// index is a local, global, function or signature index, or a break depth.
	index   uint32
	targets []uint32
	sig     *wasm.FunctionType
	access  wasm.MemoryAccess
	offset  uint32
}

// block is a target of branches.
type block struct {
	// env is the join point of branches to this block.
	env *ssaEnv
	// stackDepth is the position in the production stack of the block's production, or -1 for the continue target
	// of a loop, which has no value.
	stackDepth int
}

type ifEnv struct {
	falseEnv, mergeEnv *ssaEnv
}

type decoder struct {
	body       *FunctionBody
	module     *wasm.Module
	builder    Builder
	opts       Options
	localTypes []wasm.ValueType
	returnType wasm.ValueType
	c          *cursor.Cursor

	// pc is the absolute offset of the opcode being decoded.
	pc     int
	stack  []production
	blocks []block
	ifs    []ifEnv
	trees  []*Tree
	env    *ssaEnv
	err    error

	// zeros are the initial values of locals, by type.
	zeros map[wasm.ValueType]Node

	opcodeCount, maxStackDepth int
}

func (d *decoder) decode() {
	if len(d.localTypes) > d.opts.MaxLocals {
		d.decodeErrorf(d.body.Offset, nil, "%d locals exceed the maximum of %d", len(d.localTypes), d.opts.MaxLocals)
		return
	}
	for i, t := range d.localTypes {
		if !wasm.IsValueType(t) {
			d.decodeErrorf(d.body.Offset, nil, "invalid type %#x of local %d", t, i)
			return
		}
	}
	d.initEnv()

	for d.err == nil && !d.c.Done() {
		d.pc = d.c.Offset()
		oc := d.c.ReadU8("opcode")
		d.opcodeCount++
		d.decodeOpcode(oc)
	}
	if d.err == nil {
		d.finish()
	}
}

func (d *decoder) initEnv() {
	d.env = &ssaEnv{state: envReached}
	b := d.builder
	if b == nil {
		return
	}
	params := d.body.Signature.Params
	d.env.chain = b.Start(len(params))
	d.env.locals = make([]Node, len(d.localTypes))
	for i, t := range d.localTypes {
		if i < len(params) {
			d.env.locals[i] = b.Param(i, t)
		} else {
			d.env.locals[i] = d.zero(t)
		}
	}
}

// zero returns the constant a local of type t holds before its first assignment.
func (d *decoder) zero(t wasm.ValueType) Node {
	if n, ok := d.zeros[t]; ok {
		return n
	}
	var n Node
	switch t {
	case wasm.ValueTypeI32:
		n = d.builder.Int32Constant(0)
	case wasm.ValueTypeI64:
		n = d.builder.Int64Constant(0)
	case wasm.ValueTypeF32:
		n = d.builder.Float32Constant(0)
	case wasm.ValueTypeF64:
		n = d.builder.Float64Constant(0)
	}
	if d.zeros == nil {
		d.zeros = map[wasm.ValueType]Node{}
	}
	d.zeros[t] = n
	return n
}

// build returns true when graph nodes should be emitted for the current opcode.
func (d *decoder) build() bool {
	return d.builder != nil && d.env.live()
}

// operandsOK reports the cursor error, if any, as a decode error of the current opcode.
func (d *decoder) operandsOK() bool {
	err := d.c.Err()
	if err == nil {
		return true
	}
	var ce *cursor.Error
	if !errors.As(err, &ce) {
		d.decodeErrorf(d.pc, err, "%v", err)
	} else if errors.Is(ce, cursor.ErrEndOfBuffer) {
		d.decodeErrorf(d.pc, ce.Err, "beyond end of code: %s", ce.Msg)
	} else {
		d.decodeErrorf(d.pc, ce.Err, "%s", ce.Msg)
	}
	return false
}

func (d *decoder) decodeOpcode(oc wasm.Opcode) {
	switch oc {
	case wasm.OpcodeNop:
		d.leaf(oc, TypeVoid, NoNode)

	case wasm.OpcodeBlock, wasm.OpcodeLoop:
		o := readBlockArity(d.c)
		if !d.operandsOK() {
			return
		}
		if o.arity == 0 {
			d.leaf(oc, TypeVoid, NoNode)
			return
		}
		if o.arity > uint32(d.c.Remaining()) {
			d.decodeErrorf(d.pc, nil, "block arity %d exceeds the %d remaining bytes", o.arity, d.c.Remaining())
			return
		}
		d.shift(oc, TypeUnreachable, int(o.arity), immediates{})
		// Branches to depth zero in a block, and to depth one in a loop, break to the outer environment.
		breakEnv := d.env
		d.blocks = append(d.blocks, block{env: breakEnv, stackDepth: len(d.stack) - 1})
		if oc == wasm.OpcodeBlock {
			d.env = d.steal(breakEnv)
			return
		}
		contEnv := d.steal(breakEnv)
		d.prepareForLoop(d.pc, contEnv)
		d.env = d.split(contEnv)
		d.blocks = append(d.blocks, block{env: contEnv, stackDepth: -1})

	case wasm.OpcodeIf:
		d.shift(oc, TypeVoid, 2, immediates{})

	case wasm.OpcodeIfElse, wasm.OpcodeSelect:
		// The type is determined once the values are known.
		d.shift(oc, TypeUnreachable, 3, immediates{})

	case wasm.OpcodeBr, wasm.OpcodeBrIf:
		o := readBreakDepth(d.c)
		if !d.operandsOK() {
			return
		}
		if o.depth >= uint32(len(d.blocks)) {
			d.validationErrorf(d.pc, oc, "invalid break depth %d: nesting is %d", o.depth, len(d.blocks))
			return
		}
		if oc == wasm.OpcodeBr {
			d.shift(oc, TypeUnreachable, 1, immediates{index: o.depth})
		} else {
			d.shift(oc, TypeVoid, 2, immediates{index: o.depth})
		}

	case wasm.OpcodeBrTable:
		o := readBranchTable(d.c)
		if !d.operandsOK() {
			return
		}
		for i, depth := range o.targets {
			if depth >= uint32(len(d.blocks)) {
				d.validationErrorf(d.pc, oc, "invalid branch table entry %d: depth %d, nesting is %d", i, depth, len(d.blocks))
				return
			}
		}
		d.shift(oc, TypeUnreachable, 2, immediates{targets: o.targets})

	case wasm.OpcodeReturn:
		if count := len(d.body.Signature.Results); count > 0 {
			d.shift(oc, TypeUnreachable, count, immediates{})
			return
		}
		if d.build() {
			d.builder.Return(&d.env.chain)
		}
		d.env.kill(envControlEnd)
		d.leaf(oc, TypeUnreachable, NoNode)

	case wasm.OpcodeUnreachable:
		if d.build() {
			n := d.builder.Unreachable(&d.env.chain)
			d.builder.SetSourcePosition(n, d.pc)
		}
		d.env.kill(envControlEnd)
		d.leaf(oc, TypeUnreachable, NoNode)

	case wasm.OpcodeI8Const:
		o := readI8(d.c)
		if !d.operandsOK() {
			return
		}
		var n Node
		if d.build() {
			n = d.builder.Int32Constant(int32(o.value))
		}
		d.leaf(oc, wasm.ValueTypeI32, n)

	case wasm.OpcodeI32Const:
		o := readI32(d.c)
		if !d.operandsOK() {
			return
		}
		var n Node
		if d.build() {
			n = d.builder.Int32Constant(o.value)
		}
		d.leaf(oc, wasm.ValueTypeI32, n)

	case wasm.OpcodeI64Const:
		o := readI64(d.c)
		if !d.operandsOK() {
			return
		}
		var n Node
		if d.build() {
			n = d.builder.Int64Constant(o.value)
		}
		d.leaf(oc, wasm.ValueTypeI64, n)

	case wasm.OpcodeF32Const:
		o := readF32(d.c)
		if !d.operandsOK() {
			return
		}
		var n Node
		if d.build() {
			n = d.builder.Float32Constant(o.bits)
		}
		d.leaf(oc, wasm.ValueTypeF32, n)

	case wasm.OpcodeF64Const:
		o := readF64(d.c)
		if !d.operandsOK() {
			return
		}
		var n Node
		if d.build() {
			n = d.builder.Float64Constant(o.bits)
		}
		d.leaf(oc, wasm.ValueTypeF64, n)

	case wasm.OpcodeGetLocal, wasm.OpcodeSetLocal:
		o := readLocalIndex(d.c)
		if !d.operandsOK() {
			return
		}
		if o.index >= uint32(len(d.localTypes)) {
			d.validationErrorf(d.pc, oc, "invalid local index %d", o.index)
			return
		}
		t := d.localTypes[o.index]
		if oc == wasm.OpcodeSetLocal {
			d.shift(oc, t, 1, immediates{index: o.index})
			return
		}
		var n Node
		if d.build() {
			n = d.env.locals[o.index]
		}
		d.leaf(oc, t, n)

	case wasm.OpcodeGetGlobal, wasm.OpcodeSetGlobal:
		o := readGlobalIndex(d.c)
		if !d.operandsOK() {
			return
		}
		if o.index >= uint32(len(d.module.Globals)) {
			d.validationErrorf(d.pc, oc, "invalid global index %d", o.index)
			return
		}
		gt := d.module.Globals[o.index].Type
		if oc == wasm.OpcodeSetGlobal {
			if !gt.Mutable {
				d.validationErrorf(d.pc, oc, "global %d is immutable", o.index)
				return
			}
			d.shift(oc, gt.ValType, 1, immediates{index: o.index})
			return
		}
		var n Node
		if d.build() {
			n = d.builder.LoadGlobal(&d.env.chain, o.index, gt.ValType)
		}
		d.leaf(oc, gt.ValType, n)

	case wasm.OpcodeCallFunction:
		o := readFunctionIndex(d.c)
		if !d.operandsOK() {
			return
		}
		sig := d.module.FunctionType(o.index)
		if sig == nil {
			d.validationErrorf(d.pc, oc, "invalid function index %d", o.index)
			return
		}
		d.shift(oc, resultType(sig), len(sig.Params), immediates{index: o.index, sig: sig})

	case wasm.OpcodeCallIndirect:
		o := readSignatureIndex(d.c)
		if !d.operandsOK() {
			return
		}
		if len(d.module.Tables) == 0 {
			d.validationErrorf(d.pc, oc, "call_indirect requires a table")
			return
		}
		if o.index >= uint32(len(d.module.Signatures)) {
			d.validationErrorf(d.pc, oc, "invalid signature index %d", o.index)
			return
		}
		sig := d.module.Signatures[o.index]
		d.shift(oc, resultType(sig), 1+len(sig.Params), immediates{index: o.index, sig: sig})

	case wasm.OpcodeGrowMemory:
		if d.requireMemory(oc) {
			d.shift(oc, wasm.ValueTypeI32, 1, immediates{})
		}

	case wasm.OpcodeMemorySize:
		if !d.requireMemory(oc) {
			return
		}
		var n Node
		if d.build() {
			n = d.builder.MemSize(&d.env.chain)
		}
		d.leaf(oc, wasm.ValueTypeI32, n)

	default:
		if a, ok := wasm.MemoryAccessOf(oc); ok {
			d.decodeMemoryAccess(oc, a)
		} else if sig := wasm.SimpleOpcodeSignature(oc); sig != nil {
			d.shift(oc, sig.Results[0], len(sig.Params), immediates{sig: sig})
		} else {
			d.decodeErrorf(d.pc, nil, "invalid opcode %#x", oc)
		}
	}
}

func (d *decoder) decodeMemoryAccess(oc wasm.Opcode, a wasm.MemoryAccess) {
	o := readMemoryAccess(d.c)
	if !d.operandsOK() || !d.requireMemory(oc) {
		return
	}
	if max := a.MaxAlignment(); o.alignment > max {
		d.validationErrorf(d.pc, oc, "alignment %d exceeds natural alignment %d", o.alignment, max)
		return
	}
	arity := 1
	if a.Store {
		arity = 2
	}
	d.shift(oc, a.Type, arity, immediates{access: a, offset: o.offset})
}

func (d *decoder) requireMemory(oc wasm.Opcode) bool {
	if d.module.Memory == nil {
		d.validationErrorf(d.pc, oc, "memory instruction requires a memory")
		return false
	}
	return true
}

func resultType(sig *wasm.FunctionType) wasm.ValueType {
	if len(sig.Results) == 0 {
		return TypeVoid
	}
	return sig.Results[0]
}

// leaf reduces an expression without children.
func (d *decoder) leaf(oc wasm.Opcode, t wasm.ValueType, n Node) {
	d.reduce(&Tree{Opcode: oc, Type: t, Offset: d.pc, Node: n})
}

// shift pushes a production awaiting count children. Productions without children reduce immediately.
func (d *decoder) shift(oc wasm.Opcode, t wasm.ValueType, count int, imm immediates) {
	tree := &Tree{Opcode: oc, Type: t, Offset: d.pc}
	if count == 0 {
		p := production{tree: tree, imm: imm}
		d.reduceProduction(&p)
		if d.err == nil {
			d.reduce(tree)
		}
		return
	}
	tree.Children = make([]*Tree, count)
	d.stack = append(d.stack, production{tree: tree, imm: imm})
	if len(d.stack) > d.maxStackDepth {
		d.maxStackDepth = len(d.stack)
	}
}

// reduce attaches a completed tree to the production on top of the stack, reducing that production in turn once
// it is complete. A tree completed with an empty stack is a top-level expression.
func (d *decoder) reduce(tree *Tree) {
	for d.err == nil {
		if len(d.stack) == 0 {
			d.trees = append(d.trees, tree)
			return
		}
		p := &d.stack[len(d.stack)-1]
		p.tree.Children[p.index] = tree
		p.index++
		d.reduceProduction(p)
		if d.err != nil || !p.done() {
			return
		}
		tree = p.tree
		d.stack = d.stack[:len(d.stack)-1]
	}
}

// reduceProduction handles the child just attached to p, at p.index-1, or a production without children.
func (d *decoder) reduceProduction(p *production) {
	oc := p.tree.Opcode
	switch oc {
	case wasm.OpcodeBlock:
		if p.done() {
			last := d.blocks[len(d.blocks)-1]
			// The last child falls through as the value of the block.
			d.reduceBreakToBlock(last, p.last())
			d.env = last.env
			d.blocks = d.blocks[:len(d.blocks)-1]
		}

	case wasm.OpcodeLoop:
		if p.done() {
			// Pop the continue target, then fall through to the break target.
			d.blocks = d.blocks[:len(d.blocks)-1]
			last := d.blocks[len(d.blocks)-1]
			d.reduceBreakToBlock(last, p.last())
			d.env = last.env
			d.blocks = d.blocks[:len(d.blocks)-1]
		}

	case wasm.OpcodeIf:
		switch p.index {
		case 1:
			if !d.typeCheckLast(p, wasm.ValueTypeI32) {
				return
			}
			falseEnv := d.env
			trueEnv := d.split(falseEnv)
			d.branch(p.last(), trueEnv, falseEnv)
			d.ifs = append(d.ifs, ifEnv{falseEnv: falseEnv})
			d.env = trueEnv
		case 2:
			top := d.ifs[len(d.ifs)-1]
			d.ifs = d.ifs[:len(d.ifs)-1]
			d.goTo(d.env, top.falseEnv)
			d.env = top.falseEnv
		}

	case wasm.OpcodeIfElse:
		switch p.index {
		case 1:
			if !d.typeCheckLast(p, wasm.ValueTypeI32) {
				return
			}
			falseEnv := d.env
			trueEnv := d.split(falseEnv)
			d.branch(p.last(), trueEnv, falseEnv)
			d.ifs = append(d.ifs, ifEnv{falseEnv: falseEnv, mergeEnv: unreachableEnv()})
			d.env = trueEnv
		case 2:
			top := d.ifs[len(d.ifs)-1]
			d.mergeIntoProduction(p, top.mergeEnv, p.last())
			d.env = top.falseEnv
		case 3:
			top := d.ifs[len(d.ifs)-1]
			d.ifs = d.ifs[:len(d.ifs)-1]
			d.mergeIntoProduction(p, top.mergeEnv, p.last())
			d.env = top.mergeEnv
		}

	case wasm.OpcodeSelect:
		d.reduceSelect(p)

	case wasm.OpcodeBr:
		d.reduceBreakToBlock(d.blocks[len(d.blocks)-1-int(p.imm.index)], p.last())

	case wasm.OpcodeBrIf:
		if !p.done() || !d.typeCheckLast(p, wasm.ValueTypeI32) {
			return
		}
		fenv := d.env
		tenv := d.split(fenv)
		d.branch(p.last(), tenv, fenv)
		d.env = tenv
		d.reduceBreakToBlock(d.blocks[len(d.blocks)-1-int(p.imm.index)], p.tree.Children[0])
		d.env = fenv

	case wasm.OpcodeBrTable:
		if p.done() && d.typeCheckLast(p, wasm.ValueTypeI32) {
			d.reduceBranchTable(p)
		}

	case wasm.OpcodeReturn:
		if !d.typeCheckLast(p, d.body.Signature.Results[p.index-1]) || !p.done() {
			return
		}
		if d.build() {
			d.builder.Return(&d.env.chain, childNodes(p.tree.Children)...)
		}
		d.env.kill(envControlEnd)

	case wasm.OpcodeSetLocal:
		if !d.typeCheckLast(p, d.localTypes[p.imm.index]) {
			return
		}
		val := p.last()
		if d.build() {
			d.env.locals[p.imm.index] = val.Node
		}
		p.tree.Node = val.Node

	case wasm.OpcodeSetGlobal:
		if !d.typeCheckLast(p, p.tree.Type) {
			return
		}
		val := p.last()
		if d.build() {
			d.builder.StoreGlobal(&d.env.chain, p.imm.index, val.Node)
		}
		p.tree.Node = val.Node

	case wasm.OpcodeCallFunction:
		if p.index > 0 && !d.typeCheckLast(p, p.imm.sig.Params[p.index-1]) {
			return
		}
		if p.done() && d.build() {
			p.tree.Node = d.builder.CallDirect(&d.env.chain, p.imm.index, p.imm.sig, childNodes(p.tree.Children)...)
			d.builder.SetSourcePosition(p.tree.Node, p.tree.Offset)
		}

	case wasm.OpcodeCallIndirect:
		expected := wasm.ValueTypeI32
		if p.index > 1 {
			expected = p.imm.sig.Params[p.index-2]
		}
		if !d.typeCheckLast(p, expected) {
			return
		}
		if p.done() && d.build() {
			nodes := childNodes(p.tree.Children)
			p.tree.Node = d.builder.CallIndirect(&d.env.chain, p.imm.index, p.imm.sig, nodes[0], nodes[1:]...)
			d.builder.SetSourcePosition(p.tree.Node, p.tree.Offset)
		}

	case wasm.OpcodeGrowMemory:
		if d.typeCheckLast(p, wasm.ValueTypeI32) && d.build() {
			p.tree.Node = d.builder.GrowMemory(&d.env.chain, p.last().Node)
		}

	default:
		if p.imm.sig != nil {
			d.reduceSimple(p)
		} else {
			d.reduceMemoryAccess(p)
		}
	}
}

func (d *decoder) reduceSelect(p *production) {
	switch p.index {
	case 1:
		if t := p.last().Type; t == TypeVoid {
			d.validationErrorf(p.tree.Offset, p.tree.Opcode, "select operand should be expression")
		} else {
			p.tree.Type = t
		}
	case 2:
		if p.tree.Type != TypeUnreachable {
			d.typeCheckLast(p, p.tree.Type)
		} else if t := p.last().Type; t == TypeVoid {
			d.validationErrorf(p.tree.Offset, p.tree.Opcode, "select operand should be expression")
		} else {
			p.tree.Type = t
		}
	case 3:
		if !d.typeCheckLast(p, wasm.ValueTypeI32) || !d.build() {
			return
		}
		b := d.builder
		ifTrue, ifFalse := b.Branch(p.tree.Children[2].Node, d.env.chain.Control)
		merge := b.Merge(ifTrue, ifFalse)
		p.tree.Node = b.Phi(p.tree.Type, merge, p.tree.Children[0].Node, p.tree.Children[1].Node)
		d.env.chain.Control = merge
	}
}

func (d *decoder) reduceBranchTable(p *production) {
	targets := p.imm.targets
	prev := d.env
	entry := d.steal(prev)
	// Only a table with entries besides the default needs a switch.
	hasSwitch := len(targets) > 1
	sw := NoNode
	if hasSwitch && d.builder != nil && entry.live() {
		sw = d.builder.Switch(len(targets), p.last().Node, entry.chain.Control)
	}
	for i, depth := range targets {
		env := entry
		if hasSwitch {
			env = d.split(entry)
			if sw != NoNode {
				if i == len(targets)-1 {
					env.chain.Control = d.builder.IfDefault(sw)
				} else {
					env.chain.Control = d.builder.IfValue(i, sw)
				}
			}
		}
		d.env = env
		d.reduceBreakToBlock(d.blocks[len(d.blocks)-1-int(depth)], p.tree.Children[0])
	}
	prev.kill(envControlEnd)
	d.env = prev
}

func (d *decoder) reduceSimple(p *production) {
	sig := p.imm.sig
	if !d.typeCheckLast(p, sig.Params[p.index-1]) || !p.done() || !d.build() {
		return
	}
	oc := p.tree.Opcode
	if len(sig.Params) == 1 {
		p.tree.Node = d.builder.Unop(oc, p.tree.Children[0].Node)
	} else {
		p.tree.Node = d.builder.Binop(oc, p.tree.Children[0].Node, p.tree.Children[1].Node)
	}
	d.builder.SetSourcePosition(p.tree.Node, p.tree.Offset)
}

func (d *decoder) reduceMemoryAccess(p *production) {
	a := p.imm.access
	expected := wasm.ValueTypeI32 // index
	if p.index == 2 {
		expected = a.Type
	}
	if !d.typeCheckLast(p, expected) || !p.done() || !d.build() {
		return
	}
	var n Node
	if a.Store {
		val := p.tree.Children[1].Node
		n = d.builder.StoreMem(&d.env.chain, a, p.tree.Children[0].Node, p.imm.offset, val)
		p.tree.Node = val
	} else {
		n = d.builder.LoadMem(&d.env.chain, a, p.tree.Children[0].Node, p.imm.offset)
		p.tree.Node = n
	}
	d.builder.SetSourcePosition(n, p.tree.Offset)
}

// branch splits control on the condition cond into the environments of each direction.
func (d *decoder) branch(cond *Tree, trueEnv, falseEnv *ssaEnv) {
	if d.builder == nil || !falseEnv.live() {
		return
	}
	trueEnv.chain.Control, falseEnv.chain.Control = d.builder.Branch(cond.Node, falseEnv.chain.Control)
}

// reduceBreakToBlock merges the current environment and the value val into the target block.
func (d *decoder) reduceBreakToBlock(target block, val *Tree) {
	if target.stackDepth < 0 {
		d.goTo(d.env, target.env)
		return
	}
	d.mergeIntoProduction(&d.stack[target.stackDepth], target.env, val)
}

// mergeIntoProduction merges the current environment into target, and the value expr into the type and value of
// the production p that target joins.
func (d *decoder) mergeIntoProduction(p *production, target *ssaEnv, expr *Tree) {
	if !d.env.live() {
		return
	}
	first := target.state == envUnreachable
	d.goTo(d.env, target)
	if expr.Type == TypeUnreachable {
		return
	}
	if first {
		p.tree.Type = expr.Type
		p.tree.Node = expr.Node
		return
	}
	if expr.Type != p.tree.Type {
		p.tree.Type = TypeVoid
		p.tree.Node = NoNode
	} else if p.tree.Type != TypeVoid && d.builder != nil {
		p.tree.Node = d.createOrMergeIntoPhi(p.tree.Type, target.chain.Control, p.tree.Node, expr.Node)
	}
}

// finish checks the state at the end of the body and emits the implicit return.
func (d *decoder) finish() {
	if len(d.stack) > 0 {
		p := d.stack[len(d.stack)-1]
		d.decodeErrorf(p.tree.Offset, nil, "unterminated control structure: %s has %d of %d children",
			wasm.InstructionName(p.tree.Opcode), p.index, len(p.tree.Children))
		return
	}
	if !d.env.live() {
		return
	}
	if d.returnType == TypeVoid {
		if d.build() {
			d.builder.Return(&d.env.chain)
		}
		return
	}

	end := d.body.Offset + len(d.body.Code)
	if len(d.trees) == 0 {
		d.validationErrorf(end, wasm.OpcodeReturn, "implicit return expects 1 value, found none")
		return
	}
	last := d.trees[len(d.trees)-1]
	if !typeMatches(d.returnType, last.Type) {
		d.fail(&wasm.ValidationError{
			Function: d.body.Index,
			Offset:   last.Offset,
			Opcode:   wasm.OpcodeReturn,
			Expected: TypeName(d.returnType),
			Found:    TypeName(last.Type),
			Msg: fmt.Sprintf("implicit return expected type %s, found %s of type %s",
				TypeName(d.returnType), wasm.InstructionName(last.Opcode), TypeName(last.Type)),
		})
		return
	}
	if d.build() {
		d.builder.Return(&d.env.chain, last.Node)
	}
}

func typeMatches(expected, found wasm.ValueType) bool {
	return found == expected || found == TypeUnreachable || expected == TypeVoid
}

// typeCheckLast checks the type of the child just attached to p.
func (d *decoder) typeCheckLast(p *production, expected wasm.ValueType) bool {
	c := p.last()
	if typeMatches(expected, c.Type) {
		return true
	}
	name := wasm.InstructionName(p.tree.Opcode)
	d.fail(&wasm.ValidationError{
		Function: d.body.Index,
		Offset:   p.tree.Offset,
		Opcode:   p.tree.Opcode,
		Expected: TypeName(expected),
		Found:    TypeName(c.Type),
		Msg: fmt.Sprintf("%s[%d] expected type %s, found %s of type %s",
			name, p.index-1, TypeName(expected), wasm.InstructionName(c.Opcode), TypeName(c.Type)),
	})
	return false
}

func childNodes(children []*Tree) []Node {
	ret := make([]Node, len(children))
	for i, c := range children {
		ret[i] = c.Node
	}
	return ret
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *decoder) validationErrorf(offset int, oc wasm.Opcode, format string, args ...interface{}) {
	d.fail(&wasm.ValidationError{Function: d.body.Index, Offset: offset, Opcode: oc, Msg: fmt.Sprintf(format, args...)})
}

func (d *decoder) decodeErrorf(offset int, cause error, format string, args ...interface{}) {
	d.fail(&wasm.DecodeError{
		Offset:  offset,
		Context: fmt.Sprintf("function $%d", d.body.Index),
		Msg:     fmt.Sprintf(format, args...),
		Err:     cause,
	})
}
