package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wasmengine/internal/ast"
	"github.com/tetratelabs/wasmengine/internal/ssa"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

// Invocation is a call of a function defined by a module, passed to an Executor.
type Invocation struct {
	Module   *wasm.ModuleInstance
	Function *wasm.FunctionInstance
	Graph    *ssa.Graph
	Params   []uint64

	engine *moduleEngine
	depth  int
}

// Call performs the direct call at the Call node site of Graph, through the code it was linked to.
func (inv *Invocation) Call(ctx context.Context, site ast.Node, params ...uint64) ([]uint64, error) {
	me := inv.engine
	i, ok := me.parent.sites[callSite{caller: inv.Function.Index, node: site}]
	if !ok {
		return nil, fmt.Errorf("#%d is not a call in function[%d]", site, inv.Function.Index)
	}
	return me.invoke(ctx, me.table.Relocs[i].Ref, params, inv.depth+1)
}

// CallIndirect performs the CallIndirect node site of Graph, calling the element at key of the first table. It traps
// when key is out of range, the element is uninitialized or its signature differs from the expected one.
func (inv *Invocation) CallIndirect(ctx context.Context, site ast.Node, key uint32, params ...uint64) ([]uint64, error) {
	n := inv.Graph.Node(site)
	if n.Op != ssa.OpCallIndirect {
		return nil, fmt.Errorf("#%d is not an indirect call in function[%d]", site, inv.Function.Index)
	}
	if len(inv.Module.Tables) == 0 {
		return nil, &wasm.Trap{Kind: wasm.TrapKindTableOutOfBounds, Offset: uint32(n.Offset)}
	}
	sig := inv.Module.Module.Signatures[n.Aux]
	f, err := inv.Module.Tables[0].Lookup(key, inv.Module.TypeID(sig))
	if err != nil {
		if t, ok := err.(*wasm.Trap); ok {
			t.Offset = uint32(n.Offset)
		}
		return nil, err
	}

	me := inv.engine
	if f.Module == inv.Module {
		return me.invoke(ctx, me.table.Entries[f.Index], params, inv.depth+1)
	}
	return f.Call(ctx, params...)
}

// MemoryReference returns what the MemoryBase or MemorySize node embeds for the current memory buffer.
func (inv *Invocation) MemoryReference(node ast.Node) (uint64, bool) {
	v, ok := inv.engine.memory[memorySite{function: inv.Function.Index, node: node}]
	return v, ok
}
