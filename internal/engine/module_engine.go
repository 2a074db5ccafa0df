package engine

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"github.com/tetratelabs/wasmengine/internal/ast"
	"github.com/tetratelabs/wasmengine/internal/ssa"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

// maxCallDepth is the count of nested calls within one module engine before a call traps.
const maxCallDepth = 1024

// moduleEngine implements wasm.ModuleEngine.
type moduleEngine struct {
	name     string
	parent   *compiledModule
	instance *wasm.ModuleInstance
	executor Executor

	// table is a copy of the parent's, with imports bound to this instance.
	table CodeTable

	// memory holds the value each memory reference of each function embeds for the current buffer.
	memory      map[memorySite]uint64
	memoryKinds map[memorySite]ssa.MemoryReferenceKind

	closed bool
}

type memorySite struct {
	function wasm.Index
	node     ast.Node
}

var _ wasm.ModuleEngine = (*moduleEngine)(nil)

// memoryReferenceValue returns what a reference of the given kind embeds for buf.
func memoryReferenceValue(kind ssa.MemoryReferenceKind, buf []byte) uint64 {
	if kind == ssa.MemoryReferenceSize {
		return uint64(len(buf))
	}
	return uint64(uintptr(unsafe.Pointer(unsafe.SliceData(buf))))
}

func (me *moduleEngine) initMemoryRelocations(buf []byte) {
	me.memory = map[memorySite]uint64{}
	me.memoryKinds = map[memorySite]ssa.MemoryReferenceKind{}
	for _, c := range me.table.Entries {
		if c.Kind != CodeKindFunction {
			continue
		}
		for _, ref := range c.Graph.MemoryReferences {
			site := memorySite{function: c.Index, node: ref.Node}
			me.memory[site] = memoryReferenceValue(ref.Kind, buf)
			me.memoryKinds[site] = ref.Kind
		}
	}
}

func (me *moduleEngine) memoryRelocationCount() int {
	return len(me.memory)
}

// Name implements wasm.ModuleEngine.Name
func (me *moduleEngine) Name() string {
	return me.name
}

// RelocateMemory implements wasm.MemoryRelocator.RelocateMemory
//
// Only references whose value differs for the new buffer count, so a buffer grown in place changes size references
// only.
func (me *moduleEngine) RelocateMemory(_, new []byte) (changed int) {
	for site, kind := range me.memoryKinds {
		v := memoryReferenceValue(kind, new)
		if me.memory[site] != v {
			me.memory[site] = v
			changed++
		}
	}
	return
}

// Close implements wasm.ModuleEngine.Close
func (me *moduleEngine) Close() error {
	me.closed = true
	me.table = CodeTable{}
	me.memory, me.memoryKinds = nil, nil
	return nil
}

// Call implements wasm.ModuleEngine.Call
//
// An exported function is entered through its export wrapper. Errors are returned as a *wasm.CallError naming this
// module and f, unless they already are one.
func (me *moduleEngine) Call(ctx context.Context, f *wasm.FunctionInstance, params ...uint64) ([]uint64, error) {
	if me.closed {
		return nil, fmt.Errorf("module[%s] is closed", me.name)
	}
	if f.Module != me.instance || int(f.Index) >= len(me.instance.Functions) {
		return nil, fmt.Errorf("function %s is not in module[%s]", f.Name, me.name)
	}

	code := me.table.Entries[f.Index]
	if i, ok := me.parent.wrappers[f.Index]; ok {
		code = me.table.Entries[i]
	}
	results, err := me.invoke(ctx, code, params, 0)
	if err != nil {
		var ce *wasm.CallError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &wasm.CallError{Module: me.name, Function: functionName(f), Err: err}
	}
	return results, nil
}

func functionName(f *wasm.FunctionInstance) string {
	if f.Name != "" {
		return f.Name
	}
	return fmt.Sprintf("$%d", f.Index)
}

// invoke runs code with the given call depth.
func (me *moduleEngine) invoke(ctx context.Context, code *Code, params []uint64, depth int) ([]uint64, error) {
	if depth >= maxCallDepth {
		return nil, &wasm.Trap{Kind: wasm.TrapKindCallStackOverflow}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch code.Kind {
	case CodeKindFunction:
		return me.executor.Execute(ctx, &Invocation{
			Module:   me.instance,
			Function: me.instance.Functions[code.Index],
			Graph:    code.Graph,
			Params:   params,
			engine:   me,
			depth:    depth,
		})
	case CodeKindExportWrapper:
		return me.invoke(ctx, me.table.Relocs[code.Reloc].Ref, params, depth)
	case CodeKindReuse:
		f := code.Function
		callee := f.Module.Engine.(*moduleEngine)
		if callee.closed {
			return nil, fmt.Errorf("module[%s] is closed", callee.name)
		}
		return callee.invoke(ctx, callee.table.Entries[f.Index], params, depth+1)
	case CodeKindImportAdapter:
		f := code.Function
		if f.Host == nil {
			return f.Call(ctx, params...)
		}
		results, err := f.Host.Fn(ctx, me.instance, params)
		if err != nil {
			return nil, &wasm.Trap{Kind: wasm.TrapKindHostFunction, Cause: err}
		}
		return results, nil
	}
	return nil, fmt.Errorf("function[%d] is not linked", code.Index)
}
