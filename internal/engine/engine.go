// Package engine compiles modules into code tables of SSA graphs, links them, and creates the per-instance module
// engines that calls go through.
//
// The engine emits no machine code: function bodies are executed by an Executor, while host functions, imports and
// export wrappers are dispatched here.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tetratelabs/wasmengine/internal/ast"
	"github.com/tetratelabs/wasmengine/internal/metrics"
	"github.com/tetratelabs/wasmengine/internal/ssa"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

// Config configures NewEngine. The zero value is valid.
type Config struct {
	// CompilationTasks is the maximum count of goroutines compiling a module, including the caller's. Zero means
	// runtime.NumCPU.
	CompilationTasks int

	// LoopAssignmentAnalysis is ast.Options.LoopAssignmentAnalysis.
	LoopAssignmentAnalysis bool

	// ReportAll returns every function that failed to compile, instead of the one with the lowest index.
	ReportAll bool

	// ImportShortcut calls a function imported from another instance via its compiled code, instead of through
	// an adapter calling that instance's module engine.
	ImportShortcut bool

	// Executor runs function bodies. Defaults to one that always fails.
	Executor Executor

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Engine implements wasm.Engine.
type Engine struct {
	cfg Config

	mux     sync.RWMutex
	modules map[*wasm.Module]*compiledModule
}

// compiledModule is the code shared by every instance of a module.
type compiledModule struct {
	table CodeTable
	// wrappers maps an exported function index to the position of its export wrapper in table.Entries.
	wrappers map[wasm.Index]int
	// sites maps a direct call node to its position in table.Relocs.
	sites map[callSite]int
	stats CompileStats
}

type callSite struct {
	caller wasm.Index
	node   ast.Node
}

// CompileStats describes the result of compiling a module.
type CompileStats struct {
	// Functions is the count of function bodies built.
	Functions int
	// Nodes is the total count of graph nodes.
	Nodes int
	// CallSites is the count of direct call sites, including the ones of export wrappers.
	CallSites int
	// Linked is the count of call sites resolved at compile time. The rest target imports.
	Linked int
}

var _ wasm.Engine = (*Engine)(nil)

// NewEngine returns an engine configured by cfg.
func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Executor == nil {
		cfg.Executor = unsupportedExecutor{}
	}
	return &Engine{cfg: cfg, modules: map[*wasm.Module]*compiledModule{}}
}

// CompileModule implements wasm.Engine.CompileModule
func (e *Engine) CompileModule(ctx context.Context, module *wasm.Module) error {
	if _, ok := e.getCompiledModule(module); ok {
		return nil
	}

	start := time.Now()
	logger := e.cfg.Logger
	logger.Debug("compiling module",
		zap.Int("functions", len(module.Functions)-int(module.ImportedFunctionCount)),
		zap.Int("tasks", compilationTasks(e.cfg.CompilationTasks, len(module.Functions))))

	graphs, err := compileFunctions(ctx, module, compileOptions{
		tasks:     e.cfg.CompilationTasks,
		reportAll: e.cfg.ReportAll,
		ast:       ast.Options{LoopAssignmentAnalysis: e.cfg.LoopAssignmentAnalysis},
		logger:    logger,
		metrics:   e.cfg.Metrics,
	})
	if err != nil {
		return err
	}

	cm := &compiledModule{table: newCodeTable(module, graphs), wrappers: map[wasm.Index]int{}, sites: map[callSite]int{}}
	cm.stats.Linked = Link(&cm.table)
	cm.stats.Functions = len(graphs)
	cm.stats.CallSites = len(cm.table.Relocs)
	for _, g := range graphs {
		cm.stats.Nodes += g.NodeCount()
	}
	for i, c := range cm.table.Entries {
		if _, ok := cm.wrappers[c.Index]; c.Kind == CodeKindExportWrapper && !ok {
			cm.wrappers[c.Index] = i
		}
	}
	for i, r := range cm.table.Relocs {
		if r.Site != ast.NoNode {
			cm.sites[callSite{caller: wasm.Index(r.Caller), node: r.Site}] = i
		}
	}

	e.addCompiledModule(module, cm)
	e.cfg.Metrics.ModuleCompiled(start)
	logger.Debug("compiled module",
		zap.Int("functions", cm.stats.Functions),
		zap.Int("nodes", cm.stats.Nodes),
		zap.Int("call_sites", cm.stats.CallSites),
		zap.Int("linked", cm.stats.Linked),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Stats returns the statistics of a compiled module, or false if it wasn't compiled.
func (e *Engine) Stats(module *wasm.Module) (CompileStats, bool) {
	cm, ok := e.getCompiledModule(module)
	if !ok {
		return CompileStats{}, false
	}
	return cm.stats, true
}

// Graph returns the graph built for the defined function at funcIdx, or nil.
func (e *Engine) Graph(module *wasm.Module, funcIdx wasm.Index) *ssa.Graph {
	cm, ok := e.getCompiledModule(module)
	if !ok || funcIdx >= uint32(len(module.Functions)) {
		return nil
	}
	return cm.table.Entries[funcIdx].Graph
}

// CompiledModuleCount returns the count of modules compiled and not deleted.
func (e *Engine) CompiledModuleCount() uint32 {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return uint32(len(e.modules))
}

// DeleteCompiledModule implements wasm.Engine.DeleteCompiledModule
func (e *Engine) DeleteCompiledModule(module *wasm.Module) {
	e.mux.Lock()
	defer e.mux.Unlock()
	delete(e.modules, module)
}

func (e *Engine) addCompiledModule(module *wasm.Module, cm *compiledModule) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.modules[module] = cm
}

func (e *Engine) getCompiledModule(module *wasm.Module) (cm *compiledModule, ok bool) {
	e.mux.RLock()
	defer e.mux.RUnlock()
	cm, ok = e.modules[module]
	return
}

// NewModuleEngine implements wasm.Engine.NewModuleEngine
func (e *Engine) NewModuleEngine(name string, module *wasm.Module, instance *wasm.ModuleInstance) (wasm.ModuleEngine, error) {
	cm, ok := e.getCompiledModule(module)
	if !ok {
		return nil, fmt.Errorf("source module for %s must be compiled before instantiation", name)
	}

	me := &moduleEngine{
		name:     name,
		parent:   cm,
		instance: instance,
		executor: e.cfg.Executor,
		table:    cm.table.clone(),
	}
	for idx := wasm.Index(0); idx < module.ImportedFunctionCount; idx++ {
		f := instance.Functions[idx]
		if f == nil {
			return nil, fmt.Errorf("BUG: imported function[%d] is not bound", idx)
		}
		me.table.Entries[idx] = e.importCode(idx, f)
	}
	linked := Link(&me.table)
	if n := me.table.unresolved(); n > 0 {
		return nil, fmt.Errorf("%d call sites are not linked", n)
	}
	if instance.Memory != nil {
		me.initMemoryRelocations(instance.Memory.Buffer)
	}

	e.cfg.Logger.Debug("created module engine",
		zap.String("module", name),
		zap.Int("linked", linked),
		zap.Int("memory_relocations", me.memoryRelocationCount()))
	return me, nil
}

// importCode returns the code calling the imported function f.
func (e *Engine) importCode(idx wasm.Index, f *wasm.FunctionInstance) *Code {
	if f.Host == nil && e.cfg.ImportShortcut {
		if _, ok := f.Module.Engine.(*moduleEngine); ok {
			return &Code{Kind: CodeKindReuse, Index: idx, Function: f}
		}
	}
	return &Code{Kind: CodeKindImportAdapter, Index: idx, Function: f}
}

// Executor runs the graph of a function body. Implementations report faults as a *wasm.Trap.
type Executor interface {
	Execute(ctx context.Context, inv *Invocation) ([]uint64, error)
}

// ErrNoExecutor is returned when calling a function body without an Executor configured.
var ErrNoExecutor = errors.New("no executor configured")

type unsupportedExecutor struct{}

// Execute implements Executor.Execute
func (unsupportedExecutor) Execute(context.Context, *Invocation) ([]uint64, error) {
	return nil, ErrNoExecutor
}
