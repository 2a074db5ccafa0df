package wasmengine

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tetratelabs/wasmengine/internal/engine"
	"github.com/tetratelabs/wasmengine/internal/metrics"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

type (
	// Executor runs the graphs compiled for function bodies. Without one, calling a function defined by a module
	// returns an error, while host functions and imports still work.
	Executor = engine.Executor

	// Invocation is a call of a function defined by a module, passed to an Executor.
	Invocation = engine.Invocation
)

// RuntimeConfig controls runtime behavior, with the default implementation as NewRuntimeConfig
//
// Note: RuntimeConfig is immutable. Each WithXXX function returns a new instance including the corresponding change.
type RuntimeConfig struct {
	logger                 *zap.Logger
	registerer             prometheus.Registerer
	executor               Executor
	compilationTasks       int
	memoryMaxPages         uint32
	guardRegions           bool
	loopAssignmentAnalysis bool
	reportAll              bool
	importShortcut         bool
}

// defaultConfig helps avoid copy/pasting the wrong defaults.
var defaultConfig = &RuntimeConfig{
	logger:         zap.NewNop(),
	memoryMaxPages: wasm.MemoryMaxPages,
	importShortcut: true,
}

// NewRuntimeConfig returns the default configuration: no logging nor metrics, one compilation task per CPU, no
// guard regions, and imports of other modules' functions called without an adapter.
func NewRuntimeConfig() *RuntimeConfig {
	return defaultConfig.clone()
}

// clone ensures all fields are copied even if nil.
func (c *RuntimeConfig) clone() *RuntimeConfig {
	ret := *c
	return &ret
}

// WithLogger sets the logger used for compilation, instantiation and memory growth. Defaults to zap.NewNop.
func (c *RuntimeConfig) WithLogger(logger *zap.Logger) *RuntimeConfig {
	if logger == nil {
		logger = zap.NewNop()
	}
	ret := c.clone()
	ret.logger = logger
	return ret
}

// WithCompilationTasks sets the maximum count of goroutines compiling a module, including the caller's. Zero or
// less means runtime.NumCPU, which is also the upper bound.
func (c *RuntimeConfig) WithCompilationTasks(tasks int) *RuntimeConfig {
	ret := c.clone()
	ret.compilationTasks = tasks
	return ret
}

// WithGuardRegions reserves the address range of each memory's maximum size at instantiation, so that growing
// never moves it. This trades address space for fewer memory relocations. Defaults to false.
func (c *RuntimeConfig) WithGuardRegions(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.guardRegions = enabled
	return ret
}

// WithMemoryMaxPages reduces the maximum number of pages a module can define from 65536 pages (4GiB) to a lower value.
//
// Note: If a module defines a memory max larger than this amount, it will fail to compile (Runtime.CompileModule).
func (c *RuntimeConfig) WithMemoryMaxPages(memoryMaxPages uint32) *RuntimeConfig {
	ret := c.clone()
	ret.memoryMaxPages = memoryMaxPages
	return ret
}

// WithLoopAssignmentAnalysis scans each loop for the locals it assigns, so that only those get a phi at the loop
// header. Defaults to false.
func (c *RuntimeConfig) WithLoopAssignmentAnalysis(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.loopAssignmentAnalysis = enabled
	return ret
}

// WithReportAll returns every function that failed to compile from Runtime.CompileModule, instead of the one with
// the lowest index. Defaults to false.
func (c *RuntimeConfig) WithReportAll(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.reportAll = enabled
	return ret
}

// WithMetricsRegisterer registers prometheus collectors for compilation, instantiation and memory growth. Defaults
// to nil, which records nothing.
func (c *RuntimeConfig) WithMetricsRegisterer(reg prometheus.Registerer) *RuntimeConfig {
	ret := c.clone()
	ret.registerer = reg
	return ret
}

// WithExecutor sets what runs function bodies.
func (c *RuntimeConfig) WithExecutor(executor Executor) *RuntimeConfig {
	ret := c.clone()
	ret.executor = executor
	return ret
}

// WithImportShortcut calls a function imported from another module directly through its compiled code instead of
// through that module's exports. Defaults to true.
//
// Note: Call results are the same either way. Errors differ only in which module a wrapping api error names.
func (c *RuntimeConfig) WithImportShortcut(enabled bool) *RuntimeConfig {
	ret := c.clone()
	ret.importShortcut = enabled
	return ret
}

func (c *RuntimeConfig) engineConfig(m *metrics.Metrics) engine.Config {
	return engine.Config{
		CompilationTasks:       c.compilationTasks,
		LoopAssignmentAnalysis: c.loopAssignmentAnalysis,
		ReportAll:              c.reportAll,
		ImportShortcut:         c.importShortcut,
		Executor:               c.executor,
		Logger:                 c.logger,
		Metrics:                m,
	}
}

// ModuleConfig configures the instantiation of a module.
//
// Note: ModuleConfig is immutable. Each WithXXX function returns a new instance including the corresponding change.
type ModuleConfig struct {
	name                  string
	nameSet               bool
	startFunctionDisabled bool
}

// NewModuleConfig returns a configuration that instantiates a module under a name chosen by
// Runtime.InstantiateModule, and runs its start function.
func NewModuleConfig() *ModuleConfig {
	return &ModuleConfig{}
}

// WithName configures the name other modules import this one's exports with. Defaults to "module".
//
// Note: Names must be unique within a Runtime, so instantiating the same module twice needs different names.
func (c *ModuleConfig) WithName(name string) *ModuleConfig {
	ret := *c
	ret.name, ret.nameSet = name, true
	return &ret
}

// WithStartFunctionDisabled skips calling the start function declared by the module. Defaults to false.
func (c *ModuleConfig) WithStartFunctionDisabled(disabled bool) *ModuleConfig {
	ret := *c
	ret.startFunctionDisabled = disabled
	return &ret
}
