package wasmengine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tetratelabs/wasmengine/api"
	"github.com/tetratelabs/wasmengine/internal/engine"
	"github.com/tetratelabs/wasmengine/internal/metrics"
	"github.com/tetratelabs/wasmengine/internal/wasm"
	"github.com/tetratelabs/wasmengine/internal/wasm/binary"
)

// Runtime allows embedding of modules in the pre-MVP binary format.
//
// Ex.
//
//	ctx := context.Background()
//	r, _ := wasmengine.NewRuntime(ctx)
//	defer r.Close(ctx) // This closes everything this Runtime created.
//
//	compiled, _ := r.CompileModule(ctx, source)
//	module, _ := r.InstantiateModule(ctx, compiled, wasmengine.NewModuleConfig().WithName("app"))
type Runtime interface {
	// NewHostModuleBuilder lets you create modules out of functions, memories and globals defined in Go.
	//
	// Ex. Below defines and instantiates a module named "env" with one function:
	//
	//	_, err := r.NewHostModuleBuilder("env").
	//		ExportFunction("hello", nil, nil, hello).
	//		Instantiate(ctx)
	NewHostModuleBuilder(moduleName string) HostModuleBuilder

	// CompileModule decodes the binary source, then decodes, validates and builds every function body in parallel.
	// Errors are *wasm.DecodeError for malformed encodings and *wasm.ValidationError for invalid function bodies,
	// possibly combined when the runtime reports all.
	CompileModule(ctx context.Context, source []byte) (CompiledModule, error)

	// InstantiateModule instantiates the compiled module, resolving its imports from the modules instantiated
	// before, and registers its exports under the configured name. A nil config is NewModuleConfig.
	//
	// Errors are *wasm.InstantiationError. When one is returned, nothing was registered.
	InstantiateModule(ctx context.Context, compiled CompiledModule, config *ModuleConfig) (api.Module, error)

	// Module returns the module instantiated under the name, or nil.
	Module(moduleName string) api.Module

	// Close closes every module instantiated and releases every compiled module.
	Close(ctx context.Context) error
}

// CompiledModule is a decoded, validated and compiled module ready to be instantiated any number of times.
type CompiledModule interface {
	// ExportNames returns the names of the exports in declaration order.
	ExportNames() []string

	// Stats describes the result of compilation.
	Stats() CompileStats

	// Close releases the compiled code. Instances already created keep working.
	Close(ctx context.Context) error
}

// CompileStats describes the result of compiling a module.
type CompileStats = engine.CompileStats

// NewRuntime returns a runtime with the default configuration. See NewRuntimeWithConfig
func NewRuntime(ctx context.Context) (Runtime, error) {
	return NewRuntimeWithConfig(ctx, NewRuntimeConfig())
}

// NewRuntimeWithConfig returns a runtime with the given configuration. This fails when the metrics collectors
// can't be registered, ex. twice with the same registerer.
func NewRuntimeWithConfig(_ context.Context, config *RuntimeConfig) (Runtime, error) {
	m, err := metrics.New(config.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	e := engine.NewEngine(config.engineConfig(m))
	store := wasm.NewStore(e, config.logger, m)
	store.GuardRegions = config.guardRegions
	return &runtime{
		config:  config,
		engine:  e,
		store:   store,
		ns:      wasm.NewNamespace(),
		modules: map[string]*moduleInstance{},
	}, nil
}

// runtime allows decoupling of public interfaces from internal representation.
type runtime struct {
	config *RuntimeConfig
	engine *engine.Engine
	store  *wasm.Store
	ns     *wasm.Namespace

	mux      sync.Mutex
	modules  map[string]*moduleInstance
	compiled []*compiledModule
	// hostMemories are closed with the runtime, as no instance owns them.
	hostMemories []*wasm.MemoryInstance
}

type compiledModule struct {
	module *wasm.Module
	engine *engine.Engine
}

// ExportNames implements CompiledModule.ExportNames
func (c *compiledModule) ExportNames() []string {
	ret := make([]string, 0, len(c.module.Exports))
	for _, e := range c.module.Exports {
		ret = append(ret, e.Name)
	}
	return ret
}

// Stats implements CompiledModule.Stats
func (c *compiledModule) Stats() CompileStats {
	s, _ := c.engine.Stats(c.module)
	return s
}

// Close implements CompiledModule.Close
func (c *compiledModule) Close(context.Context) error {
	c.engine.DeleteCompiledModule(c.module)
	return nil
}

// CompileModule implements Runtime.CompileModule
func (r *runtime) CompileModule(ctx context.Context, source []byte) (CompiledModule, error) {
	if source == nil {
		return nil, errors.New("source == nil")
	}
	if len(source) < 8 { // magic + version
		return nil, errors.New("invalid source")
	}

	m, err := binary.DecodeModule(source, binary.DecodeOptions{MemoryMaxPages: r.config.memoryMaxPages})
	if err != nil {
		return nil, err
	}
	if err = r.engine.CompileModule(ctx, m); err != nil {
		return nil, err
	}

	c := &compiledModule{module: m, engine: r.engine}
	r.mux.Lock()
	r.compiled = append(r.compiled, c)
	r.mux.Unlock()
	return c, nil
}

// InstantiateModule implements Runtime.InstantiateModule
func (r *runtime) InstantiateModule(ctx context.Context, compiled CompiledModule, config *ModuleConfig) (api.Module, error) {
	c, ok := compiled.(*compiledModule)
	if !ok {
		return nil, fmt.Errorf("unsupported compiled module %T", compiled)
	}
	if config == nil {
		config = NewModuleConfig()
	}
	name := "module"
	if config.nameSet {
		name = config.name
	}

	if err := r.ns.RequireModuleUnused(name); err != nil {
		return nil, err
	}
	inst, err := r.store.Instantiate(ctx, c.module, name, r.ns, config.startFunctionDisabled)
	if err != nil {
		return nil, err
	}

	m := &moduleInstance{inst: inst, r: r}
	r.mux.Lock()
	r.modules[name] = m
	r.mux.Unlock()
	return m, nil
}

// Module implements Runtime.Module
func (r *runtime) Module(moduleName string) api.Module {
	r.mux.Lock()
	defer r.mux.Unlock()
	if m, ok := r.modules[moduleName]; ok {
		return m
	}
	return nil
}

// removeModule unregisters a closed module, so that its name can be reused.
func (r *runtime) removeModule(name string) {
	r.mux.Lock()
	delete(r.modules, name)
	r.mux.Unlock()
	r.ns.Remove(name)
}

// Close implements Runtime.Close
func (r *runtime) Close(ctx context.Context) (err error) {
	r.mux.Lock()
	modules := make([]*moduleInstance, 0, len(r.modules))
	for _, m := range r.modules {
		modules = append(modules, m)
	}
	compiled, memories := r.compiled, r.hostMemories
	r.compiled, r.hostMemories = nil, nil
	r.mux.Unlock()

	for _, m := range modules {
		err = multierr.Append(err, m.Close(ctx))
	}
	for _, mem := range memories {
		err = multierr.Append(err, mem.Close())
	}
	for _, c := range compiled {
		err = multierr.Append(err, c.Close(ctx))
	}
	r.config.logger.Debug("closed runtime", zap.Int("modules", len(modules)), zap.Error(err))
	return
}
