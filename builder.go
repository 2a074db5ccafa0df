package wasmengine

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tetratelabs/wasmengine/api"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

// HostModuleBuilder is a way to define host functions, memories, tables and globals in Go, so that modules
// instantiated afterwards can import them.
//
// Ex. Below defines and instantiates a module named "env" with an add function:
//
//	add := func(_ context.Context, _ api.Module, params []uint64) ([]uint64, error) {
//		return []uint64{uint64(uint32(params[0]) + uint32(params[1]))}, nil
//	}
//	i32 := api.ValueTypeI32
//	err := r.NewHostModuleBuilder("env").
//		ExportFunction("add", []api.ValueType{i32, i32}, []api.ValueType{i32}, add).
//		Instantiate(ctx)
//
// Notes:
//   - HostModuleBuilder is mutable: each method returns the same instance for chaining.
//   - Exporting the same name twice keeps the last definition.
//   - Errors are deferred until Instantiate.
type HostModuleBuilder interface {
	// ExportFunction adds a function written in Go. The caller module passed to fn is the one that imported it.
	ExportFunction(name string, params, results []api.ValueType, fn api.GoFunction) HostModuleBuilder

	// ExportMemory adds a memory of min pages, growable up to max pages.
	ExportMemory(name string, min, max uint32) HostModuleBuilder

	// ExportTable adds a function table of min uninitialized elements, up to max.
	ExportTable(name string, min, max uint32) HostModuleBuilder

	// ExportGlobal adds a global of the given type holding the encoded value v.
	ExportGlobal(name string, t api.ValueType, v uint64, mutable bool) HostModuleBuilder

	// Instantiate registers every export under the module name, failing if the name is already in use.
	Instantiate(ctx context.Context) error
}

// hostModuleBuilder implements HostModuleBuilder
type hostModuleBuilder struct {
	r          *runtime
	moduleName string
	names      []string
	values     map[string]wasm.HostValue
	err        error
}

// NewHostModuleBuilder implements Runtime.NewHostModuleBuilder
func (r *runtime) NewHostModuleBuilder(moduleName string) HostModuleBuilder {
	return &hostModuleBuilder{r: r, moduleName: moduleName, values: map[string]wasm.HostValue{}}
}

func (b *hostModuleBuilder) export(name string, v wasm.HostValue) {
	if _, ok := b.values[name]; !ok {
		b.names = append(b.names, name)
	}
	b.values[name] = v
}

func (b *hostModuleBuilder) fail(name string, err error) {
	b.err = multierr.Append(b.err, fmt.Errorf("%s.%s: %w", b.moduleName, name, err))
}

// ExportFunction implements HostModuleBuilder.ExportFunction
func (b *hostModuleBuilder) ExportFunction(name string, params, results []api.ValueType, fn api.GoFunction) HostModuleBuilder {
	if err := validateValueTypes(params, results); err != nil {
		b.fail(name, err)
		return b
	}
	if fn == nil {
		b.fail(name, fmt.Errorf("function is nil"))
		return b
	}
	b.export(name, &wasm.HostFunction{
		Name: b.moduleName + "." + name,
		Type: &wasm.FunctionType{Params: params, Results: results},
		Fn: func(ctx context.Context, caller *wasm.ModuleInstance, params []uint64) ([]uint64, error) {
			return fn(ctx, &moduleInstance{inst: caller}, params)
		},
	})
	return b
}

// memoryDefinition is an exported memory not yet allocated.
type memoryDefinition struct {
	min, max uint32
}

// Kind implements wasm.HostValue.Kind
func (*memoryDefinition) Kind() wasm.ExternType {
	return wasm.ExternTypeMemory
}

func validateValueTypes(params, results []api.ValueType) error {
	if len(results) > 1 {
		return fmt.Errorf("multiple result types invalid as feature %q is disabled", "multi-value")
	}
	for _, t := range append(params[:len(params):len(params)], results...) {
		if !wasm.IsValueType(t) {
			return fmt.Errorf("invalid value type: %#x", t)
		}
	}
	return nil
}

// ExportMemory implements HostModuleBuilder.ExportMemory
func (b *hostModuleBuilder) ExportMemory(name string, min, max uint32) HostModuleBuilder {
	if limit := b.r.config.memoryMaxPages; max > limit {
		b.fail(name, fmt.Errorf("memory max %d pages (%s) over limit of %d pages (%s)",
			max, wasm.PagesToUnitOfBytes(max), limit, wasm.PagesToUnitOfBytes(limit)))
		return b
	}
	if min > max {
		b.fail(name, fmt.Errorf("memory min %d pages > max %d pages", min, max))
		return b
	}
	b.export(name, &memoryDefinition{min: min, max: max})
	return b
}

// ExportTable implements HostModuleBuilder.ExportTable
func (b *hostModuleBuilder) ExportTable(name string, min, max uint32) HostModuleBuilder {
	if min > max {
		b.fail(name, fmt.Errorf("table min %d > max %d", min, max))
		return b
	}
	b.export(name, wasm.NewTableInstance(min, max))
	return b
}

// ExportGlobal implements HostModuleBuilder.ExportGlobal
func (b *hostModuleBuilder) ExportGlobal(name string, t api.ValueType, v uint64, mutable bool) HostModuleBuilder {
	if !wasm.IsValueType(t) {
		b.fail(name, fmt.Errorf("invalid value type: %#x", t))
		return b
	}
	b.export(name, wasm.NewHostGlobal(&wasm.GlobalType{ValType: t, Mutable: mutable}, v))
	return b
}

// Instantiate implements HostModuleBuilder.Instantiate
func (b *hostModuleBuilder) Instantiate(context.Context) (err error) {
	if b.err != nil {
		return b.err
	}
	r := b.r
	if err = r.ns.RequireModuleUnused(b.moduleName); err != nil {
		return err
	}

	// Memories are allocated here, so that a builder never instantiated holds none.
	values := make(map[string]wasm.HostValue, len(b.values))
	var memories []*wasm.MemoryInstance
	for _, name := range b.names {
		v := b.values[name]
		if def, ok := v.(*memoryDefinition); ok {
			mem, memErr := wasm.NewMemoryInstance(def.min, def.max, r.store.GuardRegions)
			if memErr != nil {
				for _, m := range memories {
					_ = m.Close()
				}
				return fmt.Errorf("%s.%s: %w", b.moduleName, name, memErr)
			}
			memories = append(memories, mem)
			v = mem
		}
		values[name] = v
	}

	for _, name := range b.names {
		r.ns.Register(b.moduleName, name, values[name])
	}
	r.mux.Lock()
	r.hostMemories = append(r.hostMemories, memories...)
	r.mux.Unlock()

	r.config.logger.Debug("instantiated host module",
		zap.String("module", b.moduleName),
		zap.Strings("exports", b.names))
	return nil
}
