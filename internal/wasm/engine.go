package wasm

import "context"

// Engine compiles modules and creates the per-instance view of compiled code. It is implemented by
// internal/engine.
type Engine interface {
	// CompileModule decodes and builds every function defined in the module. Compiled code is cached by module, so
	// calling this again is a no-op.
	CompileModule(ctx context.Context, module *Module) error

	// NewModuleEngine returns the linked code of a compiled module for a new instance. The instance's imported
	// functions must already be bound: instance.Functions[:module.ImportedFunctionCount].
	NewModuleEngine(name string, module *Module, instance *ModuleInstance) (ModuleEngine, error)

	// DeleteCompiledModule releases the code compiled for module.
	DeleteCompiledModule(module *Module)
}

// ModuleEngine implements function calls for a given module instance.
type ModuleEngine interface {
	MemoryRelocator

	// Name returns the name of the module this engine was created for.
	Name() string

	// Call invokes f, which belongs to this engine's instance, with the given parameters.
	Call(ctx context.Context, f *FunctionInstance, params ...uint64) ([]uint64, error)

	// Close releases the resources of this engine. Calls after close return an error.
	Close() error
}
