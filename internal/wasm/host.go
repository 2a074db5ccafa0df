package wasm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// HostValue is anything a module can import or export: *FunctionInstance, *HostFunction, *TableInstance,
// *MemoryInstance or *GlobalInstance.
type HostValue interface {
	Kind() ExternType
}

// Host is the capability instantiation uses to bind imports and publish exports.
type Host interface {
	// Resolve returns the value for an import. index is the position of the import in Module.Imports.
	Resolve(module, field string, index Index) (HostValue, bool)

	// Register publishes an export of a successfully instantiated module.
	Register(module, field string, v HostValue)
}

// HostFunc is the Go implementation of a HostFunction. caller is the instance that imported the function.
type HostFunc func(ctx context.Context, caller *ModuleInstance, params []uint64) ([]uint64, error)

// HostFunction is a function implemented by the host. Importing it places an adapter in the importer's code table.
type HostFunction struct {
	// Name is for debugging purpose. Ex. "env.log"
	Name string
	Type *FunctionType
	Fn   HostFunc
}

// Kind implements HostValue.Kind
func (f *HostFunction) Kind() ExternType {
	return ExternTypeFunc
}

// Namespace maps module names to their fields. It implements Host, so that a module instantiated in a namespace can
// import what was registered there before, by the host or by other modules.
type Namespace struct {
	mux     sync.RWMutex
	modules map[string]map[string]HostValue
}

// NewNamespace returns an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{modules: map[string]map[string]HostValue{}}
}

// Resolve implements Host.Resolve
func (ns *Namespace) Resolve(module, field string, _ Index) (HostValue, bool) {
	ns.mux.RLock()
	defer ns.mux.RUnlock()
	v, ok := ns.modules[module][field]
	return v, ok
}

// Register implements Host.Register
func (ns *Namespace) Register(module, field string, v HostValue) {
	ns.mux.Lock()
	defer ns.mux.Unlock()
	fields, ok := ns.modules[module]
	if !ok {
		fields = map[string]HostValue{}
		ns.modules[module] = fields
	}
	fields[field] = v
}

// Has is true when anything was registered under the module name.
func (ns *Namespace) Has(module string) bool {
	ns.mux.RLock()
	defer ns.mux.RUnlock()
	_, ok := ns.modules[module]
	return ok
}

// Fields returns the sorted field names registered under the module name.
func (ns *Namespace) Fields(module string) []string {
	ns.mux.RLock()
	defer ns.mux.RUnlock()
	ret := make([]string, 0, len(ns.modules[module]))
	for name := range ns.modules[module] {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Remove deletes every field registered under the module name.
func (ns *Namespace) Remove(module string) {
	ns.mux.Lock()
	defer ns.mux.Unlock()
	delete(ns.modules, module)
}

// RequireModuleUnused returns an error if the module name is already in use.
func (ns *Namespace) RequireModuleUnused(module string) error {
	if ns.Has(module) {
		return fmt.Errorf("module[%s] has already been instantiated", module)
	}
	return nil
}
