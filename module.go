package wasmengine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wasmengine/api"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

// moduleInstance implements api.Module.
type moduleInstance struct {
	inst *wasm.ModuleInstance
	// r is nil for the caller view passed to host functions, which must not close the module.
	r *runtime
}

var _ api.Module = (*moduleInstance)(nil)

// String implements fmt.Stringer
func (m *moduleInstance) String() string {
	return fmt.Sprintf("Module[%s]", m.inst.Name)
}

// Name implements api.Module.Name
func (m *moduleInstance) Name() string {
	return m.inst.Name
}

// Memory implements api.Module.Memory
func (m *moduleInstance) Memory() api.Memory {
	if m.inst.Memory == nil {
		return nil
	}
	return &memory{inst: m.inst}
}

// ExportedFunction implements api.Module.ExportedFunction
func (m *moduleInstance) ExportedFunction(name string) api.Function {
	f := m.inst.ExportedFunction(name)
	if f == nil {
		return nil
	}
	return &function{f: f}
}

// ExportedMemory implements api.Module.ExportedMemory
func (m *moduleInstance) ExportedMemory(name string) api.Memory {
	if m.inst.ExportedMemory(name) == nil {
		return nil
	}
	return &memory{inst: m.inst}
}

// ExportedGlobal implements api.Module.ExportedGlobal
func (m *moduleInstance) ExportedGlobal(name string) api.Global {
	g := m.inst.ExportedGlobal(name)
	if g == nil {
		return nil
	}
	if g.Type.Mutable {
		return &mutableGlobal{global{g: g}}
	}
	return &global{g: g}
}

// Close implements api.Module.Close
func (m *moduleInstance) Close(context.Context) error {
	if m.r == nil {
		return fmt.Errorf("module[%s] can't be closed by a host function", m.inst.Name)
	}
	m.r.removeModule(m.inst.Name)
	return m.inst.Close()
}

// function implements api.Function.
type function struct {
	f *wasm.FunctionInstance
}

// ParamTypes implements api.Function.ParamTypes
func (f *function) ParamTypes() []api.ValueType {
	return f.f.Type.Params
}

// ResultTypes implements api.Function.ResultTypes
func (f *function) ResultTypes() []api.ValueType {
	return f.f.Type.Results
}

// Call implements api.Function.Call
func (f *function) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return f.f.Call(ctx, params...)
}

// memory implements api.Memory. Growing goes through the instance, so that it is logged and counted.
type memory struct {
	inst *wasm.ModuleInstance
}

// Size implements api.Memory.Size
func (m *memory) Size() uint32 {
	return uint32(m.inst.Memory.Size())
}

// Grow implements api.Memory.Grow
func (m *memory) Grow(deltaPages uint32) (uint32, bool) {
	prev, err := m.inst.GrowMemory(deltaPages)
	return prev, err == nil
}

// ReadByte implements api.Memory.ReadByte
func (m *memory) ReadByte(offset uint32) (byte, bool) {
	return m.inst.Memory.ReadByte(offset)
}

// ReadUint32Le implements api.Memory.ReadUint32Le
func (m *memory) ReadUint32Le(offset uint32) (uint32, bool) {
	return m.inst.Memory.ReadUint32Le(offset)
}

// ReadUint64Le implements api.Memory.ReadUint64Le
func (m *memory) ReadUint64Le(offset uint32) (uint64, bool) {
	return m.inst.Memory.ReadUint64Le(offset)
}

// Read implements api.Memory.Read
func (m *memory) Read(offset, byteCount uint32) ([]byte, bool) {
	return m.inst.Memory.Read(offset, byteCount)
}

// WriteByte implements api.Memory.WriteByte
func (m *memory) WriteByte(offset uint32, v byte) bool {
	return m.inst.Memory.WriteByte(offset, v)
}

// WriteUint32Le implements api.Memory.WriteUint32Le
func (m *memory) WriteUint32Le(offset, v uint32) bool {
	return m.inst.Memory.WriteUint32Le(offset, v)
}

// WriteUint64Le implements api.Memory.WriteUint64Le
func (m *memory) WriteUint64Le(offset uint32, v uint64) bool {
	return m.inst.Memory.WriteUint64Le(offset, v)
}

// Write implements api.Memory.Write
func (m *memory) Write(offset uint32, v []byte) bool {
	return m.inst.Memory.Write(offset, v)
}

// global implements api.Global.
type global struct {
	g *wasm.GlobalInstance
}

// String implements fmt.Stringer
func (g *global) String() string {
	return g.g.String()
}

// Type implements api.Global.Type
func (g *global) Type() api.ValueType {
	return g.g.Type.ValType
}

// Get implements api.Global.Get
func (g *global) Get() uint64 {
	return g.g.Get()
}

// mutableGlobal implements api.MutableGlobal.
type mutableGlobal struct {
	global
}

// Set implements api.MutableGlobal.Set
func (g *mutableGlobal) Set(v uint64) {
	g.g.Set(v)
}
