package wasm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tetratelabs/wasmengine/internal/metrics"
)

type (
	// Store instantiates compiled modules. It assigns function type IDs, so every instance that may call another
	// indirectly must be instantiated by the same Store.
	//
	// Note: Instantiate is safe for concurrent use, but the instances it returns are not: growing memory or closing
	// an instance must not overlap with calls into it.
	Store struct {
		// Engine is a global context for a Store which is in responsible for compilation and execution of modules.
		Engine Engine

		// GuardRegions reserves the address range of each memory's maximum size, so that memory grows in place.
		GuardRegions bool

		logger  *zap.Logger
		metrics *metrics.Metrics

		mux sync.Mutex
		// typeIDs maps each FunctionType.String() to a unique FunctionTypeID. This is used at runtime to
		// do type-checks on indirect function calls.
		typeIDs map[string]FunctionTypeID
	}

	// ModuleInstance represents an instantiated module.
	ModuleInstance struct {
		Name   string
		Module *Module

		// Functions is the function index space. Imported entries are the instances they were bound to.
		Functions []*FunctionInstance

		// Globals is the global index space. Defined globals are views into GlobalsBuffer.
		Globals       []*GlobalInstance
		GlobalsBuffer []byte

		// Tables is the table index space.
		Tables []*TableInstance

		// Memory is the declared or imported memory, or nil.
		Memory *MemoryInstance

		// Engine holds the linked code of this instance.
		Engine ModuleEngine

		exports    map[string]HostValue
		exportList []*Export
		store      *Store
		ownsMemory bool
		closed     bool
	}

	// FunctionInstance is a function in a ModuleInstance's function index space.
	FunctionInstance struct {
		// Module is the instance that defined the function. For a host function, it's the instance that imported it.
		Module *ModuleInstance

		// Index is the position of the function in Module.Functions.
		Index Index

		Type   *FunctionType
		TypeID FunctionTypeID

		// Name is for debugging purpose, and is used to argument errors.
		Name string

		// Host is set when this is an imported host function.
		Host *HostFunction
	}
)

// NewStore returns a store that compiles with engine. logger and m may be nil.
func NewStore(engine Engine, logger *zap.Logger, m *metrics.Metrics) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{Engine: engine, logger: logger, metrics: m, typeIDs: map[string]FunctionTypeID{}}
}

// GetFunctionTypeID returns the ID of the signature, assigning one on first use.
func (s *Store) GetFunctionTypeID(t *FunctionType) FunctionTypeID {
	s.mux.Lock()
	defer s.mux.Unlock()
	key := t.String()
	id, ok := s.typeIDs[key]
	if !ok {
		id = FunctionTypeID(len(s.typeIDs))
		s.typeIDs[key] = id
	}
	return id
}

// Instantiate creates an instance of a module previously compiled by Store.Engine, in this order:
//  1. allocate the memory, unless imported.
//  2. allocate the globals buffer.
//  3. resolve imports in declaration order via host.
//  4. initialize globals, then bounds-check every data and element segment.
//  5. create the module engine, which binds imports and links.
//  6. apply segments and run the start function, unless startDisabled.
//  7. register exports via host.
//
// On any failure, everything allocated is released, nothing is registered and an *InstantiationError is returned.
// Note: Segments are applied only once all of them fit, but a failing start function may leave writes to imported
// memory or tables behind.
func (s *Store) Instantiate(ctx context.Context, module *Module, name string, host Host, startDisabled bool) (inst *ModuleInstance, err error) {
	defer func() {
		s.metrics.Instantiated(err)
	}()

	m := &ModuleInstance{
		Name:      name,
		Module:    module,
		Functions: make([]*FunctionInstance, len(module.Functions)),
		Globals:   make([]*GlobalInstance, len(module.Globals)),
		Tables:    make([]*TableInstance, len(module.Tables)),
		store:     s,
	}
	defer func() {
		if err != nil {
			m.release()
			s.logger.Debug("instantiation failed", zap.String("module", name), zap.Error(err))
		}
	}()

	if mem := module.Memory; mem != nil && !mem.Imported {
		if m.Memory, err = NewMemoryInstance(mem.Min, mem.Max, s.GuardRegions); err != nil {
			return nil, m.fail("memory", err)
		}
		m.ownsMemory = true
	}

	m.GlobalsBuffer = make([]byte, module.GlobalsSize)

	if err = m.resolveImports(host); err != nil {
		return nil, err
	}

	m.buildDefinitions()

	if err = m.validateData(); err != nil {
		return nil, err
	}
	if err = m.validateElements(); err != nil {
		return nil, err
	}

	if m.Engine, err = s.Engine.NewModuleEngine(name, module, m); err != nil {
		return nil, m.fail("engine", err)
	}
	if m.Memory != nil {
		m.Memory.AddRelocator(m.Engine)
	}

	m.applyElements()
	m.applyData()

	if start := module.StartFunction; start != nil && !startDisabled {
		if _, err = m.Functions[*start].Call(ctx); err != nil {
			return nil, m.fail("start", fmt.Errorf("%w: %w", ErrStartFunction, err))
		}
	}

	m.buildExports()
	for _, e := range m.exportList {
		host.Register(name, e.Name, m.exports[e.Name])
	}

	s.logger.Debug("instantiated module",
		zap.String("module", name),
		zap.Int("functions", len(m.Functions)),
		zap.Uint32("memory_pages", m.memoryPages()),
		zap.Int("exports", len(m.exportList)))
	return m, nil
}

func (m *ModuleInstance) fail(stage string, err error) error {
	return &InstantiationError{Module: m.Name, Stage: stage, Err: err}
}

func (m *ModuleInstance) resolveImports(host Host) error {
	module := m.Module
	for i, imp := range module.Imports {
		stage := fmt.Sprintf("import[%d] %s.%s", i, imp.Module, imp.Name)
		v, ok := host.Resolve(imp.Module, imp.Name, Index(i))
		if !ok {
			return m.fail(stage, ErrImportNotFound)
		}
		if v.Kind() != imp.Kind {
			return m.fail(stage, fmt.Errorf("%w: expected %s, but was %s",
				ErrImportMismatch, ExternTypeName(imp.Kind), ExternTypeName(v.Kind())))
		}

		var err error
		switch imp.Kind {
		case ExternTypeFunc:
			err = m.bindFunction(imp, v)
		case ExternTypeTable:
			t, desc := v.(*TableInstance), imp.DescTable
			if uint32(len(t.Elements)) < desc.Min || t.Max > desc.Max {
				err = fmt.Errorf("%w: table size %d max %d, expected min %d max %d",
					ErrImportMismatch, len(t.Elements), t.Max, desc.Min, desc.Max)
			}
			m.Tables[imp.IndexPerType] = t
		case ExternTypeMemory:
			mem, desc := v.(*MemoryInstance), imp.DescMem
			if mem.PageSize() < desc.Min || mem.Max > desc.Max {
				err = fmt.Errorf("%w: memory pages %d max %d, expected min %d max %d",
					ErrImportMismatch, mem.PageSize(), mem.Max, desc.Min, desc.Max)
			}
			m.Memory = mem
		case ExternTypeGlobal:
			g, desc := v.(*GlobalInstance), imp.DescGlobal
			if g.Type.ValType != desc.ValType {
				err = fmt.Errorf("%w: global type %s != %s",
					ErrImportMismatch, ValueTypeName(g.Type.ValType), ValueTypeName(desc.ValType))
			} else if g.Type.Mutable != desc.Mutable {
				err = fmt.Errorf("%w: global mutability", ErrImportMismatch)
			}
			m.Globals[imp.IndexPerType] = g
		}
		if err != nil {
			return m.fail(stage, err)
		}
	}
	return nil
}

func (m *ModuleInstance) bindFunction(imp *Import, v HostValue) error {
	expected := m.Module.Signatures[imp.DescFunc]
	switch f := v.(type) {
	case *FunctionInstance:
		if !f.Type.EqualsSignature(expected.Params, expected.Results) {
			return fmt.Errorf("%w: signature %s != %s", ErrImportMismatch, f.Type, expected)
		}
		m.Functions[imp.IndexPerType] = f
	case *HostFunction:
		if !f.Type.EqualsSignature(expected.Params, expected.Results) {
			return fmt.Errorf("%w: signature %s != %s", ErrImportMismatch, f.Type, expected)
		}
		m.Functions[imp.IndexPerType] = &FunctionInstance{
			Module: m,
			Index:  imp.IndexPerType,
			Type:   expected,
			TypeID: m.store.GetFunctionTypeID(expected),
			Name:   f.Name,
			Host:   f,
		}
	default:
		return fmt.Errorf("%w: unsupported function value %T", ErrImportMismatch, v)
	}
	return nil
}

// buildDefinitions creates the instances of everything defined by the module. Imports are already bound, so global
// initializers may read them.
func (m *ModuleInstance) buildDefinitions() {
	module := m.Module
	for idx := module.ImportedFunctionCount; idx < uint32(len(module.Functions)); idx++ {
		f := module.Functions[idx]
		m.Functions[idx] = &FunctionInstance{
			Module: m,
			Index:  idx,
			Type:   f.Type,
			TypeID: m.store.GetFunctionTypeID(f.Type),
			Name:   module.FunctionName(idx),
		}
	}
	for idx := module.ImportedGlobalCount; idx < uint32(len(module.Globals)); idx++ {
		g := module.Globals[idx]
		gi := newBufferedGlobal(g.Type, m.GlobalsBuffer, g.Offset)
		gi.Set(evalConstantExpression(m.Globals, g.Init))
		m.Globals[idx] = gi
	}
	for idx := module.ImportedTableCount; idx < uint32(len(module.Tables)); idx++ {
		t := module.Tables[idx]
		m.Tables[idx] = NewTableInstance(t.Min, t.Max)
	}
}

func (m *ModuleInstance) validateData() error {
	for i, d := range m.Module.DataSegments {
		offset := evalOffset(m.Globals, d.OffsetExpression)
		var size uint64
		if m.Memory != nil {
			size = m.Memory.Size()
		}
		if offset < 0 || uint64(offset)+uint64(len(d.Init)) > size {
			return m.fail(fmt.Sprintf("data[%d]", i), fmt.Errorf("%w: offset %d + size %d > memory size %d",
				ErrDataSegmentOutOfBounds, offset, len(d.Init), size))
		}
	}
	return nil
}

func (m *ModuleInstance) applyData() {
	for _, d := range m.Module.DataSegments {
		offset := evalOffset(m.Globals, d.OffsetExpression)
		copy(m.Memory.Buffer[offset:], d.Init)
	}
}

func (m *ModuleInstance) validateElements() error {
	for i, e := range m.Module.ElementSegments {
		offset := evalOffset(m.Globals, e.OffsetExpr)
		size := uint64(len(m.Tables[e.TableIndex].Elements))
		if offset < 0 || uint64(offset)+uint64(len(e.Init)) > size {
			return m.fail(fmt.Sprintf("element[%d]", i), fmt.Errorf("%w: offset %d + size %d > table size %d",
				ErrElementSegmentOutOfBounds, offset, len(e.Init), size))
		}
	}
	return nil
}

func (m *ModuleInstance) applyElements() {
	for _, e := range m.Module.ElementSegments {
		offset := evalOffset(m.Globals, e.OffsetExpr)
		table := m.Tables[e.TableIndex].Elements
		for i, funcIdx := range e.Init {
			f := m.Functions[funcIdx]
			table[offset+int64(i)] = TableElement{TypeID: f.TypeID, Function: f}
		}
	}
}

// buildExports indexes the exports by name. A memory declared with the exported flag is also exported as "memory",
// unless an export of that name exists.
func (m *ModuleInstance) buildExports() {
	m.exports = make(map[string]HostValue, len(m.Module.Exports)+1)
	m.exportList = append(m.exportList, m.Module.Exports...)
	for _, e := range m.Module.Exports {
		m.exports[e.Name] = m.exportValue(e)
	}
	if mem := m.Module.Memory; mem != nil && mem.Exported {
		if _, ok := m.exports["memory"]; !ok {
			e := &Export{Kind: ExternTypeMemory, Name: "memory"}
			m.exportList = append(m.exportList, e)
			m.exports[e.Name] = m.Memory
		}
	}
}

func (m *ModuleInstance) exportValue(e *Export) HostValue {
	switch e.Kind {
	case ExternTypeFunc:
		return m.Functions[e.Index]
	case ExternTypeTable:
		return m.Tables[e.Index]
	case ExternTypeMemory:
		return m.Memory
	case ExternTypeGlobal:
		return m.Globals[e.Index]
	}
	panic(fmt.Errorf("BUG: unknown export kind %#x", e.Kind))
}

// Exports returns the exports in declaration order.
func (m *ModuleInstance) Exports() []*Export {
	return m.exportList
}

// Export returns the value exported under name.
func (m *ModuleInstance) Export(name string) (HostValue, bool) {
	v, ok := m.exports[name]
	return v, ok
}

// ExportedFunction returns the function exported under name, or nil.
func (m *ModuleInstance) ExportedFunction(name string) *FunctionInstance {
	f, _ := m.exports[name].(*FunctionInstance)
	return f
}

// ExportedMemory returns the memory exported under name, or nil.
func (m *ModuleInstance) ExportedMemory(name string) *MemoryInstance {
	mem, _ := m.exports[name].(*MemoryInstance)
	return mem
}

// ExportedGlobal returns the global exported under name, or nil.
func (m *ModuleInstance) ExportedGlobal(name string) *GlobalInstance {
	g, _ := m.exports[name].(*GlobalInstance)
	return g
}

// GrowMemory grows the instance's memory by delta pages, returning the previous page count. See MemoryInstance.Grow
func (m *ModuleInstance) GrowMemory(delta uint32) (uint32, error) {
	if m.Memory == nil {
		return 0, fmt.Errorf("module[%s] has no memory", m.Name)
	}
	prev, err := m.Memory.Grow(delta)
	if err != nil {
		m.store.logger.Debug("memory grow failed", zap.String("module", m.Name), zap.Uint32("delta", delta), zap.Error(err))
		return 0, err
	}
	if delta > 0 {
		m.store.metrics.PagesGrown(delta)
		m.store.logger.Debug("memory grown",
			zap.String("module", m.Name),
			zap.Uint32("previous_pages", prev),
			zap.Uint32("pages", prev+delta),
			zap.Bool("in_place", m.Memory.HasGuardRegion()))
	}
	return prev, nil
}

// TypeID returns the ID the store assigned to the signature, for comparison with TableElement.TypeID.
func (m *ModuleInstance) TypeID(t *FunctionType) FunctionTypeID {
	return m.store.GetFunctionTypeID(t)
}

func (m *ModuleInstance) memoryPages() uint32 {
	if m.Memory == nil {
		return 0
	}
	return m.Memory.PageSize()
}

// Close releases the module engine and the memory, if this instance owns it. Closing twice is a no-op.
func (m *ModuleInstance) Close() error {
	if m.closed {
		return nil
	}
	return m.release()
}

func (m *ModuleInstance) release() (err error) {
	m.closed = true
	if m.Engine != nil {
		if m.Memory != nil {
			m.Memory.RemoveRelocator(m.Engine)
		}
		err = multierr.Append(err, m.Engine.Close())
	}
	if m.ownsMemory && m.Memory != nil {
		err = multierr.Append(err, m.Memory.Close())
	}
	return
}

// Kind implements HostValue.Kind
func (f *FunctionInstance) Kind() ExternType {
	return ExternTypeFunc
}

// Call invokes the function through the module engine of the instance it belongs to.
func (f *FunctionInstance) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	if len(params) != len(f.Type.Params) {
		return nil, fmt.Errorf("expected %d params, but passed %d", len(f.Type.Params), len(params))
	}
	return f.Module.Engine.Call(ctx, f, params...)
}
