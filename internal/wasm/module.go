package wasm

import (
	"fmt"
	"strings"
)

// Module is a decoded binary module. It is immutable once returned by binary.DecodeModule and may be shared by any
// number of compilations and instances.
//
// Differences from the binary encoding:
// * Functions, Tables and Globals are index spaces: imported entries come first, followed by the ones defined in
//   this module. Each entry records whether it was imported.
// * Function bodies are not copied: Function.Body aliases the source bytes.
// * Global offsets in the globals buffer are laid out at decode time, see GlobalsSize.
type Module struct {
	// Signatures contains the unique FunctionType of functions imported or defined in this module.
	//
	// Note: In the binary format, this is the "signatures" section.
	Signatures []*FunctionType

	// Imports contains imported functions, tables, memories or globals required for instantiation in declaration
	// order. Resolution happens in this order, too.
	//
	// Note: In the binary format, this is the "import_table" section.
	Imports []*Import

	// Functions is the function index space. The first ImportedFunctionCount entries are imported.
	//
	// Note: In the binary format, defined functions are declared in "function_signatures" and their locals and
	// bodies are in the index-correlated "function_bodies" section.
	Functions []*Function

	// ImportedFunctionCount is the count of Functions that are imports.
	ImportedFunctionCount uint32

	// Tables is the table index space. The first ImportedTableCount entries are imported.
	Tables []*Table

	// ImportedTableCount is the count of Tables that are imports.
	ImportedTableCount uint32

	// Memory is the only linear memory or nil if there is none. Memory.Imported is true when it is imported.
	Memory *Memory

	// Globals is the global index space. The first ImportedGlobalCount entries are imported.
	Globals []*Global

	// ImportedGlobalCount is the count of Globals that are imports.
	ImportedGlobalCount uint32

	// GlobalsSize is the size in bytes of the globals buffer needed to hold every global defined in this module.
	// Imported globals live in the host object they were bound to, so they don't contribute.
	GlobalsSize uint32

	// ElementSegments initialize ranges of Tables at instantiation.
	ElementSegments []*ElementSegment

	// DataSegments initialize ranges of Memory at instantiation.
	DataSegments []*DataSegment

	// Exports in declaration order.
	Exports []*Export

	// StartFunction is the index of a function to call before returning from Store.Instantiate, or nil.
	//
	// Note: The index here is in the function index space, which begins with imported functions.
	StartFunction *Index

	// Source is the encoded module the descriptor was decoded from. Function bodies and data segments alias it.
	Source []byte
}

// FunctionType returns the signature of the function at funcIdx in the function index space or nil if out of range.
func (m *Module) FunctionType(funcIdx Index) *FunctionType {
	if funcIdx >= uint32(len(m.Functions)) {
		return nil
	}
	return m.Functions[funcIdx].Type
}

// DefinedFunctions returns the functions that have bodies in this module.
func (m *Module) DefinedFunctions() []*Function {
	return m.Functions[m.ImportedFunctionCount:]
}

// ExportByName returns the export of that name or nil.
func (m *Module) ExportByName(name string) *Export {
	for _, e := range m.Exports {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// FunctionName returns the debug name of the function, or a synthetic one derived from its index.
func (m *Module) FunctionName(funcIdx Index) string {
	if funcIdx < uint32(len(m.Functions)) && m.Functions[funcIdx].Name != "" {
		return m.Functions[funcIdx].Name
	}
	return fmt.Sprintf("$%d", funcIdx)
}

// Index is the offset in an index space, not necessarily an absolute position in a Module section. This is because
// index spaces are preceded by their imports.
type Index = uint32

// FunctionType is a possibly empty function signature.
type FunctionType struct {
	// Params are the possibly empty sequence of value types accepted by a function with this signature.
	Params []ValueType

	// Results are the possibly empty sequence of value types returned by a function with this signature.
	//
	// Note: The binary format allows at most one result.
	Results []ValueType
}

// EqualsSignature returns true if the function type has the same parameters and results.
func (t *FunctionType) EqualsSignature(params []ValueType, results []ValueType) bool {
	return string(t.Params) == string(params) && string(t.Results) == string(results)
}

// String renders the signature as params, then an underscore, then results. Ex. "i32i32_i32"
func (t *FunctionType) String() string {
	var ret strings.Builder
	for _, b := range t.Params {
		ret.WriteString(ValueTypeName(b))
	}
	if len(t.Params) == 0 {
		ret.WriteString("v")
	}
	ret.WriteByte('_')
	for _, b := range t.Results {
		ret.WriteString(ValueTypeName(b))
	}
	if len(t.Results) == 0 {
		ret.WriteString("v")
	}
	return ret.String()
}

// Function describes a function in the function index space.
type Function struct {
	// TypeIndex is the position in Module.Signatures of this function's signature.
	TypeIndex Index

	// Type is Module.Signatures[TypeIndex].
	Type *FunctionType

	// Imported is true if this function is bound at instantiation via Module.Imports[ImportIndex].
	Imported bool

	// ImportIndex is the position in Module.Imports when Imported.
	ImportIndex Index

	// Exported is true if at least one export refers to this function.
	Exported bool

	// Name is the debug name from the "names" section, or empty.
	Name string

	// LocalTypes are function-scoped variables in declaration order, excluding parameters.
	LocalTypes []ValueType

	// Body is the expression bytes of a defined function. It aliases Module.Source.
	Body []byte

	// BodyOffset is the absolute offset of Body[0] in Module.Source.
	BodyOffset uint32
}

// CodeRange returns the [start, end) byte range of the function body in the module source.
func (f *Function) CodeRange() (start, end uint32) {
	return f.BodyOffset, f.BodyOffset + uint32(len(f.Body))
}

// Import is the binary representation of an import indicated by Kind.
type Import struct {
	Kind ExternType
	// Module is the possibly empty primary namespace of this import.
	Module string
	// Name is the possibly empty secondary namespace of this import.
	Name string
	// DescFunc is the index in Module.Signatures when Kind equals ExternTypeFunc.
	DescFunc Index
	// DescTable is the inlined Table when Kind equals ExternTypeTable.
	DescTable *Table
	// DescMem is the inlined Memory when Kind equals ExternTypeMemory.
	DescMem *Memory
	// DescGlobal is the inlined GlobalType when Kind equals ExternTypeGlobal.
	DescGlobal *GlobalType
	// IndexPerType is the position of the import in the index space of its kind. Ex. the third imported function
	// has IndexPerType 2.
	IndexPerType Index
}

// Table describes the limits of function elements in a table.
type Table struct {
	Min, Max uint32
	Imported bool
}

// Memory describes the limits of the linear memory, in pages.
type Memory struct {
	Min, Max uint32
	// Exported is the legacy flag in the "memory" section that exports it under the name "memory".
	Exported bool
	Imported bool
}

// GlobalType is the type and mutability of a global.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// Global describes a global in the global index space.
type Global struct {
	Type *GlobalType
	// Init is the initializer of a defined global, or nil when Imported.
	Init *ConstantExpression
	// Offset is the byte offset of a defined global in the globals buffer. It is aligned to the size of its type.
	Offset   uint32
	Imported bool
}

// ConstantExpression is an initializer: a single constant opcode and its encoded immediate.
type ConstantExpression struct {
	Opcode Opcode
	Data   []byte
}

// Export is the binary representation of an export indicated by Kind.
type Export struct {
	Kind ExternType
	// Name is what the host refers to this definition as.
	Name string
	// Index is the index of the definition to export, the index space is by Kind.
	Index Index
}

// ElementSegment writes function references into a table at instantiation.
type ElementSegment struct {
	TableIndex Index
	OffsetExpr *ConstantExpression
	// Init are positions in the function index space.
	Init []Index
}

// DataSegment copies bytes into memory at instantiation.
type DataSegment struct {
	OffsetExpression *ConstantExpression
	// SourceOffset is the absolute offset of Init in Module.Source.
	SourceOffset uint32
	// Init aliases Module.Source.
	Init []byte
}

// ValueType is the binary encoding of a type such as i32.
type ValueType = byte

const (
	ValueTypeI32 ValueType = 0x01
	ValueTypeI64 ValueType = 0x02
	ValueTypeF32 ValueType = 0x03
	ValueTypeF64 ValueType = 0x04
)

// ValueTypeName returns the type name of the given ValueType as a string.
// Note that ValueTypeName returns "unknown", if an undefined ValueType value is passed.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	}
	return "unknown"
}

// IsValueType returns true for the four concrete value types.
func IsValueType(t ValueType) bool {
	return t >= ValueTypeI32 && t <= ValueTypeF64
}

// ValueTypeSize returns the size in bytes of a value of the type, which is also its natural alignment.
func ValueTypeSize(t ValueType) uint32 {
	switch t {
	case ValueTypeI32, ValueTypeF32:
		return 4
	case ValueTypeI64, ValueTypeF64:
		return 8
	}
	return 0
}

// ExternType classifies imports and exports.
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

// ExternTypeName returns the canonical name of the import or export description.
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return "func"
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	}
	return fmt.Sprintf("%#x", et)
}
