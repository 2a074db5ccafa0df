package wasm

import "math"

// FunctionTypeID is a uniquely assigned integer for a function type, scoped to a Store. It is used at runtime to
// type-check indirect function calls.
type FunctionTypeID uint32

// UninitializedTableElementTypeID is the FunctionTypeID of table elements no element segment wrote to.
const UninitializedTableElementTypeID FunctionTypeID = math.MaxUint32

// TableElement is one entry of a function table's dispatch array.
type TableElement struct {
	// TypeID is compared against the expected signature at call_indirect.
	TypeID FunctionTypeID
	// Function is nil when TypeID is UninitializedTableElementTypeID.
	Function *FunctionInstance
}

// TableInstance is a function table, owned by the instance that declared it and shared with every instance that
// imports it.
type TableInstance struct {
	Elements []TableElement
	Min, Max uint32
}

// NewTableInstance returns a table of min uninitialized elements.
func NewTableInstance(min, max uint32) *TableInstance {
	t := &TableInstance{Elements: make([]TableElement, min), Min: min, Max: max}
	for i := range t.Elements {
		t.Elements[i].TypeID = UninitializedTableElementTypeID
	}
	return t
}

// Kind implements HostValue.Kind
func (t *TableInstance) Kind() ExternType {
	return ExternTypeTable
}

// Lookup returns the function at idx for an indirect call expecting typeID, or a Trap.
func (t *TableInstance) Lookup(idx uint32, typeID FunctionTypeID) (*FunctionInstance, error) {
	if idx >= uint32(len(t.Elements)) {
		return nil, &Trap{Kind: TrapKindTableOutOfBounds}
	}
	e := t.Elements[idx]
	if e.TypeID == UninitializedTableElementTypeID {
		return nil, &Trap{Kind: TrapKindTableOutOfBounds}
	}
	if e.TypeID != typeID {
		return nil, &Trap{Kind: TrapKindSignatureMismatch}
	}
	return e.Function, nil
}
