package wasm

import (
	"errors"
	"fmt"
)

// DecodeError is raised for malformed encodings: truncated buffers, bad varints, unknown opcodes, duplicate or
// misordered sections. It halts decoding of the module, or of the function when raised by a body decoder.
type DecodeError struct {
	// Offset is the absolute byte offset in the module source.
	Offset int
	// Context is the section name, or the function and opcode being decoded.
	Context string
	Msg     string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.Error
func (e *DecodeError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("decode error @+%d: %s", e.Offset, e.Msg)
	}
	return fmt.Sprintf("decode error in %s @+%d: %s", e.Context, e.Offset, e.Msg)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ValidationError is raised when a well-formed function body does not type-check or references an index out of range.
// It aborts only the function being validated.
type ValidationError struct {
	// Function is the index of the function in the function index space.
	Function Index
	// Offset is the absolute byte offset of the opcode in the module source.
	Offset int
	Opcode Opcode
	// Expected and Found are type names when the error is a type mismatch, otherwise empty.
	Expected, Found string
	Msg             string
}

// Error implements error.Error
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid function $%d @+%d (%s): %s", e.Function, e.Offset, opcodeName(e.Opcode), e.Msg)
}

func opcodeName(oc Opcode) string {
	if n := InstructionName(oc); n != "" {
		return n
	}
	return fmt.Sprintf("opcode %#x", oc)
}

// Instantiation failures. InstantiationError unwraps to one of these.
var (
	// ErrImportNotFound is returned when the host namespace has no value for a module and field.
	ErrImportNotFound = errors.New("import not found")
	// ErrImportMismatch is returned when the host value has the wrong kind, signature, limits or mutability.
	ErrImportMismatch = errors.New("import mismatch")
	// ErrDataSegmentOutOfBounds is returned when a data segment doesn't fit in memory.
	ErrDataSegmentOutOfBounds = errors.New("data segment out of bounds")
	// ErrElementSegmentOutOfBounds is returned when an element segment doesn't fit in its table.
	ErrElementSegmentOutOfBounds = errors.New("element segment out of bounds")
	// ErrStartFunction is returned when the start function failed.
	ErrStartFunction = errors.New("start function failed")
	// ErrMemoryLimit is returned when memory would grow beyond its maximum.
	ErrMemoryLimit = errors.New("memory limit exceeded")
	// ErrOutOfMemory is returned when the host could not reserve or commit memory.
	ErrOutOfMemory = errors.New("out of memory")
)

// InstantiationError is returned by Store.Instantiate. No instance is exposed when it is returned.
type InstantiationError struct {
	// Module is the name the instance would have been registered under.
	Module string
	// Stage names the instantiation step that failed. Ex. "import[2]", "data[0]" or "start"
	Stage string
	Err   error
}

// Error implements error.Error
func (e *InstantiationError) Error() string {
	return fmt.Sprintf("instantiate module %q: %s: %v", e.Module, e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// TrapKind classifies a failure during execution of compiled code.
type TrapKind byte

const (
	TrapKindUnreachable TrapKind = iota + 1
	TrapKindMemoryOutOfBounds
	TrapKindDivideByZero
	TrapKindIntegerOverflow
	TrapKindInvalidConversion
	TrapKindTableOutOfBounds
	TrapKindSignatureMismatch
	TrapKindCallStackOverflow
	TrapKindHostFunction
)

// All the errors are returned by an Executor during the execution of functions,
// and they indicate that the instance's state is unrecoverable.
var (
	// ErrRuntimeUnreachable means "unreachable" instruction was executed by the program.
	ErrRuntimeUnreachable = errors.New("unreachable")
	// ErrRuntimeOutOfBoundsMemoryAccess indicates that the program tried to access the
	// region beyond the linear memory.
	ErrRuntimeOutOfBoundsMemoryAccess = errors.New("out of bounds memory access")
	// ErrRuntimeIntegerDivideByZero indicates that an integer div or rem instructions
	// was executed with 0 as the divisor.
	ErrRuntimeIntegerDivideByZero = errors.New("integer divide by zero")
	// ErrRuntimeIntegerOverflow indicates that an integer arithmetic resulted in
	// overflow value.
	ErrRuntimeIntegerOverflow = errors.New("integer overflow")
	// ErrRuntimeInvalidConversionToInteger indicates the function tried to
	// convert NaN floating point value to integers during trunc variant instructions.
	ErrRuntimeInvalidConversionToInteger = errors.New("invalid conversion to integer")
	// ErrRuntimeInvalidTableAccess means either offset to the table was out of bounds of table, or
	// the target element in the table was uninitialized during call_indirect instruction.
	ErrRuntimeInvalidTableAccess = errors.New("invalid table access")
	// ErrRuntimeIndirectCallTypeMismatch indicates that the type check failed during call_indirect.
	ErrRuntimeIndirectCallTypeMismatch = errors.New("indirect call type mismatch")
	// ErrRuntimeCallStackOverflow indicates that there are too many function calls.
	ErrRuntimeCallStackOverflow = errors.New("callstack overflow")
	// ErrRuntimeHostFunction indicates a host function returned an error.
	ErrRuntimeHostFunction = errors.New("host function failed")
)

var trapSentinels = map[TrapKind]error{
	TrapKindUnreachable:       ErrRuntimeUnreachable,
	TrapKindMemoryOutOfBounds: ErrRuntimeOutOfBoundsMemoryAccess,
	TrapKindDivideByZero:      ErrRuntimeIntegerDivideByZero,
	TrapKindIntegerOverflow:   ErrRuntimeIntegerOverflow,
	TrapKindInvalidConversion: ErrRuntimeInvalidConversionToInteger,
	TrapKindTableOutOfBounds:  ErrRuntimeInvalidTableAccess,
	TrapKindSignatureMismatch: ErrRuntimeIndirectCallTypeMismatch,
	TrapKindCallStackOverflow: ErrRuntimeCallStackOverflow,
	TrapKindHostFunction:      ErrRuntimeHostFunction,
}

// Trap is reported by an Executor when compiled code faults. Offset is the absolute byte offset of the opcode that
// trapped in the module source.
type Trap struct {
	Kind   TrapKind
	Offset uint32
	// Cause is set when Kind is TrapKindHostFunction.
	Cause error
}

// Error implements error.Error
func (t *Trap) Error() string {
	if t.Cause != nil {
		return fmt.Sprintf("wasm trap @+%d: %v: %v", t.Offset, t.sentinel(), t.Cause)
	}
	return fmt.Sprintf("wasm trap @+%d: %v", t.Offset, t.sentinel())
}

func (t *Trap) sentinel() error {
	if err, ok := trapSentinels[t.Kind]; ok {
		return err
	}
	return fmt.Errorf("trap kind %d", t.Kind)
}

// Is allows errors.Is(trap, ErrRuntimeUnreachable) and similar.
func (t *Trap) Is(target error) bool {
	return t.sentinel() == target
}

// Unwrap returns the cause of a host function trap.
func (t *Trap) Unwrap() error {
	return t.Cause
}

// CallError is the host-visible error when a call into an instance traps. It unwraps to the Trap.
type CallError struct {
	Module   string
	Function string
	Err      error
}

// Error implements error.Error
func (e *CallError) Error() string {
	return fmt.Sprintf("wasm error calling %s.%s: %v", e.Module, e.Function, e.Err)
}

// Unwrap returns the underlying error.
func (e *CallError) Unwrap() error {
	return e.Err
}
