package ast

import (
	"github.com/tetratelabs/wasmengine/internal/cursor"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

// LoopAssignment scans the loop at the absolute offset pc and returns, for each parameter and local of body, whether
// a set_local inside the loop assigns it. It returns nil if there is no loop at pc.
//
// The scan only counts children, it doesn't validate. Out of range local indices are ignored and the scan stops at
// the first malformed opcode, as the decoder will reject the body anyway.
func LoopAssignment(body *FunctionBody, pc int) []bool {
	return loopAssignment(body, body.localTypes(), pc)
}

func loopAssignment(body *FunctionBody, localTypes []wasm.ValueType, pc int) []bool {
	rel := pc - body.Offset
	if rel < 0 || rel >= len(body.Code) || body.Code[rel] != wasm.OpcodeLoop {
		return nil
	}
	c := cursor.New(body.Code, body.Offset)
	c.Seek(rel + 1)

	assigned := make([]bool, len(localTypes))
	arity, ok := skipImmediates(c, body.Module, body.Signature, wasm.OpcodeLoop)
	if !ok || arity == 0 {
		return assigned
	}

	// pending holds the count of children still expected by each open expression, innermost last.
	pending := []int{arity}
	for !c.Done() {
		oc := c.ReadU8("opcode")
		if oc == wasm.OpcodeSetLocal {
			o := readLocalIndex(c)
			if !c.OK() {
				return assigned
			}
			if o.index < uint32(len(assigned)) {
				assigned[o.index] = true
			}
			arity = 1
		} else if arity, ok = skipImmediates(c, body.Module, body.Signature, oc); !ok {
			return assigned
		}

		pending = append(pending, arity)
		for pending[len(pending)-1] == 0 {
			pending = pending[:len(pending)-1]
			if len(pending) == 0 {
				return assigned // end of the loop
			}
			pending[len(pending)-1]--
		}
	}
	return assigned
}
