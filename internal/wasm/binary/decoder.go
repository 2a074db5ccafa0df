package binary

import (
	"bytes"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/tetratelabs/wasmengine/internal/cursor"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

// FunctionValidator validates the body of the defined function at funcIdx in the function index space.
type FunctionValidator func(m *wasm.Module, funcIdx wasm.Index) error

// DecodeOptions configure DecodeModule.
type DecodeOptions struct {
	// MemoryMaxPages is the largest memory the module may declare. Defaults to wasm.MemoryMaxPages.
	MemoryMaxPages uint32

	// ValidateFunction, when set, is called for every defined function after the module decoded successfully.
	ValidateFunction FunctionValidator

	// ReportAll continues validating functions after the first failure, and returns every error combined.
	ReportAll bool
}

// DecodeModule decodes the source into a wasm.Module, or returns the first wasm.DecodeError encountered. When
// DecodeOptions.ValidateFunction is set, function validation errors are returned after any decode error.
func DecodeModule(source []byte, opts DecodeOptions) (*wasm.Module, error) {
	if opts.MemoryMaxPages == 0 {
		opts.MemoryMaxPages = wasm.MemoryMaxPages
	}
	d := &decoder{
		c:    cursor.New(source, 0),
		m:    &wasm.Module{Source: source},
		opts: opts,
	}
	if err := d.decode(); err != nil {
		return nil, err
	}
	if opts.ValidateFunction != nil {
		if err := validateFunctions(d.m, opts.ValidateFunction, opts.ReportAll); err != nil {
			return nil, err
		}
	}
	return d.m, nil
}

func validateFunctions(m *wasm.Module, validate FunctionValidator, reportAll bool) (err error) {
	for idx := m.ImportedFunctionCount; idx < uint32(len(m.Functions)); idx++ {
		if fnErr := validate(m, idx); fnErr != nil {
			if !reportAll {
				return fnErr
			}
			err = multierr.Append(err, fnErr)
		}
	}
	return
}

type decoder struct {
	c       *cursor.Cursor
	m       *wasm.Module
	opts    DecodeOptions
	present sectionSet
	// bodies is the count of function bodies decoded, so missing ones can be reported.
	bodies uint32
}

func (d *decoder) decode() error {
	c := d.c
	if magic := c.ReadBytes(4, "magic number"); c.OK() && !bytes.Equal(magic, Magic) {
		return &wasm.DecodeError{Offset: 0, Msg: fmt.Sprintf("invalid magic number %#x", magic)}
	}
	if v := c.ReadU32("version"); c.OK() && v != Version {
		return &wasm.DecodeError{Offset: 4, Msg: fmt.Sprintf("invalid version %#x, expected %#x", v, Version)}
	}
	if err := c.Err(); err != nil {
		return toDecodeError("header", err)
	}

	for !c.Done() {
		sectionStart := c.Offset()
		size := c.ReadVarUint32("section size")
		s := c.Window(size, "section")
		if err := c.Err(); err != nil {
			return toDecodeError("", err)
		}

		name := s.ReadName("section name")
		if err := s.Err(); err != nil {
			return toDecodeError("", err)
		}

		id, ok := sectionIDs[name]
		if !ok {
			continue // unknown sections are skipped by their declared length
		}
		if id == sectionEnd {
			break
		}
		if msg := d.present.checkOrder(id); msg != "" {
			return &wasm.DecodeError{Offset: sectionStart, Context: name, Msg: msg}
		}
		d.present.add(id)

		d.decodeSection(id, s)
		if err := s.Err(); err != nil {
			return toDecodeError(name, err)
		}
		if s.Remaining() != 0 {
			return &wasm.DecodeError{Offset: s.Offset(), Context: name, Msg: fmt.Sprintf("%d unread bytes at end of section", s.Remaining())}
		}
	}

	definedCount := uint32(len(d.m.Functions)) - d.m.ImportedFunctionCount
	if d.bodies != definedCount {
		return &wasm.DecodeError{
			Offset:  c.Offset(),
			Context: SectionNameFunctionBodies,
			Msg:     fmt.Sprintf("function and body count mismatch (%d != %d)", definedCount, d.bodies),
		}
	}
	return nil
}

func (d *decoder) decodeSection(id sectionID, s *cursor.Cursor) {
	switch id {
	case sectionSignatures:
		d.decodeSignatures(s)
	case sectionImportTable:
		d.decodeImports(s)
	case sectionFunctionSignatures:
		d.decodeFunctionSignatures(s)
	case sectionFunctionBodies:
		d.decodeFunctionBodies(s)
	case sectionTable:
		d.decodeTable(s)
	case sectionElements:
		d.decodeElements(s)
	case sectionMemory:
		d.decodeMemory(s)
	case sectionGlobals:
		d.decodeGlobals(s)
	case sectionDataSegments:
		d.decodeDataSegments(s)
	case sectionExportTable:
		d.decodeExports(s)
	case sectionStartFunction:
		d.decodeStartFunction(s)
	case sectionNames:
		d.decodeNames(s)
	}
}

// readCount reads a vector length. Every element takes at least one byte, so a count larger than what's left in the
// section is rejected before anything is allocated for it.
func readCount(s *cursor.Cursor, what string) uint32 {
	offset := s.Offset()
	n := s.ReadVarUint32(what + " count")
	if s.OK() && int64(n) > int64(s.Remaining()) {
		s.Errorf(offset, "%s count %d exceeds remaining %d bytes", what, n, s.Remaining())
		return 0
	}
	return n
}

func readValueType(s *cursor.Cursor, what string) wasm.ValueType {
	offset := s.Offset()
	t := s.ReadU8(what)
	if s.OK() && !wasm.IsValueType(t) {
		s.Errorf(offset, "invalid %s %#x", what, t)
		return 0
	}
	return t
}

func readSignatureIndex(s *cursor.Cursor, m *wasm.Module) (wasm.Index, *wasm.FunctionType) {
	offset := s.Offset()
	idx := s.ReadVarUint32("signature index")
	if !s.OK() {
		return 0, nil
	}
	if idx >= uint32(len(m.Signatures)) {
		s.Errorf(offset, "signature index %d out of range", idx)
		return 0, nil
	}
	return idx, m.Signatures[idx]
}

func (d *decoder) decodeSignatures(s *cursor.Cursor) {
	count := readCount(s, "signature")
	d.m.Signatures = make([]*wasm.FunctionType, 0, count)
	for i := uint32(0); i < count && s.OK(); i++ {
		offset := s.Offset()
		paramCount := readCount(s, "param")
		resultCount := s.ReadVarUint32("result count")
		if s.OK() && resultCount > 1 {
			s.Errorf(offset, "signature[%d] result count %d > 1", i, resultCount)
			return
		}
		ft := &wasm.FunctionType{Params: make([]wasm.ValueType, 0, paramCount)}
		for p := uint32(0); p < paramCount && s.OK(); p++ {
			ft.Params = append(ft.Params, readValueType(s, "param type"))
		}
		for r := uint32(0); r < resultCount && s.OK(); r++ {
			ft.Results = append(ft.Results, readValueType(s, "result type"))
		}
		d.m.Signatures = append(d.m.Signatures, ft)
	}
}

func (d *decoder) decodeStartFunction(s *cursor.Cursor) {
	offset := s.Offset()
	idx := s.ReadVarUint32("start function index")
	if !s.OK() {
		return
	}
	ft := d.m.FunctionType(idx)
	if ft == nil {
		s.Errorf(offset, "start function index %d out of range", idx)
		return
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		s.Errorf(offset, "start function must have signature v_v, but was %s", ft)
		return
	}
	d.m.StartFunction = &idx
}

func (d *decoder) decodeNames(s *cursor.Cursor) {
	defined := d.m.DefinedFunctions()
	count := readCount(s, "function name")
	if count > uint32(len(defined)) {
		s.Errorf(s.Offset(), "function name count %d exceeds defined function count %d", count, len(defined))
		return
	}
	for i := uint32(0); i < count && s.OK(); i++ {
		defined[i].Name = s.ReadName("function name")
		locals := readCount(s, "local name")
		for l := uint32(0); l < locals && s.OK(); l++ {
			s.ReadName("local name")
		}
	}
}

// toDecodeError converts a cursor error into a positioned wasm.DecodeError.
func toDecodeError(context string, err error) error {
	var cerr *cursor.Error
	if errors.As(err, &cerr) {
		return &wasm.DecodeError{Offset: cerr.Offset, Context: context, Msg: cerr.Msg, Err: cerr.Err}
	}
	return &wasm.DecodeError{Context: context, Msg: err.Error(), Err: err}
}
