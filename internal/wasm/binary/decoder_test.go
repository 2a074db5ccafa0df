package binary

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/tetratelabs/wasmengine/internal/leb128"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

var (
	i32, i64, f32, f64 = wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64
	v_v                = &wasm.FunctionType{}
	i32i32_i32         = &wasm.FunctionType{Params: []wasm.ValueType{i32, i32}, Results: []wasm.ValueType{i32}}
	f64_v              = &wasm.FunctionType{Params: []wasm.ValueType{f64}}
)

// addBody is "return(i32.add(get_local 0, get_local 1))"
var addBody = []byte{
	wasm.OpcodeReturn, wasm.OpcodeI32Add,
	wasm.OpcodeGetLocal, 0,
	wasm.OpcodeGetLocal, 1,
}

func i32Const(v int32) *wasm.ConstantExpression {
	return &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: leb128.EncodeInt32(v)}
}

func header() []byte {
	return append(append([]byte{}, Magic...), 0x0b, 0x00, 0x00, 0x00)
}

// TestDecodeModule relies on EncodeModule producing what DecodeModule accepts, so that each case only needs to
// describe the module.
func TestDecodeModule(t *testing.T) {
	tests := []struct {
		name  string
		input *wasm.Module
	}{
		{
			name:  "empty",
			input: &wasm.Module{},
		},
		{
			name: "signatures",
			input: &wasm.Module{
				Signatures: []*wasm.FunctionType{v_v, i32i32_i32, f64_v},
			},
		},
		{
			name: "add",
			input: &wasm.Module{
				Signatures: []*wasm.FunctionType{i32i32_i32},
				Functions:  []*wasm.Function{{TypeIndex: 0, Type: i32i32_i32, Body: addBody, Name: "add"}},
				Exports:    []*wasm.Export{{Kind: wasm.ExternTypeFunc, Name: "add", Index: 0}},
			},
		},
		{
			name: "imports of every kind",
			input: &wasm.Module{
				Signatures: []*wasm.FunctionType{v_v, f64_v},
				Imports: []*wasm.Import{
					{Kind: wasm.ExternTypeFunc, Module: "env", Name: "log", DescFunc: 1},
					{Kind: wasm.ExternTypeTable, Module: "env", Name: "table", DescTable: &wasm.Table{Min: 1, Max: 10}},
					{Kind: wasm.ExternTypeMemory, Module: "env", Name: "memory", DescMem: &wasm.Memory{Min: 1, Max: 2}},
					{Kind: wasm.ExternTypeGlobal, Module: "env", Name: "base", DescGlobal: &wasm.GlobalType{ValType: i32}},
				},
			},
		},
		{
			name: "locals, table, memory, globals and segments",
			input: &wasm.Module{
				Signatures: []*wasm.FunctionType{v_v, i32i32_i32},
				Functions: []*wasm.Function{
					{TypeIndex: 0, Type: v_v, LocalTypes: []wasm.ValueType{i32, i32, f64, i64, i64}, Body: []byte{wasm.OpcodeNop}},
					{TypeIndex: 1, Type: i32i32_i32, Body: addBody},
				},
				Tables: []*wasm.Table{{Min: 2, Max: 4}},
				Memory: &wasm.Memory{Min: 1, Max: 3, Exported: true},
				Globals: []*wasm.Global{
					{Type: &wasm.GlobalType{ValType: i32, Mutable: true}, Init: i32Const(1)},
					{Type: &wasm.GlobalType{ValType: f32}, Init: &wasm.ConstantExpression{Opcode: wasm.OpcodeF32Const, Data: []byte{0, 0, 0x80, 0x3f}}},
				},
				ElementSegments: []*wasm.ElementSegment{{TableIndex: 0, OffsetExpr: i32Const(0), Init: []wasm.Index{1, 0}}},
				DataSegments:    []*wasm.DataSegment{{OffsetExpression: i32Const(16), Init: []byte("hello")}},
				Exports: []*wasm.Export{
					{Kind: wasm.ExternTypeFunc, Name: "add", Index: 1},
					{Kind: wasm.ExternTypeGlobal, Name: "g", Index: 0},
					{Kind: wasm.ExternTypeTable, Name: "t", Index: 0},
				},
			},
		},
		{
			name: "start function",
			input: &wasm.Module{
				Signatures:    []*wasm.FunctionType{v_v},
				Functions:     []*wasm.Function{{TypeIndex: 0, Type: v_v, Body: []byte{wasm.OpcodeNop}}},
				StartFunction: new(wasm.Index),
			},
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			encoded := EncodeModule(tc.input)
			m, err := DecodeModule(encoded, DecodeOptions{})
			require.NoError(t, err)
			require.Equal(t, encoded, EncodeModule(m))

			// Decoding is deterministic.
			again, err := DecodeModule(encoded, DecodeOptions{})
			require.NoError(t, err)
			require.Equal(t, m, again)
		})
	}
}

func TestDecodeModule_Details(t *testing.T) {
	source := EncodeModule(&wasm.Module{
		Signatures: []*wasm.FunctionType{v_v, i32i32_i32},
		Imports: []*wasm.Import{
			{Kind: wasm.ExternTypeFunc, Module: "env", Name: "f", DescFunc: 0},
			{Kind: wasm.ExternTypeGlobal, Module: "env", Name: "g", DescGlobal: &wasm.GlobalType{ValType: i64}},
		},
		ImportedFunctionCount: 1,
		ImportedGlobalCount:   1,
		Functions: []*wasm.Function{
			{Imported: true},
			{TypeIndex: 1, Type: i32i32_i32, Body: addBody, LocalTypes: []wasm.ValueType{f64}},
		},
		Globals: []*wasm.Global{
			{Imported: true, Type: &wasm.GlobalType{ValType: i64}},
			{Type: &wasm.GlobalType{ValType: i32}, Init: i32Const(1)},
			{Type: &wasm.GlobalType{ValType: i64}, Init: &wasm.ConstantExpression{Opcode: wasm.OpcodeGetGlobal, Data: []byte{0}}},
			{Type: &wasm.GlobalType{ValType: i32}, Init: i32Const(3)},
		},
		Exports: []*wasm.Export{{Kind: wasm.ExternTypeFunc, Name: "add", Index: 1}},
	})

	m, err := DecodeModule(source, DecodeOptions{})
	require.NoError(t, err)

	require.Equal(t, uint32(1), m.ImportedFunctionCount)
	require.Equal(t, 2, len(m.Functions))
	require.True(t, m.Functions[0].Imported)
	require.Equal(t, uint32(0), m.Imports[0].IndexPerType)

	add := m.Functions[1]
	require.False(t, add.Imported)
	require.True(t, add.Exported)
	require.Same(t, m.Signatures[1], add.Type)
	require.Equal(t, []wasm.ValueType{f64}, add.LocalTypes)
	start, end := add.CodeRange()
	require.Equal(t, addBody, source[start:end])

	// Imported globals take no space: the rest are laid out at offsets aligned to their size.
	require.Equal(t, uint32(1), m.ImportedGlobalCount)
	require.Equal(t, uint32(0), m.Globals[1].Offset)
	require.Equal(t, uint32(8), m.Globals[2].Offset)
	require.Equal(t, uint32(16), m.Globals[3].Offset)
	require.Equal(t, uint32(20), m.GlobalsSize)
}

func TestDecodeModule_Errors(t *testing.T) {
	sigs := EncodeSection(SectionNameSignatures, append([]byte{1}, encodeFunctionType(v_v)...))
	f64Sigs := EncodeSection(SectionNameSignatures, append([]byte{1}, encodeFunctionType(f64_v)...))
	oneFunc := EncodeSection(SectionNameFunctionSignatures, []byte{1, 0})

	tests := []struct {
		name        string
		input       []byte
		expectedErr string
	}{
		{
			name:        "wrong magic",
			input:       []byte{'w', 'a', 's', 'm', 0x0b, 0, 0, 0},
			expectedErr: "decode error @+0: invalid magic number 0x7761736d",
		},
		{
			name:        "wrong version",
			input:       append(append([]byte{}, Magic...), 0x01, 0x00, 0x00, 0x00),
			expectedErr: "decode error @+4: invalid version 0x1, expected 0xb",
		},
		{
			name:        "truncated header",
			input:       Magic,
			expectedErr: "decode error in header @+4: version: expected 4 bytes, fell off end",
		},
		{
			name:        "section overruns buffer",
			input:       append(header(), 0x10, 0x01),
			expectedErr: "decode error @+9: section: expected 16 bytes, fell off end",
		},
		{
			name:        "duplicate section",
			input:       append(append(header(), sigs...), sigs...),
			expectedErr: fmt.Sprintf("decode error in signatures @+%d: duplicate section signatures", 8+len(sigs)),
		},
		{
			name:        "function signatures before signatures",
			input:       append(header(), oneFunc...),
			expectedErr: "decode error in function_signatures @+8: section function_signatures requires signatures",
		},
		{
			name: "import after function signatures",
			input: concat(header(), sigs, oneFunc,
				EncodeSection(SectionNameImportTable, []byte{0})),
			expectedErr: fmt.Sprintf("decode error in import_table @+%d: section import_table must precede function_signatures",
				8+len(sigs)+len(oneFunc)),
		},
		{
			name:  "missing function bodies",
			input: concat(header(), sigs, oneFunc),
			expectedErr: fmt.Sprintf("decode error in function_bodies @+%d: function and body count mismatch (1 != 0)",
				8+len(sigs)+len(oneFunc)),
		},
		{
			name:        "signature index out of range",
			input:       concat(header(), sigs, EncodeSection(SectionNameFunctionSignatures, []byte{1, 1})),
			expectedErr: fmt.Sprintf("decode error in function_signatures @+%d: signature index 1 out of range", 8+len(sigs)+22),
		},
		{
			name:        "unread bytes",
			input:       concat(header(), EncodeSection(SectionNameSignatures, []byte{0, 0xff})),
			expectedErr: "decode error in signatures @+21: 1 unread bytes at end of section",
		},
		{
			name:        "data without memory",
			input:       concat(header(), EncodeSection(SectionNameDataSegments, []byte{0})),
			expectedErr: "decode error in data_segments @+23: data segments declared without memory",
		},
		{
			name:        "memory over limit",
			input:       concat(header(), EncodeSection(SectionNameMemory, []byte{0x01, 0x81, 0x80, 0x04, 0x00})),
			expectedErr: "decode error in memory @+16: max 65537 pages (4 Gi) outside range of 65536 pages (4 Gi)",
		},
		{
			name:        "count exceeds section",
			input:       concat(header(), EncodeSection(SectionNameSignatures, []byte{0x7f})),
			expectedErr: "decode error in signatures @+20: signature count 127 exceeds remaining 0 bytes",
		},
		{
			name:        "start function with params",
			input:       concat(header(), f64Sigs, oneFunc, EncodeSection(SectionNameStartFunction, []byte{0})),
			expectedErr: fmt.Sprintf("decode error in start_function @+%d: start function must have signature v_v, but was f64_v", 8+len(f64Sigs)+len(oneFunc)+16),
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeModule(tc.input, DecodeOptions{})
			require.EqualError(t, err, tc.expectedErr)

			var decodeErr *wasm.DecodeError
			require.True(t, errors.As(err, &decodeErr))
		})
	}
}

func TestDecodeModule_SkipsUnknownAndStopsAtEnd(t *testing.T) {
	input := concat(header(),
		EncodeSection("custom", []byte{1, 2, 3}),
		EncodeSection(SectionNameEnd, nil),
		[]byte{0xde, 0xad}, // ignored after end
	)
	m, err := DecodeModule(input, DecodeOptions{})
	require.NoError(t, err)
	require.Empty(t, m.Functions)
}

func TestDecodeModule_Names(t *testing.T) {
	source := EncodeModule(&wasm.Module{
		Signatures: []*wasm.FunctionType{v_v},
		Imports:    []*wasm.Import{{Kind: wasm.ExternTypeFunc, Module: "env", Name: "log", DescFunc: 0}},
		Functions: []*wasm.Function{
			{Type: v_v, Imported: true, ImportIndex: 0, Name: "log"},
			{TypeIndex: 0, Type: v_v, Body: []byte{wasm.OpcodeNop}, Name: "run"},
			{TypeIndex: 0, Type: v_v, Body: []byte{wasm.OpcodeNop}},
		},
		ImportedFunctionCount: 1,
	})
	m, err := DecodeModule(source, DecodeOptions{})
	require.NoError(t, err)

	// Names start at the first defined function.
	require.Equal(t, "", m.Functions[0].Name)
	require.Equal(t, "run", m.Functions[1].Name)
	require.Equal(t, "run", m.FunctionName(1))
	require.Equal(t, "$2", m.FunctionName(2))

	input := concat(header(), EncodeSection(SectionNameNames, []byte{1, 1, 'x', 0}))
	_, err = DecodeModule(input, DecodeOptions{})
	require.ErrorContains(t, err, "function name count 1 exceeds defined function count 0")
}

func TestDecodeModule_ValidateFunction(t *testing.T) {
	source := EncodeModule(&wasm.Module{
		Signatures: []*wasm.FunctionType{v_v},
		Functions: []*wasm.Function{
			{Type: v_v, Body: []byte{wasm.OpcodeNop}},
			{Type: v_v, Body: []byte{wasm.OpcodeNop}},
			{Type: v_v, Body: []byte{wasm.OpcodeNop}},
		},
	})
	var validated []wasm.Index
	failEven := func(m *wasm.Module, idx wasm.Index) error {
		validated = append(validated, idx)
		if idx%2 == 0 {
			return &wasm.ValidationError{Function: idx, Msg: "nope"}
		}
		return nil
	}

	t.Run("first error", func(t *testing.T) {
		validated = nil
		_, err := DecodeModule(source, DecodeOptions{ValidateFunction: failEven})
		require.Error(t, err)
		require.Equal(t, []wasm.Index{0}, validated)
	})

	t.Run("report all", func(t *testing.T) {
		validated = nil
		_, err := DecodeModule(source, DecodeOptions{ValidateFunction: failEven, ReportAll: true})
		require.Equal(t, []wasm.Index{0, 1, 2}, validated)
		errs := multierr.Errors(err)
		require.Equal(t, 2, len(errs))
		var verr *wasm.ValidationError
		require.True(t, errors.As(errs[1], &verr))
		require.Equal(t, wasm.Index(2), verr.Function)
	})
}

func concat(parts ...[]byte) (ret []byte) {
	for _, p := range parts {
		ret = append(ret, p...)
	}
	return
}
