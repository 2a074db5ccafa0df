package wasmengine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/wasmengine/api"
	"github.com/tetratelabs/wasmengine/internal/ast"
	"github.com/tetratelabs/wasmengine/internal/ssa"
	"github.com/tetratelabs/wasmengine/internal/wasm"
	"github.com/tetratelabs/wasmengine/internal/wasm/binary"
)

// testCtx is an arbitrary, non-default context. Non-nil also prevents linter errors.
var testCtx = context.WithValue(context.Background(), struct{}{}, "arbitrary")

var (
	i32     = api.ValueTypeI32
	v_v     = &wasm.FunctionType{}
	i32_i32 = &wasm.FunctionType{Params: []wasm.ValueType{i32}, Results: []wasm.ValueType{i32}}
)

// straightLineExecutor evaluates graphs without control flow, in node order.
type straightLineExecutor struct{}

func (straightLineExecutor) Execute(ctx context.Context, inv *Invocation) ([]uint64, error) {
	g := inv.Graph
	values := make([]uint64, g.NodeCount()+1)
	args := func(n *ssa.Node) (ret []uint64) {
		for _, in := range n.Inputs[:len(n.Inputs)-2] {
			ret = append(ret, values[in])
		}
		return
	}
	for id := 1; id <= g.NodeCount(); id++ {
		n := g.Node(ast.Node(id))
		switch n.Op {
		case ssa.OpStart:
		case ssa.OpParam:
			values[id] = inv.Params[n.Aux]
		case ssa.OpInt32Constant:
			values[id] = uint64(uint32(n.Aux))
		case ssa.OpBinop:
			l, r := uint32(values[n.Inputs[0]]), uint32(values[n.Inputs[1]])
			switch n.Opcode {
			case wasm.OpcodeI32Add:
				values[id] = uint64(l + r)
			case wasm.OpcodeI32Mul:
				values[id] = uint64(l * r)
			default:
				return nil, fmt.Errorf("unsupported %s", wasm.InstructionName(n.Opcode))
			}
		case ssa.OpCall:
			results, err := inv.Call(ctx, ast.Node(id), args(n)...)
			if err != nil {
				return nil, err
			}
			if len(results) > 0 {
				values[id] = results[0]
			}
		case ssa.OpReturn:
			return args(n), nil
		case ssa.OpUnreachable:
			return nil, &wasm.Trap{Kind: wasm.TrapKindUnreachable, Offset: uint32(n.Offset)}
		default:
			return nil, fmt.Errorf("unsupported %s", n.Op)
		}
	}
	return nil, errors.New("no return")
}

// incSource exports "inc", which adds one to its parameter.
func incSource() []byte {
	return binary.EncodeModule(&wasm.Module{
		Signatures: []*wasm.FunctionType{i32_i32},
		Functions: []*wasm.Function{
			{Type: i32_i32, Body: []byte{wasm.OpcodeI32Add, wasm.OpcodeGetLocal, 0, wasm.OpcodeI8Const, 1}},
		},
		Exports: []*wasm.Export{{Kind: wasm.ExternTypeFunc, Name: "inc", Index: 0}},
	})
}

// appSource imports "env.double" and "lib.inc", exporting "run" which returns double(inc(x)), and "trap".
func appSource() []byte {
	return binary.EncodeModule(&wasm.Module{
		Signatures: []*wasm.FunctionType{i32_i32, v_v},
		Imports: []*wasm.Import{
			{Kind: wasm.ExternTypeFunc, Module: "env", Name: "double", DescFunc: 0, IndexPerType: 0},
			{Kind: wasm.ExternTypeFunc, Module: "lib", Name: "inc", DescFunc: 0, IndexPerType: 1},
		},
		Functions: []*wasm.Function{
			{Type: i32_i32, Imported: true},
			{Type: i32_i32, Imported: true, ImportIndex: 1},
			{Type: i32_i32, Body: []byte{wasm.OpcodeCallFunction, 0, wasm.OpcodeCallFunction, 1, wasm.OpcodeGetLocal, 0}},
			{TypeIndex: 1, Type: v_v, Body: []byte{wasm.OpcodeUnreachable}},
		},
		ImportedFunctionCount: 2,
		Memory:                &wasm.Memory{Min: 1, Max: 2},
		Exports: []*wasm.Export{
			{Kind: wasm.ExternTypeFunc, Name: "run", Index: 2},
			{Kind: wasm.ExternTypeFunc, Name: "trap", Index: 3},
			{Kind: wasm.ExternTypeMemory, Name: "memory", Index: 0},
		},
	})
}

func newTestRuntime(t *testing.T, config *RuntimeConfig) Runtime {
	r, err := NewRuntimeWithConfig(testCtx, config.WithExecutor(straightLineExecutor{}))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Close(testCtx)) })
	return r
}

func instantiateSource(t *testing.T, r Runtime, source []byte, name string) api.Module {
	compiled, err := r.CompileModule(testCtx, source)
	require.NoError(t, err)
	m, err := r.InstantiateModule(testCtx, compiled, NewModuleConfig().WithName(name))
	require.NoError(t, err)
	return m
}

func TestRuntime_CompileModule(t *testing.T) {
	r := newTestRuntime(t, NewRuntimeConfig())

	compiled, err := r.CompileModule(testCtx, appSource())
	require.NoError(t, err)
	require.Equal(t, []string{"run", "trap", "memory"}, compiled.ExportNames())
	require.Equal(t, CompileStats{Functions: 2, Nodes: 7, CallSites: 4, Linked: 2}, compiled.Stats())
}

func TestRuntime_CompileModule_Errors(t *testing.T) {
	r := newTestRuntime(t, NewRuntimeConfig())

	tests := []struct {
		name        string
		source      []byte
		expectedErr string
	}{
		{
			name:        "nil",
			expectedErr: "source == nil",
		},
		{
			name:        "too short",
			source:      []byte{0, 'a', 's'},
			expectedErr: "invalid source",
		},
		{
			name:        "invalid magic",
			source:      []byte{'w', 'a', 's', 'm', 0x0b, 0, 0, 0},
			expectedErr: "decode error @+0: invalid magic number",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.CompileModule(testCtx, tc.source)
			require.ErrorContains(t, err, tc.expectedErr)
		})
	}

	t.Run("invalid function", func(t *testing.T) {
		source := binary.EncodeModule(&wasm.Module{
			Signatures: []*wasm.FunctionType{i32_i32},
			Functions:  []*wasm.Function{{Type: i32_i32, Body: []byte{wasm.OpcodeI64Const, 1}}},
		})
		_, err := r.CompileModule(testCtx, source)
		var verr *wasm.ValidationError
		require.True(t, errors.As(err, &verr))
		require.Equal(t, wasm.Index(0), verr.Function)
	})
}

func TestRuntime_InstantiateModule(t *testing.T) {
	r := newTestRuntime(t, NewRuntimeConfig())

	var caller string
	double := func(_ context.Context, mod api.Module, params []uint64) ([]uint64, error) {
		caller = mod.Name()
		return []uint64{params[0] * 2}, nil
	}
	require.NoError(t, r.NewHostModuleBuilder("env").
		ExportFunction("double", []api.ValueType{i32}, []api.ValueType{i32}, double).
		Instantiate(testCtx))
	instantiateSource(t, r, incSource(), "lib")
	app := instantiateSource(t, r, appSource(), "app")

	require.Equal(t, "Module[app]", app.String())
	require.Equal(t, app, r.Module("app"))

	run := app.ExportedFunction("run")
	require.Equal(t, []api.ValueType{i32}, run.ParamTypes())
	require.Equal(t, []api.ValueType{i32}, run.ResultTypes())
	results, err := run.Call(testCtx, 20)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
	require.Equal(t, "app", caller)

	_, err = app.ExportedFunction("trap").Call(testCtx)
	require.ErrorIs(t, err, wasm.ErrRuntimeUnreachable)
	require.ErrorContains(t, err, "wasm error calling app.$3: wasm trap @+")
	var trap *wasm.Trap
	require.True(t, errors.As(err, &trap))
	require.Equal(t, wasm.TrapKindUnreachable, trap.Kind)

	require.Nil(t, app.ExportedFunction("memory"))
	require.Nil(t, app.ExportedGlobal("run"))
}

func TestRuntime_InstantiateModule_Errors(t *testing.T) {
	r := newTestRuntime(t, NewRuntimeConfig())
	compiled, err := r.CompileModule(testCtx, incSource())
	require.NoError(t, err)

	t.Run("default name", func(t *testing.T) {
		m, err := r.InstantiateModule(testCtx, compiled, nil)
		require.NoError(t, err)
		require.Equal(t, "module", m.Name())

		_, err = r.InstantiateModule(testCtx, compiled, NewModuleConfig())
		require.EqualError(t, err, "module[module] has already been instantiated")

		require.NoError(t, m.Close(testCtx))
		require.Nil(t, r.Module("module"))
		m, err = r.InstantiateModule(testCtx, compiled, nil)
		require.NoError(t, err)
		require.NoError(t, m.Close(testCtx))
	})

	t.Run("import not found", func(t *testing.T) {
		app, err := r.CompileModule(testCtx, appSource())
		require.NoError(t, err)
		_, err = r.InstantiateModule(testCtx, app, NewModuleConfig().WithName("app"))
		require.ErrorIs(t, err, wasm.ErrImportNotFound)
		var ierr *wasm.InstantiationError
		require.True(t, errors.As(err, &ierr))
		require.Equal(t, "app", ierr.Module)
		require.Nil(t, r.Module("app"))
	})
}

func TestRuntime_NoExecutor(t *testing.T) {
	r, err := NewRuntime(testCtx)
	require.NoError(t, err)
	defer r.Close(testCtx)

	m := instantiateSource(t, r, incSource(), "lib")
	_, err = m.ExportedFunction("inc").Call(testCtx, 1)
	require.EqualError(t, err, "wasm error calling lib.$0: no executor configured")
}

func TestModule_Memory(t *testing.T) {
	for _, guard := range []bool{false, true} {
		tc := guard
		t.Run(fmt.Sprintf("guard=%v", tc), func(t *testing.T) {
			r := newTestRuntime(t, NewRuntimeConfig().WithGuardRegions(tc))
			require.NoError(t, r.NewHostModuleBuilder("env").
				ExportFunction("double", []api.ValueType{i32}, []api.ValueType{i32},
					func(_ context.Context, _ api.Module, params []uint64) ([]uint64, error) {
						return params, nil
					}).
				Instantiate(testCtx))
			instantiateSource(t, r, incSource(), "lib")
			app := instantiateSource(t, r, appSource(), "app")

			mem := app.Memory()
			require.Equal(t, mem, app.ExportedMemory("memory"))
			require.Nil(t, app.ExportedMemory("run"))
			require.Equal(t, uint32(65536), mem.Size())

			require.True(t, mem.WriteUint32Le(65532, 0xdeadbeef))
			require.False(t, mem.WriteUint32Le(65533, 1))

			prev, ok := mem.Grow(1)
			require.True(t, ok)
			require.Equal(t, uint32(1), prev)
			require.Equal(t, uint32(2*65536), mem.Size())

			v, ok := mem.ReadUint32Le(65532)
			require.True(t, ok)
			require.Equal(t, uint32(0xdeadbeef), v)

			_, ok = mem.Grow(1)
			require.False(t, ok)
		})
	}
}

func TestModule_Global(t *testing.T) {
	r := newTestRuntime(t, NewRuntimeConfig())

	source := binary.EncodeModule(&wasm.Module{
		Globals: []*wasm.Global{
			{Type: &wasm.GlobalType{ValType: i32}, Init: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0x2a}}},
			{Type: &wasm.GlobalType{ValType: i32, Mutable: true}, Init: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0x01}}, Offset: 4},
		},
		GlobalsSize: 8,
		Exports: []*wasm.Export{
			{Kind: wasm.ExternTypeGlobal, Name: "answer", Index: 0},
			{Kind: wasm.ExternTypeGlobal, Name: "counter", Index: 1},
		},
	})
	m := instantiateSource(t, r, source, "globals")

	answer := m.ExportedGlobal("answer")
	require.Equal(t, "global(42)", answer.String())
	require.Equal(t, i32, answer.Type())
	_, mutable := answer.(api.MutableGlobal)
	require.False(t, mutable)

	counter := m.ExportedGlobal("counter").(api.MutableGlobal)
	counter.Set(api.EncodeI32(-1))
	require.Equal(t, uint64(0xffffffff), counter.Get())
	require.Equal(t, uint64(0xffffffff), m.ExportedGlobal("counter").Get())
}

func TestRuntime_Close(t *testing.T) {
	r, err := NewRuntimeWithConfig(testCtx, NewRuntimeConfig().WithExecutor(straightLineExecutor{}))
	require.NoError(t, err)

	require.NoError(t, r.NewHostModuleBuilder("env").ExportMemory("memory", 1, 1).Instantiate(testCtx))
	compiled, err := r.CompileModule(testCtx, incSource())
	require.NoError(t, err)
	m, err := r.InstantiateModule(testCtx, compiled, NewModuleConfig().WithName("lib"))
	require.NoError(t, err)

	require.NoError(t, r.Close(testCtx))
	require.Nil(t, r.Module("lib"))
	require.Equal(t, CompileStats{}, compiled.Stats())

	_, err = m.ExportedFunction("inc").Call(testCtx, 1)
	require.EqualError(t, err, "module[lib] is closed")
}
