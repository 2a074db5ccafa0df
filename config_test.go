package wasmengine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tetratelabs/wasmengine/internal/engine"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

func TestRuntimeConfig(t *testing.T) {
	logger := zap.NewExample()
	reg := prometheus.NewRegistry()

	tests := []struct {
		name     string
		with     func(*RuntimeConfig) *RuntimeConfig
		expected *RuntimeConfig
	}{
		{
			name: "WithLogger",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithLogger(logger)
			},
			expected: &RuntimeConfig{logger: logger},
		},
		{
			name: "WithCompilationTasks",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithCompilationTasks(3)
			},
			expected: &RuntimeConfig{compilationTasks: 3},
		},
		{
			name: "WithGuardRegions",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithGuardRegions(true)
			},
			expected: &RuntimeConfig{guardRegions: true},
		},
		{
			name: "WithMemoryMaxPages",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithMemoryMaxPages(10)
			},
			expected: &RuntimeConfig{memoryMaxPages: 10},
		},
		{
			name: "WithLoopAssignmentAnalysis",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithLoopAssignmentAnalysis(true)
			},
			expected: &RuntimeConfig{loopAssignmentAnalysis: true},
		},
		{
			name: "WithReportAll",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithReportAll(true)
			},
			expected: &RuntimeConfig{reportAll: true},
		},
		{
			name: "WithMetricsRegisterer",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithMetricsRegisterer(reg)
			},
			expected: &RuntimeConfig{registerer: reg},
		},
		{
			name: "WithExecutor",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithExecutor(straightLineExecutor{})
			},
			expected: &RuntimeConfig{executor: straightLineExecutor{}},
		},
		{
			name: "WithImportShortcut",
			with: func(c *RuntimeConfig) *RuntimeConfig {
				return c.WithImportShortcut(true)
			},
			expected: &RuntimeConfig{importShortcut: true},
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			input := &RuntimeConfig{}
			rc := tc.with(input)
			require.Equal(t, tc.expected, rc)
			// The source wasn't modified
			require.Equal(t, &RuntimeConfig{}, input)
		})
	}
}

func TestNewRuntimeConfig(t *testing.T) {
	c := NewRuntimeConfig()
	require.Equal(t, defaultConfig, c)
	require.NotSame(t, defaultConfig, c)
	require.Equal(t, wasm.MemoryMaxPages, c.memoryMaxPages)
	require.True(t, c.importShortcut)

	// A nil logger is replaced, so that nothing logs through a nil pointer.
	require.NotNil(t, c.WithLogger(nil).logger)
}

func TestRuntimeConfig_engineConfig(t *testing.T) {
	c := NewRuntimeConfig().
		WithCompilationTasks(2).
		WithLoopAssignmentAnalysis(true).
		WithReportAll(true).
		WithImportShortcut(false).
		WithExecutor(straightLineExecutor{})

	require.Equal(t, engine.Config{
		CompilationTasks:       2,
		LoopAssignmentAnalysis: true,
		ReportAll:              true,
		ImportShortcut:         false,
		Executor:               straightLineExecutor{},
		Logger:                 c.logger,
	}, c.engineConfig(nil))
}

func TestNewRuntimeWithConfig_Metrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	c := NewRuntimeConfig().WithMetricsRegisterer(reg)

	r, err := NewRuntimeWithConfig(testCtx, c)
	require.NoError(t, err)
	defer r.Close(testCtx)

	_, err = NewRuntimeWithConfig(testCtx, c)
	require.ErrorContains(t, err, "register metrics: ")
}

func TestModuleConfig(t *testing.T) {
	c := NewModuleConfig()
	named := c.WithName("")
	require.Equal(t, &ModuleConfig{}, c)
	require.Equal(t, &ModuleConfig{nameSet: true}, named)

	disabled := named.WithStartFunctionDisabled(true)
	require.Equal(t, &ModuleConfig{nameSet: true, startFunctionDisabled: true}, disabled)
	require.Equal(t, &ModuleConfig{nameSet: true}, named)
}
