package engine

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tetratelabs/wasmengine/internal/ast"
	"github.com/tetratelabs/wasmengine/internal/metrics"
	"github.com/tetratelabs/wasmengine/internal/ssa"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

// compilationUnit is a defined function waiting to be decoded and built. Each is claimed exactly once.
type compilationUnit struct {
	index wasm.Index
	body  *ast.FunctionBody
}

type compilationResult struct {
	index wasm.Index
	graph *ssa.Graph
	err   error
}

type compileOptions struct {
	// tasks is the maximum count of goroutines compiling, including the caller's.
	tasks     int
	reportAll bool
	ast       ast.Options
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// compileFunctions decodes and builds every function defined in module, returning their graphs in function index
// order, without imports.
//
// Units are claimed through an atomic counter by the calling goroutine and up to tasks-1 workers. Results flow
// through a channel sized to hold all of them, which the caller drains after each unit it finished itself and once
// the workers are done. Canceling ctx stops further claims.
//
// Errors are selected deterministically: the failure of the lowest function index, or with reportAll every failure
// in index order.
func compileFunctions(ctx context.Context, module *wasm.Module, opts compileOptions) ([]*ssa.Graph, error) {
	imported := module.ImportedFunctionCount
	units := make([]compilationUnit, 0, len(module.Functions)-int(imported))
	for idx := imported; idx < uint32(len(module.Functions)); idx++ {
		units = append(units, compilationUnit{index: idx, body: ast.NewFunctionBody(module, idx)})
	}
	graphs := make([]*ssa.Graph, len(units))
	if len(units) == 0 {
		return graphs, nil
	}

	var next atomic.Int64
	var failed atomic.Bool
	claim := func() (compilationUnit, bool) {
		if ctx.Err() != nil || (failed.Load() && !opts.reportAll) {
			return compilationUnit{}, false
		}
		// Claims are in index order, so units before a failure were already claimed and will complete.
		i := next.Add(1) - 1
		if i >= int64(len(units)) {
			return compilationUnit{}, false
		}
		return units[i], true
	}

	results := make(chan compilationResult, len(units))
	execute := func(u compilationUnit) {
		r := compileFunction(u, opts)
		if r.err != nil {
			failed.Store(true)
		}
		results <- r
	}

	var failures []compilationResult
	absorb := func(r compilationResult) {
		if r.err != nil {
			failures = append(failures, r)
			return
		}
		graphs[r.index-imported] = r.graph
	}
	drain := func() {
		for {
			select {
			case r := <-results:
				absorb(r)
			default:
				return
			}
		}
	}

	tasks := compilationTasks(opts.tasks, len(units))
	var g errgroup.Group
	for i := 1; i < tasks; i++ {
		g.Go(func() error {
			for u, ok := claim(); ok; u, ok = claim() {
				execute(u)
			}
			return nil
		})
	}
	for u, ok := claim(); ok; u, ok = claim() {
		execute(u)
		drain()
	}
	_ = g.Wait() // workers report through results
	close(results)
	for r := range results {
		absorb(r)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("compilation canceled: %w", err)
	}
	if len(failures) == 0 {
		return graphs, nil
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].index < failures[j].index })
	if !opts.reportAll {
		return nil, failures[0].err
	}
	var err error
	for _, f := range failures {
		err = multierr.Append(err, f.err)
	}
	return nil, err
}

// compilationTasks returns T = min(tasks, NumCPU), but at least one and no more than the count of units.
func compilationTasks(tasks, units int) int {
	if n := runtime.NumCPU(); tasks <= 0 || tasks > n {
		tasks = n
	}
	if tasks > units {
		tasks = units
	}
	if tasks < 1 {
		tasks = 1
	}
	return tasks
}

func compileFunction(u compilationUnit, opts compileOptions) compilationResult {
	g := ssa.NewBuilder(u.body.Signature)
	_, err := ast.DecodeFunctionBody(u.body, g, opts.ast)
	opts.metrics.FunctionCompiled(err != nil)
	if err != nil {
		opts.logger.Debug("function failed to compile", zap.Uint32("function", u.index), zap.Error(err))
		return compilationResult{index: u.index, err: err}
	}
	return compilationResult{index: u.index, graph: g}
}
