package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tetratelabs/wasmengine"
	"github.com/tetratelabs/wasmengine/api"
	"github.com/tetratelabs/wasmengine/internal/ast"
	"github.com/tetratelabs/wasmengine/internal/engine"
	"github.com/tetratelabs/wasmengine/internal/version"
	"github.com/tetratelabs/wasmengine/internal/wasm"
	"github.com/tetratelabs/wasmengine/internal/wasm/binary"
)

func main() {
	doMain(os.Stdout, os.Stderr, os.Args[1:], os.Exit)
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer, args []string, exit func(code int)) {
	cmd := newRootCommand(stdOut, stdErr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(stdErr, err)
		}
		exit(1)
		return
	}
	exit(0)
}

// errReported fails a command whose errors were already printed.
var errReported = errors.New("errors reported")

type cli struct {
	stdOut, stdErr io.Writer
	verbose        bool
}

func newRootCommand(stdOut, stdErr io.Writer) *cobra.Command {
	c := &cli{stdOut: stdOut, stdErr: stdErr}
	root := &cobra.Command{
		Use:           "wasmengine",
		Short:         "Decode, validate and compile pre-MVP binary modules",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdOut)
	root.SetErr(stdErr)
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log compilation to stderr")
	root.AddCommand(
		c.newValidateCommand(),
		c.newCompileCommand(),
		c.newInspectCommand(),
		c.newVersionCommand(),
	)
	return root
}

// logger returns a development logger writing to stderr when verbose, or a no-op one.
func (c *cli) logger() *zap.Logger {
	if !c.verbose {
		return zap.NewNop()
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(c.stdErr),
		zap.DebugLevel,
	)
	return zap.New(core, zap.Development())
}

func (c *cli) newValidateCommand() *cobra.Command {
	var reportAll bool
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Decode a module and validate every function body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runValidate(args[0], reportAll)
		},
	}
	cmd.Flags().BoolVar(&reportAll, "report-all", false, "report every invalid function instead of the first")
	return cmd
}

func (c *cli) runValidate(path string, reportAll bool) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = binary.DecodeModule(source, binary.DecodeOptions{ValidateFunction: ast.ValidateFunction, ReportAll: reportAll})
	if err != nil {
		for _, e := range multierr.Errors(err) {
			fmt.Fprintln(c.stdErr, e)
		}
		return errReported
	}
	fmt.Fprintln(c.stdOut, "ok")
	return nil
}

func (c *cli) newCompileCommand() *cobra.Command {
	var tasks int
	var reportAll, loopAnalysis bool
	cmd := &cobra.Command{
		Use:   "compile FILE",
		Short: "Compile every function of a module in parallel and print statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := wasmengine.NewRuntimeConfig().
				WithLogger(c.logger()).
				WithCompilationTasks(tasks).
				WithReportAll(reportAll).
				WithLoopAssignmentAnalysis(loopAnalysis)
			return c.runCompile(cmd.Context(), args[0], config)
		},
	}
	cmd.Flags().IntVar(&tasks, "tasks", 0, "maximum count of compilation goroutines, 0 for one per CPU")
	cmd.Flags().BoolVar(&reportAll, "report-all", false, "report every invalid function instead of the first")
	cmd.Flags().BoolVar(&loopAnalysis, "loop-analysis", false, "create loop phis only for locals assigned in the loop")
	return cmd
}

func (c *cli) runCompile(ctx context.Context, path string, config *wasmengine.RuntimeConfig) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	r, err := wasmengine.NewRuntimeWithConfig(ctx, config)
	if err != nil {
		return err
	}
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, source)
	if err != nil {
		for _, e := range multierr.Errors(err) {
			fmt.Fprintln(c.stdErr, e)
		}
		return errReported
	}
	s := compiled.Stats()
	fmt.Fprintf(c.stdOut, "functions: %d\nnodes: %d\ncall sites: %d\nlinked: %d\n",
		s.Functions, s.Nodes, s.CallSites, s.Linked)
	return nil
}

func (c *cli) newInspectCommand() *cobra.Command {
	var graph string
	var reencode bool
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the sections of a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInspect(cmd.Context(), args[0], graph, reencode)
		},
	}
	cmd.Flags().StringVar(&graph, "graph", "", "print the graph of the function with this export or debug name, or $index")
	cmd.Flags().BoolVar(&reencode, "reencode", false, "check the decoded module encodes back to the same bytes")
	return cmd
}

func (c *cli) runInspect(ctx context.Context, path, graph string, reencode bool) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m, err := binary.DecodeModule(source, binary.DecodeOptions{})
	if err != nil {
		return err
	}
	c.printModule(m)

	if reencode {
		if encoded := binary.EncodeModule(m); bytes.Equal(encoded, source) {
			fmt.Fprintln(c.stdOut, "reencode: identical")
		} else {
			fmt.Fprintf(c.stdOut, "reencode: differs (%d bytes, source %d bytes)\n", len(encoded), len(source))
		}
	}

	if graph == "" {
		return nil
	}
	funcIdx, ok := findFunction(m, graph)
	if !ok {
		return fmt.Errorf("function %q not found", graph)
	}
	if m.Functions[funcIdx].Imported {
		return fmt.Errorf("function %q is imported", graph)
	}
	e := engine.NewEngine(engine.Config{Logger: c.logger()})
	if err = e.CompileModule(ctx, m); err != nil {
		return err
	}
	fmt.Fprintf(c.stdOut, "graph %s:\n%s", graph, e.Graph(m, funcIdx).Format())
	return nil
}

func (c *cli) printModule(m *wasm.Module) {
	w := c.stdOut
	fmt.Fprintf(w, "signatures: %d\n", len(m.Signatures))
	for i, s := range m.Signatures {
		fmt.Fprintf(w, "  [%d] %s\n", i, s)
	}
	fmt.Fprintf(w, "imports: %d\n", len(m.Imports))
	for _, imp := range m.Imports {
		fmt.Fprintf(w, "  %s %s.%s\n", api.ExternTypeName(imp.Kind), imp.Module, imp.Name)
	}
	fmt.Fprintf(w, "functions: %d (%d imported)\n", len(m.Functions), m.ImportedFunctionCount)
	for idx := m.ImportedFunctionCount; idx < uint32(len(m.Functions)); idx++ {
		f := m.Functions[idx]
		start, end := f.CodeRange()
		fmt.Fprintf(w, "  [%d] %s %s locals=%d code=[%d,%d)\n", idx, m.FunctionName(idx), f.Type, len(f.LocalTypes), start, end)
	}
	if mem := m.Memory; mem != nil {
		fmt.Fprintf(w, "memory: min=%d max=%d pages imported=%v\n", mem.Min, mem.Max, mem.Imported)
	}
	fmt.Fprintf(w, "globals: %d (%d bytes)\n", len(m.Globals), m.GlobalsSize)
	fmt.Fprintf(w, "tables: %d\n", len(m.Tables))
	fmt.Fprintf(w, "element segments: %d\n", len(m.ElementSegments))
	fmt.Fprintf(w, "data segments: %d\n", len(m.DataSegments))
	fmt.Fprintf(w, "exports: %d\n", len(m.Exports))
	for _, e := range m.Exports {
		fmt.Fprintf(w, "  %s %s -> %d\n", api.ExternTypeName(e.Kind), e.Name, e.Index)
	}
	if m.StartFunction != nil {
		fmt.Fprintf(w, "start: %s\n", m.FunctionName(*m.StartFunction))
	}
}

// findFunction resolves an exported function name, then a debug name, then "$index".
func findFunction(m *wasm.Module, name string) (wasm.Index, bool) {
	if e := m.ExportByName(name); e != nil && e.Kind == wasm.ExternTypeFunc {
		return e.Index, true
	}
	for i, f := range m.Functions {
		if f.Name == name {
			return wasm.Index(i), true
		}
	}
	if idx, err := strconv.ParseUint(strings.TrimPrefix(name, "$"), 10, 32); err == nil && strings.HasPrefix(name, "$") {
		if idx < uint64(len(m.Functions)) {
			return wasm.Index(idx), true
		}
	}
	return 0, false
}

func (c *cli) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(c.stdOut, version.GetVersion())
		},
	}
}
