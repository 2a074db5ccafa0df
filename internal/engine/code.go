package engine

import (
	"fmt"

	"github.com/tetratelabs/wasmengine/internal/ast"
	"github.com/tetratelabs/wasmengine/internal/ssa"
	"github.com/tetratelabs/wasmengine/internal/wasm"
)

// CodeKind classifies an entry of a CodeTable.
type CodeKind byte

const (
	// CodeKindPlaceholder stands for a function whose code is not known yet, ex. an import before instantiation.
	CodeKindPlaceholder CodeKind = iota
	// CodeKindFunction is the graph built from a function body defined in the module.
	CodeKindFunction
	// CodeKindImportAdapter calls a host function, or a function of another instance through its module engine.
	CodeKindImportAdapter
	// CodeKindReuse is the code already compiled for a function of another instance, called directly.
	CodeKindReuse
	// CodeKindExportWrapper is the entry point of an exported function.
	CodeKindExportWrapper
)

var codeKindNames = [...]string{
	CodeKindPlaceholder:   "placeholder",
	CodeKindFunction:      "function",
	CodeKindImportAdapter: "import_adapter",
	CodeKindReuse:         "reuse",
	CodeKindExportWrapper: "export_wrapper",
}

// String implements fmt.Stringer
func (k CodeKind) String() string {
	if int(k) < len(codeKindNames) {
		return codeKindNames[k]
	}
	return fmt.Sprintf("CodeKind(%d)", k)
}

// Code is an entry of a CodeTable. Entries of kind CodeKindFunction and CodeKindExportWrapper are shared by every
// instance of a compiled module, so they are never modified after compilation.
type Code struct {
	Kind CodeKind

	// Index is the position in the function index space of the function this code implements, or wraps.
	Index wasm.Index

	// Graph is set for CodeKindFunction.
	Graph *ssa.Graph

	// Reloc is the position in CodeTable.Relocs of the call an export wrapper makes.
	Reloc int

	// Function is the imported function for CodeKindImportAdapter and CodeKindReuse.
	Function *wasm.FunctionInstance
}

// Reloc is a direct call site. Ref is the code the call resolves to, possibly a placeholder until Link finds real
// code for Target.
type Reloc struct {
	// Caller is the position in CodeTable.Entries of the code containing the call.
	Caller int
	// Site is the call node in the caller's graph, or ast.NoNode for an export wrapper.
	Site ast.Node
	// Target is the callee in the function index space.
	Target wasm.Index
	Ref    *Code
}

// CodeTable is the code of a module: one entry per function in the function index space, followed by export
// wrappers, and the direct call sites between them.
type CodeTable struct {
	Entries []*Code
	Relocs  []Reloc
}

// Link points every call site still referring to a placeholder at the entry the table now holds for its target,
// unless that entry is a placeholder too. Targets are looked up by index only. It returns the count of call sites
// that changed, so linking a linked table returns zero and changes nothing.
func Link(t *CodeTable) (patched int) {
	for i := range t.Relocs {
		r := &t.Relocs[i]
		if r.Ref.Kind != CodeKindPlaceholder || int(r.Target) >= len(t.Entries) {
			continue
		}
		if c := t.Entries[r.Target]; c.Kind != CodeKindPlaceholder {
			r.Ref = c
			patched++
		}
	}
	return
}

// clone returns a copy whose entries and call sites can be changed without affecting t.
func (t *CodeTable) clone() CodeTable {
	return CodeTable{
		Entries: append([]*Code(nil), t.Entries...),
		Relocs:  append([]Reloc(nil), t.Relocs...),
	}
}

// unresolved returns the count of call sites still referring to placeholders.
func (t *CodeTable) unresolved() (n int) {
	for i := range t.Relocs {
		if t.Relocs[i].Ref.Kind == CodeKindPlaceholder {
			n++
		}
	}
	return
}

// newCodeTable lays out the code of module: placeholders for imports, the graphs of defined functions, and a wrapper
// per exported function. Calls to the same unknown target share a placeholder.
func newCodeTable(module *wasm.Module, graphs []*ssa.Graph) CodeTable {
	imported := module.ImportedFunctionCount
	t := CodeTable{Entries: make([]*Code, len(module.Functions))}
	placeholders := map[wasm.Index]*Code{}
	placeholder := func(idx wasm.Index) *Code {
		c, ok := placeholders[idx]
		if !ok {
			c = &Code{Kind: CodeKindPlaceholder, Index: idx}
			placeholders[idx] = c
		}
		return c
	}

	for idx := range module.Functions {
		i := wasm.Index(idx)
		if i < imported {
			t.Entries[i] = placeholder(i)
		} else {
			t.Entries[i] = &Code{Kind: CodeKindFunction, Index: i, Graph: graphs[i-imported]}
		}
	}

	for idx := imported; idx < uint32(len(module.Functions)); idx++ {
		for _, site := range t.Entries[idx].Graph.CallSites {
			if site.Indirect {
				continue // dispatched through a table at runtime
			}
			t.Relocs = append(t.Relocs, Reloc{Caller: int(idx), Site: site.Node, Target: site.Target, Ref: placeholder(site.Target)})
		}
	}

	for _, e := range module.Exports {
		if e.Kind != wasm.ExternTypeFunc {
			continue
		}
		t.Relocs = append(t.Relocs, Reloc{Caller: len(t.Entries), Site: ast.NoNode, Target: e.Index, Ref: placeholder(e.Index)})
		t.Entries = append(t.Entries, &Code{Kind: CodeKindExportWrapper, Index: e.Index, Reloc: len(t.Relocs) - 1})
	}
	return t
}
