package ast

import (
	"fmt"

	"github.com/tetratelabs/wasmengine/internal/wasm"
)

// envState is the reachability of an ssaEnv. The order matters: an environment is live when its state is at least
// envReached.
type envState byte

const (
	// envControlEnd is a path that provably never continues, ex. after return.
	envControlEnd envState = iota
	// envUnreachable is a join point no edge reached yet. The first edge merging into it is simply adopted.
	envUnreachable
	// envReached has a single predecessor, so no join was allocated yet.
	envReached
	// envMerged has a join: Chain.Control is a merge or loop, and later edges extend its phis.
	envMerged
)

var envStateNames = [...]string{
	envControlEnd:  "control_end",
	envUnreachable: "unreachable",
	envReached:     "reached",
	envMerged:      "merged",
}

// String implements fmt.Stringer
func (s envState) String() string {
	if int(s) < len(envStateNames) {
		return envStateNames[s]
	}
	return fmt.Sprintf("envState(%d)", s)
}

// ssaEnv is the state of a program point.
type ssaEnv struct {
	state envState
	chain Chain
	// locals holds the current value of each parameter and local. It is nil without a Builder or when not live.
	locals []Node
}

func (e *ssaEnv) live() bool {
	return e.state >= envReached
}

// kill marks the environment dead, releasing its bindings.
func (e *ssaEnv) kill(state envState) {
	e.state = state
	e.locals = nil
	e.chain = Chain{}
}

func unreachableEnv() *ssaEnv {
	return &ssaEnv{state: envUnreachable}
}

// split returns a copy of from, to be used by one direction of a branch.
func (d *decoder) split(from *ssaEnv) *ssaEnv {
	if !from.live() {
		return unreachableEnv()
	}
	ret := &ssaEnv{state: envReached, chain: from.chain}
	if from.locals != nil {
		ret.locals = make([]Node, len(from.locals))
		copy(ret.locals, from.locals)
	}
	return ret
}

// steal moves the bindings of from into a new environment, leaving from unreachable so that it can be used as a
// join point.
func (d *decoder) steal(from *ssaEnv) *ssaEnv {
	if !from.live() {
		return unreachableEnv()
	}
	ret := &ssaEnv{state: envReached, chain: from.chain, locals: from.locals}
	from.kill(envUnreachable)
	return ret
}

// goTo merges the environment from into the join point to, and kills from.
func (d *decoder) goTo(from, to *ssaEnv) {
	if !from.live() {
		return
	}
	switch to.state {
	case envUnreachable:
		to.state = envReached
		to.locals = from.locals
		to.chain = from.chain
	case envReached:
		to.state = envMerged
		if d.builder != nil {
			d.mergeReached(from, to)
		}
	case envMerged:
		if d.builder != nil {
			d.extendMerge(from, to)
		}
	default:
		panic(fmt.Errorf("BUG: merge into %s environment", to.state))
	}
	from.kill(envControlEnd)
}

// mergeReached allocates the join of a reached environment and one more edge.
func (d *decoder) mergeReached(from, to *ssaEnv) {
	b := d.builder
	merge := b.Merge(to.chain.Control, from.chain.Control)
	to.chain.Control = merge
	if from.chain.Effect != to.chain.Effect {
		to.chain.Effect = b.EffectPhi(merge, to.chain.Effect, from.chain.Effect)
	}
	for i := len(to.locals) - 1; i >= 0; i-- {
		if a, f := to.locals[i], from.locals[i]; a != f {
			to.locals[i] = b.Phi(d.localTypes[i], merge, a, f)
		}
	}
}

// extendMerge adds one edge to an existing join, extending phis or allocating them for values that differ for the
// first time.
func (d *decoder) extendMerge(from, to *ssaEnv) {
	b := d.builder
	merge := to.chain.Control
	b.AppendToMerge(merge, from.chain.Control)
	if b.IsPhiWithMerge(to.chain.Effect, merge) {
		b.AppendToPhi(merge, to.chain.Effect, from.chain.Effect)
	} else if to.chain.Effect != from.chain.Effect {
		to.chain.Effect = b.EffectPhi(merge, repeatThen(to.chain.Effect, from.chain.Effect, b.InputCount(merge))...)
	}
	for i := len(to.locals) - 1; i >= 0; i-- {
		t, f := to.locals[i], from.locals[i]
		if b.IsPhiWithMerge(t, merge) {
			b.AppendToPhi(merge, t, f)
		} else if t != f {
			to.locals[i] = b.Phi(d.localTypes[i], merge, repeatThen(t, f, b.InputCount(merge))...)
		}
	}
}

// createOrMergeIntoPhi joins the value of a block with the value of a new edge into its merge.
func (d *decoder) createOrMergeIntoPhi(t wasm.ValueType, merge, tnode, fnode Node) Node {
	b := d.builder
	if b.IsPhiWithMerge(tnode, merge) {
		b.AppendToPhi(merge, tnode, fnode)
		return tnode
	} else if tnode != fnode {
		return b.Phi(t, merge, repeatThen(tnode, fnode, b.InputCount(merge))...)
	}
	return tnode
}

// repeatThen returns count values: count-1 copies of old followed by last.
func repeatThen(old, last Node, count int) []Node {
	ret := make([]Node, count)
	for i := 0; i < count-1; i++ {
		ret[i] = old
	}
	ret[count-1] = last
	return ret
}

// prepareForLoop turns env into a loop header. With a Builder, every local gets a phi, or only the ones assigned
// inside the loop at pc when loop assignment analysis is enabled.
func (d *decoder) prepareForLoop(pc int, env *ssaEnv) {
	if !env.live() {
		return
	}
	env.state = envMerged
	b := d.builder
	if b == nil {
		return
	}
	env.chain.Control = b.Loop(env.chain.Control)
	env.chain.Effect = b.EffectPhi(env.chain.Control, env.chain.Effect)
	b.Terminate(env.chain)

	var assigned []bool
	if d.opts.LoopAssignmentAnalysis {
		assigned = loopAssignment(d.body, d.localTypes, pc)
	}
	for i := len(env.locals) - 1; i >= 0; i-- {
		if assigned != nil && !assigned[i] {
			continue
		}
		env.locals[i] = b.Phi(d.localTypes[i], env.chain.Control, env.locals[i])
	}
}
