// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reach

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/deadwood/analysis/graph"
)

// =============================================================================
// Explanations
// =============================================================================

// Verdict names the reason a symbol is or is not live.
type Verdict int

const (
	// VerdictNotReachable means no accepting path and no fiat rule
	// reaches the symbol.
	VerdictNotReachable Verdict = iota

	// VerdictModule means the queried node is a module. Modules are
	// implicit analysis seeds, never dead-code candidates.
	VerdictModule

	// VerdictRoot means the symbol is a declared root.
	VerdictRoot

	// VerdictPolicy means the symbol is a member of a root class,
	// live through a policy-structural hop.
	VerdictPolicy

	// VerdictNominal means the symbol is an override or protocol
	// implementation of a live method.
	VerdictNominal

	// VerdictPath means an accepting pattern path reaches the symbol.
	VerdictPath
)

var verdictNames = map[Verdict]string{
	VerdictNotReachable: "not-reachable",
	VerdictModule:       "module",
	VerdictRoot:         "root",
	VerdictPolicy:       "policy-member",
	VerdictNominal:      "nominal",
	VerdictPath:         "path",
}

// String returns the wire representation of the Verdict.
func (v Verdict) String() string {
	if name, ok := verdictNames[v]; ok {
		return name
	}
	return "not-reachable"
}

// Step is one hop of a witness path.
type Step struct {
	// Kind is the edge kind traversed.
	Kind graph.EdgeKind

	// From and To are the endpoint FQNs.
	From string
	To   string

	// Line is the source line of the edge, 0 when synthesized.
	Line int
}

// Explanation answers an explain query for one FQN.
type Explanation struct {
	// Target is the queried FQN.
	Target string

	// Used reports liveness.
	Used bool

	// Verdict names why.
	Verdict Verdict

	// Root is the FQN the witness starts at. For a declared root the
	// target itself; empty when not reachable.
	Root string

	// Steps is the witness path from Root to Target, empty for a
	// root. The path is the first one found in search order.
	Steps []Step

	// Suppressed is set on unreachable symbols that an inline allow
	// marker keeps out of the dead set.
	Suppressed bool
}

// String renders the explanation as indented text, one hop per line.
func (ex *Explanation) String() string {
	switch ex.Verdict {
	case VerdictModule:
		return ex.Target + ": module, implicit analysis seed"
	case VerdictRoot:
		return ex.Target + ": declared root"
	}
	if !ex.Used {
		if ex.Suppressed {
			return ex.Target + ": not reachable, suppressed by allow marker"
		}
		return ex.Target + ": not reachable from any root"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: reachable from %s", ex.Target, ex.Root)
	for _, s := range ex.Steps {
		fmt.Fprintf(&b, "\n  %s -> %s [%s]", s.From, s.To, s.Kind)
		if s.Line > 0 {
			fmt.Fprintf(&b, " line %d", s.Line)
		}
	}
	return b.String()
}

// Explain reports why the named symbol is live or dead.
//
// Description:
//
//	Fiat reasons take precedence in the order they are applied
//	during the search: declared root, then policy membership, then
//	nominal injection, then the first accepting pattern path. Each
//	witness is the first one the deterministic search found.
//
// Outputs:
//
//	*Explanation - The verdict and witness.
//	error - ErrUnknownFQN when the graph has no such node.
func (r *Result) Explain(fqn string) (*Explanation, error) {
	id, ok := r.g.Lookup(fqn)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFQN, fqn)
	}

	ex := &Explanation{Target: fqn}
	if n := r.g.Node(id); n != nil && n.Kind == graph.NodeKindModule {
		ex.Used = true
		ex.Verdict = VerdictModule
		ex.Root = fqn
		return ex, nil
	}
	if r.set.Contains(id) {
		ex.Used = true
		ex.Verdict = VerdictRoot
		ex.Root = fqn
		return ex, nil
	}
	if edge, ok := r.policyParent[id]; ok {
		ex.Used = true
		ex.Verdict = VerdictPolicy
		ex.Root = r.fqnOf(edge.From)
		ex.Steps = []Step{r.step(edge)}
		return ex, nil
	}
	if _, ok := r.nominalParent[id]; ok {
		ex.Used = true
		ex.Verdict = VerdictNominal
		ex.Root, ex.Steps = r.nominalWitness(id)
		return ex, nil
	}
	if key, ok := r.acceptKey[id]; ok {
		ex.Used = true
		ex.Verdict = VerdictPath
		ex.Root, ex.Steps = r.walk(key)
		return ex, nil
	}

	if si := r.ix.Symbol(fqn); si != nil && si.Allowed {
		ex.Suppressed = true
	}
	return ex, nil
}

// step converts a graph edge to a witness step.
func (r *Result) step(edge *graph.Edge) Step {
	return Step{
		Kind: edge.Kind,
		From: r.fqnOf(edge.From),
		To:   r.fqnOf(edge.To),
		Line: edge.Line,
	}
}

func (r *Result) fqnOf(id graph.NodeID) string {
	if n := r.g.Node(id); n != nil {
		return n.FQN
	}
	return ""
}

// walk reconstructs the witness path ending at the given product
// state by following parent pointers back to a seed. Returns the seed
// node's FQN and the steps in root-to-target order.
func (r *Result) walk(key uint64) (string, []Step) {
	var steps []Step
	for {
		p, ok := r.parents[key]
		if !ok {
			break
		}
		steps = append(steps, r.step(p.edge))
		key = p.prev
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return r.fqnOf(graph.NodeID(key / r.numStates)), steps
}

// nominalWitness builds the path for a nominally injected symbol: the
// witness of the method it overrides, extended by the nominal hop.
// Chains of overrides unwind iteratively.
func (r *Result) nominalWitness(id graph.NodeID) (string, []Step) {
	var tail []Step
	cur := id
	for {
		edge, ok := r.nominalParent[cur]
		if !ok {
			break
		}
		tail = append(tail, r.step(edge))
		cur = edge.From
	}
	for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
		tail[i], tail[j] = tail[j], tail[i]
	}

	if r.set.Contains(cur) {
		return r.fqnOf(cur), tail
	}
	if edge, ok := r.policyParent[cur]; ok {
		return r.fqnOf(edge.From), append([]Step{r.step(edge)}, tail...)
	}
	if key, ok := r.acceptKey[cur]; ok {
		root, head := r.walk(key)
		return root, append(head, tail...)
	}
	return r.fqnOf(cur), tail
}
