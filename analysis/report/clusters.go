// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"sort"

	"github.com/AleutianAI/deadwood/analysis/graph"
	"github.com/AleutianAI/deadwood/analysis/reach"
)

// clusters finds mutual-keep groups: strongly connected components of
// size two or more in the used-node subgraph. Symbols in a cluster
// reference each other in a cycle, so each looks used as long as the
// others exist; they can only ever be deleted together.
//
// Tarjan with an explicit frame stack. The recursion depth equals the
// longest reference chain in the project, which overflows goroutine
// stacks on generated code.
func clusters(g *graph.Graph, res *reach.Result) []Cluster {
	n := g.NodeCount()
	if n == 0 {
		return []Cluster{}
	}

	const unvisited = int32(-1)
	index := make([]int32, n)
	lowlink := make([]int32, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = unvisited
	}

	var (
		counter int32
		stack   []graph.NodeID
		out     []Cluster
	)

	type frame struct {
		node    graph.NodeID
		edges   []*graph.Edge
		edgeIdx int
	}

	visit := func(root graph.NodeID) {
		frames := []frame{{node: root, edges: g.Outgoing(root)}}
		index[root] = counter
		lowlink[root] = counter
		counter++
		stack = append(stack, root)
		onStack[root] = true

		for len(frames) > 0 {
			f := &frames[len(frames)-1]

			descended := false
			for f.edgeIdx < len(f.edges) {
				e := f.edges[f.edgeIdx]
				f.edgeIdx++
				w := e.To
				if !res.Used(w) {
					continue
				}
				if index[w] == unvisited {
					index[w] = counter
					lowlink[w] = counter
					counter++
					stack = append(stack, w)
					onStack[w] = true
					frames = append(frames, frame{node: w, edges: g.Outgoing(w)})
					descended = true
					break
				}
				if onStack[w] && index[w] < lowlink[f.node] {
					lowlink[f.node] = index[w]
				}
			}
			if descended {
				continue
			}

			node := f.node
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				p := &frames[len(frames)-1]
				if lowlink[node] < lowlink[p.node] {
					lowlink[p.node] = lowlink[node]
				}
			}

			if lowlink[node] == index[node] {
				var comp []string
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					if gn := g.Node(w); gn != nil {
						comp = append(comp, gn.FQN)
					}
					if w == node {
						break
					}
				}
				if len(comp) >= 2 {
					sort.Strings(comp)
					out = append(out, Cluster{Nodes: comp, Size: len(comp)})
				}
			}
		}
	}

	for _, un := range res.UsedNodes() {
		if index[un.ID] == unvisited {
			visit(un.ID)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Nodes[0] < out[j].Nodes[0] })
	if out == nil {
		return []Cluster{}
	}
	return out
}
