// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph holds the typed symbol graph that liveness analysis
// runs on: one node per fully-qualified name, one directed edge per
// resolved usage reference, both carrying closed kind enums.
//
// Node identifiers are dense int32 values assigned in insertion order.
// The reachability engine addresses its visited set by id*numStates,
// so identifiers must stay small and contiguous; FQN strings appear
// only at the edges of the system (extraction in, reports out).
package graph

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	// DefaultMaxNodes is the default maximum number of nodes a graph can hold.
	DefaultMaxNodes = 1_000_000

	// DefaultMaxEdges is the default maximum number of edges a graph can hold.
	DefaultMaxEdges = 10_000_000
)

// NodeID is a dense node identifier assigned at insertion.
type NodeID int32

// InvalidNode is returned by lookups that find nothing.
const InvalidNode NodeID = -1

// GraphState represents the lifecycle state of the graph.
type GraphState int

const (
	// GraphStateBuilding indicates the graph is accepting AddNode/AddEdge calls.
	GraphStateBuilding GraphState = iota

	// GraphStateReadOnly indicates the graph is frozen and read-only.
	GraphStateReadOnly
)

// String returns the string representation of the GraphState.
func (s GraphState) String() string {
	switch s {
	case GraphStateBuilding:
		return "building"
	case GraphStateReadOnly:
		return "readonly"
	default:
		return "unknown"
	}
}

// =============================================================================
// Node Kinds
// =============================================================================

// NodeKind defines what a graph node represents.
type NodeKind int

const (
	// NodeKindUnknown indicates an unrecognized node kind.
	NodeKindUnknown NodeKind = iota

	// NodeKindModule is a Python module or package __init__.
	NodeKindModule

	// NodeKindClass is a class definition.
	NodeKindClass

	// NodeKindFunction is a module-level or nested function.
	NodeKindFunction

	// NodeKindMethod is a function defined in a class body.
	NodeKindMethod

	// NodeKindAlias is a named re-binding of another symbol.
	NodeKindAlias

	// NumNodeKinds is the total number of node kinds (for array sizing).
	NumNodeKinds
)

// nodeKindNames maps NodeKind values to their wire representations.
var nodeKindNames = map[NodeKind]string{
	NodeKindUnknown:  "unknown",
	NodeKindModule:   "module",
	NodeKindClass:    "class",
	NodeKindFunction: "function",
	NodeKindMethod:   "method",
	NodeKindAlias:    "alias",
}

// String returns the wire representation of the NodeKind.
func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// =============================================================================
// Edge Kinds
// =============================================================================

// EdgeKind defines the type of usage relationship between symbols.
// The set is closed: extractors may only emit these kinds, and the
// pattern language accepts exactly these names as atoms.
type EdgeKind int

const (
	// EdgeKindCall is an invocation of a callable.
	EdgeKindCall EdgeKind = iota

	// EdgeKindValueFlow is a callable used as a value (argument,
	// default value, recognized container position).
	EdgeKindValueFlow

	// EdgeKindDecorator is a decorated definition using its decorator.
	EdgeKindDecorator

	// EdgeKindException is a type referenced by raise or except.
	EdgeKindException

	// EdgeKindIsinstance is a type referenced by isinstance/issubclass.
	EdgeKindIsinstance

	// EdgeKindProperty is a property or descriptor accessor reference.
	EdgeKindProperty

	// EdgeKindReturnEscape is an inner definition escaping via return.
	EdgeKindReturnEscape

	// EdgeKindInheritOverride links a base method to the override that
	// can stand in for it on instances of the subclass.
	EdgeKindInheritOverride

	// EdgeKindProtocolImpl links a protocol method to a structural
	// implementation on a used class.
	EdgeKindProtocolImpl

	// EdgeKindAlias links an alias node to its resolution target.
	EdgeKindAlias

	// EdgeKindPolicyStructural links a policy-retained symbol to its
	// members; traversable only on the first step out of a root.
	EdgeKindPolicyStructural

	// NumEdgeKinds is the total number of edge kinds (for array sizing).
	NumEdgeKinds
)

// edgeKindNames maps EdgeKind values to their wire representations.
// These names are also the atoms of the path pattern language.
var edgeKindNames = map[EdgeKind]string{
	EdgeKindCall:             "call",
	EdgeKindValueFlow:        "value-flow",
	EdgeKindDecorator:        "decorator",
	EdgeKindException:        "exception",
	EdgeKindIsinstance:       "isinstance",
	EdgeKindProperty:         "property",
	EdgeKindReturnEscape:     "return-escape",
	EdgeKindInheritOverride:  "inherit-override",
	EdgeKindProtocolImpl:     "protocol-impl",
	EdgeKindAlias:            "alias",
	EdgeKindPolicyStructural: "policy-structural",
}

// edgeKindsByName is the reverse lookup used by the pattern compiler.
var edgeKindsByName = func() map[string]EdgeKind {
	m := make(map[string]EdgeKind, len(edgeKindNames))
	for kind, name := range edgeKindNames {
		m[name] = kind
	}
	return m
}()

// String returns the wire representation of the EdgeKind.
func (k EdgeKind) String() string {
	if name, ok := edgeKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// EdgeKindFromName resolves a pattern atom to its EdgeKind.
func EdgeKindFromName(name string) (EdgeKind, bool) {
	kind, ok := edgeKindsByName[name]
	return kind, ok
}

// EdgeKindNames returns the accepted atom names in enum order.
func EdgeKindNames() []string {
	names := make([]string, 0, int(NumEdgeKinds))
	for k := EdgeKind(0); k < NumEdgeKinds; k++ {
		names = append(names, edgeKindNames[k])
	}
	return names
}

// =============================================================================
// Nodes and Edges
// =============================================================================

// Node represents one symbol in the graph.
//
// Nodes are immutable after AddNode returns. The graph owns them.
type Node struct {
	// ID is the dense identifier assigned at insertion.
	ID NodeID

	// FQN is the fully-qualified dotted name.
	FQN string

	// Kind is the node kind.
	Kind NodeKind

	// File is the project-relative path of the defining file.
	File string

	// Line is the 1-indexed definition line.
	Line int
}

// Edge represents a directed usage relationship between two nodes.
//
// Multiple edges of the same kind between the same nodes are allowed,
// representing different reference sites.
type Edge struct {
	// From is the ID of the using node.
	From NodeID

	// To is the ID of the used node.
	To NodeID

	// Kind is the relationship kind.
	Kind EdgeKind

	// Line is the 1-indexed line of the reference site, 0 for
	// synthesized edges (nominal propagation, policy retention).
	Line int
}

// Conflict records a dropped duplicate definition. The first
// definition of an FQN wins; later ones are recorded and warned about
// but never replace it.
type Conflict struct {
	// FQN is the contested fully-qualified name.
	FQN string

	// KeptFile and KeptLine locate the definition that won.
	KeptFile string
	KeptLine int

	// DroppedFile and DroppedLine locate the definition that lost.
	DroppedFile string
	DroppedLine int
}

// =============================================================================
// Options
// =============================================================================

// GraphOptions configures Graph behavior and limits.
type GraphOptions struct {
	// MaxNodes is the maximum number of nodes the graph can hold.
	// Default: 1,000,000
	MaxNodes int

	// MaxEdges is the maximum number of edges the graph can hold.
	// Default: 10,000,000
	MaxEdges int
}

// DefaultGraphOptions returns sensible defaults for graph configuration.
func DefaultGraphOptions() GraphOptions {
	return GraphOptions{
		MaxNodes: DefaultMaxNodes,
		MaxEdges: DefaultMaxEdges,
	}
}

// GraphOption is a functional option for configuring Graph.
type GraphOption func(*GraphOptions)

// WithMaxNodes sets the maximum number of nodes the graph can hold.
func WithMaxNodes(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxNodes = n
	}
}

// WithMaxEdges sets the maximum number of edges the graph can hold.
func WithMaxEdges(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxEdges = n
	}
}

// =============================================================================
// Graph
// =============================================================================

// Graph is the typed symbol graph.
//
// Thread Safety:
//
//	Graph is NOT safe for concurrent use during building. It is
//	designed for single-writer access during build, then read-only
//	after Freeze(). After Freeze() the graph can be read from multiple
//	goroutines concurrently.
//
// Lifecycle:
//
//  1. Create with NewGraph(projectRoot)
//  2. Build with AddNode() and AddEdge() calls
//  3. Call Freeze() to finalize
//  4. Query with Lookup(), Node(), Outgoing(), etc.
type Graph struct {
	// ProjectRoot is the absolute path to the analyzed project root.
	ProjectRoot string

	// nodes is dense storage indexed by NodeID.
	nodes []*Node

	// byFQN maps fully-qualified names to IDs.
	byFQN map[string]NodeID

	// out and in are adjacency lists indexed by NodeID.
	out [][]*Edge
	in  [][]*Edge

	// edges contains all edges in insertion order.
	edges []*Edge

	// edgesByKind groups edges by kind for O(1) kind queries.
	edgesByKind [NumEdgeKinds][]*Edge

	// nodesByKind groups nodes by kind.
	nodesByKind [NumNodeKinds][]*Node

	// conflicts records dropped duplicate definitions.
	conflicts []Conflict

	// state is the current lifecycle state.
	state GraphState

	// options contains configuration.
	options GraphOptions

	// BuiltAtMilli is the Unix timestamp in milliseconds when Freeze()
	// was called. Zero if the graph has not been frozen.
	BuiltAtMilli int64
}

// NewGraph creates a new empty graph for the given project root.
//
// Description:
//
//	Creates a graph in the Building state, ready to accept AddNode and
//	AddEdge calls. The graph must be frozen with Freeze() before the
//	reachability engine runs on it.
//
// Inputs:
//
//	projectRoot - Absolute path to the project root directory.
//	opts - Optional configuration options.
func NewGraph(projectRoot string, opts ...GraphOption) *Graph {
	options := DefaultGraphOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Graph{
		ProjectRoot: projectRoot,
		nodes:       make([]*Node, 0),
		byFQN:       make(map[string]NodeID),
		out:         make([][]*Edge, 0),
		in:          make([][]*Edge, 0),
		edges:       make([]*Edge, 0),
		state:       GraphStateBuilding,
		options:     options,
	}
}

// State returns the current lifecycle state of the graph.
func (g *Graph) State() GraphState {
	return g.state
}

// IsFrozen returns true if the graph is in read-only mode.
func (g *Graph) IsFrozen() bool {
	return g.state == GraphStateReadOnly
}

// Freeze transitions the graph to read-only mode.
//
// Description:
//
//	After calling Freeze(), AddNode and AddEdge return ErrGraphFrozen.
//	This operation is irreversible. The BuiltAtMilli timestamp is set
//	to the current time.
//
// Thread Safety:
//
//	After Freeze() returns, the graph can be safely read from multiple
//	goroutines concurrently.
func (g *Graph) Freeze() {
	g.state = GraphStateReadOnly
	g.BuiltAtMilli = time.Now().UnixMilli()
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// AddNode adds a symbol node to the graph.
//
// Description:
//
//	Registers fqn with the given kind and definition site. Duplicate
//	definitions follow first-wins semantics: the existing node is kept
//	unchanged and its ID is returned. A duplicate under a different
//	kind is additionally recorded as a Conflict; a same-kind duplicate
//	(a redefinition) is idempotent. Duplicates are never errors;
//	callers warn on Conflicts() after building.
//
// Inputs:
//
//	fqn - Fully-qualified dotted name. Must be non-empty.
//	kind - Node kind. Must not be NodeKindUnknown.
//	file - Project-relative defining file path.
//	line - 1-indexed definition line.
//
// Outputs:
//
//	NodeID - ID of the node now registered under fqn (new or existing).
//	error - Non-nil if the graph is frozen, at capacity, or the node
//	        is structurally invalid.
//
// Errors:
//
//	ErrGraphFrozen - Graph has been frozen
//	ErrInvalidNode - Empty FQN or unknown kind
//	ErrMaxNodesExceeded - Graph is at node capacity
func (g *Graph) AddNode(fqn string, kind NodeKind, file string, line int) (NodeID, error) {
	if g.state == GraphStateReadOnly {
		return InvalidNode, ErrGraphFrozen
	}
	if fqn == "" {
		return InvalidNode, fmt.Errorf("%w: empty FQN", ErrInvalidNode)
	}
	if kind <= NodeKindUnknown || kind >= NumNodeKinds {
		return InvalidNode, fmt.Errorf("%w: bad kind for %s", ErrInvalidNode, fqn)
	}

	if existing, ok := g.byFQN[fqn]; ok {
		kept := g.nodes[existing]
		if kept.Kind != kind {
			g.conflicts = append(g.conflicts, Conflict{
				FQN:         fqn,
				KeptFile:    kept.File,
				KeptLine:    kept.Line,
				DroppedFile: file,
				DroppedLine: line,
			})
		}
		return existing, nil
	}

	if len(g.nodes) >= g.options.MaxNodes {
		return InvalidNode, ErrMaxNodesExceeded
	}

	id := NodeID(len(g.nodes))
	node := &Node{
		ID:   id,
		FQN:  fqn,
		Kind: kind,
		File: file,
		Line: line,
	}

	g.nodes = append(g.nodes, node)
	g.byFQN[fqn] = id
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	g.nodesByKind[kind] = append(g.nodesByKind[kind], node)

	return id, nil
}

// AddEdge creates a directed edge between two existing nodes.
//
// Description:
//
//	Creates an edge of the given kind from the using node to the used
//	node. Both IDs must have been returned by AddNode. Multiple edges
//	of the same kind between the same nodes are allowed.
//
// Inputs:
//
//	from - ID of the using node.
//	to - ID of the used node.
//	kind - The relationship kind.
//	line - 1-indexed reference line, 0 for synthesized edges.
//
// Errors:
//
//	ErrGraphFrozen - Graph has been frozen
//	ErrNodeNotFound - Either ID is out of range
//	ErrMaxEdgesExceeded - Graph is at edge capacity
func (g *Graph) AddEdge(from, to NodeID, kind EdgeKind, line int) error {
	if g.state == GraphStateReadOnly {
		return ErrGraphFrozen
	}
	if len(g.edges) >= g.options.MaxEdges {
		return ErrMaxEdgesExceeded
	}
	if from < 0 || int(from) >= len(g.nodes) {
		return fmt.Errorf("%w: source %d", ErrNodeNotFound, from)
	}
	if to < 0 || int(to) >= len(g.nodes) {
		return fmt.Errorf("%w: target %d", ErrNodeNotFound, to)
	}
	if kind < 0 || kind >= NumEdgeKinds {
		return fmt.Errorf("%w: bad edge kind %d", ErrInvalidNode, kind)
	}

	edge := &Edge{
		From: from,
		To:   to,
		Kind: kind,
		Line: line,
	}

	g.edges = append(g.edges, edge)
	g.out[from] = append(g.out[from], edge)
	g.in[to] = append(g.in[to], edge)
	g.edgesByKind[kind] = append(g.edgesByKind[kind], edge)

	return nil
}

// Lookup resolves an FQN to its node ID.
func (g *Graph) Lookup(fqn string) (NodeID, bool) {
	id, ok := g.byFQN[fqn]
	if !ok {
		return InvalidNode, false
	}
	return id, true
}

// Node returns the node with the given ID, or nil if out of range.
func (g *Graph) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// NodeByFQN returns the node registered under fqn, or nil.
func (g *Graph) NodeByFQN(fqn string) *Node {
	id, ok := g.byFQN[fqn]
	if !ok {
		return nil
	}
	return g.nodes[id]
}

// Outgoing returns the edges leaving id in insertion order.
//
// The returned slice is the internal adjacency list; callers must not
// modify it. Returns nil for out-of-range IDs.
func (g *Graph) Outgoing(id NodeID) []*Edge {
	if id < 0 || int(id) >= len(g.out) {
		return nil
	}
	return g.out[id]
}

// Incoming returns the edges entering id in insertion order.
//
// The returned slice is the internal adjacency list; callers must not
// modify it. Returns nil for out-of-range IDs.
func (g *Graph) Incoming(id NodeID) []*Edge {
	if id < 0 || int(id) >= len(g.in) {
		return nil
	}
	return g.in[id]
}

// Nodes returns an iterator over all nodes in ID order.
//
// Example:
//
//	for _, node := range g.Nodes() {
//	    fmt.Printf("Node: %s\n", node.FQN)
//	}
func (g *Graph) Nodes() func(yield func(NodeID, *Node) bool) {
	return func(yield func(NodeID, *Node) bool) {
		for i, node := range g.nodes {
			if !yield(NodeID(i), node) {
				return
			}
		}
	}
}

// Edges returns a slice of all edges in insertion order.
//
// Callers should NOT modify the returned slice.
func (g *Graph) Edges() []*Edge {
	return g.edges
}

// Conflicts returns the recorded duplicate definitions in insertion
// order. Callers should NOT modify the returned slice.
func (g *Graph) Conflicts() []Conflict {
	return g.conflicts
}

// NodesByKind returns all nodes of the given kind in ID order.
//
// Returns a defensive copy to prevent external mutation.
func (g *Graph) NodesByKind(kind NodeKind) []*Node {
	if kind < 0 || kind >= NumNodeKinds {
		return []*Node{}
	}
	nodes := g.nodesByKind[kind]
	result := make([]*Node, len(nodes))
	copy(result, nodes)
	return result
}

// EdgesByKind returns all edges of the given kind in insertion order.
//
// Returns a defensive copy to prevent external mutation.
func (g *Graph) EdgesByKind(kind EdgeKind) []*Edge {
	if kind < 0 || kind >= NumEdgeKinds {
		return []*Edge{}
	}
	edges := g.edgesByKind[kind]
	result := make([]*Edge, len(edges))
	copy(result, edges)
	return result
}

// EdgeCountByKind returns the count of edges of the given kind.
func (g *Graph) EdgeCountByKind(kind EdgeKind) int {
	if kind < 0 || kind >= NumEdgeKinds {
		return 0
	}
	return len(g.edgesByKind[kind])
}

// NodeCountByKind returns the count of nodes of the given kind.
func (g *Graph) NodeCountByKind(kind NodeKind) int {
	if kind < 0 || kind >= NumNodeKinds {
		return 0
	}
	return len(g.nodesByKind[kind])
}

// =============================================================================
// Statistics
// =============================================================================

// GraphStats contains statistics about the graph.
//
// Thread Safety: GraphStats is a value type with no internal state.
// Safe for concurrent use as long as the source Graph is frozen.
type GraphStats struct {
	// NodeCount is the total number of nodes.
	NodeCount int

	// EdgeCount is the total number of edges.
	EdgeCount int

	// EdgesByKind maps each EdgeKind name to its edge count.
	EdgesByKind map[string]int

	// NodesByKind maps each NodeKind name to its node count.
	NodesByKind map[string]int

	// ConflictCount is the number of dropped duplicate definitions.
	ConflictCount int

	// MaxNodes is the configured maximum node capacity.
	MaxNodes int

	// MaxEdges is the configured maximum edge capacity.
	MaxEdges int

	// State is the current graph state.
	State GraphState

	// BuiltAtMilli is when Freeze() was called (0 if not frozen).
	BuiltAtMilli int64
}

// Stats returns statistics about the graph.
//
// Description:
//
//	Returns node/edge counts, breakdowns by kind, conflict counts and
//	capacity information, using the kind indexes for O(K) assembly.
//
// Thread Safety:
//
//	Safe for concurrent use on frozen graphs. Not safe during building.
func (g *Graph) Stats() GraphStats {
	edgesByKind := make(map[string]int)
	for k := EdgeKind(0); k < NumEdgeKinds; k++ {
		if count := len(g.edgesByKind[k]); count > 0 {
			edgesByKind[k.String()] = count
		}
	}

	nodesByKind := make(map[string]int)
	for k := NodeKind(0); k < NumNodeKinds; k++ {
		if count := len(g.nodesByKind[k]); count > 0 {
			nodesByKind[k.String()] = count
		}
	}

	return GraphStats{
		NodeCount:     len(g.nodes),
		EdgeCount:     len(g.edges),
		EdgesByKind:   edgesByKind,
		NodesByKind:   nodesByKind,
		ConflictCount: len(g.conflicts),
		MaxNodes:      g.options.MaxNodes,
		MaxEdges:      g.options.MaxEdges,
		State:         g.state,
		BuiltAtMilli:  g.BuiltAtMilli,
	}
}
