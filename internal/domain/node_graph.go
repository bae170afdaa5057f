package domain

import (
	"fmt"
	"sort"
	"strconv"

	appErrors "github.com/recruitflow/backend/pkg/errors"
)

// ConditionEvaluator decides whether a connection condition holds.
type ConditionEvaluator interface {
	EvaluateBool(condition string, env map[string]interface{}) (bool, error)
}

// NodeGraph is the adjacency structure of one workflow, built once per load.
//
// When a workflow defines no explicit connections the graph derives an
// implicit chain from sequence order, so start/end and neighbour queries
// stay meaningful for purely sequential pipelines.
type NodeGraph struct {
	nodes    []*NodeDefinition
	byID     map[string]*NodeDefinition
	outgoing map[string][]*Connection
	incoming map[string][]*Connection
	implicit bool
}

// NewNodeGraph validates nodes and connections and indexes them.
func NewNodeGraph(nodes []*NodeDefinition, connections []*Connection) (*NodeGraph, error) {
	g := &NodeGraph{
		nodes:    make([]*NodeDefinition, 0, len(nodes)),
		byID:     make(map[string]*NodeDefinition, len(nodes)),
		outgoing: make(map[string][]*Connection),
		incoming: make(map[string][]*Connection),
	}

	seenOrder := make(map[int]string, len(nodes))
	for _, n := range nodes {
		if _, dup := g.byID[n.ID]; dup {
			return nil, appErrors.NewConflictError("node", "id", n.ID)
		}
		if other, dup := seenOrder[n.SequenceOrder]; dup {
			return nil, appErrors.NewValidationError("sequence_order",
				fmt.Sprintf("nodes %s and %s share sequence order %d", other, n.ID, n.SequenceOrder))
		}
		seenOrder[n.SequenceOrder] = n.ID
		g.byID[n.ID] = n
		g.nodes = append(g.nodes, n)
	}
	sort.Slice(g.nodes, func(i, j int) bool { return g.nodes[i].SequenceOrder < g.nodes[j].SequenceOrder })

	for _, c := range connections {
		if _, ok := g.byID[c.SourceNodeID]; !ok {
			return nil, appErrors.NewValidationError("source_node_id", "connection source "+c.SourceNodeID+" is not a node of this workflow")
		}
		if _, ok := g.byID[c.TargetNodeID]; !ok {
			return nil, appErrors.NewValidationError("target_node_id", "connection target "+c.TargetNodeID+" is not a node of this workflow")
		}
		if c.SourceNodeID == c.TargetNodeID {
			return nil, appErrors.NewValidationError("target_node_id", "a node cannot connect to itself")
		}
		g.outgoing[c.SourceNodeID] = append(g.outgoing[c.SourceNodeID], c)
		g.incoming[c.TargetNodeID] = append(g.incoming[c.TargetNodeID], c)
	}

	if len(connections) == 0 && len(g.nodes) > 1 {
		g.implicit = true
		for i := 0; i+1 < len(g.nodes); i++ {
			c := &Connection{
				ID:           "implicit-" + strconv.Itoa(i),
				SourceNodeID: g.nodes[i].ID,
				TargetNodeID: g.nodes[i+1].ID,
			}
			g.outgoing[c.SourceNodeID] = append(g.outgoing[c.SourceNodeID], c)
			g.incoming[c.TargetNodeID] = append(g.incoming[c.TargetNodeID], c)
		}
	}

	// Edges are tried in target sequence order.
	for id, edges := range g.outgoing {
		sort.SliceStable(edges, func(i, j int) bool {
			return g.byID[edges[i].TargetNodeID].SequenceOrder < g.byID[edges[j].TargetNodeID].SequenceOrder
		})
		g.outgoing[id] = edges
	}
	for id, edges := range g.incoming {
		sort.SliceStable(edges, func(i, j int) bool {
			return g.byID[edges[i].SourceNodeID].SequenceOrder < g.byID[edges[j].SourceNodeID].SequenceOrder
		})
		g.incoming[id] = edges
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// checkAcyclic rejects cycles; a candidate run visits each node at most once.
func (g *NodeGraph) checkAcyclic() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.nodes))
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return appErrors.NewValidationError("connections", "connections form a cycle through node "+id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, e := range g.outgoing[id] {
			if err := visit(e.TargetNodeID); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	for _, n := range g.nodes {
		if err := visit(n.ID); err != nil {
			return err
		}
	}
	return nil
}

// Nodes returns the nodes ordered by sequence.
func (g *NodeGraph) Nodes() []*NodeDefinition {
	return g.nodes
}

// Len returns the number of nodes.
func (g *NodeGraph) Len() int {
	return len(g.nodes)
}

// IsImplicitChain reports whether edges were derived from sequence order.
func (g *NodeGraph) IsImplicitChain() bool {
	return g.implicit
}

// Node looks up a node by id.
func (g *NodeGraph) Node(id string) (*NodeDefinition, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// IsStartNode: sequence order 1 or no incoming connection.
func (g *NodeGraph) IsStartNode(id string) bool {
	n, ok := g.byID[id]
	if !ok {
		return false
	}
	return n.SequenceOrder == 1 || len(g.incoming[id]) == 0
}

// IsEndNode: no outgoing connection.
func (g *NodeGraph) IsEndNode(id string) bool {
	if _, ok := g.byID[id]; !ok {
		return false
	}
	return len(g.outgoing[id]) == 0
}

// StartNode returns the lowest-sequence start node, or nil for an empty graph.
func (g *NodeGraph) StartNode() *NodeDefinition {
	for _, n := range g.nodes {
		if g.IsStartNode(n.ID) {
			return n
		}
	}
	return nil
}

// EndNodes returns every node without outgoing connections.
func (g *NodeGraph) EndNodes() []*NodeDefinition {
	var out []*NodeDefinition
	for _, n := range g.nodes {
		if g.IsEndNode(n.ID) {
			out = append(out, n)
		}
	}
	return out
}

// NextNodes returns the targets of outgoing connections.
func (g *NodeGraph) NextNodes(id string) []*NodeDefinition {
	edges := g.outgoing[id]
	out := make([]*NodeDefinition, 0, len(edges))
	for _, e := range edges {
		out = append(out, g.byID[e.TargetNodeID])
	}
	return out
}

// PreviousNodes returns the sources of incoming connections.
func (g *NodeGraph) PreviousNodes(id string) []*NodeDefinition {
	edges := g.incoming[id]
	out := make([]*NodeDefinition, 0, len(edges))
	for _, e := range edges {
		out = append(out, g.byID[e.SourceNodeID])
	}
	return out
}

// Successor picks the single live outgoing edge for an advance: the first
// edge (by target sequence) whose condition is empty or holds against env.
// Returns nil when the node is an end node or no condition matches.
func (g *NodeGraph) Successor(id string, env map[string]interface{}, eval ConditionEvaluator) (*NodeDefinition, error) {
	if _, ok := g.byID[id]; !ok {
		return nil, appErrors.NewNotFoundError("node", id)
	}
	for _, e := range g.outgoing[id] {
		if e.Condition == "" {
			return g.byID[e.TargetNodeID], nil
		}
		if eval == nil {
			return nil, fmt.Errorf("connection %s has condition %q but no evaluator is configured", e.ID, e.Condition)
		}
		ok, err := eval.EvaluateBool(e.Condition, env)
		if err != nil {
			return nil, appErrors.NewValidationError("condition", err.Error())
		}
		if ok {
			return g.byID[e.TargetNodeID], nil
		}
	}
	return nil, nil
}
