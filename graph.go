package aegis

import (
	"context"
	"fmt"
	"sort"
)

// End is the designated terminal marker. A node whose successor resolves to
// End finishes the run.
const End = "__end__"

// NodeFunc executes a single step over the workflow state. It may call out to
// collaborators and is expected to set RoutingHint and/or Outcome.
type NodeFunc func(ctx context.Context, state *WorkflowState) error

// Selector maps the post-node state to the name of the next node, consulting
// RoutingHint and the original input text.
type Selector func(state *WorkflowState) string

// Node is a named step in a workflow graph. A node has either a static Next
// edge or a Select function; Select wins when both are set.
type Node struct {
	Name    string
	Handler NodeFunc
	Next    string
	Select  Selector
}

// GraphOptions configures a new Graph.
type GraphOptions struct {
	Name  string
	Entry string
	Nodes []*Node
}

// Graph is a directed graph of named nodes with a single entry point,
// validated at construction time.
type Graph struct {
	name        string
	entry       *Node
	nodesByName map[string]*Node
}

// NewGraph returns a new Graph configured with the given options.
func NewGraph(opts GraphOptions) (*Graph, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("graph name required")
	}
	if len(opts.Nodes) == 0 {
		return nil, fmt.Errorf("nodes required")
	}

	nodesByName := make(map[string]*Node, len(opts.Nodes))
	for _, node := range opts.Nodes {
		if node.Name == "" {
			return nil, fmt.Errorf("node name required")
		}
		if node.Name == End {
			return nil, fmt.Errorf("node name %q is reserved", End)
		}
		if node.Handler == nil {
			return nil, fmt.Errorf("node %q handler required", node.Name)
		}
		if _, ok := nodesByName[node.Name]; ok {
			return nil, fmt.Errorf("duplicate node name %q", node.Name)
		}
		nodesByName[node.Name] = node
	}

	entryName := opts.Entry
	if entryName == "" {
		entryName = opts.Nodes[0].Name
	}
	entry, ok := nodesByName[entryName]
	if !ok {
		return nil, fmt.Errorf("entry node %q not found", entryName)
	}

	if err := validateGraphNodes(nodesByName); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}

	return &Graph{
		name:        opts.Name,
		entry:       entry,
		nodesByName: nodesByName,
	}, nil
}

// Name returns the graph name
func (g *Graph) Name() string {
	return g.name
}

// Entry returns the entry node
func (g *Graph) Entry() *Node {
	return g.entry
}

// GetNode returns a node by name
func (g *Graph) GetNode(name string) (*Node, bool) {
	node, ok := g.nodesByName[name]
	return node, ok
}

// NodeNames returns the names of all nodes in the graph
func (g *Graph) NodeNames() []string {
	names := make([]string, 0, len(g.nodesByName))
	for name := range g.nodesByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// nextNode resolves the successor of a node for the given state. It returns
// End when the run should finish.
func (g *Graph) nextNode(node *Node, state *WorkflowState) (string, error) {
	next := node.Next
	if node.Select != nil {
		next = node.Select(state)
	}
	if next == "" || next == End {
		return End, nil
	}
	if _, ok := g.nodesByName[next]; !ok {
		return "", fmt.Errorf("edge from %q to unknown node %q", node.Name, next)
	}
	return next, nil
}

// validateGraphNodes validates the graph structure: every static edge target
// must exist and at least one node must terminate.
func validateGraphNodes(nodesByName map[string]*Node) error {
	terminates := false
	for _, node := range nodesByName {
		if node.Next == "" && node.Select == nil {
			terminates = true
			continue
		}
		if node.Next == End {
			terminates = true
			continue
		}
		if node.Next != "" {
			if _, ok := nodesByName[node.Next]; !ok {
				return fmt.Errorf("edge to node %q not found", node.Next)
			}
		}
		if node.Select != nil {
			// Conditional targets are resolved at runtime; the selector may
			// route to End at any time.
			terminates = true
		}
	}
	if !terminates {
		return fmt.Errorf("graph must have at least one terminal node")
	}
	return nil
}
