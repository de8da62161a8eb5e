package greenlight

import (
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Options are used to configure a workflow.
type Options struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []*Node `json:"nodes" yaml:"nodes"`
	Edges       []*Edge `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// Workflow is an immutable graph of typed nodes connected by conditional
// edges. Cycles are permitted by construction; rejection loops rely on them.
type Workflow struct {
	name        string
	description string
	nodes       []*Node
	nodesByID   map[string]*Node
	outgoing    map[string][]*Edge
	startNodes  []*Node
}

// New returns a new Workflow configured with the given options. Structural
// problems (duplicate ids, dangling edges, no entry point) are returned as a
// DefinitionError and are never retried.
func New(opts Options) (*Workflow, error) {
	if opts.Name == "" {
		return nil, NewDefinitionError("workflow name required")
	}
	if len(opts.Nodes) == 0 {
		return nil, NewDefinitionError("workflow must have at least one node")
	}

	nodesByID := make(map[string]*Node, len(opts.Nodes))
	for _, node := range opts.Nodes {
		if node.ID == "" {
			return nil, NewDefinitionError("node id required")
		}
		if _, exists := nodesByID[node.ID]; exists {
			return nil, NewDefinitionError("duplicate node id %q", node.ID)
		}
		nodesByID[node.ID] = node
	}

	outgoing := make(map[string][]*Edge, len(opts.Nodes))
	hasIncoming := make(map[string]bool, len(opts.Nodes))
	for _, edge := range opts.Edges {
		if _, ok := nodesByID[edge.Source]; !ok {
			return nil, NewDefinitionError("edge source %q not found", edge.Source)
		}
		if _, ok := nodesByID[edge.Target]; !ok {
			return nil, NewDefinitionError("edge target %q not found", edge.Target)
		}
		outgoing[edge.Source] = append(outgoing[edge.Source], edge)
		hasIncoming[edge.Target] = true
	}

	// Entry set: every node with no incoming edge, in declaration order
	var startNodes []*Node
	for _, node := range opts.Nodes {
		if !hasIncoming[node.ID] {
			startNodes = append(startNodes, node)
		}
	}
	if len(startNodes) == 0 {
		return nil, NewDefinitionError("workflow has no entry point")
	}

	return &Workflow{
		name:        opts.Name,
		description: opts.Description,
		nodes:       opts.Nodes,
		nodesByID:   nodesByID,
		outgoing:    outgoing,
		startNodes:  startNodes,
	}, nil
}

// Name returns the workflow name
func (w *Workflow) Name() string {
	return w.name
}

// Description returns the workflow description
func (w *Workflow) Description() string {
	return w.description
}

// Nodes returns the workflow nodes in declaration order
func (w *Workflow) Nodes() []*Node {
	return w.nodes
}

// GetNode returns a node by id
func (w *Workflow) GetNode(id string) (*Node, bool) {
	node, ok := w.nodesByID[id]
	return node, ok
}

// NodeIDs returns the sorted ids of all nodes in the workflow
func (w *Workflow) NodeIDs() []string {
	ids := make([]string, 0, len(w.nodesByID))
	for id := range w.nodesByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StartNodes returns every node with no incoming edge, in declaration order.
func (w *Workflow) StartNodes() []*Node {
	return w.startNodes
}

// Outgoing returns the node's outgoing edges in declaration order.
func (w *Workflow) Outgoing(nodeID string) []*Edge {
	return w.outgoing[nodeID]
}

// LoadFile loads a workflow from a YAML file
func LoadFile(path string) (*Workflow, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, NewDefinitionError("failed to read workflow file: %s", err)
	}
	return LoadString(string(yamlData))
}

// LoadString loads a workflow from a YAML string
func LoadString(data string) (*Workflow, error) {
	var opts Options
	if err := yaml.Unmarshal([]byte(data), &opts); err != nil {
		return nil, NewDefinitionError("failed to unmarshal workflow: %s", err)
	}
	return New(opts)
}
