// Package graph holds the per-session knowledge graph and the LLM-driven
// extractor that builds it from document chunks.
package graph

import (
	"sort"
	"strings"
)

type NodeType string

const (
	TypePerson       NodeType = "person"
	TypeOrganization NodeType = "organization"
	TypeConcept      NodeType = "concept"
	TypeOther        NodeType = "other"
)

// Node is a deduplicated entity. ID is the canonical name after
// normalization; Name keeps the first-seen casing for display.
type Node struct {
	ID       string
	Name     string
	Type     NodeType
	mentions map[string]struct{}
}

// Mentions returns the sorted chunk ids this entity was extracted from.
func (n *Node) Mentions() []string {
	out := make([]string, 0, len(n.mentions))
	for id := range n.mentions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Edge is a labeled relation between two canonical node ids. Duplicate
// (source, target, label) triples are merged with their mentions unioned;
// a reversed duplicate with the same label merges into the existing edge.
type Edge struct {
	Source   string
	Target   string
	Label    string
	mentions map[string]struct{}
}

func (e *Edge) Mentions() []string {
	out := make([]string, 0, len(e.mentions))
	for id := range e.mentions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type Graph struct {
	nodes map[string]*Node
	edges []*Edge
	index map[edgeKey]*Edge
}

type edgeKey struct {
	source string
	target string
	label  string
}

func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		index: make(map[edgeKey]*Edge),
	}
}

// Normalize produces the canonical entity id: trimmed, case-folded, with
// internal whitespace collapsed. Anything beyond that (e.g. "Smith" vs
// "Dr. Smith") is deliberately not merged.
func Normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// AddNode records an entity mention, merging into an existing node when the
// normalized name matches. Returns the canonical node (nil for blank names).
func (g *Graph) AddNode(name string, nodeType NodeType, chunkID string) *Node {
	id := Normalize(name)
	if id == "" {
		return nil
	}

	node, ok := g.nodes[id]
	if !ok {
		node = &Node{
			ID:       id,
			Name:     strings.Join(strings.Fields(name), " "),
			Type:     normalizeType(nodeType),
			mentions: make(map[string]struct{}),
		}
		g.nodes[id] = node
	} else if node.Type == TypeOther && nodeType != TypeOther {
		// A later extraction may know the entity better than "other".
		node.Type = normalizeType(nodeType)
	}

	if chunkID != "" {
		node.mentions[chunkID] = struct{}{}
	}
	return node
}

// AddEdge records a relation, creating missing endpoint nodes so every edge
// endpoint always exists in the node set.
func (g *Graph) AddEdge(source, target, label, chunkID string) *Edge {
	src := g.AddNode(source, TypeOther, chunkID)
	tgt := g.AddNode(target, TypeOther, chunkID)
	if src == nil || tgt == nil || src.ID == tgt.ID {
		return nil
	}

	labelKey := strings.ToLower(strings.TrimSpace(label))
	key := edgeKey{source: src.ID, target: tgt.ID, label: labelKey}

	edge, ok := g.index[key]
	if !ok {
		// The same relation extracted in the opposite direction counts as
		// a duplicate.
		reversed := edgeKey{source: tgt.ID, target: src.ID, label: labelKey}
		edge, ok = g.index[reversed]
	}
	if !ok {
		edge = &Edge{
			Source:   src.ID,
			Target:   tgt.ID,
			Label:    strings.TrimSpace(label),
			mentions: make(map[string]struct{}),
		}
		g.edges = append(g.edges, edge)
		g.index[key] = edge
	}

	if chunkID != "" {
		edge.mentions[chunkID] = struct{}{}
	}
	return edge
}

func (g *Graph) Node(id string) (*Node, bool) {
	node, ok := g.nodes[Normalize(id)]
	return node, ok
}

// Nodes returns all nodes sorted by canonical id.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, node := range g.nodes {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns edges in insertion order.
func (g *Graph) Edges() []*Edge {
	return g.edges
}

func (g *Graph) NodeCount() int { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return len(g.edges) }

// TriplesText renders the graph as relation lines for LLM grounding context.
func (g *Graph) TriplesText() string {
	if len(g.edges) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Extracted knowledge graph relationships:\n")
	for _, edge := range g.edges {
		label := edge.Label
		if label == "" {
			label = "related to"
		}
		sb.WriteString("- ")
		sb.WriteString(g.nodes[edge.Source].Name)
		sb.WriteString(" [")
		sb.WriteString(label)
		sb.WriteString("] ")
		sb.WriteString(g.nodes[edge.Target].Name)
		sb.WriteString("\n")
	}
	return sb.String()
}

func normalizeType(t NodeType) NodeType {
	switch t {
	case TypePerson, TypeOrganization, TypeConcept, TypeOther:
		return t
	default:
		return TypeOther
	}
}

// ParseNodeType maps a free-form entity type string from the provider onto
// the fixed enum; anything unrecognized becomes "other".
func ParseNodeType(raw string) NodeType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "person", "people", "human":
		return TypePerson
	case "organization", "organisation", "company", "org", "institution":
		return TypeOrganization
	case "concept", "idea", "topic", "term":
		return TypeConcept
	default:
		return TypeOther
	}
}
