package graph

// Payload is the wire representation of the graph consumed by the graph
// explorer frontend: a node list and a link list.
type Payload struct {
	Nodes []NodePayload `json:"nodes"`
	Links []LinkPayload `json:"links"`
}

type NodePayload struct {
	ID    string `json:"id"`
	Group int    `json:"group"`
	Type  string `json:"type"`
}

type LinkPayload struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// EmptyPayload returns the empty graph shape with non-nil slices, so it
// serializes as {"nodes":[],"links":[]}.
func EmptyPayload() Payload {
	return Payload{Nodes: []NodePayload{}, Links: []LinkPayload{}}
}

// Payload converts the graph for the HTTP boundary. Nodes are ordered by
// canonical id, links in insertion order.
func (g *Graph) Payload() Payload {
	payload := EmptyPayload()

	for _, node := range g.Nodes() {
		payload.Nodes = append(payload.Nodes, NodePayload{
			ID:    node.Name,
			Group: typeGroup(node.Type),
			Type:  string(node.Type),
		})
	}

	for _, edge := range g.edges {
		payload.Links = append(payload.Links, LinkPayload{
			Source: g.nodes[edge.Source].Name,
			Target: g.nodes[edge.Target].Name,
			Label:  edge.Label,
		})
	}

	return payload
}

func typeGroup(t NodeType) int {
	switch t {
	case TypePerson:
		return 1
	case TypeOrganization:
		return 2
	case TypeConcept:
		return 3
	default:
		return 4
	}
}
