package chat

import (
	"strings"

	"github.com/fabfab/cognigraph/graph"
)

// HighlightNodes returns the display names of graph nodes the answer refers
// to. A node matches either by direct substring (names longer than three
// characters) or when at least half of its meaningful name tokens appear in
// the answer. The result is never nil and follows node id order.
func HighlightNodes(g *graph.Graph, answer string) []string {
	matched := []string{}
	if g == nil || answer == "" {
		return matched
	}

	lowered := strings.ToLower(answer)
	answerTokens := tokenSet(lowered)

	for _, node := range g.Nodes() {
		if matchesNode(node.ID, lowered, answerTokens) {
			matched = append(matched, node.Name)
		}
	}
	return matched
}

func matchesNode(id, lowered string, answerTokens map[string]struct{}) bool {
	if len(id) > 3 && strings.Contains(lowered, id) {
		return true
	}

	tokens := meaningfulTokens(id)
	if len(tokens) == 0 {
		return false
	}

	present := 0
	for _, tok := range tokens {
		if _, ok := answerTokens[tok]; ok {
			present++
		}
	}
	return present*2 >= len(tokens)
}

// meaningfulTokens keeps name tokens longer than two characters, so stop
// words like "of" never count toward a match.
func meaningfulTokens(id string) []string {
	var out []string
	for _, tok := range strings.Fields(id) {
		if len(tok) > 2 {
			out = append(out, tok)
		}
	}
	return out
}

func tokenSet(lowered string) map[string]struct{} {
	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return !isWordRune(r)
	})

	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}

func isWordRune(r rune) bool {
	return r == '-' || r == '\'' ||
		(r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127
}
