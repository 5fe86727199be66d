package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/fabfab/cognigraph/chunk"
	"github.com/fabfab/cognigraph/llm"
)

const (
	defaultWorkers = 4

	// Relation target per chunk, scaled with chunk length the way the
	// extraction prompt advertises it.
	baseRelationTarget = 5
	maxRelationTarget  = 20
)

// ExtractionError reports that no chunk produced a usable extraction call.
// It unwraps to the most informative underlying cause, preferring a rate
// limit so the retry-after hint survives to the boundary.
type ExtractionError struct {
	Chunks int
	cause  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("graph extraction failed for all %d chunks: %v", e.Chunks, e.cause)
}

func (e *ExtractionError) Unwrap() error { return e.cause }

type Extractor struct {
	client  llm.Client
	logger  *log.Logger
	workers int
}

func NewExtractor(client llm.Client, logger *log.Logger, workers int) *Extractor {
	if logger == nil {
		logger = log.Default()
	}
	if workers <= 0 {
		workers = defaultWorkers
	}

	return &Extractor{
		client:  client,
		logger:  logger,
		workers: workers,
	}
}

// chunkExtraction is the tagged per-chunk outcome: a parsed payload, a schema
// failure (tolerated, logged), or a call failure.
type chunkExtraction struct {
	payload *extractionPayload
	callErr error
}

type extractionPayload struct {
	Entities  []entityPayload   `json:"entities"`
	Relations []relationPayload `json:"relations"`
}

type entityPayload struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type relationPayload struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// Extract runs one provider call per chunk with bounded parallelism and
// merges the per-chunk results into a single deduplicated graph. Chunks whose
// response fails schema validation are dropped individually; the extraction
// as a whole fails only when every call errored.
func (x *Extractor) Extract(ctx context.Context, chunks []chunk.Chunk) (*Graph, error) {
	g := New()
	if len(chunks) == 0 {
		return g, nil
	}

	results := make([]chunkExtraction, len(chunks))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(x.workers)
	for i := range chunks {
		i := i
		group.Go(func() error {
			results[i] = x.extractChunk(groupCtx, chunks[i])
			return nil
		})
	}
	_ = group.Wait()

	succeeded := 0
	var cause error
	for i := range chunks {
		res := results[i]
		if res.callErr != nil {
			x.logger.Printf("chunk %s: extraction call failed: %v", chunks[i].ID, res.callErr)
			if cause == nil || isRateLimit(res.callErr) && !isRateLimit(cause) {
				cause = res.callErr
			}
			continue
		}
		succeeded++
		if res.payload == nil {
			continue
		}
		mergeChunk(g, chunks[i].ID, res.payload)
	}

	if succeeded == 0 {
		return nil, &ExtractionError{Chunks: len(chunks), cause: cause}
	}

	return g, nil
}

func (x *Extractor) extractChunk(ctx context.Context, c chunk.Chunk) chunkExtraction {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a JSON-speaking API."},
		{Role: llm.RoleUser, Content: extractionPrompt(c.Text)},
	}

	var (
		raw string
		err error
	)
	if jc, ok := x.client.(llm.JSONClient); ok {
		raw, err = jc.GenerateJSON(ctx, messages)
	} else {
		raw, err = x.client.Generate(ctx, messages)
	}
	if err != nil {
		return chunkExtraction{callErr: err}
	}

	payload, err := parseExtraction(raw)
	if err != nil {
		// Malformed output degrades to an empty chunk rather than failing
		// the whole document.
		x.logger.Printf("chunk %s: schema validation failed, dropping: %v", c.ID, err)
		return chunkExtraction{}
	}

	return chunkExtraction{payload: payload}
}

func mergeChunk(g *Graph, chunkID string, payload *extractionPayload) {
	for _, entity := range payload.Entities {
		g.AddNode(entity.Name, ParseNodeType(entity.Type), chunkID)
	}
	for _, relation := range payload.Relations {
		if relation.Source == "" || relation.Target == "" {
			continue
		}
		g.AddEdge(relation.Source, relation.Target, relation.Label, chunkID)
	}
}

func extractionPrompt(text string) string {
	target := baseRelationTarget + len(text)/500
	if target > maxRelationTarget {
		target = maxRelationTarget
	}

	var sb strings.Builder
	sb.WriteString("Extract a knowledge graph from the text below.\n")
	sb.WriteString("Return a JSON object with this exact shape:\n")
	sb.WriteString(`{"entities": [{"name": "...", "type": "person|organization|concept|other"}], "relations": [{"source": "...", "target": "...", "label": "..."}]}`)
	sb.WriteString("\n\nRules:\n")
	sb.WriteString("- Only extract entities and relations stated in the text; never invent.\n")
	sb.WriteString("- Relation source is the subject and target is the object of the statement.\n")
	sb.WriteString("- Use short canonical entity names as they appear in the text.\n")
	fmt.Fprintf(&sb, "- Extract up to %d relations; fewer is fine when the text is sparse.\n", target)
	sb.WriteString("\nText:\n")
	sb.WriteString(text)
	return sb.String()
}

// parseExtraction decodes the provider's structured response, tolerating
// markdown code fences and surrounding prose around the JSON object.
func parseExtraction(raw string) (*extractionPayload, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in response %q", truncate(raw, 120))
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}

	return &payload, nil
}

func isRateLimit(err error) bool {
	var rl *llm.RateLimitError
	return errors.As(err, &rl)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
