package graph

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fabfab/cognigraph/chunk"
	"github.com/fabfab/cognigraph/llm"
)

// scriptedClient returns canned responses keyed by a substring of the prompt.
type scriptedClient struct {
	mu        sync.Mutex
	responses map[string]string
	err       error
	calls     int
}

func (c *scriptedClient) Generate(_ context.Context, messages []llm.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++

	if c.err != nil {
		return "", c.err
	}

	prompt := messages[len(messages)-1].Content
	for key, resp := range c.responses {
		if key != "" && strings.Contains(prompt, key) {
			return resp, nil
		}
	}
	return c.responses[""], nil
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testChunks(texts ...string) []chunk.Chunk {
	chunks := make([]chunk.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = chunk.Chunk{ID: chunk.ChunkID("sess", i), Text: text, Sequence: i}
	}
	return chunks
}

func TestExtractMergesChunks(t *testing.T) {
	client := &scriptedClient{responses: map[string]string{
		"first":  `{"entities":[{"name":"Alice","type":"person"}],"relations":[{"source":"Alice","target":"Acme","label":"works at"}]}`,
		"second": `{"entities":[{"name":"alice","type":"person"},{"name":"Acme","type":"organization"}],"relations":[{"source":"Alice","target":"Acme","label":"works at"}]}`,
	}}

	g, err := NewExtractor(client, testLogger(), 2).Extract(context.Background(), testChunks("first chunk", "second chunk"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if g.NodeCount() != 2 {
		t.Errorf("node count = %d, want 2", g.NodeCount())
	}
	if g.EdgeCount() != 1 {
		t.Errorf("edge count = %d, want deduplicated 1", g.EdgeCount())
	}

	alice, ok := g.Node("alice")
	if !ok {
		t.Fatal("alice not in graph")
	}
	if len(alice.Mentions()) != 2 {
		t.Errorf("alice mentions = %v, want both chunks", alice.Mentions())
	}
}

func TestExtractToleratesMalformedChunk(t *testing.T) {
	client := &scriptedClient{responses: map[string]string{
		"good": "```json\n" + `{"entities":[{"name":"Bob","type":"person"}],"relations":[]}` + "\n```",
		"bad":  "I cannot produce JSON for this.",
	}}

	g, err := NewExtractor(client, testLogger(), 1).Extract(context.Background(), testChunks("good text", "bad text"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, ok := g.Node("bob"); !ok {
		t.Error("entity from the valid chunk missing")
	}
}

func TestExtractFailsWhenAllCallsError(t *testing.T) {
	client := &scriptedClient{err: errors.New("provider exploded")}

	_, err := NewExtractor(client, testLogger(), 2).Extract(context.Background(), testChunks("a", "b", "c"))
	var extraction *ExtractionError
	if !errors.As(err, &extraction) {
		t.Fatalf("error = %v, want *ExtractionError", err)
	}
	if extraction.Chunks != 3 {
		t.Errorf("Chunks = %d, want 3", extraction.Chunks)
	}
}

func TestExtractPrefersRateLimitCause(t *testing.T) {
	rateErr := &llm.RateLimitError{RetryAfter: 45 * time.Second}

	// First chunk fails generically, then every later call rate limits.
	var mu sync.Mutex
	first := true
	client := clientFunc(func(ctx context.Context, messages []llm.Message) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if first {
			first = false
			return "", errors.New("generic failure")
		}
		return "", rateErr
	})

	_, err := NewExtractor(client, testLogger(), 1).Extract(context.Background(), testChunks("a", "b"))

	var got *llm.RateLimitError
	if !errors.As(err, &got) {
		t.Fatalf("error = %v, want rate limit cause to surface", err)
	}
	if got.RetryAfterSeconds() != 45 {
		t.Errorf("retry after = %d, want 45", got.RetryAfterSeconds())
	}
}

func TestExtractEmptyChunks(t *testing.T) {
	g, err := NewExtractor(&scriptedClient{}, testLogger(), 1).Extract(context.Background(), nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if g.NodeCount() != 0 {
		t.Errorf("empty input produced %d nodes", g.NodeCount())
	}
}

func TestParseExtractionRecoversFencedJSON(t *testing.T) {
	raw := "Here you go:\n```json\n{\"entities\":[],\"relations\":[]}\n```\nDone."
	if _, err := parseExtraction(raw); err != nil {
		t.Errorf("parseExtraction: %v", err)
	}

	if _, err := parseExtraction("no json here"); err == nil {
		t.Error("expected error for response without JSON")
	}
}

type clientFunc func(ctx context.Context, messages []llm.Message) (string, error)

func (f clientFunc) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	return f(ctx, messages)
}
