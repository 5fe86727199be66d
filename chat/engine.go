// Package chat answers questions about the session's document, grounded in
// the knowledge graph and the most relevant chunks.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/cognigraph/chunk"
	"github.com/fabfab/cognigraph/embeddings"
	"github.com/fabfab/cognigraph/llm"
	"github.com/fabfab/cognigraph/session"
	"github.com/fabfab/cognigraph/vector"
)

// ErrNoDocument is returned when a session has no ingested document yet.
var ErrNoDocument = errors.New("no document uploaded for this session")

const defaultTopK = 4

const answerSystemPrompt = "You are a careful assistant answering questions about a single document. " +
	"Answer only from the provided context. If the context does not contain the answer, " +
	"say that the document does not cover it. Never use outside knowledge."

// Answer is one grounded chat reply plus the graph node names it mentions.
type Answer struct {
	Text             string
	HighlightedNodes []string
}

type Engine struct {
	embedder embeddings.Embedder
	client   llm.Client
	logger   *log.Logger
	topK     int
}

func NewEngine(embedder embeddings.Embedder, client llm.Client, logger *log.Logger, topK int) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	return &Engine{
		embedder: embedder,
		client:   client,
		logger:   logger,
		topK:     topK,
	}
}

// Answer retrieves the chunks most similar to the question, assembles the
// grounding context from graph triples plus those chunks, and asks the model.
// The exchange is appended to the session transcript on success.
func (e *Engine) Answer(ctx context.Context, sess *session.Session, question string) (Answer, error) {
	if sess == nil || len(sess.Chunks) == 0 || sess.Index == nil {
		return Answer{}, ErrNoDocument
	}

	vecs, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		return Answer{}, llm.Classify(fmt.Errorf("embed question: %w", err))
	}
	if len(vecs) != 1 {
		return Answer{}, fmt.Errorf("embed question: expected 1 vector, got %d", len(vecs))
	}

	hits, err := sess.Index.Search(vecs[0], e.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("search index: %w", err)
	}

	prompt := buildPrompt(sess, hits, question)
	reply, err := e.client.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: answerSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return Answer{}, err
	}
	reply = strings.TrimSpace(reply)

	sess.Transcript = append(sess.Transcript,
		session.Message{Role: llm.RoleUser, Content: question},
		session.Message{Role: llm.RoleAssistant, Content: reply},
	)

	return Answer{
		Text:             reply,
		HighlightedNodes: HighlightNodes(sess.Graph, reply),
	}, nil
}

func buildPrompt(sess *session.Session, hits []vector.Result, question string) string {
	var sb strings.Builder

	if triples := sess.Graph.TriplesText(); triples != "" {
		sb.WriteString(triples)
		sb.WriteString("\n")
	}

	sb.WriteString("Relevant document excerpts:\n")
	byID := chunksByID(sess.Chunks)
	for _, hit := range hits {
		c, ok := byID[hit.ID]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "[excerpt %d]\n%s\n\n", c.Sequence+1, c.Text)
	}

	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String()
}

func chunksByID(chunks []chunk.Chunk) map[string]chunk.Chunk {
	out := make(map[string]chunk.Chunk, len(chunks))
	for _, c := range chunks {
		out[c.ID] = c
	}
	return out
}
