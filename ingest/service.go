// Package ingest runs the upload pipeline: text extraction, chunking, graph
// extraction and embedding, producing a fully built session.
package ingest

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/fabfab/cognigraph/chunk"
	"github.com/fabfab/cognigraph/embeddings"
	"github.com/fabfab/cognigraph/extract"
	"github.com/fabfab/cognigraph/graph"
	"github.com/fabfab/cognigraph/llm"
	"github.com/fabfab/cognigraph/session"
	"github.com/fabfab/cognigraph/vector"
)

type Service struct {
	extractor *extract.Extractor
	splitter  *chunk.Splitter
	graphs    *graph.Extractor
	embedder  embeddings.Embedder
	logger    *log.Logger
}

func NewService(extractor *extract.Extractor, splitter *chunk.Splitter, graphs *graph.Extractor, embedder embeddings.Embedder, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		extractor: extractor,
		splitter:  splitter,
		graphs:    graphs,
		embedder:  embedder,
		logger:    logger,
	}
}

// Ingest builds a complete replacement session from an uploaded file. Nothing
// is published until every stage succeeds, so a failed upload leaves the
// previous session untouched.
func (s *Service) Ingest(ctx context.Context, sessionID, filename string, data []byte) (*session.Session, error) {
	text, err := s.extractor.Extract(ctx, data, filename)
	if err != nil {
		return nil, err
	}

	chunks := s.splitter.Split(sessionID, text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document is empty after extraction", extract.ErrExtractionFailed)
	}
	s.logger.Printf("session %s: %q split into %d chunks", sessionID, filename, len(chunks))

	g, err := s.graphs.Extract(ctx, chunks)
	if err != nil {
		return nil, err
	}
	s.logger.Printf("session %s: graph has %d nodes, %d edges", sessionID, g.NodeCount(), g.EdgeCount())

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, llm.Classify(fmt.Errorf("embed chunks: %w", err))
	}
	if len(vecs) != len(chunks) {
		return nil, fmt.Errorf("embed chunks: expected %d vectors, got %d", len(chunks), len(vecs))
	}

	index, err := vector.NewIndex(len(vecs[0]))
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := index.Add(ids, vecs); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	return &session.Session{
		ID:           sessionID,
		DocumentID:   uuid.NewString(),
		DocumentName: filename,
		Text:         text,
		Chunks:       chunks,
		Graph:        g,
		Index:        index,
	}, nil
}
