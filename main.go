package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fabfab/cognigraph/api"
	"github.com/fabfab/cognigraph/chat"
	"github.com/fabfab/cognigraph/chunk"
	"github.com/fabfab/cognigraph/config"
	"github.com/fabfab/cognigraph/embeddings"
	"github.com/fabfab/cognigraph/extract"
	"github.com/fabfab/cognigraph/graph"
	"github.com/fabfab/cognigraph/ingest"
	"github.com/fabfab/cognigraph/llm"
	"github.com/fabfab/cognigraph/session"
)

func main() {
	logger := log.New(os.Stdout, "cognigraph: ", log.LstdFlags)
	cfg := config.Load()

	client, err := llm.NewClient(cfg)
	if err != nil {
		logger.Fatalf("llm client: %v", err)
	}
	guarded := llm.Guard(client)

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder: %v", err)
	}

	ocr, _ := guarded.(extract.OCR)
	extractor := extract.New(extract.NewFitzRenderer(), ocr, logger)
	splitter := chunk.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	graphExtractor := graph.NewExtractor(guarded, logger, cfg.ExtractionWorkers)

	ingestSvc := ingest.NewService(extractor, splitter, graphExtractor, embedder, logger)
	engine := chat.NewEngine(embedder, guarded, logger, cfg.RetrievalK)
	sessions := session.NewStore(logger)

	server := api.New(sessions, ingestSvc, engine, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Printf("listening on %s (llm=%s/%s embeddings=%s/%s)",
			cfg.Addr, cfg.LLM.Provider, cfg.LLM.Model, cfg.Embeddings.Provider, cfg.Embeddings.Model)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}
