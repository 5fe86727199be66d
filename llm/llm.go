package llm

import (
	"context"
	"fmt"

	"github.com/fabfab/cognigraph/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// JSONClient is implemented by clients that can force the provider into a
// JSON-object response mode. Callers that need structured output should
// type-assert and fall back to Generate when the capability is absent.
type JSONClient interface {
	GenerateJSON(ctx context.Context, messages []Message) (string, error)
}

// VisionClient is implemented by clients that can transcribe an image of a
// document page into plain text.
type VisionClient interface {
	TranscribeImage(ctx context.Context, image []byte) (string, error)
}

type Options struct {
	Provider    string
	Model       string
	VisionModel string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func NewClient(cfg config.Config) (Client, error) {
	opts := Options{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.Model,
		VisionModel:   cfg.VisionModel,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIClient(opts), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}
}
