package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type LLMConfig struct {
	Provider string
	Model    string
}

type EmbeddingConfig struct {
	Provider  string
	Model     string
	Dimension int
}

type Config struct {
	Addr string

	LLM        LLMConfig
	Embeddings EmbeddingConfig

	// VisionModel transcribes rasterized PDF pages when a page has no
	// usable native text layer.
	VisionModel string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	ChunkSize    int
	ChunkOverlap int

	RetrievalK        int
	ExtractionWorkers int

	RequestTimeout time.Duration
}

// Load reads configuration from the environment, consulting a .env file
// when one is present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr: getEnv("COGNIGRAPH_ADDR", ":8000"),
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", ProviderOpenAI),
			Model:    getEnv("LLM_MODEL", "gpt-4o-mini"),
		},
		Embeddings: EmbeddingConfig{
			Provider:  getEnv("EMBEDDING_PROVIDER", ProviderOpenAI),
			Model:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension: getEnvInt("EMBEDDING_DIMENSION", 1536),
		},
		VisionModel:       getEnv("VISION_MODEL", "gpt-4o-mini"),
		OllamaHost:        getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		ChunkSize:         getEnvInt("CHUNK_SIZE", 800),
		ChunkOverlap:      getEnvInt("CHUNK_OVERLAP", 120),
		RetrievalK:        getEnvInt("RETRIEVAL_TOP_K", 4),
		ExtractionWorkers: getEnvInt("EXTRACTION_WORKERS", 4),
		RequestTimeout:    time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 300)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
