package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ollamaClient struct {
	host        string
	model       string
	visionModel string
	client      *http.Client
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Format   string              `json:"format,omitempty"`
}

type ollamaChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	Error   string            `json:"error"`
}

func NewOllamaClient(opts Options) Client {
	host := strings.TrimRight(opts.OllamaHost, "/")
	if host == "" {
		host = "http://localhost:11434"
	}

	visionModel := opts.VisionModel
	if visionModel == "" {
		visionModel = opts.Model
	}

	return &ollamaClient{
		host:        host,
		model:       opts.Model,
		visionModel: visionModel,
		client: &http.Client{
			Timeout: 180 * time.Second,
		},
	}
}

func (c *ollamaClient) Generate(ctx context.Context, messages []Message) (string, error) {
	return c.chat(ctx, ollamaChatRequest{
		Model:    c.model,
		Messages: toOllamaMessages(messages),
	})
}

func (c *ollamaClient) GenerateJSON(ctx context.Context, messages []Message) (string, error) {
	return c.chat(ctx, ollamaChatRequest{
		Model:    c.model,
		Messages: toOllamaMessages(messages),
		Format:   "json",
	})
}

func (c *ollamaClient) TranscribeImage(ctx context.Context, image []byte) (string, error) {
	return c.chat(ctx, ollamaChatRequest{
		Model: c.visionModel,
		Messages: []ollamaChatMessage{
			{
				Role:    RoleUser,
				Content: visionSystemPrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(image)},
			},
		},
	})
}

func (c *ollamaClient) chat(ctx context.Context, payload ollamaChatRequest) (string, error) {
	payload.Stream = false

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call ollama chat API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", fmt.Errorf("read ollama chat error body: %w", readErr)
		}
		return "", &httpStatusError{status: resp.StatusCode, body: string(data)}
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}

	if parsed.Error != "" {
		return "", fmt.Errorf("ollama chat error: %s", parsed.Error)
	}

	return parsed.Message.Content, nil
}

// httpStatusError keeps the upstream status code available to the guard's
// error classification.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	if e.body != "" {
		return fmt.Sprintf("provider returned status %d: %s", e.status, e.body)
	}
	return fmt.Sprintf("provider returned status %d", e.status)
}

func toOllamaMessages(messages []Message) []ollamaChatMessage {
	if len(messages) == 0 {
		return nil
	}
	converted := make([]ollamaChatMessage, len(messages))
	for i := range messages {
		converted[i] = ollamaChatMessage{Role: messages[i].Role, Content: messages[i].Content}
	}
	return converted
}
