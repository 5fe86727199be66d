package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const visionSystemPrompt = "You are an OCR engine. Transcribe all readable text " +
	"from the supplied document page image. Return only the transcribed text, " +
	"preserving reading order. Return an empty string if the page holds no text."

type openAIClient struct {
	client      *openai.Client
	model       string
	visionModel string
}

func NewOpenAIClient(opts Options) Client {
	cfg := openai.DefaultConfig(opts.OpenAIAPIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}

	visionModel := opts.VisionModel
	if visionModel == "" {
		visionModel = opts.Model
	}

	return &openAIClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		visionModel: visionModel,
	}
}

func (c *openAIClient) Generate(ctx context.Context, messages []Message) (string, error) {
	return c.complete(ctx, messages, false)
}

func (c *openAIClient) GenerateJSON(ctx context.Context, messages []Message) (string, error) {
	return c.complete(ctx, messages, true)
}

func (c *openAIClient) complete(ctx context.Context, messages []Message, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	req.Messages = make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *openAIClient) TranscribeImage(ctx context.Context, image []byte) (string, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)

	req := openai.ChatCompletionRequest{
		Model: c.visionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: visionSystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "Transcribe this page.",
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create openai vision completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai vision completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
