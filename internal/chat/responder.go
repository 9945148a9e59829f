package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Responder produces the assistant's reply to a conversation.
type Responder interface {
	Reply(ctx context.Context, turns []Turn) (string, error)
}

type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI sends conversations to an OpenAI-compatible chat completion endpoint.
type OpenAI struct {
	client completer
	model  string
}

// NewOpenAI builds a responder. An empty baseURL uses the default endpoint.
func NewOpenAI(apiKey, baseURL, model string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (o *OpenAI) Reply(ctx context.Context, turns []Turn) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: toMessages(turns),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func toMessages(turns []Turn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		if len(t.Images) == 0 {
			out = append(out, openai.ChatCompletionMessage{Role: t.Role, Content: t.Text})
			continue
		}
		parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: t.Text}}
		for _, img := range t.Images {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
					Detail: openai.ImageURLDetailHigh,
				},
			})
		}
		out = append(out, openai.ChatCompletionMessage{Role: t.Role, MultiContent: parts})
	}
	return out
}
