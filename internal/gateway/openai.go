package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/loqalabs/aacharya/internal/config"
	"github.com/loqalabs/aacharya/internal/language"
	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are Aacharya, a health information assistant. Answer questions about health, diseases, symptoms and medical supplies clearly and briefly. " +
	"Advise seeing a health worker for emergencies. Reply only in %s."

type openAIGateway struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIGateway talks to an OpenAI-compatible chat completion endpoint
// directly instead of the backend's /api/chat.
func NewOpenAIGateway(cfg config.GatewayConfig, httpClient *http.Client) Gateway {
	clientCfg := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	return &openAIGateway{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.OpenAIModel,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
	}
}

func (g *openAIGateway) Send(ctx context.Context, query, lang string) (string, error) {
	name := "English"
	if profile, err := language.Lookup(lang); err == nil {
		name = profile.Name
	}
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(systemPrompt, name)},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	}
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", failure(err)
	}
	if len(resp.Choices) == 0 {
		return "", failure(errors.New("completion returned no choices"))
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", failure(errEmptyReply)
	}
	return content, nil
}
