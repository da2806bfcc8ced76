package conversation

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/reishilabs/ganochat/internal/config"
	"github.com/rs/zerolog"
)

// systemPrompt frames every completion. The answer-language directive is
// appended per request.
const systemPrompt = `You are the GanoTerra assistant, an expert on Ganoderma
(Reishi) medicinal mushrooms, their cultivation, bioactive compounds, and
nutrition. Answer health questions carefully and remind users to verify
medical information with a professional.`

// OpenAIBackend calls an OpenAI-compatible chat completion endpoint.
type OpenAIBackend struct {
	client *openai.Client
	model  string
	cfg    config.BackendConfig
	logger zerolog.Logger
}

// NewOpenAIBackend creates a backend from config. A missing API key is not
// an error: the backend reports not-ready and the input surface stays
// disabled with its placeholder.
func NewOpenAIBackend(cfg config.BackendConfig, logger zerolog.Logger) *OpenAIBackend {
	b := &OpenAIBackend{
		model:  cfg.Model,
		cfg:    cfg,
		logger: logger.With().Str("component", "backend").Logger(),
	}
	if cfg.APIKey == "" {
		return b
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	b.client = openai.NewClientWithConfig(clientCfg)
	return b
}

// Ready reports whether completions can be requested.
func (b *OpenAIBackend) Ready() bool {
	return b.client != nil
}

// Complete performs one chat completion.
func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (string, error) {
	if b.client == nil {
		return "", fmt.Errorf("backend not configured")
	}

	system := systemPrompt + "\nAnswer in " + req.Language.DisplayName() + "."
	if req.Context != "" {
		system += "\n\n" + req.Context
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}

	if req.Attachment != nil {
		// Vision-style request: the document travels as a data URI part
		// alongside the instruction text.
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: req.Text},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: fmt.Sprintf("data:%s;base64,%s", req.Attachment.MimeType, req.Attachment.Data),
					},
				},
			},
		})
	} else {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Text,
		})
	}

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    messages,
		MaxTokens:   b.cfg.MaxTokens,
		Temperature: b.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}

	b.logger.Debug().
		Int("promptTokens", resp.Usage.PromptTokens).
		Int("completionTokens", resp.Usage.CompletionTokens).
		Msg("Completion received")

	return resp.Choices[0].Message.Content, nil
}
