package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/eezybuild/eezybuild/pkg/apierr"
)

// Generator is the part of a langchaingo model the engines use.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// ChatEngine produces grounded answers from a system prompt and a question.
type ChatEngine struct {
	config ChatConfig
	llm    Generator
}

// NewOpenAI builds the langchaingo OpenAI client shared by the chat, vision
// and summarisation engines.
func NewOpenAI(apiKey, baseURL, model string, extra ...openai.Option) (*openai.LLM, error) {
	if apiKey == "" {
		return nil, apierr.Errorf(apierr.MissingConfiguration, "openai api key is not set")
	}
	opts := []openai.Option{openai.WithToken(apiKey)}
	if model != "" {
		opts = append(opts, openai.WithModel(model))
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	return client, nil
}

// NewWithConfig creates a new ChatEngine backed by OpenAI.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	client, err := NewOpenAI(config.APIKey, config.BaseURL, config.Model)
	if err != nil {
		return nil, err
	}
	return NewChatEngine(client, config)
}

// NewChatEngine creates a ChatEngine over any Generator.
func NewChatEngine(gen Generator, config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}

	return &ChatEngine{
		config: config,
		llm:    gen,
	}, nil
}

// Complete sends one system + user exchange. A zero maxTokens uses the
// configured ceiling.
func (ce *ChatEngine) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = ce.config.MaxTokens
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	resp, err := ce.llm.GenerateContent(ctx, content,
		llms.WithModel(ce.config.Model),
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(maxTokens),
	)
	if err != nil {
		return "", apierr.New(apierr.UpstreamGenerationFailure, fmt.Errorf("chat error: %w", err))
	}

	text, err := firstChoice(resp)
	if err != nil {
		return "", apierr.New(apierr.UpstreamGenerationFailure, err)
	}
	return text, nil
}

func firstChoice(resp *llms.ContentResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", fmt.Errorf("no completion returned")
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", fmt.Errorf("empty completion returned")
	}
	return text, nil
}
