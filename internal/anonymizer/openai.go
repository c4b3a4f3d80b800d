package anonymizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/daryltucker/tau-eval/internal/output"
)

// OpenAIOptions configures a chat-completions backend. URL may point at any
// OpenAI-compatible server (vLLM, llama.cpp server, LiteLLM).
type OpenAIOptions struct {
	Name        string
	URL         string
	APIKey      string
	Model       string
	Prompt      string
	System      string
	Temperature *float32
	Seed        *int
}

// OpenAI rewrites texts through the chat completions API.
type OpenAI struct {
	opts   OpenAIOptions
	client *openai.Client
}

// NewOpenAI creates a chat-completions backend.
func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	if opts.Name == "" {
		opts.Name = opts.Model
	}
	if opts.APIKey == "" && opts.URL == "" {
		return nil, errors.New("openai backend needs an api_key (or OPENAI_API_KEY) or a url")
	}
	if opts.System == "" {
		opts.System = "You rewrite texts to remove authorship cues. You never add commentary."
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.URL != "" {
		cfg.BaseURL = strings.TrimRight(opts.URL, "/")
	}
	return &OpenAI{opts: opts, client: openai.NewClientWithConfig(cfg)}, nil
}

func (o *OpenAI) Name() string { return o.opts.Name }

// Anonymize implements Anonymizer.
func (o *OpenAI) Anonymize(ctx context.Context, text string) (string, error) {
	output.Logger.Debug("Generating rewrite via OpenAI", "model", o.opts.Model)
	req := openai.ChatCompletionRequest{
		Model: o.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.opts.System},
			{Role: openai.ChatMessageRoleUser, Content: renderPrompt(o.opts.Prompt, text)},
		},
		Seed: o.opts.Seed,
	}
	if o.opts.Temperature != nil {
		req.Temperature = *o.opts.Temperature
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
