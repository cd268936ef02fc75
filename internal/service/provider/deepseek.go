package provider

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// DeepSeek defaults.
const (
	DeepSeekName         = "deepseek"
	defaultDeepSeekModel = "deepseek-chat"
)

// DeepSeekAdapter speaks the OpenAI-compatible chat completions API.
type DeepSeekAdapter struct {
	transport
}

// NewDeepSeekAdapter creates a DeepSeek adapter.
func NewDeepSeekAdapter(timeout time.Duration, tokens TokenCounter, logger *zap.Logger) *DeepSeekAdapter {
	return &DeepSeekAdapter{transport: newTransport(timeout, tokens, logger)}
}

// Name returns the adapter name.
func (a *DeepSeekAdapter) Name() string {
	return DeepSeekName
}

type chatCompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []chatCompletionMsg `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature"`
	Stream      bool                `json:"stream"`
}

type chatCompletionMsg struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatCompletionPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Call sends messages to a chat completions endpoint.
func (a *DeepSeekAdapter) Call(ctx context.Context, cfg *Config, messages []Message) *Result {
	model := cfg.ExtraString("model", defaultDeepSeekModel)
	if Multimodal(messages) {
		model = cfg.ExtraString("vision_model", model)
	}

	req := chatCompletionRequest{
		Model:       model,
		Messages:    toChatMessages(messages),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}

	raw, err := a.post(ctx, cfg.Endpoint, cfg.Credential, nil, req)
	if err != nil {
		a.logger.Warn("deepseek request failed",
			zap.String("provider", cfg.InternalName),
			zap.Error(err),
		)
		return transportFailure(raw, err)
	}
	if !isSuccess(raw.status) {
		return statusFailure(raw)
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(raw.body, &resp); err != nil {
		return decodeFailure(raw, "invalid response body")
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return decodeFailure(raw, "empty completion")
	}

	content := resp.Choices[0].Message.Content
	if resp.Model != "" {
		model = resp.Model
	}

	return &Result{
		Success:    true,
		Content:    content,
		Model:      model,
		Usage:      a.fillUsage(resp.Usage, messages, content),
		Latency:    raw.latency,
		StatusCode: raw.status,
	}
}

func toChatMessages(messages []Message) []chatCompletionMsg {
	out := make([]chatCompletionMsg, 0, len(messages))
	for _, m := range messages {
		if len(m.Parts) == 0 {
			out = append(out, chatCompletionMsg{Role: m.Role, Content: m.Text})
			continue
		}

		parts := make([]chatCompletionPart, 0, len(m.Parts))
		for _, p := range m.Parts {
			if p.Image != "" {
				parts = append(parts, chatCompletionPart{Type: "image_url", ImageURL: &chatImageURL{URL: p.Image}})
				continue
			}
			parts = append(parts, chatCompletionPart{Type: "text", Text: p.Text})
		}
		out = append(out, chatCompletionMsg{Role: m.Role, Content: parts})
	}
	return out
}
