package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Tongyi defaults used when the config carries no model overrides.
const (
	TongyiName               = "tongyi"
	defaultTongyiModel       = "qwen-plus"
	defaultTongyiVisionModel = "qwen-vl-max"
)

// TongyiAdapter speaks the DashScope native generation API.
type TongyiAdapter struct {
	transport
}

// NewTongyiAdapter creates a Tongyi adapter.
func NewTongyiAdapter(timeout time.Duration, tokens TokenCounter, logger *zap.Logger) *TongyiAdapter {
	return &TongyiAdapter{transport: newTransport(timeout, tokens, logger)}
}

// Name returns the adapter name.
func (a *TongyiAdapter) Name() string {
	return TongyiName
}

type tongyiRequest struct {
	Model      string           `json:"model"`
	Input      tongyiInput      `json:"input"`
	Parameters tongyiParameters `json:"parameters"`
}

type tongyiInput struct {
	Messages []tongyiMessage `json:"messages"`
}

// tongyiMessage content is a string for text calls and a part list for
// multimodal calls.
type tongyiMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type tongyiPart struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type tongyiParameters struct {
	ResultFormat string  `json:"result_format"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature"`
}

type tongyiResponse struct {
	Output struct {
		Text    string `json:"text"`
		Choices []struct {
			Message struct {
				Content json.RawMessage `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// Call sends messages to DashScope. Image-bearing requests go to the
// multimodal endpoint with the vision model.
func (a *TongyiAdapter) Call(ctx context.Context, cfg *Config, messages []Message) *Result {
	multimodal := Multimodal(messages)

	endpoint := cfg.Endpoint
	model := cfg.ExtraString("model", defaultTongyiModel)
	if multimodal {
		endpoint = cfg.ExtraString("vision_endpoint", strings.Replace(cfg.Endpoint, "text-generation", "multimodal-generation", 1))
		model = cfg.ExtraString("vision_model", defaultTongyiVisionModel)
	}

	req := tongyiRequest{
		Model: model,
		Input: tongyiInput{Messages: toTongyiMessages(messages, multimodal)},
		Parameters: tongyiParameters{
			ResultFormat: "message",
			MaxTokens:    cfg.MaxTokens,
			Temperature:  cfg.Temperature,
		},
	}

	raw, err := a.post(ctx, endpoint, cfg.Credential, map[string]string{"X-DashScope-SSE": "disable"}, req)
	if err != nil {
		a.logger.Warn("tongyi request failed",
			zap.String("provider", cfg.InternalName),
			zap.Error(err),
		)
		return transportFailure(raw, err)
	}
	if !isSuccess(raw.status) {
		return statusFailure(raw)
	}

	var resp tongyiResponse
	if err := json.Unmarshal(raw.body, &resp); err != nil {
		return decodeFailure(raw, "invalid response body")
	}
	if resp.Code != "" {
		return decodeFailure(raw, resp.Code+": "+resp.Message)
	}

	content := resp.Output.Text
	if len(resp.Output.Choices) > 0 {
		if c := tongyiContent(resp.Output.Choices[0].Message.Content); c != "" {
			content = c
		}
	}
	if content == "" {
		return decodeFailure(raw, "empty completion")
	}

	usage := Usage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}

	return &Result{
		Success:    true,
		Content:    content,
		Model:      model,
		Usage:      a.fillUsage(usage, messages, content),
		Latency:    raw.latency,
		StatusCode: raw.status,
	}
}

func toTongyiMessages(messages []Message, multimodal bool) []tongyiMessage {
	out := make([]tongyiMessage, 0, len(messages))
	for _, m := range messages {
		if !multimodal {
			out = append(out, tongyiMessage{Role: m.Role, Content: m.PlainText()})
			continue
		}

		var parts []tongyiPart
		if len(m.Parts) == 0 {
			parts = []tongyiPart{{Text: m.Text}}
		} else {
			parts = make([]tongyiPart, 0, len(m.Parts))
			for _, p := range m.Parts {
				parts = append(parts, tongyiPart{Text: p.Text, Image: p.Image})
			}
		}
		out = append(out, tongyiMessage{Role: m.Role, Content: parts})
	}
	return out
}

// tongyiContent reads message content that is either a string or a list of
// {"text": ...} parts.
func tongyiContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []tongyiPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "")
}
