package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxBodyBytes caps how much of a vendor response is read.
const maxBodyBytes = 8 << 20

// transport is the HTTP plumbing shared by the vendor adapters.
type transport struct {
	httpClient *http.Client
	tokens     TokenCounter
	logger     *zap.Logger
}

func newTransport(timeout time.Duration, tokens TokenCounter, logger *zap.Logger) transport {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return transport{
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     logger,
	}
}

type rawResponse struct {
	status  int
	body    []byte
	latency time.Duration
}

// post sends payload as JSON with bearer auth. A non-nil error means no HTTP
// response was received.
func (t *transport) post(ctx context.Context, url, credential string, headers map[string]string, payload interface{}) (*rawResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return &rawResponse{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &rawResponse{}, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+credential)
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return &rawResponse{latency: time.Since(start)}, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	latency := time.Since(start)
	if err != nil {
		return &rawResponse{status: resp.StatusCode, latency: latency}, fmt.Errorf("read response: %w", err)
	}

	return &rawResponse{status: resp.StatusCode, body: respBody, latency: latency}, nil
}

func transportFailure(raw *rawResponse, err error) *Result {
	return &Result{
		Success:    false,
		Error:      err.Error(),
		StatusCode: raw.status,
		Latency:    raw.latency,
	}
}

func statusFailure(raw *rawResponse) *Result {
	return &Result{
		Success:    false,
		Error:      fmt.Sprintf("HTTP %d", raw.status),
		Details:    string(raw.body),
		StatusCode: raw.status,
		Latency:    raw.latency,
	}
}

func decodeFailure(raw *rawResponse, reason string) *Result {
	return &Result{
		Success:    false,
		Error:      reason,
		Details:    string(raw.body),
		StatusCode: raw.status,
		Latency:    raw.latency,
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// fillUsage completes token counts the vendor left out.
func (t *transport) fillUsage(usage Usage, messages []Message, content string) Usage {
	if usage.TotalTokens == 0 && (usage.PromptTokens > 0 || usage.CompletionTokens > 0) {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	if usage.TotalTokens > 0 || t.tokens == nil {
		return usage
	}

	for _, m := range messages {
		usage.PromptTokens += t.tokens.Count(m.PlainText())
	}
	usage.CompletionTokens = t.tokens.Count(content)
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage
}
