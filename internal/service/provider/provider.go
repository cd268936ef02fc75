// Package provider adapts vendor chat APIs to one request/result shape.
package provider

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Message roles accepted by the gateway.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Part is one element of multimodal content. Exactly one of Text or Image is set.
// Image holds a URL or a data URI.
type Part struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// Message is a chat message whose content is either plain text or a list of parts.
type Message struct {
	Role  string `json:"role"`
	Text  string `json:"text,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// TextMessage builds a plain text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Text: text}
}

// PartsMessage builds a multimodal message.
func PartsMessage(role string, parts ...Part) Message {
	return Message{Role: role, Parts: parts}
}

// HasImage reports whether the message carries an image part.
func (m Message) HasImage() bool {
	for _, p := range m.Parts {
		if p.Image != "" {
			return true
		}
	}
	return false
}

// PlainText flattens the message to its text content.
func (m Message) PlainText() string {
	if len(m.Parts) == 0 {
		return m.Text
	}
	texts := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Multimodal reports whether any message carries an image.
func Multimodal(messages []Message) bool {
	for _, m := range messages {
		if m.HasImage() {
			return true
		}
	}
	return false
}

// Config is the decrypted, call-ready view of a provider configuration.
type Config struct {
	InternalName string
	Endpoint     string
	Credential   string
	MaxTokens    int
	Temperature  float64
	Extra        map[string]interface{}
}

// ExtraString returns a string extra param or fallback.
func (c *Config) ExtraString(key, fallback string) string {
	if v, ok := c.Extra[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Usage represents token usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the outcome of one vendor call. Transport failures are reported
// here with Success=false instead of as Go errors.
type Result struct {
	Success    bool          `json:"success"`
	Content    string        `json:"content,omitempty"`
	Model      string        `json:"model,omitempty"`
	Usage      Usage         `json:"usage"`
	Latency    time.Duration `json:"latency"`
	StatusCode int           `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	Details    string        `json:"details,omitempty"`
}

// Adapter translates generic messages into one vendor's wire format.
type Adapter interface {
	Name() string
	Call(ctx context.Context, cfg *Config, messages []Message) *Result
}

// Registry maps adapter names to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	logger   *zap.Logger
}

// NewRegistry creates a new adapter registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

// Register adds an adapter under name.
func (r *Registry) Register(name string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = adapter
	r.logger.Debug("provider adapter registered", zap.String("name", name))
}

// Get retrieves an adapter by name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[name]
	return adapter, ok
}

// Resolve finds the adapter for a config: by internal name first, then by the
// "adapter" extra param.
func (r *Registry) Resolve(internalName string, extra map[string]interface{}) (Adapter, bool) {
	if adapter, ok := r.Get(internalName); ok {
		return adapter, true
	}
	if name, ok := extra["adapter"].(string); ok && name != "" {
		return r.Get(name)
	}
	return nil, false
}

// List returns all registered adapter names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
