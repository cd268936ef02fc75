// Package gateway is the single entry point for AI calls: it selects a provider,
// dispatches to its adapter, recovers structured output and logs the call.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edu-ai-gateway/internal/models"
	"edu-ai-gateway/internal/repository"
	"edu-ai-gateway/internal/service/provider"
	"edu-ai-gateway/internal/service/recovery"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "edu-ai-gateway/gateway"

// logTimeout bounds the call record writes after dispatch.
const logTimeout = 5 * time.Second

var (
	// ErrConfiguration means no usable provider could be selected.
	ErrConfiguration = errors.New("ai provider not configured")
	// ErrInvalidRequest means the request itself is malformed.
	ErrInvalidRequest = errors.New("invalid ai request")
)

// ProviderStore is the provider configuration lookup the gateway needs.
type ProviderStore interface {
	GetDefault(ctx context.Context) (*models.ProviderConfig, error)
	GetByName(ctx context.Context, name string) (*models.ProviderConfig, error)
	IncrementUsage(ctx context.Context, id uuid.UUID, at time.Time) error
}

// AdapterResolver finds the adapter for a provider configuration.
type AdapterResolver interface {
	Resolve(internalName string, extra map[string]interface{}) (provider.Adapter, bool)
}

// Decrypter reveals stored credentials.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// CallLogger persists call records.
type CallLogger interface {
	Record(ctx context.Context, record *models.CallRecord) error
}

// Recorder receives per-call metrics.
type Recorder interface {
	RecordLLMRequest(provider, function, status string, duration time.Duration, promptTokens, completionTokens int)
	RecordConfigurationError(function string)
}

// Request is one AI call.
type Request struct {
	UserID      *uuid.UUID
	FunctionTag models.FunctionTag
	// Provider is an internal name; empty selects the default.
	Provider string
	Messages []provider.Message
}

// Response is the uniform outcome of a dispatched call. Result is set only when
// Success is true; when Degraded is also true it holds the recovery fallback.
type Response struct {
	Success   bool                   `json:"success"`
	Result    map[string]interface{} `json:"result,omitempty"`
	Raw       string                 `json:"raw,omitempty"`
	Degraded  bool                   `json:"degraded,omitempty"`
	Provider  string                 `json:"provider"`
	ModelUsed string                 `json:"model_used"`
	Error     string                 `json:"error,omitempty"`
	Details   string                 `json:"details,omitempty"`
	Usage     provider.Usage         `json:"usage"`
	Latency   time.Duration          `json:"latency"`
}

// Service is the gateway facade. It holds no per-call state.
type Service struct {
	store    ProviderStore
	adapters AdapterResolver
	secrets  Decrypter
	calls    CallLogger
	recorder Recorder
	tracer   trace.Tracer
	meter    metric.Meter
	duration metric.Float64Histogram
	tokens   metric.Int64Counter
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder reports call metrics to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithMeter overrides the global meter.
func WithMeter(m metric.Meter) Option {
	return func(s *Service) { s.meter = m }
}

// NewService creates a gateway.
func NewService(store ProviderStore, adapters AdapterResolver, secrets Decrypter, calls CallLogger, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		adapters: adapters,
		secrets:  secrets,
		calls:    calls,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.duration, err = s.meter.Float64Histogram("gen_ai.client.operation.duration",
		metric.WithUnit("s"),
		metric.WithDescription("AI provider call duration"),
	)
	if err != nil {
		logger.Warn("create duration histogram", zap.Error(err))
	}
	s.tokens, err = s.meter.Int64Counter("gen_ai.client.token.usage",
		metric.WithUnit("{token}"),
		metric.WithDescription("Tokens used by AI provider calls"),
	)
	if err != nil {
		logger.Warn("create token counter", zap.Error(err))
	}

	return s
}

// Invoke runs one call. It returns an error only for invalid requests and
// ErrConfiguration; transport failures come back as Response.Success=false.
func (s *Service) Invoke(ctx context.Context, req *Request) (*Response, error) {
	if !req.FunctionTag.Valid() {
		return nil, fmt.Errorf("%w: unknown function tag %q", ErrInvalidRequest, req.FunctionTag)
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", ErrInvalidRequest)
	}

	ctx, span := s.tracer.Start(ctx, "gateway.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("gen_ai.operation.name", string(req.FunctionTag))),
	)
	defer span.End()

	cfg, adapter, callCfg, err := s.selectProvider(ctx, req.Provider)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider selection failed")
		if errors.Is(err, ErrConfiguration) && s.recorder != nil {
			s.recorder.RecordConfigurationError(string(req.FunctionTag))
		}
		return nil, err
	}
	span.SetAttributes(
		attribute.String("gen_ai.system", cfg.InternalName),
		attribute.Bool("gen_ai.request.multimodal", provider.Multimodal(req.Messages)),
	)

	start := s.now()
	result := adapter.Call(ctx, callCfg, req.Messages)
	if result == nil {
		result = &provider.Result{Error: "adapter returned no result"}
	}
	if result.Latency <= 0 {
		result.Latency = s.now().Sub(start)
	}

	resp := &Response{
		Success:   result.Success,
		Provider:  cfg.InternalName,
		ModelUsed: result.Model,
		Error:     result.Error,
		Details:   result.Details,
		Usage:     result.Usage,
		Latency:   result.Latency,
	}
	if resp.ModelUsed == "" {
		resp.ModelUsed = cfg.InternalName
	}

	if result.Success {
		recovered := recovery.Recover(result.Content)
		resp.Result = recovered.Value
		resp.Raw = result.Content
		resp.Degraded = recovered.Degraded
	}

	s.logCall(ctx, req, cfg, resp)
	s.observe(ctx, span, req, resp)

	return resp, nil
}

// selectProvider resolves the config, its adapter and the decrypted call config.
func (s *Service) selectProvider(ctx context.Context, name string) (*models.ProviderConfig, provider.Adapter, *provider.Config, error) {
	var (
		cfg *models.ProviderConfig
		err error
	)
	if name != "" {
		cfg, err = s.store.GetByName(ctx, name)
	} else {
		cfg, err = s.store.GetDefault(ctx)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if name != "" {
				return nil, nil, nil, fmt.Errorf("%w: provider %q is not configured or inactive", ErrConfiguration, name)
			}
			return nil, nil, nil, fmt.Errorf("%w: no active default provider", ErrConfiguration)
		}
		return nil, nil, nil, fmt.Errorf("load provider config: %w", err)
	}

	adapter, ok := s.adapters.Resolve(cfg.InternalName, cfg.ExtraParams)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: no adapter for provider %q", ErrConfiguration, cfg.InternalName)
	}

	credential, err := s.secrets.Decrypt(cfg.Credential)
	if err != nil || credential == "" {
		return nil, nil, nil, fmt.Errorf("%w: credential for provider %q is unusable", ErrConfiguration, cfg.InternalName)
	}

	return cfg, adapter, &provider.Config{
		InternalName: cfg.InternalName,
		Endpoint:     cfg.EndpointURL,
		Credential:   credential,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
		Extra:        cfg.ExtraParams,
	}, nil
}

// logCall writes the call record. Failures are logged, never returned.
// The writes outlive a cancelled request so every dispatch is recorded.
func (s *Service) logCall(ctx context.Context, req *Request, cfg *models.ProviderConfig, resp *Response) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logTimeout)
	defer cancel()

	record := &models.CallRecord{
		UserID:               req.UserID,
		ProviderInternalName: cfg.InternalName,
		FunctionTag:          req.FunctionTag,
		PromptTokens:         resp.Usage.PromptTokens,
		CompletionTokens:     resp.Usage.CompletionTokens,
		TotalTokens:          resp.Usage.TotalTokens,
		LatencySeconds:       resp.Latency.Seconds(),
		Success:              resp.Success,
		ErrorMessage:         resp.Error,
	}
	if resp.Degraded {
		record.ErrorMessage = recovery.ErrorSummary
	}

	if err := s.calls.Record(ctx, record); err != nil {
		s.logger.Error("failed to record ai call",
			zap.String("provider", cfg.InternalName),
			zap.String("function", string(req.FunctionTag)),
			zap.Error(err),
		)
	}

	if resp.Success {
		if err := s.store.IncrementUsage(ctx, cfg.ID, s.now()); err != nil {
			s.logger.Warn("failed to increment provider usage",
				zap.String("provider", cfg.InternalName),
				zap.Error(err),
			)
		}
	}

	fields := []zap.Field{
		zap.String("provider", cfg.InternalName),
		zap.String("function", string(req.FunctionTag)),
		zap.Bool("success", resp.Success),
		zap.Bool("degraded", resp.Degraded),
		zap.Duration("latency", resp.Latency),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	}
	if resp.Success {
		s.logger.Info("ai call completed", fields...)
	} else {
		s.logger.Warn("ai call failed", append(fields, zap.String("error", resp.Error))...)
	}
}

func (s *Service) observe(ctx context.Context, span trace.Span, req *Request, resp *Response) {
	status := statusLabel(resp)
	span.SetAttributes(
		attribute.String("gen_ai.response.model", resp.ModelUsed),
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.PromptTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.CompletionTokens),
		attribute.String("gateway.status", status),
	)
	if !resp.Success {
		span.SetStatus(codes.Error, resp.Error)
	}

	if s.recorder != nil {
		s.recorder.RecordLLMRequest(resp.Provider, string(req.FunctionTag), status, resp.Latency, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	attrs := metric.WithAttributes(
		attribute.String("gen_ai.system", resp.Provider),
		attribute.String("gen_ai.operation.name", string(req.FunctionTag)),
	)
	if s.duration != nil {
		s.duration.Record(ctx, resp.Latency.Seconds(), attrs)
	}
	if s.tokens != nil {
		if resp.Usage.PromptTokens > 0 {
			s.tokens.Add(ctx, int64(resp.Usage.PromptTokens), attrs,
				metric.WithAttributes(attribute.String("gen_ai.token.type", "input")))
		}
		if resp.Usage.CompletionTokens > 0 {
			s.tokens.Add(ctx, int64(resp.Usage.CompletionTokens), attrs,
				metric.WithAttributes(attribute.String("gen_ai.token.type", "output")))
		}
	}
}

func statusLabel(resp *Response) string {
	switch {
	case !resp.Success:
		return "failure"
	case resp.Degraded:
		return "degraded"
	default:
		return "success"
	}
}
