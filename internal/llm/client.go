package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/dusk-indust/dataflow/internal/logging"
	"github.com/dusk-indust/dataflow/internal/metrics"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting reported by the service.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is a completed chat turn.
type ChatResponse struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
}

// StreamChunk is one piece of a streaming completion. Err is set on the
// final chunk when the stream failed.
type StreamChunk struct {
	Content      string
	FinishReason string
	Err          error
}

// Completer is the narrow interface agents and services depend on.
type Completer interface {
	Complete(ctx context.Context, system, user string, opts ...Option) (string, error)
}

// Chatter adds full chat and streaming access.
type Chatter interface {
	Completer
	Chat(ctx context.Context, messages []Message, opts ...Option) (*ChatResponse, error)
	Stream(ctx context.Context, messages []Message, opts ...Option) (<-chan StreamChunk, error)
	Ping(ctx context.Context) error
}

// Chat defaults, matching the service's own defaults for ad-hoc chats.
const (
	DefaultMaxTokens   = 2000
	DefaultTemperature = 0.7
)

// Agent defaults used by Complete.
const (
	CompleteMaxTokens   = 1000
	CompleteTemperature = 0.3
)

type callOptions struct {
	maxTokens   int
	temperature float32
}

// Option adjusts a single call.
type Option func(*callOptions)

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(o *callOptions) { o.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(o *callOptions) { o.temperature = t }
}

// Client wraps an eino chat model bound to an Azure OpenAI deployment.
type Client struct {
	model  model.BaseChatModel
	cfg    Config
	logger *zap.Logger
}

var _ Chatter = (*Client)(nil)

// New builds a client for cfg. API-key deployments authenticate with the
// api-key header; without a key, requests carry an Azure AD bearer token
// from the default credential chain.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	logger = logging.OrNop(logger)
	if !cfg.Configured() {
		return nil, &ValidationError{Message: "client initialization failed", Details: cfg.Validate(), Err: ErrNotConfigured}
	}
	if cfg.Deployment == "" {
		return nil, &ValidationError{
			Message: "AZURE_OPENAI_DEPLOYMENT_NAME or AZURE_OPENAI_DEPLOYMENT is required when Azure OpenAI endpoint is configured",
			Details: cfg.Validate(),
		}
	}
	if report := cfg.Validate(); !report.IsValid {
		logger.Warn("azure openai configuration validation failed", zap.Strings("errors", report.Errors))
	}

	modelCfg := &openai.ChatModelConfig{
		ByAzure:    true,
		BaseURL:    strings.TrimRight(cfg.Endpoint, "/"),
		APIVersion: cfg.apiVersion(),
		Model:      cfg.Deployment,
		Timeout:    cfg.Timeout,
		AzureModelMapperFunc: func(string) string {
			return cfg.Deployment
		},
	}

	switch cfg.AuthMethod() {
	case AuthAPIKey:
		modelCfg.APIKey = cfg.APIKey
	case AuthAzureAD:
		transport, err := newAzureADTransport(nil)
		if err != nil {
			return nil, validationErr("client initialization failed", err)
		}
		// The SDK requires a key; the transport replaces it with a bearer token.
		modelCfg.APIKey = "azure-ad"
		modelCfg.HTTPClient = &http.Client{Transport: transport, Timeout: cfg.Timeout}
	}

	cm, err := openai.NewChatModel(ctx, modelCfg)
	if err != nil {
		return nil, validationErr("client initialization failed", err)
	}

	logger.Info("azure openai client initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("deployment", cfg.Deployment),
		zap.String("auth_method", string(cfg.AuthMethod())),
	)
	return NewWithModel(cm, cfg, logger), nil
}

// NewWithModel wraps an existing chat model.
func NewWithModel(m model.BaseChatModel, cfg Config, logger *zap.Logger) *Client {
	return &Client{model: m, cfg: cfg, logger: logging.OrNop(logger)}
}

// Status reports the configuration the client was built with.
func (c *Client) Status() Status {
	return c.cfg.Status()
}

// Chat sends messages and returns the first choice.
func (c *Client) Chat(ctx context.Context, messages []Message, opts ...Option) (*ChatResponse, error) {
	o := resolve(DefaultMaxTokens, DefaultTemperature, opts)

	out, err := c.model.Generate(ctx, toSchema(messages),
		model.WithMaxTokens(o.maxTokens),
		model.WithTemperature(o.temperature),
	)
	if err != nil {
		metrics.LLMCalls.WithLabelValues("error").Inc()
		c.logger.Error("azure openai api error", zap.Error(err))
		return nil, validationErr("chat completion failed", err)
	}
	if out == nil {
		metrics.LLMCalls.WithLabelValues("error").Inc()
		return nil, validationErr("no response choice received from Azure OpenAI", nil)
	}
	metrics.LLMCalls.WithLabelValues("ok").Inc()

	resp := &ChatResponse{Content: out.Content}
	if meta := out.ResponseMeta; meta != nil {
		resp.FinishReason = meta.FinishReason
		if meta.Usage != nil {
			resp.Usage = &Usage{
				PromptTokens:     meta.Usage.PromptTokens,
				CompletionTokens: meta.Usage.CompletionTokens,
				TotalTokens:      meta.Usage.TotalTokens,
			}
			addUsage(ctx, resp.Usage.TotalTokens)
		}
	}
	return resp, nil
}

// Stream starts a streaming completion. Chunks without content are
// dropped. The channel is closed after the last chunk or on ctx
// cancellation.
func (c *Client) Stream(ctx context.Context, messages []Message, opts ...Option) (<-chan StreamChunk, error) {
	o := resolve(DefaultMaxTokens, DefaultTemperature, opts)

	sr, err := c.model.Stream(ctx, toSchema(messages),
		model.WithMaxTokens(o.maxTokens),
		model.WithTemperature(o.temperature),
	)
	if err != nil {
		metrics.LLMCalls.WithLabelValues("error").Inc()
		return nil, validationErr("streaming chat completion failed", err)
	}
	metrics.LLMCalls.WithLabelValues("ok").Inc()

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		defer sr.Close()
		for {
			msg, err := sr.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				send(ctx, ch, StreamChunk{Err: validationErr("streaming chat completion failed", err)})
				return
			}
			if msg == nil || msg.Content == "" {
				continue
			}
			chunk := StreamChunk{Content: msg.Content}
			if msg.ResponseMeta != nil {
				chunk.FinishReason = msg.ResponseMeta.FinishReason
			}
			if !send(ctx, ch, chunk) {
				return
			}
		}
	}()
	return ch, nil
}

func send(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// Complete is the system+user convenience used by agents. It defaults to
// temperature 0.3 and 1000 max tokens and returns the trimmed content.
func (c *Client) Complete(ctx context.Context, system, user string, opts ...Option) (string, error) {
	all := append([]Option{WithMaxTokens(CompleteMaxTokens), WithTemperature(CompleteTemperature)}, opts...)
	resp, err := c.Chat(ctx, []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}, all...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// Ping issues a minimal completion to prove connectivity.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Chat(ctx, []Message{{Role: RoleUser, Content: "Hello"}}, WithMaxTokens(10))
	return err
}

func resolve(maxTokens int, temperature float32, opts []Option) callOptions {
	o := callOptions{maxTokens: maxTokens, temperature: temperature}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func toSchema(messages []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			out = append(out, schema.UserMessage(m.Content))
		}
	}
	return out
}

// Disabled stands in for a client when no endpoint is configured. Every
// call fails with ErrNotConfigured so callers take their fallback paths.
type Disabled struct{}

var _ Chatter = Disabled{}

func (Disabled) Complete(context.Context, string, string, ...Option) (string, error) {
	return "", validationErr("client not initialized", ErrNotConfigured)
}

func (Disabled) Chat(context.Context, []Message, ...Option) (*ChatResponse, error) {
	return nil, validationErr("client not initialized", ErrNotConfigured)
}

func (Disabled) Stream(context.Context, []Message, ...Option) (<-chan StreamChunk, error) {
	return nil, validationErr("client not initialized", ErrNotConfigured)
}

func (Disabled) Ping(context.Context) error {
	return validationErr("client not initialized", ErrNotConfigured)
}

// NewFromConfig returns a live client when cfg is configured and Disabled
// otherwise.
func NewFromConfig(ctx context.Context, cfg Config, logger *zap.Logger) (Chatter, error) {
	if !cfg.Configured() {
		logging.OrNop(logger).Warn("azure openai not configured")
		return Disabled{}, nil
	}
	c, err := New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	return c, nil
}

type usageKey struct{}

// UsageTracker accumulates total tokens for every Chat made with a context
// returned by WithUsageTracker.
type UsageTracker struct {
	total atomic.Int64
}

// Total returns the tokens recorded so far.
func (u *UsageTracker) Total() int {
	return int(u.total.Load())
}

// WithUsageTracker attaches a fresh tracker to ctx.
func WithUsageTracker(ctx context.Context) (context.Context, *UsageTracker) {
	u := &UsageTracker{}
	return context.WithValue(ctx, usageKey{}, u), u
}

func addUsage(ctx context.Context, tokens int) {
	if u, ok := ctx.Value(usageKey{}).(*UsageTracker); ok {
		u.total.Add(int64(tokens))
	}
}

// ResolveMaxTokens reports the max tokens opts would apply on top of the
// Complete defaults.
func ResolveMaxTokens(opts []Option) int {
	return resolve(CompleteMaxTokens, CompleteTemperature, opts).maxTokens
}
