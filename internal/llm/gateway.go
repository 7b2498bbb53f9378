// Package llm implements C5, the LLM Gateway: a stateless adapter over a
// chat-completion endpoint enforcing an availability contract, fixed
// prompt shapes, and a classified error taxonomy.
//
// Grounded on the teacher repo's internal/compact/haiku.go: the same
// anthropic-sdk-go client construction, OTel metrics/tracing around the
// call, and status-code-driven retry classification — generalized from a
// single fixed "tier1" summarization call into three call shapes
// (CallQuestions, CallSummary, CallStructuredEntrySummary).
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/pekka-poukamo/dnd-journal/internal/settings"
)

// apiKeyPattern matches the recognized API key prefix.
var apiKeyPattern = regexp.MustCompile(`^sk-`)

// DefaultModel is used when no explicit model override is configured.
const DefaultModel = "claude-haiku-4-5"

// Gateway is the stateless LLM adapter. It reads availability from a
// settings.View on every call, so toggling ai-enabled or clearing the API
// key takes effect immediately without reconstructing the Gateway.
type Gateway struct {
	settings *settings.View
	model    anthropic.Model
	baseURL  string // non-empty routes at an OpenAI-compatible endpoint

	meter  metric.Meter
	tracer trace.Tracer

	metricsOnce  sync.Once
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(g *Gateway) { g.model = anthropic.Model(model) }
}

// WithBaseURL points the gateway at an OpenAI-compatible endpoint instead
// of Anthropic's own.
func WithBaseURL(url string) Option {
	return func(g *Gateway) { g.baseURL = url }
}

// WithTelemetry attaches a meter/tracer; both default to no-ops if unset.
func WithTelemetry(meter metric.Meter, tracer trace.Tracer) Option {
	return func(g *Gateway) { g.meter = meter; g.tracer = tracer }
}

// New constructs a Gateway reading availability/config from sv.
func New(sv *settings.View, opts ...Option) *Gateway {
	g := &Gateway{settings: sv, model: anthropic.Model(DefaultModel)}
	for _, o := range opts {
		o(g)
	}
	return g
}

// IsAvailable reports the Gateway's availability contract: ai-enabled is
// true AND the API key is non-empty AND matches the recognized prefix.
func (g *Gateway) IsAvailable() bool {
	return g.settings.AIEnabled() &&
		g.settings.OpenAIAPIKey() != "" &&
		apiKeyPattern.MatchString(g.settings.OpenAIAPIKey())
}

func (g *Gateway) client() anthropic.Client {
	opts := []option.RequestOption{option.WithAPIKey(g.settings.OpenAIAPIKey())}
	if g.baseURL != "" {
		opts = append(opts, option.WithBaseURL(g.baseURL))
	}
	return anthropic.NewClient(opts...)
}

func (g *Gateway) initMetrics() {
	g.metricsOnce.Do(func() {
		if g.meter == nil {
			return
		}
		g.inputTokens, _ = g.meter.Int64Counter("journal.ai.input_tokens",
			metric.WithDescription("LLM gateway input tokens consumed"), metric.WithUnit("{token}"))
		g.outputTokens, _ = g.meter.Int64Counter("journal.ai.output_tokens",
			metric.WithDescription("LLM gateway output tokens generated"), metric.WithUnit("{token}"))
		g.duration, _ = g.meter.Float64Histogram("journal.ai.request.duration",
			metric.WithDescription("LLM gateway request duration"), metric.WithUnit("ms"))
	})
}

// CallOptions tunes a single call. Zero values fall back to the shape's
// documented defaults.
type CallOptions struct {
	MaxTokens   int64
	Temperature float64
}

// CallQuestions issues the reflective-questions prompt shape.
func (g *Gateway) CallQuestions(ctx context.Context, systemPrompt, userPrompt string, opts CallOptions) (string, error) {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 1200
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.8
	}
	return g.call(ctx, "questions", systemPrompt, userPrompt, opts)
}

// CallSummary issues a plain-text summarization prompt shape.
func (g *Gateway) CallSummary(ctx context.Context, userPrompt string, opts CallOptions) (string, error) {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 400
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.3
	}
	return g.call(ctx, "summary", "", userPrompt, opts)
}

// StructuredEntrySummary is the {title, subtitle, summary} triple
// CallStructuredEntrySummary returns.
type StructuredEntrySummary struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Summary  string `json:"summary"`
}

// CallStructuredEntrySummary requests a structured per-entry summary and
// parses the model's JSON response. Parse failures map to ParseError.
func (g *Gateway) CallStructuredEntrySummary(ctx context.Context, content string) (StructuredEntrySummary, error) {
	prompt := structuredEntryPrompt(content)
	text, err := g.call(ctx, "structured-entry-summary", structuredEntrySystemPrompt, prompt, CallOptions{MaxTokens: 400, Temperature: 0.3})
	if err != nil {
		return StructuredEntrySummary{}, err
	}

	var out StructuredEntrySummary
	if jsonErr := json.Unmarshal([]byte(extractJSON(text)), &out); jsonErr != nil {
		return StructuredEntrySummary{}, &ParseError{Err: jsonErr}
	}
	if out.Title == "" && out.Summary == "" {
		return StructuredEntrySummary{}, &ParseError{Err: fmt.Errorf("empty structured summary")}
	}
	return out, nil
}

// extractJSON trims leading/trailing prose a model sometimes wraps JSON
// in (e.g. markdown code fences) down to the first {...} block.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

const maxRetries = 3
const initialBackoff = 500 * time.Millisecond

func (g *Gateway) call(ctx context.Context, operation, systemPrompt, userPrompt string, opts CallOptions) (string, error) {
	if !g.IsAvailable() {
		return "", ErrAIUnavailable
	}
	g.initMetrics()

	var span trace.Span
	if g.tracer != nil {
		ctx, span = g.tracer.Start(ctx, "llm.call")
		defer span.End()
		span.SetAttributes(attribute.String("journal.ai.operation", operation))
	}

	params := anthropic.MessageNewParams{
		Model:       g.model,
		MaxTokens:   opts.MaxTokens,
		Temperature: anthropic.Float(opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	client := g.client()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialBackoff
	bounded := backoff.WithMaxRetries(bo, maxRetries)

	var result string
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		t0 := time.Now()
		message, callErr := client.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())

		if callErr == nil {
			if g.duration != nil {
				attr := metric.WithAttributes(attribute.String("journal.ai.operation", operation))
				g.inputTokens.Add(ctx, message.Usage.InputTokens, attr)
				g.outputTokens.Add(ctx, message.Usage.OutputTokens, attr)
				g.duration.Record(ctx, ms, attr)
			}
			if len(message.Content) == 0 {
				return backoff.Permanent(&ProviderError{Message: "no content blocks returned"})
			}
			content := message.Content[0]
			if content.Type != "text" {
				return backoff.Permanent(&ProviderError{Message: fmt.Sprintf("unexpected content type %q", content.Type)})
			}
			result = content.Text
			return nil
		}

		if ctx.Err() != nil {
			return backoff.Permanent(&TimeoutError{Err: ctx.Err()})
		}
		if !isRetryable(callErr) {
			return backoff.Permanent(classifyError(callErr))
		}
		return classifyError(callErr)
	}, bounded)

	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return "", unwrapPermanent(err)
	}
	if span != nil {
		span.SetAttributes(attribute.Int("journal.ai.attempts", attempt))
	}
	return result, nil
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &NetworkError{Err: err}
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 400 {
			return &HTTPError{Status: apiErr.StatusCode}
		}
	}
	return &ProviderError{Message: err.Error()}
}
