package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"

	"github.com/pekka-poukamo/dnd-journal/internal/settings"
	"github.com/pekka-poukamo/dnd-journal/internal/store"
)

func newTestGateway(t *testing.T, enabled bool, apiKey string) *Gateway {
	t.Helper()
	d := store.New("replica-a")
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(d.Close)
	sv := settings.New(d, nil)
	sv.SetAIEnabled(enabled)
	sv.SetOpenAIAPIKey(apiKey)
	return New(sv)
}

func TestIsAvailableRequiresEnabledAndValidKey(t *testing.T) {
	cases := []struct {
		name    string
		enabled bool
		key     string
		want    bool
	}{
		{"disabled with key", false, "sk-test", false},
		{"enabled without key", true, "", false},
		{"enabled with malformed key", true, "not-a-key", false},
		{"enabled with valid key", true, "sk-test", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			gw := newTestGateway(t, c.enabled, c.key)
			if got := gw.IsAvailable(); got != c.want {
				t.Fatalf("IsAvailable() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestCallReturnsUnavailableWithoutReachingNetwork(t *testing.T) {
	gw := newTestGateway(t, false, "")
	_, err := gw.CallSummary(context.Background(), "summarize this", CallOptions{})
	if !errors.Is(err, ErrAIUnavailable) {
		t.Fatalf("expected ErrAIUnavailable, got %v", err)
	}
}

func TestCallQuestionsUnavailable(t *testing.T) {
	gw := newTestGateway(t, false, "")
	_, err := gw.CallQuestions(context.Background(), "sys", "user", CallOptions{})
	if !errors.Is(err, ErrAIUnavailable) {
		t.Fatalf("expected ErrAIUnavailable, got %v", err)
	}
}

func TestCallStructuredEntrySummaryUnavailable(t *testing.T) {
	gw := newTestGateway(t, false, "")
	_, err := gw.CallStructuredEntrySummary(context.Background(), "some content")
	if !errors.Is(err, ErrAIUnavailable) {
		t.Fatalf("expected ErrAIUnavailable, got %v", err)
	}
}

func TestExtractJSONStripsSurroundingProse(t *testing.T) {
	in := "Sure, here you go:\n```json\n{\"title\":\"x\"}\n```\nHope that helps!"
	got := extractJSON(in)
	if got != `{"title":"x"}` {
		t.Fatalf("unexpected extracted json: %q", got)
	}
}

func TestExtractJSONNoBracesReturnsInput(t *testing.T) {
	in := "no json here"
	if got := extractJSON(in); got != in {
		t.Fatalf("expected input returned unchanged, got %q", got)
	}
}

func TestClassifyErrorFallsBackToProviderError(t *testing.T) {
	err := classifyError(errors.New("boom"))
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %T", err)
	}
}

func TestIsRetryableNilErrorFalse(t *testing.T) {
	if isRetryable(nil) {
		t.Fatalf("expected nil error to be non-retryable")
	}
}

func TestIsRetryableContextCanceledFalse(t *testing.T) {
	if isRetryable(context.Canceled) {
		t.Fatalf("expected context.Canceled to be non-retryable")
	}
}

func TestUnwrapPermanentUnwrapsBackoffPermanentError(t *testing.T) {
	inner := errors.New("inner")
	wrapped := backoff.Permanent(inner)
	if got := unwrapPermanent(wrapped); got != inner {
		t.Fatalf("expected unwrapped inner error, got %v", got)
	}
}

func TestUnwrapPermanentPassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("plain")
	if got := unwrapPermanent(plain); got != plain {
		t.Fatalf("expected plain error returned unchanged, got %v", got)
	}
}
