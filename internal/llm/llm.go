// Package llm provides the LanguageModel clients used for query
// normalization and final selection, plus the guard and cache wrappers
// around them.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// LanguageModel completes a prompt synchronously.
type LanguageModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Func adapts a function to LanguageModel.
type Func func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Purposes sent with router calls.
const (
	PurposeNormalize = "normalize"
	PurposeSelection = "selection"
	PurposeDefault   = "core"
)

type ctxKey int

const (
	purposeKey ctxKey = iota
	traceIDKey
)

// WithPurpose tags ctx with the purpose of the next model call.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom returns the purpose in ctx, or PurposeDefault.
func PurposeFrom(ctx context.Context) string {
	if p, ok := ctx.Value(purposeKey).(string); ok && p != "" {
		return p
	}
	return PurposeDefault
}

// WithTraceID tags ctx with the run's trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFrom returns the trace ID in ctx, or "".
func TraceIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// StatusError is a non-2xx HTTP response from a model endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying may help.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Close closes m if it holds resources.
func Close(m LanguageModel) error {
	if c, ok := m.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// shouldRetry skips cancellation and client errors.
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
