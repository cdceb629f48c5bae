package llm

import (
	"context"
	"log/slog"
	"time"

	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
)

// Guard bounds every call with a timeout, retries transient failures with
// exponential backoff and stops calling a model that keeps failing.
type Guard struct {
	inner   LanguageModel
	timeout time.Duration
	retry   cmerrors.RetryConfig
	breaker *cmerrors.CircuitBreaker
	logger  *slog.Logger
}

var _ LanguageModel = (*Guard)(nil)

// GuardConfig configures a Guard.
type GuardConfig struct {
	// Timeout bounds each attempt. Zero disables it.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialDelay overrides the first backoff delay.
	InitialDelay time.Duration
}

// NewGuard wraps inner.
func NewGuard(inner LanguageModel, cfg GuardConfig) *Guard {
	retry := cmerrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	retry.Jitter = true
	retry.ShouldRetry = shouldRetry
	if cfg.InitialDelay > 0 {
		retry.InitialDelay = cfg.InitialDelay
	}

	return &Guard{
		inner:   inner,
		timeout: cfg.Timeout,
		retry:   retry,
		breaker: cmerrors.NewCircuitBreaker("language_model", cmerrors.WithMaxFailures(3)),
		logger:  slog.Default().With("component", "llm"),
	}
}

// Complete calls the inner model.
func (g *Guard) Complete(ctx context.Context, prompt string) (string, error) {
	attempt := 0
	return cmerrors.CircuitExecuteContext(ctx, g.breaker, func() (string, error) {
		return cmerrors.RetryWithResult(ctx, g.retry, func() (string, error) {
			attempt++
			start := time.Now()

			callCtx := ctx
			if g.timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, g.timeout)
				defer cancel()
			}

			out, err := g.inner.Complete(callCtx, prompt)
			if err != nil {
				g.logger.Warn("llm_call_failed",
					slog.String("purpose", PurposeFrom(ctx)),
					slog.Int("attempt", attempt),
					slog.Duration("elapsed", time.Since(start)),
					slog.String("error", err.Error()))
				return "", err
			}

			g.logger.Debug("llm_call_completed",
				slog.String("purpose", PurposeFrom(ctx)),
				slog.String("trace_id", TraceIDFrom(ctx)),
				slog.Int("attempt", attempt),
				slog.Int("prompt_chars", len(prompt)),
				slog.Int("response_chars", len(out)),
				slog.Duration("elapsed", time.Since(start)))
			return out, nil
		})
	})
}

// Close closes the inner model.
func (g *Guard) Close() error {
	return Close(g.inner)
}
