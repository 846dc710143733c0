package collab

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"mender/internal/config"
	"mender/internal/logging"
)

// Completer is a text-completion backend.
type Completer interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// CompleteWithSystem calls f.
func (f CompleterFunc) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}

// PacedCompleter spaces calls to the wrapped completer.
type PacedCompleter struct {
	inner   Completer
	limiter *rate.Limiter
}

// NewPacedCompleter allows one call per interval. A non-positive interval
// returns inner unchanged.
func NewPacedCompleter(inner Completer, interval time.Duration) Completer {
	if interval <= 0 {
		return inner
	}
	return &PacedCompleter{inner: inner, limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// CompleteWithSystem waits for the limiter, then calls the wrapped completer.
func (p *PacedCompleter) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for LLM pacing: %w", err)
	}
	return p.inner.CompleteWithSystem(ctx, systemPrompt, userPrompt)
}

// NewCompleter builds the completer for the configured provider, paced by
// cfg.MinInterval and bounded by cfg.Timeout per call.
func NewCompleter(ctx context.Context, cfg *config.Config) (Completer, error) {
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}

	var (
		c   Completer
		err error
	)
	switch cfg.LLM.Provider {
	case "openai":
		c = NewOpenAICompleter(cfg.LLM)
	case "gemini":
		c, err = NewGeminiCompleter(ctx, cfg.LLM)
	default:
		err = fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}
	if err != nil {
		return nil, err
	}

	logging.Collab("using %s model %s", cfg.LLM.Provider, cfg.LLM.Model)
	return NewPacedCompleter(instrument(c, cfg.LLM.Model, cfg.GetLLMTimeout()), cfg.GetLLMMinInterval()), nil
}

// instrument bounds each call by timeout and records it in the audit log.
func instrument(c Completer, model string, timeout time.Duration) Completer {
	return CompleterFunc(func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		resp, err := c.CompleteWithSystem(ctx, systemPrompt, userPrompt)
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		logging.Audit().LLMCall(model, time.Since(start).Milliseconds(), err == nil, errMsg)
		return resp, err
	})
}
