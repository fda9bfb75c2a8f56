package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rahul/mia/internal/observability"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"
)

var errEmptyResponse = errors.New("empty response from language model")

const systemPrompt = "You are a professional market analyst. Output in Markdown."

// RetryOptions bounds how hard LanguageModel tries before giving up.
type RetryOptions struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RequestTimeout time.Duration
}

type LanguageModel struct {
	Model       llms.Model
	Temperature float64
	MaxTokens   int

	retry   RetryOptions
	limiter *rate.Limiter
	logger  *observability.Logger
}

// NewLanguageModel wraps model with retry and throttling. requestsPerMinute
// <= 0 disables throttling. The limiter is shared by every mission.
func NewLanguageModel(model llms.Model, retry RetryOptions, requestsPerMinute int, logger *observability.Logger) *LanguageModel {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
	return &LanguageModel{
		Model:       model,
		Temperature: 0.1,
		MaxTokens:   2048,
		retry:       retry,
		limiter:     limiter,
		logger:      logger,
	}
}

// Generate sends prompt and returns the completion. Rate-limit, timeout and
// server errors are retried with exponential backoff; anything else fails at
// once.
func (m *LanguageModel) Generate(ctx context.Context, purpose, prompt string) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.retry.InitialBackoff
	b.MaxInterval = m.retry.MaxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(m.retry.MaxAttempts-1)), ctx)

	var (
		out     string
		attempt int
	)
	op := func() error {
		attempt++
		if err := m.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		text, err := m.call(ctx, prompt)
		m.logger.LogLLM(purpose, prompt, text, attempt)
		if err != nil {
			if ctx.Err() != nil || !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = text
		return nil
	}
	notify := func(err error, wait time.Duration) {
		observability.LLMRetries.WithLabelValues(purpose).Inc()
		m.logger.Warn().Err(err).Str("purpose", purpose).Int("attempt", attempt).Dur("wait", wait).Msg("language model call failed, retrying")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return "", fmt.Errorf("%s failed after %d attempt(s): %w", purpose, attempt, err)
	}
	return out, nil
}

func (m *LanguageModel) call(ctx context.Context, prompt string) (string, error) {
	if m.retry.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.retry.RequestTimeout)
		defer cancel()
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := m.Model.GenerateContent(ctx, messages,
		llms.WithTemperature(m.Temperature),
		llms.WithMaxTokens(m.MaxTokens),
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", errEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

// Provider errors arrive as formatted strings, so classification is textual.
var retryableSignals = []string{"429", "rate limit", "too many requests", "timeout", "timed out", "500", "502", "503", "504", "overloaded", "unavailable"}

func retryable(err error) bool {
	if errors.Is(err, errEmptyResponse) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSignals {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
