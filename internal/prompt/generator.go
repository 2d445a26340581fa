// internal/prompt/generator.go
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/opera-farm/internal/config"
)

// ErrEmptyPrompt is returned when a backend produced nothing usable.
var ErrEmptyPrompt = errors.New("prompt: generator returned empty text")

// Generator produces one chat prompt per call.
type Generator interface {
	Generate(ctx context.Context) (string, error)
}

// New builds the generator selected by cfg.Provider, rate limited when
// cfg.RequestsPerMinute is set.
func New(ctx context.Context, cfg config.PromptConfig, logger *zap.Logger) (Generator, error) {
	var gen Generator
	switch cfg.Provider {
	case config.ProviderStatic, "":
		gen = NewStatic(time.Now().UnixNano())
	case config.ProviderGemini:
		g, err := NewGemini(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		gen = g
	default:
		return nil, fmt.Errorf("unsupported prompt provider: %s", cfg.Provider)
	}

	if cfg.RequestsPerMinute > 0 {
		gen = NewLimited(gen, cfg.RequestsPerMinute)
	}
	return gen, nil
}

// Limited throttles an underlying generator. One instance is shared by all
// concurrently farmed profiles.
type Limited struct {
	next    Generator
	limiter *rate.Limiter
}

// NewLimited allows perMinute calls per minute with no burst beyond one.
func NewLimited(next Generator, perMinute int) *Limited {
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

// Generate waits for a token, then delegates.
func (l *Limited) Generate(ctx context.Context) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for prompt rate limit: %w", err)
	}
	return l.next.Generate(ctx)
}

// Clean turns generator output into a single line that is safe to type into
// the chat box. A newline would submit the message early.
func Clean(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	for {
		trimmed := strings.TrimSpace(strings.Trim(text, "\"'`"))
		if trimmed == text {
			return text
		}
		text = trimmed
	}
}
