// internal/prompt/gemini.go
package prompt

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/opera-farm/internal/config"
)

const instruction = `Write one short, natural question a curious person might ask an AI chat assistant about %s.
Reply with the question only, on a single line, without quotes.`

// completeFunc sends one text prompt to a model and returns its reply.
type completeFunc func(ctx context.Context, text string) (string, error)

// Gemini asks a Gemini model for each prompt.
type Gemini struct {
	complete completeFunc
	topics   *Static
	timeout  time.Duration
	logger   *zap.Logger
}

// NewGemini creates the genai client for cfg.
func NewGemini(ctx context.Context, cfg config.PromptConfig, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(cfg.Temperature),
	}
	complete := func(ctx context.Context, text string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, cfg.Model, genai.Text(text), genCfg)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
	return newGemini(complete, cfg.Timeout, logger), nil
}

func newGemini(complete completeFunc, timeout time.Duration, logger *zap.Logger) *Gemini {
	return &Gemini{
		complete: complete,
		topics:   NewStatic(time.Now().UnixNano()),
		timeout:  timeout,
		logger:   logger.Named("prompt.gemini"),
	}
}

// Generate asks the model for one question about a random topic.
func (g *Gemini) Generate(ctx context.Context) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	topic := g.topics.Topic()
	start := time.Now()
	reply, err := g.complete(ctx, fmt.Sprintf(instruction, topic))
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	text := Clean(reply)
	if text == "" {
		return "", ErrEmptyPrompt
	}
	g.logger.Debug("Prompt generated.",
		zap.String("topic", topic),
		zap.Duration("duration", time.Since(start)),
		zap.Int("length", len(text)),
	)
	return text, nil
}
