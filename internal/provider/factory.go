package provider

import (
	"context"
	"fmt"
	"time"
)

type Config struct {
	Name          string
	OpenAIAPIKey  string
	OpenAIAPIBase string
	GeminiAPIKey  string
	Timeout       time.Duration
}

// New builds the configured provider. The caller owns the returned closer.
func New(ctx context.Context, cfg Config) (Provider, func() error, error) {
	switch cfg.Name {
	case "", "openai":
		p := NewOpenAI(cfg.OpenAIAPIBase, cfg.OpenAIAPIKey, cfg.Timeout)
		return p, p.Close, nil
	case "gemini":
		p, err := NewGemini(ctx, cfg.GeminiAPIKey, 5)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}
