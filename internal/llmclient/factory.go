package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/phonepilot/api/schemas"
	"github.com/xkilldash9x/phonepilot/internal/config"
)

// New creates a Planner for the configured provider.
func New(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger) (schemas.Planner, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown model provider %q; supported: %s, %s",
			cfg.Provider, config.ProviderOpenAI, config.ProviderGemini)
	}
}
