package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/apperrors"
)

// New creates the client for the configured provider. A missing credential
// is reported as the language-service-unavailable error so plan compilation
// fails loudly instead of degrading.
func New(cfg *Config, logger *zap.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key configured for provider %q", apperrors.ErrNLUnavailable, cfg.Provider)
	}

	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicClient(cfg, logger)
	case "openai", "":
		return NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
