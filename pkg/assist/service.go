package assist

import (
	"context"
	"fmt"
	"strings"

	"github.com/termgate/termgate/internal/logger"
	"github.com/termgate/termgate/pkg/models"
	"github.com/termgate/termgate/pkg/store"
)

// Config selects and configures the provider.
type Config struct {
	// OpenAIKey and AnthropicKey enable the respective providers. When both
	// are set, OpenAI wins.
	OpenAIKey    string
	AnthropicKey string

	// Model overrides the provider's default model.
	Model string
}

// Enabled reports whether any provider credential is configured.
func (c *Config) Enabled() bool {
	return c.OpenAIKey != "" || c.AnthropicKey != ""
}

// Service answers assistant requests and records every exchange.
type Service struct {
	provider Provider
	store    *store.GORMStore
}

// NewService picks a provider from the configured credentials.
func NewService(config Config, s *store.GORMStore) (*Service, error) {
	var provider Provider
	var err error
	switch {
	case config.OpenAIKey != "":
		provider, err = NewOpenAIProvider(config.OpenAIKey, config.Model)
	case config.AnthropicKey != "":
		provider, err = NewAnthropicProvider(config.AnthropicKey, config.Model)
	default:
		return nil, fmt.Errorf("no assistant provider credential configured")
	}
	if err != nil {
		return nil, err
	}
	return NewServiceWithProvider(provider, s), nil
}

// NewServiceWithProvider wires a specific provider, typically a test double.
func NewServiceWithProvider(provider Provider, s *store.GORMStore) *Service {
	return &Service{provider: provider, store: s}
}

// Ask sends a prompt in the given mode, applies the safety classifier, and
// persists the exchange. Provider failures surface as models.ErrAssistant.
func (s *Service) Ask(ctx context.Context, userID string, sessionID *string, mode Mode, prompt string) (*Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: empty prompt", models.ErrAssistant)
	}
	system, err := systemPrompt(mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrAssistant, err)
	}

	raw, err := s.provider.Complete(ctx, system, prompt)
	if err != nil {
		logger.WarnCtx(ctx, "assistant provider failed",
			logger.KeyProvider, s.provider.Name(),
			logger.KeyError, err)
		return nil, fmt.Errorf("%w: %v", models.ErrAssistant, err)
	}

	result := parseAnswer(raw)
	if warnings := ClassifyCommands(result.Commands); len(warnings) > 0 {
		result.Warnings = append(result.Warnings, warnings...)
		if result.Confidence > MaxFlaggedConfidence {
			result.Confidence = MaxFlaggedConfidence
		}
	}

	if s.store != nil {
		_, err := s.store.CreateQuery(ctx, &models.AssistantQuery{
			UserID:      userID,
			SessionID:   sessionID,
			Mode:        string(mode),
			Prompt:      prompt,
			Response:    result.Response,
			Commands:    models.StringList(result.Commands),
			Warnings:    models.StringList(result.Warnings),
			Explanation: result.Explanation,
			Confidence:  result.Confidence,
		})
		if err != nil {
			logger.WarnCtx(ctx, "failed to persist assistant query",
				logger.KeyUserID, userID,
				logger.KeyError, err)
		}
	}

	return &result, nil
}

// ProviderName names the active provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}
