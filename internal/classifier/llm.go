// Package classifier turns free text into a structured booking intent.
package classifier

import (
	"context"
	"fmt"
	"time"

	"consultbot/internal/config"
	"consultbot/internal/domain"
	"consultbot/internal/models"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

type LLMClassifier struct {
	model   llms.Model
	prompt  string
	timeout time.Duration
	logger  *zerolog.Logger
}

var _ domain.IntentClassifier = (*LLMClassifier)(nil)

func NewLLMClassifier(model llms.Model, catalog models.Catalog, timeout time.Duration, logger *zerolog.Logger) *LLMClassifier {
	return &LLMClassifier{
		model:   model,
		prompt:  BuildSystemPrompt(catalog.Services),
		timeout: timeout,
		logger:  logger,
	}
}

// NewGoogleAI builds a Gemini-backed classifier.
func NewGoogleAI(ctx context.Context, cfg config.ClassifierConfig, catalog models.Catalog, logger *zerolog.Logger) (*LLMClassifier, error) {
	model, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create googleai client: %w", err)
	}
	return NewLLMClassifier(model, catalog, cfg.Timeout, logger), nil
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) (*models.IntentResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, c.prompt),
		llms.TextParts(llms.ChatMessageTypeHuman, text),
	}

	resp, err := c.model.GenerateContent(ctx, messages,
		llms.WithTemperature(0),
		llms.WithJSONMode(),
	)
	if err != nil {
		c.logger.Warn().Err(err).Msg("LLM call failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrClassifierUnavailable, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", domain.ErrClassifierUnavailable)
	}

	result, err := ParseResponse(resp.Choices[0].Content)
	if err != nil {
		c.logger.Warn().Err(err).Str("content", resp.Choices[0].Content).Msg("Unparseable LLM response")
		return nil, err
	}
	return result, nil
}
