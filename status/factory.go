package status

import (
	"fmt"

	"github.com/ghillie/ghillie/config"
)

// NewModelFromConfig dispatches to the configured status-model backend,
// grounded on the original backend-tag factory.
func NewModelFromConfig(cfg *config.Config) (Model, error) {
	switch cfg.StatusModelBackend {
	case config.BackendMock:
		return NewMockModel(), nil
	case config.BackendOpenAI:
		return NewOpenAIModel(OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Endpoint:    cfg.OpenAIEndpoint,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.OpenAITemperature,
			MaxTokens:   cfg.OpenAIMaxTokens,
			Timeout:     cfg.OpenAITimeout,
		})
	default:
		return nil, fmt.Errorf("status: unsupported backend %q", cfg.StatusModelBackend)
	}
}
