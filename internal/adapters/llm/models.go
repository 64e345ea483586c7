package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/eleven-am/specter/internal/domain"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ModelFactory builds the backend model for one route.
type ModelFactory func(route domain.LLMRoute) (llms.Model, error)

var defaultKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// NewModel constructs a langchaingo model for route. Keys are read from the
// route's api_key_env, falling back to the provider's conventional variable.
func NewModel(route domain.LLMRoute) (llms.Model, error) {
	provider := strings.ToLower(strings.TrimSpace(route.Provider))
	key := routeAPIKey(provider, route)

	switch provider {
	case "openai":
		opts := []openai.Option{openai.WithModel(route.Model)}
		if key != "" {
			opts = append(opts, openai.WithToken(key))
		}
		if route.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(route.BaseURL))
		}
		return openai.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithModel(route.Model)}
		if key != "" {
			opts = append(opts, anthropic.WithToken(key))
		}
		if route.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(route.BaseURL))
		}
		return anthropic.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(route.Model)}
		if route.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(route.BaseURL))
		}
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("%w: unsupported llm provider %q", domain.ErrInvalidConfig, route.Provider)
	}
}

func routeAPIKey(provider string, route domain.LLMRoute) string {
	if route.APIKeyEnv != "" {
		return os.Getenv(route.APIKeyEnv)
	}
	if env, ok := defaultKeyEnv[provider]; ok {
		return os.Getenv(env)
	}
	return ""
}
