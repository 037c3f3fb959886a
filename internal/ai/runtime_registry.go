package ai

import (
	"sort"
	"strings"
	"time"
)

// RuntimeFactory builds a Runtime from the generic config below.
type RuntimeFactory func(RuntimeConfig) Runtime

// RuntimeConfig carries common knobs used by runtimes.
type RuntimeConfig struct {
	// Common
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Hosted providers
	APIKey  string
	BaseURL string
	// Ollama
	Host string
}

var registry = map[string]RuntimeFactory{}

// RegisterRuntime registers a provider name with its factory.
func RegisterRuntime(name string, f RuntimeFactory) { registry[strings.ToLower(name)] = f }

// GetRuntime creates a Runtime for the given provider if registered. The
// "none" provider and an empty name yield no runtime.
func GetRuntime(name string, cfg RuntimeConfig) (Runtime, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == ProviderNone {
		return nil, false
	}
	if f, ok := registry[name]; ok {
		return f(cfg), true
	}
	return nil, false
}

// Providers lists the registered provider names.
func Providers() []string {
	out := make([]string, 0, len(registry)+1)
	out = append(out, ProviderNone)
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out[1:])
	return out
}

func openAICompatible(defaultURL string) RuntimeFactory {
	return func(c RuntimeConfig) Runtime {
		base := c.BaseURL
		if base == "" {
			base = defaultURL
		}
		return NewClient(c.APIKey, base, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay)
	}
}

// init registers built-in runtimes.
func init() {
	RegisterRuntime(ProviderOpenRouter, openAICompatible(OpenRouterBaseURL))
	RegisterRuntime(ProviderOpenAI, openAICompatible(OpenAIBaseURL))
	RegisterRuntime(ProviderGroq, openAICompatible(GroqBaseURL))
	RegisterRuntime(ProviderGemini, func(c RuntimeConfig) Runtime {
		return NewGeminiClient(c.APIKey, c.BaseURL, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay)
	})
	RegisterRuntime(ProviderOllama, func(c RuntimeConfig) Runtime {
		host := c.Host
		if host == "" {
			host = c.BaseURL
		}
		return NewOllamaClient(host, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay)
	})
}
