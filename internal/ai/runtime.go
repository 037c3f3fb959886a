package ai

import "context"

// Runtime is implemented by every text generation backend.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers accepted by the configuration.
const (
	ProviderNone       = "none"
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderGroq       = "groq"
	ProviderGemini     = "gemini"
	ProviderOllama     = "ollama"
)
