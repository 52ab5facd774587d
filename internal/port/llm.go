package port

import (
	"context"

	"codepilot/internal/domain"
)

// Generator runs a single, non-streaming inference call.
type Generator interface {
	// Generate never returns a Go error: failures are carried in the result.
	Generate(ctx context.Context, req domain.InferenceRequest) domain.InferenceResult
}

// StreamGenerator delivers incremental fragments before resolving with the
// full text. Every inference backend used for streaming must implement it;
// backends without native streaming are adapted by a fallback strategy.
type StreamGenerator interface {
	GenerateStreaming(ctx context.Context, req domain.InferenceRequest, onChunk func(string)) (string, error)
}

// ModelCatalog lists the models an inference server offers.
type ModelCatalog interface {
	ListModels(ctx context.Context) []domain.ModelDescriptor
	CheckAvailability(ctx context.Context) bool
}

// PromptBuilder renders a named template.
type PromptBuilder interface {
	Build(id string, vars map[string]string) (string, error)
}
