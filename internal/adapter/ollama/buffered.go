package ollama

import (
	"context"

	"codepilot/internal/domain"
	"codepilot/internal/port"
)

// BufferedStreamer adapts a plain Generator to port.StreamGenerator by
// emitting the whole response as a single chunk once it completes.
type BufferedStreamer struct {
	gen port.Generator
}

func NewBufferedStreamer(gen port.Generator) *BufferedStreamer {
	return &BufferedStreamer{gen: gen}
}

func (b *BufferedStreamer) GenerateStreaming(ctx context.Context, req domain.InferenceRequest, onChunk func(string)) (string, error) {
	text, err := b.gen.Generate(ctx, req).Unwrap()
	if err != nil {
		return "", err
	}
	if onChunk != nil && text != "" {
		onChunk(text)
	}
	return text, nil
}
