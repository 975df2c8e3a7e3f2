package domain

import (
	"context"
	"fmt"
)

// Embedder is the shared text vectorization contract between layers.
// Implementations are batched: one call vectorizes all texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model identifies the active embedding model. Results computed under one
	// model's vector space are meaningless under another.
	Model() string
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbedOne vectorizes a single text through a batched Embedder.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed one: got %d vectors, want 1: %w", len(vecs), ErrEmbeddingUnavailable)
	}
	return vecs[0], nil
}

// InstructionEmbedder is a decorator that prepends instruction text before
// embedding. Some models want a task prefix on every input; it goes here.
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// NewInstructionEmbedder creates a decorator that prepends instruction text.
func NewInstructionEmbedder(inner Embedder, instruction string) *InstructionEmbedder {
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

// Embed prepends the instruction to each text and delegates to the inner embedder.
func (e *InstructionEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = e.instruction + t
	}
	vecs, err := e.inner.Embed(ctx, prefixed)
	if err != nil {
		return nil, fmt.Errorf("instruction embed: %w", err)
	}
	return vecs, nil
}

// Model returns the inner model identifier.
func (e *InstructionEmbedder) Model() string { return e.inner.Model() }
