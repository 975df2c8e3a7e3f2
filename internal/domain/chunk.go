package domain

import (
	"fmt"
	"regexp"
)

var namespaceRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateNamespace checks a namespace name against the allowed character set.
// Names: ^[a-zA-Z0-9_-]+$, 1-128 chars.
func ValidateNamespace(name string) error {
	if name == "" {
		return fmt.Errorf("namespace is required: %w", ErrInvalidArgument)
	}
	if len(name) > 128 {
		return fmt.Errorf("namespace too long (max 128): %w", ErrInvalidArgument)
	}
	if !namespaceRegex.MatchString(name) {
		return fmt.Errorf("namespace must be alphanumeric with underscores and hyphens: %w", ErrInvalidArgument)
	}
	return nil
}

// Chunk is a bounded text span of a source document, the unit of storage and retrieval.
// Immutable once created by ingestion.
type Chunk struct {
	DocumentID     string
	ChunkIndex     int
	Text           string
	Namespace      string
	SessionID      string
	SourceFilename string
}

// ID returns the stable chunk identifier: document id plus 0-based ordinal.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s-%d", c.DocumentID, c.ChunkIndex)
}

// EmbeddedChunk is a Chunk plus its embedding vector. The store is the single
// writer once upserted.
type EmbeddedChunk struct {
	Chunk
	Vector []float32
}

// ScoredChunk is a chunk returned from a KNN query with its raw distance.
type ScoredChunk struct {
	Chunk
	Distance float64
}

// RetrievedChunk is one query result entry: a scored chunk with its normalized
// relevance and 1-based citation index. Ephemeral; never persisted.
type RetrievedChunk struct {
	Chunk
	Distance      float64
	Relevance     float64
	CitationIndex int
}

// NamespaceInfo describes one namespace for management/inspection.
type NamespaceInfo struct {
	Name          string
	DocumentCount int
	ChunkCount    int
}

// DocumentInfo describes one ingested document within a namespace.
type DocumentInfo struct {
	DocumentID     string
	SourceFilename string
	ChunkCount     int
}
