package domain

import "errors"

var (
	// ErrInvalidArgument signals a caller-supplied value that fails validation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNamespaceNotFound signals an operation against a namespace that was never created.
	ErrNamespaceNotFound = errors.New("namespace not found")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrChunkConfig signals invalid chunking parameters.
	ErrChunkConfig = errors.New("invalid chunking configuration")
	// ErrEmbeddingUnavailable signals that the embedding provider is missing or unreachable.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrRetrievalUnavailable signals that the document retrieval path failed as a whole.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrWebSearchUnavailable signals a web search provider failure or timeout.
	ErrWebSearchUnavailable = errors.New("web search unavailable")
	// ErrVectorDimMismatch signals a dimension mismatch between query and stored vectors.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
)
