// Package chunker splits raw document text into overlapping fixed-size windows.
// This is the main retrieval tunable: smaller windows trade context richness for
// match precision.
package chunker

import (
	"fmt"

	"github.com/aramb-dev/agentkit/internal/domain"
)

// Defaults match the tuned production values: 900-char windows with 150-char overlap.
const (
	DefaultSize    = 900
	DefaultOverlap = 150
)

// Config holds chunking parameters.
type Config struct {
	Size    int
	Overlap int
}

// Validate checks the parameters. Overlap >= size would stall the window advance.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d: %w", c.Size, domain.ErrChunkConfig)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("overlap must be non-negative, got %d: %w", c.Overlap, domain.ErrChunkConfig)
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("overlap %d must be smaller than chunk size %d: %w",
			c.Overlap, c.Size, domain.ErrChunkConfig)
	}
	return nil
}

// Split cuts text into consecutive windows of size characters advancing by
// size-overlap. The final window may be shorter and always covers the trailing
// text. Counts are in runes so multi-byte text never splits mid-character.
// Pure function; empty text yields nil.
func Split(text string, size, overlap int) ([]string, error) {
	if err := (Config{Size: size, Overlap: overlap}).Validate(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}, nil
	}

	step := size - overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks, nil
}
