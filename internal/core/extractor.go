package core

import (
	"context"
)

// TextExtractor converts a raw document into plain text.
// Implementations return ErrExtractionFailed or ErrImageBasedUnsupported (wrapped) on failure.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}
