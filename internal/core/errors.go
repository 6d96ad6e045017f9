package core

import (
	"errors"
	"fmt"
)

// OutOfScopeAnswer is returned verbatim when no retrieved excerpt clears the score threshold.
const OutOfScopeAnswer = "This clause doesn't appear to be included in the document."

var (
	// ErrQuotaExceeded is a normal terminal outcome, not a system error.
	ErrQuotaExceeded         = errors.New("quota exceeded")
	ErrImageBasedUnsupported = errors.New("document appears to be image-based and OCR is disabled")
	ErrExtractionFailed      = errors.New("text extraction failed")
	ErrEmbeddingFailed       = errors.New("embedding failed")
	ErrProviderTimeout       = errors.New("provider timed out")
	ErrIndexWriteFailed      = errors.New("vector index write failed")
	ErrPartiallyIndexed      = errors.New("document stored but not fully searchable")
	ErrDocumentNotFound      = errors.New("document not found")
)

// PartiallyIndexedError reports how far ingestion got before a failure.
// The document row exists; only Committed of Total upsert batches were acknowledged.
type PartiallyIndexedError struct {
	DocumentID string
	Committed  int
	Total      int
	Err        error
}

func (e *PartiallyIndexedError) Error() string {
	return fmt.Sprintf("document %s partially indexed (%d/%d batches committed): %v",
		e.DocumentID, e.Committed, e.Total, e.Err)
}

// Is lets errors.Is(err, ErrPartiallyIndexed) match.
func (e *PartiallyIndexedError) Is(target error) bool {
	return target == ErrPartiallyIndexed
}

func (e *PartiallyIndexedError) Unwrap() error {
	return e.Err
}
