package services

import (
	"context"
	"fmt"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

// Enqueuer schedules a stored document for background re-indexing.
type Enqueuer interface {
	Enqueue(ownerID, docID string) error
}

type DocumentService struct {
	db    core.DbClient
	queue Enqueuer
}

func NewDocumentService(db core.DbClient, queue Enqueuer) *DocumentService {
	return &DocumentService{db: db, queue: queue}
}

// Get returns the document only if it belongs to userID.
func (s *DocumentService) Get(ctx context.Context, userID, id string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil || doc.UserID != userID {
		return nil, core.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *DocumentService) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	docs, err := s.db.ListDocumentsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

// Reindex verifies ownership, then queues the document for re-indexing.
func (s *DocumentService) Reindex(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.queue.Enqueue(userID, id)
}
