package core

import (
	"context"

	"github.com/markdave123-py/docqa/internal/models"
)

// DbClient defines all persistence operations your services will need.
// It abstracts Postgres so higher layers never depend on a specific DB.
type DbClient interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string, chunkCount int) error

	InsertChatTurn(ctx context.Context, turn *models.ChatTurn) error
	ListChatTurns(ctx context.Context, userID string, documentID *string) ([]models.ChatTurn, error)

	EnsureUser(ctx context.Context, userID string) error
	GetUserQuota(ctx context.Context, userID string) (*models.UserQuota, error)
	UpdateUserName(ctx context.Context, userID, name string) error
	IncrementIfAllowed(ctx context.Context, userID string, counter models.Counter, ceiling int) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// Distance is the similarity metric of a vector collection.
type Distance string

const DistanceCosine Distance = "Cosine"

// VectorIndex stores (vector, payload) pairs and answers filtered nearest-neighbour queries.
type VectorIndex interface {
	// EnsureCollection creates the collection if absent. Safe to call concurrently.
	EnsureCollection(ctx context.Context, dim int, metric Distance) error
	// Upsert writes one batch and returns only after the store acknowledged it.
	Upsert(ctx context.Context, points []models.IndexedVector) error
	// Search returns hits with score >= threshold, best first, ties by chunk index.
	Search(ctx context.Context, vec []float32, filter models.VectorFilter, limit int, threshold float32) ([]models.ScoredChunk, error)
	DeleteDocument(ctx context.Context, filter models.VectorFilter) error
}
