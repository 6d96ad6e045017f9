package models

import (
	"time"
)

// Plan tiers recognised by the quota ledger.
const (
	PlanFree = "free"
	PlanPaid = "paid"
)

// Document lifecycle statuses.
const (
	StatusIndexing = "indexing"
	StatusReady    = "ready"
	StatusPartial  = "partial"
)

// UserQuota is the per-user usage record. One row per opaque user id.
type UserQuota struct {
	UserID        string    `db:"user_id" json:"user_id"`
	Name          string    `db:"name" json:"name"`
	Plan          string    `db:"plan_status" json:"plan_status"` // free | paid
	PDFUploads    int       `db:"pdf_uploads" json:"pdf_uploads"`
	QuestionCount int       `db:"question_count" json:"question_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents a user-uploaded document and its extracted text.
type Document struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	FileName   string    `db:"file_name" json:"file_name"`
	Content    string    `db:"content" json:"-"`
	StorageURL string    `db:"storage_url" json:"storage_url,omitempty"` // S3 URL of the raw upload
	Status     string    `db:"status" json:"status"`                     // indexing | ready | partial
	ChunkCount int       `db:"chunk_count" json:"chunk_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ChunkPayload is the metadata stored next to every indexed vector.
type ChunkPayload struct {
	UserID      string `json:"user_id"`
	DocumentID  string `json:"document_id"`
	FileName    string `json:"filename"`
	Content     string `json:"content"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
}

// IndexedVector is one (id, vector, payload) entry of the vector index.
type IndexedVector struct {
	ID        string
	Embedding []float32
	Payload   ChunkPayload
}

// ScoredChunk is a search hit with its cosine similarity.
type ScoredChunk struct {
	Payload ChunkPayload `json:"payload"`
	Score   float32      `json:"score"`
}

// VectorFilter is an exact-match conjunction over payload fields.
type VectorFilter struct {
	UserID     string
	DocumentID string
}

// ChatTurn is one answered question. Append-only.
type ChatTurn struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	DocumentID *string   `db:"document_id" json:"document_id"`
	FileName   string    `db:"file_name" json:"filename,omitempty"`
	Question   string    `db:"question" json:"question"`
	Answer     string    `db:"answer" json:"answer"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Counter names a quota counter; the value is also its column name.
type Counter string

const (
	CounterPDFUploads Counter = "pdf_uploads"
	CounterQuestions  Counter = "question_count"
)
