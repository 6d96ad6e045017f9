package ingestion_engine

import (
	"sync"

	"github.com/markdave123-py/docqa/internal/core"
	objectclient "github.com/markdave123-py/docqa/internal/core/object-client"
	"github.com/markdave123-py/docqa/internal/core/quota"
	"github.com/markdave123-py/docqa/internal/models"
)

// IngestConfig tunes the ingestion pipeline.
//
// ChunkSize:        max runes per chunk (e.g., 800).
// ChunkOverlap:     runes shared by adjacent chunks (e.g., 200).
// BatchSize:        chunks per vector index upsert (e.g., 100).
// EmbedConcurrency: parallel embedding calls inside one batch.
// EmbedDim:         dimension of the vector collection.
// Bucket:           object storage bucket for raw uploads; empty disables archiving.
type IngestConfig struct {
	ChunkSize        int
	ChunkOverlap     int
	BatchSize        int
	EmbedConcurrency int
	EmbedDim         int
	Bucket           string
}

// IngestResult is what a successful ingestion reports back.
type IngestResult struct {
	Document      *models.Document
	ChunksCreated int
}

// reindexJob identifies a stored document whose vectors should be rebuilt.
type reindexJob struct {
	OwnerID    string
	DocumentID string
}

// DocumentIngestor orchestrates ingestion:
//
// db:        persistence for documents.
// obj:       object storage for raw uploads (optional).
// embedder:  embedding provider (dimension already enforced).
// extractor: PDF bytes to plain text.
// index:     vector index receiving the chunk vectors.
// quota:     per-user upload ceilings.
// jobs:      in-memory queue of documents to re-index.
type DocumentIngestor struct {
	db        core.DbClient
	obj       objectclient.ObjectClient
	embedder  core.EmbeddingProvider
	extractor core.TextExtractor
	index     core.VectorIndex
	quota     *quota.Ledger
	chunker   *Chunker
	cfg       *IngestConfig
	jobs      chan reindexJob

	ensureMu   sync.Mutex
	indexReady bool
}
