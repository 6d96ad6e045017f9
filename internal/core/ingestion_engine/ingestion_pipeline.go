package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docqa/internal/core"
	objectclient "github.com/markdave123-py/docqa/internal/core/object-client"
	"github.com/markdave123-py/docqa/internal/core/quota"
	"github.com/markdave123-py/docqa/internal/core/vectorindex"
	"github.com/markdave123-py/docqa/internal/models"
)

var tracer = otel.Tracer("ingestion-engine")

// NewDocumentIngestor constructs the ingestor with a bounded re-index queue (64).
// obj may be nil, in which case raw uploads are not archived.
func NewDocumentIngestor(
	db core.DbClient,
	obj objectclient.ObjectClient,
	emb core.EmbeddingProvider,
	extractor core.TextExtractor,
	index core.VectorIndex,
	ledger *quota.Ledger,
	cfg *IngestConfig,
) *DocumentIngestor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 1
	}
	return &DocumentIngestor{
		db: db, obj: obj, embedder: emb, extractor: extractor, index: index, quota: ledger, cfg: cfg,
		chunker: NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		jobs:    make(chan reindexJob, 64),
	}
}

// Ingest makes an uploaded PDF searchable for its owner: quota, extraction,
// persistence, chunking, embedding and indexing, in that order.
//
// Once the document row exists, a failure while embedding or indexing returns
// a *core.PartiallyIndexedError and leaves the document in status "partial".
func (i *DocumentIngestor) Ingest(ctx context.Context, ownerID, filename string, data []byte) (*IngestResult, error) {
	ctx, span := tracer.Start(ctx, "ingest")
	defer span.End()
	span.SetAttributes(attribute.String("doc.filename", filename), attribute.Int("doc.bytes", len(data)))

	if err := i.quota.TryIncrement(ctx, ownerID, models.CounterPDFUploads); err != nil {
		return nil, err
	}

	text, err := i.extract(ctx, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		return nil, err
	}

	chunks, err := i.chunker.Split(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrExtractionFailed, err)
	}

	doc := &models.Document{
		ID:       uuid.NewString(),
		UserID:   ownerID,
		FileName: filename,
		Content:  text,
		Status:   models.StatusIndexing,
	}
	doc.StorageURL = i.archive(ctx, doc, data)

	if err := i.db.CreateDocument(ctx, doc); err != nil {
		i.discardArchive(ctx, doc)
		return nil, fmt.Errorf("store document: %w", err)
	}
	span.SetAttributes(attribute.String("doc.id", doc.ID))

	if err := i.indexChunks(ctx, doc, chunks); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "indexing failed")
		return nil, err
	}
	doc.Status = models.StatusReady
	doc.ChunkCount = len(chunks)

	log.Printf("DocumentIngestor: document %s (%s) indexed with %d chunks", doc.ID, filename, len(chunks))
	return &IngestResult{Document: doc, ChunksCreated: len(chunks)}, nil
}

// Reingest rebuilds the vectors of a stored document from its saved text.
// Prior vectors of the document are removed first; no quota is consumed.
func (i *DocumentIngestor) Reingest(ctx context.Context, ownerID, docID string) (int, error) {
	ctx, span := tracer.Start(ctx, "reingest")
	defer span.End()
	span.SetAttributes(attribute.String("doc.id", docID))

	doc, err := i.db.GetDocumentByID(ctx, docID)
	if err != nil {
		return 0, fmt.Errorf("load document: %w", err)
	}
	if doc == nil || doc.UserID != ownerID {
		return 0, core.ErrDocumentNotFound
	}

	chunks, err := i.chunker.Split(doc.Content)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrExtractionFailed, err)
	}

	if err := i.ensureIndex(ctx); err != nil {
		return 0, err
	}
	if err := i.index.DeleteDocument(ctx, models.VectorFilter{UserID: ownerID, DocumentID: docID}); err != nil {
		return 0, err
	}
	if err := i.db.UpdateDocumentStatus(ctx, docID, models.StatusIndexing, 0); err != nil {
		return 0, fmt.Errorf("update status: %w", err)
	}

	if err := i.indexChunks(ctx, doc, chunks); err != nil {
		span.RecordError(err)
		return 0, err
	}
	return len(chunks), nil
}

func (i *DocumentIngestor) extract(ctx context.Context, data []byte) (string, error) {
	ctx, span := tracer.Start(ctx, "ingest.extract")
	defer span.End()
	text, err := i.extractor.Extract(ctx, data)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.Int("text.runes", len([]rune(text))))
	return text, nil
}

// archive stores the raw upload and returns its URL. Archiving is best effort.
func (i *DocumentIngestor) archive(ctx context.Context, doc *models.Document, data []byte) string {
	if i.obj == nil || i.cfg.Bucket == "" {
		return ""
	}
	url, err := i.obj.UploadFile(ctx, i.cfg.Bucket, objectKey(doc.UserID, doc.ID, doc.FileName), bytes.NewReader(data), "application/pdf")
	if err != nil {
		log.Printf("DocumentIngestor: archiving %s failed, continuing without a stored copy: %v", doc.ID, err)
		return ""
	}
	return url
}

// discardArchive removes an archived upload whose document row was never written.
func (i *DocumentIngestor) discardArchive(ctx context.Context, doc *models.Document) {
	if doc.StorageURL == "" {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := i.obj.DeleteFile(dctx, i.cfg.Bucket, objectKey(doc.UserID, doc.ID, doc.FileName)); err != nil {
		log.Printf("DocumentIngestor: failed to remove orphaned upload for %s: %v", doc.ID, err)
	}
}

// indexChunks embeds and upserts chunks batch by batch, then records the
// final document status. Batches are committed strictly in order.
func (i *DocumentIngestor) indexChunks(ctx context.Context, doc *models.Document, chunks []string) error {
	ctx, span := tracer.Start(ctx, "ingest.index")
	defer span.End()
	span.SetAttributes(attribute.Int("chunks", len(chunks)))

	if len(chunks) == 0 {
		return i.db.UpdateDocumentStatus(ctx, doc.ID, models.StatusReady, 0)
	}

	if err := i.ensureIndex(ctx); err != nil {
		return i.partial(ctx, doc, 0, batchCount(len(chunks), i.cfg.BatchSize), err)
	}

	total := batchCount(len(chunks), i.cfg.BatchSize)
	committed := 0
	for start := 0; start < len(chunks); start += i.cfg.BatchSize {
		end := min(start+i.cfg.BatchSize, len(chunks))

		points, err := i.embedBatch(ctx, doc, chunks, start, end)
		if err != nil {
			return i.partial(ctx, doc, committed, total, err)
		}
		if err := i.index.Upsert(ctx, points); err != nil {
			return i.partial(ctx, doc, committed, total, err)
		}
		committed++
	}

	if err := i.db.UpdateDocumentStatus(ctx, doc.ID, models.StatusReady, len(chunks)); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// embedBatch embeds chunks[start:end] with bounded concurrency. Each worker
// writes into the slots of its own ordinals so output order never depends on
// completion order.
func (i *DocumentIngestor) embedBatch(ctx context.Context, doc *models.Document, chunks []string, start, end int) ([]models.IndexedVector, error) {
	points := make([]models.IndexedVector, end-start)
	for k := range points {
		ordinal := start + k
		points[k] = models.IndexedVector{
			ID: vectorindex.PointID(doc.UserID, doc.ID, ordinal),
			Payload: models.ChunkPayload{
				UserID:      doc.UserID,
				DocumentID:  doc.ID,
				FileName:    doc.FileName,
				Content:     chunks[ordinal],
				ChunkIndex:  ordinal,
				TotalChunks: len(chunks),
			},
		}
	}

	per := max((len(points)+i.cfg.EmbedConcurrency-1)/i.cfg.EmbedConcurrency, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.EmbedConcurrency)
	for lo := 0; lo < len(points); lo += per {
		hi := min(lo+per, len(points))
		g.Go(func() error {
			texts := make([]string, hi-lo)
			for k := lo; k < hi; k++ {
				texts[k-lo] = points[k].Payload.Content
			}
			vecs, err := i.embedder.EmbedTexts(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("%w: got %d vectors for %d chunks", core.ErrEmbeddingFailed, len(vecs), len(texts))
			}
			for k := lo; k < hi; k++ {
				points[k].Embedding = vecs[k-lo]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

func (i *DocumentIngestor) partial(ctx context.Context, doc *models.Document, committed, total int, cause error) error {
	// Every committed batch is a full one; the last batch is the only short one.
	chunkCount := committed * i.cfg.BatchSize
	// The caller's context may be the reason we failed; the status write gets its own.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := i.db.UpdateDocumentStatus(sctx, doc.ID, models.StatusPartial, chunkCount); err != nil {
		log.Printf("DocumentIngestor: failed to mark %s partial: %v", doc.ID, err)
	}
	log.Printf("DocumentIngestor: document %s partially indexed (%d/%d batches): %v", doc.ID, committed, total, cause)
	return &core.PartiallyIndexedError{DocumentID: doc.ID, Committed: committed, Total: total, Err: cause}
}

// ensureIndex creates the vector collection once per process.
func (i *DocumentIngestor) ensureIndex(ctx context.Context) error {
	i.ensureMu.Lock()
	defer i.ensureMu.Unlock()
	if i.indexReady {
		return nil
	}
	if err := i.index.EnsureCollection(ctx, i.cfg.EmbedDim, core.DistanceCosine); err != nil {
		return fmt.Errorf("ensure vector collection: %w", err)
	}
	i.indexReady = true
	return nil
}

func batchCount(n, size int) int {
	return (n + size - 1) / size
}

// objectKey creates a consistent S3 key layout.
func objectKey(userID, docID, filename string) string {
	filename = path.Base(strings.TrimSpace(filename))
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("users", userID, "documents", docID, filename)
}
