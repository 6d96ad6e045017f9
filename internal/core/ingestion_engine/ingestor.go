package ingestion_engine

import (
	"context"
	"errors"
	"log"
	"time"
)

// ErrQueueFull is returned by Enqueue when the re-index queue has no room.
var ErrQueueFull = errors.New("reindex queue is full")

type Ingestor interface {
	Ingest(ctx context.Context, ownerID, filename string, data []byte) (*IngestResult, error)
	Reingest(ctx context.Context, ownerID, docID string) (int, error)
	Start(ctx context.Context, numWorkers int)
	Enqueue(ownerID, docID string) error
}

var _ Ingestor = (*DocumentIngestor)(nil)

// Start runs numWorkers goroutines draining the re-index queue until ctx is done.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					log.Printf("DocumentIngestor: worker %d shutting down.", w)
					return
				case job := <-i.jobs:
					log.Printf("DocumentIngestor: re-indexing document %s on worker %d", job.DocumentID, w)
					if err := i.processOne(ctx, job); err != nil {
						log.Printf("DocumentIngestor: error re-indexing document %s: %v", job.DocumentID, err)
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a stored document for re-indexing without blocking.
func (i *DocumentIngestor) Enqueue(ownerID, docID string) error {
	select {
	case i.jobs <- reindexJob{OwnerID: ownerID, DocumentID: docID}:
		return nil
	default:
		return ErrQueueFull
	}
}

// processOne runs one re-index job with its own deadline, detached from the
// request that enqueued it.
func (i *DocumentIngestor) processOne(ctx context.Context, job reindexJob) error {
	procCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Minute)
	defer cancel()

	n, err := i.Reingest(procCtx, job.OwnerID, job.DocumentID)
	if err != nil {
		return err
	}
	log.Printf("DocumentIngestor: document %s re-indexed with %d chunks", job.DocumentID, n)
	return nil
}
