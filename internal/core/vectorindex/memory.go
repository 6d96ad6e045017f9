package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

// MemoryIndex is an in-process vector index using brute-force cosine similarity.
type MemoryIndex struct {
	mu     sync.RWMutex
	dim    int
	points map[string]models.IndexedVector
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[string]models.IndexedVector)}
}

func (m *MemoryIndex) EnsureCollection(_ context.Context, dim int, metric core.Distance) error {
	if dim <= 0 {
		return errors.New("invalid dimension")
	}
	if metric != core.DistanceCosine {
		return fmt.Errorf("unsupported distance %q", metric)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dim != 0 && m.dim != dim {
		return fmt.Errorf("collection has dimension %d, requested %d", m.dim, dim)
	}
	m.dim = dim
	return nil
}

func (m *MemoryIndex) Upsert(_ context.Context, points []models.IndexedVector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		if m.dim != 0 && len(p.Embedding) != m.dim {
			return fmt.Errorf("%w: vector dimension %d, collection has %d", core.ErrIndexWriteFailed, len(p.Embedding), m.dim)
		}
	}
	for _, p := range points {
		p.Embedding = slices.Clone(p.Embedding)
		m.points[p.ID] = p
	}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, vec []float32, filter models.VectorFilter, limit int, threshold float32) ([]models.ScoredChunk, error) {
	if limit <= 0 {
		limit = 5
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []models.ScoredChunk
	for _, p := range m.points {
		if !matches(p.Payload, filter) {
			continue
		}
		score := cosine(p.Embedding, vec)
		if score < threshold {
			continue
		}
		hits = append(hits, models.ScoredChunk{Payload: p.Payload, Score: score})
	}
	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryIndex) DeleteDocument(_ context.Context, filter models.VectorFilter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if matches(p.Payload, filter) {
			delete(m.points, id)
		}
	}
	return nil
}

// Len reports the number of stored vectors.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

// matches treats empty filter fields as unconstrained.
func matches(p models.ChunkPayload, f models.VectorFilter) bool {
	return (f.UserID == "" || p.UserID == f.UserID) &&
		(f.DocumentID == "" || p.DocumentID == f.DocumentID)
}

func cosine(a, b []float32) float32 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// sortHits orders by descending score, then ascending chunk index.
func sortHits(hits []models.ScoredChunk) {
	slices.SortStableFunc(hits, func(x, y models.ScoredChunk) int {
		switch {
		case x.Score > y.Score:
			return -1
		case x.Score < y.Score:
			return 1
		}
		return x.Payload.ChunkIndex - y.Payload.ChunkIndex
	})
}

var _ core.VectorIndex = (*MemoryIndex)(nil)
