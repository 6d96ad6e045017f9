package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/markdave123-py/docqa/internal/core"
)

// Embedding tasks. Query and document vectors of the same text are cached apart.
const (
	taskDocument = "document"
	taskQuery    = "query"
)

// VectorCache stores embeddings by opaque key. Lookups that fail are treated as misses.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// Embedder is the embedding provider the pipelines use. It puts the raw provider
// behind a Guard, enforces the index dimension and optionally caches vectors.
type Embedder struct {
	provider core.EmbeddingProvider
	guard    *Guard
	cache    VectorCache
	model    string
	dim      int
}

// NewEmbedder builds an Embedder producing dim-length vectors. guard and cache may be nil.
func NewEmbedder(provider core.EmbeddingProvider, guard *Guard, cache VectorCache, model string, dim int) *Embedder {
	return &Embedder{provider: provider, guard: guard, cache: cache, model: model, dim: dim}
}

// Dim is the fixed dimension of every vector this Embedder returns.
func (e *Embedder) Dim() int {
	return e.dim
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts returns one dim-length vector per document text, in order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, texts, taskDocument)
}

// EmbedQuery embeds a search question, using the provider's query path when it has one.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, taskQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Embedder) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	keys := make([]string, len(texts))
	var missIdx []int
	for i, t := range texts {
		keys[i] = e.cacheKey(task, t)
		if e.cache != nil {
			vec, ok, err := e.cache.Get(ctx, keys[i])
			if err != nil {
				log.Printf("Embedder: cache get failed: %v", err)
			}
			if ok && len(vec) == e.dim {
				out[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	missing := make([]string, len(missIdx))
	for j, i := range missIdx {
		missing[j] = texts[i]
	}

	var vecs [][]float32
	err := e.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		vecs, err = e.call(ctx, missing, task)
		return err
	})
	if err != nil {
		if errors.Is(err, core.ErrProviderTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingFailed, err)
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", core.ErrEmbeddingFailed, len(vecs), len(missing))
	}

	for j, i := range missIdx {
		vec, err := e.fit(vecs[j])
		if err != nil {
			return nil, err
		}
		out[i] = vec
		if e.cache != nil {
			if err := e.cache.Set(ctx, keys[i], vec); err != nil {
				log.Printf("Embedder: cache set failed: %v", err)
			}
		}
	}
	return out, nil
}

func (e *Embedder) call(ctx context.Context, texts []string, task string) ([][]float32, error) {
	qe, ok := e.provider.(core.QueryEmbedder)
	if task != taskQuery || !ok {
		return e.provider.EmbedTexts(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := qe.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// fit applies the dimension policy: longer vectors keep their first dim components,
// shorter ones are rejected.
func (e *Embedder) fit(vec []float32) ([]float32, error) {
	switch {
	case len(vec) == e.dim:
		return vec, nil
	case len(vec) > e.dim:
		return vec[:e.dim:e.dim], nil
	default:
		return nil, fmt.Errorf("%w: provider returned %d dimensions, index expects %d", core.ErrEmbeddingFailed, len(vec), e.dim)
	}
}

func (e *Embedder) cacheKey(task, text string) string {
	h := sha256.New()
	h.Write([]byte(e.model))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(e.dim)))
	h.Write([]byte{'|'})
	h.Write([]byte(task))
	h.Write([]byte{'|'})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

var (
	_ core.EmbeddingProvider = (*Embedder)(nil)
	_ core.QueryEmbedder     = (*Embedder)(nil)
)
