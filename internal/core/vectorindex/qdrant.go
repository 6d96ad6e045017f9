package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

// QdrantIndex is a minimal REST client to a Qdrant collection.
type QdrantIndex struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewQdrantIndex(cfg QdrantConfig) *QdrantIndex {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantIndex{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

type qdrantPayload struct {
	UserID      string `json:"user_id"`
	DocumentID  string `json:"document_id"`
	FileName    string `json:"filename"`
	Content     string `json:"content"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
}

// EnsureCollection creates the collection when it does not exist. A creation
// race lost to another caller (409) counts as success.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, dim int, metric core.Distance) error {
	if dim <= 0 {
		return errors.New("invalid dimension")
	}

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := q.do(ctx, http.MethodGet, q.collectionURL(), nil, &info)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	if status == http.StatusOK {
		if got := info.Result.Config.Params.Vectors.Size; got != 0 && got != dim {
			return fmt.Errorf("qdrant collection %s has dimension %d, configured dimension is %d", q.collection, got, dim)
		}
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": string(metric),
		},
	}
	status, err = q.do(ctx, http.MethodPut, q.collectionURL(), body, nil)
	if status == http.StatusConflict {
		return nil
	}
	return err
}

// Upsert waits for Qdrant to apply the batch before returning.
func (q *QdrantIndex) Upsert(ctx context.Context, points []models.IndexedVector) error {
	if len(points) == 0 {
		return nil
	}
	out := make([]map[string]any, len(points))
	for i, p := range points {
		out[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Embedding,
			"payload": qdrantPayload(p.Payload),
		}
	}
	body := map[string]any{"points": out}
	if _, err := q.do(ctx, http.MethodPut, q.collectionURL()+"/points?wait=true", body, nil); err != nil {
		return fmt.Errorf("%w: %w", core.ErrIndexWriteFailed, err)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, vec []float32, filter models.VectorFilter, limit int, threshold float32) ([]models.ScoredChunk, error) {
	if limit <= 0 {
		limit = 5
	}
	req := map[string]any{
		"vector":          vec,
		"limit":           limit,
		"with_payload":    true,
		"score_threshold": threshold,
		"filter":          mustFilter(filter),
	}
	var resp struct {
		Result []struct {
			Score   float32       `json:"score"`
			Payload qdrantPayload `json:"payload"`
		} `json:"result"`
	}
	if _, err := q.do(ctx, http.MethodPost, q.collectionURL()+"/points/search", req, &resp); err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	hits := make([]models.ScoredChunk, 0, len(resp.Result))
	for _, r := range resp.Result {
		if r.Score < threshold {
			continue
		}
		hits = append(hits, models.ScoredChunk{Payload: models.ChunkPayload(r.Payload), Score: r.Score})
	}
	sortHits(hits)
	return hits, nil
}

func (q *QdrantIndex) DeleteDocument(ctx context.Context, filter models.VectorFilter) error {
	body := map[string]any{"filter": mustFilter(filter)}
	if _, err := q.do(ctx, http.MethodPost, q.collectionURL()+"/points/delete?wait=true", body, nil); err != nil {
		return fmt.Errorf("%w: %w", core.ErrIndexWriteFailed, err)
	}
	return nil
}

func (q *QdrantIndex) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", q.url, q.collection)
}

func mustFilter(f models.VectorFilter) map[string]any {
	var must []map[string]any
	if f.UserID != "" {
		must = append(must, map[string]any{"key": "user_id", "match": map[string]any{"value": f.UserID}})
	}
	if f.DocumentID != "" {
		must = append(must, map[string]any{"key": "document_id", "match": map[string]any{"value": f.DocumentID}})
	}
	return map[string]any{"must": must}
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
// The HTTP status is returned even when it is an error status.
func (q *QdrantIndex) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s %s", method, url, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

var _ core.VectorIndex = (*QdrantIndex)(nil)
