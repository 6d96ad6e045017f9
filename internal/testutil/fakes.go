// Package testutil provides in-memory stand-ins for the persistence and model
// provider boundaries, shared by package tests.
package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/core/quota"
	"github.com/markdave123-py/docqa/internal/models"
)

// FakeDB implements core.DbClient on top of quota.MemoryStore.
type FakeDB struct {
	*quota.MemoryStore

	mu    sync.Mutex
	docs  map[string]*models.Document
	turns []models.ChatTurn

	FailInsertTurn bool
	FailCreate     bool
}

func NewFakeDB() *FakeDB {
	return &FakeDB{MemoryStore: quota.NewMemoryStore(), docs: make(map[string]*models.Document)}
}

func (f *FakeDB) CreateDocument(_ context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreate {
		return errors.New("create document failed")
	}
	now := time.Now()
	doc.CreatedAt, doc.UpdatedAt = now, now
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *FakeDB) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *FakeDB) ListDocumentsByUser(_ context.Context, userID string) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Document
	for _, d := range f.docs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	slices.SortFunc(out, func(a, b models.Document) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (f *FakeDB) UpdateDocumentStatus(_ context.Context, id string, status string, chunkCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return errors.New("document not found: " + id)
	}
	d.Status, d.ChunkCount, d.UpdatedAt = status, chunkCount, time.Now()
	return nil
}

func (f *FakeDB) InsertChatTurn(_ context.Context, turn *models.ChatTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailInsertTurn {
		return errors.New("insert chat turn failed")
	}
	turn.CreatedAt = time.Now()
	f.turns = append(f.turns, *turn)
	return nil
}

func (f *FakeDB) ListChatTurns(_ context.Context, userID string, documentID *string) ([]models.ChatTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChatTurn
	for _, t := range f.turns {
		if t.UserID != userID {
			continue
		}
		if documentID != nil && (t.DocumentID == nil || *t.DocumentID != *documentID) {
			continue
		}
		if t.DocumentID != nil {
			if d, ok := f.docs[*t.DocumentID]; ok {
				t.FileName = d.FileName
			}
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *FakeDB) Ping(context.Context) error { return nil }
func (f *FakeDB) Close() error               { return nil }

// Document returns the stored copy of a document, or nil.
func (f *FakeDB) Document(id string) *models.Document {
	d, _ := f.GetDocumentByID(context.Background(), id)
	return d
}

var _ core.DbClient = (*FakeDB)(nil)

// HashEmbedder is a deterministic bag-of-words embedder: identical texts map
// to identical vectors and texts sharing no words are orthogonal.
type HashEmbedder struct {
	Dim int

	mu      sync.Mutex
	calls   int
	queries int
	// FailAfter makes every call after the first FailAfter calls fail (0 = never).
	FailAfter int
}

var ErrFakeEmbedding = errors.New("fake embedding failure")

func (h *HashEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if err := h.count(false); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

// EmbedQuery returns the same vector EmbedTexts would, counted as a query call.
func (h *HashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if err := h.count(true); err != nil {
		return nil, err
	}
	return h.vector(text), nil
}

func (h *HashEmbedder) count(query bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if query {
		h.queries++
	}
	if h.FailAfter > 0 && h.calls > h.FailAfter {
		return ErrFakeEmbedding
	}
	return nil
}

// Calls counts every provider call, document or query.
func (h *HashEmbedder) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func (h *HashEmbedder) QueryCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.queries
}

// Vector embeds text without counting a provider call.
func (h *HashEmbedder) Vector(text string) []float32 {
	return h.vector(text)
}

func (h *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, h.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		sum := fnv.New32a()
		sum.Write([]byte(w))
		v[sum.Sum32()%uint32(h.Dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range v {
			v[i] /= n
		}
	}
	return v
}

var (
	_ core.EmbeddingProvider = (*HashEmbedder)(nil)
	_ core.QueryEmbedder     = (*HashEmbedder)(nil)
)

// RecordingSynthesizer answers with a fixed reply and remembers its inputs.
type RecordingSynthesizer struct {
	Reply string
	Err   error

	mu        sync.Mutex
	Calls     int
	Context   string
	Questions []string
}

func (r *RecordingSynthesizer) Synthesize(_ context.Context, excerpts, question string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	r.Context = excerpts
	r.Questions = append(r.Questions, question)
	if r.Err != nil {
		return "", r.Err
	}
	return r.Reply, nil
}

var _ core.Synthesizer = (*RecordingSynthesizer)(nil)

// StaticExtractor returns Text, or Err when set.
type StaticExtractor struct {
	Text string
	Err  error
}

func (s StaticExtractor) Extract(context.Context, []byte) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Text, nil
}

var _ core.TextExtractor = StaticExtractor{}
