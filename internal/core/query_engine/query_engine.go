package query_engine

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/core/quota"
	"github.com/markdave123-py/docqa/internal/models"
)

var tracer = otel.Tracer("query-engine")

// excerptSeparator joins retrieved chunks into the synthesizer's context block.
const excerptSeparator = "\n\n"

// QueryConfig tunes retrieval.
//
// TopK:           max excerpts handed to the synthesizer (e.g., 5).
// ScoreThreshold: minimum cosine similarity for an excerpt to count (e.g., 0.7).
type QueryConfig struct {
	TopK           int
	ScoreThreshold float32
}

type Answerer interface {
	Answer(ctx context.Context, ownerID, documentID, question string) (string, error)
}

// QueryEngine answers questions about one stored document using only that
// document's indexed excerpts.
type QueryEngine struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
	index    core.VectorIndex
	synth    core.Synthesizer
	quota    *quota.Ledger
	cfg      QueryConfig
}

var _ Answerer = (*QueryEngine)(nil)

func NewQueryEngine(db core.DbClient, emb core.EmbeddingProvider, index core.VectorIndex, synth core.Synthesizer, ledger *quota.Ledger, cfg QueryConfig) *QueryEngine {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &QueryEngine{db: db, embedder: emb, index: index, synth: synth, quota: ledger, cfg: cfg}
}

// Answer returns a grounded answer, or core.OutOfScopeAnswer when nothing in
// the document is similar enough to the question. Either outcome consumes one
// question from the owner's quota and is appended to their chat history.
func (q *QueryEngine) Answer(ctx context.Context, ownerID, documentID, question string) (string, error) {
	ctx, span := tracer.Start(ctx, "answer")
	defer span.End()
	span.SetAttributes(attribute.String("doc.id", documentID))

	doc, err := q.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("load document: %w", err)
	}
	if doc == nil || doc.UserID != ownerID {
		return "", core.ErrDocumentNotFound
	}

	if err := q.quota.TryIncrement(ctx, ownerID, models.CounterQuestions); err != nil {
		return "", err
	}

	hits, err := q.retrieve(ctx, ownerID, documentID, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		return "", err
	}
	span.SetAttributes(attribute.Int("hits", len(hits)))

	answer := core.OutOfScopeAnswer
	if len(hits) > 0 {
		answer, err = q.synth.Synthesize(ctx, joinExcerpts(hits), question)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "synthesis failed")
			return "", err
		}
	}

	q.record(ctx, ownerID, documentID, question, answer)
	return answer, nil
}

func (q *QueryEngine) retrieve(ctx context.Context, ownerID, documentID, question string) ([]models.ScoredChunk, error) {
	ctx, span := tracer.Start(ctx, "answer.retrieve")
	defer span.End()

	vec, err := q.embedQuestion(ctx, question)
	if err != nil {
		return nil, err
	}
	return q.index.Search(ctx, vec, models.VectorFilter{UserID: ownerID, DocumentID: documentID}, q.cfg.TopK, q.cfg.ScoreThreshold)
}

func (q *QueryEngine) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	if qe, ok := q.embedder.(core.QueryEmbedder); ok {
		return qe.EmbedQuery(ctx, question)
	}
	vecs, err := q.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for 1 question", core.ErrEmbeddingFailed, len(vecs))
	}
	return vecs[0], nil
}

// record appends the turn to history. A failed write never costs the caller their answer.
func (q *QueryEngine) record(ctx context.Context, ownerID, documentID, question, answer string) {
	turn := &models.ChatTurn{
		ID:         uuid.NewString(),
		UserID:     ownerID,
		DocumentID: &documentID,
		Question:   question,
		Answer:     answer,
	}
	if err := q.db.InsertChatTurn(ctx, turn); err != nil {
		log.Printf("QueryEngine: failed to save chat turn for document %s: %v", documentID, err)
	}
}

// joinExcerpts concatenates hit contents, highest score first.
func joinExcerpts(hits []models.ScoredChunk) string {
	hits = slices.Clone(hits)
	slices.SortStableFunc(hits, func(a, b models.ScoredChunk) int { return cmp.Compare(b.Score, a.Score) })
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.Payload.Content
	}
	return strings.Join(parts, excerptSeparator)
}
