package query_engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/core/quota"
	"github.com/markdave123-py/docqa/internal/core/vectorindex"
	"github.com/markdave123-py/docqa/internal/models"
	"github.com/markdave123-py/docqa/internal/testutil"
)

const testDim = 64

var leaseChunks = []string{
	"The tenant shall pay rent on the first day of every month.",
	"The landlord is responsible for structural repairs to the building.",
	"Either party may terminate this lease with sixty days written notice.",
}

type queryFixture struct {
	db    *testutil.FakeDB
	emb   *testutil.HashEmbedder
	index *vectorindex.MemoryIndex
	synth *testutil.RecordingSynthesizer
	qe    *QueryEngine
	docID string
}

func newQueryFixture(t *testing.T) *queryFixture {
	t.Helper()
	ctx := context.Background()
	f := &queryFixture{
		db:    testutil.NewFakeDB(),
		emb:   &testutil.HashEmbedder{Dim: testDim},
		index: vectorindex.NewMemoryIndex(),
		synth: &testutil.RecordingSynthesizer{Reply: "Rent is due on the first day of every month."},
		docID: "doc-1",
	}
	if err := f.db.CreateDocument(ctx, &models.Document{ID: f.docID, UserID: "u1", FileName: "lease.pdf", Status: models.StatusReady}); err != nil {
		t.Fatal(err)
	}
	if err := f.index.EnsureCollection(ctx, testDim, core.DistanceCosine); err != nil {
		t.Fatal(err)
	}
	var points []models.IndexedVector
	for i, c := range leaseChunks {
		points = append(points, models.IndexedVector{
			ID:        vectorindex.PointID("u1", f.docID, i),
			Embedding: f.emb.Vector(c),
			Payload:   models.ChunkPayload{UserID: "u1", DocumentID: f.docID, FileName: "lease.pdf", Content: c, ChunkIndex: i, TotalChunks: len(leaseChunks)},
		})
	}
	if err := f.index.Upsert(ctx, points); err != nil {
		t.Fatal(err)
	}
	f.qe = NewQueryEngine(f.db, f.emb, f.index, f.synth, quota.NewLedger(f.db, quota.DefaultLimits),
		QueryConfig{TopK: 5, ScoreThreshold: 0.7})
	return f
}

func TestAnswerRoundTrip(t *testing.T) {
	f := newQueryFixture(t)
	got, err := f.qe.Answer(context.Background(), "u1", f.docID, leaseChunks[0])
	if err != nil {
		t.Fatal(err)
	}
	if got != f.synth.Reply || f.synth.Calls != 1 {
		t.Fatalf("answer %q after %d synthesizer calls", got, f.synth.Calls)
	}
	if !strings.Contains(f.synth.Context, leaseChunks[0]) {
		t.Fatalf("context %q is missing the matching chunk", f.synth.Context)
	}
	if strings.Contains(f.synth.Context, leaseChunks[1]) {
		t.Fatalf("context %q includes a chunk below the threshold", f.synth.Context)
	}
}

func TestAnswerOutOfScopeSkipsSynthesizer(t *testing.T) {
	f := newQueryFixture(t)
	got, err := f.qe.Answer(context.Background(), "u1", f.docID, "What colour is the sky on Mars?")
	if err != nil {
		t.Fatal(err)
	}
	if got != core.OutOfScopeAnswer {
		t.Fatalf("got %q", got)
	}
	if f.synth.Calls != 0 {
		t.Fatal("synthesizer called without supporting excerpts")
	}
	turns, _ := f.db.ListChatTurns(context.Background(), "u1", &f.docID)
	if len(turns) != 1 || turns[0].Answer != core.OutOfScopeAnswer {
		t.Fatalf("history = %+v", turns)
	}
}

func TestAnswerRecordsHistory(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()
	if _, err := f.qe.Answer(ctx, "u1", f.docID, leaseChunks[2]); err != nil {
		t.Fatal(err)
	}
	turns, _ := f.db.ListChatTurns(ctx, "u1", nil)
	if len(turns) != 1 {
		t.Fatalf("turns = %d", len(turns))
	}
	tr := turns[0]
	if tr.Question != leaseChunks[2] || tr.Answer != f.synth.Reply || tr.DocumentID == nil || *tr.DocumentID != f.docID || tr.FileName != "lease.pdf" {
		t.Fatalf("turn = %+v", tr)
	}
}

func TestAnswerEmbedsQuestionAsQuery(t *testing.T) {
	f := newQueryFixture(t)
	calls := f.emb.Calls()
	if _, err := f.qe.Answer(context.Background(), "u1", f.docID, leaseChunks[1]); err != nil {
		t.Fatal(err)
	}
	if f.emb.QueryCalls() != 1 || f.emb.Calls() != calls+1 {
		t.Fatalf("query calls = %d, total calls = %d, want 1 query and no document embedding",
			f.emb.QueryCalls(), f.emb.Calls()-calls)
	}
}

func TestAnswerHistoryFailureIsNotFatal(t *testing.T) {
	f := newQueryFixture(t)
	f.db.FailInsertTurn = true
	got, err := f.qe.Answer(context.Background(), "u1", f.docID, leaseChunks[0])
	if err != nil || got != f.synth.Reply {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestAnswerQuotaExceeded(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()
	for i := range quota.DefaultLimits.Questions {
		if _, err := f.qe.Answer(ctx, "u1", f.docID, leaseChunks[i%len(leaseChunks)]); err != nil {
			t.Fatalf("question %d: %v", i+1, err)
		}
	}
	calls := f.emb.Calls()
	_, err := f.qe.Answer(ctx, "u1", f.docID, leaseChunks[0])
	if !errors.Is(err, core.ErrQuotaExceeded) {
		t.Fatalf("got %v, want ErrQuotaExceeded", err)
	}
	if f.emb.Calls() != calls {
		t.Fatal("question embedded after the quota was exhausted")
	}
}

func TestAnswerUnknownOrForeignDocument(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()
	for _, tc := range []struct{ owner, doc string }{{"u2", f.docID}, {"u1", "nope"}} {
		if _, err := f.qe.Answer(ctx, tc.owner, tc.doc, leaseChunks[0]); !errors.Is(err, core.ErrDocumentNotFound) {
			t.Fatalf("%+v: got %v", tc, err)
		}
	}
	if st, _ := quota.NewLedger(f.db, quota.DefaultLimits).Status(ctx, "u1"); st.QuestionCount != 0 {
		t.Fatalf("question charged for a bad document id: %d", st.QuestionCount)
	}
}

func TestAnswerPropagatesProviderErrors(t *testing.T) {
	f := newQueryFixture(t)
	f.synth.Err = core.ErrProviderTimeout
	if _, err := f.qe.Answer(context.Background(), "u1", f.docID, leaseChunks[0]); !errors.Is(err, core.ErrProviderTimeout) {
		t.Fatalf("got %v", err)
	}
	turns, _ := f.db.ListChatTurns(context.Background(), "u1", nil)
	if len(turns) != 0 {
		t.Fatal("failed answer was recorded")
	}
}

func TestJoinExcerptsOrdersByScore(t *testing.T) {
	hits := []models.ScoredChunk{
		{Payload: models.ChunkPayload{Content: "low"}, Score: 0.71},
		{Payload: models.ChunkPayload{Content: "high"}, Score: 0.95},
		{Payload: models.ChunkPayload{Content: "mid"}, Score: 0.8},
	}
	if got := joinExcerpts(hits); got != "high\n\nmid\n\nlow" {
		t.Fatalf("got %q", got)
	}
	if hits[0].Payload.Content != "low" {
		t.Fatal("input slice reordered")
	}
}
