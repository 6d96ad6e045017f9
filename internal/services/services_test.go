package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/core/quota"
	"github.com/markdave123-py/docqa/internal/models"
	"github.com/markdave123-py/docqa/internal/testutil"
)

type recordingQueue struct {
	jobs []string
	err  error
}

func (q *recordingQueue) Enqueue(ownerID, docID string) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, ownerID+"/"+docID)
	return nil
}

func seed(t *testing.T) *testutil.FakeDB {
	t.Helper()
	db := testutil.NewFakeDB()
	if err := db.CreateDocument(context.Background(), &models.Document{ID: "d1", UserID: "u1", FileName: "a.pdf"}); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestDocumentServiceOwnership(t *testing.T) {
	db := seed(t)
	q := &recordingQueue{}
	s := NewDocumentService(db, q)
	ctx := context.Background()

	if _, err := s.Get(ctx, "u2", "d1"); !errors.Is(err, core.ErrDocumentNotFound) {
		t.Fatalf("foreign get: %v", err)
	}
	if err := s.Reindex(ctx, "u2", "d1"); !errors.Is(err, core.ErrDocumentNotFound) {
		t.Fatalf("foreign reindex: %v", err)
	}
	if err := s.Reindex(ctx, "u1", "d1"); err != nil {
		t.Fatal(err)
	}
	if len(q.jobs) != 1 || q.jobs[0] != "u1/d1" {
		t.Fatalf("jobs = %v", q.jobs)
	}

	docs, err := s.ListByUser(ctx, "nobody")
	if err != nil || docs == nil || len(docs) != 0 {
		t.Fatalf("empty list = %v, %v", docs, err)
	}
}

func TestUserServiceUpdateName(t *testing.T) {
	db := testutil.NewFakeDB()
	s := NewUserService(db, quota.NewLedger(db, quota.DefaultLimits))
	ctx := context.Background()

	for _, bad := range []string{"", "   ", strings.Repeat("n", maxNameLength+1)} {
		if err := s.UpdateName(ctx, "u1", bad); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("%q: got %v", bad, err)
		}
	}
	if err := s.UpdateName(ctx, "u1", "  Ada  "); err != nil {
		t.Fatal(err)
	}
	st, err := s.Status(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if st.Name != "Ada" || st.RemainingUploads != 1 || st.RemainingQuestions != 4 {
		t.Fatalf("status = %+v", st)
	}
}

func TestUserServiceHistoryFilter(t *testing.T) {
	db := seed(t)
	ctx := context.Background()
	d1, d2 := "d1", "d2"
	_ = db.CreateDocument(ctx, &models.Document{ID: d2, UserID: "u1", FileName: "b.pdf"})
	for _, turn := range []*models.ChatTurn{
		{ID: "t1", UserID: "u1", DocumentID: &d1, Question: "q1", Answer: "a1"},
		{ID: "t2", UserID: "u1", DocumentID: &d2, Question: "q2", Answer: "a2"},
		{ID: "t3", UserID: "u2", DocumentID: &d1, Question: "q3", Answer: "a3"},
	} {
		if err := db.InsertChatTurn(ctx, turn); err != nil {
			t.Fatal(err)
		}
	}
	s := NewUserService(db, quota.NewLedger(db, quota.DefaultLimits))

	all, _ := s.History(ctx, "u1", "")
	if len(all) != 2 || all[0].ID != "t1" || all[1].ID != "t2" {
		t.Fatalf("all = %+v", all)
	}
	one, _ := s.History(ctx, "u1", "d2")
	if len(one) != 1 || one[0].FileName != "b.pdf" {
		t.Fatalf("filtered = %+v", one)
	}
	none, _ := s.History(ctx, "u3", "")
	if none == nil || len(none) != 0 {
		t.Fatalf("none = %v", none)
	}
}
