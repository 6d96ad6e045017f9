package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

func TestQdrantEnsureCreatesMissingCollection(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if r.Header.Get("api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		switch r.Method {
		case http.MethodGet:
			http.NotFound(w, r)
		case http.MethodPut:
			var body struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Vectors.Size != 768 || body.Vectors.Distance != "Cosine" {
				t.Errorf("unexpected create body %+v", body)
			}
			w.Write([]byte(`{"result":true}`))
		}
	}))
	defer srv.Close()

	q := NewQdrantIndex(QdrantConfig{URL: srv.URL, APIKey: "secret", Collection: "legal_documents"})
	if err := q.EnsureCollection(context.Background(), 768, core.DistanceCosine); err != nil {
		t.Fatal(err)
	}
	want := "GET /collections/legal_documents,PUT /collections/legal_documents"
	if got := strings.Join(calls, ","); got != want {
		t.Fatalf("calls = %s, want %s", got, want)
	}
}

func TestQdrantEnsureRejectsOtherDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":1536,"distance":"Cosine"}}}}}`))
	}))
	defer srv.Close()

	q := NewQdrantIndex(QdrantConfig{URL: srv.URL, Collection: "c"})
	if err := q.EnsureCollection(context.Background(), 768, core.DistanceCosine); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestQdrantSearchSendsFilterAndOrdersTies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/c/points/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Limit          int     `json:"limit"`
			ScoreThreshold float32 `json:"score_threshold"`
			Filter         struct {
				Must []struct {
					Key   string `json:"key"`
					Match struct {
						Value string `json:"value"`
					} `json:"match"`
				} `json:"must"`
			} `json:"filter"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Limit != 5 || req.ScoreThreshold != 0.7 || len(req.Filter.Must) != 2 {
			t.Errorf("unexpected search body %+v", req)
		}
		w.Write([]byte(`{"result":[
			{"score":0.9,"payload":{"user_id":"u","document_id":"d","content":"b","chunk_index":4}},
			{"score":0.9,"payload":{"user_id":"u","document_id":"d","content":"a","chunk_index":1}},
			{"score":0.95,"payload":{"user_id":"u","document_id":"d","content":"c","chunk_index":7}}
		]}`))
	}))
	defer srv.Close()

	q := NewQdrantIndex(QdrantConfig{URL: srv.URL, Collection: "c"})
	hits, err := q.Search(context.Background(), []float32{1, 0}, models.VectorFilter{UserID: "u", DocumentID: "d"}, 5, 0.7)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, h := range hits {
		got = append(got, h.Payload.Content)
	}
	if strings.Join(got, "") != "cab" {
		t.Fatalf("order = %v, want [c a b]", got)
	}
}

func TestQdrantUpsertFailureIsIndexWriteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "wait=true") {
			t.Errorf("upsert without wait=true")
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	q := NewQdrantIndex(QdrantConfig{URL: srv.URL, Collection: "c"})
	err := q.Upsert(context.Background(), []models.IndexedVector{point("u", "d", 0, 1, 0)})
	if !errors.Is(err, core.ErrIndexWriteFailed) {
		t.Fatalf("got %v, want ErrIndexWriteFailed", err)
	}
}
