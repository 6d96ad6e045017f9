package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/markdave123-py/docqa/internal/api/handlers"
	"github.com/markdave123-py/docqa/internal/config"
	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/core/ingestion_engine"
	"github.com/markdave123-py/docqa/internal/core/query_engine"
	"github.com/markdave123-py/docqa/internal/core/quota"
	"github.com/markdave123-py/docqa/internal/core/vectorindex"
	"github.com/markdave123-py/docqa/internal/services"
	"github.com/markdave123-py/docqa/internal/testutil"
)

const leaseText = "The tenant shall pay rent on the first day of every month to the landlord."

type testServer struct {
	*httptest.Server
	synth *testutil.RecordingSynthesizer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{JWTSecret: "test-secret", CORSOrigins: []string{"http://localhost:3000"}}
	dbc := testutil.NewFakeDB()
	emb := &testutil.HashEmbedder{Dim: 64}
	index := vectorindex.NewMemoryIndex()
	synth := &testutil.RecordingSynthesizer{Reply: "Rent is due on the first of the month."}
	ledger := quota.NewLedger(dbc, quota.DefaultLimits)

	ing := ingestion_engine.NewDocumentIngestor(dbc, nil, emb, testutil.StaticExtractor{Text: leaseText}, index, ledger,
		&ingestion_engine.IngestConfig{ChunkSize: 800, ChunkOverlap: 200, BatchSize: 100, EmbedConcurrency: 2, EmbedDim: 64})
	qe := query_engine.NewQueryEngine(dbc, emb, index, synth, ledger, query_engine.QueryConfig{TopK: 5, ScoreThreshold: 0.7})
	users := services.NewUserService(dbc, ledger)

	router := NewRouter(cfg, Handlers{
		Session:  handlers.NewSessionHandler(dbc, cfg.JWTSecret, false),
		Document: handlers.NewDocumentHandler(ing, services.NewDocumentService(dbc, ing), 1<<20),
		Chat:     handlers.NewChatHandler(qe, users),
		User:     handlers.NewUserHandler(users),
		Health:   handlers.NewHealthHandler(dbc, cfg.Presence()),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, synth: synth}
}

func (s *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, s.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		var list []any
		_ = json.Unmarshal(raw, &list)
		out["items"] = list
	} else {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func (s *testServer) session(t *testing.T) string {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/api/session", "", nil, "")
	if code != http.StatusOK {
		t.Fatalf("session: %d", code)
	}
	return body["token"].(string)
}

func (s *testServer) upload(t *testing.T, token, field, name string, data []byte) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()
	return s.do(t, http.MethodPost, "/api/upload", token, &buf, mw.FormDataContentType())
}

func (s *testServer) ask(t *testing.T, token, docID, question string) (int, map[string]any) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"documentId": docID, "question": question})
	return s.do(t, http.MethodPost, "/api/question", token, bytes.NewReader(body), "application/json")
}

var pdfBytes = []byte("%PDF-1.4\n% test document\n")

func TestUploadAndAskFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.session(t)

	code, up := s.upload(t, token, "pdf", "lease.pdf", pdfBytes)
	if code != http.StatusOK || up["success"] != true || up["chunksCreated"].(float64) != 1 || up["filename"] != "lease.pdf" {
		t.Fatalf("upload: %d %v", code, up)
	}
	docID := up["documentId"].(string)

	code, second := s.upload(t, token, "file", "other.pdf", pdfBytes)
	if code != http.StatusTooManyRequests || second["code"] != "limit_reached" {
		t.Fatalf("second upload: %d %v", code, second)
	}

	code, ans := s.ask(t, token, docID, leaseText)
	if code != http.StatusOK || ans["answer"] != s.synth.Reply {
		t.Fatalf("in-scope question: %d %v", code, ans)
	}
	code, ans = s.ask(t, token, docID, "Who won the football match yesterday?")
	if code != http.StatusOK || ans["answer"] != core.OutOfScopeAnswer {
		t.Fatalf("out-of-scope question: %d %v", code, ans)
	}
	if s.synth.Calls != 1 {
		t.Fatalf("synthesizer calls = %d, want 1", s.synth.Calls)
	}

	code, hist := s.do(t, http.MethodGet, "/api/history?documentId="+docID, token, nil, "")
	if code != http.StatusOK || len(hist["items"].([]any)) != 2 {
		t.Fatalf("history: %d %v", code, hist)
	}

	code, user := s.do(t, http.MethodGet, "/api/user", token, nil, "")
	if code != http.StatusOK || user["question_count"].(float64) != 2 || user["remaining_questions"].(float64) != 2 || user["remaining_uploads"].(float64) != 0 {
		t.Fatalf("user: %d %v", code, user)
	}

	code, docs := s.do(t, http.MethodGet, "/api/documents", token, nil, "")
	if code != http.StatusOK || len(docs["items"].([]any)) != 1 {
		t.Fatalf("documents: %d %v", code, docs)
	}

	code, _ = s.do(t, http.MethodPost, "/api/documents/"+docID+"/reindex", token, nil, "")
	if code != http.StatusAccepted {
		t.Fatalf("reindex: %d", code)
	}
}

func TestDocumentsAreIsolatedPerUser(t *testing.T) {
	s := newTestServer(t)
	owner, other := s.session(t), s.session(t)

	_, up := s.upload(t, owner, "pdf", "lease.pdf", pdfBytes)
	docID := up["documentId"].(string)

	if code, _ := s.ask(t, other, docID, leaseText); code != http.StatusNotFound {
		t.Fatalf("foreign question: %d", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/api/documents/"+docID+"/reindex", other, nil, ""); code != http.StatusNotFound {
		t.Fatalf("foreign reindex: %d", code)
	}
	code, docs := s.do(t, http.MethodGet, "/api/documents", other, nil, "")
	if code != http.StatusOK || len(docs["items"].([]any)) != 0 {
		t.Fatalf("foreign documents: %d %v", code, docs)
	}
}

func TestUploadValidation(t *testing.T) {
	s := newTestServer(t)
	token := s.session(t)

	if code, _ := s.upload(t, token, "pdf", "notes.txt", []byte("just some text")); code != http.StatusUnsupportedMediaType {
		t.Fatalf("non-pdf: %d", code)
	}
	if code, _ := s.upload(t, token, "attachment", "lease.pdf", pdfBytes); code != http.StatusBadRequest {
		t.Fatalf("wrong field: %d", code)
	}
	big := append(append([]byte{}, pdfBytes...), bytes.Repeat([]byte("x"), 1<<20)...)
	if code, _ := s.upload(t, token, "pdf", "big.pdf", big); code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized: %d", code)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/documents", "/api/user", "/api/history"} {
		if code, _ := s.do(t, http.MethodGet, path, "", nil, ""); code != http.StatusUnauthorized {
			t.Fatalf("%s: %d", path, code)
		}
	}
	if code, _ := s.do(t, http.MethodGet, "/api/documents", "garbage", nil, ""); code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", code)
	}
}

func TestSessionRenewalKeepsIdentity(t *testing.T) {
	s := newTestServer(t)
	_, first := s.do(t, http.MethodPost, "/api/session", "", nil, "")
	_, renewed := s.do(t, http.MethodPost, "/api/session", first["token"].(string), nil, "")
	if first["userId"] != renewed["userId"] {
		t.Fatalf("renewal changed identity: %v -> %v", first["userId"], renewed["userId"])
	}
}

func TestUpdateNameAndHealth(t *testing.T) {
	s := newTestServer(t)
	token := s.session(t)

	code, _ := s.do(t, http.MethodPost, "/api/user/name", token, strings.NewReader(`{"name":"Ada"}`), "application/json")
	if code != http.StatusOK {
		t.Fatalf("update name: %d", code)
	}
	_, user := s.do(t, http.MethodGet, "/api/user", token, nil, "")
	if user["name"] != "Ada" {
		t.Fatalf("name = %v", user["name"])
	}
	if code, _ := s.do(t, http.MethodPost, "/api/user/name", token, strings.NewReader(`{"name":""}`), "application/json"); code != http.StatusBadRequest {
		t.Fatalf("empty name: %d", code)
	}

	code, health := s.do(t, http.MethodGet, "/api/health", "", nil, "")
	if code != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("health: %d %v", code, health)
	}
}
