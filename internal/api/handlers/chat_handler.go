package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	middleware "github.com/markdave123-py/docqa/internal/api/middlewares"
	"github.com/markdave123-py/docqa/internal/core/query_engine"
	"github.com/markdave123-py/docqa/internal/services"
)

const maxQuestionLength = 2000

type ChatHandler struct {
	answerer query_engine.Answerer
	users    *services.UserService
}

func NewChatHandler(answerer query_engine.Answerer, users *services.UserService) *ChatHandler {
	return &ChatHandler{answerer: answerer, users: users}
}

type ChatRequest struct {
	DocumentID string `json:"documentId"`
	Question   string `json:"question"`
}

func (h *ChatHandler) AskQuestion(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" || req.DocumentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing required fields"})
		return
	}
	if len([]rune(req.Question)) > maxQuestionLength {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question too long"})
		return
	}

	answer, err := h.answerer.Answer(r.Context(), userID, req.DocumentID, req.Question)
	if err != nil {
		writeError(w, "question", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

// GetHistory lists the caller's chat turns, optionally for one document.
func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	turns, err := h.users.History(r.Context(), userID, r.URL.Query().Get("documentId"))
	if err != nil {
		writeError(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, turns)
}
