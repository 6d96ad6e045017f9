package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/docqa/internal/api/middlewares"
	"github.com/markdave123-py/docqa/internal/core/ingestion_engine"
	"github.com/markdave123-py/docqa/internal/services"
)

const pdfContentType = "application/pdf"

type DocumentHandler struct {
	ingestor  ingestion_engine.Ingestor
	documents *services.DocumentService
	maxUpload int64
}

func NewDocumentHandler(ing ingestion_engine.Ingestor, docs *services.DocumentService, maxUpload int64) *DocumentHandler {
	return &DocumentHandler{ingestor: ing, documents: docs, maxUpload: maxUpload}
}

// UploadDocument ingests a PDF synchronously and reports how many chunks were indexed.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	// Room for the multipart envelope on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := formFile(r, "pdf", "file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read file"})
		return
	}
	if int64(len(data)) > h.maxUpload {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file too large"})
		return
	}
	if !isPDF(header.Header.Get("Content-Type"), data) {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "only PDF files are supported"})
		return
	}

	// Removes any path components
	filename := filepath.Base(header.Filename)

	res, err := h.ingestor.Ingest(r.Context(), userID, filename, data)
	if err != nil {
		writeError(w, "upload", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"documentId":    res.Document.ID,
		"filename":      res.Document.FileName,
		"chunksCreated": res.ChunksCreated,
	})
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	documents, err := h.documents.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "documents", err)
		return
	}
	writeJSON(w, http.StatusOK, documents)
}

// ReindexDocument queues a stored document for re-embedding.
func (h *DocumentHandler) ReindexDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	docID := chi.URLParam(r, "id")
	if err := h.documents.Reindex(r.Context(), userID, docID); err != nil {
		writeError(w, "reindex", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"documentId": docID, "status": "queued"})
}

func formFile(r *http.Request, fields ...string) (multipart.File, *multipart.FileHeader, error) {
	var err error
	for _, f := range fields {
		var file multipart.File
		var header *multipart.FileHeader
		if file, header, err = r.FormFile(f); err == nil {
			return file, header, nil
		}
	}
	return nil, nil, err
}

func isPDF(declared string, data []byte) bool {
	declared = strings.TrimSpace(strings.SplitN(declared, ";", 2)[0])
	if declared == pdfContentType {
		return true
	}
	if declared != "" && declared != "application/octet-stream" {
		return false
	}
	return http.DetectContentType(data) == pdfContentType
}
