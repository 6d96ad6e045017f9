package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/core/ingestion_engine"
	"github.com/markdave123-py/docqa/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: encode failed: %v", err)
	}
}

// writeError maps an error kind to its HTTP status. Quota outcomes are a
// normal result and are not logged.
func writeError(w http.ResponseWriter, op string, err error) {
	var partial *core.PartiallyIndexedError
	switch {
	case errors.Is(err, core.ErrQuotaExceeded):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": op + " limit reached",
			"code":  "limit_reached",
		})
		return
	case errors.Is(err, core.ErrImageBasedUnsupported):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "this PDF appears to be scanned; image-based documents are not supported in this mode",
			"code":  "image_based",
		})
		return
	case errors.Is(err, core.ErrExtractionFailed):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "could not extract sufficient text from PDF",
			"code":  "extraction_failed",
		})
		return
	case errors.Is(err, core.ErrDocumentNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "document not found"})
		return
	case errors.Is(err, services.ErrInvalidName):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, ingestion_engine.ErrQueueFull):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "re-index queue is full, try again later"})
		return
	case errors.As(err, &partial):
		log.Printf("%s: %v", op, err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":      "document stored but not fully searchable",
			"code":       "partially_indexed",
			"documentId": partial.DocumentID,
		})
		return
	case errors.Is(err, core.ErrProviderTimeout):
		log.Printf("%s: %v", op, err)
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "model provider timed out"})
		return
	}
	log.Printf("%s: %v", op, err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to process " + op})
}
