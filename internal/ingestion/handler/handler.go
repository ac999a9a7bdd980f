package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/logger"
)

// maxBodyBytes leaves room for JSON escaping around the largest accepted text.
const maxBodyBytes = 4 << 20

// Indexer is the part of the engine the ingestion endpoints drive.
type Indexer interface {
	AddDocument(ctx context.Context, text string) (uint64, error)
	Document(ctx context.Context, id uint64) (string, error)
}

// Enqueuer queues documents for asynchronous indexing.
type Enqueuer interface {
	Enqueue(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
}

type Handler struct {
	indexer Indexer
	queue   Enqueuer
	logger  *slog.Logger
}

// New creates a Handler. queue may be nil, in which case async requests are
// rejected.
func New(indexer Indexer, queue Enqueuer) *Handler {
	return &Handler{
		indexer: indexer,
		queue:   queue,
		logger:  logger.WithComponent("ingestion-handler"),
	}
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Async {
		if h.queue == nil {
			h.writeError(w, http.StatusBadRequest, "asynchronous ingestion is not enabled")
			return
		}
		resp, err := h.queue.Enqueue(ctx, &req)
		if err != nil {
			log.Error("queueing document failed", "error", err)
			h.writeError(w, http.StatusServiceUnavailable, "ingestion queue unavailable")
			return
		}
		log.Info("document queued", "event_id", resp.EventID)
		h.writeJSON(w, http.StatusAccepted, resp)
		return
	}

	id, err := h.indexer.AddDocument(ctx, req.Text)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrFlushFailed):
		// the document is searchable; only its durability is pending
		log.Warn("document indexed but flush failed", "doc_id", id, "error", err)
		h.writeJSON(w, http.StatusCreated, ingestion.IngestResponse{
			DocumentID: &id,
			Status:     ingestion.StatusIndexed,
			Warning:    "flush failed, ingestion is halted until storage recovers",
		})
		return
	default:
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed",
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	log.Info("document indexed", "doc_id", id)
	h.writeJSON(w, http.StatusCreated, ingestion.IngestResponse{
		DocumentID: &id,
		Status:     ingestion.StatusIndexed,
	})
}

// Get serves GET /api/v1/documents/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "document id must be a non-negative integer")
		return
	}
	text, err := h.indexer.Document(ctx, id)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		if statusCode >= http.StatusInternalServerError {
			logger.FromContext(ctx).Error("document lookup failed", "doc_id", id, "error", err)
		}
		h.writeError(w, statusCode, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, ingestion.DocumentResponse{DocumentID: id, Text: text})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
