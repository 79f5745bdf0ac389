package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snaplate/backend/internal/logging"
	"github.com/snaplate/backend/internal/projector"
)

type HistoryHandler struct {
	projector *projector.Projector
	logger    *zap.SugaredLogger
}

func NewHistoryHandler(p *projector.Projector, logger *zap.SugaredLogger) *HistoryHandler {
	return &HistoryHandler{projector: p, logger: logging.OrNop(logger)}
}

// ListHistory returns every record, newest first
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	items, err := h.projector.Refresh(r.Context())
	if err != nil {
		h.logger.Errorw("list history", "error", err)
		jsonError(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, items, http.StatusOK)
}

// GetHistoryItem selects a record for the detail view
func (h *HistoryHandler) GetHistoryItem(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	item, err := h.projector.SelectForDetail(r.Context(), id)
	if err != nil {
		h.notFoundOr500(w, err, "load history item")
		return
	}
	jsonResponse(w, item, http.StatusOK)
}

// GetHistoryImage serves the stored picture bytes
func (h *HistoryHandler) GetHistoryImage(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	data, err := h.projector.Image(r.Context(), id)
	if err != nil {
		h.notFoundOr500(w, err, "load history image")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// DeleteHistoryItem removes a record. Unknown ids succeed as well.
func (h *HistoryHandler) DeleteHistoryItem(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	if _, err := h.projector.Delete(r.Context(), id); err != nil {
		h.logger.Errorw("delete history item", "record", id, "error", err)
		jsonError(w, "failed to delete history item", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HistoryHandler) notFoundOr500(w http.ResponseWriter, err error, op string) {
	if errors.Is(err, projector.ErrNotFound) {
		jsonError(w, "history item not found", http.StatusNotFound)
		return
	}
	h.logger.Errorw(op, "error", err)
	jsonError(w, "failed to load history", http.StatusInternalServerError)
}

func recordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, "invalid history id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
