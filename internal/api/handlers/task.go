package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/snaplate/backend/internal/dispatch"
)

type TaskHandler struct {
	queue *dispatch.Queue
}

func NewTaskHandler(queue *dispatch.Queue) *TaskHandler {
	return &TaskHandler{queue: queue}
}

// ListTasks returns recent background tasks, newest first
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, h.queue.ListTasks(), http.StatusOK)
}

// GetTask returns a single task by ID
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.queue.GetTask(chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, "task not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, t, http.StatusOK)
}

// CancelTask cancels a pending or running task
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.CancelTask(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, dispatch.ErrTaskNotFound) {
			jsonError(w, "task not found", http.StatusNotFound)
			return
		}
		jsonError(w, "failed to cancel task", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
