package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// JobReader exposes queued job records. *queue.Queue implements it.
type JobReader interface {
	Get(ctx context.Context, id string) (*domain.JobRecord, error)
	Stats(ctx context.Context) (domain.QueueStats, error)
	Name() string
}

// QueueHandler serves job lookups and a JSON queue snapshot. Raw Prometheus
// metrics are available at /metrics and are separate from these endpoints.
type QueueHandler struct {
	q JobReader
}

func NewQueueHandler(q JobReader) *QueueHandler {
	return &QueueHandler{q: q}
}

// GetJob handles GET /api/v1/jobs/{id}
func (h *QueueHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	rec, err := h.q.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// Stats handles GET /api/v1/queue
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.q.Stats(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"queue": h.q.Name(),
		"jobs":  stats,
	})
}
