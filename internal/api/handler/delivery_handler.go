package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/notifyhub/mailqueue/internal/domain"
	"github.com/notifyhub/mailqueue/internal/repository"
)

// DeliveryHandler serves the delivery log.
type DeliveryHandler struct {
	repo repository.DeliveryRepository
}

func NewDeliveryHandler(repo repository.DeliveryRepository) *DeliveryHandler {
	return &DeliveryHandler{repo: repo}
}

// List handles GET /api/v1/deliveries
//
// Query parameters: status, type, recipient, from and to (RFC3339),
// page (default 1), limit (default 20, max 100).
func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := parseDeliveryFilter(r)
	deliveries, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}
	if deliveries == nil {
		deliveries = []*domain.Delivery{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":  deliveries,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}

func parseDeliveryFilter(r *http.Request) domain.DeliveryFilter {
	q := r.URL.Query()
	filter := domain.DeliveryFilter{Page: 1, Limit: 20}

	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		filter.Page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 100 {
		filter.Limit = l
	}
	if s := q.Get("status"); s != "" {
		st := domain.DeliveryStatus(s)
		filter.Status = &st
	}
	if t := q.Get("type"); t != "" {
		filter.Type = &t
	}
	if rc := q.Get("recipient"); rc != "" {
		filter.Recipient = &rc
	}
	if f := q.Get("from"); f != "" {
		if t, err := time.Parse(time.RFC3339, f); err == nil {
			filter.From = &t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = &t
		}
	}
	return filter
}
