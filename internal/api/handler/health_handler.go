package handler

import (
	"net/http"

	"github.com/notifyhub/mailqueue/internal/broker"
)

// BrokerStatus reports the broker connection state. *broker.Manager
// implements it.
type BrokerStatus interface {
	State() broker.State
}

// HealthHandler serves the liveness probe endpoint. The process stays
// healthy while the broker is down because emails fall back to direct
// delivery; the response says which path is in use.
type HealthHandler struct {
	broker BrokerStatus
	svc    EmailService
}

func NewHealthHandler(b BrokerStatus, svc EmailService) *HealthHandler {
	return &HealthHandler{broker: b, svc: svc}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	state := broker.StateClosed
	if h.broker != nil {
		state = h.broker.State()
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"broker": string(state),
		"mode":   string(h.svc.Mode().Kind()),
	})
}
