package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/mailqueue/internal/api/middleware"
	"github.com/notifyhub/mailqueue/internal/domain"
	"github.com/notifyhub/mailqueue/internal/service"
)

// EmailService is the part of *service.EmailService the HTTP layer uses.
type EmailService interface {
	SendWelcome(ctx context.Context, email, name string) (service.Receipt, error)
	SendResetPassword(ctx context.Context, email, token string) (service.Receipt, error)
	SendPasswordChanged(ctx context.Context, email, name string) (service.Receipt, error)
	Submit(ctx context.Context, job domain.EmailJob) (service.Receipt, error)
	Mode() service.DeliveryMode
}

// EmailHandler accepts transactional email requests.
type EmailHandler struct {
	svc    EmailService
	logger *zap.Logger
}

func NewEmailHandler(svc EmailService, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{svc: svc, logger: logger}
}

type welcomeRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type resetPasswordRequest struct {
	Email      string `json:"email"`
	ResetToken string `json:"resetToken"`
}

// Submit handles POST /api/v1/emails with a raw job body:
//
//	{"type": "welcome", "payload": {"email": "...", "name": "..."}}
func (h *EmailHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var job domain.EmailJob
	if !decode(w, r, &job) {
		return
	}
	receipt, err := h.svc.Submit(r.Context(), job)
	h.respond(w, r, job.Type, receipt, err)
}

// Welcome handles POST /api/v1/emails/welcome
func (h *EmailHandler) Welcome(w http.ResponseWriter, r *http.Request) {
	var req welcomeRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.svc.SendWelcome(r.Context(), req.Email, req.Name)
	h.respond(w, r, string(domain.JobWelcome), receipt, err)
}

// ResetPassword handles POST /api/v1/emails/reset-password
func (h *EmailHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.svc.SendResetPassword(r.Context(), req.Email, req.ResetToken)
	h.respond(w, r, string(domain.JobResetPassword), receipt, err)
}

// PasswordChanged handles POST /api/v1/emails/password-changed
func (h *EmailHandler) PasswordChanged(w http.ResponseWriter, r *http.Request) {
	var req welcomeRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.svc.SendPasswordChanged(r.Context(), req.Email, req.Name)
	h.respond(w, r, string(domain.JobPasswordChanged), receipt, err)
}

// respond writes 202 for queued jobs and 200 for emails already sent.
func (h *EmailHandler) respond(w http.ResponseWriter, r *http.Request, jobType string, receipt service.Receipt, err error) {
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("email request rejected",
			zap.String("type", jobType),
			zap.Error(err))
		mapError(w, err)
		return
	}

	status := http.StatusOK
	if receipt.Mode == domain.ModeQueued {
		status = http.StatusAccepted
	}
	respondJSON(w, status, receipt)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
