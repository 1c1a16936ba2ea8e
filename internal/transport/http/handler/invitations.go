package handler

import (
	"net/http"

	"github.com/coach-onboarding/internal/application/invitation"
	"github.com/coach-onboarding/internal/domain"
	"github.com/go-chi/chi/v5"
)

// InvitationHandler serves invitation validation and the admin endpoints.
type InvitationHandler struct {
	svc invitation.Service
}

func NewInvitationHandler(svc invitation.Service) *InvitationHandler {
	return &InvitationHandler{svc: svc}
}

// Validate always answers 200; validity is reported in the body.
func (h *InvitationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, domain.InvitationValidation{Error: "token is required", Status: invitation.StatusInvalid})
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Validate(r.Context(), token))
}

func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateInvitationRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, "Failed to create invitation")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *InvitationHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Revoke(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err, "Failed to revoke invitation")
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "invitation revoked"})
}
