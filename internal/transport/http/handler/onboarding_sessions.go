package handler

import (
	"fmt"
	"net/http"

	"github.com/coach-onboarding/internal/application/session"
	"github.com/coach-onboarding/internal/domain"
)

// OnboardingSessionHandler serves /api/onboarding/session.
type OnboardingSessionHandler struct {
	svc session.Service
}

func NewOnboardingSessionHandler(svc session.Service) *OnboardingSessionHandler {
	return &OnboardingSessionHandler{svc: svc}
}

func (h *OnboardingSessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	lookup := lookupFromQuery(r)
	if lookup.Empty() {
		writeError(w, http.StatusBadRequest, "email or sessionId is required")
		return
	}
	data, err := h.svc.Get(r.Context(), lookup)
	if err != nil {
		writeServiceError(w, r, err, "Failed to retrieve session")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *OnboardingSessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSessionRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	data, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, "Failed to create session")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *OnboardingSessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateSessionRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Lookup().Empty() {
		writeError(w, http.StatusBadRequest, "sessionId or email is required")
		return
	}
	data, err := h.svc.Update(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, "Failed to update session")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *OnboardingSessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	lookup := lookupFromQuery(r)
	if lookup.Empty() {
		writeError(w, http.StatusBadRequest, "sessionId or email is required")
		return
	}
	n, err := h.svc.Delete(r.Context(), lookup)
	if err != nil {
		writeServiceError(w, r, err, "Failed to delete session")
		return
	}
	writeJSON(w, http.StatusOK, DeleteEnvelope{
		Message:      fmt.Sprintf("Deleted %d onboarding session(s)", n),
		DeletedCount: n,
	})
}

func lookupFromQuery(r *http.Request) domain.SessionLookup {
	q := r.URL.Query()
	return domain.SessionLookup{SessionID: q.Get("sessionId"), Email: q.Get("email")}
}
