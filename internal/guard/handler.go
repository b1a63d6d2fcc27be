package guard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/httputil"
)

// Handler lets presentation code ask which capability levels the caller has.
type Handler struct {
	guard  *Guard
	logger *slog.Logger
}

func NewHandler(g *Guard, logger *slog.Logger) *Handler {
	return &Handler{guard: g, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.With(h.guard.Require(RequireAuthenticated)).Get("/me", h.handleMe)
	r.Get("/access/{level}", h.handleAccess)
}

// MeResponse describes the caller and their decision at every level.
type MeResponse struct {
	PrincipalID string                   `json:"principal_id"`
	Email       string                   `json:"email"`
	Profile     *models.Profile          `json:"profile,omitempty"`
	Access      map[Requirement]Decision `json:"access"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, err := h.guard.sessions.Current(ctx)
	if err != nil || principal == nil {
		httputil.WriteError(w, newDecision(RequireAuthenticated, DeniedUnauthenticated, nil).Err())
		return
	}

	resp := MeResponse{
		PrincipalID: principal.ID.String(),
		Email:       principal.Email,
		Access:      make(map[Requirement]Decision, len(Requirements)),
	}
	for _, req := range Requirements {
		d := h.guard.Authorize(ctx, principal, req)
		if d.Profile != nil {
			resp.Profile = d.Profile
		}
		resp.Access[req] = d
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAccess(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequirement(chi.URLParam(r, "level"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.guard.AuthorizeCurrent(r.Context(), req))
}
