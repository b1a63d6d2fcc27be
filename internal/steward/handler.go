package steward

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	id "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/httputil"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/middleware/request"
)

type Handler struct {
	console *Console
	logger  *slog.Logger
}

func NewHandler(console *Console, logger *slog.Logger) *Handler {
	return &Handler{console: console, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/vouches", h.handleVouch)
	r.Route("/steward", func(r chi.Router) {
		r.Get("/join-requests", h.handleListPending)
		r.Post("/join-requests/{id}/approve", h.handleApprove)
		r.Post("/join-requests/{id}/reject", h.handleReject)
		r.Post("/provision", h.handleProvision)
		r.Post("/reconcile", h.handleReconcile)
		r.Get("/profiles/{id}/vouches", h.handleVouchTrail)
	})
}

// VouchRequest is the body of POST /vouches.
type VouchRequest struct {
	Email string `json:"email"`
	Note  string `json:"note"`
}

func (req *VouchRequest) Validate() error {
	req.Email = strings.TrimSpace(req.Email)
	req.Note = strings.TrimSpace(req.Note)
	if req.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	h.logger.WarnContext(ctx, op+" failed",
		"request_id", request.GetRequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.console.ListPendingRequests(r.Context())
	if err != nil {
		h.fail(w, r, "list pending", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"join_requests": pending})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseJoinRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	approval, err := h.console.Approve(r.Context(), requestID)
	if err != nil {
		h.fail(w, r, "approve", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, approval)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseJoinRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rejected, err := h.console.Reject(r.Context(), requestID)
	if err != nil {
		h.fail(w, r, "reject", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rejected)
}

func (h *Handler) handleVouch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[VouchRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	result, err := h.console.VouchDirectly(ctx, req.Email, req.Note)
	if err != nil {
		h.fail(w, r, "vouch", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

// handleProvision answers 207 when some items failed; the body always carries
// the per-item results.
func (h *Handler) handleProvision(w http.ResponseWriter, r *http.Request) {
	result, err := h.console.BulkProvision(r.Context())
	if err != nil {
		h.fail(w, r, "bulk provision", err)
		return
	}
	status := http.StatusOK
	if partial := result.Err(); partial != nil {
		status = httputil.StatusFor(dErrors.CodeOf(partial))
	}
	httputil.WriteJSON(w, status, result)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.console.Reconcile(r.Context())
	if err != nil {
		h.fail(w, r, "reconcile", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleVouchTrail(w http.ResponseWriter, r *http.Request) {
	profileID, err := id.ParseProfileID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	trail, err := h.console.VouchTrail(r.Context(), profileID)
	if err != nil {
		h.fail(w, r, "vouch trail", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, trail)
}
