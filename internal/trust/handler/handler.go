// Package handler exposes the anonymous join request endpoint.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/httputil"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/middleware/request"
)

// Service is the trust service surface used by this handler.
type Service interface {
	SubmitJoinRequest(ctx context.Context, name, email, intro string) (*models.JoinRequest, error)
}

type Handler struct {
	trust  Service
	logger *slog.Logger
}

func New(trust Service, logger *slog.Logger) *Handler {
	return &Handler{trust: trust, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/join-requests", h.handleSubmit)
}

// SubmitJoinRequest is the body of POST /join-requests.
type SubmitJoinRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Intro string `json:"intro"`
}

func (req *SubmitJoinRequest) Validate() error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Intro = strings.TrimSpace(req.Intro)
	if req.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if req.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	return nil
}

// JoinRequestResponse is what an anonymous applicant sees after submitting.
type JoinRequestResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SubmitJoinRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	jr, err := h.trust.SubmitJoinRequest(ctx, req.Name, req.Email, req.Intro)
	if err != nil {
		h.logger.WarnContext(ctx, "join request rejected",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, JoinRequestResponse{ID: jr.ID.String(), Status: string(jr.Status)})
}
