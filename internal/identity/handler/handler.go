// Package handler exposes sign-up, sign-in, sign-out and activation.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/models"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/identity/service"
	trustmodels "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/internal/trust/models"
	dErrors "github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/domain-errors"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/httputil"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/middleware/request"
)

type Service interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.RegisterResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	Activate(ctx context.Context, email, token, password string) (*service.AuthResult, error)
	Logout(ctx context.Context) error
}

type Handler struct {
	identity Service
	logger   *slog.Logger
}

func New(identity Service, logger *slog.Logger) *Handler {
	return &Handler{identity: identity, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.Post("/activate", h.handleActivate)
		r.Post("/logout", h.handleLogout)
	})
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Intro    string `json:"intro,omitempty"`
}

func (req *RegisterRequest) Validate() error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if req.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if req.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required")
	}
	return nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (req *LoginRequest) Validate() error {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "email and password are required")
	}
	return nil
}

type ActivateRequest struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (req *ActivateRequest) Validate() error {
	req.Email = strings.TrimSpace(req.Email)
	req.Token = strings.TrimSpace(req.Token)
	if req.Email == "" || req.Token == "" {
		return dErrors.New(dErrors.CodeValidation, "email and token are required")
	}
	if req.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required")
	}
	return nil
}

// AuthResponse is returned by every flow that establishes a session.
type AuthResponse struct {
	AccessToken string               `json:"access_token"`
	TokenType   string               `json:"token_type"`
	ExpiresIn   int                  `json:"expires_in"`
	PrincipalID string               `json:"principal_id"`
	SessionID   string               `json:"session_id"`
	Profile     *trustmodels.Profile `json:"profile,omitempty"`
}

// RegisterResponse acknowledges a sign-up awaiting email confirmation.
type RegisterResponse struct {
	PrincipalID string                   `json:"principal_id"`
	Email       string                   `json:"email"`
	Status      string                   `json:"status"`
	JoinRequest *trustmodels.JoinRequest `json:"join_request,omitempty"`
}

func toResponse(result *service.AuthResult) AuthResponse {
	return AuthResponse{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(result.ExpiresIn.Seconds()),
		PrincipalID: result.Session.PrincipalID.String(),
		SessionID:   result.Session.ID.String(),
		Profile:     result.Profile,
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.identity.Register(ctx, service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Intro:    req.Intro,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "registration failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, RegisterResponse{
		PrincipalID: result.PrincipalID.String(),
		Email:       result.Email,
		Status:      string(models.AccountStatusPendingActivation),
		JoinRequest: result.JoinRequest,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.identity.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.logger.InfoContext(ctx, "login failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(result))
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[ActivateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.identity.Activate(ctx, req.Email, req.Token, req.Password)
	if err != nil {
		h.logger.InfoContext(ctx, "activation failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(result))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.identity.Logout(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
