package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pagodirecto/crm/internal/platform/httpx"
	"github.com/pagodirecto/crm/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountPublicRoutes registers the unauthenticated endpoints.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/refresh", h.handleRefresh)
}

// MountProtectedRoutes registers the endpoints requiring a valid bearer token.
func (h *Handler) MountProtectedRoutes(r chi.Router) {
	r.Post("/logout", h.handleLogout)
	r.Post("/logout_all", h.handleLogoutAll)
}

type loginRequest struct {
	Login    string `json:"login" validate:"required,max=255"`
	Password string `json:"password" validate:"required,min=8"`
	MFACode  string `json:"mfa_code,omitempty" validate:"omitempty,len=6,numeric"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		// Malformed credentials are rejected as invalid, in constant shape
		// with a genuine mismatch, so the response leaks nothing about which
		// field failed.
		httpx.RespondError(w, shared.ErrInvalidCredentials)
		return
	}
	pair, err := h.service.Login(r.Context(), Credentials{
		Login:    req.Login,
		Password: req.Password,
		MFACode:  req.MFACode,
	}, clientMeta(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pair)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, &shared.InvalidTokenError{Reason: shared.TokenMalformed})
		return
	}
	pair, err := h.service.Refresh(r.Context(), req.RefreshToken, clientMeta(r))
	if err != nil {
		// A token that was never issued must answer exactly like a revoked
		// or garbage one; a distinct status would tell the caller which
		// tokens exist.
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrUserNotFound) {
			err = &shared.InvalidTokenError{Reason: shared.TokenMalformed}
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pair)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "refresh_token required")
		return
	}
	if err := h.service.Logout(r.Context(), principal.UserID, req.RefreshToken); err != nil {
		h.logger.Error("logout", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if err := h.service.LogoutEverywhere(r.Context(), principal.UserID); err != nil {
		h.logger.Error("logout everywhere", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func clientMeta(r *http.Request) ClientMeta {
	return ClientMeta{IP: r.RemoteAddr, UserAgent: r.UserAgent()}
}
