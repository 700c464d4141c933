package customers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pagodirecto/crm/internal/platform/httpx"
	"github.com/pagodirecto/crm/internal/rbac"
	"github.com/pagodirecto/crm/internal/shared"
)

// Handler exposes the customer endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers customer routes. Reads and writes carry distinct
// scopes so read-only roles stay possible.
func (h *Handler) MountRoutes(r chi.Router, mw rbac.Middleware) {
	r.Route("/customers", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAny("customers:read", "customers:admin"))
			r.Get("/", h.list)
			r.Get("/{id}", h.get)
		})
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAny("customers:create", "customers:admin"))
			r.Post("/", h.create)
		})
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAny("customers:update", "customers:admin"))
			r.Put("/{id}", h.update)
		})
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAny("customers:delete", "customers:admin"))
			r.Delete("/{id}", h.deactivate)
		})
	})
}

type createCustomerRequest struct {
	Code             string  `json:"code" validate:"max=50"`
	Name             string  `json:"name" validate:"required,max=200"`
	Email            *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone            *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	TaxID            *string `json:"tax_id,omitempty" validate:"omitempty,max=50"`
	CreditLimit      float64 `json:"credit_limit" validate:"gte=0"`
	PaymentTermsDays int     `json:"payment_terms_days" validate:"gte=0,lte=365"`
	AddressLine1     *string `json:"address_line1,omitempty" validate:"omitempty,max=200"`
	AddressLine2     *string `json:"address_line2,omitempty" validate:"omitempty,max=200"`
	City             *string `json:"city,omitempty" validate:"omitempty,max=100"`
	Country          string  `json:"country" validate:"required,len=2"`
	Notes            *string `json:"notes,omitempty"`
}

type updateCustomerRequest struct {
	Name             *string  `json:"name,omitempty" validate:"omitempty,max=200"`
	Email            *string  `json:"email,omitempty" validate:"omitempty,email"`
	Phone            *string  `json:"phone,omitempty" validate:"omitempty,max=50"`
	TaxID            *string  `json:"tax_id,omitempty" validate:"omitempty,max=50"`
	CreditLimit      *float64 `json:"credit_limit,omitempty" validate:"omitempty,gte=0"`
	PaymentTermsDays *int     `json:"payment_terms_days,omitempty" validate:"omitempty,gte=0,lte=365"`
	AddressLine1     *string  `json:"address_line1,omitempty" validate:"omitempty,max=200"`
	AddressLine2     *string  `json:"address_line2,omitempty" validate:"omitempty,max=200"`
	City             *string  `json:"city,omitempty" validate:"omitempty,max=100"`
	Country          *string  `json:"country,omitempty" validate:"omitempty,len=2"`
	IsActive         *bool    `json:"is_active,omitempty"`
	Notes            *string  `json:"notes,omitempty"`
}

type listResponse struct {
	Items []Customer `json:"items"`
	Total int        `json:"total"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	filter := ListFilter{Search: r.URL.Query().Get("search")}
	if v := r.URL.Query().Get("is_active"); v != "" {
		active := v == "true"
		filter.IsActive = &active
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		filter.Offset = v
	}
	items, total, err := h.service.List(r.Context(), principal.TenantID, filter)
	if err != nil {
		h.logger.Error("list customers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Customer{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: items, Total: total})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	c, err := h.service.Create(r.Context(), principal.TenantID, principal.UserID, CreateInput{
		Code:             req.Code,
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		TaxID:            req.TaxID,
		CreditLimit:      req.CreditLimit,
		PaymentTermsDays: req.PaymentTermsDays,
		AddressLine1:     req.AddressLine1,
		AddressLine2:     req.AddressLine2,
		City:             req.City,
		Country:          req.Country,
		Notes:            req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	var req updateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	c, err := h.service.Update(r.Context(), principal.UserID, id, UpdateInput{
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		TaxID:            req.TaxID,
		CreditLimit:      req.CreditLimit,
		PaymentTermsDays: req.PaymentTermsDays,
		AddressLine1:     req.AddressLine1,
		AddressLine2:     req.AddressLine2,
		City:             req.City,
		Country:          req.Country,
		IsActive:         req.IsActive,
		Notes:            req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	if err := h.service.Deactivate(r.Context(), principal.UserID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
