package users

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-iam/gatehouse/internal/authz"
	"github.com/gatehouse-iam/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// Handler wires HTTP endpoints for user management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz authz.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		authz:     authz,
		validator: validator.New(),
	}
}

// MountRoutes registers user routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.authz.Require("users:read")).Get("/", h.list)
	r.With(h.authz.Require("users:read")).Get("/{id}", h.get)
	r.With(h.authz.Require("users:write")).Patch("/{id}", h.update)
}

type userRole struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// userResponse deliberately has no password field.
type userResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone,omitempty"`
	Roles     []userRole `json:"roles"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// ToResponse maps a user to its wire shape, omitting the password hash.
func ToResponse(u User) any {
	return toResponse(u)
}

func toResponse(u User) userResponse {
	assigned := make([]userRole, 0, len(u.Roles))
	for _, role := range u.Roles {
		assigned = append(assigned, userRole{ID: role.ID, Name: role.Name})
	}
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Roles:     assigned,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	params := httpx.ListParamsFromQuery(r)
	out, total, err := h.service.List(r.Context(), params)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	data := make([]userResponse, 0, len(out))
	for _, u := range out {
		data = append(data, toResponse(u))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       data,
		"pagination": shared.NewPagination(params, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": toResponse(u)})
}

type updateUserRequest struct {
	Name    *string  `json:"name" validate:"omitempty,min=1,max=160"`
	Email   *string  `json:"email" validate:"omitempty,email"`
	Phone   *string  `json:"phone" validate:"omitempty,max=32"`
	RoleIDs *[]int64 `json:"roleIds" validate:"omitempty,dive,gt=0"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := UpdateInput{Name: req.Name, Email: req.Email, Phone: req.Phone}
	if req.RoleIDs != nil {
		input.RoleIDs = *req.RoleIDs
		input.ReplaceRoles = true
	}
	updated, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": toResponse(updated)})
}
