package roles

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-iam/gatehouse/internal/authz"
	"github.com/gatehouse-iam/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// Handler wires HTTP endpoints for role management.
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

// MountRoutes registers role routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.authz.Require("roles:read")).Get("/", h.list)
	r.With(h.authz.Require("roles:read")).Get("/{id}", h.get)
	r.With(h.authz.Require("roles:write")).Post("/", h.create)
	r.With(h.authz.Require("roles:write")).Patch("/{id}", h.update)
	r.With(h.authz.Require("roles:write")).Delete("/{id}", h.delete)
}

type rolePermission struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type roleResponse struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Deleted     bool             `json:"deleted"`
	Permissions []rolePermission `json:"permissions"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

func toResponse(role Role) roleResponse {
	perms := make([]rolePermission, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		perms = append(perms, rolePermission{ID: p.ID, Name: p.Name})
	}
	return roleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Deleted:     role.Deleted(),
		Permissions: perms,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	params := httpx.ListParamsFromQuery(r)
	roles, total, err := h.service.List(r.Context(), r.URL.Query().Get("name"), params)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       out,
		"pagination": shared.NewPagination(params, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "role ID must be an integer")
		return
	}
	role, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": toResponse(role)})
}

type createRoleRequest struct {
	Name          string  `json:"name" validate:"required,min=2,max=120"`
	PermissionIDs []int64 `json:"permissionIds" validate:"omitempty,dive,gt=0"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), req.Name, req.PermissionIDs)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": toResponse(created)})
}

type updateRoleRequest struct {
	Name          *string  `json:"name" validate:"omitempty,min=2,max=120"`
	PermissionIDs *[]int64 `json:"permissionIds" validate:"omitempty,dive,gt=0"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "role ID must be an integer")
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := UpdateInput{Name: req.Name}
	if req.PermissionIDs != nil {
		input.PermissionIDs = *req.PermissionIDs
		input.ReplacePermissions = true
	}
	updated, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": toResponse(updated)})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "role ID must be an integer")
		return
	}
	deleted, err := h.service.Delete(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": toResponse(deleted)})
}
