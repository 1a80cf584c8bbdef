package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse-iam/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// Handler exposes the resolver read path over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	mw      Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw}
}

// MountRoutes registers the context route on the users subrouter.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.mw.Authenticated).Get("/{id}/context", h.userContext)
}

// userContext returns the resolved user-roles-permissions graph. A caller
// may read their own context; reading another user's requires users:read.
func (h *Handler) userContext(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil || (principal.UserID != id && !principal.HasPermission("users:read")) {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	uc, err := h.service.ResolveUserContext(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": uc})
}
