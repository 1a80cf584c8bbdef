package authz

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gatehouse-iam/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// TokenVerifier resolves a bearer token to a user ID.
type TokenVerifier interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// ContextResolver resolves the access-control context for a user.
type ContextResolver interface {
	ResolveUserContext(ctx context.Context, userID string) (UserContext, error)
}

// DecisionRecorder counts authorization outcomes for observability.
type DecisionRecorder interface {
	RecordAuthzDecision(outcome string)
}

// Middleware guards routes by required permission. It authenticates the
// bearer token, resolves the caller's effective permission set, and attaches
// the principal to the request context.
type Middleware struct {
	Tokens   TokenVerifier
	Resolver ContextResolver
	Logger   *slog.Logger
	Metrics  DecisionRecorder
}

func (m Middleware) record(outcome string) {
	if m.Metrics != nil {
		m.Metrics.RecordAuthzDecision(outcome)
	}
}

// Require allows only callers holding the named permission.
func (m Middleware) Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := m.authenticate(w, r)
			if !ok {
				return
			}
			if !principal.HasPermission(permission) {
				if m.Logger != nil {
					m.Logger.Warn("permission denied",
						slog.String("user_id", principal.UserID),
						slog.String("permission", permission),
					)
				}
				m.record("denied")
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			m.record("granted")
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// Authenticated allows any caller with a valid token, leaving authorization
// decisions to the handler.
func (m Middleware) Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := m.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

func (m Middleware) authenticate(w http.ResponseWriter, r *http.Request) (*shared.Principal, bool) {
	token := bearerToken(r)
	if token == "" || m.Tokens == nil || m.Resolver == nil {
		m.record("unauthenticated")
		httpx.RespondError(w, shared.ErrUnauthorized)
		return nil, false
	}
	userID, err := m.Tokens.Resolve(r.Context(), token)
	if err != nil {
		m.record("unauthenticated")
		httpx.RespondError(w, shared.ErrUnauthorized)
		return nil, false
	}
	uc, err := m.Resolver.ResolveUserContext(r.Context(), userID)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("resolve principal", slog.String("user_id", userID), slog.Any("error", err))
		}
		m.record("unauthenticated")
		httpx.RespondError(w, shared.ErrUnauthorized)
		return nil, false
	}
	return &shared.Principal{
		UserID:      uc.User.ID,
		Email:       uc.User.Email,
		Permissions: uc.PermissionNames(),
	}, true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
