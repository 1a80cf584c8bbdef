package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-iam/gatehouse/internal/observability"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

type stubTokens map[string]string

func (s stubTokens) Resolve(ctx context.Context, token string) (string, error) {
	userID, ok := s[token]
	if !ok {
		return "", shared.ErrUnauthorized
	}
	return userID, nil
}

type stubResolver map[string]UserContext

func (s stubResolver) ResolveUserContext(ctx context.Context, userID string) (UserContext, error) {
	uc, ok := s[userID]
	if !ok {
		return UserContext{}, shared.NotFoundError("user", userID)
	}
	return uc, nil
}

type recordingMetrics struct {
	outcomes []string
}

func (r *recordingMetrics) RecordAuthzDecision(outcome string) {
	r.outcomes = append(r.outcomes, outcome)
}

func newTestMiddleware(metrics *recordingMetrics) Middleware {
	mw := Middleware{
		Tokens: stubTokens{"tok-ada": "u1"},
		Resolver: stubResolver{
			"u1": {
				User:        User{ID: "u1", Email: "ada@example.com"},
				Permissions: []Permission{{ID: 1, Name: "users:read"}},
			},
		},
	}
	// Assigning a nil pointer into the interface field would make the
	// middleware's nil check pass and dispatch to a nil receiver.
	if metrics != nil {
		mw.Metrics = metrics
	}
	return mw
}

func TestRequireGrantsMatchingPermission(t *testing.T) {
	metrics := &recordingMetrics{}
	mw := newTestMiddleware(metrics)

	var seen *shared.Principal
	handler := mw.Require("users:read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer tok-ada")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.UserID)
	assert.Equal(t, []string{"granted"}, metrics.outcomes)
}

func TestRequireDeniesMissingPermission(t *testing.T) {
	metrics := &recordingMetrics{}
	mw := newTestMiddleware(metrics)

	handler := mw.Require("users:write")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodPatch, "/users/u2", nil)
	req.Header.Set("Authorization", "Bearer tok-ada")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, []string{"denied"}, metrics.outcomes)
}

func TestRequireRejectsMissingToken(t *testing.T) {
	metrics := &recordingMetrics{}
	mw := newTestMiddleware(metrics)

	handler := mw.Require("users:read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, []string{"unauthenticated"}, metrics.outcomes)
}

func TestRequireRejectsUnknownToken(t *testing.T) {
	mw := newTestMiddleware(nil)

	handler := mw.Require("users:read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer revoked")
	rec := httptest.NewRecorder()
	require.NotPanics(t, func() { handler.ServeHTTP(rec, req) })

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireToleratesNilConcreteRecorder(t *testing.T) {
	mw := newTestMiddleware(nil)
	mw.Metrics = (*observability.Metrics)(nil)

	handler := mw.Require("users:read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer tok-ada")
	rec := httptest.NewRecorder()
	require.NotPanics(t, func() { handler.ServeHTTP(rec, req) })

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthenticatedAttachesPrincipal(t *testing.T) {
	mw := newTestMiddleware(nil)

	var seen *shared.Principal
	handler := mw.Authenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.PrincipalFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/users/u1/context", nil)
	req.Header.Set("Authorization", "Bearer tok-ada")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, seen)
	assert.Equal(t, "ada@example.com", seen.Email)
	assert.Equal(t, []string{"users:read"}, seen.Permissions)
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer tok", "tok"},
		{"bearer tok", "tok"},
		{"Basic dXNlcg==", ""},
		{"Bearer", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		assert.Equal(t, tc.want, bearerToken(req), "header %q", tc.header)
	}
}
