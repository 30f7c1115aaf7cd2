package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "schooladmin/pkg/domain"
	"schooladmin/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) { return s.claims, s.err }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAuthenticate(t *testing.T) {
	userID := uuid.New()
	tenantID := uuid.New()

	var seen requestcontext.Caller
	var hadIdentity bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, hadIdentity = requestcontext.Identity(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("anonymous requests pass through", func(t *testing.T) {
		hadIdentity = false
		mw := Authenticate(stubValidator{}, discardLogger())(next)
		rr := httptest.NewRecorder()
		mw.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", nil))

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.False(t, hadIdentity)
	})

	t.Run("valid token sets caller identity", func(t *testing.T) {
		v := stubValidator{claims: &JWTClaims{UserID: userID.String(), TenantID: tenantID.String(), Role: "admin"}}
		mw := Authenticate(v, discardLogger())(next)
		req := httptest.NewRequest(http.MethodGet, "/audit-logs", nil)
		req.Header.Set("Authorization", "Bearer token")
		rr := httptest.NewRecorder()
		mw.ServeHTTP(rr, req)

		require.True(t, hadIdentity)
		assert.Equal(t, id.UserID(userID), seen.UserID)
		require.NotNil(t, seen.TenantID)
		assert.Equal(t, id.TenantID(tenantID), *seen.TenantID)
		assert.Equal(t, id.RoleAdmin, seen.Role)
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		mw := Authenticate(stubValidator{err: errors.New("expired")}, discardLogger())(next)
		req := httptest.NewRequest(http.MethodGet, "/audit-logs", nil)
		req.Header.Set("Authorization", "Bearer token")
		rr := httptest.NewRecorder()
		mw.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.JSONEq(t, `{"error":"unauthorized","error_description":"Invalid or expired token"}`, rr.Body.String())
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		v := stubValidator{claims: &JWTClaims{UserID: userID.String(), Role: "janitor"}}
		mw := Authenticate(v, discardLogger())(next)
		req := httptest.NewRequest(http.MethodGet, "/audit-logs", nil)
		req.Header.Set("Authorization", "Bearer token")
		rr := httptest.NewRecorder()
		mw.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestRequireAuth(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mw := RequireAuth(discardLogger())(next)

	rr := httptest.NewRecorder()
	mw.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit-logs/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/audit-logs/me", nil)
	req = req.WithContext(requestcontext.WithIdentity(req.Context(), requestcontext.Caller{
		UserID: id.UserID(uuid.New()),
		Role:   id.RoleTeacher,
	}))
	rr = httptest.NewRecorder()
	mw.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
