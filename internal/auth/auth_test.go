package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	token, err := m.GenerateAccessToken("alice", RoleReviewer)
	require.NoError(t, err)

	u, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Subject)
	assert.True(t, u.HasScope(ScopeHitlDecide))
	assert.Equal(t, "jwt", u.TokenType)
}

func TestJWTRejects(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)

	other, err := NewJWTManager("other", time.Minute).GenerateAccessToken("bob", RoleUser)
	require.NoError(t, err)
	_, err = m.ValidateAccessToken(other)
	assert.Error(t, err, "wrong key")

	claims := CustomClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "bob",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = m.ValidateAccessToken(expired)
	assert.Error(t, err)

	foreign := CustomClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "bob", Issuer: "someone-else"}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, foreign).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = m.ValidateAccessToken(tok)
	assert.Error(t, err, "wrong issuer")
}

func TestScopesForRole(t *testing.T) {
	assert.Equal(t, []string{ScopeDebatesRead}, ScopesForRole(RoleViewer))
	assert.NotContains(t, ScopesForRole(RoleUser), ScopeHitlDecide)
	assert.Contains(t, ScopesForRole(RoleReviewer), ScopeHitlDecide)
}

func TestHTTPMiddleware(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	token, err := m.GenerateAccessToken("alice", RoleUser)
	require.NoError(t, err)

	var seen *UserContext
	h := NewMiddleware(m).HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetUserContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing", "/debates", "", http.StatusUnauthorized},
		{"malformed", "/debates", "Token abc", http.StatusUnauthorized},
		{"invalid", "/debates", "Bearer abc", http.StatusUnauthorized},
		{"valid", "/debates", "Bearer " + token, http.StatusNoContent},
		{"stream query", "/stream/sse?token=" + token, "", http.StatusNoContent},
		{"query ignored elsewhere", "/debates?token=" + token, "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, "alice", seen.Subject)
			}
		})
	}
}

func TestDevModeAndScopes(t *testing.T) {
	var ctx context.Context
	h := NewMiddleware(nil).HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, ctx)
	assert.NoError(t, RequireScopes(ctx, ScopeDebatesWrite, ScopeHitlDecide))

	viewer := context.WithValue(context.Background(), UserContextKey, &UserContext{Scopes: ScopesForRole(RoleViewer)})
	assert.ErrorIs(t, RequireScopes(viewer, ScopeDebatesWrite), ErrPermissionDenied)
	assert.ErrorIs(t, RequireScopes(context.Background(), ScopeDebatesRead), ErrUnauthenticated)
}
