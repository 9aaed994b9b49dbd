package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/escribia-dev/post-scheduler/backend/internal/config"
	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHandler() *Handler {
	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.Expiration = 1
	return &Handler{config: cfg}
}

func TestSignAndParseToken(t *testing.T) {
	h := testHandler()
	user := &domain.User{ID: 42, Role: domain.RoleAdmin, AgencyID: 7}

	ss, expiration, err := h.signToken(user)
	require.NoError(t, err)
	assert.False(t, expiration.IsZero())

	claims, err := h.parseToken(ss)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, int64(7), claims.AgencyID)
}

func TestParseToken_RejectsOtherSecret(t *testing.T) {
	ss, _, err := testHandler().signToken(&domain.User{ID: 1, Role: domain.RoleEditor})
	require.NoError(t, err)

	other := testHandler()
	other.config.JWT.Secret = "another-secret"
	_, err = other.parseToken(ss)
	assert.Error(t, err)
}

func TestTokenFromRequest(t *testing.T) {
	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.AddCookie(&http.Cookie{Name: tokenCookieName, Value: "from-cookie"})
		r.Header.Set("Authorization", "Bearer from-header")

		token, ok := tokenFromRequest(r)
		assert.True(t, ok)
		assert.Equal(t, "from-cookie", token)
	})

	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "bearer from-header")

		token, ok := tokenFromRequest(r)
		assert.True(t, ok)
		assert.Equal(t, "from-header", token)
	})

	t.Run("missing", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

		_, ok := tokenFromRequest(r)
		assert.False(t, ok)
	})
}

func TestLoggerSetsRequestID(t *testing.T) {
	h := testHandler()
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(RequestIDCtxKey).(string)
	})

	rec := httptest.NewRecorder()
	h.logger(next).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(requestIDHeader))

	rec = httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set(requestIDHeader, "abc")
	h.logger(next).ServeHTTP(rec, r)
	assert.Equal(t, "abc", seen)
}
