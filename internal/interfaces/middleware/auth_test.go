package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T) (*gin.Engine, *auth.TokenIssuer) {
	t.Helper()
	issuer, err := auth.NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	api := r.Group("/api", RequireAuth(issuer))
	api.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, ActorFrom(c))
	})
	api.POST("/callbacks", RequireServiceRole(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, issuer
}

func do(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	r, issuer := newRouter(t)

	w := do(r, http.MethodGet, "/api/whoami", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/api/whoami", "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.Header.Set("Authorization", "Token abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := issuer.GenerateToken(auth.Subject{UserID: "u-1", Name: "Ada", Role: domain.ActorRoleUser})
	require.NoError(t, err)
	w = do(r, http.MethodGet, "/api/whoami", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"u-1","name":"Ada","role":"user"}`, w.Body.String())
}

func TestRequireServiceRole(t *testing.T) {
	r, issuer := newRouter(t)

	user, err := issuer.GenerateToken(auth.Subject{UserID: "u-1", Role: domain.ActorRoleUser})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/api/callbacks", user).Code)

	svc, err := issuer.GenerateToken(auth.Subject{UserID: "exam-service", Role: domain.ActorRoleService})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/api/callbacks", svc).Code)
}
