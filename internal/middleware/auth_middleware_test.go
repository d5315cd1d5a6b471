package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lostfound/backend/internal/models"
	"github.com/lostfound/backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubResolver maps tokens to users or errors.
type stubResolver struct {
	users map[string]*models.User
	errs  map[string]error
}

func (r *stubResolver) ResolveToken(_ context.Context, token string) (*models.User, error) {
	if err, ok := r.errs[token]; ok {
		return nil, err
	}
	if u, ok := r.users[token]; ok {
		return u, nil
	}
	return nil, service.ErrInvalidToken
}

func newStubResolver() *stubResolver {
	return &stubResolver{
		users: map[string]*models.User{
			"user-token":      {ID: uuid.New(), Username: "alice", Role: models.RoleUser},
			"moderator-token": {ID: uuid.New(), Username: "mod", Role: models.RoleModerator},
			"admin-token":     {ID: uuid.New(), Username: "admin", Role: models.RoleAdmin},
		},
		errs: map[string]error{
			"inactive-token": service.ErrInactiveAccount,
			"broken-token":   errors.New("connection refused"),
		},
	}
}

func authRouter(resolver TokenResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	whoami := func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"username": ""})
			return
		}
		c.JSON(http.StatusOK, gin.H{"username": user.Username})
	}

	router.GET("/required", AuthMiddleware(resolver), whoami)
	router.GET("/optional", OptionalAuth(resolver), whoami)
	router.GET("/moderator", AuthMiddleware(resolver), RequireModerator(), whoami)
	router.GET("/admin", AuthMiddleware(resolver), RequireAdmin(), whoami)
	router.GET("/unguarded-admin", RequireAdmin(), whoami)
	return router
}

func call(router *gin.Engine, path, authHeader string) (int, map[string]interface{}) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w.Code, body
}

func TestAuthMiddleware(t *testing.T) {
	router := authRouter(newStubResolver())

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantError  string
	}{
		{"missing header", "", http.StatusUnauthorized, "Authorization header required"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "Invalid authorization format. Use: Bearer <token>"},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, "Invalid or expired token"},
		{"inactive account", "Bearer inactive-token", http.StatusUnauthorized, "Account is deactivated"},
		{"store failure", "Bearer broken-token", http.StatusInternalServerError, "Server error"},
		{"valid", "Bearer user-token", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(router, "/required", tt.header)
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
			} else {
				assert.Equal(t, "alice", body["username"])
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	router := authRouter(newStubResolver())

	status, body := call(router, "/optional", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "", body["username"])

	status, body = call(router, "/optional", "Bearer moderator-token")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "mod", body["username"])

	// A supplied but bad token is not downgraded to anonymous
	status, body = call(router, "/optional", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid or expired token", body["error"])
}

func TestRoleGates(t *testing.T) {
	router := authRouter(newStubResolver())

	tests := []struct {
		path       string
		token      string
		wantStatus int
	}{
		{"/moderator", "user-token", http.StatusForbidden},
		{"/moderator", "moderator-token", http.StatusOK},
		{"/moderator", "admin-token", http.StatusOK},
		{"/admin", "user-token", http.StatusForbidden},
		{"/admin", "moderator-token", http.StatusForbidden},
		{"/admin", "admin-token", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.path+"_"+tt.token, func(t *testing.T) {
			status, _ := call(router, tt.path, "Bearer "+tt.token)
			assert.Equal(t, tt.wantStatus, status)
		})
	}

	status, body := call(router, "/unguarded-admin", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Unauthorized", body["error"])
}

func TestRecoveryAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), RequestLogger(), Recovery())
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Server error"}`, w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/panic", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	_, err := uuid.Parse(w.Header().Get("X-Request-ID"))
	assert.NoError(t, err)
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SecurityHeadersMiddleware(), HSTSMiddleware(true))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000")
}
