package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/identity-api/internal/models"
	"github.com/noah-isme/identity-api/internal/service"
	appErrors "github.com/noah-isme/identity-api/pkg/errors"
)

type fakeVerifier struct {
	tokens map[string]*models.TokenClaims
}

func (f fakeVerifier) Verify(_ context.Context, token string, opts service.VerifyOptions) (*models.TokenClaims, error) {
	if opts.Purpose != "" {
		return nil, appErrors.ErrTokenInvalid
	}
	claims, ok := f.tokens[token]
	if !ok {
		return nil, appErrors.ErrTokenInvalid
	}
	return claims, nil
}

var testVerifier = fakeVerifier{tokens: map[string]*models.TokenClaims{
	"admin-token": {Scope: "ROLE_ADMIN USER_READ USER_WRITE", RegisteredClaims: jwt.RegisteredClaims{Subject: "admin"}},
	"user-token":  {Scope: "ROLE_USER USER_READ", RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}},
}}

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/me", JWT(testVerifier), func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.Subject)
	})

	rec := perform(r, http.MethodGet, "/me", "user-token")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/me", "bogus").Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid authorization header")
}

func TestRequireRoles(t *testing.T) {
	r := gin.New()
	r.GET("/admin", JWT(testVerifier), RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/open", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodGet, "/admin", "admin-token").Code)
	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/admin", "user-token").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/open", "").Code)
}

func TestRequirePermissions(t *testing.T) {
	r := gin.New()
	r.GET("/write", JWT(testVerifier), RequirePermissions("USER_READ", "USER_WRITE"), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodGet, "/write", "admin-token").Code)
	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/write", "user-token").Code)
}

type observed struct {
	method, path string
	status       int
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []observed
}

func (f *fakeObserver) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, observed{method, path, status})
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	obs := &fakeObserver{}
	r := gin.New()
	r.Use(Metrics(obs))
	r.GET("/users/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	perform(r, http.MethodGet, "/users/42", "")
	perform(r, http.MethodGet, "/nowhere", "")

	require.Len(t, obs.seen, 2)
	assert.Equal(t, observed{http.MethodGet, "/users/:id", http.StatusOK}, obs.seen[0])
	assert.Equal(t, observed{http.MethodGet, "unmatched", http.StatusNotFound}, obs.seen[1])
}

type fakeAuditWriter struct {
	entries []*models.AuditLog
	err     error
}

func (f *fakeAuditWriter) Create(_ context.Context, entry *models.AuditLog) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	audit := &fakeAuditWriter{}
	r := gin.New()
	r.DELETE("/roles/:name", JWT(testVerifier), Audit(audit, models.AuditActionRoleDelete, "name"), func(c *gin.Context) {
		if c.Param("name") == "MISSING" {
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusNoContent)
	})
	r.POST("/roles", JWT(testVerifier), Audit(audit, models.AuditActionRoleCreate, ""), func(c *gin.Context) {
		c.Set(AuditTargetKey, "AUDITOR")
		c.Status(http.StatusCreated)
	})

	perform(r, http.MethodDelete, "/roles/AUDITOR", "admin-token")
	perform(r, http.MethodDelete, "/roles/MISSING", "admin-token")
	perform(r, http.MethodPost, "/roles", "admin-token")

	require.Len(t, audit.entries, 2)
	assert.Equal(t, models.AuditActionRoleDelete, audit.entries[0].Action)
	assert.Equal(t, "admin", audit.entries[0].Username)
	assert.Equal(t, "DELETE /roles/:name target=AUDITOR", audit.entries[0].Detail)
	assert.Equal(t, "POST /roles target=AUDITOR", audit.entries[1].Detail)
}

func TestAuditFailureDoesNotAffectResponse(t *testing.T) {
	audit := &fakeAuditWriter{err: errors.New("db down")}
	r := gin.New()
	r.POST("/permissions", Audit(audit, models.AuditActionPermCreate, ""), func(c *gin.Context) { c.Status(http.StatusCreated) })
	assert.Equal(t, http.StatusCreated, perform(r, http.MethodPost, "/permissions", "").Code)
}
