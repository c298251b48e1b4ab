package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(t *testing.T, header string) (string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var fromCtx string
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		fromCtx = FromContext(c.Request.Context())
		assert.Equal(t, fromCtx, Value(c))
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(HeaderKey, header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header().Get(HeaderKey), fromCtx
}

func TestMiddlewareReusesClientID(t *testing.T) {
	echoed, fromCtx := serve(t, "abc-123")
	assert.Equal(t, "abc-123", echoed)
	assert.Equal(t, "abc-123", fromCtx)
}

func TestMiddlewareGeneratesID(t *testing.T) {
	echoed, fromCtx := serve(t, "")
	assert.Len(t, echoed, 36)
	assert.Equal(t, echoed, fromCtx)
}

func TestMiddlewareReplacesOversizedID(t *testing.T) {
	echoed, _ := serve(t, strings.Repeat("x", maxLength+1))
	assert.Len(t, echoed, 36)
}
