package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(mw gin.HandlerFunc, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	router.POST("/analyze", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.OPTIONS("/analyze", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(method, "/analyze", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHeadersMiddleware_LocksDownResponses(t *testing.T) {
	h := serve(HeadersMiddleware(), http.MethodPost, "").Header()

	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "no-store", h.Get("Cache-Control"))
	assert.Contains(t, h.Get("Content-Security-Policy"), "default-src 'none'")
	assert.Contains(t, h.Get("Content-Security-Policy"), "wss:")
}

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		allowed []string
		origin  string
		want    bool
	}{
		{nil, "https://dashboard.local", true},
		{[]string{"*"}, "https://anywhere.test", true},
		{[]string{" https://ops.risklens.test "}, "https://ops.risklens.test", true},
		{[]string{"https://ops.risklens.test"}, "https://ops.risklens.test.evil", false},
		{[]string{"https://ops.risklens.test"}, "", true},
		{[]string{""}, "https://dashboard.local", false},
	}
	for _, tt := range tests {
		p := NewOriginPolicy(tt.allowed)
		assert.Equal(t, tt.want, p.Allowed(tt.origin), "allowed=%v origin=%q", tt.allowed, tt.origin)

		req := httptest.NewRequest(http.MethodGet, "/ws/feed", nil)
		req.Header.Set("Origin", tt.origin)
		assert.Equal(t, tt.want, p.CheckOrigin(req))
	}
}

func TestCORSMiddleware(t *testing.T) {
	t.Run("listed origin gets credentials", func(t *testing.T) {
		w := serve(NewOriginPolicy([]string{"https://ops.risklens.test"}).CORSMiddleware(), http.MethodPost, "https://ops.risklens.test")
		assert.Equal(t, "https://ops.risklens.test", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})

	t.Run("wildcard omits credentials", func(t *testing.T) {
		w := serve(NewOriginPolicy([]string{"*"}).CORSMiddleware(), http.MethodPost, "https://anywhere.test")
		assert.Equal(t, "https://anywhere.test", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unlisted origin gets nothing", func(t *testing.T) {
		w := serve(NewOriginPolicy([]string{"https://ops.risklens.test"}).CORSMiddleware(), http.MethodPost, "https://evil.test")
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		w := serve(NewOriginPolicy(nil).CORSMiddleware(), http.MethodOptions, "https://dashboard.local")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Admin-Secret")
	})
}

func TestSecretMatches(t *testing.T) {
	assert.False(t, SecretMatches("", ""), "unset secret never matches")
	assert.False(t, SecretMatches("anything", ""))
	assert.True(t, SecretMatches("s3cret", "s3cret"))
	assert.False(t, SecretMatches("s3cre", "s3cret"))
	assert.False(t, SecretMatches("S3CRET", "s3cret"))
}
