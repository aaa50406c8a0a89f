package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestKeys_Match(t *testing.T) {
	k := NewKeys("sk_one", " ", "sk_two ")

	id, ok := k.Match("sk_two")
	require.True(t, ok)
	assert.Len(t, id, 8)

	_, ok = k.Match("sk_three")
	assert.False(t, ok)
	_, ok = k.Match("")
	assert.False(t, ok)
}

func TestKeys_Disabled(t *testing.T) {
	assert.False(t, NewKeys().Enabled())
	assert.False(t, NewKeys("", "  ").Enabled())

	var nilKeys *Keys
	assert.False(t, nilKeys.Enabled())
}

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"bearer", "Authorization", "Bearer sk_abc", "sk_abc"},
		{"raw authorization", "Authorization", "sk_abc", "sk_abc"},
		{"x-api-key", "X-API-Key", "sk_abc", "sk_abc"},
		{"none", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			assert.Equal(t, tt.want, FromRequest(r))
		})
	}
}

func newRouter(k *Keys) *gin.Engine {
	r := gin.New()
	r.Use(RequireKey(k))
	r.Any("/mcp", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextKeyKeyID))
	})
	return r
}

func TestRequireKey(t *testing.T) {
	r := newRouter(NewKeys("sk_live"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":-32001`)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer sk_live")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Body.String(), 8)
}

func TestRequireKey_OpenWhenUnconfigured(t *testing.T) {
	r := newRouter(NewKeys())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireKey_PreflightPasses(t *testing.T) {
	r := newRouter(NewKeys("sk_live"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/mcp", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
