package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gemini-Podplai/mumabear/pkg/cache"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": c.GetString(ContextRequestID)})
	})
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID())

	w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	id := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Contains(t, w.Body.String(), id)

	inbound := uuid.New().String()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, inbound)
	assert.Equal(t, inbound, serve(r, req).Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid\nInjected: yes")
	assert.NotEqual(t, "not-a-uuid\nInjected: yes", serve(r, req).Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	r := newEngine(RequestID(), Recovery())

	w := serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"An unexpected error occurred."}`, w.Body.String())
}

func TestLogging_PassesThrough(t *testing.T) {
	r := newEngine(RequestID(), Logging())
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/ping?x=1", nil)).Code)
}

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		required bool
		header   string
		value    string
		want     int
	}{
		{"valid x-api-key", "s3cret-admin-key", true, "X-API-Key", "s3cret-admin-key", http.StatusOK},
		{"valid bearer", "s3cret-admin-key", true, "Authorization", "Bearer s3cret-admin-key", http.StatusOK},
		{"wrong key", "s3cret-admin-key", true, "X-API-Key", "nope", http.StatusUnauthorized},
		{"missing key", "s3cret-admin-key", true, "", "", http.StatusUnauthorized},
		{"unconfigured required", "", true, "X-API-Key", "anything", http.StatusServiceUnavailable},
		{"unconfigured optional", "", false, "", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(APIKeyAuth(tt.expected, tt.required))
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			assert.Equal(t, tt.want, serve(r, req).Code)
		})
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	r := newEngine(RateLimit(nil, 1, time.Minute))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil)).Code)
	}
}

func TestRateLimit_FailsOpenOnRedisError(t *testing.T) {
	rc := cache.FromClient(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}))
	defer rc.Close()

	r := newEngine(RateLimit(rc, 1, time.Minute))
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil)).Code)
}

func TestRateLimitID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("X-API-Key", "abcdefghijklmnopqrstuvwxyz")
	assert.Equal(t, "abcdefghijklmnop", rateLimitID(c))

	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", rateLimitID(c))
}

func TestCORS(t *testing.T) {
	r := newEngine(CORS([]string{"https://sanctuary.example"}))

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://sanctuary.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://sanctuary.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)
}
