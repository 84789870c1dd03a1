package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func requestFrom(r http.Handler, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/calculate", nil)
	req.RemoteAddr = addr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiterMiddleware(RateLimiterConfig{RequestsPerSecond: 0.5, Burst: 2}))
	r.POST("/calculate", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, requestFrom(r, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, requestFrom(r, "10.0.0.1:1001").Code)

	w := requestFrom(r, "10.0.0.1:1002")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "Rate limit exceeded")

	// Rejections do not consume tokens, and other clients are unaffected.
	assert.Equal(t, http.StatusTooManyRequests, requestFrom(r, "10.0.0.1:1003").Code)
	assert.Equal(t, http.StatusOK, requestFrom(r, "10.0.0.2:1000").Code)
}

func TestLimiterMapEviction(t *testing.T) {
	m := newLimiterMap(RateLimiterConfig{RequestsPerSecond: 1, IdleTTL: time.Minute})
	assert.Equal(t, 1, m.config.Burst)

	start := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	first := m.get("10.0.0.1", start)
	m.get("10.0.0.2", start.Add(50*time.Second))
	assert.Same(t, first, m.get("10.0.0.1", start.Add(10*time.Second)))
	assert.Equal(t, 2, m.size())

	assert.Equal(t, 1, m.evict(start.Add(75*time.Second)))
	assert.Equal(t, 1, m.size())
	assert.Equal(t, 1, m.evict(start.Add(3*time.Minute)))
	assert.Zero(t, m.size())
}

func TestFormatRetryAfter(t *testing.T) {
	assert.Equal(t, "1", formatRetryAfter(0))
	assert.Equal(t, "1", formatRetryAfter(0.2))
	assert.Equal(t, "3", formatRetryAfter(2.01))
}

func TestRequestLogger(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/broken", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/health", "/ok", "/missing", "/broken"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	levels := make(map[string]logrus.Level)
	for _, e := range hook.AllEntries() {
		levels[e.Data["path"].(string)] = e.Level
	}
	assert.NotContains(t, levels, "/health")
	assert.Equal(t, logrus.InfoLevel, levels["/ok"])
	assert.Equal(t, logrus.WarnLevel, levels["/missing"])
	assert.Equal(t, logrus.ErrorLevel, levels["/broken"])
}
