package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"skin-recommender/internal/infrastructure/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.POST("/echo", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/echo", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func post(r http.Handler, body, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if ip != "" {
		req.RemoteAddr = ip + ":1234"
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_PerClient(t *testing.T) {
	r := newEngine(RateLimit(2, time.Minute))

	assert.Equal(t, http.StatusOK, post(r, "{}", "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, post(r, "{}", "10.0.0.1").Code)

	w := post(r, "{}", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "TOO_MANY_REQUESTS")

	assert.Equal(t, http.StatusOK, post(r, "{}", "10.0.0.2").Code)
}

func TestDeduplication(t *testing.T) {
	cfg := config.Default()
	cfg.DedupWindow = time.Minute
	r := newEngine(Deduplication(cfg))

	assert.Equal(t, http.StatusOK, post(r, `{"user_id":"a"}`, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, post(r, `{"user_id":"a"}`, "").Code)
	assert.Equal(t, http.StatusOK, post(r, `{"user_id":"b"}`, "").Code)

	// GET 不去重
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/echo", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestDeduplicator_WindowExpires(t *testing.T) {
	d := &deduplicator{window: time.Second, requests: make(map[string]time.Time)}
	now := time.Now()

	assert.False(t, d.seen("k", now))
	assert.True(t, d.seen("k", now.Add(500*time.Millisecond)))
	assert.False(t, d.seen("k", now.Add(2*time.Second)))
}

func TestBodySizeLimit(t *testing.T) {
	r := newEngine(BodySizeLimit(8))

	assert.Equal(t, http.StatusOK, post(r, "{}", "").Code)

	w := post(r, `{"user_id":"too-long"}`, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "REQUEST_TOO_LARGE")
}

func TestRecovery(t *testing.T) {
	r := newEngine(Recovery(), Logger())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}
