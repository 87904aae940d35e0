package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/http/middleware"
	"codejudge/internal/common/ratelimit"
	"codejudge/pkg/utils/contextkey"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestTraceContextGeneratesAndPropagates(t *testing.T) {
	t.Parallel()
	router := gin.New()
	router.Use(middleware.TraceContext(), middleware.RequestLogger())
	var seenTrace any
	router.GET("/x", func(c *gin.Context) {
		seenTrace = c.Request.Context().Value(contextkey.TraceID)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	traceID := w.Header().Get(middleware.TraceIDHeader)
	if traceID == "" || w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Fatalf("expected generated ids, got headers %v", w.Header())
	}
	if seenTrace != traceID {
		t.Fatalf("context trace id %v does not match header %s", seenTrace, traceID)
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(middleware.TraceIDHeader, "trace-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get(middleware.TraceIDHeader); got != "trace-123" {
		t.Fatalf("expected caller trace id to be kept, got %s", got)
	}
}

func TestRateLimitPerIP(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(cache.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	defer c.Close()
	svc := ratelimit.NewService(c, time.Minute, time.Second)

	router := gin.New()
	router.Use(middleware.TraceContext())
	router.POST("/evaluate", middleware.RateLimit(svc, "evaluate", middleware.RateLimitPolicy{IPMax: 2}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/evaluate", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}

	req := httptest.NewRequest(http.MethodPost, "/evaluate", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("other client throttled: %d", w.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	t.Parallel()
	router := gin.New()
	router.GET("/x", middleware.RateLimit(nil, "x", middleware.RateLimitPolicy{IPMax: 1}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected pass-through, got %d", w.Code)
		}
	}
}
