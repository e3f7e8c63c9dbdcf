package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"trafficops_backend/platform/logger"
)

func newLimitedEngine(skip ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	limiter := NewIPRateLimiter(rate.Every(time.Minute), 1, logger.New("test"))
	engine := gin.New()
	engine.Use(limiter.RateLimit(skip...))
	engine.POST("/hook", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/other", func(c *gin.Context) { c.Status(http.StatusOK) })
	return engine
}

func TestRateLimitThrottlesByIP(t *testing.T) {
	engine := newLimitedEngine()

	first := httptest.NewRecorder()
	engine.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/other", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	engine.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/other", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past the burst, got %d", second.Code)
	}
}

func TestRateLimitSkipsExemptPath(t *testing.T) {
	engine := newLimitedEngine("/hook")

	// Well past the burst; the exempt path must never throttle.
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/hook", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("exempt request %d got %d", i, w.Code)
		}
	}
}
