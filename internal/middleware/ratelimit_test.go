package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newLimitedRouter(limit int, window time.Duration, clock *fakeClock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(limit, window)
	limiter.now = clock.now

	r := gin.New()
	// Stands in for the JWT middleware.
	r.Use(func(c *gin.Context) {
		if org := c.GetHeader("X-Org"); org != "" {
			c.Set(organizationKey, org)
		}
		c.Next()
	})
	r.Use(limiter.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func get(r *gin.Engine, org string) int {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if org != "" {
		req.Header.Set("X-Org", org)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitRejectsOverLimitAndResets(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)}
	r := newLimitedRouter(2, time.Minute, clock)

	for i := 0; i < 2; i++ {
		if code := get(r, "org-a"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
		clock.t = clock.t.Add(10 * time.Second)
	}
	if code := get(r, "org-a"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over the limit, got %d", code)
	}

	// Another organization has its own window.
	if code := get(r, "org-b"); code != http.StatusOK {
		t.Fatalf("expected other organization to pass, got %d", code)
	}

	// The first request leaves the window one minute after it was made.
	clock.t = clock.t.Add(40 * time.Second)
	if code := get(r, "org-a"); code != http.StatusOK {
		t.Fatalf("expected 200 once the window slides, got %d", code)
	}
	if code := get(r, "org-a"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 while the second request is in the window, got %d", code)
	}

	clock.t = clock.t.Add(time.Minute)
	if code := get(r, "org-a"); code != http.StatusOK {
		t.Fatalf("expected 200 after a full window, got %d", code)
	}
}

func TestRateLimitFallsBackToClientIP(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)}
	r := newLimitedRouter(1, time.Minute, clock)

	if code := get(r, ""); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := get(r, ""); code != http.StatusTooManyRequests {
		t.Fatalf("expected anonymous requests to share the IP window, got %d", code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(0, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		if code := get(r, ""); code != http.StatusOK {
			t.Fatalf("request %d: expected 200 with limiting disabled, got %d", i, code)
		}
	}
}
