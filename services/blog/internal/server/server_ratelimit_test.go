package server

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"inkpost/internal/ratelimit"
)

func TestWriteRateLimitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(client, "test:blog:write", 2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	ts := newTestServer(t, withLimiter(limiter))

	// sign-in consumes one write
	a, token := ts.signIn("a@x.com")
	ts.expect(http.MethodPost, "/posts", token, map[string]any{"title": "T", "authorId": a.ID}, http.StatusCreated, nil)

	resp, _ := ts.do(http.MethodPost, "/posts", token, map[string]any{"title": "T", "authorId": a.ID})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 1 || secs > 60 {
		t.Fatalf("Retry-After = %q", resp.Header.Get("Retry-After"))
	}

	// reads are never limited
	ts.expect(http.MethodGet, "/posts", "", nil, http.StatusOK, nil)
}

func TestWriteRateLimitLocal(t *testing.T) {
	limiter, err := ratelimit.NewLocalLimiter(1)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	ts := newTestServer(t, withLimiter(limiter))
	ts.signIn("a@x.com")
	resp, _ := ts.do(http.MethodPost, "/auth/session", "", map[string]string{"email": "b@x.com"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}
