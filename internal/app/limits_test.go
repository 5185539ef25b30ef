package app

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"

	u "proxysheet/internal/utils"
)

type memStore struct {
	sync.RWMutex
	m map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{m: make(map[string][]byte)}
}

func (s *memStore) Get(key string) ([]byte, error) {
	s.RLock()
	defer s.RUnlock()
	return s.m[key], nil
}

func (s *memStore) Set(key string, val []byte, exp time.Duration) error {
	s.Lock()
	s.m[key] = val
	s.Unlock()
	return nil
}

func (s *memStore) Delete(key string) error {
	s.Lock()
	delete(s.m, key)
	s.Unlock()
	return nil
}

func (s *memStore) Reset() error {
	s.Lock()
	s.m = make(map[string][]byte)
	s.Unlock()
	return nil
}

func (s *memStore) Close() error { return nil }

func resetLimiters(t *testing.T) {
	t.Helper()
	rateLimitStore = newMemStore()
	tokenLimiterCache.Lock()
	tokenLimiterCache.handlers = nil
	tokenLimiterCache.Unlock()
	t.Cleanup(func() { u.LoadTokensFromMap(nil) })
}

// limitedApp mirrors the production chain of key auth, key and user limiters.
func limitedApp(cfg u.Config) *fiber.App {
	app := fiber.New()
	app.Use(keyauth.New(keyauth.Config{
		KeyLookup:  "header:X-API-Key",
		ContextKey: "api_key",
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			return u.ValidateToken(key), nil
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Get("X-API-Key") == ""
		},
	}))
	app.Use(rateLimitMiddleware())
	app.Use(userRateLimitMiddleware(cfg))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func request(key string) *http.Request {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.RemoteAddr = "1.2.3.4:5678"
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	return req
}

func expectStatuses(t *testing.T, app *fiber.App, key string, want ...int) {
	t.Helper()
	for i, status := range want {
		resp, err := app.Test(request(key), -1)
		if err != nil {
			t.Fatalf("request %d failed: %v", i+1, err)
		}
		if resp.StatusCode != status {
			t.Fatalf("request %d: expected %d but got %d", i+1, status, resp.StatusCode)
		}
	}
}

func TestUserRateLimitMiddleware(t *testing.T) {
	resetLimiters(t)
	cfg := u.Config{}
	cfg.RateLimiter.UserLimit = 2
	cfg.RateLimiter.Interval = time.Hour

	expectStatuses(t, limitedApp(cfg), "", fiber.StatusOK, fiber.StatusOK, fiber.StatusTooManyRequests)
}

func TestUserRateLimitMiddleware_DisabledWithoutLimit(t *testing.T) {
	resetLimiters(t)
	cfg := u.Config{}
	cfg.RateLimiter.Interval = time.Hour

	expectStatuses(t, limitedApp(cfg), "", fiber.StatusOK, fiber.StatusOK, fiber.StatusOK, fiber.StatusOK)
}

func TestTokenRateLimitMiddleware(t *testing.T) {
	resetLimiters(t)
	u.LoadTokensFromMap(map[string]int{"deck-builder": 2, "unlimited": 0})
	u.AppConfig.RateLimiter.Interval = time.Hour

	app := limitedApp(u.Config{})
	expectStatuses(t, app, "deck-builder", fiber.StatusOK, fiber.StatusOK, fiber.StatusTooManyRequests)
	expectStatuses(t, app, "unlimited", fiber.StatusOK, fiber.StatusOK, fiber.StatusOK)
	expectStatuses(t, app, "stolen", fiber.StatusUnauthorized)
}

func TestTokenLimitOverridesUserLimit(t *testing.T) {
	resetLimiters(t)
	u.LoadTokensFromMap(map[string]int{"deck-builder": 100})
	u.AppConfig.RateLimiter.Interval = time.Hour

	cfg := u.Config{}
	cfg.RateLimiter.EnableUserLimiter = true
	cfg.RateLimiter.UserLimit = 2
	cfg.RateLimiter.Interval = time.Hour
	app := limitedApp(cfg)

	expectStatuses(t, app, "", fiber.StatusOK, fiber.StatusOK, fiber.StatusTooManyRequests)
	// same client, now with a key: only the key tier applies
	expectStatuses(t, app, "deck-builder", fiber.StatusOK, fiber.StatusOK, fiber.StatusOK)
}
