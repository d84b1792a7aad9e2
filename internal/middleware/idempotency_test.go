package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/fxledger/internal/logging"
)

type idempotencyApp struct {
	app   *fiber.App
	calls *atomic.Int32
}

func setupTestApp(t *testing.T) (*idempotencyApp, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	calls := new(atomic.Int32)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-User", "user-1"))
		return c.Next()
	})
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/wallet/fund", func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"call": n})
	})
	app.Post("/wallet/convert", func(c *fiber.Ctx) error {
		calls.Add(1)
		return fiber.NewError(fiber.StatusServiceUnavailable, "exchange rate unavailable")
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return &idempotencyApp{app: app, calls: calls}, cleanup
}

func (a *idempotencyApp) post(t *testing.T, path, key, user, body string) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	if user != "" {
		req.Header.Set("X-User", user)
	}
	resp, err := a.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(payload), resp.Header.Get(idempotencyReplayHeader)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	a, cleanup := setupTestApp(t)
	defer cleanup()

	if code, _, _ := a.post(t, "/wallet/fund", "", "", "{}"); code != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, code)
	}
	if code, _, _ := a.post(t, "/wallet/fund", strings.Repeat("k", maxIdempotencyKeyLen+1), "", "{}"); code != fiber.StatusBadRequest {
		t.Fatalf("expected %d for oversized key got %d", fiber.StatusBadRequest, code)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	a, cleanup := setupTestApp(t)
	defer cleanup()

	body := `{"currency":"NGN","amount":"100"}`
	code, first, replayed := a.post(t, "/wallet/fund", "abc123", "", body)
	if code != fiber.StatusOK {
		t.Fatalf("expected status %d got %d", fiber.StatusOK, code)
	}
	if replayed != "" {
		t.Fatalf("first response must not be marked as replayed")
	}

	code, second, replayed := a.post(t, "/wallet/fund", "abc123", "", body)
	if code != fiber.StatusOK {
		t.Fatalf("expected cached status %d got %d", fiber.StatusOK, code)
	}
	if second != first {
		t.Fatalf("expected cached payload %s got %s", first, second)
	}
	if replayed != "true" {
		t.Fatalf("expected replay header on cached response")
	}
	if n := a.calls.Load(); n != 1 {
		t.Fatalf("handler should run once, ran %d times", n)
	}
}

func TestIdempotencyRejectsDifferentPayload(t *testing.T) {
	a, cleanup := setupTestApp(t)
	defer cleanup()

	a.post(t, "/wallet/fund", "k1", "", `{"currency":"NGN","amount":"100"}`)
	code, _, _ := a.post(t, "/wallet/fund", "k1", "", `{"currency":"NGN","amount":"999"}`)
	if code != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected %d got %d", fiber.StatusUnprocessableEntity, code)
	}
}

func TestIdempotencyKeysAreScopedPerCaller(t *testing.T) {
	a, cleanup := setupTestApp(t)
	defer cleanup()

	a.post(t, "/wallet/fund", "shared", "alice", "{}")
	_, _, replayed := a.post(t, "/wallet/fund", "shared", "bob", "{}")
	if replayed != "" {
		t.Fatalf("another caller must not see a replay")
	}
	if n := a.calls.Load(); n != 2 {
		t.Fatalf("expected 2 handler runs got %d", n)
	}
}

func TestIdempotencyReleasesKeyOnFailure(t *testing.T) {
	a, cleanup := setupTestApp(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		code, _, replayed := a.post(t, "/wallet/convert", "retry-me", "", "{}")
		if code != fiber.StatusServiceUnavailable {
			t.Fatalf("attempt %d: expected %d got %d", i, fiber.StatusServiceUnavailable, code)
		}
		if replayed != "" {
			t.Fatalf("attempt %d: failures must not be replayed", i)
		}
	}
	if n := a.calls.Load(); n != 2 {
		t.Fatalf("failed request should be retried, handler ran %d times", n)
	}
}
