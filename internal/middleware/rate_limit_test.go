package middleware

import (
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func TestMutationRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-User"))
		return c.Next()
	})
	app.Use(MutationRateLimit(cache, 2))
	app.Post("/wallet/fund", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/wallet", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	send := func(method, user string) int {
		path := "/wallet/fund"
		if method == fiber.MethodGet {
			path = "/wallet"
		}
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if code := send(fiber.MethodPost, "alice"); code != fiber.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, code)
		}
	}
	if code := send(fiber.MethodPost, "alice"); code != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", code)
	}
	if code := send(fiber.MethodPost, "bob"); code != fiber.StatusOK {
		t.Fatalf("other users keep their own budget, got %d", code)
	}
	if code := send(fiber.MethodGet, "alice"); code != fiber.StatusOK {
		t.Fatalf("reads are not limited, got %d", code)
	}
}
