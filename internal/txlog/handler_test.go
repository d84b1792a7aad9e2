package txlog

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

type captureRepo struct {
	got   Filter
	items []Transaction
}

func (r *captureRepo) List(_ context.Context, userID string, f Filter) (Page, error) {
	r.got = f
	f = f.Normalize(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	return Paginate(r.items, userID, f), nil
}

func setupHistoryApp(repo Repository) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if uid := c.Get("X-Test-User"); uid != "" {
			c.Locals("user_id", uid)
		}
		return c.Next()
	})
	app.Get("/transactions", NewHandler(repo).List)
	return app
}

func TestHandlerListParsesFilters(t *testing.T) {
	repo := &captureRepo{}
	app := setupHistoryApp(repo)

	req := httptest.NewRequest(fiber.MethodGet, "/transactions?type=conversion&status=completed&startDate=2025-01-01&endDate=2025-01-15&page=2&limit=5", nil)
	req.Header.Set("X-Test-User", "u1")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}

	if repo.got.Type != TypeConversion || repo.got.Status != StatusCompleted {
		t.Fatalf("unexpected type/status %q/%q", repo.got.Type, repo.got.Status)
	}
	if repo.got.Page != 2 || repo.got.Limit != 5 {
		t.Fatalf("unexpected paging %d/%d", repo.got.Page, repo.got.Limit)
	}
	wantStart := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !repo.got.StartDate.Equal(wantStart) {
		t.Fatalf("expected start %v got %v", wantStart, repo.got.StartDate)
	}
	wantEnd := time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
	if !repo.got.EndDate.Equal(wantEnd) {
		t.Fatalf("plain end date should cover the whole day, got %v", repo.got.EndDate)
	}

	var body struct {
		Transactions []Transaction `json:"transactions"`
		Pagination   struct {
			Total int `json:"total"`
			Page  int `json:"page"`
			Limit int `json:"limit"`
		} `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Transactions == nil || len(body.Transactions) != 0 {
		t.Fatalf("expected an empty list, got %v", body.Transactions)
	}
	if body.Pagination.Page != 2 || body.Pagination.Limit != 5 {
		t.Fatalf("unexpected pagination %+v", body.Pagination)
	}
}

func TestHandlerListRejectsBadInput(t *testing.T) {
	app := setupHistoryApp(&captureRepo{})

	cases := []struct {
		name string
		path string
		user string
		want int
	}{
		{"unauthenticated", "/transactions", "", fiber.StatusUnauthorized},
		{"bad type", "/transactions?type=REFUND", "u1", fiber.StatusBadRequest},
		{"bad status", "/transactions?status=DONE", "u1", fiber.StatusBadRequest},
		{"bad start", "/transactions?startDate=yesterday", "u1", fiber.StatusBadRequest},
		{"bad end", "/transactions?endDate=2025-13-01", "u1", fiber.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(fiber.MethodGet, tc.path, nil)
		if tc.user != "" {
			req.Header.Set("X-Test-User", tc.user)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: app.Test: %v", tc.name, err)
		}
		if resp.StatusCode != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.want, resp.StatusCode)
		}
	}
}
