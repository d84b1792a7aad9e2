package wallet

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type fakeRepo struct {
	mu       sync.Mutex
	wallets  map[string]Wallet
	balances map[string][]Balance
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{wallets: map[string]Wallet{}, balances: map[string][]Balance{}}
}

func (r *fakeRepo) GetByUser(_ context.Context, userID string) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func (r *fakeRepo) Balances(_ context.Context, walletID string) ([]Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[walletID], nil
}

func (r *fakeRepo) Create(_ context.Context, w Wallet) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.wallets[w.UserID]; ok {
		return existing, nil
	}
	r.wallets[w.UserID] = w
	return w, nil
}

func TestServiceProvisionIsIdempotent(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()
	userID := uuid.NewString()

	first, err := svc.Provision(ctx, userID)
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	second, err := svc.Provision(ctx, userID)
	if err != nil {
		t.Fatalf("provision again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one wallet per user, got %s and %s", first.ID, second.ID)
	}
}

func TestServiceGetBuildsBalanceMap(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	w, err := svc.Provision(ctx, "user-1")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	repo.balances[w.ID] = []Balance{
		{WalletID: w.ID, Currency: "NGN", Amount: decimal.RequireFromString("1500")},
		{WalletID: w.ID, Currency: "USD", Amount: decimal.RequireFromString("1.2")},
	}

	view, err := svc.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !view.Balances["NGN"].Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("expected NGN 1500, got %s", view.Balances["NGN"])
	}
	if !view.Balances["USD"].Equal(decimal.RequireFromString("1.2")) {
		t.Fatalf("expected USD 1.2, got %s", view.Balances["USD"])
	}
}

func TestServiceGetMissingWallet(t *testing.T) {
	svc := NewService(newFakeRepo())
	if _, err := svc.Get(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHandlerGetRequiresWallet(t *testing.T) {
	h := NewHandler(NewService(newFakeRepo()))
	app := fiber.New()
	app.Get("/wallet", func(c *fiber.Ctx) error {
		c.Locals("user_id", "ghost")
		return c.Next()
	}, h.Get)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/wallet", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
