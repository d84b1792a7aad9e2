package wallet

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service exposes wallet reads and provisioning.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a wallet service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Provision creates the user's wallet if it does not exist yet.
func (s *Service) Provision(ctx context.Context, userID string) (Wallet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Wallet{}, ErrNotFound
	}
	now := s.now().UTC()
	return s.repo.Create(ctx, Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Get returns the user's wallet with every balance keyed by currency.
func (s *Service) Get(ctx context.Context, userID string) (View, error) {
	w, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return View{}, err
	}
	balances, err := s.repo.Balances(ctx, w.ID)
	if err != nil {
		return View{}, err
	}
	view := View{
		ID:        w.ID,
		UserID:    w.UserID,
		Balances:  make(map[string]decimal.Decimal, len(balances)),
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
	for _, b := range balances {
		view.Balances[b.Currency] = b.Amount
	}
	return view, nil
}
