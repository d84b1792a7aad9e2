package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxledger/internal/txlog"
	"github.com/congo-pay/fxledger/internal/wallet"
)

type balanceKey struct {
	walletID string
	currency string
}

// MemoryStore is a concurrency-safe in-memory Store used for development and
// tests. It also serves the wallet and history read models so one instance
// can back the whole service.
type MemoryStore struct {
	mu           sync.Mutex
	wallets      map[string]wallet.Wallet
	balances     map[balanceKey]wallet.Balance
	transactions []txlog.Transaction
	rowLocks     map[balanceKey]chan struct{}
	lockTimeout  time.Duration
	now          func() time.Time
}

// NewMemoryStore creates an empty store. A positive lockTimeout bounds every
// row-lock wait.
func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		wallets:     make(map[string]wallet.Wallet),
		balances:    make(map[balanceKey]wallet.Balance),
		rowLocks:    make(map[balanceKey]chan struct{}),
		lockTimeout: lockTimeout,
		now:         time.Now,
	}
}

// WithinTx runs fn against staged copies and applies them only on success.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx := &memTx{store: s, staged: make(map[balanceKey]wallet.Balance)}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, b := range tx.staged {
		s.balances[k] = b
	}
	s.transactions = append(s.transactions, tx.appended...)
	return nil
}

func (s *MemoryStore) rowLock(k balanceKey) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.rowLocks[k]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rowLocks[k] = ch
	}
	return ch
}

// GetByUser implements wallet.Repository.
func (s *MemoryStore) GetByUser(_ context.Context, userID string) (wallet.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[userID]
	if !ok {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	return w, nil
}

// Balances implements wallet.Repository.
func (s *MemoryStore) Balances(_ context.Context, walletID string) ([]wallet.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []wallet.Balance
	for k, b := range s.balances {
		if k.walletID == walletID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

// Create implements wallet.Repository.
func (s *MemoryStore) Create(_ context.Context, w wallet.Wallet) (wallet.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.wallets[w.UserID]; ok {
		return existing, nil
	}
	s.wallets[w.UserID] = w
	return w, nil
}

// List implements txlog.Repository.
func (s *MemoryStore) List(_ context.Context, userID string, f txlog.Filter) (txlog.Page, error) {
	s.mu.Lock()
	all := make([]txlog.Transaction, len(s.transactions))
	copy(all, s.transactions)
	s.mu.Unlock()
	return txlog.Paginate(all, userID, f.Normalize(s.now())), nil
}

type memTx struct {
	store    *MemoryStore
	held     []chan struct{}
	heldKeys map[balanceKey]bool
	staged   map[balanceKey]wallet.Balance
	appended []txlog.Transaction
}

func (t *memTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		<-t.held[i]
	}
	t.held = nil
}

func (t *memTx) acquire(ctx context.Context, k balanceKey) error {
	if t.heldKeys[k] {
		return nil
	}
	ch := t.store.rowLock(k)

	var expired <-chan time.Time
	if t.store.lockTimeout > 0 {
		timer := time.NewTimer(t.store.lockTimeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case ch <- struct{}{}:
	case <-expired:
		return fmt.Errorf("%w: %s/%s", ErrLockTimeout, k.walletID, k.currency)
	case <-ctx.Done():
		return ctx.Err()
	}

	if t.heldKeys == nil {
		t.heldKeys = make(map[balanceKey]bool)
	}
	t.heldKeys[k] = true
	t.held = append(t.held, ch)
	return nil
}

func (t *memTx) current(k balanceKey) (wallet.Balance, bool) {
	if b, ok := t.staged[k]; ok {
		return b, true
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	b, ok := t.store.balances[k]
	return b, ok
}

func (t *memTx) WalletForUser(ctx context.Context, userID string) (wallet.Wallet, error) {
	return t.store.GetByUser(ctx, userID)
}

func (t *memTx) LockBalance(ctx context.Context, walletID, currency string, create bool) (wallet.Balance, bool, error) {
	k := balanceKey{walletID: walletID, currency: currency}
	if err := t.acquire(ctx, k); err != nil {
		return wallet.Balance{}, false, err
	}
	if b, ok := t.current(k); ok {
		return b, true, nil
	}
	if !create {
		return wallet.Balance{}, false, nil
	}
	b := wallet.Balance{
		ID:        uuid.NewString(),
		WalletID:  walletID,
		Currency:  currency,
		Amount:    decimal.Zero,
		UpdatedAt: t.store.now().UTC(),
	}
	t.staged[k] = b
	return b, true, nil
}

func (t *memTx) UpsertBalance(ctx context.Context, walletID, currency string, amount decimal.Decimal) (wallet.Balance, error) {
	k := balanceKey{walletID: walletID, currency: currency}
	if err := t.acquire(ctx, k); err != nil {
		return wallet.Balance{}, err
	}
	b, ok := t.current(k)
	if !ok {
		b = wallet.Balance{ID: uuid.NewString(), WalletID: walletID, Currency: currency}
	}
	b.Amount = amount
	b.UpdatedAt = t.store.now().UTC()
	t.staged[k] = b
	return b, nil
}

func (t *memTx) AppendTransaction(_ context.Context, txn txlog.Transaction) error {
	t.appended = append(t.appended, txn)
	return nil
}
