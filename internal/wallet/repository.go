package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads and provisions wallets.
type Repository interface {
	GetByUser(ctx context.Context, userID string) (Wallet, error)
	Balances(ctx context.Context, walletID string) ([]Balance, error)
	// Create inserts w unless the user already owns a wallet, and returns the
	// stored wallet either way.
	Create(ctx context.Context, w Wallet) (Wallet, error)
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByUser fetches the wallet owned by userID.
func (r *PostgresRepository) GetByUser(ctx context.Context, userID string) (Wallet, error) {
	row := r.db.QueryRow(ctx, `SELECT id, user_id, created_at, updated_at FROM wallets WHERE user_id = $1`, userID)
	return ScanWallet(row)
}

// Balances lists every balance row of the wallet ordered by currency.
func (r *PostgresRepository) Balances(ctx context.Context, walletID string) ([]Balance, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, wallet_id, currency, amount::text, updated_at
        FROM balances WHERE wallet_id = $1 ORDER BY currency`, id)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	var out []Balance
	for rows.Next() {
		b, err := ScanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Create inserts the wallet, ignoring a conflict on user_id.
func (r *PostgresRepository) Create(ctx context.Context, w Wallet) (Wallet, error) {
	id, err := uuid.Parse(w.ID)
	if err != nil {
		return Wallet{}, err
	}
	if _, err := r.db.Exec(ctx, `INSERT INTO wallets (id, user_id, created_at, updated_at)
        VALUES ($1, $2, $3, $3) ON CONFLICT (user_id) DO NOTHING`, id, w.UserID, w.CreatedAt.UTC()); err != nil {
		return Wallet{}, fmt.Errorf("insert wallet: %w", err)
	}
	return r.GetByUser(ctx, w.UserID)
}

// ScanWallet maps a wallets row. pgx.ErrNoRows becomes ErrNotFound.
func ScanWallet(row pgx.Row) (Wallet, error) {
	var (
		w    Wallet
		id   uuid.UUID
		c, u time.Time
	)
	if err := row.Scan(&id, &w.UserID, &c, &u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	w.ID = id.String()
	w.CreatedAt = c.UTC()
	w.UpdatedAt = u.UTC()
	return w, nil
}

// ScanBalance maps a balances row selected as (id, wallet_id, currency,
// amount::text, updated_at).
func ScanBalance(row pgx.Row) (Balance, error) {
	var (
		b             Balance
		id, walletID  uuid.UUID
		currency, amt string
		updatedAt     time.Time
	)
	if err := row.Scan(&id, &walletID, &currency, &amt, &updatedAt); err != nil {
		return Balance{}, err
	}
	amount, err := decimal.NewFromString(amt)
	if err != nil {
		return Balance{}, fmt.Errorf("parse balance %q: %w", amt, err)
	}
	b.ID = id.String()
	b.WalletID = walletID.String()
	b.Currency = strings.TrimSpace(currency)
	b.Amount = amount
	b.UpdatedAt = updatedAt.UTC()
	return b, nil
}
