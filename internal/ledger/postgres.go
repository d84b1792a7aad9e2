package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxledger/internal/txlog"
	"github.com/congo-pay/fxledger/internal/wallet"
)

const pgLockNotAvailable = "55P03"

// PostgresStore runs units of work as PostgreSQL transactions and locks
// balance rows with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresStore constructs a Postgres-backed store. A positive lockTimeout
// bounds every row-lock wait inside a transaction.
func NewPostgresStore(db *pgxpool.Pool, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

// WithinTx begins a transaction, runs fn and commits. Any error rolls back.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapPgError(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return mapPgError(err)
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
		return fmt.Errorf("%w: %s", ErrLockTimeout, pgErr.Message)
	}
	return err
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) WalletForUser(ctx context.Context, userID string) (wallet.Wallet, error) {
	row := t.tx.QueryRow(ctx, `SELECT id, user_id, created_at, updated_at FROM wallets WHERE user_id = $1`, userID)
	return wallet.ScanWallet(row)
}

func (t *pgTx) LockBalance(ctx context.Context, walletID, currency string, create bool) (wallet.Balance, bool, error) {
	wid, err := uuid.Parse(walletID)
	if err != nil {
		return wallet.Balance{}, false, err
	}
	if create {
		if _, err := t.tx.Exec(ctx, `INSERT INTO balances (id, wallet_id, currency, amount, updated_at)
            VALUES ($1, $2, $3, 0, NOW()) ON CONFLICT (wallet_id, currency) DO NOTHING`, uuid.New(), wid, currency); err != nil {
			return wallet.Balance{}, false, err
		}
	}

	const query = `SELECT id, wallet_id, currency, amount::text, updated_at
        FROM balances WHERE wallet_id = $1 AND currency = $2 FOR UPDATE`
	b, err := wallet.ScanBalance(t.tx.QueryRow(ctx, query, wid, currency))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return wallet.Balance{}, false, nil
		}
		return wallet.Balance{}, false, err
	}
	return b, true, nil
}

func (t *pgTx) UpsertBalance(ctx context.Context, walletID, currency string, amount decimal.Decimal) (wallet.Balance, error) {
	wid, err := uuid.Parse(walletID)
	if err != nil {
		return wallet.Balance{}, err
	}
	const query = `INSERT INTO balances (id, wallet_id, currency, amount, updated_at)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (wallet_id, currency) DO UPDATE SET amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at
        RETURNING id, wallet_id, currency, amount::text, updated_at`
	return wallet.ScanBalance(t.tx.QueryRow(ctx, query, uuid.New(), wid, currency, amount))
}

func (t *pgTx) AppendTransaction(ctx context.Context, txn txlog.Transaction) error {
	return txlog.Insert(ctx, t.tx, txn)
}
