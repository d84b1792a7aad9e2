package txlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads transaction history.
type Repository interface {
	List(ctx context.Context, userID string, f Filter) (Page, error)
}

// Execer is satisfied by pgx.Tx and *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Insert appends t using db, normally the transaction that mutated balances.
func Insert(ctx context.Context, db Execer, t Transaction) error {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return fmt.Errorf("transaction id: %w", err)
	}
	metadata := t.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	_, err = db.Exec(ctx, `INSERT INTO transactions
        (id, user_id, type, from_currency, to_currency, from_amount, to_amount, exchange_rate, status, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id, t.UserID, string(t.Type), nullString(t.FromCurrency), nullString(t.ToCurrency),
		t.FromAmount, t.ToAmount, t.ExchangeRate, string(t.Status), metadata, t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// PostgresRepository serves history from the transactions table.
type PostgresRepository struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

// List returns one page of the user's transactions, newest first.
func (r *PostgresRepository) List(ctx context.Context, userID string, f Filter) (Page, error) {
	f = f.Normalize(r.now())

	where := []string{"user_id = $1"}
	args := []any{userID}
	if f.Type != "" {
		args = append(args, string(f.Type))
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !f.StartDate.IsZero() {
		args = append(args, f.StartDate.UTC())
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !f.EndDate.IsZero() {
		args = append(args, f.EndDate.UTC())
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE `+clause, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count transactions: %w", err)
	}

	args = append(args, f.Limit, f.Offset())
	query := fmt.Sprintf(`SELECT id, user_id, type, from_currency, to_currency,
        from_amount::text, to_amount::text, exchange_rate::text, status, metadata, created_at
        FROM transactions WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		clause, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var items []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return Page{}, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}
	return newPage(items, total, f), nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t                            Transaction
		id                           uuid.UUID
		typ, status                  string
		fromCur, toCur               *string
		fromAmount, toAmount, rateTx *string
		createdAt                    time.Time
	)
	if err := row.Scan(&id, &t.UserID, &typ, &fromCur, &toCur, &fromAmount, &toAmount, &rateTx, &status, &t.Metadata, &createdAt); err != nil {
		return Transaction{}, err
	}
	t.ID = id.String()
	t.Type = Type(typ)
	t.Status = Status(status)
	if fromCur != nil {
		t.FromCurrency = strings.TrimSpace(*fromCur)
	}
	if toCur != nil {
		t.ToCurrency = strings.TrimSpace(*toCur)
	}
	var err error
	if t.FromAmount, err = parseNull(fromAmount); err != nil {
		return Transaction{}, err
	}
	if t.ToAmount, err = parseNull(toAmount); err != nil {
		return Transaction{}, err
	}
	if t.ExchangeRate, err = parseNull(rateTx); err != nil {
		return Transaction{}, err
	}
	t.CreatedAt = createdAt.UTC()
	return t, nil
}

func parseNull(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse numeric %q: %w", *s, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
