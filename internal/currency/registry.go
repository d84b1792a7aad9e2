package currency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/fxledger/internal/money"
	"github.com/congo-pay/fxledger/internal/ttlcache"
)

// ErrUnsupported is returned when a currency code is not in the active set.
var ErrUnsupported = errors.New("unsupported currency")

// Registry lists the currency codes that may currently be used.
type Registry interface {
	ActiveCodes(ctx context.Context) ([]string, error)
}

// PostgresRegistry reads active currencies from the currencies table.
type PostgresRegistry struct {
	db *pgxpool.Pool
}

// NewPostgresRegistry builds a registry backed by PostgreSQL.
func NewPostgresRegistry(db *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// ActiveCodes returns active codes ordered alphabetically.
func (r *PostgresRegistry) ActiveCodes(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT code FROM currencies WHERE is_active ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("query currencies: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// StaticRegistry serves a fixed list, used when no database is configured.
type StaticRegistry struct {
	codes []string
}

// NewStaticRegistry normalizes and sorts codes. Invalid entries are dropped.
func NewStaticRegistry(codes ...string) *StaticRegistry {
	var out []string
	for _, c := range codes {
		if n, err := money.NormalizeCode(c); err == nil && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return &StaticRegistry{codes: out}
}

// ActiveCodes returns a copy of the configured codes.
func (r *StaticRegistry) ActiveCodes(context.Context) ([]string, error) {
	return slices.Clone(r.codes), nil
}

const activeKey = "active"

// CachedRegistry memoizes the active list of an underlying Registry for a TTL.
type CachedRegistry struct {
	source Registry
	cache  *ttlcache.Cache[string, []string]
	logger *slog.Logger
}

// NewCachedRegistry wraps source with a cache that refreshes after ttl.
func NewCachedRegistry(source Registry, ttl time.Duration, logger *slog.Logger, opts ...ttlcache.Option[string, []string]) *CachedRegistry {
	return &CachedRegistry{
		source: source,
		cache:  ttlcache.New[string, []string](ttl, opts...),
		logger: logger,
	}
}

// ActiveCodes returns the cached list, reloading it once stale. When the
// source fails and a previous list exists, the previous list is served.
func (r *CachedRegistry) ActiveCodes(ctx context.Context) ([]string, error) {
	if codes, ok := r.cache.Get(activeKey); ok {
		return slices.Clone(codes), nil
	}
	codes, err := r.source.ActiveCodes(ctx)
	if err != nil {
		if stale, _, ok := r.cache.GetStale(activeKey); ok {
			r.logger.Warn("serving stale currency list", slog.Any("error", err))
			return slices.Clone(stale), nil
		}
		return nil, err
	}
	r.cache.Set(activeKey, codes)
	return slices.Clone(codes), nil
}

// IsActive reports whether code is in the active set.
func (r *CachedRegistry) IsActive(ctx context.Context, code string) (bool, error) {
	codes, err := r.ActiveCodes(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(codes, code), nil
}

// Validate normalizes code and checks it is active.
func (r *CachedRegistry) Validate(ctx context.Context, code string) (string, error) {
	normalized, err := money.NormalizeCode(code)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, code)
	}
	ok, err := r.IsActive(ctx, normalized)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, normalized)
	}
	return normalized, nil
}

// Invalidate drops the cached list so the next read reloads it.
func (r *CachedRegistry) Invalidate() {
	r.cache.Clear()
}
