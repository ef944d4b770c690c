package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBPool matches the methods from *pgxpool.Pool the catalog store uses.
type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostgresSource loads the active menu from the menu_items table.
type PostgresSource struct {
	Pool     DBPool
	Currency string
}

const selectMenuItems = `
	SELECT category, name, price_minor, version
	FROM menu_items
	WHERE active
	ORDER BY position, category, name`

// Load implements Source.
func (s PostgresSource) Load(ctx context.Context) (*Catalog, error) {
	rows, err := s.Pool.Query(ctx, selectMenuItems)
	if err != nil {
		return nil, fmt.Errorf("query menu items: %w", err)
	}
	defer rows.Close()

	var (
		entries []Entry
		version string
	)
	for rows.Next() {
		var e Entry
		var v string
		if err := rows.Scan(&e.Category, &e.Name, &e.Price, &v); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		if v > version {
			version = v
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate menu items: %w", err)
	}
	return New(version, s.Currency, entries)
}

// Sync replaces the active menu with the catalog contents in one transaction.
// Items absent from c are deactivated rather than deleted so historical orders keep their references.
func (s PostgresSource) Sync(ctx context.Context, c *Catalog) (int, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE menu_items SET active = false, updated_at = now()`); err != nil {
		return 0, fmt.Errorf("deactivate menu items: %w", err)
	}
	for i, e := range c.Entries() {
		if _, err := tx.Exec(ctx, `
			INSERT INTO menu_items (category, name, price_minor, version, position, active)
			VALUES ($1, $2, $3, $4, $5, true)
			ON CONFLICT (category, name) DO UPDATE
			SET price_minor = EXCLUDED.price_minor,
			    version = EXCLUDED.version,
			    position = EXCLUDED.position,
			    active = true,
			    updated_at = now()`,
			e.Category, e.Name, e.Price, c.Version(), i); err != nil {
			return 0, fmt.Errorf("upsert %q: %w", e.Key().String(), err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return c.Len(), nil
}
