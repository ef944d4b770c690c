package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBPool matches the methods from *pgxpool.Pool the order store uses.
type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Repository is the persistence contract consumed by checkout, payments and handlers.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	AttachIntent(ctx context.Context, id uuid.UUID, provider, intentID string) error
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	GetForUser(ctx context.Context, id uuid.UUID, userID string) (Order, error)
	GetByIntent(ctx context.Context, intentID string) (Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, int, error)
	ListAll(ctx context.Context, f Filter) ([]Order, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (Transition, error)
}

// Store is the Postgres implementation of Repository.
type Store struct {
	Pool DBPool
}

var _ Repository = (*Store)(nil)

const orderColumns = `id, user_id, status, customer_name, customer_email, customer_phone,
	subtotal_minor, surcharge_minor, total_minor, currency, catalog_version,
	coalesce(payment_provider, ''), coalesce(payment_intent_id, ''), created_at, updated_at`

// Create inserts the order and its items in one transaction.
func (s *Store) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, user_id, status, customer_name, customer_email, customer_phone,
			subtotal_minor, surcharge_minor, total_minor, currency, catalog_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		o.ID, o.UserID, string(o.Status), o.Customer.Name, o.Customer.Email, o.Customer.Phone,
		o.Subtotal, o.Surcharge, o.Total, o.Currency, o.CatalogVersion,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for i, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, position, label, category, name, quantity, unit_price_minor, line_total_minor)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			o.ID, i, it.Label, it.Category, it.Name, it.Quantity, it.UnitPrice, it.LineTotal); err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}
	return tx.Commit(ctx)
}

// AttachIntent records the payment intent created for the order.
func (s *Store) AttachIntent(ctx context.Context, id uuid.UUID, provider, intentID string) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE orders SET payment_provider = $2, payment_intent_id = $3, updated_at = now()
		WHERE id = $1`, id, provider, intentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get loads an order with its items.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	return s.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// GetForUser loads an order only when it belongs to userID.
func (s *Store) GetForUser(ctx context.Context, id uuid.UUID, userID string) (Order, error) {
	return s.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`, id, userID)
}

// GetByIntent loads the order a payment intent was created for.
func (s *Store) GetByIntent(ctx context.Context, intentID string) (Order, error) {
	return s.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_intent_id = $1`, intentID)
}

func (s *Store) getOne(ctx context.Context, query string, args ...any) (Order, error) {
	o, err := scanOrder(s.Pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	items, err := s.items(ctx, o.ID)
	if err != nil {
		return Order{}, err
	}
	o.Items = items
	return o, nil
}

func (s *Store) items(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT label, category, name, quantity, unit_price_minor, line_total_minor
		FROM order_items WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Label, &it.Category, &it.Name, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListByUser returns a page of the user's orders, newest first, and the total count.
func (s *Store) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, int, error) {
	var total int
	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	orders, err := s.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	return orders, total, err
}

// ListAll returns a page of all orders, optionally filtered by status.
func (s *Store) ListAll(ctx context.Context, f Filter) ([]Order, int, error) {
	var (
		where strings.Builder
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where.WriteString(" WHERE status = $1")
	}
	var total int
	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM orders`+where.String(), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where.String(), len(args)-1, len(args))
	orders, err := s.list(ctx, query, args...)
	return orders, total, err
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()
	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateStatus applies a guarded transition under a row lock.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (Transition, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transition{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string
	if err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transition{}, ErrNotFound
		}
		return Transition{}, err
	}
	from := Status(current)
	if !CanTransition(from, to) {
		return Transition{OrderID: id, From: from, To: to}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, string(to)); err != nil {
		return Transition{}, fmt.Errorf("update order status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Transition{}, err
	}
	return Transition{OrderID: id, From: from, To: to}, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &status, &o.Customer.Name, &o.Customer.Email, &o.Customer.Phone,
		&o.Subtotal, &o.Surcharge, &o.Total, &o.Currency, &o.CatalogVersion,
		&o.PaymentProvider, &o.PaymentIntentID, &o.CreatedAt, &o.UpdatedAt)
	o.Status = Status(status)
	return o, err
}
