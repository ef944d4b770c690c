package order_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-resto/internal/order"
)

var orderCols = []string{"id", "user_id", "status", "customer_name", "customer_email", "customer_phone",
	"subtotal_minor", "surcharge_minor", "total_minor", "currency", "catalog_version",
	"payment_provider", "payment_intent_id", "created_at", "updated_at"}

func TestStoreCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	o := order.Order{
		ID: uuid.New(), UserID: "u1", Status: order.StatusAwaitingPayment,
		Customer: order.Customer{Name: "Asha", Email: "asha@example.com"},
		Items: []order.Item{
			{Label: "Gulab Jamun", Name: "Gulab Jamun", Quantity: 3, UnitPrice: 42000, LineTotal: 126000},
		},
		Subtotal: 126000, Total: 126000, Currency: "INR", CatalogVersion: "v1",
	}
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs(o.ID, "u1", "awaiting_payment", "Asha", "asha@example.com", "",
			int64(126000), int64(0), int64(126000), "INR", "v1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(o.ID, 0, "Gulab Jamun", "", "Gulab Jamun", int64(3), int64(42000), int64(126000)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, (&order.Store{Pool: mock}).Create(context.Background(), &o))
	require.Equal(t, now, o.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("FROM orders WHERE id = \\$1 AND user_id = \\$2").
		WithArgs(id, "u1").
		WillReturnError(pgx.ErrNoRows)

	_, err = (&order.Store{Pool: mock}).GetForUser(context.Background(), id, "u1")
	require.ErrorIs(t, err, order.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetByIntentLoadsItems(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery("WHERE payment_intent_id = \\$1").
		WithArgs("pi_123").
		WillReturnRows(pgxmock.NewRows(orderCols).AddRow(id, "u1", "awaiting_payment", "Asha", "a@example.com", "",
			int64(33500), int64(0), int64(33500), "INR", "v1", "stripe", "pi_123", now, now))
	mock.ExpectQuery("FROM order_items").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"label", "category", "name", "quantity", "unit_price_minor", "line_total_minor"}).
			AddRow("Paneer Tikka", "", "Paneer Tikka", int64(1), int64(33500), int64(33500)))

	o, err := (&order.Store{Pool: mock}).GetByIntent(context.Background(), "pi_123")
	require.NoError(t, err)
	require.Equal(t, order.StatusAwaitingPayment, o.Status)
	require.EqualValues(t, 33500, o.Total)
	require.Len(t, o.Items, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreListAllWithStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM orders WHERE status = $1")).
		WithArgs("placed").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $2 OFFSET $3")).
		WithArgs("placed", 10, 0).
		WillReturnRows(pgxmock.NewRows(orderCols).AddRow(uuid.New(), "u1", "placed", "Asha", "a@example.com", "",
			int64(100), int64(0), int64(100), "INR", "v1", "", "", time.Now(), time.Now()))

	orders, total, err := (&order.Store{Pool: mock}).ListAll(context.Background(), order.Filter{Status: order.StatusPlaced, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, orders, 1)
	require.Equal(t, order.StatusPlaced, orders[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpdateStatusGuardsTransition(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("delivered"))
	mock.ExpectRollback()

	tr, err := (&order.Store{Pool: mock}).UpdateStatus(context.Background(), id, order.StatusCancelled)
	require.True(t, errors.Is(err, order.ErrInvalidTransition))
	require.Equal(t, order.StatusDelivered, tr.From)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("awaiting_payment"))
	mock.ExpectExec("UPDATE orders SET status").WithArgs(id, "placed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	tr, err := (&order.Store{Pool: mock}).UpdateStatus(context.Background(), id, order.StatusPlaced)
	require.NoError(t, err)
	require.Equal(t, order.StatusAwaitingPayment, tr.From)
	require.Equal(t, order.StatusPlaced, tr.To)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreAttachIntentMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE orders SET payment_provider").WithArgs(id, "stripe", "pi_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err = (&order.Store{Pool: mock}).AttachIntent(context.Background(), id, "stripe", "pi_1")
	require.ErrorIs(t, err, order.ErrNotFound)
}
