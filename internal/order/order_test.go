package order_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-resto/internal/order"
	"github.com/noah-isme/backend-resto/internal/pricing"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to order.Status
		want     bool
	}{
		{order.StatusAwaitingPayment, order.StatusPlaced, true},
		{order.StatusAwaitingPayment, order.StatusCancelled, true},
		{order.StatusAwaitingPayment, order.StatusPreparing, false},
		{order.StatusPlaced, order.StatusPreparing, true},
		{order.StatusPlaced, order.StatusOutForDelivery, true},
		{order.StatusPlaced, order.StatusCancelled, true},
		{order.StatusPreparing, order.StatusCancelled, true},
		{order.StatusPreparing, order.StatusPlaced, false},
		{order.StatusOutForDelivery, order.StatusDelivered, true},
		{order.StatusOutForDelivery, order.StatusCancelled, false},
		{order.StatusDelivered, order.StatusCancelled, false},
		{order.StatusCancelled, order.StatusPlaced, false},
		{order.StatusPlaced, order.StatusPlaced, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, order.CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestAdminTargetExcludesPaymentStates(t *testing.T) {
	require.False(t, order.AdminTarget(order.StatusPlaced))
	require.False(t, order.AdminTarget(order.StatusAwaitingPayment))
	require.True(t, order.AdminTarget(order.StatusPreparing))
	require.True(t, order.AdminTarget(order.StatusCancelled))

	_, ok := order.ParseStatus("shipped")
	require.False(t, ok)
}

func TestNewCopiesTrustedLines(t *testing.T) {
	total := pricing.Total{
		Subtotal: 126000,
		Minor:    126000,
		Currency: "INR",
		Version:  "2024.06.1",
		Lines: []pricing.PricedLine{{
			Label: "Gulab Jamun", Name: "Gulab Jamun", Quantity: 3, UnitPrice: 42000, LineTotal: 126000,
		}},
	}
	o := order.New("user-1", order.Customer{Name: "Asha", Email: "asha@example.com"}, total)
	require.Equal(t, order.StatusAwaitingPayment, o.Status)
	require.EqualValues(t, 126000, o.Total)
	require.Len(t, o.Items, 1)
	require.EqualValues(t, 42000, o.Items[0].UnitPrice)
	require.Equal(t, "2024.06.1", o.CatalogVersion)
}
