package order

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-resto/internal/pricing"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusPlaced          Status = "placed"
	StatusPreparing       Status = "preparing"
	StatusOutForDelivery  Status = "out_for_delivery"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
)

var (
	// ErrNotFound is returned when no order matches the lookup.
	ErrNotFound = errors.New("order: not found")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("order: invalid status transition")
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	switch st {
	case StatusAwaitingPayment, StatusPlaced, StatusPreparing, StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

func rank(s Status) int {
	switch s {
	case StatusAwaitingPayment:
		return 0
	case StatusPlaced:
		return 1
	case StatusPreparing:
		return 2
	case StatusOutForDelivery:
		return 3
	case StatusDelivered:
		return 4
	default:
		return -1
	}
}

// CanTransition reports whether an order may move from one status to another.
// Orders only move forward; awaiting_payment can only become placed (payment
// confirmed) or cancelled, and cancellation stops once the order has left the
// kitchen.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch to {
	case StatusCancelled:
		return from == StatusAwaitingPayment || from == StatusPlaced || from == StatusPreparing
	case StatusPlaced:
		return from == StatusAwaitingPayment
	}
	if from == StatusAwaitingPayment || from == StatusCancelled || from == StatusDelivered {
		return false
	}
	fr, tr := rank(from), rank(to)
	return fr >= 0 && tr > fr
}

// AdminTarget reports whether staff may set the status by hand. Payment
// confirmation is reserved for the payment webhook.
func AdminTarget(s Status) bool {
	switch s {
	case StatusPreparing, StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Customer holds the contact details captured at checkout.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Item is a priced line persisted with the order.
type Item struct {
	Label     string `json:"label"`
	Category  string `json:"category,omitempty"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	LineTotal int64  `json:"lineTotal"`
}

// Order is a customer order priced from the catalog.
type Order struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"userId"`
	Status          Status    `json:"status"`
	Customer        Customer  `json:"customer"`
	Items           []Item    `json:"items,omitempty"`
	Subtotal        int64     `json:"subtotal"`
	Surcharge       int64     `json:"surcharge"`
	Total           int64     `json:"total"`
	Currency        string    `json:"currency"`
	CatalogVersion  string    `json:"catalogVersion"`
	PaymentProvider string    `json:"paymentProvider,omitempty"`
	PaymentIntentID string    `json:"paymentIntentId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// New builds an awaiting_payment order from a trusted total.
func New(userID string, customer Customer, total pricing.Total) Order {
	items := make([]Item, 0, len(total.Lines))
	for _, l := range total.Lines {
		items = append(items, Item{
			Label:     l.Label,
			Category:  l.Category,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal,
		})
	}
	return Order{
		ID:             uuid.New(),
		UserID:         userID,
		Status:         StatusAwaitingPayment,
		Customer:       customer,
		Items:          items,
		Subtotal:       total.Subtotal,
		Surcharge:      total.Surcharge,
		Total:          total.Minor,
		Currency:       total.Currency,
		CatalogVersion: total.Version,
	}
}

// Transition describes an applied status change.
type Transition struct {
	OrderID uuid.UUID
	From    Status
	To      Status
}

// Filter narrows admin listings.
type Filter struct {
	Status Status
	Limit  int
	Offset int
}
