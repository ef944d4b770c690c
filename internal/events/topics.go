package events

// Topic constants for domain events emitted by the storefront.
const (
	TopicOrderCreated       = "order.created"
	TopicOrderPlaced        = "order.placed"
	TopicOrderCancelled     = "order.cancelled"
	TopicOrderStatusChanged = "order.status_changed"
	TopicPaymentFailed      = "payment.failed"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderPlaced,
		TopicOrderCancelled,
		TopicOrderStatusChanged,
		TopicPaymentFailed,
	}
}

// OrderPayload is the body carried by order.* events.
type OrderPayload struct {
	OrderID       string `json:"orderId"`
	UserID        string `json:"userId,omitempty"`
	Status        string `json:"status"`
	PreviousState string `json:"previousStatus,omitempty"`
	TotalMinor    int64  `json:"totalMinor"`
	Currency      string `json:"currency"`
	IntentID      string `json:"paymentIntentId,omitempty"`
}
