package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-resto/internal/events"
)

// Task types processed by cmd/worker.
const (
	TypeOrderConfirmation = "notify:order_confirmation"
	TypeOrderSMS          = "notify:order_sms"
	TypeKitchenTicket     = "notify:kitchen_ticket"

	// Queue is the asynq queue notification tasks are enqueued on.
	Queue = "notifications"
)

// TaskPayload identifies the order a notification is about.
type TaskPayload struct {
	OrderID string `json:"orderId"`
	EventID string `json:"eventId"`
}

// NewTask builds a notification task. The task ID is derived from the event so
// a re-emitted event never notifies twice.
func NewTask(typ string, p TaskPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, data,
		asynq.TaskID(typ+":"+p.EventID),
		asynq.Queue(Queue),
		asynq.MaxRetry(8),
	), nil
}

// ParsePayload decodes the payload of a notification task.
func ParsePayload(t *asynq.Task) (TaskPayload, error) {
	var p TaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w: %w", t.Type(), err, asynq.SkipRetry)
	}
	if p.OrderID == "" {
		return p, fmt.Errorf("%s payload missing order id: %w", t.Type(), asynq.SkipRetry)
	}
	return p, nil
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskNotifier turns domain events into notification tasks.
type TaskNotifier struct {
	Client  Enqueuer
	SMS     bool
	Kitchen bool
}

// Notify implements events.Notifier. Only paid orders produce notifications.
func (n TaskNotifier) Notify(ctx context.Context, ev events.Event) error {
	if n.Client == nil || ev.Topic != events.TopicOrderPlaced {
		return nil
	}
	p := TaskPayload{OrderID: ev.AggregateID.String(), EventID: ev.ID.String()}
	types := []string{TypeOrderConfirmation}
	if n.SMS {
		types = append(types, TypeOrderSMS)
	}
	if n.Kitchen {
		types = append(types, TypeKitchenTicket)
	}
	var joined error
	for _, typ := range types {
		task, err := NewTask(typ, p)
		if err != nil {
			joined = errors.Join(joined, err)
			continue
		}
		if _, err := n.Client.EnqueueContext(ctx, task); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			joined = errors.Join(joined, fmt.Errorf("enqueue %s: %w", typ, err))
		}
	}
	return joined
}
