package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Repository used by tests across packages.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]Order
	now    func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[uuid.UUID]Order), now: time.Now}
}

var _ Repository = (*MemoryStore)(nil)

func (m *MemoryStore) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if _, exists := m.orders[o.ID]; exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	now := m.now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	m.orders[o.ID] = cp
	return nil
}

func (m *MemoryStore) AttachIntent(_ context.Context, id uuid.UUID, provider, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.PaymentProvider, o.PaymentIntentID = provider, intentID
	o.UpdatedAt = m.now().UTC()
	m.orders[id] = o
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (m *MemoryStore) GetForUser(ctx context.Context, id uuid.UUID, userID string) (Order, error) {
	o, err := m.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != userID {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (m *MemoryStore) GetByIntent(_ context.Context, intentID string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if intentID != "" && o.PaymentIntentID == intentID {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}

func (m *MemoryStore) ListByUser(_ context.Context, userID string, limit, offset int) ([]Order, int, error) {
	return m.page(func(o Order) bool { return o.UserID == userID }, limit, offset)
}

func (m *MemoryStore) ListAll(_ context.Context, f Filter) ([]Order, int, error) {
	return m.page(func(o Order) bool { return f.Status == "" || o.Status == f.Status }, f.Limit, f.Offset)
}

func (m *MemoryStore) page(match func(Order) bool, limit, offset int) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]Order, 0)
	for _, o := range m.orders {
		if match(o) {
			o.Items = nil
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, to Status) (Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Transition{}, ErrNotFound
	}
	tr := Transition{OrderID: id, From: o.Status, To: to}
	if !CanTransition(o.Status, to) {
		return tr, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = m.now().UTC()
	m.orders[id] = o
	return tr, nil
}
