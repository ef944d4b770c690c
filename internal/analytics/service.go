package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-resto/internal/catalog"
	"github.com/noah-isme/backend-resto/internal/order"
)

// StatusCount is the number of orders in one status.
type StatusCount struct {
	Status     order.Status `json:"status"`
	Orders     int64        `json:"orders"`
	TotalMinor int64        `json:"totalMinor"`
}

// TopItem is a menu item ranked by quantity sold.
type TopItem struct {
	Category   string `json:"category"`
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
	TotalMinor int64  `json:"totalMinor"`
}

// Stats summarises orders created within [From, To).
type Stats struct {
	From         time.Time     `json:"from"`
	To           time.Time     `json:"to"`
	Orders       int64         `json:"orders"`
	PaidOrders   int64         `json:"paidOrders"`
	RevenueMinor int64         `json:"revenueMinor"`
	Revenue      string        `json:"revenue"`
	ByStatus     []StatusCount `json:"byStatus"`
	// OpenAlerts is the number of unresolved security alerts, read live.
	OpenAlerts *int64 `json:"openAlerts,omitempty"`
}

// Querier defines the database access required for analytics operations.
type Querier interface {
	StatusCounts(ctx context.Context, from, to time.Time) ([]StatusCount, error)
	TopItems(ctx context.Context, from, to time.Time, limit int) ([]TopItem, error)
}

// AlertCounter counts unresolved security alerts.
type AlertCounter interface {
	CountOpenAlerts(ctx context.Context) (int64, error)
}

// Service provides cached access to order statistics.
type Service struct {
	Q            Querier
	Alerts       AlertCounter
	Cache        *Cache
	DefaultRange int
	Now          func() time.Time
}

// withOpenAlerts fills OpenAlerts; a failed count leaves it unset.
func (s *Service) withOpenAlerts(ctx context.Context, st Stats) Stats {
	st.OpenAlerts = nil
	if s.Alerts == nil {
		return st
	}
	if n, err := s.Alerts.CountOpenAlerts(ctx); err == nil {
		st.OpenAlerts = &n
	}
	return st
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// Stats returns order counts and paid revenue between from (inclusive) and to (exclusive).
func (s *Service) Stats(ctx context.Context, from, to time.Time) (Stats, error) {
	if s == nil || s.Q == nil {
		return Stats{}, fmt.Errorf("analytics service not configured")
	}
	key := cacheKey("an", "stats", from.Unix(), to.Unix())
	var cached Stats
	if ok, _ := s.Cache.GetJSON(ctx, key, &cached); ok {
		return s.withOpenAlerts(ctx, cached), nil
	}
	counts, err := s.Q.StatusCounts(ctx, from, to)
	if err != nil {
		return Stats{}, err
	}
	out := Stats{From: from.UTC(), To: to.UTC(), ByStatus: counts}
	for _, c := range counts {
		out.Orders += c.Orders
		if paid(c.Status) {
			out.PaidOrders += c.Orders
			out.RevenueMinor += c.TotalMinor
		}
	}
	out.Revenue = catalog.MajorString(out.RevenueMinor)
	if out.ByStatus == nil {
		out.ByStatus = []StatusCount{}
	}
	_ = s.Cache.SetJSON(ctx, key, out)
	return s.withOpenAlerts(ctx, out), nil
}

// TopItems returns the best selling items among paid orders in the range.
func (s *Service) TopItems(ctx context.Context, from, to time.Time, limit int) ([]TopItem, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("analytics service not configured")
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	key := cacheKey("an", "top", limit, from.Unix(), to.Unix())
	var cached []TopItem
	if ok, _ := s.Cache.GetJSON(ctx, key, &cached); ok {
		return cached, nil
	}
	rows, err := s.Q.TopItems(ctx, from, to, limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []TopItem{}
	}
	_ = s.Cache.SetJSON(ctx, key, rows)
	return rows, nil
}

// paid reports whether orders in status have a settled payment.
func paid(s order.Status) bool {
	switch s {
	case order.StatusPlaced, order.StatusPreparing, order.StatusOutForDelivery, order.StatusDelivered:
		return true
	default:
		return false
	}
}

// DBPool matches the query method of *pgxpool.Pool.
type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgQuerier reads statistics from the orders tables.
type PgQuerier struct {
	Pool DBPool
}

func (q PgQuerier) StatusCounts(ctx context.Context, from, to time.Time) ([]StatusCount, error) {
	rows, err := q.Pool.Query(ctx, `
		SELECT status, count(*), coalesce(sum(total_minor), 0)
		FROM orders
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY status
		ORDER BY status`, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (StatusCount, error) {
		var c StatusCount
		err := row.Scan(&c.Status, &c.Orders, &c.TotalMinor)
		return c, err
	})
}

func (q PgQuerier) TopItems(ctx context.Context, from, to time.Time, limit int) ([]TopItem, error) {
	rows, err := q.Pool.Query(ctx, `
		SELECT i.category, i.name, sum(i.quantity), sum(i.line_total_minor)
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		WHERE o.created_at >= $1 AND o.created_at < $2
		  AND o.status IN ('placed', 'preparing', 'out_for_delivery', 'delivered')
		GROUP BY i.category, i.name
		ORDER BY sum(i.quantity) DESC, i.name
		LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TopItem, error) {
		var it TopItem
		err := row.Scan(&it.Category, &it.Name, &it.Quantity, &it.TotalMinor)
		return it, err
	})
}
