package events

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBPool is the subset of pgxpool.Pool used by PgStore.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgStore persists events to the domain_events table.
type PgStore struct {
	Pool DBPool
}

const insertDomainEvent = `
INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING occurred_at`

// InsertDomainEvent stores ev and returns it with the database timestamp.
func (s PgStore) InsertDomainEvent(ctx context.Context, ev Event) (Event, error) {
	err := s.Pool.QueryRow(ctx, insertDomainEvent,
		ev.ID, ev.Topic, ev.AggregateID, []byte(ev.Payload), ev.OccurredAt,
	).Scan(&ev.OccurredAt)
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}
