package audit

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBPool matches the methods from *pgxpool.Pool the audit store uses.
type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PgStore writes audit entries to the audit_logs table.
type PgStore struct {
	Pool DBPool
}

var _ Store = (*PgStore)(nil)

func (s *PgStore) Insert(ctx context.Context, e Entry) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO audit_logs (id, actor_kind, actor_user_id, action, resource_type, resource_id,
			method, path, route, status, ip, user_agent, request_id, metadata, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), $10,
			NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''), $14, $15)`,
		e.ID, e.ActorKind, e.ActorUserID, e.Action, e.ResourceType, e.ResourceID,
		e.Method, e.Path, e.Route, e.Status, e.IP, e.UserAgent, e.RequestID, nullableJSON(e.Metadata), e.CreatedAt)
	return err
}

func (s *PgStore) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, actor_kind, coalesce(actor_user_id, ''), action, resource_type, coalesce(resource_id, ''),
			method, path, coalesce(route, ''), status, coalesce(ip, ''), coalesce(user_agent, ''),
			coalesce(request_id, ''), metadata, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.ActorKind, &e.ActorUserID, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.Method, &e.Path, &e.Route, &e.Status, &e.IP, &e.UserAgent, &e.RequestID, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			e.Metadata = meta
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
