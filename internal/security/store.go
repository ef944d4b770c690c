package security

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBPool matches the methods from *pgxpool.Pool the security store uses.
type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PgStore keeps alerts in security_alerts and blocks in blocked_ips.
type PgStore struct {
	Pool DBPool
}

var (
	_ AlertStore = (*PgStore)(nil)
	_ BlockStore = (*PgStore)(nil)
)

const uniqueViolation = "23505"

func (s *PgStore) InsertAlert(ctx context.Context, a Alert) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO security_alerts (id, alert_type, severity, title, description, ip_address, user_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)`,
		a.ID, a.Type, string(a.Severity), a.Title, a.Description, a.IP, a.UserID, nullableJSON(a.Metadata), a.CreatedAt)
	return err
}

func (s *PgStore) ListAlerts(ctx context.Context, f AlertFilter) ([]Alert, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, alert_type, severity, title, description, coalesce(ip_address, ''), coalesce(user_id, ''),
			metadata, resolved, resolved_at, coalesce(resolved_by, ''), created_at
		FROM security_alerts
		WHERE NOT ($1 AND resolved)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, f.OpenOnly, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Alert, error) {
		var (
			a        Alert
			severity string
			meta     []byte
		)
		err := row.Scan(&a.ID, &a.Type, &severity, &a.Title, &a.Description, &a.IP, &a.UserID,
			&meta, &a.Resolved, &a.ResolvedAt, &a.ResolvedBy, &a.CreatedAt)
		a.Severity = Severity(severity)
		if len(meta) > 0 {
			a.Metadata = meta
		}
		return a, err
	})
}

// ResolveAlert marks the alert resolved. Resolving twice keeps the first
// resolution.
func (s *PgStore) ResolveAlert(ctx context.Context, id uuid.UUID, by string, at time.Time) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE security_alerts
		SET resolved = TRUE,
			resolved_at = coalesce(resolved_at, $2),
			resolved_by = coalesce(resolved_by, NULLIF($3, ''))
		WHERE id = $1`, id, at, by)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgStore) CountOpenAlerts(ctx context.Context) (int64, error) {
	var n int64
	err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM security_alerts WHERE NOT resolved`).Scan(&n)
	return n, err
}

func (s *PgStore) InsertBlock(ctx context.Context, b BlockedIP) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO blocked_ips (id, ip_address, reason, blocked_by, blocked_at, is_active)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, TRUE)`,
		b.ID, b.IP, b.Reason, b.BlockedBy, b.BlockedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAlreadyBlocked
	}
	return err
}

// DeactivateBlock ends an active block and returns its address.
func (s *PgStore) DeactivateBlock(ctx context.Context, id uuid.UUID, by string, at time.Time) (string, error) {
	var ip string
	err := s.Pool.QueryRow(ctx, `
		UPDATE blocked_ips
		SET is_active = FALSE, unblocked_at = $2, unblocked_by = NULLIF($3, '')
		WHERE id = $1 AND is_active
		RETURNING ip_address`, id, at, by).Scan(&ip)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return ip, err
}

func (s *PgStore) ListBlocks(ctx context.Context, activeOnly bool, limit, offset int) ([]BlockedIP, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, ip_address, reason, coalesce(blocked_by, ''), blocked_at, is_active, unblocked_at,
			coalesce(unblocked_by, '')
		FROM blocked_ips
		WHERE is_active OR NOT $1
		ORDER BY blocked_at DESC
		LIMIT $2 OFFSET $3`, activeOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (BlockedIP, error) {
		var b BlockedIP
		err := row.Scan(&b.ID, &b.IP, &b.Reason, &b.BlockedBy, &b.BlockedAt, &b.Active, &b.UnblockedAt, &b.UnblockedBy)
		return b, err
	})
}

func (s *PgStore) ActiveIPs(ctx context.Context) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `SELECT ip_address FROM blocked_ips WHERE is_active`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PgStore) IsBlocked(ctx context.Context, ip string) (bool, error) {
	var blocked bool
	err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM blocked_ips WHERE ip_address = $1 AND is_active)`, ip).Scan(&blocked)
	return blocked, err
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
