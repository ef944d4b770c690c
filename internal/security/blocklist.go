package security

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/obs"
)

var (
	// ErrInvalidIP is returned for addresses that do not parse.
	ErrInvalidIP = errors.New("security: invalid ip address")
	// ErrAlreadyBlocked is returned when the address already has an active block.
	ErrAlreadyBlocked = errors.New("security: ip already blocked")
)

const defaultBlocklistKey = "resto:blocked_ips"

// BlockedIP is one row of the blocked_ips table.
type BlockedIP struct {
	ID          uuid.UUID  `json:"id"`
	IP          string     `json:"ip_address"`
	Reason      string     `json:"reason"`
	BlockedBy   string     `json:"blocked_by,omitempty"`
	BlockedAt   time.Time  `json:"blocked_at"`
	Active      bool       `json:"is_active"`
	UnblockedAt *time.Time `json:"unblocked_at,omitempty"`
	UnblockedBy string     `json:"unblocked_by,omitempty"`
}

// BlockStore persists IP blocks. An address has at most one active block.
type BlockStore interface {
	InsertBlock(ctx context.Context, b BlockedIP) error
	DeactivateBlock(ctx context.Context, id uuid.UUID, by string, at time.Time) (string, error)
	ListBlocks(ctx context.Context, activeOnly bool, limit, offset int) ([]BlockedIP, error)
	ActiveIPs(ctx context.Context) ([]string, error)
	IsBlocked(ctx context.Context, ip string) (bool, error)
}

// Blocklist manages blocked addresses. Active addresses are mirrored into a
// Redis set so the per-request check is a single SISMEMBER; without a cache
// the store is asked directly.
type Blocklist struct {
	Store  BlockStore
	Cache  redis.Cmdable
	Key    string
	Logger zerolog.Logger
	Now    func() time.Time
}

// NormalizeIP returns the canonical text form of raw.
func NormalizeIP(raw string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrInvalidIP
	}
	return addr.Unmap().String(), nil
}

// Block records an active block for ip.
func (b *Blocklist) Block(ctx context.Context, ip, reason, by string) (BlockedIP, error) {
	norm, err := NormalizeIP(ip)
	if err != nil {
		return BlockedIP{}, err
	}
	rec := BlockedIP{
		ID:        uuid.New(),
		IP:        norm,
		Reason:    strings.TrimSpace(reason),
		BlockedBy: by,
		BlockedAt: b.now().UTC(),
		Active:    true,
	}
	if err := b.Store.InsertBlock(ctx, rec); err != nil {
		return BlockedIP{}, err
	}
	if b.Cache != nil {
		if err := b.Cache.SAdd(ctx, b.key(), norm).Err(); err != nil {
			b.Logger.Warn().Err(err).Str("ip", norm).Msg("blocklist cache add failed")
		}
	}
	b.Logger.Info().Str("ip", norm).Str("blocked_by", by).Msg("ip blocked")
	return rec, nil
}

// Unblock deactivates the block with id.
func (b *Blocklist) Unblock(ctx context.Context, id uuid.UUID, by string) error {
	ip, err := b.Store.DeactivateBlock(ctx, id, by, b.now().UTC())
	if err != nil {
		return err
	}
	if b.Cache != nil {
		if err := b.Cache.SRem(ctx, b.key(), ip).Err(); err != nil {
			b.Logger.Warn().Err(err).Str("ip", ip).Msg("blocklist cache remove failed")
		}
	}
	b.Logger.Info().Str("ip", ip).Str("unblocked_by", by).Msg("ip unblocked")
	return nil
}

// List returns blocks, newest first.
func (b *Blocklist) List(ctx context.Context, activeOnly bool, limit, offset int) ([]BlockedIP, error) {
	return b.Store.ListBlocks(ctx, activeOnly, limit, offset)
}

// Sync rebuilds the Redis set from the active rows.
func (b *Blocklist) Sync(ctx context.Context) error {
	if b.Cache == nil {
		return nil
	}
	ips, err := b.Store.ActiveIPs(ctx)
	if err != nil {
		return err
	}
	_, err = b.Cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.key())
		if len(ips) > 0 {
			members := make([]any, len(ips))
			for i, ip := range ips {
				members[i] = ip
			}
			pipe.SAdd(ctx, b.key(), members...)
		}
		return nil
	})
	return err
}

// Run resyncs the cache every interval until ctx is done.
func (b *Blocklist) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Sync(ctx); err != nil {
				b.Logger.Warn().Err(err).Msg("blocklist sync failed")
			}
		}
	}
}

// Blocked reports whether ip has an active block.
func (b *Blocklist) Blocked(ctx context.Context, ip string) (bool, error) {
	norm, err := NormalizeIP(ip)
	if err != nil {
		return false, nil
	}
	if b.Cache != nil {
		return b.Cache.SIsMember(ctx, b.key(), norm).Result()
	}
	return b.Store.IsBlocked(ctx, norm)
}

// Middleware refuses blocked callers with 403 and stores the caller address
// on the context. Lookup errors let the request through.
func (b *Blocklist) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := common.ClientIP(r)
		ctx := common.WithClientIP(r.Context(), ip)
		if b != nil && b.Store != nil {
			blocked, err := b.Blocked(ctx, ip)
			if err != nil {
				b.Logger.Warn().Err(err).Msg("blocklist lookup failed")
			} else if blocked {
				obs.CountBlockedRequest()
				common.JSONError(w, http.StatusForbidden, "IP_BLOCKED", "access denied", nil)
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (b *Blocklist) key() string {
	if b.Key != "" {
		return b.Key
	}
	return defaultBlocklistKey
}

func (b *Blocklist) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}
