package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/obs"
)

// ErrNotLoaded is returned when the holder has no snapshot yet.
var ErrNotLoaded = errors.New("catalog: not loaded")

// Holder keeps the active catalog snapshot and swaps it atomically on reload.
type Holder struct {
	Source Source
	Logger zerolog.Logger

	current atomic.Pointer[Catalog]
}

// NewHolder constructs a Holder backed by src.
func NewHolder(src Source, logger zerolog.Logger) *Holder {
	return &Holder{Source: src, Logger: logger}
}

// Load fetches a snapshot from the source and makes it active.
func (h *Holder) Load(ctx context.Context) error {
	if h == nil || h.Source == nil {
		return ErrNotLoaded
	}
	c, err := h.Source.Load(ctx)
	if err != nil {
		obs.CountCatalogReload("error")
		return err
	}
	h.Set(c)
	obs.CountCatalogReload("ok")
	h.Logger.Info().
		Str("version", c.Version()).
		Str("currency", c.Currency()).
		Int("entries", c.Len()).
		Strs("ambiguous_names", c.AmbiguousNames()).
		Msg("catalog loaded")
	return nil
}

// Set replaces the active snapshot.
func (h *Holder) Set(c *Catalog) {
	h.current.Store(c)
	obs.SetCatalogEntries(c.Len())
}

// Current returns the active snapshot or ErrNotLoaded.
func (h *Holder) Current() (*Catalog, error) {
	if h == nil {
		return nil, ErrNotLoaded
	}
	c := h.current.Load()
	if c == nil || c.Len() == 0 {
		return nil, ErrNotLoaded
	}
	return c, nil
}

// Run reloads the catalog every interval until ctx is done. A failed reload keeps the previous snapshot.
func (h *Holder) Run(ctx context.Context, interval time.Duration) {
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
			if err := h.Load(ctx); err != nil {
				h.Logger.Error().Err(err).Msg("catalog reload failed; keeping previous snapshot")
			}
		}
	}
}
