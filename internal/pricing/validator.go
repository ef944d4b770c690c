package pricing

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/catalog"
	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/security"
)

// CatalogProvider returns the active catalog snapshot.
type CatalogProvider interface {
	Current() (*catalog.Catalog, error)
}

// Validator prices carts against the active catalog and records rejections.
type Validator struct {
	Catalog CatalogProvider
	Limits  Limits
	Logger  zerolog.Logger
	Alerts  security.Alerter
}

// Price resolves lines to a trusted total. Unknown items are logged with the raw submitted name.
func (v Validator) Price(ctx context.Context, lines []Line) (Total, error) {
	if v.Catalog == nil {
		return Total{}, cartError(ErrCatalogUnavailable, "no catalog provider")
	}
	cat, err := v.Catalog.Current()
	if err != nil {
		v.Logger.Error().Err(err).Msg("pricing without a loaded catalog")
		obs.CountPricingRejection(Reason(ErrCatalogUnavailable))
		return Total{}, &Error{Reason: ErrCatalogUnavailable, Line: -1, Detail: err.Error()}
	}
	total, err := ComputeTrustedTotal(lines, cat, v.Limits)
	if err != nil {
		v.Reject(ctx, err)
		return Total{}, err
	}
	return total, nil
}

// Reject logs and counts a pricing failure produced outside Price, such as a decode error.
func (v Validator) Reject(ctx context.Context, err error) {
	obs.CountPricingRejection(Reason(err))
	userID, _ := common.UserID(ctx)
	for _, pe := range LineErrors(err) {
		evt := v.Logger.Warn()
		if errors.Is(pe, ErrUnknownItem) {
			evt = evt.Str("security", security.AlertUnknownMenuItem)
			security.Raise(ctx, v.Alerts, security.Alert{
				Type:        security.AlertUnknownMenuItem,
				Severity:    security.SeverityMedium,
				Title:       "cart referenced an item not on the menu",
				Description: "submitted name: " + pe.Name,
				UserID:      userID,
				Metadata:    security.MetadataJSON(map[string]any{"item_name": pe.Name, "line": pe.Line}),
			})
		}
		if userID != "" {
			evt = evt.Str("user_id", userID)
		}
		evt.Str("reason", Reason(pe)).
			Int("line", pe.Line).
			Str("item_name", pe.Name).
			Str("detail", pe.Detail).
			Msg("cart rejected")
	}
}
