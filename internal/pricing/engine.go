package pricing

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-resto/internal/catalog"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// Default limits applied when a Limits field is left zero.
const (
	DefaultMaxQuantityPerLine int64 = 100
	DefaultMaxTotal           Money = 100000 * 100
	DefaultMinTotal           Money = 1
)

// Limits bounds what a single cart may request.
type Limits struct {
	MaxQuantityPerLine int64
	MaxTotal           Money
	MinTotal           Money
	// SurchargeBps is added on top of the validated subtotal, in basis points.
	SurchargeBps int64
	// Accumulate reports every failing line instead of stopping at the first.
	Accumulate bool
}

// DefaultLimits returns the platform limits.
func DefaultLimits() Limits {
	return Limits{
		MaxQuantityPerLine: DefaultMaxQuantityPerLine,
		MaxTotal:           DefaultMaxTotal,
		MinTotal:           DefaultMinTotal,
	}
}

func (l Limits) withDefaults() Limits {
	if l.MaxQuantityPerLine <= 0 {
		l.MaxQuantityPerLine = DefaultMaxQuantityPerLine
	}
	if l.MaxTotal <= 0 {
		l.MaxTotal = DefaultMaxTotal
	}
	if l.MinTotal <= 0 {
		l.MinTotal = DefaultMinTotal
	}
	if l.SurchargeBps < 0 {
		l.SurchargeBps = 0
	}
	return l
}

// Line is one requested cart line. Only the name and quantity are ever read.
type Line struct {
	Name     string
	Quantity int64

	malformed string
}

// PricedLine is a cart line resolved against the catalog.
type PricedLine struct {
	Label     string `json:"label"`
	Category  string `json:"category"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice Money  `json:"unit_price"`
	LineTotal Money  `json:"line_total"`
}

// Total is the trusted amount for a cart, in minor units.
type Total struct {
	Subtotal  Money
	Surcharge Money
	Minor     Money
	Currency  string
	Version   string
	Lines     []PricedLine
}

// Major returns the total in major currency units without loss of precision.
func (t Total) Major() decimal.Decimal {
	return decimal.New(t.Minor, -2)
}

// ComputeTrustedTotal prices lines using only catalog prices.
//
// The computation is exact integer arithmetic in minor units. By default the
// first failing line wins; with Limits.Accumulate every line is checked and the
// failures are joined. No total is returned unless every line resolves.
func ComputeTrustedTotal(lines []Line, cat *catalog.Catalog, limits Limits) (Total, error) {
	if cat == nil || cat.Len() == 0 {
		return Total{}, cartError(ErrCatalogUnavailable, "price table not loaded")
	}
	if len(lines) == 0 {
		return Total{}, cartError(ErrEmptyCart, "")
	}
	limits = limits.withDefaults()

	var (
		errs     []error
		priced   = make([]PricedLine, 0, len(lines))
		subtotal Money
		overflow bool
	)
	for i, line := range lines {
		pl, err := priceLine(i, line, cat, limits)
		if err != nil {
			if !limits.Accumulate {
				return Total{}, err
			}
			errs = append(errs, err)
			continue
		}
		if subtotal > math.MaxInt64-pl.LineTotal {
			overflow = true
		} else {
			subtotal += pl.LineTotal
		}
		priced = append(priced, pl)
	}
	if len(errs) > 0 {
		return Total{}, errors.Join(errs...)
	}
	if overflow || subtotal > limits.MaxTotal {
		return Total{}, cartError(ErrTotalOutOfBounds, fmt.Sprintf("above maximum %d", limits.MaxTotal))
	}
	if subtotal < limits.MinTotal {
		return Total{}, cartError(ErrTotalOutOfBounds, fmt.Sprintf("below minimum %d", limits.MinTotal))
	}

	surcharge, ok := applyBps(subtotal, limits.SurchargeBps)
	if !ok || surcharge > math.MaxInt64-subtotal {
		return Total{}, cartError(ErrTotalOutOfBounds, "surcharge overflows")
	}
	return Total{
		Subtotal:  subtotal,
		Surcharge: surcharge,
		Minor:     subtotal + surcharge,
		Currency:  cat.Currency(),
		Version:   cat.Version(),
		Lines:     priced,
	}, nil
}

func priceLine(i int, line Line, cat *catalog.Catalog, limits Limits) (PricedLine, error) {
	if line.malformed != "" {
		return PricedLine{}, lineError(ErrInvalidLineShape, i, line.Name, line.malformed)
	}
	if strings.TrimSpace(line.Name) == "" {
		return PricedLine{}, lineError(ErrInvalidLineShape, i, line.Name, "name is empty")
	}
	if line.Quantity < 1 || line.Quantity > limits.MaxQuantityPerLine {
		return PricedLine{}, lineError(ErrQuantityOutOfBounds, i, line.Name,
			fmt.Sprintf("quantity %d outside 1..%d", line.Quantity, limits.MaxQuantityPerLine))
	}
	entry, reason := cat.Resolve(line.Name)
	if reason != catalog.MatchFound {
		return PricedLine{}, lineError(ErrUnknownItem, i, line.Name, string(reason))
	}
	if entry.Price > math.MaxInt64/line.Quantity {
		return PricedLine{}, lineError(ErrTotalOutOfBounds, i, line.Name, "line total overflows")
	}
	return PricedLine{
		Label:     line.Name,
		Category:  entry.Category,
		Name:      entry.Name,
		Quantity:  line.Quantity,
		UnitPrice: entry.Price,
		LineTotal: entry.Price * line.Quantity,
	}, nil
}

// applyBps returns amount*bps/10000 rounded half up. ok is false when the
// product does not fit in int64.
func applyBps(amount Money, bps int64) (Money, bool) {
	if bps <= 0 || amount <= 0 {
		return 0, true
	}
	hi, lo := bits.Mul64(uint64(amount), uint64(bps))
	if hi != 0 || lo > math.MaxInt64-5000 {
		return 0, false
	}
	return Money((lo + 5000) / 10000), true
}
