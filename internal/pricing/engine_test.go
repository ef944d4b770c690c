package pricing_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-resto/internal/catalog"
	"github.com/noah-isme/backend-resto/internal/pricing"
)

func sampleCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New("test", "INR", []catalog.Entry{
		{Category: "Breads", Name: "Plain Naan", Price: 25000},
		{Category: "Breads", Name: "Butter Naan", Price: 33500},
		{Category: "Desserts", Name: "Gulab Jamun", Price: 42000},
		{Category: "Chicken Entrees", Name: "Chicken Makhni/Butter Chicken", Price: 142500},
		{Category: "Soup", Name: "Dal Soup", Price: 42000},
		{Category: "Specials", Name: "With Chole", Price: 100500},
		{Category: "Sweets", Name: "Jalebi", Price: 1999},
	})
	require.NoError(t, err)
	return c
}

func line(name string, qty int64) pricing.Line { return pricing.NewLine(name, qty) }

func TestComputeTrustedTotalSumsCatalogPrices(t *testing.T) {
	c := sampleCatalog(t)

	total, err := pricing.ComputeTrustedTotal([]pricing.Line{line("Gulab Jamun", 3)}, c, pricing.DefaultLimits())
	require.NoError(t, err)
	require.EqualValues(t, 126000, total.Minor)
	require.Equal(t, "1260", total.Major().String())
	require.Equal(t, "INR", total.Currency)
	require.Len(t, total.Lines, 1)
	require.Equal(t, "Desserts", total.Lines[0].Category)
	require.EqualValues(t, 42000, total.Lines[0].UnitPrice)
}

func TestComputeTrustedTotalOrderIndependent(t *testing.T) {
	c := sampleCatalog(t)
	lines := []pricing.Line{
		line("Plain Naan", 2),
		line("Butter Naan", 5),
		line("Gulab Jamun", 1),
		line("Dal Soup", 7),
		line("Jalebi", 13),
	}
	var want pricing.Money
	for _, l := range lines {
		e, _ := c.Resolve(l.Name)
		want += e.Price * l.Quantity
	}

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]pricing.Line(nil), lines...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		total, err := pricing.ComputeTrustedTotal(shuffled, c, pricing.DefaultLimits())
		require.NoError(t, err)
		require.Equal(t, want, total.Minor)
	}
}

func TestComputeTrustedTotalMinorUnitRoundTrip(t *testing.T) {
	c := sampleCatalog(t)
	lines := []pricing.Line{line("Jalebi", 3), line("Butter Naan", 1)}

	total, err := pricing.ComputeTrustedTotal(lines, c, pricing.DefaultLimits())
	require.NoError(t, err)

	// round(major * 100) must equal the per-line minor sum.
	roundTrip := total.Major().Shift(2).Round(0).IntPart()
	require.Equal(t, int64(1999*3+33500), roundTrip)
	require.Equal(t, total.Minor, roundTrip)
}

func TestComputeTrustedTotalNormalizesNames(t *testing.T) {
	c := sampleCatalog(t)
	a, err := pricing.ComputeTrustedTotal([]pricing.Line{line("  Butter   Naan ", 1)}, c, pricing.DefaultLimits())
	require.NoError(t, err)
	b, err := pricing.ComputeTrustedTotal([]pricing.Line{line("butter naan", 1)}, c, pricing.DefaultLimits())
	require.NoError(t, err)
	require.Equal(t, a.Minor, b.Minor)
	require.Equal(t, "335", a.Major().String())
}

func TestComputeTrustedTotalSeparatorFallback(t *testing.T) {
	c := sampleCatalog(t)
	total, err := pricing.ComputeTrustedTotal([]pricing.Line{line("Bature - With Chole", 1)}, c, pricing.DefaultLimits())
	require.NoError(t, err)
	require.Equal(t, "1005", total.Major().String())
}

func TestComputeTrustedTotalErrors(t *testing.T) {
	c := sampleCatalog(t)
	limits := pricing.DefaultLimits()

	cases := []struct {
		name  string
		lines []pricing.Line
		want  error
		line  int
	}{
		{name: "empty cart", lines: nil, want: pricing.ErrEmptyCart, line: -1},
		{name: "zero quantity", lines: []pricing.Line{line("Plain Naan", 0)}, want: pricing.ErrQuantityOutOfBounds, line: 0},
		{name: "negative quantity", lines: []pricing.Line{line("Plain Naan", -2)}, want: pricing.ErrQuantityOutOfBounds, line: 0},
		{name: "quantity above max", lines: []pricing.Line{line("Plain Naan", 101)}, want: pricing.ErrQuantityOutOfBounds, line: 0},
		{name: "unknown item", lines: []pricing.Line{line("Plain Naan", 1), line("Sushi Platter", 1)}, want: pricing.ErrUnknownItem, line: 1},
		{name: "blank name", lines: []pricing.Line{line("   ", 1)}, want: pricing.ErrInvalidLineShape, line: 0},
		{
			name:  "second line quantity zero",
			lines: []pricing.Line{line("Plain Naan", 2), line("Butter Chicken", 0)},
			want:  pricing.ErrQuantityOutOfBounds,
			line:  1,
		},
		{
			name:  "first error wins",
			lines: []pricing.Line{line("Nope", 1), line("Plain Naan", 0)},
			want:  pricing.ErrUnknownItem,
			line:  0,
		},
		{
			name:  "total above ceiling",
			lines: []pricing.Line{line("Chicken Makhni/Butter Chicken", 100), line("Gulab Jamun", 100)},
			want:  pricing.ErrTotalOutOfBounds,
			line:  -1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			total, err := pricing.ComputeTrustedTotal(tc.lines, c, limits)
			require.ErrorIs(t, err, tc.want)
			require.Zero(t, total.Minor)
			require.Empty(t, total.Lines)

			var pe *pricing.Error
			require.True(t, errors.As(err, &pe))
			require.Equal(t, tc.line, pe.Line)
			require.True(t, pricing.IsInputError(err))
		})
	}
}

func TestComputeTrustedTotalCustomLimits(t *testing.T) {
	c := sampleCatalog(t)

	_, err := pricing.ComputeTrustedTotal([]pricing.Line{line("Plain Naan", 6)}, c, pricing.Limits{MaxQuantityPerLine: 5})
	require.ErrorIs(t, err, pricing.ErrQuantityOutOfBounds)

	_, err = pricing.ComputeTrustedTotal([]pricing.Line{line("Jalebi", 1)}, c, pricing.Limits{MinTotal: 2000})
	require.ErrorIs(t, err, pricing.ErrTotalOutOfBounds)

	_, err = pricing.ComputeTrustedTotal([]pricing.Line{line("Butter Naan", 2)}, c, pricing.Limits{MaxTotal: 50000})
	require.ErrorIs(t, err, pricing.ErrTotalOutOfBounds)
}

func TestComputeTrustedTotalOverflow(t *testing.T) {
	c, err := catalog.New("huge", "INR", []catalog.Entry{
		{Category: "Platters", Name: "Feast", Price: math.MaxInt64 / 50},
		{Category: "Platters", Name: "Banquet", Price: math.MaxInt64 / 50},
		{Category: "Platters", Name: "Royal Thali", Price: math.MaxInt64 / 100},
	})
	require.NoError(t, err)
	limits := pricing.Limits{MaxTotal: math.MaxInt64}

	cases := []struct {
		name   string
		lines  []pricing.Line
		limits pricing.Limits
		line   int
	}{
		{name: "line product", lines: []pricing.Line{line("Feast", 51)}, limits: limits, line: 0},
		{name: "subtotal sum", lines: []pricing.Line{line("Feast", 40), line("Banquet", 40)}, limits: limits, line: -1},
		{
			name:   "surcharge",
			lines:  []pricing.Line{line("Royal Thali", 99)},
			limits: pricing.Limits{MaxTotal: math.MaxInt64, SurchargeBps: 10000},
			line:   -1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			total, err := pricing.ComputeTrustedTotal(tc.lines, c, tc.limits)
			require.ErrorIs(t, err, pricing.ErrTotalOutOfBounds)
			require.Zero(t, total.Minor)

			var pe *pricing.Error
			require.True(t, errors.As(err, &pe))
			require.Equal(t, tc.line, pe.Line)
		})
	}

	total, err := pricing.ComputeTrustedTotal([]pricing.Line{line("Feast", 49)}, c, limits)
	require.NoError(t, err)
	require.EqualValues(t, (math.MaxInt64/50)*49, total.Minor)
}

func TestComputeTrustedTotalSurcharge(t *testing.T) {
	c := sampleCatalog(t)
	total, err := pricing.ComputeTrustedTotal([]pricing.Line{line("Butter Naan", 1)}, c, pricing.Limits{SurchargeBps: 200})
	require.NoError(t, err)
	require.EqualValues(t, 33500, total.Subtotal)
	require.EqualValues(t, 670, total.Surcharge)
	require.EqualValues(t, 34170, total.Minor)

	total, err = pricing.ComputeTrustedTotal([]pricing.Line{line("Jalebi", 1)}, c, pricing.Limits{SurchargeBps: 200})
	require.NoError(t, err)
	require.EqualValues(t, 40, total.Surcharge, "39.98 rounds half up to 40")
}

func TestComputeTrustedTotalAccumulate(t *testing.T) {
	c := sampleCatalog(t)
	lines := []pricing.Line{
		line("Nope", 1),
		line("Plain Naan", 1),
		line("Butter Naan", 0),
		line("", 1),
	}

	_, err := pricing.ComputeTrustedTotal(lines, c, pricing.Limits{Accumulate: true})
	require.Error(t, err)
	require.ErrorIs(t, err, pricing.ErrUnknownItem)
	require.ErrorIs(t, err, pricing.ErrQuantityOutOfBounds)
	require.ErrorIs(t, err, pricing.ErrInvalidLineShape)

	all := pricing.LineErrors(err)
	require.Len(t, all, 3)
	require.Equal(t, []int{0, 2, 3}, []int{all[0].Line, all[1].Line, all[2].Line})
}

func TestComputeTrustedTotalCatalogUnavailable(t *testing.T) {
	_, err := pricing.ComputeTrustedTotal([]pricing.Line{line("Plain Naan", 1)}, nil, pricing.DefaultLimits())
	require.ErrorIs(t, err, pricing.ErrCatalogUnavailable)
	require.False(t, pricing.IsInputError(err))
	require.Equal(t, "catalog_unavailable", pricing.Reason(err))
}
