package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Separator joins a category and an item name in storefront display labels.
const Separator = " - "

var (
	// ErrEmpty is returned when a source yields no priced entries.
	ErrEmpty = errors.New("catalog: no entries")
	// ErrDuplicate is returned when two entries share the same category and item name.
	ErrDuplicate = errors.New("catalog: duplicate entry")
	// ErrInvalidPrice is returned for prices that are not positive or not exact in minor units.
	ErrInvalidPrice = errors.New("catalog: invalid price")
)

// Key identifies a catalog entry by normalized category and item name.
type Key struct {
	Category string
	Item     string
}

// String renders the key in display label form.
func (k Key) String() string {
	if k.Category == "" {
		return k.Item
	}
	return k.Category + Separator + k.Item
}

// Entry is a single priced menu item. Price is held in minor currency units.
type Entry struct {
	Category string
	Name     string
	Price    int64
}

// Key returns the normalized structured key of the entry.
func (e Entry) Key() Key {
	return Key{Category: Normalize(e.Category), Item: Normalize(e.Name)}
}

// Normalize trims a name, collapses internal whitespace runs and lowercases it.
func Normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Catalog is an immutable price table indexed by structured key and by bare item name.
type Catalog struct {
	version  string
	currency string
	entries  []Entry
	byKey    map[Key]Entry
	byItem   map[string][]Entry
}

// New builds a Catalog from entries. Duplicate keys and non-positive prices are rejected.
func New(version, currency string, entries []Entry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, ErrEmpty
	}
	c := &Catalog{
		version:  version,
		currency: strings.ToUpper(strings.TrimSpace(currency)),
		entries:  make([]Entry, 0, len(entries)),
		byKey:    make(map[Key]Entry, len(entries)),
		byItem:   make(map[string][]Entry, len(entries)),
	}
	for _, e := range entries {
		if e.Price <= 0 {
			return nil, fmt.Errorf("%w: %q has price %d", ErrInvalidPrice, e.Key().String(), e.Price)
		}
		k := e.Key()
		if k.Item == "" {
			return nil, fmt.Errorf("catalog: entry in category %q has no name", e.Category)
		}
		if _, exists := c.byKey[k]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicate, k.String())
		}
		c.byKey[k] = e
		c.byItem[k.Item] = append(c.byItem[k.Item], e)
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// Version reports the source version string.
func (c *Catalog) Version() string {
	if c == nil {
		return ""
	}
	return c.version
}

// Currency reports the ISO currency code prices are denominated in.
func (c *Catalog) Currency() string {
	if c == nil {
		return ""
	}
	return c.currency
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Entries returns a copy of the entries in source order.
func (c *Catalog) Entries() []Entry {
	if c == nil {
		return nil
	}
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Get returns the entry stored under the structured key.
func (c *Catalog) Get(k Key) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	e, ok := c.byKey[Key{Category: Normalize(k.Category), Item: Normalize(k.Item)}]
	return e, ok
}

// MatchReason explains why a Resolve call did not return an entry.
type MatchReason string

const (
	MatchFound     MatchReason = ""
	MatchMissing   MatchReason = "missing"
	MatchAmbiguous MatchReason = "ambiguous"
)

// Resolve maps a storefront label to exactly one entry.
//
// A "Category - Item" label is first looked up as a structured key. Otherwise,
// or on a miss, the whole label and then the part after the first separator are
// tried as bare item names, which only match when a single category carries them.
func (c *Catalog) Resolve(label string) (Entry, MatchReason) {
	if c == nil {
		return Entry{}, MatchMissing
	}
	reason := MatchMissing
	category, item, hasSep := strings.Cut(label, Separator)
	if hasSep {
		if e, ok := c.byKey[Key{Category: Normalize(category), Item: Normalize(item)}]; ok {
			return e, MatchFound
		}
	}
	if e, r := c.bare(label); r == MatchFound {
		return e, r
	} else if r == MatchAmbiguous {
		reason = r
	}
	if hasSep {
		if e, r := c.bare(item); r == MatchFound {
			return e, r
		} else if r == MatchAmbiguous {
			reason = r
		}
	}
	return Entry{}, reason
}

func (c *Catalog) bare(name string) (Entry, MatchReason) {
	candidates := c.byItem[Normalize(name)]
	switch len(candidates) {
	case 0:
		return Entry{}, MatchMissing
	case 1:
		return candidates[0], MatchFound
	default:
		return Entry{}, MatchAmbiguous
	}
}

// Category groups entries for presentation.
type Category struct {
	Name  string     `json:"name"`
	Items []MenuItem `json:"items"`
}

// MenuItem is the public view of an entry.
type MenuItem struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	Price      string `json:"price"`
	PriceMinor int64  `json:"price_minor"`
}

// Categories groups entries by category preserving source order.
func (c *Catalog) Categories() []Category {
	if c == nil {
		return nil
	}
	index := make(map[string]int)
	var out []Category
	for _, e := range c.entries {
		pos, ok := index[e.Category]
		if !ok {
			pos = len(out)
			index[e.Category] = pos
			out = append(out, Category{Name: e.Category})
		}
		out[pos].Items = append(out[pos].Items, MenuItem{
			Name:       e.Name,
			Label:      e.Category + Separator + e.Name,
			Price:      MajorString(e.Price),
			PriceMinor: e.Price,
		})
	}
	return out
}

// AmbiguousNames lists bare item names carried by more than one category.
func (c *Catalog) AmbiguousNames() []string {
	if c == nil {
		return nil
	}
	var out []string
	for name, entries := range c.byItem {
		if len(entries) > 1 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ToMinor converts a major-unit decimal price to minor units. Fractions of a minor unit are rejected.
func ToMinor(price decimal.Decimal) (int64, error) {
	minor := price.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %s has sub-minor precision", ErrInvalidPrice, price.String())
	}
	if minor.Sign() <= 0 {
		return 0, fmt.Errorf("%w: %s is not positive", ErrInvalidPrice, price.String())
	}
	return minor.IntPart(), nil
}

// MajorString formats minor units as a fixed two-place decimal string.
func MajorString(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
