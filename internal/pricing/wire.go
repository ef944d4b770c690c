package pricing

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"
)

// quantityExponentLimit bounds the exponent of a JSON quantity. Anything
// beyond it is far outside int64 and is not expanded.
const quantityExponentLimit = 20

var (
	maxQuantity = decimal.NewFromInt(math.MaxInt64)
	minQuantity = decimal.NewFromInt(math.MinInt64)
)

type wireLine struct {
	Name     json.RawMessage `json:"name"`
	Quantity json.RawMessage `json:"quantity"`
}

// DecodeLines converts the cartItems JSON array into lines.
//
// Lines whose name is not a string or whose quantity is not an integral JSON
// number are kept in place and rejected as InvalidLineShape during pricing so
// that fail-fast order follows the submitted order. Integral numbers written
// with a fraction or exponent (2.0, 1e1) count as integers. Any price field is
// ignored.
func DecodeLines(raw json.RawMessage) ([]Line, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, cartError(ErrEmptyCart, "")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, cartError(ErrInvalidLineShape, "cartItems is not an array")
	}
	if len(items) == 0 {
		return nil, cartError(ErrEmptyCart, "")
	}
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, decodeLine(item))
	}
	return lines, nil
}

func decodeLine(item json.RawMessage) Line {
	var wl wireLine
	if err := json.Unmarshal(item, &wl); err != nil {
		return Line{malformed: "line is not an object"}
	}
	var line Line
	if err := json.Unmarshal(wl.Name, &line.Name); err != nil || len(wl.Name) == 0 {
		line.malformed = "name must be a string"
		return line
	}
	qty, reason := decodeQuantity(wl.Quantity)
	line.Quantity = qty
	line.malformed = reason
	return line
}

func decodeQuantity(raw json.RawMessage) (int64, string) {
	if len(raw) == 0 {
		return 0, "quantity is required"
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, "quantity must be a number"
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, "quantity must be a number"
	}
	d, err := decimal.NewFromString(num.String())
	if err != nil {
		return 0, "quantity must be a number"
	}
	if d.IsZero() {
		return 0, ""
	}
	if d.Exponent() > quantityExponentLimit {
		// Integral but huge; let the bounds check reject it.
		if d.Sign() < 0 {
			return -1, ""
		}
		return math.MaxInt64, ""
	}
	if d.Exponent() < -quantityExponentLimit || !d.IsInteger() {
		return 0, "quantity must be an integer"
	}
	switch {
	case d.GreaterThan(maxQuantity):
		return math.MaxInt64, ""
	case d.LessThan(minQuantity):
		return -1, ""
	}
	return d.IntPart(), ""
}

// NewLine builds a well-formed line for callers that already hold typed values.
func NewLine(name string, quantity int64) Line {
	return Line{Name: name, Quantity: quantity}
}
