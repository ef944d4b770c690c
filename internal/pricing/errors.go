package pricing

import (
	"errors"
	"fmt"
)

// Rejection reasons. Input-class reasons are the caller's fault; ErrCatalogUnavailable is operational.
var (
	ErrEmptyCart           = errors.New("empty cart")
	ErrInvalidLineShape    = errors.New("invalid line shape")
	ErrQuantityOutOfBounds = errors.New("quantity out of bounds")
	ErrUnknownItem         = errors.New("unknown item")
	ErrTotalOutOfBounds    = errors.New("total out of bounds")
	ErrCatalogUnavailable  = errors.New("catalog unavailable")
)

// Error describes why a cart could not be priced. Line is -1 for cart-level failures.
type Error struct {
	Reason error
	Line   int
	Name   string
	Detail string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := "pricing: " + e.Reason.Error()
	if e.Line >= 0 {
		msg += fmt.Sprintf(" at line %d", e.Line)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap exposes the reason so errors.Is matches the sentinel values.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Reason
}

func cartError(reason error, detail string) *Error {
	return &Error{Reason: reason, Line: -1, Detail: detail}
}

func lineError(reason error, line int, name, detail string) *Error {
	return &Error{Reason: reason, Line: line, Name: name, Detail: detail}
}

// Reason returns a stable label for err suitable for logs and metric labels.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrInvalidLineShape):
		return "invalid_line_shape"
	case errors.Is(err, ErrQuantityOutOfBounds):
		return "quantity_out_of_bounds"
	case errors.Is(err, ErrUnknownItem):
		return "unknown_item"
	case errors.Is(err, ErrTotalOutOfBounds):
		return "total_out_of_bounds"
	case errors.Is(err, ErrCatalogUnavailable):
		return "catalog_unavailable"
	default:
		return "other"
	}
}

// IsInputError reports whether err was caused by the submitted cart rather than the service.
func IsInputError(err error) bool {
	if err == nil || errors.Is(err, ErrCatalogUnavailable) {
		return false
	}
	return errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrInvalidLineShape) ||
		errors.Is(err, ErrQuantityOutOfBounds) ||
		errors.Is(err, ErrUnknownItem) ||
		errors.Is(err, ErrTotalOutOfBounds)
}

// LineErrors flattens err into the individual pricing errors it carries.
func LineErrors(err error) []*Error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []*Error
		for _, inner := range joined.Unwrap() {
			out = append(out, LineErrors(inner)...)
		}
		return out
	}
	var pe *Error
	if errors.As(err, &pe) {
		return []*Error{pe}
	}
	return nil
}
