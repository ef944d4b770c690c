package common

import (
	"strconv"
	"strings"
)

// AtoiDefault parses a query value, returning def for blank or malformed input.
func AtoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return v
	}
	return def
}
